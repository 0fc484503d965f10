package nodaldb

// ArrayFactory validates and constructs Array storages: fixed-size
// arrays of fixed-size payload slots. This is the one concrete
// StorageFactory this package ships, mostly to exercise
// StorageRegistry end to end and to pin down the validation contract
// spec.md §8 (S6) describes.
type ArrayFactory struct{}

func (ArrayFactory) Validate(m StorageMetadata) error {
	am, ok := m.(ArrayMetadata)
	if !ok {
		return newStorageError(ErrCodeStorageWrongMetadataType, "ArrayFactory received non-array metadata")
	}
	if am.PayloadSize == 0 {
		return newStorageError(ErrCodeStorageInvalidOption, "array payload_size must be > 0")
	}
	if am.ArraySize == 0 {
		return newStorageError(ErrCodeStorageInvalidOption, "array array_size must be > 0")
	}
	return nil
}

func (ArrayFactory) NewHandle(m StorageMetadata) StorageHandle {
	am := m.(ArrayMetadata)
	root := &Page{}
	root.Header.InitVolatile(VolatilePagePointer{}, am.Id, PageTypeArray, true)
	return &ArrayHandle{metadata: am, root: root}
}

// ArrayHandle is the live handle ArrayFactory produces: the metadata it
// was created from, plus the volatile root page allocated for it. Real
// row storage is out of scope for this core -- the root page exists
// here only to demonstrate the PageHeader contract S6 pins down
// (storage_id/page_type/snapshot/root/page_version all correctly
// initialized).
type ArrayHandle struct {
	metadata ArrayMetadata
	root     *Page
}

func (h *ArrayHandle) Metadata() StorageMetadata { return h.metadata }

// Root returns the handle's volatile root page.
func (h *ArrayHandle) Root() *Page { return h.root }
