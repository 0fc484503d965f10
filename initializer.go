package nodaldb

// VolatilePageInitializer is a one-shot strategy for bringing a freshly
// allocated page to life: zero it, stamp the common header, then let a
// type-specific hook fill in the rest. Implementations should be cheap
// value types -- this runs on the page-fault hot path.
type VolatilePageInitializer interface {
	// StorageId, PageType and Root describe what kind of page this
	// initializer produces.
	StorageId() StorageId
	PageType() PageType
	Root() bool

	// InitializeMore is invoked after the common header has been
	// stamped, with the page still exclusively owned by the caller.
	InitializeMore(page *Page)
}

// InitializeVolatilePage runs the full initialization sequence: zero
// the page, stamp PageHeader via InitVolatile, then call the
// initializer's InitializeMore hook.
func InitializeVolatilePage(initializer VolatilePageInitializer, page *Page, pageId VolatilePagePointer) {
	*page = Page{}
	page.Header.InitVolatile(pageId, initializer.StorageId(), initializer.PageType(), initializer.Root())
	initializer.InitializeMore(page)
}

// NullInitializer is the sentinel VolatilePageInitializer used on
// page-fault paths that assert no page will actually be created (e.g.
// a read-only lookup that tolerates a missing child). Its
// InitializeMore is a no-op.
type NullInitializer struct{}

func (NullInitializer) StorageId() StorageId { return InvalidStorageId }
func (NullInitializer) PageType() PageType   { return PageTypeUnknown }
func (NullInitializer) Root() bool           { return true }
func (NullInitializer) InitializeMore(*Page) {}

// NullInitializerInstance is the shared singleton, mirroring the
// original's kDummyPageInitializer.
var NullInitializerInstance VolatilePageInitializer = NullInitializer{}
