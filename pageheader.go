package nodaldb

import (
	"hash/crc32"
)

// PageType is the stable on-disk tag identifying what kind of page a
// PageHeader belongs to. Values are numerically fixed to survive
// persistence across versions of this engine -- never renumber them.
type PageType uint8

const (
	PageTypeUnknown              PageType = 0
	PageTypeArray                PageType = 1
	PageTypeMasstreeIntermediate PageType = 2
	PageTypeMasstreeBorder       PageType = 3
	PageTypeSequential           PageType = 4
	PageTypeSequentialRoot       PageType = 5
	PageTypeHashRoot             PageType = 6
	PageTypeHashBin              PageType = 7
	PageTypeHashData             PageType = 8
)

func (t PageType) String() string {
	switch t {
	case PageTypeUnknown:
		return "unknown"
	case PageTypeArray:
		return "array"
	case PageTypeMasstreeIntermediate:
		return "masstree_intermediate"
	case PageTypeMasstreeBorder:
		return "masstree_border"
	case PageTypeSequential:
		return "sequential"
	case PageTypeSequentialRoot:
		return "sequential_root"
	case PageTypeHashRoot:
		return "hash_root"
	case PageTypeHashBin:
		return "hash_bin"
	case PageTypeHashData:
		return "hash_data"
	default:
		return "invalid"
	}
}

// kPageSize is the fixed size of every page, in bytes.
const kPageSize = 4096

// pageHeaderSize is the fixed size of PageHeader, in bytes. Kept equal
// to 32 to match spec: page_id(8) + storage_id(4) + checksum(4) +
// page_type(1) + snapshot(1) + root(1) + stat_latest_modifier(1) +
// stat_latest_modify_epoch(4) + page_version(8) = 32.
const pageHeaderSize = 32

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// PageHeader is the fixed-layout prefix embedded at offset 0 of every
// page. It is never heap-allocated on its own -- it only ever exists
// embedded inside a Page.
type PageHeader struct {
	PageId                uint64
	StorageId             StorageId
	Checksum              uint32
	PageTypeTag           PageType
	Snapshot              bool
	Root                  bool
	StatLatestModifier    ThreadGroupId
	StatLatestModifyEpoch Epoch
	PageVersion           PageVersion
}

// InitVolatile zeroes the header and marks it as an in-memory page
// owned by the buffer pool. Precondition: the caller exclusively owns
// this memory (no other thread has a reference yet).
func (h *PageHeader) InitVolatile(pageId VolatilePagePointer, storageId StorageId, pageType PageType, root bool) {
	*h = PageHeader{}
	h.PageId = pageId.Word()
	h.StorageId = storageId
	h.PageTypeTag = pageType
	h.Snapshot = false
	h.Root = root
}

// InitSnapshot zeroes the header and marks it as an immutable, on-disk
// snapshot page.
func (h *PageHeader) InitSnapshot(pageId SnapshotPagePointer, storageId StorageId, pageType PageType, root bool) {
	*h = PageHeader{}
	h.PageId = uint64(pageId)
	h.StorageId = storageId
	h.PageTypeTag = pageType
	h.Snapshot = true
	h.Root = root
}

// GetPageType decodes the page type tag. A value of PageTypeUnknown
// outside of initialization contexts indicates a corrupt or
// uninitialized page.
func (h *PageHeader) GetPageType() PageType { return h.PageTypeTag }

// Page is a fixed kPageSize-byte opaque buffer with a PageHeader at
// offset 0. Everything past the header is type-specific and is
// interpreted only by the owning storage kind; this package never
// reaches into it.
type Page struct {
	Header PageHeader
	Body   [kPageSize - pageHeaderSize]byte
}

// VerifyChecksum recomputes the CRC32C of the page body (as the
// snapshot format defines: the header's Checksum field is treated as
// zero during the computation, since it is itself the checksum) and
// reports whether it matches the stored checksum. Only meaningful for
// snapshot pages -- volatile pages are never checksummed.
func (p *Page) VerifyChecksum() bool {
	return crc32.Checksum(p.Body[:], crc32cTable) == p.Header.Checksum
}

// SealChecksum recomputes and stores the page's checksum, as done when
// a volatile page is written out as part of a snapshot.
func (p *Page) SealChecksum() {
	p.Header.Checksum = crc32.Checksum(p.Body[:], crc32cTable)
}
