package nodaldb

import (
	"encoding/xml"
	"io"

	"github.com/pkg/errors"
)

// StorageId uniquely identifies a live storage. Zero denotes "invalid".
type StorageId uint32

// InvalidStorageId is the sentinel "no storage" id.
const InvalidStorageId StorageId = 0

// StorageType reuses the same tag space as PageType: a storage's root
// page type also names the storage's kind, exactly as the original
// engine shares one enum between the two concepts.
type StorageType = PageType

// maxStorageNameLen bounds StorageMetadata.Name, matching spec's
// "bounded string (<= 32 chars)" -- the inline fixed_string the
// original uses for StorageName.
const maxStorageNameLen = 32

// Metadata carries the fields common to every storage kind: id, type,
// name, and the snapshot page it is rooted at. It is embedded by each
// type-specific metadata variant.
type Metadata struct {
	Id                 StorageId
	Type               StorageType
	Name               string
	RootSnapshotPageId SnapshotPagePointer
}

// StorageMetadata is the tagged variant every concrete metadata type
// implements: it knows its own type, can deep-copy itself, and can
// serialize/deserialize to the structured document format.
type StorageMetadata interface {
	Common() Metadata
	Clone() StorageMetadata
	xmlEntry() metadataXMLEntry
}

func validateCommon(m Metadata) error {
	if m.Id == InvalidStorageId {
		return newStorageError(ErrCodeStorageInvalidOption, "storage id must be > 0")
	}
	if len(m.Name) == 0 || len(m.Name) > maxStorageNameLen {
		return newStorageError(ErrCodeStorageInvalidOption, "storage name must be 1..32 bytes")
	}
	return nil
}

// ArrayMetadata is the Array storage's metadata: a fixed-size array of
// fixed-size payload slots.
type ArrayMetadata struct {
	Metadata
	ArraySize   uint64
	PayloadSize uint16
}

func (m ArrayMetadata) Common() Metadata { return m.Metadata }

func (m ArrayMetadata) Clone() StorageMetadata {
	clone := m
	return clone
}

func (m ArrayMetadata) xmlEntry() metadataXMLEntry {
	return metadataXMLEntry{
		Id:                 m.Id,
		Type:               m.Type,
		Name:               m.Name,
		RootSnapshotPageId: uint64(m.RootSnapshotPageId),
		ArraySize:          &m.ArraySize,
		PayloadSize:        &m.PayloadSize,
	}
}

// metadataXMLEntry is the on-disk shape of one storage's metadata:
// common fields plus optional type-specific children. Pointer fields
// are omitted from the document when nil, giving each storage type its
// own subset of extra elements the way the original's per-type XML
// children did.
type metadataXMLEntry struct {
	XMLName            xml.Name    `xml:"storage"`
	Id                 StorageId   `xml:"id"`
	Type               StorageType `xml:"type"`
	Name               string      `xml:"name"`
	RootSnapshotPageId uint64      `xml:"root_snapshot_page_id"`
	ArraySize          *uint64     `xml:"array_size,omitempty"`
	PayloadSize        *uint16     `xml:"payload_size,omitempty"`
}

// metadataXMLDocument is the root element enumerating every live
// storage's metadata entry, per spec's "single human-readable
// structured document" persistence contract.
type metadataXMLDocument struct {
	XMLName xml.Name            `xml:"storages"`
	Entries []metadataXMLEntry `xml:"storage"`
}

// SaveMetadata serializes a single StorageMetadata to sink as a
// self-contained XML document.
func SaveMetadata(sink io.Writer, m StorageMetadata) error {
	entry := m.xmlEntry()
	enc := xml.NewEncoder(sink)
	enc.Indent("", "  ")
	if err := enc.Encode(entry); err != nil {
		return errors.Wrap(err, "encode storage metadata")
	}
	return nil
}

// LoadMetadata deserializes a single StorageMetadata from source,
// dispatching on the <type> tag to produce the correct concrete
// variant.
func LoadMetadata(source io.Reader) (StorageMetadata, error) {
	var entry metadataXMLEntry
	dec := xml.NewDecoder(source)
	if err := dec.Decode(&entry); err != nil {
		return nil, errors.Wrap(err, "decode storage metadata")
	}
	return metadataFromXMLEntry(entry)
}

func metadataFromXMLEntry(entry metadataXMLEntry) (StorageMetadata, error) {
	common := Metadata{
		Id:                 entry.Id,
		Type:               entry.Type,
		Name:               entry.Name,
		RootSnapshotPageId: SnapshotPagePointer(entry.RootSnapshotPageId),
	}
	switch entry.Type {
	case PageTypeArray:
		m := ArrayMetadata{Metadata: common}
		if entry.ArraySize != nil {
			m.ArraySize = *entry.ArraySize
		}
		if entry.PayloadSize != nil {
			m.PayloadSize = *entry.PayloadSize
		}
		return m, nil
	default:
		return nil, newStorageError(ErrCodeStorageWrongMetadataType, "unsupported storage type in metadata document: "+entry.Type.String())
	}
}

// SaveMetadataDocument serializes every entry in ms as one structured
// document, the shape written per snapshot.
func SaveMetadataDocument(sink io.Writer, ms []StorageMetadata) error {
	doc := metadataXMLDocument{Entries: make([]metadataXMLEntry, 0, len(ms))}
	for _, m := range ms {
		doc.Entries = append(doc.Entries, m.xmlEntry())
	}
	enc := xml.NewEncoder(sink)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, "encode storage metadata document")
	}
	return nil
}

// LoadMetadataDocument parses a full metadata document back into its
// constituent StorageMetadata values.
func LoadMetadataDocument(source io.Reader) ([]StorageMetadata, error) {
	var doc metadataXMLDocument
	dec := xml.NewDecoder(source)
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "decode storage metadata document")
	}
	out := make([]StorageMetadata, 0, len(doc.Entries))
	for _, entry := range doc.Entries {
		m, err := metadataFromXMLEntry(entry)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
