package nodaldb

import (
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
)

// StorageFactory validates a piece of metadata and, if acceptable,
// produces a live StorageHandle for it. Factories are registered once
// per storage type at engine init.
type StorageFactory interface {
	// Validate checks metadata for this factory's type-specific
	// constraints (e.g. ArrayFactory rejects a zero payload/array
	// size), returning a *StorageError with ErrCodeStorageInvalidOption
	// or ErrCodeStorageWrongMetadataType on failure.
	Validate(m StorageMetadata) error
	// NewHandle constructs the live handle once metadata has been
	// validated.
	NewHandle(m StorageMetadata) StorageHandle
}

// StorageHandle is the minimal live-storage capability the registry
// hands back to callers; concrete storage kinds (Array, Masstree, ...)
// extend this with their own operations outside this package's scope.
type StorageHandle interface {
	Metadata() StorageMetadata
}

// LogBuffer is the external collaborator StorageRegistry.Create writes
// a create-log entry to. Supplied by the engine's transaction/logging
// subsystem; this package only needs the ability to reserve space.
type LogBuffer interface {
	ReserveNewLog(length int) []byte
}

type storageEntry struct {
	metadata StorageMetadata
	handle   StorageHandle
}

// StorageRegistry maps StorageId to live storage metadata + handle,
// and StorageType to the factory responsible for creating storages of
// that type. Reads (Lookup/Each) vastly outnumber writes (Create is
// rare), so the read path must never block behind another reader.
type StorageRegistry struct {
	mu        sync.RWMutex
	factories map[StorageType]StorageFactory
	entries   map[StorageId]storageEntry
	names     map[string]StorageId
}

// NewStorageRegistry returns an empty registry, ready for
// RegisterFactory calls at engine init.
func NewStorageRegistry() *StorageRegistry {
	return &StorageRegistry{
		factories: make(map[StorageType]StorageFactory),
		entries:   make(map[StorageId]storageEntry),
		names:     make(map[string]StorageId),
	}
}

// RegisterFactory installs the factory responsible for a storage type.
// Intended to be called only during engine init, before any Create.
func (r *StorageRegistry) RegisterFactory(t StorageType, factory StorageFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[t] = factory
	log.WithField("storage_type", t.String()).Debug("registered storage factory")
}

// Create validates metadata against its type's factory, and on
// success registers the new storage, writes a create-log entry to log,
// and returns the live handle.
func (r *StorageRegistry) Create(metadata StorageMetadata, logBuf LogBuffer) (StorageHandle, error) {
	common := metadata.Common()
	if err := validateCommon(common); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	factory, ok := r.factories[common.Type]
	if !ok {
		return nil, newStorageError(ErrCodeStorageWrongMetadataType, "no factory registered for storage type "+common.Type.String())
	}
	if err := factory.Validate(metadata); err != nil {
		return nil, err
	}
	if _, exists := r.entries[common.Id]; exists {
		return nil, newStorageError(ErrCodeStorageDuplicateId, "storage id already in use")
	}
	if _, exists := r.names[common.Name]; exists {
		return nil, newStorageError(ErrCodeStorageDuplicateName, "storage name already in use")
	}

	handle := factory.NewHandle(metadata)
	r.entries[common.Id] = storageEntry{metadata: metadata, handle: handle}
	r.names[common.Name] = common.Id

	if logBuf != nil {
		entry, err := encodeCreateLogEntry(common)
		if err != nil {
			return nil, wrapStorageError(ErrCodeNone, err, "encode create-log entry")
		}
		buf := logBuf.ReserveNewLog(len(entry))
		copy(buf, entry)
	}

	log.WithFields(log.Fields{
		"storage_id":   common.Id,
		"storage_type": common.Type.String(),
		"storage_name": common.Name,
	}).Info("storage created")
	return handle, nil
}

// Lookup returns the live handle for id, if any.
func (r *StorageRegistry) Lookup(id StorageId) (StorageHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return entry.handle, true
}

// LookupByName returns the live handle registered under name, if any.
func (r *StorageRegistry) LookupByName(name string) (StorageHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.names[name]
	if !ok {
		return nil, false
	}
	return r.entries[id].handle, true
}

// Each iterates every live storage's metadata in a deterministic,
// name-sorted order -- used for the snapshot metadata dump.
func (r *StorageRegistry) Each(fn func(StorageMetadata)) {
	r.mu.RLock()
	metadatas := make([]StorageMetadata, 0, len(r.entries))
	for _, entry := range r.entries {
		metadatas = append(metadatas, entry.metadata)
	}
	r.mu.RUnlock()

	sort.Slice(metadatas, func(i, j int) bool {
		return BytesComparator([]byte(metadatas[i].Common().Name), []byte(metadatas[j].Common().Name)) < 0
	})
	for _, m := range metadatas {
		fn(m)
	}
}
