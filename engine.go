package nodaldb

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// storeMagic identifies a nodaldb metadata store file: "NDLM" read as a
// big-endian integer, stored little-endian like every other header
// field, so the file's first four bytes are "MLDN".
const storeMagic uint32 = 0x4E444C4D

const storeHeaderSize = 4 + 2 + 2 + 4 + 4 // magic+version+compression+entryCount+checksum

// storeHeader is the first storeHeaderSize bytes of a metadata store
// file: a magic number, a format version, the codec used for every
// entry blob, how many entries follow, and a checksum over the
// index+blob region.
type storeHeader struct {
	Magic       uint32
	Version     uint16
	Compression CompressAlgorithm
	EntryCount  uint32
	Checksum    uint32
}

func (h storeHeader) encode() []byte {
	buf := make([]byte, storeHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint16(buf[6:8], uint16(h.Compression))
	binary.LittleEndian.PutUint32(buf[8:12], h.EntryCount)
	binary.LittleEndian.PutUint32(buf[12:16], h.Checksum)
	return buf
}

func decodeStoreHeader(buf []byte) (storeHeader, error) {
	if len(buf) < storeHeaderSize {
		return storeHeader{}, errors.New("metadata store file truncated: header")
	}
	h := storeHeader{
		Magic:       binary.LittleEndian.Uint32(buf[0:4]),
		Version:     binary.LittleEndian.Uint16(buf[4:6]),
		Compression: CompressAlgorithm(binary.LittleEndian.Uint16(buf[6:8])),
		EntryCount:  binary.LittleEndian.Uint32(buf[8:12]),
		Checksum:    binary.LittleEndian.Uint32(buf[12:16]),
	}
	if h.Magic != storeMagic {
		return storeHeader{}, errors.New("metadata store file has wrong magic number")
	}
	return h, nil
}

// recordPointer locates one storage's serialized metadata blob within
// the file: an offset and length into the body region.
type recordPointer struct {
	Offset uint32
	Length uint32
}

const recordPointerSize = 8

// MetadataStore persists a StorageRegistry's metadata to a single
// file: a storeHeader, an index holding one recordPointer per entry in
// entry order, and one compressed XML blob per live storage.
type MetadataStore struct {
	mu          sync.Mutex
	path        string
	file        *os.File
	compression CompressAlgorithm
}

// OpenMetadataStore opens (creating if necessary) the metadata store
// file at path, taking an advisory exclusive file lock within timeout.
func OpenMetadataStore(path string, compression CompressAlgorithm, timeout TimeoutMicros) (*MetadataStore, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "open metadata store file")
	}

	store := &MetadataStore{path: path, file: file, compression: compression}
	if err := waitFlock(file, timeout); err != nil {
		_ = file.Close()
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		_ = store.Close()
		return nil, errors.Wrap(err, "stat metadata store file")
	}
	if info.Size() == 0 {
		if err := store.writeEmpty(); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	return store, nil
}

func (s *MetadataStore) writeEmpty() error {
	header := storeHeader{Magic: storeMagic, Version: 1, Compression: s.compression, EntryCount: 0}
	if _, err := s.file.WriteAt(header.encode(), 0); err != nil {
		return errors.Wrap(err, "write empty metadata store header")
	}
	return s.file.Sync()
}

// Close releases the file lock and closes the underlying file.
func (s *MetadataStore) Close() error {
	if s.file == nil {
		return nil
	}
	if err := funlock(s.file); err != nil {
		log.WithError(err).Warn("funlock failed while closing metadata store")
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return errors.Wrap(err, "close metadata store file")
	}
	return nil
}

// Flush serializes every entry of ms to the store file: header, index,
// then each entry's compressed XML blob, in that order, fsync'd before
// returning. Each blob is one entry's XML document, compressed with the
// store's codec unless that is CompNone; the file as a whole is a binary
// container, not a single XML document.
func (s *MetadataStore) Flush(ms []StorageMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blobs := make([][]byte, len(ms))
	compressor := compressorFor(s.compression)
	for i, m := range ms {
		var buf bytes.Buffer
		if err := SaveMetadata(&buf, m); err != nil {
			return err
		}
		blob := buf.Bytes()
		if compressor != nil {
			blob = compressor(blob)
		}
		blobs[i] = blob
	}

	indexSize := recordPointerSize * len(ms)
	offset := uint32(storeHeaderSize + indexSize)
	index := make([]byte, indexSize)
	var body bytes.Buffer
	for i, blob := range blobs {
		rp := recordPointer{Offset: offset, Length: uint32(len(blob))}
		binary.LittleEndian.PutUint32(index[i*recordPointerSize:], rp.Offset)
		binary.LittleEndian.PutUint32(index[i*recordPointerSize+4:], rp.Length)
		body.Write(blob)
		offset += rp.Length
	}

	checksum := crc32.Checksum(append(append([]byte{}, index...), body.Bytes()...), crc32cTable)
	header := storeHeader{
		Magic:       storeMagic,
		Version:     1,
		Compression: s.compression,
		EntryCount:  uint32(len(ms)),
		Checksum:    checksum,
	}

	if err := s.file.Truncate(0); err != nil {
		return errors.Wrap(err, "truncate metadata store file")
	}
	if _, err := s.file.WriteAt(header.encode(), 0); err != nil {
		return errors.Wrap(err, "write metadata store header")
	}
	if _, err := s.file.WriteAt(index, storeHeaderSize); err != nil {
		return errors.Wrap(err, "write metadata store index")
	}
	if _, err := s.file.WriteAt(body.Bytes(), int64(storeHeaderSize+indexSize)); err != nil {
		return errors.Wrap(err, "write metadata store body")
	}
	return s.file.Sync()
}

// Load memory-maps the store file and parses every entry back into a
// StorageMetadata, verifying the index+body checksum before decoding
// anything.
func (s *MetadataStore) Load() ([]StorageMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.file.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat metadata store file")
	}
	size := info.Size()
	if size < storeHeaderSize {
		return nil, errors.New("metadata store file truncated")
	}

	mapped, err := unix.Mmap(int(s.file.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrap(err, "mmap metadata store file")
	}
	defer func() {
		_ = unix.Madvise(mapped, unix.MADV_DONTNEED)
		_ = unix.Munmap(mapped)
	}()

	header, err := decodeStoreHeader(mapped)
	if err != nil {
		return nil, err
	}

	indexSize := recordPointerSize * int(header.EntryCount)
	if storeHeaderSize+indexSize > len(mapped) {
		return nil, errors.New("metadata store index truncated")
	}
	index := mapped[storeHeaderSize : storeHeaderSize+indexSize]
	rest := mapped[storeHeaderSize+indexSize:]

	if crc32.Checksum(append(append([]byte{}, index...), rest...), crc32cTable) != header.Checksum {
		return nil, newStorageError(ErrCodePageChecksumMismatch, "metadata store checksum mismatch")
	}

	decompressor := decompressorFor(header.Compression)
	out := make([]StorageMetadata, 0, header.EntryCount)
	for i := uint32(0); i < header.EntryCount; i++ {
		rp := recordPointer{
			Offset: binary.LittleEndian.Uint32(index[i*recordPointerSize:]),
			Length: binary.LittleEndian.Uint32(index[i*recordPointerSize+4:]),
		}
		if int64(rp.Offset)+int64(rp.Length) > size {
			return nil, errors.New("metadata store record out of bounds")
		}
		blob := make([]byte, rp.Length)
		copy(blob, mapped[rp.Offset:int(rp.Offset)+int(rp.Length)])
		if decompressor != nil {
			var decErr error
			blob, decErr = decompressor(blob)
			if decErr != nil {
				return nil, errors.Wrap(decErr, "decompress metadata store record")
			}
		}
		m, err := LoadMetadata(bytes.NewReader(blob))
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// waitFlock acquires an exclusive advisory lock on file, spinning with
// short sleeps until it succeeds or timeout elapses.
func waitFlock(file *os.File, timeout TimeoutMicros) error {
	deadline := time.Now().Add(time.Duration(timeout) * time.Microsecond)
	for {
		err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return nil
		}
		if err != unix.EWOULDBLOCK && err != unix.EAGAIN {
			return errors.Wrap(err, "flock failed")
		}
		if timeout.IsConditional() {
			return newStorageError(ErrCodeTimeout, "metadata store lock timed out")
		}
		if !timeout.IsInfinite() && time.Now().After(deadline) {
			return newStorageError(ErrCodeTimeout, "metadata store lock timed out")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// funlock releases the advisory lock taken by waitFlock.
func funlock(file *os.File) error {
	return unix.Flock(int(file.Fd()), unix.LOCK_UN)
}
