package nodaldb

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// KVFlag marks which optional transforms were applied to a KVPair's
// encoded key/value.
type KVFlag uint8

// minKVSize = flag + keyLen + key + valueLen + value, smallest case.
const minKVSize = 5

const (
	KVKeyPrefixed KVFlag = 1 << iota
	KVKeyCompressed
	KVValueCompressed
)

// KVPair is a prefix-compressible, optionally-compressed key/value
// pair. Originally the on-page record format; reused here unchanged as
// the wire format for create-log entries written to the external log
// buffer by StorageRegistry.Create.
type KVPair struct {
	Key   []byte
	Value []byte
}

// Marshal encodes kv relative to prevKey (for prefix compression) and
// an optional compressor applied independently to the key suffix and
// the value, whichever side shrinks.
func (kv KVPair) Marshal(prevKey []byte, compressor Compressor) []byte {
	var flag KVFlag
	var prefixed bool
	prefixLen := getCommonPrefix(prevKey, kv.Key)
	if prefixLen > 0 {
		prefixed = true
		flag |= KVKeyPrefixed
	}
	key := kv.Key[prefixLen:]
	value := kv.Value
	if compressor != nil {
		if keyC := compressor(key); len(keyC) < len(key) {
			key = keyC
			flag |= KVKeyCompressed
		}
		if valueC := compressor(value); len(valueC) < len(value) {
			value = valueC
			flag |= KVValueCompressed
		}
	}

	kLenBuf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(kLenBuf, uint64(len(key)))
	keyLen := kLenBuf[:n]

	vLenBuf := make([]byte, binary.MaxVarintLen64)
	n = binary.PutUvarint(vLenBuf, uint64(len(value)))
	valLen := vLenBuf[:n]

	buf := bytes.NewBuffer(nil)
	buf.WriteByte(byte(flag))
	if prefixed {
		buf.WriteByte(prefixLen)
	}
	buf.Write(keyLen)
	buf.Write(key)
	buf.Write(valLen)
	buf.Write(value)
	return buf.Bytes()
}

// Unmarshal decodes data, produced by Marshal with the same prevKey and
// a matching decompressor.
func (kv *KVPair) Unmarshal(data, prevKey []byte, decompressor DeCompressor) error {
	if data == nil {
		return errors.New("empty KV data")
	}
	if len(data) < minKVSize {
		return errors.New("KV data shorter than the minimum flag+keyLen+key+valueLen+value shape")
	}
	reader := bytes.NewReader(data)

	var prefix, key, val []byte
	flagByte, _ := reader.ReadByte()
	flag := KVFlag(flagByte)
	if flag&KVKeyPrefixed != 0 {
		prefixedLenByte, _ := reader.ReadByte()
		prefixedLen := int(prefixedLenByte)
		if len(prevKey) < prefixedLen {
			return errors.New("prefixed key length exceeds previous key")
		}
		prefix = prevKey[:prefixedLen]
	}
	if decompressor == nil && (flag&KVKeyCompressed != 0 || flag&KVValueCompressed != 0) {
		return errors.New("key or value is compressed but no decompressor was given")
	}

	kLen, err := binary.ReadUvarint(reader)
	if err != nil {
		return errors.Wrap(err, "read key length")
	}
	key = make([]byte, kLen)
	if _, err := reader.Read(key); err != nil {
		return errors.Wrap(err, "read key")
	}

	vLen, err := binary.ReadUvarint(reader)
	if err != nil {
		return errors.Wrap(err, "read value length")
	}
	val = make([]byte, vLen)
	if _, err := reader.Read(val); err != nil {
		return errors.Wrap(err, "read value")
	}

	if flag&KVKeyCompressed != 0 {
		if key, err = decompressor(key); err != nil {
			return errors.Wrap(err, "decompress key")
		}
	}
	if flag&KVValueCompressed != 0 {
		if val, err = decompressor(val); err != nil {
			return errors.Wrap(err, "decompress value")
		}
	}
	kv.Key = append(prefix, key...)
	kv.Value = val
	return nil
}

func getCommonPrefix(a, b []byte) (length uint8) {
	if a == nil || b == nil {
		return
	}
	for i, v := range b {
		if i >= len(a) || v != a[i] {
			return
		}
		length++
		if length >= 255 {
			return
		}
	}
	return
}

// encodeCreateLogEntry builds the wire bytes StorageRegistry.Create
// writes to the thread-local log buffer: a KVPair whose key is the
// storage id (big-endian, so log entries naturally sort by id) and
// whose value is the type tag followed by the name. No
// prefix-compression base (create log entries are sparse, one per
// storage, not worth prefixing against each other) and no compression
// (entries are tiny; snappy/lz4 framing overhead would dominate).
func encodeCreateLogEntry(common Metadata) ([]byte, error) {
	key := make([]byte, 4)
	binary.BigEndian.PutUint32(key, uint32(common.Id))

	value := make([]byte, 1+len(common.Name))
	value[0] = byte(common.Type)
	copy(value[1:], common.Name)

	kv := KVPair{Key: key, Value: value}
	return kv.Marshal(nil, nil), nil
}

// decodeCreateLogEntry is the inverse of encodeCreateLogEntry, used by
// log replay to recover (id, type, name) for a create-log entry.
func decodeCreateLogEntry(entry []byte) (id StorageId, storageType StorageType, name string, err error) {
	var kv KVPair
	if err = kv.Unmarshal(entry, nil, nil); err != nil {
		return 0, 0, "", err
	}
	if len(kv.Key) != 4 {
		return 0, 0, "", errors.New("create-log entry key must be 4 bytes")
	}
	if len(kv.Value) < 1 {
		return 0, 0, "", errors.New("create-log entry value must carry at least a type tag")
	}
	id = StorageId(binary.BigEndian.Uint32(kv.Key))
	storageType = StorageType(kv.Value[0])
	name = string(kv.Value[1:])
	return id, storageType, name, nil
}
