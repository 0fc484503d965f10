package nodaldb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKVPairMarshalUnmarshalPlain(t *testing.T) {
	prev := []byte("key")
	kv := KVPair{Key: []byte("keykeykeykey"), Value: []byte("valuevaluevaluevaluevaluevalue")}

	data := kv.Marshal(prev, nil)

	var got KVPair
	require.NoError(t, got.Unmarshal(data, prev, nil))
	assert.Equal(t, kv.Key, got.Key)
	assert.Equal(t, kv.Value, got.Value)
}

func TestKVPairMarshalUnmarshalSnappy(t *testing.T) {
	prev := []byte("key")
	kv := KVPair{Key: []byte("keykeykeykey"), Value: []byte("valuevaluevaluevaluevaluevalue")}

	data := kv.Marshal(prev, SnappyCompress)

	var got KVPair
	require.NoError(t, got.Unmarshal(data, prev, SnappyDeCompress))
	assert.Equal(t, kv.Key, got.Key)
	assert.Equal(t, kv.Value, got.Value)
}

func TestKVPairMarshalUnmarshalLz4(t *testing.T) {
	prev := []byte("key")
	kv := KVPair{Key: []byte("keykeykeykey"), Value: []byte("valuevaluevaluevaluevaluevalue")}

	data := kv.Marshal(prev, Lz4Compress)

	var got KVPair
	require.NoError(t, got.Unmarshal(data, prev, Lz4DeCompress))
	assert.Equal(t, kv.Key, got.Key)
	assert.Equal(t, kv.Value, got.Value)
}

func TestGetCommonPrefix(t *testing.T) {
	assert.EqualValues(t, 0, getCommonPrefix(nil, nil))
	assert.EqualValues(t, 0, getCommonPrefix([]byte("abcde"), nil))
	assert.EqualValues(t, 0, getCommonPrefix(nil, []byte("abcde")))
	assert.EqualValues(t, 5, getCommonPrefix([]byte("abcde"), []byte("abcdefg")))
	assert.EqualValues(t, 5, getCommonPrefix([]byte("abcdefg"), []byte("abcde")))
}

func TestCreateLogEntryRoundTrip(t *testing.T) {
	common := Metadata{Id: 42, Type: PageTypeArray, Name: "ledger"}
	entry, err := encodeCreateLogEntry(common)
	require.NoError(t, err)

	id, storageType, name, err := decodeCreateLogEntry(entry)
	require.NoError(t, err)
	assert.Equal(t, common.Id, id)
	assert.Equal(t, common.Type, storageType)
	assert.Equal(t, common.Name, name)
}
