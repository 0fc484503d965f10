package nodaldb

import (
	"bytes"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4"
)

// CompressAlgorithm selects the codec used to compress the metadata
// document blobs written by MetadataStore. Create-log entries are
// encoded without compression.
type CompressAlgorithm uint16

const (
	CompSnappy CompressAlgorithm = iota // default
	CompNone
	CompLz4
)

type Compressor func([]byte) []byte
type DeCompressor func([]byte) ([]byte, error)

var (
	SnappyCompress Compressor = func(in []byte) []byte {
		return snappy.Encode(nil, in)
	}
	SnappyDeCompress DeCompressor = func(in []byte) ([]byte, error) {
		return snappy.Decode(nil, in)
	}
)

var (
	Lz4Compress Compressor = func(in []byte) []byte {
		buf := &bytes.Buffer{}
		writer := lz4.NewWriter(buf)
		writer.NoChecksum = true
		if _, err := writer.Write(in); err != nil {
			panic(err)
		}
		_ = writer.Flush()
		_ = writer.Close()
		return buf.Bytes()
	}

	Lz4DeCompress DeCompressor = func(in []byte) ([]byte, error) {
		buf := &bytes.Buffer{}
		reader := lz4.NewReader(bytes.NewReader(in))
		_, err := buf.ReadFrom(reader)
		return buf.Bytes(), err
	}
)

// compressorFor and decompressorFor resolve a CompressAlgorithm to the
// codec functions above, or nil for CompNone.
func compressorFor(alg CompressAlgorithm) Compressor {
	switch alg {
	case CompSnappy:
		return SnappyCompress
	case CompLz4:
		return Lz4Compress
	default:
		return nil
	}
}

func decompressorFor(alg CompressAlgorithm) DeCompressor {
	switch alg {
	case CompSnappy:
		return SnappyDeCompress
	case CompLz4:
		return Lz4DeCompress
	default:
		return nil
	}
}
