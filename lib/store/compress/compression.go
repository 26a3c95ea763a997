package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm selects how values are compressed at rest.
type Algorithm uint8

const (
	// None stores values unchanged (still framed with a header).
	None Algorithm = 0
	// LZ4 uses lz4 block compression (fast, moderate ratio).
	LZ4 Algorithm = 1
	// ZSTD uses zstd (slower, better ratio).
	ZSTD Algorithm = 2
)

func (a Algorithm) String() string {
	switch a {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	}
	return fmt.Sprintf("Algorithm(%d)", uint8(a))
}

// ParseAlgorithm maps "none", "lz4" and "zstd" (case insensitive) to an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return ZSTD, nil
	}
	return None, fmt.Errorf("unknown compression %q (expected none, lz4 or zstd)", s)
}

// zstd encoders and decoders are expensive to create, keep them pooled
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Frame layout: [algorithm uint8][uncompressed size uint32 LE][payload].
// The algorithm recorded per value wins over the store's configured one, so
// a store can be reopened with a different setting.
const headerSize = 5

// maxRatio is the compressed/raw size above which the value is kept raw.
const maxRatio = 0.9

var errShortFrame = errors.New("value too short for compression header")

// compressValue frames data, compressing it with algo when that saves space.
func compressValue(data []byte, algo Algorithm) ([]byte, error) {
	var (
		payload []byte
		err     error
	)
	switch algo {
	case LZ4:
		payload, err = compressLZ4(data)
	case ZSTD:
		enc := getZstdEncoder()
		payload = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	}
	if err != nil {
		return nil, err
	}

	if payload == nil || float64(len(payload)) > float64(len(data))*maxRatio {
		algo, payload = None, data
	}
	out := make([]byte, headerSize+len(payload))
	out[0] = byte(algo)
	binary.LittleEndian.PutUint32(out[1:], uint32(len(data)))
	copy(out[headerSize:], payload)
	return out, nil
}

func compressLZ4(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	buf := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, buf, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil // incompressible
	}
	return buf[:n], nil
}

// decompressValue reverses compressValue.
func decompressValue(frame []byte) ([]byte, error) {
	if len(frame) < headerSize {
		return nil, errShortFrame
	}
	algo := Algorithm(frame[0])
	size := binary.LittleEndian.Uint32(frame[1:])
	payload := frame[headerSize:]

	switch algo {
	case None:
		if uint32(len(payload)) != size {
			return nil, fmt.Errorf("raw value has %d bytes, header says %d", len(payload), size)
		}
		return payload, nil
	case LZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, err
		}
		if uint32(n) != size {
			return nil, errors.New("decompressed size mismatch")
		}
		return out, nil
	case ZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(payload, make([]byte, 0, size))
		if err != nil {
			return nil, err
		}
		if uint32(len(out)) != size {
			return nil, errors.New("decompressed size mismatch")
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown compression algorithm %d", algo)
}
