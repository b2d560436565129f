package statdump

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/kpool"
	"github.com/hupe1980/kpool/internal/hash"
)

// Dump is a point-in-time snapshot of every pool in a registry.
type Dump struct {
	Taken time.Time     `json:"taken" yaml:"taken"`
	Host  string        `json:"host" yaml:"host"`
	Pools []kpool.Stats `json:"pools" yaml:"pools"`
}

// Compression selects how the JSON payload is stored.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZSTD
	CompressionLZ4
)

// String returns the name accepted by ParseCompression.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZSTD:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("Compression(%d)", c)
	}
}

// ParseCompression maps "none", "zstd" or "lz4" to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZSTD, nil
	case "lz4":
		return CompressionLZ4, nil
	}
	return 0, fmt.Errorf("statdump: unknown compression %q", s)
}

// Header layout: [magic 4][payload length uint32][CRC32C of payload uint32].
// The magic names the compression of the bytes that follow.
const headerSize = 12

// MaxPayloadSize bounds the decoded JSON payload. Decode rejects headers
// claiming more before allocating anything.
const MaxPayloadSize = 64 << 20

// lz4MaxRatio is the largest expansion an LZ4 block can encode.
const lz4MaxRatio = 255

var magics = [...][4]byte{
	CompressionNone: {'K', 'P', 'D', 'N'},
	CompressionZSTD: {'K', 'P', 'D', 'Z'},
	CompressionLZ4:  {'K', 'P', 'D', 'L'},
}

var (
	// ErrBadMagic is returned by Decode for data that is not a dump.
	ErrBadMagic = errors.New("statdump: bad magic")

	// ErrChecksum is returned by Decode when the payload checksum does not match.
	ErrChecksum = errors.New("statdump: checksum mismatch")
)

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
	dec, _ := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxPayloadSize))
	return dec
}

// Encode serializes d. Incompressible LZ4 payloads fall back to
// CompressionNone.
func Encode(d *Dump, c Compression) ([]byte, error) {
	payload, err := gojson.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("statdump: encode: %w", err)
	}
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("statdump: encode: payload of %d bytes exceeds %d", len(payload), MaxPayloadSize)
	}

	body := payload
	switch c {
	case CompressionNone:
	case CompressionZSTD:
		enc := getZstdEncoder()
		body = enc.EncodeAll(payload, nil)
		zstdEncoderPool.Put(enc)
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(payload)))
		n, err := lz4.CompressBlock(payload, buf, nil)
		if err != nil {
			return nil, fmt.Errorf("statdump: lz4: %w", err)
		}
		if n == 0 {
			c, body = CompressionNone, payload
		} else {
			body = buf[:n]
		}
	default:
		return nil, fmt.Errorf("statdump: unknown compression %d", c)
	}

	out := make([]byte, headerSize+len(body))
	copy(out, magics[c][:])
	binary.LittleEndian.PutUint32(out[4:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(out[8:], hash.CRC32C(payload))
	copy(out[headerSize:], body)
	return out, nil
}

// Decode parses data produced by Encode.
func Decode(data []byte) (*Dump, error) {
	if len(data) < headerSize {
		return nil, ErrBadMagic
	}

	c := Compression(len(magics))
	for i, m := range magics {
		if [4]byte(data[:4]) == m {
			c = Compression(i)
		}
	}
	size := binary.LittleEndian.Uint32(data[4:])
	sum := binary.LittleEndian.Uint32(data[8:])
	body := data[headerSize:]

	if size > MaxPayloadSize {
		return nil, fmt.Errorf("%w: payload length %d exceeds %d", ErrChecksum, size, MaxPayloadSize)
	}

	var payload []byte
	switch c {
	case CompressionNone:
		payload = body
	case CompressionZSTD:
		dec := getZstdDecoder()
		out, err := dec.DecodeAll(body, make([]byte, 0, size))
		zstdDecoderPool.Put(dec)
		if err != nil {
			return nil, fmt.Errorf("statdump: zstd: %w", err)
		}
		payload = out
	case CompressionLZ4:
		if uint64(size) > lz4MaxRatio*uint64(len(body)) {
			return nil, fmt.Errorf("%w: payload length %d for %d lz4 bytes", ErrChecksum, size, len(body))
		}
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("statdump: lz4: %w", err)
		}
		payload = out[:n]
	default:
		return nil, ErrBadMagic
	}

	if uint32(len(payload)) != size || hash.CRC32C(payload) != sum {
		return nil, ErrChecksum
	}

	var d Dump
	if err := gojson.Unmarshal(payload, &d); err != nil {
		return nil, fmt.Errorf("statdump: decode: %w", err)
	}
	return &d, nil
}
