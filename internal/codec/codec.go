// Package codec encodes values persisted by the key/value stores: CBOR in
// core deterministic mode, zstd-compressed once the payload is large
// enough to benefit.
package codec

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

const (
	frameRaw  byte = 0x00
	frameZstd byte = 0x01

	// Payloads below this size are stored uncompressed.
	compressThreshold = 1024
)

var ErrEmpty = errors.New("codec: empty payload")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("codec: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v and prefixes a one-byte frame tag.
func Marshal(v any) ([]byte, error) {
	body, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cbor encode: %w", err)
	}
	if len(body) < compressThreshold {
		return append([]byte{frameRaw}, body...), nil
	}
	out := make([]byte, 1, len(body)/2+1)
	out[0] = frameZstd
	return zstdEncoder.EncodeAll(body, out), nil
}

// Unmarshal reverses Marshal. Callers treat any error as a cache miss.
func Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return ErrEmpty
	}
	body := data[1:]
	switch data[0] {
	case frameRaw:
	case frameZstd:
		var err error
		body, err = zstdDecoder.DecodeAll(body, nil)
		if err != nil {
			return fmt.Errorf("zstd decompress: %w", err)
		}
	default:
		return fmt.Errorf("codec: unknown frame tag 0x%02x", data[0])
	}
	if err := decMode.Unmarshal(body, v); err != nil {
		return fmt.Errorf("cbor decode: %w", err)
	}
	return nil
}
