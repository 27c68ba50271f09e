// Package codec implements the persisted payload envelope for TabVault.
package codec

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	// CompressionThreshold is the serialized length in characters beyond
	// which a payload is compressed before storage.
	CompressionThreshold = 50 * 1024

	// BytesPerChar estimates the stored cost of one payload character.
	BytesPerChar = 2
)

// Codec errors. Services map these onto the domain taxonomy; the codec
// itself stays below the domain layer.
var (
	// ErrCorruptData indicates a payload that cannot be decoded.
	ErrCorruptData = errors.New("codec: corrupt payload data")
)

// Payload is the persisted envelope for a single value.
type Payload struct {
	// Compressed reports whether Data holds base64-armored gzip output
	// rather than plain JSON text.
	Compressed bool `json:"compressed"`

	// Data is the serialized value.
	Data string `json:"data"`
}

// Serialize encodes v as JSON, compressing the result when it exceeds
// CompressionThreshold characters.
func Serialize(v any) (Payload, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Payload{}, fmt.Errorf("codec: marshal: %w", err)
	}

	if len(raw) <= CompressionThreshold {
		return Payload{Data: string(raw)}, nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return Payload{}, fmt.Errorf("codec: compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return Payload{}, fmt.Errorf("codec: compress: %w", err)
	}

	return Payload{
		Compressed: true,
		Data:       base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// Deserialize decodes a payload into v, reversing whatever form
// Serialize produced. Corrupt base64, gzip, or JSON input yields
// ErrCorruptData with the cause attached.
func Deserialize(p Payload, v any) error {
	raw, err := decodeRaw(p)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: invalid json: %w", ErrCorruptData, err)
	}
	return nil
}

// decodeRaw recovers the JSON text from a payload.
func decodeRaw(p Payload) ([]byte, error) {
	if !p.Compressed {
		if p.Data == "" {
			return nil, fmt.Errorf("%w: empty payload", ErrCorruptData)
		}
		return []byte(p.Data), nil
	}

	packed, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %w", ErrCorruptData, err)
	}

	zr, err := gzip.NewReader(bytes.NewReader(packed))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid gzip stream: %w", ErrCorruptData, err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress: %w", ErrCorruptData, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty decompressed payload", ErrCorruptData)
	}
	return raw, nil
}

// EstimateSize approximates the stored byte cost of a payload at
// BytesPerChar bytes per character of Data.
func EstimateSize(p Payload) int {
	return len(p.Data) * BytesPerChar
}

// Marshal serializes v and encodes the envelope itself for storage.
func Marshal(v any) ([]byte, error) {
	p, err := Serialize(v)
	if err != nil {
		return nil, err
	}
	return EncodePayload(p)
}

// EncodePayload renders an already-built envelope for storage.
func EncodePayload(p Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal envelope: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a stored envelope and deserializes its value into v.
func Unmarshal(data []byte, v any) error {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("%w: invalid envelope: %w", ErrCorruptData, err)
	}
	return Deserialize(p, v)
}
