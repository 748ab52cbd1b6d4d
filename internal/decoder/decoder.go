// Package decoder turns raw transport payloads into spectrum samples and
// status documents.
package decoder

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrDecode is matched by every DecodeError via errors.Is.
var ErrDecode = errors.New("decode failed")

// Kind names the payload a DecodeError was raised for.
type Kind string

const (
	KindSpectrum Kind = "spectrum"
	KindStatus   Kind = "status"
)

// DecodeError reports a malformed frame or message.
type DecodeError struct {
	Kind Kind
	Len  int // payload size in bytes
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s payload (%d bytes): %v", e.Kind, e.Len, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrDecode) match any DecodeError.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

const float32Size = 4

// DecodeSpectrum interprets raw as contiguous little-endian float32 values.
// There is no header; the bin count is len(raw)/4.
func DecodeSpectrum(raw []byte) ([]float32, error) {
	if len(raw) == 0 {
		return nil, &DecodeError{Kind: KindSpectrum, Err: errors.New("empty frame")}
	}
	if len(raw)%float32Size != 0 {
		return nil, &DecodeError{
			Kind: KindSpectrum,
			Len:  len(raw),
			Err:  fmt.Errorf("length is not a multiple of %d", float32Size),
		}
	}

	out := make([]float32, len(raw)/float32Size)
	for i := range out {
		bits := binary.LittleEndian.Uint32(raw[i*float32Size:])
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}

// EncodeSpectrum is the inverse of DecodeSpectrum.
func EncodeSpectrum(values []float32) []byte {
	out := make([]byte, len(values)*float32Size)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*float32Size:], math.Float32bits(v))
	}
	return out
}

// DecodeStatus parses a UTF-8 JSON object. Numbers decode as float64.
func DecodeStatus(raw []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, &DecodeError{Kind: KindStatus, Err: errors.New("empty message")}
	}
	if trimmed[0] != '{' {
		return nil, &DecodeError{Kind: KindStatus, Len: len(raw), Err: errors.New("not a JSON object")}
	}

	var doc map[string]any
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, &DecodeError{Kind: KindStatus, Len: len(raw), Err: err}
	}
	return doc, nil
}
