package audio

import (
	"encoding/binary"
	"fmt"
)

// pcm16Scale maps the int16 range onto [-1.0, 1.0).
const pcm16Scale = 32768.0

// DecodeError reports raw window bytes that cannot be decoded as mono int16
// PCM. It is fatal to the connection that produced the bytes.
type DecodeError struct {
	// Len is the number of bytes that were offered.
	Len int

	// Want is the expected window length in bytes, or 0 when only sample
	// alignment was checked.
	Want int
}

func (e *DecodeError) Error() string {
	if e.Want > 0 {
		return fmt.Sprintf("audio: decode window: got %d bytes, want %d", e.Len, e.Want)
	}
	return fmt.Sprintf("audio: decode pcm16: %d bytes is not a multiple of %d", e.Len, BytesPerSample)
}

// DecodePCM16 interprets raw as little-endian signed 16-bit mono samples and
// normalises each one to float32 by dividing by 32768. It returns a
// *[DecodeError] when len(raw) is odd.
func DecodePCM16(raw []byte) ([]float32, error) {
	if len(raw)%BytesPerSample != 0 {
		return nil, &DecodeError{Len: len(raw)}
	}
	out := make([]float32, len(raw)/BytesPerSample)
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(raw[i*BytesPerSample:]))
		out[i] = float32(s) / pcm16Scale
	}
	return out, nil
}

// EncodePCM16 packs int16 samples as little-endian bytes. It is the inverse of
// the byte layout accepted by [DecodePCM16].
func EncodePCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(s))
	}
	return out
}
