package codec

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestDecodeOffsetRepresentations(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want int64
	}{
		{"int64", int64(42), 42},
		{"int", 42, 42},
		{"uint32", uint32(42), 42},
		{"float64 integral", float64(42), 42},
		{"float64 min int64", float64(math.MinInt64), math.MinInt64},
		{"float64 below 2^63", math.Nextafter(math.Exp2(63), 0), 1<<63 - 1024},
		{"string", "42", 42},
		{"string with spaces", " 42 ", 42},
		{"negative string", "-7", -7},
		{"json number", json.Number("42"), 42},
		{"8 byte blob", []byte{42, 0, 0, 0, 0, 0, 0, 0}, 42},
		{"4 byte blob", []byte{42, 0, 0, 0}, 42},
		{"1 byte blob", []byte{42}, 42},
		{"negative 8 byte blob", []byte{0xf9, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, -7},
		{"negative 2 byte blob", []byte{0xf9, 0xff}, -7},
		{"multi byte blob", []byte{0x10, 0x27, 0, 0}, 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeOffset(tt.in)
			if err != nil {
				t.Fatalf("DecodeOffset(%v) returned error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("DecodeOffset(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecodeOffsetRejects(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want error
	}{
		{"nil", nil, ErrInvalidOffset},
		{"empty blob", []byte{}, ErrInvalidOffset},
		{"oversized blob", make([]byte, 9), ErrInvalidOffset},
		{"fractional float", 1.5, ErrInvalidOffset},
		{"float 2^63", math.Exp2(63), ErrInvalidOffset},
		{"float max int64", float64(math.MaxInt64), ErrInvalidOffset},
		{"float below min int64", -math.Exp2(64), ErrInvalidOffset},
		{"infinite float", math.Inf(1), ErrInvalidOffset},
		{"garbage string", "ten", ErrInvalidOffset},
		{"bool", true, ErrUnsupportedType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeOffset(tt.in)
			if !errors.Is(err, tt.want) {
				t.Errorf("DecodeOffset(%v) error = %v, want %v", tt.in, err, tt.want)
			}
		})
	}
}

func TestEncodeOffsetRoundTrip(t *testing.T) {
	for _, off := range []int64{0, 1, 255, 256, 1 << 40, -1, -12345} {
		got, err := DecodeOffset(EncodeOffset(off))
		if err != nil {
			t.Fatalf("decode of encoded %d failed: %v", off, err)
		}
		if got != off {
			t.Errorf("round trip of %d gave %d", off, got)
		}
	}
}

func TestCanonicalHash(t *testing.T) {
	fromString, err := CanonicalHash("a1b2c3")
	if err != nil {
		t.Fatalf("string hash: %v", err)
	}
	fromBytes, err := CanonicalHash([]byte("a1b2c3"))
	if err != nil {
		t.Fatalf("byte hash: %v", err)
	}
	if fromString != fromBytes {
		t.Errorf("encodings diverged: %q vs %q", fromString, fromBytes)
	}

	if _, err := CanonicalHash(""); !errors.Is(err, ErrInvalidHash) {
		t.Errorf("expected ErrInvalidHash for empty token, got %v", err)
	}
	if _, err := CanonicalHash([]byte{0xff, 0xfe}); !errors.Is(err, ErrInvalidHash) {
		t.Errorf("expected ErrInvalidHash for invalid UTF-8, got %v", err)
	}
	if _, err := CanonicalHash(12); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("expected ErrUnsupportedType for int, got %v", err)
	}
}
