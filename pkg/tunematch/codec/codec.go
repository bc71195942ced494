// Package codec is the single place where hash tokens and frame offsets are
// converted between their storage representations and their canonical Go form.
//
// Storage engines do not agree on how an integer offset comes back from a
// query: SQLite hands out int64 for INTEGER cells, raw bytes for BLOB cells and
// strings for TEXT cells, and the key-value backend stores little-endian bytes.
// Everything above the storage layer only ever sees int64 offsets and string
// hashes.
package codec

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// OffsetWidth is the number of bytes EncodeOffset produces.
const OffsetWidth = 8

var (
	ErrUnsupportedType = errors.New("codec: unsupported representation")
	ErrInvalidOffset   = errors.New("codec: invalid offset")
	ErrInvalidHash     = errors.New("codec: invalid hash")
)

// DecodeOffset converts any representation an offset may take into an int64.
//
// Byte slices are read as little-endian two's-complement integers of 1 to 8
// bytes, which is how numpy-style integers end up in BLOB cells.
func DecodeOffset(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d overflows int64", ErrInvalidOffset, x)
		}
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d overflows int64", ErrInvalidOffset, x)
		}
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) || x >= math.MaxInt64 || x < math.MinInt64 {
			return 0, fmt.Errorf("%w: %v is not an integral int64", ErrInvalidOffset, x)
		}
		return int64(x), nil
	case []byte:
		return decodeLittleEndian(x)
	case string:
		return parseOffsetString(x)
	case json.Number:
		return parseOffsetString(x.String())
	case nil:
		return 0, fmt.Errorf("%w: NULL", ErrInvalidOffset)
	default:
		return 0, fmt.Errorf("%w: offset of type %T", ErrUnsupportedType, v)
	}
}

func parseOffsetString(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOffset, s)
	}
	return n, nil
}

func decodeLittleEndian(b []byte) (int64, error) {
	if len(b) == 0 || len(b) > OffsetWidth {
		return 0, fmt.Errorf("%w: %d byte blob", ErrInvalidOffset, len(b))
	}
	var buf [OffsetWidth]byte
	copy(buf[:], b)
	// sign-extend short blobs
	if b[len(b)-1]&0x80 != 0 {
		for i := len(b); i < OffsetWidth; i++ {
			buf[i] = 0xff
		}
	}
	return int64(binary.LittleEndian.Uint64(buf[:])), nil
}

// EncodeOffset returns the 8-byte little-endian form of an offset.
func EncodeOffset(off int64) []byte {
	b := make([]byte, OffsetWidth)
	binary.LittleEndian.PutUint64(b, uint64(off))
	return b
}

// CanonicalHash converts a textual or raw-byte hash token into its string form.
// Raw bytes must be valid UTF-8; anything else is rejected so that two
// encodings of the same token can never diverge as map keys.
func CanonicalHash(v any) (string, error) {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case []byte:
		if !utf8.Valid(x) {
			return "", fmt.Errorf("%w: non UTF-8 bytes", ErrInvalidHash)
		}
		s = string(x)
	case fmt.Stringer:
		s = x.String()
	case nil:
		return "", fmt.Errorf("%w: NULL", ErrInvalidHash)
	default:
		return "", fmt.Errorf("%w: hash of type %T", ErrUnsupportedType, v)
	}
	if s == "" {
		return "", fmt.Errorf("%w: empty token", ErrInvalidHash)
	}
	return s, nil
}
