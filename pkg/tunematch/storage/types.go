package storage

import (
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/himanishpuri/tunematch/pkg/tunematch/codec"
)

const (
	// MaxParams is the bound-parameter ceiling assumed for one statement.
	MaxParams = 900
	// DefaultLookupBatchSize is the number of hashes per IN (...) lookup.
	DefaultLookupBatchSize = MaxParams
	// DefaultInsertBatchSize is the number of fingerprint rows per INSERT;
	// every row binds three parameters.
	DefaultInsertBatchSize = MaxParams / 3
)

var (
	ErrDuplicateFilename = errors.New("song filename already indexed")
	ErrUnknownSong       = errors.New("song does not exist")
	ErrSongNotFound      = errors.New("song not found")
	ErrStoreUnavailable  = errors.New("fingerprint store unavailable")
)

const errDBClientNil = "db client is nil"

// Options tunes batching for either backend. Zero values fall back to defaults.
type Options struct {
	LookupBatchSize int
	InsertBatchSize int
}

func (o Options) withDefaults() Options {
	if o.LookupBatchSize <= 0 {
		o.LookupBatchSize = DefaultLookupBatchSize
	}
	if o.InsertBatchSize <= 0 {
		o.InsertBatchSize = DefaultInsertBatchSize
	}
	return o
}

// Hash is the column type of fingerprints.hash. Values scanned from the
// database are canonicalized whether the driver returns TEXT or BLOB.
type Hash string

func (h *Hash) Scan(src any) error {
	s, err := codec.CanonicalHash(src)
	if err != nil {
		return fmt.Errorf("scanning hash: %w", err)
	}
	*h = Hash(s)
	return nil
}

func (h Hash) Value() (driver.Value, error) {
	return string(h), nil
}

// Offset is the column type of fingerprints.offset. Rows written by older
// tools may hold the offset as an INTEGER, a little-endian BLOB or a numeric
// TEXT cell; all of them scan to the same integer.
type Offset int64

func (o *Offset) Scan(src any) error {
	n, err := codec.DecodeOffset(src)
	if err != nil {
		return fmt.Errorf("scanning offset: %w", err)
	}
	*o = Offset(n)
	return nil
}

func (o Offset) Value() (driver.Value, error) {
	return int64(o), nil
}

// dedupe returns the distinct hashes in first-seen order.
func dedupe(hashes []string) []string {
	seen := make(map[string]struct{}, len(hashes))
	out := make([]string, 0, len(hashes))
	for _, h := range hashes {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}

// chunk splits s into consecutive slices of at most size elements.
func chunk[T any](s []T, size int) [][]T {
	if size <= 0 {
		size = len(s)
	}
	var out [][]T
	for start := 0; start < len(s); start += size {
		end := min(start+size, len(s))
		out = append(out, s[start:end])
	}
	return out
}
