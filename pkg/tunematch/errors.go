package tunematch

import (
	"errors"

	"github.com/himanishpuri/tunematch/pkg/tunematch/storage"
)

var (
	ErrDuplicateFilename = storage.ErrDuplicateFilename
	ErrUnknownSong       = storage.ErrUnknownSong
	ErrSongNotFound      = storage.ErrSongNotFound
	ErrStoreUnavailable  = storage.ErrStoreUnavailable

	// ErrExtractionFailure marks a file that could not be decoded or
	// fingerprinted, or that produced no fingerprints under EmptyError.
	ErrExtractionFailure = errors.New("fingerprint extraction failed")
)
