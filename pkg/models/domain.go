package models

import "time"

// Fingerprint is one (hash, offset) pair produced by an extractor.
// Offset is a frame index in the extractor's own units.
type Fingerprint struct {
	Hash   string `json:"hash"`
	Offset int64  `json:"offset"`
}

// Hit is one stored occurrence of a hash, as returned by a lookup.
type Hit struct {
	SongID uint  // Database ID of the owning song
	Offset int64 // Frame offset inside the owning song
}

// Song represents a song entry in the catalog.
type Song struct {
	ID        uint      // Database ID
	Filename  string    // Normalized filename, unique across the catalog
	CreatedAt time.Time // Zero when the backend does not record it
}

// Match is the verdict of a recognition call.
type Match struct {
	SongID      uint   // Database ID of the winning song
	Filename    string // Filename of the winning song
	Votes       int    // Size of the winning (song, delta) bucket
	Delta       int64  // dbOffset - queryOffset of the winning bucket
	RunnerUp    int    // Best bucket belonging to any other song, 0 if none
	QueryHashes int    // Distinct hashes in the query
}
