package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/himanishpuri/tunematch/pkg/models"
	"github.com/himanishpuri/tunematch/pkg/tunematch/codec"
)

// Fingerprint limits for POST /api/match/fingerprints
const (
	// MaxFingerprintsSoftLimit is roughly half a minute of audio at the default rate
	MaxFingerprintsSoftLimit = 20000

	// MaxFingerprintsHardLimit is the absolute maximum allowed per request
	MaxFingerprintsHardLimit = 100000
)

// FingerprintDTO is one pre-computed fingerprint. Offset may be a JSON number
// or a numeric string.
type FingerprintDTO struct {
	Hash   string `json:"hash"`
	Offset any    `json:"offset"`
}

// MatchFingerprintsRequest is the request body for POST /api/match/fingerprints.
// Both {"fingerprints": [...]} and a bare array are accepted.
type MatchFingerprintsRequest struct {
	Fingerprints []FingerprintDTO `json:"fingerprints"`
}

func (r *MatchFingerprintsRequest) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		return dec.Decode(&r.Fingerprints)
	}
	var body struct {
		Fingerprints []FingerprintDTO `json:"fingerprints"`
	}
	if err := dec.Decode(&body); err != nil {
		return err
	}
	r.Fingerprints = body.Fingerprints
	return nil
}

// Validate checks the request size and converts it to fingerprints
func (r *MatchFingerprintsRequest) Validate() ([]models.Fingerprint, error) {
	if len(r.Fingerprints) == 0 {
		return nil, fmt.Errorf("fingerprints cannot be empty")
	}
	if len(r.Fingerprints) > MaxFingerprintsHardLimit {
		return nil, fmt.Errorf("too many fingerprints: %d (maximum: %d)", len(r.Fingerprints), MaxFingerprintsHardLimit)
	}

	fps := make([]models.Fingerprint, len(r.Fingerprints))
	for i, f := range r.Fingerprints {
		hash, err := codec.CanonicalHash(f.Hash)
		if err != nil {
			return nil, fmt.Errorf("fingerprint %d: %w", i, err)
		}
		offset, err := codec.DecodeOffset(f.Offset)
		if err != nil {
			return nil, fmt.Errorf("fingerprint %d: %w", i, err)
		}
		fps[i] = models.Fingerprint{Hash: hash, Offset: offset}
	}
	return fps, nil
}

// MatchResponse is returned by both match endpoints. Match is null when
// nothing in the catalog matched.
type MatchResponse struct {
	Matched bool      `json:"matched"`
	Match   *MatchDTO `json:"match"`
}

type MatchDTO struct {
	SongID        uint    `json:"song_id"`
	Filename      string  `json:"filename"`
	DisplayName   string  `json:"display_name"`
	Artist        string  `json:"artist,omitempty"`
	Title         string  `json:"title,omitempty"`
	Link          string  `json:"link,omitempty"`
	Votes         int     `json:"votes"`
	RunnerUp      int     `json:"runner_up"`
	Delta         int64   `json:"delta"`
	OffsetSeconds float64 `json:"offset_seconds"`
	QueryHashes   int     `json:"query_hashes"`
}

// IngestRequest is the request body for POST /api/ingest
type IngestRequest struct {
	Dir string `json:"dir"`
}

func (r *IngestRequest) Validate() error {
	if r.Dir == "" {
		return fmt.Errorf("dir is required")
	}
	return nil
}

type IngestResponse struct {
	Total        int      `json:"total"`
	Indexed      int      `json:"indexed"`
	Existing     int      `json:"existing"`
	Empty        int      `json:"empty"`
	Fingerprints int64    `json:"fingerprints"`
	Failures     []string `json:"failures"`
	Summary      string   `json:"summary"`
}

// SongDTO represents a song in API responses
type SongDTO struct {
	ID          uint   `json:"id"`
	Filename    string `json:"filename"`
	DisplayName string `json:"display_name"`
	Artist      string `json:"artist,omitempty"`
	Title       string `json:"title,omitempty"`
	Link        string `json:"link,omitempty"`
	Added       string `json:"added,omitempty"`
}

// ListSongsResponse is the response for GET /api/songs
type ListSongsResponse struct {
	Songs []SongDTO `json:"songs"`
	Count int       `json:"count"`
}

// DeleteSongResponse is the response for DELETE /api/songs/{id}
type DeleteSongResponse struct {
	Message string `json:"message"`
	ID      uint   `json:"id"`
}

// StatsResponse reports catalog size and server settings
type StatsResponse struct {
	Status       string `json:"status"`
	Backend      string `json:"backend"`
	DatabasePath string `json:"database_path"`
	Songs        int64  `json:"songs"`
	Fingerprints int64  `json:"fingerprints"`
	SampleRate   int    `json:"sample_rate"`
	Summary      string `json:"summary"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
