package tunematch

import (
	"context"

	"github.com/himanishpuri/tunematch/pkg/models"
)

// Service is the embeddable catalog: ingestion, recognition and maintenance
// over one fingerprint store.
type Service interface {
	IngestDir(ctx context.Context, dir string) (*IngestReport, error)
	IngestFile(ctx context.Context, path string) (IngestOutcome, error)
	Recognize(ctx context.Context, fps []models.Fingerprint) (*models.Match, error)
	RecognizeFile(ctx context.Context, path string) (*models.Match, error)
	RecognizeSamples(ctx context.Context, samples []float64, sampleRate int) (*models.Match, error)
	GetSong(ctx context.Context, songID uint) (*models.Song, error)
	ListSongs(ctx context.Context) ([]models.Song, error)
	DeleteSong(ctx context.Context, songID uint) error
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// Store is the fingerprint index. Both storage.DBClient and
// storage.BadgerClient implement it.
type Store interface {
	EnsureSchema(ctx context.Context) error
	FindSongIDByFilename(ctx context.Context, filename string) (uint, bool, error)
	InsertSong(ctx context.Context, filename string) (uint, error)
	InsertFingerprintsBulk(ctx context.Context, songID uint, fps []models.Fingerprint) error
	LookupHashes(ctx context.Context, hashes []string) (map[string][]models.Hit, error)
	SongFilename(ctx context.Context, songID uint) (string, error)
	GetSong(ctx context.Context, songID uint) (*models.Song, error)
	ListSongs(ctx context.Context) ([]models.Song, error)
	DeleteSong(ctx context.Context, songID uint) error
	FingerprintCount(ctx context.Context, songID uint) (int64, error)
	Counts(ctx context.Context) (songs, fingerprints int64, err error)
	Close() error
}

// Extractor turns mono samples into fingerprints.
type Extractor interface {
	Extract(ctx context.Context, samples []float64, sampleRate int) ([]models.Fingerprint, error)
}

// Decoder turns an audio file into mono samples.
type Decoder interface {
	Decode(ctx context.Context, path string) ([]float64, int, error)
}

type ExtractorFunc func(ctx context.Context, samples []float64, sampleRate int) ([]models.Fingerprint, error)

func (f ExtractorFunc) Extract(ctx context.Context, samples []float64, sampleRate int) ([]models.Fingerprint, error) {
	return f(ctx, samples, sampleRate)
}

type DecoderFunc func(ctx context.Context, path string) ([]float64, int, error)

func (f DecoderFunc) Decode(ctx context.Context, path string) ([]float64, int, error) {
	return f(ctx, path)
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
