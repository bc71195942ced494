// Package tunematch is the embeddable fingerprint catalog: it indexes audio
// files into a fingerprint store and recognizes clips against it by
// offset-consistency voting.
package tunematch

import (
	"context"
	"fmt"

	"github.com/himanishpuri/tunematch/pkg/logger"
	"github.com/himanishpuri/tunematch/pkg/models"
	"github.com/himanishpuri/tunematch/pkg/tunematch/audio"
	"github.com/himanishpuri/tunematch/pkg/tunematch/fingerprint"
)

// tuneService is the default implementation of the Service interface.
type tuneService struct {
	store     Store
	log       Logger
	config    *Config
	decoder   Decoder
	extractor Extractor
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	store := cfg.Store
	if store == nil {
		var err error
		store, err = OpenStore(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
	} else if err := store.EnsureSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to prepare store: %w", err)
	}

	if cfg.Decoder == nil {
		cfg.Decoder = audio.NewDecoder(cfg.TempDir, cfg.SampleRate)
	}
	if cfg.Extractor == nil {
		cfg.Extractor = fingerprint.NewExtractor()
	}

	return &tuneService{
		store:     store,
		log:       cfg.Logger,
		config:    cfg,
		decoder:   cfg.Decoder,
		extractor: cfg.Extractor,
	}, nil
}

func (s *tuneService) GetSong(ctx context.Context, songID uint) (*models.Song, error) {
	return s.store.GetSong(ctx, songID)
}

func (s *tuneService) ListSongs(ctx context.Context) ([]models.Song, error) {
	return s.store.ListSongs(ctx)
}

// DeleteSong removes a song and all its fingerprints from the catalog.
func (s *tuneService) DeleteSong(ctx context.Context, songID uint) error {
	if err := s.store.DeleteSong(ctx, songID); err != nil {
		return err
	}
	s.log.Infof("Deleted song ID=%d", songID)
	return nil
}

func (s *tuneService) Stats(ctx context.Context) (*Stats, error) {
	songs, fps, err := s.store.Counts(ctx)
	if err != nil {
		return nil, err
	}
	backend := s.config.Backend
	if s.config.Store != nil {
		backend = fmt.Sprintf("%T", s.config.Store)
	}
	return &Stats{Songs: songs, Fingerprints: fps, Backend: backend}, nil
}

// Close releases the store.
func (s *tuneService) Close() error {
	return s.store.Close()
}
