package tunematch

import (
	"context"
	"fmt"

	"github.com/himanishpuri/tunematch/pkg/models"
	"github.com/himanishpuri/tunematch/pkg/tunematch/matcher"
)

// Recognize returns the catalog song whose fingerprints line up with the
// query at a single consistent offset more often than any other. A nil match
// with a nil error means nothing in the catalog matched.
func (s *tuneService) Recognize(ctx context.Context, fps []models.Fingerprint) (*models.Match, error) {
	if len(fps) == 0 {
		return nil, nil
	}

	q, err := matcher.GroupByHash(fps)
	if err != nil {
		return nil, fmt.Errorf("grouping query: %w", err)
	}

	hits, err := s.store.LookupHashes(ctx, q.Hashes)
	if err != nil {
		return nil, fmt.Errorf("looking up %d hashes: %w", len(q.Hashes), err)
	}
	s.log.Debugf("Retrieved hits for %d/%d hashes", len(hits), len(q.Hashes))

	tally := matcher.NewTally()
	tally.AddHits(q, hits)

	best, runnerUp, ok := tally.Best()
	if !ok {
		s.log.Infof("No match among %d query hashes", len(q.Hashes))
		return nil, nil
	}

	filename, err := s.store.SongFilename(ctx, best.SongID)
	if err != nil {
		return nil, fmt.Errorf("resolving song %d: %w", best.SongID, err)
	}

	s.log.Infof("Best match: %s (song %d, %d votes at delta %d, runner-up %d)",
		filename, best.SongID, best.Votes, best.Delta, runnerUp)
	return &models.Match{
		SongID:      best.SongID,
		Filename:    filename,
		Votes:       best.Votes,
		Delta:       best.Delta,
		RunnerUp:    runnerUp,
		QueryHashes: len(q.Hashes),
	}, nil
}

// RecognizeSamples fingerprints a mono signal and recognizes it. An
// extraction failure is logged and reported as no match.
func (s *tuneService) RecognizeSamples(ctx context.Context, samples []float64, sampleRate int) (*models.Match, error) {
	fps, err := s.extractor.Extract(ctx, samples, sampleRate)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.log.Warnf("%v: %v", ErrExtractionFailure, err)
		return nil, nil
	}
	s.log.Debugf("Generated %d query fingerprints", len(fps))
	return s.Recognize(ctx, fps)
}

// RecognizeFile decodes an audio file and recognizes it.
func (s *tuneService) RecognizeFile(ctx context.Context, path string) (*models.Match, error) {
	s.log.Infof("Matching audio: %s", path)
	samples, rate, err := s.decoder.Decode(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return s.RecognizeSamples(ctx, samples, rate)
}
