package tunematch

import (
	"context"
	"errors"
	"fmt"

	"github.com/himanishpuri/tunematch/pkg/models"
	"github.com/himanishpuri/tunematch/pkg/utils"
	"golang.org/x/sync/errgroup"
)

// preparedFile is a file that has been decoded and fingerprinted but not written.
type preparedFile struct {
	path    string
	name    string
	fps     []models.Fingerprint
	outcome IngestOutcome
	err     error
}

// IngestDir indexes every audio file under dir that is not yet in the catalog.
// Per-file failures are logged and collected in the report; only cancellation
// or a store that cannot be reached up front aborts the run.
func (s *tuneService) IngestDir(ctx context.Context, dir string) (*IngestReport, error) {
	files, err := utils.ListAudioFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("listing audio files: %w", err)
	}
	if err := s.store.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	report := &IngestReport{Total: len(files)}
	s.log.Infof("Found %d audio files in %s", len(files), dir)

	g, gctx := errgroup.WithContext(ctx)
	paths := make(chan string)
	prepared := make(chan preparedFile)

	g.Go(func() error {
		defer close(paths)
		for _, f := range files {
			select {
			case paths <- f:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var workers errgroup.Group
	for w := 0; w < s.config.Workers; w++ {
		workers.Go(func() error {
			for path := range paths {
				p := s.prepare(gctx, path)
				select {
				case prepared <- p:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		err := workers.Wait()
		close(prepared)
		return err
	})

	// single writer: every store mutation happens on this goroutine
	done := 0
	for p := range prepared {
		if gctx.Err() != nil {
			continue
		}
		ev := s.commit(gctx, p)
		done++
		ev.Index, ev.Total = done, len(files)
		report.add(ev)
		if s.config.Progress != nil {
			s.config.Progress(ev)
		}
	}

	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("ingestion interrupted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("ingestion interrupted: %w", err)
	}

	s.log.Infof("Ingestion done: %d indexed, %d existing, %d empty, %d failed",
		report.Indexed, report.Existing, report.Empty, len(report.Failures))
	return report, nil
}

// IngestFile indexes a single file.
func (s *tuneService) IngestFile(ctx context.Context, path string) (IngestOutcome, error) {
	ev := s.commit(ctx, s.prepare(ctx, path))
	if s.config.Progress != nil {
		ev.Index, ev.Total = 1, 1
		s.config.Progress(ev)
	}
	return ev.Outcome, ev.Err
}

// prepare decodes and fingerprints a file. It only reads from the store.
func (s *tuneService) prepare(ctx context.Context, path string) preparedFile {
	p := preparedFile{path: path, name: utils.NormalizeFilename(path)}
	if p.name == "" || p.name == "." {
		p.outcome, p.err = OutcomeFailed, fmt.Errorf("empty filename for %q", path)
		return p
	}

	if _, found, err := s.store.FindSongIDByFilename(ctx, p.name); err != nil {
		p.outcome, p.err = OutcomeFailed, err
		return p
	} else if found {
		p.outcome = OutcomeExisting
		return p
	}

	samples, rate, err := s.decoder.Decode(ctx, path)
	if err != nil {
		p.outcome, p.err = OutcomeFailed, fmt.Errorf("%w: decoding: %v", ErrExtractionFailure, err)
		return p
	}
	fps, err := s.extractor.Extract(ctx, samples, rate)
	if err != nil {
		p.outcome, p.err = OutcomeFailed, fmt.Errorf("%w: %v", ErrExtractionFailure, err)
		return p
	}

	if len(fps) == 0 {
		if s.config.EmptyPolicy == EmptyError {
			p.outcome, p.err = OutcomeFailed, fmt.Errorf("%w: no fingerprints", ErrExtractionFailure)
		} else {
			p.outcome = OutcomeEmpty
		}
		return p
	}

	p.fps = fps
	p.outcome = OutcomeIndexed
	return p
}

// commit writes a prepared file. A song is only ever left behind together
// with all of its fingerprints.
func (s *tuneService) commit(ctx context.Context, p preparedFile) IngestEvent {
	ev := IngestEvent{Path: p.path, Outcome: p.outcome, Err: p.err}

	switch p.outcome {
	case OutcomeExisting:
		s.log.Infof("Already fingerprinted: %s", p.name)
		return ev
	case OutcomeEmpty:
		s.log.Warnf("No fingerprints extracted, skipping: %s", p.name)
		return ev
	case OutcomeFailed:
		s.log.Errorf("Error processing %s: %v", p.path, p.err)
		return ev
	}

	songID, err := s.store.InsertSong(ctx, p.name)
	if errors.Is(err, ErrDuplicateFilename) {
		s.log.Infof("Already fingerprinted: %s", p.name)
		ev.Outcome = OutcomeExisting
		return ev
	}
	if err != nil {
		return s.failed(ev, fmt.Errorf("failed to register song: %w", err))
	}

	if err := s.store.InsertFingerprintsBulk(ctx, songID, p.fps); err != nil {
		// Rollback
		if delErr := s.store.DeleteSong(context.WithoutCancel(ctx), songID); delErr != nil {
			s.log.Errorf("Rollback of song %d failed: %v", songID, delErr)
		}
		return s.failed(ev, fmt.Errorf("failed to store fingerprints: %w", err))
	}

	s.log.Infof("Indexed %s as song ID=%d (%d fingerprints)", p.name, songID, len(p.fps))
	ev.SongID = songID
	ev.Fingerprints = len(p.fps)
	return ev
}

func (s *tuneService) failed(ev IngestEvent, err error) IngestEvent {
	s.log.Errorf("Error processing %s: %v", ev.Path, err)
	ev.Outcome, ev.Err = OutcomeFailed, err
	return ev
}
