package tunematch

import (
	"fmt"
	"strings"
)

// EmptyPolicy decides what ingestion does with a file that yields no fingerprints.
type EmptyPolicy int

const (
	// EmptySkip skips the file without creating a song.
	EmptySkip EmptyPolicy = iota
	// EmptyError records the file as failed.
	EmptyError
)

func (p EmptyPolicy) String() string {
	if p == EmptyError {
		return "error"
	}
	return "skip"
}

func ParseEmptyPolicy(s string) (EmptyPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return EmptySkip, nil
	case "error":
		return EmptyError, nil
	}
	return EmptySkip, fmt.Errorf("unknown empty policy %q (want skip or error)", s)
}

type IngestOutcome int

const (
	OutcomeIndexed IngestOutcome = iota
	OutcomeExisting
	OutcomeEmpty
	OutcomeFailed
)

func (o IngestOutcome) String() string {
	switch o {
	case OutcomeIndexed:
		return "indexed"
	case OutcomeExisting:
		return "existing"
	case OutcomeEmpty:
		return "empty"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IngestFailure is one file that could not be indexed.
type IngestFailure struct {
	Path string `json:"path"`
	Err  error  `json:"-"`
}

func (f IngestFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.Path, f.Err)
}

// IngestReport summarises one IngestDir run.
type IngestReport struct {
	Total        int             `json:"total"`
	Indexed      int             `json:"indexed"`
	Existing     int             `json:"existing"`
	Empty        int             `json:"empty"`
	Fingerprints int64           `json:"fingerprints"`
	Failures     []IngestFailure `json:"-"`
}

func (r *IngestReport) add(ev IngestEvent) {
	switch ev.Outcome {
	case OutcomeIndexed:
		r.Indexed++
		r.Fingerprints += int64(ev.Fingerprints)
	case OutcomeExisting:
		r.Existing++
	case OutcomeEmpty:
		r.Empty++
	case OutcomeFailed:
		r.Failures = append(r.Failures, IngestFailure{Path: ev.Path, Err: ev.Err})
	}
}

// IngestEvent is reported to the progress callback once per file.
type IngestEvent struct {
	Index        int
	Total        int
	Path         string
	Outcome      IngestOutcome
	SongID       uint
	Fingerprints int
	Err          error
}

type Stats struct {
	Songs        int64  `json:"songs"`
	Fingerprints int64  `json:"fingerprints"`
	Backend      string `json:"backend"`
}
