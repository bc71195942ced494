// Package matcher implements offset-consistency voting.
//
// A true match shows up as many hash hits that agree on the same shift
// between catalog time and query time, so votes are keyed on
// (song, dbOffset - queryOffset) rather than on the song alone.
package matcher

import (
	"fmt"

	"github.com/himanishpuri/tunematch/pkg/models"
	"github.com/himanishpuri/tunematch/pkg/tunematch/codec"
)

// Query is a fingerprint query grouped by hash.
type Query struct {
	// Times maps each hash to every query offset it occurred at.
	Times map[string][]int64
	// Hashes lists the distinct hashes in first-seen order.
	Hashes []string
}

// GroupByHash canonicalizes and groups query fingerprints.
func GroupByHash(fps []models.Fingerprint) (Query, error) {
	q := Query{Times: make(map[string][]int64, len(fps))}
	for i, fp := range fps {
		h, err := codec.CanonicalHash(fp.Hash)
		if err != nil {
			return Query{}, fmt.Errorf("query fingerprint %d: %w", i, err)
		}
		if _, seen := q.Times[h]; !seen {
			q.Hashes = append(q.Hashes, h)
		}
		q.Times[h] = append(q.Times[h], fp.Offset)
	}
	return q, nil
}

// Bucket is one (song, delta) vote cell.
type Bucket struct {
	SongID uint
	Delta  int64
	Votes  int
}

// Tally accumulates votes. The zero value is not usable; use NewTally.
type Tally struct {
	votes map[uint]map[int64]int
	total int
}

func NewTally() *Tally {
	return &Tally{votes: make(map[uint]map[int64]int)}
}

// Add records one vote for songID at delta.
func (t *Tally) Add(songID uint, delta int64) {
	m, ok := t.votes[songID]
	if !ok {
		m = make(map[int64]int)
		t.votes[songID] = m
	}
	m[delta]++
	t.total++
}

// AddHits votes every hit against every query time of the same hash.
func (t *Tally) AddHits(q Query, hits map[string][]models.Hit) {
	for _, h := range q.Hashes {
		for _, hit := range hits[h] {
			for _, qt := range q.Times[h] {
				t.Add(hit.SongID, hit.Offset-qt)
			}
		}
	}
}

// Total is the number of votes cast.
func (t *Tally) Total() int { return t.total }

// less orders buckets: more votes first, then lower song id, then lower delta.
func less(a, b Bucket) bool {
	if a.Votes != b.Votes {
		return a.Votes > b.Votes
	}
	if a.SongID != b.SongID {
		return a.SongID < b.SongID
	}
	return a.Delta < b.Delta
}

// bestPerSong returns each song's strongest bucket.
func (t *Tally) bestPerSong() []Bucket {
	out := make([]Bucket, 0, len(t.votes))
	for songID, deltas := range t.votes {
		var best Bucket
		first := true
		for d, n := range deltas {
			b := Bucket{SongID: songID, Delta: d, Votes: n}
			if first || less(b, best) {
				best = b
				first = false
			}
		}
		out = append(out, best)
	}
	return out
}

// Best returns the winning bucket and the vote count of the strongest bucket
// that belongs to a different song (0 if none). ok is false with no votes.
func (t *Tally) Best() (best Bucket, runnerUp int, ok bool) {
	if t.total == 0 {
		return Bucket{}, 0, false
	}
	perSong := t.bestPerSong()
	best = perSong[0]
	for _, b := range perSong[1:] {
		if less(b, best) {
			best = b
		}
	}
	for _, b := range perSong {
		if b.SongID != best.SongID && b.Votes > runnerUp {
			runnerUp = b.Votes
		}
	}
	return best, runnerUp, true
}
