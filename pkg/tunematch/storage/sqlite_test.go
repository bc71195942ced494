package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/himanishpuri/tunematch/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB creates a client on a temporary database file
func setupTestDB(t *testing.T, opts Options) (*DBClient, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test_tunematch.sqlite3")
	client, err := NewDBClientWithPath(dbPath, opts)
	if err != nil {
		t.Fatalf("Failed to create test DB client: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})
	return client, dbPath
}

func makeFingerprints(n int, prefix string) []models.Fingerprint {
	fps := make([]models.Fingerprint, n)
	for i := range fps {
		fps[i] = models.Fingerprint{Hash: fmt.Sprintf("%s-%d", prefix, i), Offset: int64(i)}
	}
	return fps
}

func sortHits(m map[string][]models.Hit) {
	for _, hits := range m {
		sort.Slice(hits, func(i, j int) bool {
			if hits[i].SongID != hits[j].SongID {
				return hits[i].SongID < hits[j].SongID
			}
			return hits[i].Offset < hits[j].Offset
		})
	}
}

// TestNewDBClientFromEnv tests database creation from TUNEMATCH_DB_PATH
func TestNewDBClientFromEnv(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "env.db")
	t.Setenv("TUNEMATCH_DB_PATH", dbPath)

	client, err := NewDBClient()
	if err != nil {
		t.Fatalf("Failed to create DB from env: %v", err)
	}
	defer client.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("Database file was not created at %s", dbPath)
	}
}

// TestEnsureSchemaIdempotent tests that reopening and re-ensuring keeps data
func TestEnsureSchemaIdempotent(t *testing.T) {
	client, dbPath := setupTestDB(t, Options{})
	ctx := context.Background()

	id, err := client.InsertSong(ctx, "a.mp3")
	if err != nil {
		t.Fatalf("InsertSong failed: %v", err)
	}
	if err := client.EnsureSchema(ctx); err != nil {
		t.Fatalf("second EnsureSchema failed: %v", err)
	}
	client.Close()

	reopened, err := NewDBClientWithPath(dbPath, Options{})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	name, err := reopened.SongFilename(ctx, id)
	if err != nil {
		t.Fatalf("SongFilename after reopen: %v", err)
	}
	if name != "a.mp3" {
		t.Errorf("Expected a.mp3, got %q", name)
	}
}

// TestInsertSongDuplicate tests that a filename can only be indexed once
func TestInsertSongDuplicate(t *testing.T) {
	client, _ := setupTestDB(t, Options{})
	ctx := context.Background()

	first, err := client.InsertSong(ctx, "dup.mp3")
	if err != nil {
		t.Fatalf("InsertSong failed: %v", err)
	}
	if _, err := client.InsertSong(ctx, "dup.mp3"); !errors.Is(err, ErrDuplicateFilename) {
		t.Fatalf("Expected ErrDuplicateFilename, got %v", err)
	}

	id, found, err := client.FindSongIDByFilename(ctx, "dup.mp3")
	if err != nil || !found {
		t.Fatalf("FindSongIDByFilename: found=%v err=%v", found, err)
	}
	if id != first {
		t.Errorf("Expected id %d, got %d", first, id)
	}

	if _, found, _ := client.FindSongIDByFilename(ctx, "missing.mp3"); found {
		t.Error("Expected missing filename to be absent")
	}
}

// TestInsertFingerprintsUnknownSong tests that no rows are written for a missing song
func TestInsertFingerprintsUnknownSong(t *testing.T) {
	client, _ := setupTestDB(t, Options{})
	ctx := context.Background()

	err := client.InsertFingerprintsBulk(ctx, 999, makeFingerprints(10, "x"))
	if !errors.Is(err, ErrUnknownSong) {
		t.Fatalf("Expected ErrUnknownSong, got %v", err)
	}

	_, fps, err := client.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if fps != 0 {
		t.Errorf("Expected no fingerprints, got %d", fps)
	}
}

// TestInsertFingerprintsBatchBoundaries tests row counts around the statement limit
func TestInsertFingerprintsBatchBoundaries(t *testing.T) {
	client, _ := setupTestDB(t, Options{})
	ctx := context.Background()

	for _, n := range []int{0, 1, 299, 300, 301, 900, 901, 1800} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			id, err := client.InsertSong(ctx, fmt.Sprintf("song-%d.wav", n))
			if err != nil {
				t.Fatalf("InsertSong failed: %v", err)
			}
			if err := client.InsertFingerprintsBulk(ctx, id, makeFingerprints(n, fmt.Sprint(n))); err != nil {
				t.Fatalf("InsertFingerprintsBulk(%d) failed: %v", n, err)
			}
			got, err := client.FingerprintCount(ctx, id)
			if err != nil {
				t.Fatalf("FingerprintCount failed: %v", err)
			}
			if got != int64(n) {
				t.Errorf("Expected %d fingerprints, got %d", n, got)
			}
		})
	}
}

// TestLookupHashesBatchingEquivalence tests that batch size does not change results
func TestLookupHashesBatchingEquivalence(t *testing.T) {
	small, _ := setupTestDB(t, Options{LookupBatchSize: 7, InsertBatchSize: 11})
	large, _ := setupTestDB(t, Options{LookupBatchSize: 100000})
	ctx := context.Background()

	var query []string
	for _, c := range []*DBClient{small, large} {
		for s := 0; s < 3; s++ {
			id, err := c.InsertSong(ctx, fmt.Sprintf("s%d.mp3", s))
			if err != nil {
				t.Fatalf("InsertSong failed: %v", err)
			}
			// overlapping hash space so tokens collide across songs
			fps := makeFingerprints(50+s*20, "h")
			for i := range fps {
				fps[i].Offset += int64(s * 1000)
			}
			if err := c.InsertFingerprintsBulk(ctx, id, fps); err != nil {
				t.Fatalf("InsertFingerprintsBulk failed: %v", err)
			}
		}
	}
	for i := 0; i < 120; i++ {
		query = append(query, fmt.Sprintf("h-%d", i), fmt.Sprintf("h-%d", i))
	}
	query = append(query, "nope")

	a, err := small.LookupHashes(ctx, query)
	if err != nil {
		t.Fatalf("small lookup failed: %v", err)
	}
	b, err := large.LookupHashes(ctx, query)
	if err != nil {
		t.Fatalf("large lookup failed: %v", err)
	}
	sortHits(a)
	sortHits(b)
	if !reflect.DeepEqual(a, b) {
		t.Error("Lookup results differ between batch sizes")
	}
	if len(a["h-0"]) != 3 {
		t.Errorf("Expected 3 hits for h-0, got %d", len(a["h-0"]))
	}
	if _, ok := a["nope"]; ok {
		t.Error("Expected no entry for unknown hash")
	}
}

// createLegacyDB writes a catalog whose offset column has no declared type, so
// SQLite keeps integers, blobs and text exactly as inserted.
func createLegacyDB(t *testing.T, path string, offsets map[string]any) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("Failed to open legacy db: %v", err)
	}
	sqlDB, _ := db.DB()
	defer sqlDB.Close()

	for _, stmt := range []string{
		`CREATE TABLE songs (id INTEGER PRIMARY KEY AUTOINCREMENT, filename TEXT UNIQUE)`,
		`CREATE TABLE fingerprints (hash TEXT, "offset", song_id INTEGER REFERENCES songs(id))`,
		`INSERT INTO songs (filename) VALUES ('legacy.mp3')`,
	} {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}
	for hash, off := range offsets {
		if err := db.Exec(`INSERT INTO fingerprints (hash, "offset", song_id) VALUES (?, ?, 1)`, hash, off).Error; err != nil {
			t.Fatalf("insert %s failed: %v", hash, err)
		}
	}
}

// TestOffsetRepresentations tests rows whose offsets are stored as INTEGER, BLOB or TEXT
func TestOffsetRepresentations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "legacy.sqlite3")
	createLegacyDB(t, dbPath, map[string]any{
		"int":  int64(42),
		"blob": []byte{42, 0, 0, 0, 0, 0, 0, 0},
		"text": "42",
	})

	client, err := NewDBClientWithPath(dbPath, Options{})
	if err != nil {
		t.Fatalf("Failed to open legacy db: %v", err)
	}
	defer client.Close()
	ctx := context.Background()

	for hash, want := range map[string]string{"int": "integer", "blob": "blob", "text": "text"} {
		var got string
		if err := client.DB.Raw(`SELECT typeof("offset") FROM fingerprints WHERE hash = ?`, hash).Scan(&got).Error; err != nil {
			t.Fatalf("typeof query failed: %v", err)
		}
		if got != want {
			t.Errorf("hash %s stored as %s, want %s", hash, got, want)
		}
	}

	hits, err := client.LookupHashes(ctx, []string{"int", "blob", "text"})
	if err != nil {
		t.Fatalf("LookupHashes failed: %v", err)
	}
	for _, h := range []string{"int", "blob", "text"} {
		if len(hits[h]) != 1 {
			t.Fatalf("Expected one hit for %s, got %v", h, hits[h])
		}
		if hits[h][0].Offset != 42 || hits[h][0].SongID != 1 {
			t.Errorf("hash %s: got %+v, want offset 42 song 1", h, hits[h][0])
		}
	}

	name, err := client.SongFilename(ctx, 1)
	if err != nil || name != "legacy.mp3" {
		t.Errorf("SongFilename = %q, %v", name, err)
	}
}

// TestDeleteSong tests that deleting a song removes its fingerprints
func TestDeleteSong(t *testing.T) {
	client, _ := setupTestDB(t, Options{})
	ctx := context.Background()

	id, _ := client.InsertSong(ctx, "gone.mp3")
	keep, _ := client.InsertSong(ctx, "kept.mp3")
	client.InsertFingerprintsBulk(ctx, id, makeFingerprints(20, "g"))
	client.InsertFingerprintsBulk(ctx, keep, makeFingerprints(5, "k"))

	if err := client.DeleteSong(ctx, id); err != nil {
		t.Fatalf("DeleteSong failed: %v", err)
	}
	if _, err := client.GetSong(ctx, id); !errors.Is(err, ErrSongNotFound) {
		t.Errorf("Expected ErrSongNotFound, got %v", err)
	}
	if err := client.DeleteSong(ctx, id); !errors.Is(err, ErrSongNotFound) {
		t.Errorf("Expected ErrSongNotFound on second delete, got %v", err)
	}

	songs, fps, err := client.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if songs != 1 || fps != 5 {
		t.Errorf("Expected 1 song and 5 fingerprints, got %d and %d", songs, fps)
	}

	list, err := client.ListSongs(ctx)
	if err != nil {
		t.Fatalf("ListSongs failed: %v", err)
	}
	if len(list) != 1 || list[0].Filename != "kept.mp3" {
		t.Errorf("Unexpected song list %+v", list)
	}
}

// TestNilClient tests that a nil client reports an unavailable store
func TestNilClient(t *testing.T) {
	var client *DBClient
	ctx := context.Background()

	if _, err := client.InsertSong(ctx, "a"); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := client.LookupHashes(ctx, []string{"a"}); !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Expected ErrStoreUnavailable, got %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close on nil client returned %v", err)
	}
}
