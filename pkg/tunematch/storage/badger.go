package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v3"
	"github.com/himanishpuri/tunematch/pkg/models"
	"github.com/himanishpuri/tunematch/pkg/tunematch/codec"
)

// Key layout:
//
//	s/f/<filename>             -> song id (8 bytes BE)
//	s/i/<id>                   -> filename
//	f/<hash>\x00<id><seq>      -> offset (8 bytes LE)
//	g/<id><seq>                -> hash
//	n/<id>                     -> fingerprint count (8 bytes BE)
var (
	prefixSongByName = []byte("s/f/")
	prefixSongByID   = []byte("s/i/")
	prefixHash       = []byte("f/")
	prefixSongRows   = []byte("g/")
	prefixRowCount   = []byte("n/")
	keySongSequence  = []byte("seq/song")
)

// BadgerClient is a key-value implementation of the fingerprint store.
// Hash lookups are prefix scans over f/<hash>.
type BadgerClient struct {
	db   *badger.DB
	seq  *badger.Sequence
	opts Options

	// serialises writers: song creation, row numbering and deletes
	mu sync.Mutex
}

// NewBadgerClient opens (or creates) a Badger store in dir.
// An empty dir opens an in-memory store.
func NewBadgerClient(dir string, opts Options) (*BadgerClient, error) {
	bopts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		bopts = bopts.WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("%w: badger open: %v", ErrStoreUnavailable, err)
	}
	seq, err := db.GetSequence(keySongSequence, 16)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: song sequence: %v", ErrStoreUnavailable, err)
	}
	return &BadgerClient{db: db, seq: seq, opts: opts.withDefaults()}, nil
}

// EnsureSchema is a no-op: the key layout needs no declaration.
func (c *BadgerClient) EnsureSchema(ctx context.Context) error {
	if c == nil || c.db == nil {
		return nilClientErr()
	}
	return ctx.Err()
}

func (c *BadgerClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	if c.seq != nil {
		c.seq.Release()
	}
	err := c.db.Close()
	c.db = nil
	return err
}

func songKey(prefix []byte, id uint) []byte {
	k := make([]byte, len(prefix)+8)
	copy(k, prefix)
	binary.BigEndian.PutUint64(k[len(prefix):], uint64(id))
	return k
}

func hashPrefix(hash string) []byte {
	k := make([]byte, 0, len(prefixHash)+len(hash)+1)
	k = append(k, prefixHash...)
	k = append(k, hash...)
	return append(k, 0)
}

func hashRowKey(hash string, id uint, seq uint32) []byte {
	k := hashPrefix(hash)
	k = binary.BigEndian.AppendUint64(k, uint64(id))
	return binary.BigEndian.AppendUint32(k, seq)
}

func songRowKey(id uint, seq uint32) []byte {
	return binary.BigEndian.AppendUint32(songKey(prefixSongRows, id), seq)
}

func nameKey(filename string) []byte {
	return append(append([]byte{}, prefixSongByName...), filename...)
}

func (c *BadgerClient) FindSongIDByFilename(ctx context.Context, filename string) (uint, bool, error) {
	if c == nil || c.db == nil {
		return 0, false, nilClientErr()
	}
	var id uint
	found := false
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nameKey(filename))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id = uint(binary.BigEndian.Uint64(val))
			found = true
			return nil
		})
	})
	if err != nil {
		return 0, false, fmt.Errorf("%w: querying song by filename: %v", ErrStoreUnavailable, err)
	}
	return id, found, nil
}

func (c *BadgerClient) InsertSong(ctx context.Context, filename string) (uint, error) {
	if c == nil || c.db == nil {
		return 0, nilClientErr()
	}
	if strings.TrimSpace(filename) == "" {
		return 0, errors.New("filename is empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, found, err := c.FindSongIDByFilename(ctx, filename); err != nil {
		return 0, err
	} else if found {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateFilename, filename)
	}

	next, err := c.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("%w: next song id: %v", ErrStoreUnavailable, err)
	}
	// sequences start at 0; ids start at 1 like AUTOINCREMENT
	id := uint(next + 1)

	err = c.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(nameKey(filename), binary.BigEndian.AppendUint64(nil, uint64(id))); err != nil {
			return err
		}
		return txn.Set(songKey(prefixSongByID, id), []byte(filename))
	})
	if err != nil {
		return 0, fmt.Errorf("creating song: %w", err)
	}
	return id, nil
}

func (c *BadgerClient) songExists(id uint) (bool, error) {
	exists := false
	err := c.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(songKey(prefixSongByID, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		exists = err == nil
		return err
	})
	return exists, err
}

// InsertFingerprintsBulk appends rows after the song's existing ones through a
// WriteBatch. The row count key is written last. A failed call removes the
// rows it numbered and restores the previous count, leaving earlier inserts intact.
func (c *BadgerClient) InsertFingerprintsBulk(ctx context.Context, songID uint, fps []models.Fingerprint) error {
	if c == nil || c.db == nil {
		return nilClientErr()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	exists, err := c.songExists(songID)
	if err != nil {
		return fmt.Errorf("%w: checking song %d: %v", ErrStoreUnavailable, songID, err)
	}
	if !exists {
		return fmt.Errorf("%w: id %d", ErrUnknownSong, songID)
	}

	hashes := make([]string, len(fps))
	for i, fp := range fps {
		h, err := codec.CanonicalHash(fp.Hash)
		if err != nil {
			return fmt.Errorf("fingerprint %d: %w", i, err)
		}
		if strings.IndexByte(h, 0) >= 0 {
			return fmt.Errorf("fingerprint %d: %w: NUL byte in token", i, codec.ErrInvalidHash)
		}
		hashes[i] = h
	}

	start, err := c.rowCount(songID)
	if err != nil {
		return fmt.Errorf("%w: counting rows of song %d: %v", ErrStoreUnavailable, songID, err)
	}
	if start+uint64(len(fps)) > math.MaxUint32 {
		return fmt.Errorf("song %d: row numbers exhausted", songID)
	}

	wb := c.db.NewWriteBatch()
	defer wb.Cancel()

	fail := func(err error) error {
		wb.Cancel()
		if cleanupErr := c.truncateRows(songID, uint32(start)); cleanupErr != nil {
			return fmt.Errorf("batch insert fingerprints: %w (cleanup: %v)", err, cleanupErr)
		}
		return fmt.Errorf("batch insert fingerprints: %w", err)
	}

	for i, fp := range fps {
		if i%c.opts.InsertBatchSize == 0 {
			if err := ctx.Err(); err != nil {
				return fail(err)
			}
		}
		seq := uint32(start) + uint32(i)
		if err := wb.Set(hashRowKey(hashes[i], songID, seq), codec.EncodeOffset(fp.Offset)); err != nil {
			return fail(err)
		}
		if err := wb.Set(songRowKey(songID, seq), []byte(hashes[i])); err != nil {
			return fail(err)
		}
	}
	if err := wb.Set(songKey(prefixRowCount, songID), countValue(start+uint64(len(fps)))); err != nil {
		return fail(err)
	}
	if err := wb.Flush(); err != nil {
		return fail(err)
	}
	return nil
}

func countValue(n uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, n)
}

// rowCount reads n/<id>; a song without rows has no count key.
func (c *BadgerClient) rowCount(songID uint) (uint64, error) {
	var n uint64
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(songKey(prefixRowCount, songID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			n = binary.BigEndian.Uint64(val)
			return nil
		})
	})
	return n, err
}

// rowKeysFrom lists the g/ and f/ keys of every row of a song numbered from
// `from` upwards, walking the g/<id> index.
func (c *BadgerClient) rowKeysFrom(songID uint, from uint32) ([][]byte, error) {
	prefix := songKey(prefixSongRows, songID)
	var keys [][]byte
	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(songRowKey(songID, from)); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			k := item.KeyCopy(nil)
			hash, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			seq := binary.BigEndian.Uint32(k[len(prefix):])
			keys = append(keys, k, hashRowKey(string(hash), songID, seq))
		}
		return nil
	})
	return keys, err
}

// truncateRows removes rows numbered from `from` upwards and sets the count
// back to `from`.
func (c *BadgerClient) truncateRows(songID uint, from uint32) error {
	keys, err := c.rowKeysFrom(songID, from)
	if err != nil {
		return err
	}

	wb := c.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	if from == 0 {
		err = wb.Delete(songKey(prefixRowCount, songID))
	} else {
		err = wb.Set(songKey(prefixRowCount, songID), countValue(uint64(from)))
	}
	if err != nil {
		return err
	}
	return wb.Flush()
}

func (c *BadgerClient) LookupHashes(ctx context.Context, hashes []string) (map[string][]models.Hit, error) {
	if c == nil || c.db == nil {
		return nil, nilClientErr()
	}

	result := make(map[string][]models.Hit)
	for _, batch := range chunk(dedupe(hashes), c.opts.LookupBatchSize) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := c.db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for _, h := range batch {
				prefix := hashPrefix(h)
				for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
					item := it.Item()
					key := item.Key()
					id := uint(binary.BigEndian.Uint64(key[len(prefix):]))
					err := item.Value(func(val []byte) error {
						off, err := codec.DecodeOffset(val)
						if err != nil {
							return err
						}
						result[h] = append(result[h], models.Hit{SongID: id, Offset: off})
						return nil
					})
					if err != nil {
						return err
					}
				}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: batch querying fingerprints: %v", ErrStoreUnavailable, err)
		}
	}
	return result, nil
}

func (c *BadgerClient) GetSong(ctx context.Context, songID uint) (*models.Song, error) {
	if c == nil || c.db == nil {
		return nil, nilClientErr()
	}
	var song *models.Song
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(songKey(prefixSongByID, songID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		name, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		song = &models.Song{ID: songID, Filename: string(name)}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: querying song: %v", ErrStoreUnavailable, err)
	}
	if song == nil {
		return nil, fmt.Errorf("%w: id %d", ErrSongNotFound, songID)
	}
	return song, nil
}

func (c *BadgerClient) SongFilename(ctx context.Context, songID uint) (string, error) {
	song, err := c.GetSong(ctx, songID)
	if err != nil {
		return "", err
	}
	return song.Filename, nil
}

func (c *BadgerClient) ListSongs(ctx context.Context) ([]models.Song, error) {
	if c == nil || c.db == nil {
		return nil, nilClientErr()
	}
	var songs []models.Song
	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefixSongByID); it.ValidForPrefix(prefixSongByID); it.Next() {
			item := it.Item()
			id := uint(binary.BigEndian.Uint64(item.Key()[len(prefixSongByID):]))
			name, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			songs = append(songs, models.Song{ID: id, Filename: string(name)})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listing songs: %v", ErrStoreUnavailable, err)
	}
	// big-endian ids already iterate in order; keep it explicit
	sort.Slice(songs, func(i, j int) bool { return songs[i].ID < songs[j].ID })
	return songs, nil
}

// DeleteSong removes the song keys and all of its rows in one transaction. A
// song too large for one transaction loses its rows first and its keys after,
// so an interrupted delete leaves a visible song that DeleteSong can retry.
func (c *BadgerClient) DeleteSong(ctx context.Context, songID uint) error {
	if c == nil || c.db == nil {
		return nilClientErr()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	song, err := c.GetSong(ctx, songID)
	if err != nil {
		return err
	}
	rows, err := c.rowKeysFrom(songID, 0)
	if err != nil {
		return fmt.Errorf("%w: listing fingerprints: %v", ErrStoreUnavailable, err)
	}
	songKeys := [][]byte{
		songKey(prefixRowCount, songID),
		nameKey(song.Filename),
		songKey(prefixSongByID, songID),
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		for _, k := range append(rows, songKeys...) {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if !errors.Is(err, badger.ErrTxnTooBig) {
		if err != nil {
			return fmt.Errorf("deleting song %d: %w", songID, err)
		}
		return nil
	}

	if err := c.truncateRows(songID, 0); err != nil {
		return fmt.Errorf("deleting fingerprints of song %d: %w", songID, err)
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		for _, k := range songKeys[1:] {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting song %d: %w", songID, err)
	}
	return nil
}

func (c *BadgerClient) FingerprintCount(ctx context.Context, songID uint) (int64, error) {
	if c == nil || c.db == nil {
		return 0, nilClientErr()
	}
	n, err := c.rowCount(songID)
	if err != nil {
		return 0, fmt.Errorf("%w: counting fingerprints: %v", ErrStoreUnavailable, err)
	}
	return int64(n), nil
}

func (c *BadgerClient) Counts(ctx context.Context) (songs, fingerprints int64, err error) {
	if c == nil || c.db == nil {
		return 0, 0, nilClientErr()
	}
	err = c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefixSongByID); it.ValidForPrefix(prefixSongByID); it.Next() {
			songs++
		}
		for it.Seek(prefixRowCount); it.ValidForPrefix(prefixRowCount); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				fingerprints += int64(binary.BigEndian.Uint64(val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("%w: counting: %v", ErrStoreUnavailable, err)
	}
	return songs, fingerprints, nil
}
