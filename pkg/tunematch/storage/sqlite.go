package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/himanishpuri/tunematch/pkg/models"
	"github.com/himanishpuri/tunematch/pkg/tunematch/codec"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const DefaultDBFile = "tunematch.sqlite3"

// dsnPragmas are appended to every SQLite path. Foreign keys keep orphaned
// fingerprints out; WAL lets recognition read while ingestion writes.
const dsnPragmas = "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

type DBClient struct {
	DB   *gorm.DB
	db   *sql.DB
	opts Options
}

type Song struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Filename  string `gorm:"not null;uniqueIndex:idx_songs_filename" json:"filename"`
	CreatedAt time.Time
}

type Fingerprint struct {
	Hash   Hash   `gorm:"type:text;not null;index:idx_hash" json:"hash"`
	Offset Offset `gorm:"column:offset;type:integer;not null" json:"offset"`
	SongID uint   `gorm:"not null;index:idx_song_id" json:"song_id"`
	Song   *Song  `gorm:"foreignKey:SongID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

func NewDBClient() (*DBClient, error) {
	dbPath := os.Getenv("TUNEMATCH_DB_PATH")
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewDBClientWithPath(dbPath, Options{})
}

func NewDBClientWithPath(dbPath string, opts Options) (*DBClient, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: creating db dir: %v", ErrStoreUnavailable, err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath+dsnPragmas), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: opening sqlite db: %v", ErrStoreUnavailable, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: getting sql.DB from gorm: %v", ErrStoreUnavailable, err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("%w: ping: %v", ErrStoreUnavailable, err)
	}

	c := &DBClient{DB: db, db: sqlDB, opts: opts.withDefaults()}
	if err := c.EnsureSchema(context.Background()); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return c, nil
}

func nilClientErr() error {
	return fmt.Errorf("%w: %s", ErrStoreUnavailable, errDBClientNil)
}

// EnsureSchema creates both relations and their indexes if absent.
// It is cheap once the schema exists and safe to call on every start.
// Existing tables are used as they are, never migrated: catalogs written by
// other tools keep their column types and the codec reads whatever they hold.
func (c *DBClient) EnsureSchema(ctx context.Context) error {
	if c == nil || c.DB == nil {
		return nilClientErr()
	}
	tx := c.DB.WithContext(ctx)
	migrator := tx.Migrator()
	for _, model := range []any{&Song{}, &Fingerprint{}} {
		if migrator.HasTable(model) {
			continue
		}
		if err := migrator.CreateTable(model); err != nil {
			return fmt.Errorf("%w: creating table: %v", ErrStoreUnavailable, err)
		}
	}
	for _, stmt := range []string{
		"CREATE INDEX IF NOT EXISTS idx_hash ON fingerprints(hash)",
		"CREATE INDEX IF NOT EXISTS idx_song_id ON fingerprints(song_id)",
	} {
		if err := tx.Exec(stmt).Error; err != nil {
			return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, stmt, err)
		}
	}
	return nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *DBClient) FindSongIDByFilename(ctx context.Context, filename string) (uint, bool, error) {
	if c == nil || c.DB == nil {
		return 0, false, nilClientErr()
	}
	var song Song
	err := c.DB.WithContext(ctx).Select("id").Where("filename = ?", filename).Take(&song).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: querying song by filename: %v", ErrStoreUnavailable, err)
	}
	return song.ID, true, nil
}

// InsertSong creates a song row. An existing filename is never overwritten.
func (c *DBClient) InsertSong(ctx context.Context, filename string) (uint, error) {
	if c == nil || c.DB == nil {
		return 0, nilClientErr()
	}
	if strings.TrimSpace(filename) == "" {
		return 0, errors.New("filename is empty")
	}

	song := Song{Filename: filename}
	if err := c.DB.WithContext(ctx).Create(&song).Error; err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrDuplicateFilename, filename)
		}
		return 0, fmt.Errorf("creating song: %w", err)
	}
	return song.ID, nil
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// InsertFingerprintsBulk stores every fingerprint of one song inside a single
// transaction, split into statements of at most InsertBatchSize rows.
func (c *DBClient) InsertFingerprintsBulk(ctx context.Context, songID uint, fps []models.Fingerprint) error {
	if c == nil || c.DB == nil {
		return nilClientErr()
	}

	rows := make([]Fingerprint, 0, len(fps))
	for i, fp := range fps {
		h, err := codec.CanonicalHash(fp.Hash)
		if err != nil {
			return fmt.Errorf("fingerprint %d: %w", i, err)
		}
		rows = append(rows, Fingerprint{Hash: Hash(h), Offset: Offset(fp.Offset), SongID: songID})
	}

	return c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&Song{}).Where("id = ?", songID).Count(&n).Error; err != nil {
			return fmt.Errorf("checking song %d: %w", songID, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: id %d", ErrUnknownSong, songID)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Omit(clause.Associations).CreateInBatches(rows, c.opts.InsertBatchSize).Error; err != nil {
			return fmt.Errorf("batch insert fingerprints: %w", err)
		}
		return nil
	})
}

// LookupHashes returns every stored occurrence of the given hashes. The input
// is deduplicated and queried LookupBatchSize hashes at a time.
func (c *DBClient) LookupHashes(ctx context.Context, hashes []string) (map[string][]models.Hit, error) {
	if c == nil || c.DB == nil {
		return nil, nilClientErr()
	}

	result := make(map[string][]models.Hit)
	for _, batch := range chunk(dedupe(hashes), c.opts.LookupBatchSize) {
		var rows []Fingerprint
		if err := c.DB.WithContext(ctx).Where("hash IN ?", batch).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("%w: batch querying fingerprints: %v", ErrStoreUnavailable, err)
		}
		for _, r := range rows {
			h := string(r.Hash)
			result[h] = append(result[h], models.Hit{SongID: r.SongID, Offset: int64(r.Offset)})
		}
	}
	return result, nil
}

func (c *DBClient) GetSong(ctx context.Context, songID uint) (*models.Song, error) {
	if c == nil || c.DB == nil {
		return nil, nilClientErr()
	}
	var song Song
	err := c.DB.WithContext(ctx).Take(&song, songID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrSongNotFound, songID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: querying song: %v", ErrStoreUnavailable, err)
	}
	return &models.Song{ID: song.ID, Filename: song.Filename, CreatedAt: song.CreatedAt}, nil
}

func (c *DBClient) SongFilename(ctx context.Context, songID uint) (string, error) {
	song, err := c.GetSong(ctx, songID)
	if err != nil {
		return "", err
	}
	return song.Filename, nil
}

func (c *DBClient) ListSongs(ctx context.Context) ([]models.Song, error) {
	if c == nil || c.DB == nil {
		return nil, nilClientErr()
	}
	var rows []Song
	if err := c.DB.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: listing songs: %v", ErrStoreUnavailable, err)
	}
	songs := make([]models.Song, len(rows))
	for i, r := range rows {
		songs[i] = models.Song{ID: r.ID, Filename: r.Filename, CreatedAt: r.CreatedAt}
	}
	return songs, nil
}

// DeleteSong removes a song and all of its fingerprints atomically.
func (c *DBClient) DeleteSong(ctx context.Context, songID uint) error {
	if c == nil || c.DB == nil {
		return nilClientErr()
	}
	return c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("song_id = ?", songID).Delete(&Fingerprint{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", songID).Delete(&Song{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: id %d", ErrSongNotFound, songID)
		}
		return nil
	})
}

func (c *DBClient) FingerprintCount(ctx context.Context, songID uint) (int64, error) {
	if c == nil || c.DB == nil {
		return 0, nilClientErr()
	}
	var count int64
	if err := c.DB.WithContext(ctx).Model(&Fingerprint{}).Where("song_id = ?", songID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("%w: counting fingerprints: %v", ErrStoreUnavailable, err)
	}
	return count, nil
}

func (c *DBClient) Counts(ctx context.Context) (songs, fingerprints int64, err error) {
	if c == nil || c.DB == nil {
		return 0, 0, nilClientErr()
	}
	tx := c.DB.WithContext(ctx)
	if err := tx.Model(&Song{}).Count(&songs).Error; err != nil {
		return 0, 0, fmt.Errorf("%w: counting songs: %v", ErrStoreUnavailable, err)
	}
	if err := tx.Model(&Fingerprint{}).Count(&fingerprints).Error; err != nil {
		return 0, 0, fmt.Errorf("%w: counting fingerprints: %v", ErrStoreUnavailable, err)
	}
	return songs, fingerprints, nil
}
