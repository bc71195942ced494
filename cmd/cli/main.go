package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/himanishpuri/tunematch/pkg/logger"
	"github.com/himanishpuri/tunematch/pkg/tunematch"
	"github.com/himanishpuri/tunematch/pkg/tunematch/metadata"
	"github.com/joho/godotenv"
	"github.com/mdobak/go-xerrors"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Global flags
var (
	dbPath      string
	backend     string
	tempDir     string
	sampleRate  int
	emptyPolicy string
	workers     int
	songsCSV    string
	lookupBatch int
	verbose     bool
)

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func registerFlags() {
	flag.StringVar(&dbPath, "db", getEnvOrDefault("TUNEMATCH_DB_PATH", "tunematch.sqlite3"), "Path to the database (SQLite file or Badger directory)")
	flag.StringVar(&backend, "backend", getEnvOrDefault("TUNEMATCH_BACKEND", tunematch.BackendSQLite), "Store backend: sqlite or badger")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("TUNEMATCH_TEMP_DIR", os.TempDir()), "Directory for temporary audio conversion files")
	flag.IntVar(&sampleRate, "rate", 8000, "Sample rate audio is resampled to before fingerprinting")
	flag.StringVar(&emptyPolicy, "empty", "skip", "What to do with files that yield no fingerprints: skip or error")
	flag.IntVar(&workers, "workers", 1, "Files decoded in parallel during ingest")
	flag.StringVar(&songsCSV, "songs", getEnvOrDefault("TUNEMATCH_SONGS_CSV", ""), "Optional CSV of filename,display_name,link")
	flag.IntVar(&lookupBatch, "batch", 0, "Hashes per lookup query (0 uses the store default)")
	flag.BoolVar(&verbose, "v", false, "Enable debug logging")
	flag.Usage = printUsage
}

// createService creates a tunematch service with the configured options
func createService(extra ...tunematch.Option) (tunematch.Service, error) {
	policy, err := tunematch.ParseEmptyPolicy(emptyPolicy)
	if err != nil {
		return nil, err
	}
	opts := []tunematch.Option{
		tunematch.WithDBPath(dbPath),
		tunematch.WithBackend(backend),
		tunematch.WithTempDir(tempDir),
		tunematch.WithSampleRate(sampleRate),
		tunematch.WithEmptyPolicy(policy),
		tunematch.WithWorkers(workers),
		tunematch.WithLookupBatchSize(lookupBatch),
	}
	return tunematch.NewService(append(opts, extra...)...)
}

func fail(msg string, err error) {
	fmt.Printf("❌ %s: %v\n", msg, err)
	logger.GetLogger().LogError(msg, xerrors.New(err))
	os.Exit(1)
}

func main() {
	_ = godotenv.Load()
	registerFlags()
	flag.Parse()

	log := logger.GetLogger()
	if verbose {
		log.SetLevel(logger.DEBUG)
	}
	if os.Getenv("NO_COLOR") != "" {
		log.SetColorize(false)
	}
	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := args[0]
	log.Debugf("Executing command: %s", command)

	switch command {
	case "ingest":
		handleIngest(ctx, args[1:])
	case "match":
		handleMatch(ctx, args[1:])
	case "list":
		handleList(ctx)
	case "delete":
		handleDelete(ctx, args[1:])
	case "stats":
		handleStats(ctx)
	case "schema":
		handleSchema()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handleIngest(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: tunematch ingest <folder>")
		os.Exit(1)
	}
	dir := args[0]

	p := mpb.New(mpb.WithWidth(64))
	var bar *mpb.Bar
	progress := func(ev tunematch.IngestEvent) {
		if bar == nil {
			bar = p.AddBar(int64(ev.Total),
				mpb.PrependDecorators(
					decor.Name("Indexing: "),
					decor.CountersNoUnit("%d / %d"),
				),
				mpb.AppendDecorators(
					decor.Percentage(),
					decor.EwmaETA(decor.ET_STYLE_GO, 60),
				),
			)
		}
		bar.EwmaIncrement(time.Second)
	}

	svc, err := createService(tunematch.WithProgress(progress), tunematch.WithLogger(logger.GetLogger().WithPrefix("[ingest]")))
	if err != nil {
		fail("Failed to create service", err)
	}
	defer svc.Close()

	fmt.Printf("📂 Ingesting %s\n", dir)
	report, err := svc.IngestDir(ctx, dir)
	if bar != nil {
		bar.Abort(false)
	}
	p.Wait()
	if err != nil && report == nil {
		fail("Ingestion failed", err)
	}

	fmt.Printf("\n✅ %s indexed | %s already present | %s silent | %s failed | %s fingerprints\n",
		humanize.Comma(int64(report.Indexed)),
		humanize.Comma(int64(report.Existing)),
		humanize.Comma(int64(report.Empty)),
		humanize.Comma(int64(len(report.Failures))),
		humanize.Comma(report.Fingerprints))
	for _, f := range report.Failures {
		fmt.Printf("   ❌ %s\n", f.Error())
	}
	if err != nil {
		fail("Ingestion interrupted", err)
	}
}

func handleMatch(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: tunematch match <audio_file>")
		os.Exit(1)
	}
	audioPath := args[0]

	svc, err := createService()
	if err != nil {
		fail("Failed to create service", err)
	}
	defer svc.Close()

	fmt.Println("🔍 Analyzing audio file...")
	start := time.Now()
	match, err := svc.RecognizeFile(ctx, audioPath)
	if err != nil {
		fail("Failed to match audio", err)
	}

	if match == nil {
		fmt.Println("\n❌ No match found in database")
		return
	}

	info := describe(match.Filename)
	fmt.Printf("\n🎵 %s\n", info.DisplayName)
	if info.Artist != "" {
		fmt.Printf("   Artist: %s | Title: %s\n", info.Artist, info.Title)
	}
	fmt.Printf("   Votes: %d (runner-up %d) | Delta: %d frames | Song ID: %d\n",
		match.Votes, match.RunnerUp, match.Delta, match.SongID)
	if info.Link != "" {
		fmt.Printf("   Link: %s\n", info.Link)
	}
	fmt.Printf("   Matched in %s\n", time.Since(start).Round(time.Millisecond))
}

// describe resolves display metadata for a catalog filename.
func describe(filename string) metadata.Info {
	var provider metadata.Provider = &metadata.TagProvider{}
	if songsCSV != "" {
		static, err := metadata.LoadCSVFile(songsCSV)
		if err != nil {
			logger.GetLogger().Warnf("Ignoring songs CSV: %v", err)
		} else {
			provider = &metadata.TagProvider{Dir: filepath.Dir(songsCSV), Overrides: static}
		}
	}
	info, _ := provider.Lookup(filename)
	return info
}

func handleList(ctx context.Context) {
	svc, err := createService()
	if err != nil {
		fail("Failed to create service", err)
	}
	defer svc.Close()

	songs, err := svc.ListSongs(ctx)
	if err != nil {
		fail("Failed to list songs", err)
	}
	if len(songs) == 0 {
		fmt.Println("\n📭 No songs in database")
		return
	}

	fmt.Printf("\n📚 Found %s song(s):\n\n", humanize.Comma(int64(len(songs))))
	for _, song := range songs {
		fmt.Printf("%5d. %s", song.ID, song.Filename)
		if !song.CreatedAt.IsZero() {
			fmt.Printf(" (added %s)", humanize.Time(song.CreatedAt))
		}
		fmt.Println()
	}
}

func handleDelete(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: tunematch delete <song_id>")
		os.Exit(1)
	}
	songID, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fail("Invalid song ID", err)
	}

	svc, err := createService()
	if err != nil {
		fail("Failed to create service", err)
	}
	defer svc.Close()

	song, err := svc.GetSong(ctx, uint(songID))
	if errors.Is(err, tunematch.ErrSongNotFound) {
		fmt.Printf("❌ Song not found (ID: %d)\n", songID)
		os.Exit(1)
	}
	if err != nil {
		fail("Failed to load song", err)
	}
	if err := svc.DeleteSong(ctx, song.ID); err != nil {
		fail("Failed to delete song", err)
	}
	fmt.Printf("\n✅ Deleted song %d: %s\n", song.ID, song.Filename)
}

func handleStats(ctx context.Context) {
	svc, err := createService()
	if err != nil {
		fail("Failed to create service", err)
	}
	defer svc.Close()

	stats, err := svc.Stats(ctx)
	if err != nil {
		fail("Failed to read stats", err)
	}
	fmt.Printf("\n📊 Backend: %s\n", stats.Backend)
	fmt.Printf("   Songs:        %s\n", humanize.Comma(stats.Songs))
	fmt.Printf("   Fingerprints: %s\n", humanize.Comma(stats.Fingerprints))
	if stats.Songs > 0 {
		fmt.Printf("   Per song:     %s\n", humanize.Comma(stats.Fingerprints/stats.Songs))
	}
}

// handleSchema opens the store, which creates tables and indexes if missing.
func handleSchema() {
	svc, err := createService()
	if err != nil {
		fail("Failed to prepare schema", err)
	}
	svc.Close()
	fmt.Printf("✅ Schema ready at %s (%s)\n", dbPath, backend)
}

func printUsage() {
	fmt.Println("tunematch - audio fingerprint catalog")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  -db <path>         Database path (env: TUNEMATCH_DB_PATH, default: tunematch.sqlite3)")
	fmt.Println("  -backend <name>    sqlite or badger (env: TUNEMATCH_BACKEND, default: sqlite)")
	fmt.Println("  -temp <dir>        Temporary directory for audio conversion (env: TUNEMATCH_TEMP_DIR)")
	fmt.Println("  -rate <hz>         Processing sample rate (default: 8000)")
	fmt.Println("  -empty <policy>    skip or error for files without fingerprints (default: skip)")
	fmt.Println("  -workers <n>       Parallel decoders during ingest (default: 1)")
	fmt.Println("  -songs <csv>       Display metadata CSV (env: TUNEMATCH_SONGS_CSV)")
	fmt.Println("  -batch <n>         Hashes per lookup query (default: 900)")
	fmt.Println("  -v                 Debug logging (or LOG_LEVEL=debug)")
	fmt.Println("\nUsage:")
	fmt.Println("  tunematch [options] ingest <folder>")
	fmt.Println("  tunematch [options] match <audio_file>")
	fmt.Println("  tunematch [options] list")
	fmt.Println("  tunematch [options] delete <song_id>")
	fmt.Println("  tunematch [options] stats")
	fmt.Println("  tunematch [options] schema")
	fmt.Println("\nExamples:")
	fmt.Println("  tunematch -workers 4 ingest ./music")
	fmt.Println("  tunematch -backend badger -db ./catalog match clip.m4a")
}
