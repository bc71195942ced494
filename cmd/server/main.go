package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/himanishpuri/tunematch/pkg/logger"
	"github.com/himanishpuri/tunematch/pkg/tunematch"
	"github.com/himanishpuri/tunematch/pkg/tunematch/metadata"
	"github.com/joho/godotenv"
	"github.com/mdobak/go-xerrors"
)

var (
	port           int
	dbPath         string
	backend        string
	tempDir        string
	sampleRate     int
	allowedOrigins string
	songsCSV       string
)

func registerFlags() {
	flag.IntVar(&port, "port", 8080, "HTTP server port")
	flag.StringVar(&dbPath, "db", getEnvOrDefault("TUNEMATCH_DB_PATH", "tunematch.sqlite3"), "Path to the database (SQLite file or Badger directory)")
	flag.StringVar(&backend, "backend", getEnvOrDefault("TUNEMATCH_BACKEND", tunematch.BackendSQLite), "Store backend: sqlite or badger")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("TUNEMATCH_TEMP_DIR", os.TempDir()), "Temporary directory")
	flag.IntVar(&sampleRate, "rate", 8000, "Sample rate audio is resampled to before fingerprinting")
	flag.StringVar(&allowedOrigins, "origins", getEnvOrDefault("TUNEMATCH_ORIGINS", "*"), "Comma-separated list of allowed CORS origins (use * for all)")
	flag.StringVar(&songsCSV, "songs", getEnvOrDefault("TUNEMATCH_SONGS_CSV", ""), "Optional CSV of filename,display_name,link")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseOrigins(s string) []string {
	if s == "*" {
		return []string{"*"}
	}
	origins := strings.Split(s, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	return origins
}

// loadProvider builds the metadata provider. Tags are read from files next to
// the CSV when one is given.
func loadProvider(csvPath string) (metadata.Provider, error) {
	if csvPath == "" {
		return &metadata.TagProvider{}, nil
	}
	static, err := metadata.LoadCSVFile(csvPath)
	if err != nil {
		return nil, err
	}
	return &metadata.TagProvider{Dir: filepath.Dir(csvPath), Overrides: static}, nil
}

func main() {
	_ = godotenv.Load()
	registerFlags()
	flag.Parse()

	log := logger.GetLogger()

	provider, err := loadProvider(songsCSV)
	if err != nil {
		log.LogError("Failed to load song metadata", xerrors.New(err))
		os.Exit(1)
	}

	service, err := tunematch.NewService(
		tunematch.WithDBPath(dbPath),
		tunematch.WithBackend(backend),
		tunematch.WithTempDir(tempDir),
		tunematch.WithSampleRate(sampleRate),
		tunematch.WithLogger(log.WithPrefix("[tunematch]")),
	)
	if err != nil {
		log.LogError("Failed to create service", xerrors.New(err))
		os.Exit(1)
	}
	defer service.Close()

	config := &ServerConfig{
		Port:           port,
		DBPath:         dbPath,
		Backend:        backend,
		TempDir:        tempDir,
		SampleRate:     sampleRate,
		AllowedOrigins: parseOrigins(allowedOrigins),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := NewServer(service, provider, config)
	if err := server.Start(ctx); err != nil {
		log.LogError("Server failed", xerrors.New(err))
	}
}
