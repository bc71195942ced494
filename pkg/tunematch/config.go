package tunematch

import "os"

const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

type Config struct {
	DBPath          string
	Backend         string
	TempDir         string
	SampleRate      int
	Logger          Logger
	Store           Store
	Decoder         Decoder
	Extractor       Extractor
	EmptyPolicy     EmptyPolicy
	Workers         int
	LookupBatchSize int
	Progress        func(IngestEvent)
}

type Option func(*Config)

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

// WithBackend selects BackendSQLite or BackendBadger. For Badger, DBPath is a
// directory; an empty path opens an in-memory store.
func WithBackend(backend string) Option {
	return func(c *Config) {
		c.Backend = backend
	}
}

func WithTempDir(dir string) Option {
	return func(c *Config) {
		c.TempDir = dir
	}
}

func WithSampleRate(rate int) Option {
	return func(c *Config) {
		c.SampleRate = rate
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

// WithStore uses an already opened store. The service closes it on Close.
func WithStore(store Store) Option {
	return func(c *Config) {
		c.Store = store
	}
}

func WithDecoder(d Decoder) Option {
	return func(c *Config) {
		c.Decoder = d
	}
}

func WithExtractor(e Extractor) Option {
	return func(c *Config) {
		c.Extractor = e
	}
}

func WithEmptyPolicy(p EmptyPolicy) Option {
	return func(c *Config) {
		c.EmptyPolicy = p
	}
}

// WithWorkers sets how many files are decoded and fingerprinted at once.
// Store writes always happen on a single goroutine.
func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Workers = n
	}
}

func WithLookupBatchSize(n int) Option {
	return func(c *Config) {
		c.LookupBatchSize = n
	}
}

func WithProgress(fn func(IngestEvent)) Option {
	return func(c *Config) {
		c.Progress = fn
	}
}

func defaultConfig() *Config {
	return &Config{
		DBPath:     "tunematch.sqlite3",
		Backend:    BackendSQLite,
		TempDir:    os.TempDir(),
		SampleRate: 8000,
		Workers:    1,
	}
}
