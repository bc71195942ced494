package tunematch

import (
	"fmt"

	"github.com/himanishpuri/tunematch/pkg/tunematch/storage"
)

// OpenStore opens the backend named by cfg.Backend at cfg.DBPath.
func OpenStore(cfg *Config) (Store, error) {
	opts := storage.Options{LookupBatchSize: cfg.LookupBatchSize}
	switch cfg.Backend {
	case "", BackendSQLite:
		db, err := storage.NewDBClientWithPath(cfg.DBPath, opts)
		if err != nil {
			return nil, err
		}
		return db, nil
	case BackendBadger:
		kv, err := storage.NewBadgerClient(cfg.DBPath, opts)
		if err != nil {
			return nil, err
		}
		return kv, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
