// Package storage opens the record store selected by configuration.
package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/precinct/internal/config"
	"github.com/sakif/precinct/internal/idgen"
	"github.com/sakif/precinct/internal/repository"
	"github.com/sakif/precinct/internal/repository/jsonfile"
	"github.com/sakif/precinct/internal/repository/sqlite"
)

// Open returns the store for cfg.Driver. The caller owns it and must Close it.
func Open(cfg config.StorageConfig, logger *slog.Logger) (repository.Store, error) {
	recordID, err := idgen.ByName(cfg.RecordIDs)
	if err != nil {
		return nil, err
	}

	switch cfg.Driver {
	case "", "jsonfile":
		return jsonfile.Open(cfg.DataDir,
			jsonfile.WithLogger(logger),
			jsonfile.WithRecordIDs(recordID),
		)
	case "sqlite":
		path := cfg.DatabasePath()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("storage: creating database directory: %w", err)
		}
		logger.Info("opening sqlite record store", slog.String("path", path))
		return sqlite.New(path, sqlite.WithRecordIDs(recordID))
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
}
