package factory

import (
	"database/sql"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/juriscope/juriscope-timeline/internal/config"
	"github.com/juriscope/juriscope-timeline/internal/store"
	"github.com/juriscope/juriscope-timeline/internal/store/postgres"
	"github.com/juriscope/juriscope-timeline/internal/store/sqlite"
)

// NewStore creates a store implementation based on config. The raw *sql.DB is
// returned alongside the store so the merge-jobs queue can share it.
func NewStore(cfg *config.Config, log zerolog.Logger) (store.Store, *sql.DB, error) {
	switch cfg.DBDriver {
	case "postgres":
		db, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, errors.Wrap(err, "postgres open")
		}
		log.Info().Str("driver", "postgres").Msg("store ready")
		return postgres.NewWithDB(db), db, nil
	case "sqlite":
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, errors.Wrap(err, "sqlite open")
		}
		log.Info().Str("driver", "sqlite").Str("path", cfg.SQLitePath).Msg("store ready")
		return sqlite.New(db), db, nil
	}
	return nil, nil, errors.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
}
