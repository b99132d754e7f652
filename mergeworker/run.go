package mergeworker

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juriscope/juriscope-timeline/internal/config"
	"github.com/juriscope/juriscope-timeline/internal/factory"
	"github.com/juriscope/juriscope-timeline/internal/jobs"
	"github.com/juriscope/juriscope-timeline/internal/logger"
	"github.com/juriscope/juriscope-timeline/internal/services"
	"github.com/juriscope/juriscope-timeline/internal/source"
)

// Run starts the merge worker and blocks until shutdown or error.
func Run() error {
	log := logger.New("merge-worker")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("config")
		return err
	}

	st, db, err := factory.NewStore(cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("store")
		return err
	}
	defer func() { _ = db.Close() }()

	adapters := []source.Adapter{
		source.NewDocumentAdapter(st.Extractions(), log),
	}
	if cfg.RegistryBaseURL != "" {
		timeout := time.Duration(cfg.RegistryTimeoutSeconds) * time.Second
		adapters = append(adapters, source.NewRegistryAdapter(cfg.RegistryBaseURL, cfg.RegistryAPIKey, timeout, log))
	} else {
		log.Warn().Msg("registry base URL not configured; merging document extractions only")
	}

	merger := services.NewMergeService(st, adapters, log)
	w, err := jobs.NewWorker(db, cfg.DBDriver, merger, jobs.Config{
		BatchSize: cfg.MergeJobBatchSize,
		Interval:  time.Duration(cfg.MergeJobIntervalSeconds) * time.Second,
	}, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := w.Run(ctx); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("merge worker exit")
		return err
	}
	return nil
}
