package timelineservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/juriscope/juriscope-timeline/internal/api"
	"github.com/juriscope/juriscope-timeline/internal/auth"
	"github.com/juriscope/juriscope-timeline/internal/config"
	"github.com/juriscope/juriscope-timeline/internal/factory"
	"github.com/juriscope/juriscope-timeline/internal/health"
	"github.com/juriscope/juriscope-timeline/internal/jobs"
	"github.com/juriscope/juriscope-timeline/internal/logger"
	"github.com/juriscope/juriscope-timeline/internal/services"
	"github.com/juriscope/juriscope-timeline/internal/source"
	"github.com/juriscope/juriscope-timeline/internal/store"
)

// Run starts the timeline service HTTP server and blocks until shutdown or error.
func Run() error {
	log := logger.New("timeline-service")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	log.Info().
		Str("db_driver", cfg.DBDriver).
		Int("http_port", cfg.HTTPPort).
		Str("registry_base_url", cfg.RegistryBaseURL).
		Msg("Timeline service starting")

	// Cancellable root context bound to SIGINT/SIGTERM
	ctx, stop := newServerContext()
	defer stop()

	st, db, err := factory.NewStore(cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Store adapter unavailable")
		return err
	}
	defer func() { _ = db.Close() }()

	queue, err := jobs.NewQueue(db, cfg.DBDriver)
	if err != nil {
		return err
	}

	router := buildRouter(st, queue, cfg, log)

	// Start health checkers and bind service health
	svcHealth := startHealthCheckers(ctx, cfg, log, st)

	// Block startup until dependencies report healthy; fail fast otherwise
	if err := waitUntilHealthy(ctx, cfg, svcHealth); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return err
	}

	server := newHTTPServer(ctx, cfg, router)
	errCh := serveHTTP(server, log, cfg)

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

// buildRouter wires services, source adapters and the HTTP surface.
func buildRouter(st store.Store, queue *jobs.Queue, cfg *config.Config, log zerolog.Logger) http.Handler {
	adapters := buildAdapters(st, cfg, log)

	deps := api.RouterDeps{
		Timeline:   services.NewTimelineService(st),
		Merge:      services.NewMergeService(st, adapters, log),
		Conflicts:  services.NewConflictService(st, log),
		Queue:      queue,
		Authorizer: auth.NewStaticAuthorizer(cfg.APIKeys),
	}
	return api.NewRouter(deps)
}

// buildAdapters returns the merge sources in priority order: documents first,
// then the registry, so registry attribution wins on strictly higher
// confidence only.
func buildAdapters(st store.Store, cfg *config.Config, log zerolog.Logger) []source.Adapter {
	adapters := []source.Adapter{
		source.NewDocumentAdapter(st.Extractions(), log),
	}
	if cfg.RegistryBaseURL != "" {
		timeout := time.Duration(cfg.RegistryTimeoutSeconds) * time.Second
		adapters = append(adapters, source.NewRegistryAdapter(cfg.RegistryBaseURL, cfg.RegistryAPIKey, timeout, log))
	} else {
		log.Warn().Msg("registry base URL not configured; merging document extractions only")
	}
	return adapters
}

// startHealthCheckers starts component checkers and the service-level aggregator.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, st store.Store) *health.ServiceHealthChecker {
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second

	storeChecker := store.NewStoreHealthChecker(st, log, probeTimeout)
	go storeChecker.Start(ctx, interval)

	svcHealth := health.NewServiceHealthChecker(log, storeChecker)
	go svcHealth.Start(ctx, interval)
	api.BindServiceHealth(svcHealth.IsHealthy)
	return svcHealth
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// calculateStartupHealthTimeout returns the startup health timeout in seconds,
// calculated as interval*2 with a minimum of 60 seconds.
func calculateStartupHealthTimeout(healthIntervalSeconds int) int {
	timeout := healthIntervalSeconds * 2
	if timeout < 60 {
		return 60
	}
	return timeout
}

// waitUntilHealthy blocks until service health is healthy or the startup window expires.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, svcHealth *health.ServiceHealthChecker) error {
	timeoutSeconds := calculateStartupHealthTimeout(cfg.HealthIntervalSeconds)
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if svcHealth.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %d seconds", timeoutSeconds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// newServerContext returns a cancellable context that is cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
