// Package health tracks whether the service is fit to take traffic.
package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// HealthChecker is one monitored component (store, registry client). Each
// checker probes on its own cadence; IsHealthy returns the last result.
type HealthChecker interface {
	Name() string
	IsHealthy() bool
	Start(ctx context.Context, interval time.Duration)
}

// ServiceHealthChecker folds the component checkers into the single flag the
// health endpoint and the startup gate read. The service is up only while
// every component is.
type ServiceHealthChecker struct {
	healthy    atomic.Int32
	components []HealthChecker
	log        zerolog.Logger
}

func NewServiceHealthChecker(log zerolog.Logger, components ...HealthChecker) *ServiceHealthChecker {
	h := &ServiceHealthChecker{components: components, log: log}
	h.healthy.Store(0)
	return h
}

// IsHealthy returns the cached service-level verdict.
func (h *ServiceHealthChecker) IsHealthy() bool { return h.healthy.Load() == 1 }

// Start re-evaluates the components every interval until ctx is canceled.
// Transitions are logged once, not on every tick.
func (h *ServiceHealthChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prev := int32(0)
	eval := func() {
		up := int32(1)
		for _, c := range h.components {
			if !c.IsHealthy() {
				h.log.Warn().Str("component", c.Name()).Msg("component unhealthy")
				up = 0
			}
		}
		h.healthy.Store(up)
		if up != prev {
			if up == 1 {
				h.log.Info().Msg("timeline service healthy")
			} else {
				h.log.Error().Msg("timeline service unhealthy")
			}
			prev = up
		}
	}

	eval()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			eval()
		}
	}
}
