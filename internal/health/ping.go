package health

import "context"

// HealthPinger is the fast-path probe. Stores that can answer a cheap
// liveness query implement it; the store checker falls back to a real read
// when they don't. A nil return means healthy.
type HealthPinger interface {
	HealthPing(ctx context.Context) error
}
