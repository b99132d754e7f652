package auth

import (
	"context"
)

// ActorInfo contains information about an authenticated actor.
type ActorInfo struct {
	ActorID     string   `json:"actor_id"`
	KeyName     string   `json:"key_name"`
	Permissions []string `json:"permissions"`
}

// Authorizer validates API keys and checks permissions in one call.
// Real key management lives in the main application; this service only
// consumes the interface.
type Authorizer interface {
	// Authorize validates the API key and checks whether the actor can perform
	// the operation. Returns ActorInfo if authorized.
	Authorize(ctx context.Context, apiKey, operation string) (*ActorInfo, error)
}
