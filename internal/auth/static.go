package auth

import (
	"context"
	"fmt"
	"strings"
)

// StaticAuthorizer accepts a fixed set of API keys. With no keys configured it
// allows everything (dev mode); production deployments front this service with
// the main application's key management.
type StaticAuthorizer struct {
	keys map[string]bool
}

// NewStaticAuthorizer builds an authorizer from a comma-separated key list.
func NewStaticAuthorizer(csv string) *StaticAuthorizer {
	keys := make(map[string]bool)
	for _, k := range strings.Split(csv, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys[k] = true
		}
	}
	return &StaticAuthorizer{keys: keys}
}

func (a *StaticAuthorizer) Authorize(ctx context.Context, apiKey, operation string) (*ActorInfo, error) {
	if len(a.keys) == 0 || a.keys[apiKey] {
		return &ActorInfo{ActorID: "api-key", KeyName: "static", Permissions: []string{"*"}}, nil
	}
	return nil, fmt.Errorf("invalid API key")
}
