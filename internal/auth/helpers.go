package auth

import (
	"fmt"
	"net/http"
	"strings"
)

// ExtractAPIKey pulls the bearer token from the Authorization header.
func ExtractAPIKey(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", fmt.Errorf("missing Authorization header")
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", fmt.Errorf("Authorization header must be 'Bearer <key>'")
	}
	key := strings.TrimSpace(parts[1])
	if key == "" {
		return "", fmt.Errorf("empty API key")
	}
	return key, nil
}
