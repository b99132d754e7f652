// Package contenthash derives the deduplication key for timeline entries.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// dateLayout truncates the event date to calendar day; time-of-day never
// participates in deduplication.
const dateLayout = "2006-01-02"

// Event returns the content hash for an event date and normalized description:
// SHA-256 hex of "{YYYY-MM-DD}|{normalized}". Two candidates describing the same
// real-world event on the same date hash identically after normalization; there
// is no fuzzy fallback.
func Event(eventDate time.Time, normalized string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s", eventDate.UTC().Format(dateLayout), normalized)))
	return hex.EncodeToString(sum[:])
}

// Derived returns a hash for an entry derived from base (keep-both resolutions).
// Prefixing the base entry ID guarantees it cannot collide with the original.
func Derived(baseEntryID, baseHash string) string {
	return fmt.Sprintf("%s:%s", baseEntryID, baseHash)
}
