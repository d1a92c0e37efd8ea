// Package util holds small internal helpers shared across packages. It lives
// in internal to avoid committing to public API stability prematurely.
package util

import "github.com/google/uuid"

// NewID generates a new unique identifier for events, A2A requests and
// workflow runs.
func NewID() string { return uuid.NewString() }

// Truncate shortens s to at most max runes, appending an ellipsis marker when
// truncation occurred. Used for audit-trail response snippets.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
