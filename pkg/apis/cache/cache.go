package cache

import (
	"context"
	"time"
)

// Cache is a keyed byte store with per-entry expiry. Entries are replaced
// wholesale; there is no partial update. A missing key is not an error:
// Get answers nil content and a nil error.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, content []byte, duration time.Duration) error
}

// RequestOptions modify how a cached record is consulted for one request.
type RequestOptions struct {
	// ForceRefresh skips the cached record and recomputes.
	ForceRefresh bool
}
