// Package storage keeps fetched weather documents in S3-compatible object
// storage.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"weather-cache/internal/models"
)

// ErrStorage wraps every backend failure reported by an ArtifactStore.
var ErrStorage = errors.New("storage: backend failure")

// ArtifactStore persists immutable JSON documents under string keys.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: backend failures are returned wrapped around ErrStorage; nothing panics.
// - FindLatest returns ok=false, err=nil when no object qualifies.
type ArtifactStore interface {
	// Put writes doc under key and returns its storage address.
	Put(ctx context.Context, key string, doc json.RawMessage) (string, error)

	// Get reads the document at a storage address (or a bare key).
	Get(ctx context.Context, address string) (json.RawMessage, error)

	// FindLatest returns the most recently modified artifact under prefix
	// whose modification time is at or after cutoff.
	FindLatest(ctx context.Context, prefix string, cutoff time.Time) (models.Locator, bool, error)
}
