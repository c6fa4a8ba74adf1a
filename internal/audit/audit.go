// Package audit records cache-population events. Records are write-once:
// nothing in this service reads, updates or deletes them.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"weather-cache/internal/models"
)

// ErrAudit wraps every backend failure reported by a Log.
var ErrAudit = errors.New("audit: backend failure")

// Log appends audit records.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Append assigns a fresh unique id to every record.
type Log interface {
	Append(ctx context.Context, city string, timestamp time.Time, address string) error
}

// NewRecord builds the record for one cache-population event.
func NewRecord(city string, timestamp time.Time, address string) models.AuditRecord {
	return models.AuditRecord{
		ID:        uuid.NewString(),
		City:      city,
		S3FileURL: address,
		Timestamp: timestamp.Unix(),
	}
}
