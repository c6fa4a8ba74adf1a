package workers

import (
	"context"
	"encoding/json"
	"log/slog"

	"weather-cache/internal/models"
)

// RecordWriter stores an audit record as is. *audit.RedisLog satisfies it.
type RecordWriter interface {
	Write(ctx context.Context, rec models.AuditRecord) error
}

// AuditSyncer copies audit records published on Kafka into Redis so they can
// be queried by city.
type AuditSyncer struct {
	sink   RecordWriter
	logger *slog.Logger
}

func NewAuditSyncer(sink RecordWriter, logger *slog.Logger) *AuditSyncer {
	return &AuditSyncer{
		sink:   sink,
		logger: logger.With("component", "audit_syncer"),
	}
}

// Handle processes one Kafka record. Malformed records are logged and
// dropped; there is nothing to retry them against.
func (s *AuditSyncer) Handle(ctx context.Context, key, value []byte) {
	if len(key) == 0 {
		s.logger.WarnContext(ctx, "audit record without key")
		return
	}

	var rec models.AuditRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		s.logger.ErrorContext(ctx, "audit record unmarshal failed", "key", string(key), "error", err)
		return
	}
	if rec.ID != string(key) {
		s.logger.WarnContext(ctx, "audit record id does not match key", "key", string(key), "id", rec.ID)
		return
	}

	if err := s.sink.Write(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, "audit record sync failed", "id", rec.ID, "error", err)
		return
	}
	s.logger.DebugContext(ctx, "audit record synced", "id", rec.ID, "city", rec.City)
}
