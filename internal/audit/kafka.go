package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Publisher is the slice of kafka.Producer the audit log needs.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

// KafkaLog publishes each record as JSON keyed by its id.
type KafkaLog struct {
	publisher Publisher
}

// NewKafkaLog creates a log on top of a producer bound to the audit topic.
func NewKafkaLog(publisher Publisher) *KafkaLog {
	return &KafkaLog{publisher: publisher}
}

// Append publishes a new record with a fresh id.
func (l *KafkaLog) Append(ctx context.Context, city string, timestamp time.Time, address string) error {
	rec := NewRecord(city, timestamp, address)

	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrAudit, rec.ID, err)
	}
	if err := l.publisher.Publish(ctx, []byte(rec.ID), value); err != nil {
		return fmt.Errorf("%w: %w", ErrAudit, err)
	}
	return nil
}

// Ensure KafkaLog implements Log
var _ Log = (*KafkaLog)(nil)
