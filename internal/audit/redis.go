package audit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"weather-cache/internal/models"
)

// RedisLog stores each record as a hash at {prefix}:{id} and indexes it in a
// per-city sorted set scored by timestamp.
type RedisLog struct {
	client *redis.Client
	prefix string
}

// NewRedisLog creates a log writing keys under prefix.
func NewRedisLog(client *redis.Client, prefix string) *RedisLog {
	return &RedisLog{client: client, prefix: prefix}
}

// Append writes a new record with a fresh id.
func (l *RedisLog) Append(ctx context.Context, city string, timestamp time.Time, address string) error {
	return l.Write(ctx, NewRecord(city, timestamp, address))
}

// Write stores an already built record. The audit syncer uses it to replay
// records consumed from Kafka without changing their ids.
func (l *RedisLog) Write(ctx context.Context, rec models.AuditRecord) error {
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, l.RecordKey(rec.ID),
			"id", rec.ID,
			"city", rec.City,
			"s3_file_url", rec.S3FileURL,
			"timestamp", strconv.FormatInt(rec.Timestamp, 10),
		)
		pipe.ZAdd(ctx, l.CityKey(rec.City), redis.Z{
			Score:  float64(rec.Timestamp),
			Member: rec.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: redis write %s: %w", ErrAudit, rec.ID, err)
	}
	return nil
}

// RecordKey is the hash key of one record.
func (l *RedisLog) RecordKey(id string) string {
	return l.prefix + ":" + id
}

// CityKey is the sorted set indexing the records of one city.
func (l *RedisLog) CityKey(city string) string {
	return l.prefix + ":by_city:" + city
}

// Ensure RedisLog implements Log
var _ Log = (*RedisLog)(nil)
