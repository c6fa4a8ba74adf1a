package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"weather-cache/internal/audit"
)

// AuditRepository appends audit records to a Postgres table.
type AuditRepository struct {
	db    *sql.DB
	table string
}

func NewAuditRepository(db *sql.DB, table string) *AuditRepository {
	return &AuditRepository{db: db, table: pq.QuoteIdentifier(table)}
}

// EnsureTable creates the audit table when it does not exist yet.
func (r *AuditRepository) EnsureTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+r.table+` (
			id          UUID PRIMARY KEY,
			city        TEXT NOT NULL,
			s3_file_url TEXT NOT NULL,
			timestamp   BIGINT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("%w: create table %s: %w", audit.ErrAudit, r.table, err)
	}
	return nil
}

// Append inserts one record with a fresh id.
func (r *AuditRepository) Append(ctx context.Context, city string, timestamp time.Time, address string) error {
	rec := audit.NewRecord(city, timestamp, address)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO `+r.table+` (id, city, s3_file_url, timestamp) VALUES ($1, $2, $3, $4)`,
		rec.ID, rec.City, rec.S3FileURL, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("%w: insert %s: %w", audit.ErrAudit, rec.ID, err)
	}
	return nil
}

// Ensure AuditRepository implements audit.Log
var _ audit.Log = (*AuditRepository)(nil)
