package history

import (
	"context"
	"fmt"
)

// Execer is the part of client.ClickHouseClient the recorder uses.
type Execer interface {
	Exec(ctx context.Context, query string, args ...interface{}) error
	BatchInsert(ctx context.Context, query string, rows [][]interface{}) error
}

const createPurchaseSessions = `
CREATE TABLE IF NOT EXISTS purchase_sessions (
	session_id   String,
	request_id   String,
	phone_number String,
	service_id   LowCardinality(String),
	country_id   LowCardinality(String),
	status       LowCardinality(String),
	otp_code     String,
	checks       UInt32,
	note         String,
	created_at   DateTime64(3, 'UTC'),
	finished_at  DateTime64(3, 'UTC'),
	bucket       UInt16,
	date_bucket  String
) ENGINE = MergeTree
PARTITION BY toYYYYMM(finished_at)
ORDER BY (date_bucket, bucket, finished_at, session_id)`

const insertPurchaseSession = `INSERT INTO purchase_sessions (
	session_id, request_id, phone_number, service_id, country_id, status,
	otp_code, checks, note, created_at, finished_at, bucket, date_bucket
)`

type ClickHouseRecorder struct {
	db Execer
}

func NewClickHouseRecorder(db Execer) *ClickHouseRecorder {
	return &ClickHouseRecorder{db: db}
}

// EnsureSchema creates the purchase_sessions table if it does not exist.
func (r *ClickHouseRecorder) EnsureSchema(ctx context.Context) error {
	if err := r.db.Exec(ctx, createPurchaseSessions); err != nil {
		return fmt.Errorf("failed to create purchase_sessions: %w", err)
	}
	return nil
}

func (r *ClickHouseRecorder) Name() string { return "clickhouse" }

func (r *ClickHouseRecorder) Record(ctx context.Context, rec Record) error {
	row := []interface{}{
		rec.SessionID,
		rec.RequestID,
		rec.PhoneNumber,
		rec.ServiceID,
		rec.CountryID,
		rec.Status,
		rec.OTPCode,
		uint32(rec.Checks),
		rec.Note,
		rec.CreatedAt,
		rec.FinishedAt,
		uint16(rec.Bucket),
		rec.DateBucket,
	}
	if err := r.db.BatchInsert(ctx, insertPurchaseSession, [][]interface{}{row}); err != nil {
		return fmt.Errorf("failed to insert purchase session: %w", err)
	}
	return nil
}
