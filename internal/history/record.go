// Package history stores finished purchase sessions for later lookup.
package history

import (
	"context"
	"time"

	"otp-agent/internal/bucketing"
	"otp-agent/internal/model"
)

// Record is the stored form of a finished session.
type Record struct {
	SessionID   string    `json:"session_id"`
	RequestID   string    `json:"request_id"`
	PhoneNumber string    `json:"phone_number"`
	ServiceID   string    `json:"service_id"`
	CountryID   string    `json:"country_id"`
	Status      string    `json:"status"`
	OTPCode     string    `json:"otp_code,omitempty"`
	Checks      int       `json:"checks"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Bucket      int       `json:"bucket"`
	DateBucket  string    `json:"date_bucket"`
}

// Recorder persists one record.
type Recorder interface {
	Name() string
	Record(ctx context.Context, rec Record) error
}

// NewRecord builds a record from a terminal session. ok is false for a
// session that has not finished.
func NewRecord(s model.Session, bm *bucketing.BucketingManager) (rec Record, ok bool) {
	if !s.Status.Terminal() {
		return Record{}, false
	}

	finished := s.CreatedAt
	if s.FinishedAt != nil {
		finished = *s.FinishedAt
	}
	key := s.RequestID.String()
	if key == "" {
		key = s.ID
	}
	assignment := bm.Assign(key, finished)

	return Record{
		SessionID:   s.ID,
		RequestID:   s.RequestID.String(),
		PhoneNumber: s.PhoneNumber,
		ServiceID:   s.ServiceID,
		CountryID:   s.CountryID,
		Status:      string(s.Status),
		OTPCode:     s.Code(),
		Checks:      s.Checks,
		Note:        s.Note,
		CreatedAt:   s.CreatedAt.UTC(),
		FinishedAt:  finished.UTC(),
		Bucket:      assignment.EventBucket,
		DateBucket:  assignment.DateBucket,
	}, true
}
