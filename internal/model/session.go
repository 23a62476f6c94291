package model

import "time"

type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionWaiting   SessionStatus = "waiting"
	SessionReceived  SessionStatus = "received"
	SessionCancelled SessionStatus = "cancelled"
	SessionTimedOut  SessionStatus = "timed_out"
)

// Terminal reports whether no further transition is possible.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionReceived, SessionCancelled, SessionTimedOut:
		return true
	}
	return false
}

var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionPending: {SessionWaiting},
	SessionWaiting: {SessionReceived, SessionCancelled, SessionTimedOut},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to SessionStatus) bool {
	for _, next := range sessionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Session is a snapshot of one purchase and its polling state.
type Session struct {
	ID            string        `json:"id"`
	RequestID     ID            `json:"request_id"`
	PhoneNumber   string        `json:"phone_number"`
	ServiceID     string        `json:"service_id"`
	CountryID     string        `json:"country_id"`
	Status        SessionStatus `json:"status"`
	OTPCode       *string       `json:"otp_code"`
	SMSText       string        `json:"sms_text,omitempty"`
	Sender        string        `json:"sender,omitempty"`
	Checks        int           `json:"checks"`
	Note          string        `json:"note,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	ExpiresAt     time.Time     `json:"expires_at"`
	LastCheckedAt *time.Time    `json:"last_checked_at,omitempty"`
	FinishedAt    *time.Time    `json:"finished_at,omitempty"`
}

// Code returns the received OTP or "".
func (s Session) Code() string {
	if s.OTPCode == nil {
		return ""
	}
	return *s.OTPCode
}

// Clone returns a copy that shares no pointers with s.
func (s Session) Clone() Session {
	out := s
	if s.OTPCode != nil {
		c := *s.OTPCode
		out.OTPCode = &c
	}
	if s.LastCheckedAt != nil {
		t := *s.LastCheckedAt
		out.LastCheckedAt = &t
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		out.FinishedAt = &t
	}
	return out
}

// EventType names a session lifecycle event.
type EventType string

const (
	EventWaiting   EventType = "session.waiting"
	EventReceived  EventType = "session.received"
	EventCancelled EventType = "session.cancelled"
	EventTimedOut  EventType = "session.timed_out"
)

// EventFor maps a status to the event emitted when a session enters it.
func EventFor(status SessionStatus) (EventType, bool) {
	switch status {
	case SessionWaiting:
		return EventWaiting, true
	case SessionReceived:
		return EventReceived, true
	case SessionCancelled:
		return EventCancelled, true
	case SessionTimedOut:
		return EventTimedOut, true
	}
	return "", false
}

// SessionEvent is emitted on every status change of a session.
type SessionEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Session    Session   `json:"session"`
	OccurredAt time.Time `json:"occurred_at"`
}
