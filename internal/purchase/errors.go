package purchase

import (
	"errors"

	"otp-agent/internal/model"
)

var (
	ErrValidation         = model.ErrValidation
	ErrNoActiveSession    = errors.New("no active purchase session")
	ErrSessionFinished    = errors.New("purchase session already finished")
	ErrCancelNotConfirmed = errors.New("cancel not confirmed by backend")
)

// ValidationError is returned before any request is sent.
type ValidationError = model.ValidationError
