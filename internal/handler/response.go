package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"otp-agent/internal/auth"
	"otp-agent/internal/backend"
	"otp-agent/internal/catalog"
	"otp-agent/internal/model"
	"otp-agent/internal/purchase"
	"otp-agent/internal/util"
	"otp-agent/internal/wallet"
)

// Response is the envelope of every API response.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// Meta carries paging details for list responses.
type Meta struct {
	Total int `json:"total"`
	Limit int `json:"limit,omitempty"`
	Skip  int `json:"skip,omitempty"`
}

// Error codes returned in Response.Error.
const (
	codeValidation         = "validation_error"
	codeLoginRequired      = "login_required"
	codeNoActiveSession    = "no_active_session"
	codeSessionFinished    = "session_finished"
	codeInsufficientFunds  = "insufficient_balance"
	codeCancelNotConfirmed = "cancel_not_confirmed"
	codeBackend            = "backend_error"
	codeUnavailable        = "backend_unavailable"
	codeFeatureDisabled    = "feature_disabled"
	codeNotFound           = "not_found"
	codeMethodNotAllowed   = "method_not_allowed"
	codeInternal           = "internal_error"
)

const maxBodyBytes = 1 << 20

func successResponse(data interface{}, message string) Response {
	return Response{Success: true, Data: data, Message: message}
}

func errorResponse(code, message string) Response {
	return Response{Success: false, Error: code, Message: message}
}

// responder is embedded by every handler for the shared JSON plumbing.
type responder struct {
	logger *zap.Logger
}

func (h responder) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError maps err to a status code and error code and writes the
// envelope.
func (h responder) respondWithError(w http.ResponseWriter, err error, fallback string) {
	statusCode, code := classify(err)
	message := errorMessage(err, fallback)

	if statusCode >= http.StatusInternalServerError {
		h.logger.Warn("HTTP error response",
			util.ErrorField(err),
			util.Int("status_code", statusCode),
			util.String("code", code),
		)
	} else {
		h.logger.Debug("HTTP client error",
			util.ErrorField(err),
			util.Int("status_code", statusCode),
			util.String("code", code),
		)
	}
	h.respondWithJSON(w, statusCode, errorResponse(code, message))
}

func (h responder) badRequest(w http.ResponseWriter, message string) {
	h.respondWithJSON(w, http.StatusBadRequest, errorResponse(codeValidation, message))
}

// decodeJSON reads a size-limited JSON body into dst. An empty body leaves
// dst untouched.
func (h responder) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		h.badRequest(w, "Invalid request body")
		return false
	}
	return true
}

func classify(err error) (int, string) {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, model.ErrValidation),
		errors.Is(err, auth.ErrMissingCredentials),
		errors.Is(err, wallet.ErrInvalidPage),
		errors.Is(err, catalog.ErrInvalidCountry):
		return http.StatusBadRequest, codeValidation
	case errors.Is(err, backend.ErrUnauthorized):
		return http.StatusUnauthorized, codeLoginRequired
	case errors.Is(err, purchase.ErrNoActiveSession):
		return http.StatusNotFound, codeNoActiveSession
	case errors.Is(err, purchase.ErrSessionFinished):
		return http.StatusConflict, codeSessionFinished
	case errors.Is(err, purchase.ErrCancelNotConfirmed):
		return http.StatusBadGateway, codeCancelNotConfirmed
	case errors.Is(err, backend.ErrUnavailable):
		return http.StatusServiceUnavailable, codeUnavailable
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, codeBackend
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

func errorMessage(err error, fallback string) string {
	var (
		vErr   *model.ValidationError
		apiErr *backend.APIError
	)
	switch {
	case errors.As(err, &vErr):
		return vErr.Message
	case errors.As(err, &apiErr), errors.Is(err, backend.ErrUnavailable):
		return backend.Message(err)
	case errors.Is(err, backend.ErrUnauthorized):
		return "Please log in to continue"
	case errors.Is(err, auth.ErrMissingCredentials),
		errors.Is(err, wallet.ErrInvalidPage),
		errors.Is(err, catalog.ErrInvalidCountry),
		errors.Is(err, purchase.ErrNoActiveSession),
		errors.Is(err, purchase.ErrSessionFinished):
		return err.Error()
	default:
		return fallback
	}
}

// searchTerm reads ?q= and rejects markup. It writes the 400 itself.
func (h responder) searchTerm(w http.ResponseWriter, r *http.Request) (string, bool) {
	term := strings.TrimSpace(r.URL.Query().Get("q"))
	if util.ContainsSuspicious(term) {
		h.badRequest(w, "Search term contains invalid characters")
		return "", false
	}
	return term, true
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
