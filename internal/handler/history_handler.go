package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"otp-agent/internal/history"
)

type HistorySearcher interface {
	Search(ctx context.Context, term string, limit int) (history.Result, error)
}

// HistoryHandler serves past purchases. With no searcher configured every
// request answers feature_disabled.
type HistoryHandler struct {
	responder
	search HistorySearcher
}

func NewHistoryHandler(search HistorySearcher, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{responder: responder{logger: logger}, search: search}
}

func (h *HistoryHandler) RegisterRoutes(router chi.Router) {
	router.Get("/history", h.Search)
}

func (h *HistoryHandler) Search(w http.ResponseWriter, r *http.Request) {
	if h.search == nil {
		h.respondWithJSON(w, http.StatusNotFound, errorResponse(codeFeatureDisabled, "Purchase history is not configured"))
		return
	}

	term, ok := h.searchTerm(w, r)
	if !ok {
		return
	}
	limit, ok := queryInt(r, "limit")
	if !ok {
		h.badRequest(w, "limit must be a number")
		return
	}

	result, err := h.search.Search(r.Context(), term, limit)
	if err != nil {
		h.respondWithError(w, err, "Failed to search history")
		return
	}
	resp := successResponse(result.Records, "")
	resp.Meta = &Meta{Total: result.Total, Limit: limit}
	h.respondWithJSON(w, http.StatusOK, resp)
}
