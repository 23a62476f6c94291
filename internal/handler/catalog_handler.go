package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"otp-agent/internal/catalog"
	"otp-agent/internal/model"
)

type CatalogService interface {
	Countries(ctx context.Context) (catalog.CountryList, error)
	Services(ctx context.Context, countryID string) ([]model.Service, error)
	Overview(ctx context.Context, countryID, term string) (catalog.Overview, error)
}

type CatalogHandler struct {
	responder
	catalog CatalogService
}

func NewCatalogHandler(svc CatalogService, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{responder: responder{logger: logger}, catalog: svc}
}

func (h *CatalogHandler) RegisterRoutes(router chi.Router) {
	router.Route("/catalog/countries", func(r chi.Router) {
		r.Get("/", h.Countries)
		r.Get("/{countryID}/services", h.Services)
		r.Get("/{countryID}/overview", h.Overview)
	})
}

// Countries lists countries, filtered by ?q= on title or code.
func (h *CatalogHandler) Countries(w http.ResponseWriter, r *http.Request) {
	term, ok := h.searchTerm(w, r)
	if !ok {
		return
	}

	list, err := h.catalog.Countries(r.Context())
	if err != nil {
		h.respondWithError(w, err, "Failed to load countries")
		return
	}

	list.Countries = catalog.FilterCountries(list.Countries, term)
	message := ""
	if list.Fallback {
		message = "Showing offline country list"
	}
	resp := successResponse(list, message)
	resp.Meta = &Meta{Total: list.Total}
	h.respondWithJSON(w, http.StatusOK, resp)
}

func (h *CatalogHandler) Services(w http.ResponseWriter, r *http.Request) {
	term, ok := h.searchTerm(w, r)
	if !ok {
		return
	}

	services, err := h.catalog.Services(r.Context(), chi.URLParam(r, "countryID"))
	if err != nil {
		h.respondWithError(w, err, "Failed to load services")
		return
	}

	total := len(services)
	resp := successResponse(catalog.FilterServices(services, term), "")
	resp.Meta = &Meta{Total: total}
	h.respondWithJSON(w, http.StatusOK, resp)
}

func (h *CatalogHandler) Overview(w http.ResponseWriter, r *http.Request) {
	term, ok := h.searchTerm(w, r)
	if !ok {
		return
	}

	overview, err := h.catalog.Overview(r.Context(), chi.URLParam(r, "countryID"), term)
	if err != nil {
		h.respondWithError(w, err, "Failed to load services")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(overview, ""))
}
