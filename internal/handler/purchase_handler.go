package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"otp-agent/internal/backend"
	"otp-agent/internal/model"
	"otp-agent/internal/purchase"
	"otp-agent/internal/wallet"
)

type PurchaseController interface {
	Purchase(ctx context.Context, serviceID, countryID string) (model.Session, error)
	Cancel(ctx context.Context, requestID string) (model.Session, error)
	Current() (model.Session, bool)
}

type Quoter interface {
	Quote(ctx context.Context, serviceID, countryID string) (wallet.Quote, error)
}

type PurchaseHandler struct {
	responder
	controller PurchaseController
	quoter     Quoter
}

func NewPurchaseHandler(controller PurchaseController, quoter Quoter, logger *zap.Logger) *PurchaseHandler {
	return &PurchaseHandler{responder: responder{logger: logger}, controller: controller, quoter: quoter}
}

type purchaseRequest struct {
	ServiceID    string `json:"service_id"`
	CountryID    string `json:"country_id"`
	CheckBalance bool   `json:"check_balance"`
}

func (h *PurchaseHandler) RegisterRoutes(router chi.Router) {
	router.Route("/purchases", func(r chi.Router) {
		r.Post("/", h.Purchase)
		r.Get("/current", h.Current)
		r.Post("/{requestID}/cancel", h.Cancel)
	})
}

// Purchase buys a number and starts waiting for its SMS. With
// check_balance set the live price is checked first and an unaffordable
// purchase is refused with 402.
func (h *PurchaseHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if err := purchase.Validate(req.ServiceID, req.CountryID); err != nil {
		h.respondWithError(w, err, "Invalid purchase request")
		return
	}

	if req.CheckBalance && h.quoter != nil {
		quote, err := h.quoter.Quote(r.Context(), req.ServiceID, req.CountryID)
		if err != nil {
			h.respondWithError(w, err, "Failed to check price")
			return
		}
		if !quote.CanAfford {
			resp := errorResponse(codeInsufficientFunds, quote.Message())
			resp.Data = quote
			h.respondWithJSON(w, http.StatusPaymentRequired, resp)
			return
		}
	}

	session, err := h.controller.Purchase(r.Context(), req.ServiceID, req.CountryID)
	if err != nil {
		h.respondWithError(w, err, "Failed to buy number")
		return
	}
	h.respondWithJSON(w, http.StatusCreated, successResponse(session, "Number purchased, waiting for SMS"))
}

func (h *PurchaseHandler) Current(w http.ResponseWriter, r *http.Request) {
	session, ok := h.controller.Current()
	if !ok {
		h.respondWithError(w, purchase.ErrNoActiveSession, "")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(session, ""))
}

// Cancel releases the number. When the backend does not confirm, the
// session is still reported as cancelled alongside the backend's reason.
func (h *PurchaseHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	session, err := h.controller.Cancel(r.Context(), chi.URLParam(r, "requestID"))
	switch {
	case err == nil:
		h.respondWithJSON(w, http.StatusOK, successResponse(session, "Number cancelled"))
	case errors.Is(err, purchase.ErrCancelNotConfirmed):
		h.logger.Warn("cancel not confirmed", zap.String("request_id", session.RequestID.String()), zap.Error(err))
		resp := errorResponse(codeCancelNotConfirmed, "Cancelled locally; "+backend.Message(err))
		resp.Data = session
		h.respondWithJSON(w, http.StatusBadGateway, resp)
	case errors.Is(err, purchase.ErrSessionFinished):
		resp := errorResponse(codeSessionFinished, err.Error())
		resp.Data = session
		h.respondWithJSON(w, http.StatusConflict, resp)
	default:
		h.respondWithError(w, err, "Failed to cancel")
	}
}
