package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"otp-agent/internal/model"
	"otp-agent/internal/purchase"
	"otp-agent/internal/wallet"
)

type WalletService interface {
	Balance(ctx context.Context) (model.Balance, error)
	Transactions(ctx context.Context, limit, skip int) (model.TransactionPage, error)
	Quote(ctx context.Context, serviceID, countryID string) (wallet.Quote, error)
	AddMoney(ctx context.Context, req wallet.DepositRequest) (model.Deposit, error)
}

type WalletHandler struct {
	responder
	wallet WalletService
}

func NewWalletHandler(svc WalletService, logger *zap.Logger) *WalletHandler {
	return &WalletHandler{responder: responder{logger: logger}, wallet: svc}
}

func (h *WalletHandler) RegisterRoutes(router chi.Router) {
	router.Route("/wallet", func(r chi.Router) {
		r.Get("/balance", h.Balance)
		r.Get("/transactions", h.Transactions)
		r.Get("/affordability", h.Affordability)
		r.Post("/add-money", h.AddMoney)
	})
}

func (h *WalletHandler) Balance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.wallet.Balance(r.Context())
	if err != nil {
		h.respondWithError(w, err, "Failed to load balance")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"balance": balance.Amount,
		"display": wallet.FormatPrice(balance.Amount),
	}, ""))
}

func (h *WalletHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit")
	if !ok {
		h.badRequest(w, "limit must be a number")
		return
	}
	skip, ok := queryInt(r, "skip")
	if !ok {
		h.badRequest(w, "skip must be a number")
		return
	}

	page, err := h.wallet.Transactions(r.Context(), limit, skip)
	if err != nil {
		h.respondWithError(w, err, "Failed to load transactions")
		return
	}

	resp := successResponse(page, "")
	resp.Meta = &Meta{Total: page.Total, Limit: limit, Skip: skip}
	h.respondWithJSON(w, http.StatusOK, resp)
}

// AddMoney starts a top-up. When the backend returns a payment_url the client
// must open it to finish paying.
func (h *WalletHandler) AddMoney(w http.ResponseWriter, r *http.Request) {
	var req wallet.DepositRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	dep, err := h.wallet.AddMoney(r.Context(), req)
	if err != nil {
		h.respondWithError(w, err, "Failed to process payment request")
		return
	}
	message := dep.Message
	if message == "" {
		message = "Payment request created"
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(dep, message))
}

// Affordability answers whether the balance covers a price. The price is
// either given directly (?price=12.5 or ?price=₹12.50) or looked up live
// with ?service_id=&country_id=.
func (h *WalletHandler) Affordability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	serviceID, countryID := q.Get("service_id"), q.Get("country_id")

	if serviceID != "" || countryID != "" {
		if err := purchase.Validate(serviceID, countryID); err != nil {
			h.respondWithError(w, err, "Invalid request")
			return
		}
		quote, err := h.wallet.Quote(r.Context(), serviceID, countryID)
		if err != nil {
			h.respondWithError(w, err, "Failed to check price")
			return
		}
		h.respondWithJSON(w, http.StatusOK, successResponse(quote, quote.Message()))
		return
	}

	price, ok := parseAmount(q.Get("price"))
	if !ok {
		h.badRequest(w, "price is required")
		return
	}
	balance, err := h.wallet.Balance(r.Context())
	if err != nil {
		h.respondWithError(w, err, "Failed to load balance")
		return
	}
	quote := wallet.Affordability(balance.Amount, price)
	h.respondWithJSON(w, http.StatusOK, successResponse(quote, quote.Message()))
}

func parseAmount(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil && v >= 0 {
		return v, true
	}
	return wallet.ParsePrice(raw)
}
