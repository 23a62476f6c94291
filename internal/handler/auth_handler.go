package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"otp-agent/internal/auth"
	"otp-agent/internal/model"
)

type AuthService interface {
	Login(ctx context.Context, email, password string) (model.User, error)
	Register(ctx context.Context, reg auth.Registration) (model.User, error)
	Logout(ctx context.Context) error
	Status(ctx context.Context) (auth.Status, error)
}

type AuthHandler struct {
	responder
	auth AuthService
}

func NewAuthHandler(svc AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{responder: responder{logger: logger}, auth: svc}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Get("/status", h.Status)
	})
}

// Login exchanges credentials for a backend token and stores it.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	user, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondWithError(w, err, "Login failed")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(user, "Logged in"))
}

// Register creates a backend account. The user still has to log in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.Registration
	if !h.decodeJSON(w, r, &req) {
		return
	}

	user, err := h.auth.Register(r.Context(), req)
	if err != nil {
		h.respondWithError(w, err, "Registration failed. Please try again.")
		return
	}
	h.respondWithJSON(w, http.StatusCreated, successResponse(user, "Account created, please log in"))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context()); err != nil {
		h.respondWithError(w, err, "Logout failed")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Logged out"))
}

func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.auth.Status(r.Context())
	if err != nil {
		h.respondWithError(w, err, "Failed to check login status")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(status, ""))
}
