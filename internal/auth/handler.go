package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/almacen-pos/almacen/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers auth routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginResponse struct {
	Token string          `json:"token"`
	User  shared.Identity `json:"user"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	token, user, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			shared.WriteError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.logger.Error("login", slog.Any("error", err))
		shared.WriteError(w, http.StatusInternalServerError, "login failed")
		return
	}

	shared.WriteJSON(w, http.StatusOK, loginResponse{
		Token: token,
		User:  shared.Identity{UserID: user.ID, Name: user.Name, Role: user.Role},
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := BearerToken(r)
	if token == "" {
		shared.WriteError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	if err := h.service.Logout(r.Context(), token); err != nil {
		h.logger.Error("logout", slog.Any("error", err))
		shared.WriteError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
