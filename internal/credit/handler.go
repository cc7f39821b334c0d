package credit

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/almacen-pos/almacen/internal/shared"
)

// Handler manages credit ledger endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers credit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/payments", h.registerPayment)
	r.Get("/sales/{saleID}/payments", h.listPayments)
	r.Get("/sales/{saleID}/outstanding", h.outstanding)
	r.Get("/outstanding", h.listOutstanding)
}

type paymentRequest struct {
	SaleID int64  `json:"sale_id" validate:"required,gt=0"`
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Method string `json:"method" validate:"required,oneof=CASH DEBIT TRANSFER"`
}

func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrPaymentExceedsBalance):
		shared.WriteError(w, http.StatusConflict, err.Error())
	case shared.IsValidation(err):
		shared.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, shared.ErrNotFound):
		shared.WriteError(w, http.StatusNotFound, "not found")
	default:
		h.logger.Error(op, slog.Any("error", err))
		shared.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) registerPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var actorID int64
	if id := shared.IdentityFromContext(r.Context()); id != nil {
		actorID = id.UserID
	}
	payment, err := h.service.RegisterPayment(r.Context(), req.SaleID, req.Amount, req.Method, actorID)
	if err != nil {
		h.writeServiceError(w, "register payment", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, payment)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	saleID, err := strconv.ParseInt(chi.URLParam(r, "saleID"), 10, 64)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid sale id")
		return
	}
	payments, err := h.service.ListPayments(r.Context(), saleID)
	if err != nil {
		h.writeServiceError(w, "list payments", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, payments)
}

func (h *Handler) outstanding(w http.ResponseWriter, r *http.Request) {
	saleID, err := strconv.ParseInt(chi.URLParam(r, "saleID"), 10, 64)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid sale id")
		return
	}
	balance, err := h.service.Outstanding(r.Context(), saleID)
	if err != nil {
		h.writeServiceError(w, "outstanding", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]int64{"sale_id": saleID, "outstanding": balance})
}

func (h *Handler) listOutstanding(w http.ResponseWriter, r *http.Request) {
	sort := SortKey(r.URL.Query().Get("sort"))
	list, err := h.service.ListOutstanding(r.Context(), sort)
	if err != nil {
		h.writeServiceError(w, "list outstanding", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, list)
}
