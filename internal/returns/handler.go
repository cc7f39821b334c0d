package returns

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

// Handler manages return endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers return routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/complete", h.returnComplete)
	r.Post("/partial", h.returnPartial)
	r.Get("/{id}", h.getReturn)
	r.Get("/sale/{saleID}", h.listBySale)
}

type completeReturnRequest struct {
	SaleID int64  `json:"sale_id" validate:"required,gt=0"`
	Reason string `json:"reason" validate:"required"`
}

type partialItemRequest struct {
	LineID   int64 `json:"line_id" validate:"required,gt=0"`
	Quantity int64 `json:"quantity" validate:"required,gt=0"`
}

type partialReturnRequest struct {
	SaleID int64                `json:"sale_id" validate:"required,gt=0"`
	Reason string               `json:"reason" validate:"required"`
	Items  []partialItemRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrReturnExceedsSold), errors.Is(err, ErrReturnExceedsOutstanding):
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

func (h *Handler) actorID(r *http.Request) int64 {
	if id := shared.IdentityFromContext(r.Context()); id != nil {
		return id.UserID
	}
	return 0
}

func (h *Handler) returnComplete(w http.ResponseWriter, r *http.Request) {
	var req completeReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	ret, err := h.service.ReturnComplete(r.Context(), req.SaleID, req.Reason, h.actorID(r))
	if err != nil {
		h.writeServiceError(w, "return complete", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, ret)
}

func (h *Handler) returnPartial(w http.ResponseWriter, r *http.Request) {
	var req partialReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	items := make([]LineInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, LineInput{LineID: item.LineID, Quantity: item.Quantity})
	}
	ret, err := h.service.ReturnPartial(r.Context(), req.SaleID, items, req.Reason, h.actorID(r))
	if err != nil {
		h.writeServiceError(w, "return partial", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, ret)
}

func (h *Handler) getReturn(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid return id")
		return
	}
	ret, err := h.service.GetReturn(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "get return", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, ret)
}

func (h *Handler) listBySale(w http.ResponseWriter, r *http.Request) {
	saleID, err := strconv.ParseInt(chi.URLParam(r, "saleID"), 10, 64)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid sale id")
		return
	}
	result, err := h.service.ListReturnsBySale(r.Context(), saleID)
	if err != nil {
		h.writeServiceError(w, "list returns", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}
