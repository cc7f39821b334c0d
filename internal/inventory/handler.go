package inventory

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/almacen-pos/almacen/internal/auth"
	"github.com/almacen-pos/almacen/internal/shared"
)

// Handler manages inventory endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	auth      auth.Middleware
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authmw auth.Middleware) *Handler {
	return &Handler{logger: logger, service: service, auth: authmw, validator: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/lots/{id}", h.getLot)
	r.Get("/lots/code/{code}", h.getLotByCode)
	r.Get("/products/{productID}/lots", h.listLots)
	r.Get("/products/{productID}/stock", h.getStock)
	r.Get("/low-stock", h.listLowStock)
	r.Get("/expiring", h.listExpiring)

	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireRole(auth.RoleAdmin))
		r.Post("/lots", h.createLot)
		r.Post("/lots/{id}/increment", h.incrementLot)
		r.Post("/lots/{id}/decrement", h.decrementLot)
		r.Patch("/lots/{id}", h.patchLot)
	})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrCodeTaken):
		shared.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidUnitCost), shared.IsValidation(err):
		shared.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, shared.ErrNotFound):
		shared.WriteError(w, http.StatusNotFound, "not found")
	default:
		h.logger.Error(op, slog.Any("error", err))
		shared.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

func actorID(r *http.Request) int64 {
	if id := shared.IdentityFromContext(r.Context()); id != nil {
		return id.UserID
	}
	return 0
}

func urlID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

type createLotRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Code      string `json:"code"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
	UnitCost  int64  `json:"unit_cost" validate:"gte=0"`
	Expiry    string `json:"expiry"`
}

func (h *Handler) createLot(w http.ResponseWriter, r *http.Request) {
	var req createLotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	input := LotInput{
		ProductID: req.ProductID,
		Code:      req.Code,
		Quantity:  req.Quantity,
		UnitCost:  req.UnitCost,
		ActorID:   actorID(r),
	}
	if req.Expiry != "" {
		expiry, err := time.Parse("2006-01-02", req.Expiry)
		if err != nil {
			shared.WriteError(w, http.StatusBadRequest, "expiry must be YYYY-MM-DD")
			return
		}
		input.Expiry = &expiry
	}
	lot, err := h.service.CreateLot(r.Context(), input)
	if err != nil {
		h.writeServiceError(w, "create lot", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, lot)
}

type movementRequest struct {
	Quantity int64 `json:"quantity" validate:"required,gt=0"`
}

func (h *Handler) handleMovement(w http.ResponseWriter, r *http.Request, op string, move func(lotID, qty, actor int64) (*Lot, error)) {
	lotID, ok := urlID(r, "id")
	if !ok {
		shared.WriteError(w, http.StatusBadRequest, "invalid lot id")
		return
	}
	var req movementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, "quantity must be a positive integer")
		return
	}
	lot, err := move(lotID, req.Quantity, actorID(r))
	if err != nil {
		h.writeServiceError(w, op, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, lot)
}

func (h *Handler) incrementLot(w http.ResponseWriter, r *http.Request) {
	h.handleMovement(w, r, "increment lot", func(lotID, qty, actor int64) (*Lot, error) {
		return h.service.IncrementLot(r.Context(), lotID, qty, actor)
	})
}

func (h *Handler) decrementLot(w http.ResponseWriter, r *http.Request) {
	h.handleMovement(w, r, "decrement lot", func(lotID, qty, actor int64) (*Lot, error) {
		return h.service.DecrementLot(r.Context(), lotID, qty, actor)
	})
}

type patchLotRequest struct {
	Expiry   *string `json:"expiry"`
	UnitCost *int64  `json:"unit_cost"`
	Enabled  *bool   `json:"enabled"`
}

// patchLot mutates expiry/cost/enabled; quantity moves only through the
// increment and decrement endpoints.
func (h *Handler) patchLot(w http.ResponseWriter, r *http.Request) {
	lotID, ok := urlID(r, "id")
	if !ok {
		shared.WriteError(w, http.StatusBadRequest, "invalid lot id")
		return
	}
	var req patchLotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	actor := actorID(r)
	if req.Expiry != nil {
		var expiry *time.Time
		if *req.Expiry != "" {
			parsed, err := time.Parse("2006-01-02", *req.Expiry)
			if err != nil {
				shared.WriteError(w, http.StatusBadRequest, "expiry must be YYYY-MM-DD")
				return
			}
			expiry = &parsed
		}
		if err := h.service.SetExpiry(r.Context(), lotID, expiry, actor); err != nil {
			h.writeServiceError(w, "set expiry", err)
			return
		}
	}
	if req.UnitCost != nil {
		if err := h.service.SetCost(r.Context(), lotID, *req.UnitCost, actor); err != nil {
			h.writeServiceError(w, "set cost", err)
			return
		}
	}
	if req.Enabled != nil {
		if err := h.service.SetEnabled(r.Context(), lotID, *req.Enabled, actor); err != nil {
			h.writeServiceError(w, "set enabled", err)
			return
		}
	}
	lot, err := h.service.GetLot(r.Context(), lotID)
	if err != nil {
		h.writeServiceError(w, "get lot", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, lot)
}

func (h *Handler) getLot(w http.ResponseWriter, r *http.Request) {
	lotID, ok := urlID(r, "id")
	if !ok {
		shared.WriteError(w, http.StatusBadRequest, "invalid lot id")
		return
	}
	lot, err := h.service.GetLot(r.Context(), lotID)
	if err != nil {
		h.writeServiceError(w, "get lot", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, lot)
}

func (h *Handler) getLotByCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		shared.WriteError(w, http.StatusBadRequest, "lot code required")
		return
	}
	lot, err := h.service.GetLotByCode(r.Context(), code)
	if err != nil {
		h.writeServiceError(w, "get lot by code", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, lot)
}

func (h *Handler) listLots(w http.ResponseWriter, r *http.Request) {
	productID, ok := urlID(r, "productID")
	if !ok {
		shared.WriteError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	lots, err := h.service.ListLotsByProduct(r.Context(), productID)
	if err != nil {
		h.writeServiceError(w, "list lots", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, lots)
}

type stockResponse struct {
	ProductID  int64 `json:"product_id"`
	TotalStock int64 `json:"total_stock"`
	LowStock   bool  `json:"low_stock"`
}

func (h *Handler) getStock(w http.ResponseWriter, r *http.Request) {
	productID, ok := urlID(r, "productID")
	if !ok {
		shared.WriteError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var threshold *int64
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			shared.WriteError(w, http.StatusBadRequest, "invalid threshold")
			return
		}
		threshold = &parsed
	}
	total, err := h.service.TotalStock(r.Context(), productID)
	if err != nil {
		h.writeServiceError(w, "total stock", err)
		return
	}
	low, err := h.service.IsLowStock(r.Context(), productID, threshold)
	if err != nil {
		h.writeServiceError(w, "low stock", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, stockResponse{ProductID: productID, TotalStock: total, LowStock: low})
}

func (h *Handler) listLowStock(w http.ResponseWriter, r *http.Request) {
	var threshold int64
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			shared.WriteError(w, http.StatusBadRequest, "invalid threshold")
			return
		}
		threshold = parsed
	}
	products, err := h.service.ListLowStock(r.Context(), threshold)
	if err != nil {
		h.writeServiceError(w, "list low stock", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, products)
}

func (h *Handler) listExpiring(w http.ResponseWriter, r *http.Request) {
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			shared.WriteError(w, http.StatusBadRequest, "invalid days")
			return
		}
		days = parsed
	}
	var lots []ExpiringLot
	for lot, err := range h.service.ExpiringLots(r.Context(), days) {
		if err != nil {
			h.writeServiceError(w, "list expiring", err)
			return
		}
		lots = append(lots, lot)
	}
	if lots == nil {
		lots = []ExpiringLot{}
	}
	shared.WriteJSON(w, http.StatusOK, lots)
}
