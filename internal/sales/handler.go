package sales

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/almacen-pos/almacen/internal/inventory"
	"github.com/almacen-pos/almacen/internal/shared"
)

// Handler manages sale endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers sale routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.submitSale)
	r.Get("/", h.listSales)
	r.Get("/{id}", h.getSale)
}

type cartLineRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	LotID     *int64 `json:"lot_id"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
	UnitPrice int64  `json:"unit_price" validate:"required,gt=0"`
}

type submitSaleRequest struct {
	Lines    []cartLineRequest `json:"lines" validate:"required,min=1,dive"`
	Method   string            `json:"method" validate:"required"`
	Subtotal int64             `json:"subtotal" validate:"gte=0"`
	Tax      int64             `json:"tax" validate:"gte=0"`
	Total    int64             `json:"total" validate:"gte=0"`
	ClientID *int64            `json:"client_id"`
	DueDate  *string           `json:"due_date"`
}

type insufficientStockResponse struct {
	Error     string `json:"error"`
	ProductID int64  `json:"product_id"`
	Requested int64  `json:"requested"`
	Available int64  `json:"available"`
}

func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	var stockErr *InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		shared.WriteJSON(w, http.StatusConflict, insufficientStockResponse{
			Error:     "insufficient stock",
			ProductID: stockErr.ProductID,
			Requested: stockErr.Requested,
			Available: stockErr.Available,
		})
	case errors.Is(err, inventory.ErrInsufficientStock):
		shared.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrEmptyCart), shared.IsValidation(err):
		shared.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, shared.ErrNotFound):
		shared.WriteError(w, http.StatusNotFound, "not found")
	default:
		h.logger.Error(op, slog.Any("error", err))
		shared.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) submitSale(w http.ResponseWriter, r *http.Request) {
	var req submitSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	input := CartInput{
		Method:   PaymentMethod(req.Method),
		Subtotal: req.Subtotal,
		Tax:      req.Tax,
		Total:    req.Total,
		ClientID: req.ClientID,
	}
	if id := shared.IdentityFromContext(r.Context()); id != nil {
		input.ActorID = id.UserID
	}
	if req.DueDate != nil && *req.DueDate != "" {
		due, err := time.Parse("2006-01-02", *req.DueDate)
		if err != nil {
			shared.WriteError(w, http.StatusBadRequest, "due_date must be YYYY-MM-DD")
			return
		}
		input.DueDate = &due
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, CartLine{
			ProductID: line.ProductID,
			LotID:     line.LotID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}

	sale, err := h.service.SubmitSale(r.Context(), input)
	if err != nil {
		h.writeServiceError(w, "submit sale", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, sale)
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid sale id")
		return
	}
	detail, err := h.service.GetSale(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "get sale", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, detail)
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	var filter SaleFilter
	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			shared.WriteError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
			return
		}
		filter.From = from
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			shared.WriteError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
			return
		}
		filter.To = to
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			shared.WriteError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	sales, err := h.service.ListSales(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, "list sales", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, sales)
}
