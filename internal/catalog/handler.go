package catalog

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/almacen-pos/almacen/internal/auth"
	"github.com/almacen-pos/almacen/internal/shared"
)

// Handler manages product endpoints.
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

// MountRoutes registers product routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listProducts)
	r.Get("/{id}", h.getProduct)

	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireRole(auth.RoleAdmin))
		r.Post("/", h.createProduct)
		r.Put("/{id}", h.updateProduct)
	})
}

type productRequest struct {
	Name         string `json:"name" validate:"required"`
	Category     string `json:"category"`
	UnitPrice    int64  `json:"unit_price" validate:"required,gt=0"`
	Presentation string `json:"presentation"`
	IsActive     *bool  `json:"is_active"`
}

func (req productRequest) toInput() ProductInput {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return ProductInput{
		Name:         req.Name,
		Category:     req.Category,
		UnitPrice:    req.UnitPrice,
		Presentation: req.Presentation,
		IsActive:     active,
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	status := shared.ErrorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
		shared.WriteError(w, status, "internal error")
		return
	}
	shared.WriteError(w, status, err.Error())
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	product, err := h.service.CreateProduct(r.Context(), req.toInput())
	if err != nil {
		h.writeServiceError(w, "create product", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, product)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	product, err := h.service.UpdateProduct(r.Context(), id, req.toInput())
	if err != nil {
		h.writeServiceError(w, "update product", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, product)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			shared.WriteError(w, http.StatusNotFound, "product not found")
			return
		}
		h.writeServiceError(w, "get product", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, product)
}

type productListResponse struct {
	Products   []Product         `json:"products"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	products, err := h.service.ListProducts(r.Context(), activeOnly)
	if err != nil {
		h.writeServiceError(w, "list products", err)
		return
	}

	pagination := shared.NewPagination(page, perPage, len(products))
	start := pagination.Offset()
	if start > len(products) {
		start = len(products)
	}
	end := start + pagination.PerPage
	if end > len(products) {
		end = len(products)
	}
	shared.WriteJSON(w, http.StatusOK, productListResponse{
		Products:   products[start:end],
		Pagination: pagination,
	})
}
