package catalog

import (
	"context"
	"strings"

	"github.com/almacen-pos/almacen/internal/shared"
)

// RepositoryPort defines data access methods for the catalog.
type RepositoryPort interface {
	CreateProduct(ctx context.Context, input ProductInput) (*Product, error)
	UpdateProduct(ctx context.Context, id int64, input ProductInput) (*Product, error)
	GetProduct(ctx context.Context, id int64) (*Product, error)
	ListProducts(ctx context.Context, activeOnly bool) ([]Product, error)
}

// Service handles product catalog business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

func validateInput(input ProductInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return shared.Validationf("name", "product name is required")
	}
	if input.UnitPrice <= 0 {
		return shared.Validationf("unit_price", "unit price must be positive")
	}
	return nil
}

// CreateProduct registers a new product.
func (s *Service) CreateProduct(ctx context.Context, input ProductInput) (*Product, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	return s.repo.CreateProduct(ctx, input)
}

// UpdateProduct mutates an existing product.
func (s *Service) UpdateProduct(ctx context.Context, id int64, input ProductInput) (*Product, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	return s.repo.UpdateProduct(ctx, id, input)
}

// GetProduct fetches one product by id.
func (s *Service) GetProduct(ctx context.Context, id int64) (*Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// ListProducts lists products, optionally only active ones.
func (s *Service) ListProducts(ctx context.Context, activeOnly bool) ([]Product, error) {
	return s.repo.ListProducts(ctx, activeOnly)
}
