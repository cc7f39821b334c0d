package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/almacen-pos/almacen/internal/shared"
)

type memoryCatalogRepo struct {
	products map[int64]*Product
	nextID   int64
}

func newMemoryCatalogRepo() *memoryCatalogRepo {
	return &memoryCatalogRepo{products: make(map[int64]*Product)}
}

func (r *memoryCatalogRepo) CreateProduct(ctx context.Context, input ProductInput) (*Product, error) {
	r.nextID++
	p := &Product{
		ID:           r.nextID,
		Name:         input.Name,
		Category:     input.Category,
		UnitPrice:    input.UnitPrice,
		Presentation: input.Presentation,
		IsActive:     true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	r.products[p.ID] = p
	copied := *p
	return &copied, nil
}

func (r *memoryCatalogRepo) UpdateProduct(ctx context.Context, id int64, input ProductInput) (*Product, error) {
	p, ok := r.products[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	p.Name = input.Name
	p.Category = input.Category
	p.UnitPrice = input.UnitPrice
	p.Presentation = input.Presentation
	p.IsActive = input.IsActive
	copied := *p
	return &copied, nil
}

func (r *memoryCatalogRepo) GetProduct(ctx context.Context, id int64) (*Product, error) {
	p, ok := r.products[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *memoryCatalogRepo) ListProducts(ctx context.Context, activeOnly bool) ([]Product, error) {
	var out []Product
	for _, p := range r.products {
		if activeOnly && !p.IsActive {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func TestCreateProductValidation(t *testing.T) {
	svc := NewService(newMemoryCatalogRepo())

	_, err := svc.CreateProduct(context.Background(), ProductInput{Name: "  ", UnitPrice: 100})
	require.True(t, shared.IsValidation(err))

	_, err = svc.CreateProduct(context.Background(), ProductInput{Name: "Azúcar 1kg", UnitPrice: 0})
	require.True(t, shared.IsValidation(err))

	p, err := svc.CreateProduct(context.Background(), ProductInput{Name: "Azúcar 1kg", Category: "abarrotes", UnitPrice: 1290, Presentation: "bolsa 1kg"})
	require.NoError(t, err)
	require.True(t, p.IsActive)
}

func TestUpdateAndListProducts(t *testing.T) {
	repo := newMemoryCatalogRepo()
	svc := NewService(repo)

	p, err := svc.CreateProduct(context.Background(), ProductInput{Name: "Harina", UnitPrice: 900})
	require.NoError(t, err)

	updated, err := svc.UpdateProduct(context.Background(), p.ID, ProductInput{Name: "Harina 1kg", UnitPrice: 950, IsActive: false})
	require.NoError(t, err)
	require.Equal(t, "Harina 1kg", updated.Name)
	require.False(t, updated.IsActive)

	active, err := svc.ListProducts(context.Background(), true)
	require.NoError(t, err)
	require.Empty(t, active)

	all, err := svc.ListProducts(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, all, 1)

	_, err = svc.UpdateProduct(context.Background(), 999, ProductInput{Name: "x", UnitPrice: 1})
	require.ErrorIs(t, err, shared.ErrNotFound)
}
