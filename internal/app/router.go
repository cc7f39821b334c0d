package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/almacen-pos/almacen/internal/auth"
	"github.com/almacen-pos/almacen/internal/catalog"
	"github.com/almacen-pos/almacen/internal/credit"
	"github.com/almacen-pos/almacen/internal/inventory"
	"github.com/almacen-pos/almacen/internal/returns"
	"github.com/almacen-pos/almacen/internal/sales"
	"github.com/almacen-pos/almacen/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	AuthHandler      *auth.Handler
	AuthMiddleware   auth.Middleware
	CatalogHandler   *catalog.Handler
	InventoryHandler *inventory.Handler
	SalesHandler     *sales.Handler
	ReturnsHandler   *returns.Handler
	CreditHandler    *credit.Handler
	JobHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router with Almacen defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	// Everything below requires a bearer token.
	r.Group(func(r chi.Router) {
		r.Use(params.AuthMiddleware.RequireToken)

		if params.CatalogHandler != nil {
			r.Route("/products", params.CatalogHandler.MountRoutes)
		}
		r.Route("/inventory", params.InventoryHandler.MountRoutes)
		r.Route("/sales", params.SalesHandler.MountRoutes)
		if params.ReturnsHandler != nil {
			r.Route("/returns", params.ReturnsHandler.MountRoutes)
		}
		if params.CreditHandler != nil {
			r.Route("/credit", params.CreditHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
