package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/order-ledger/internal/domain/auth"
	"github.com/xenking/order-ledger/internal/domain/order"
	"github.com/xenking/order-ledger/internal/domain/product"
	"github.com/xenking/order-ledger/internal/domain/report"
)

// Handler serves the ledger REST API, delegating business logic to the
// catalog, the order service and the report aggregator.
type Handler struct {
	catalog *product.Catalog
	orders  *order.Service
	reports *report.Aggregator
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	catalog *product.Catalog,
	orders *order.Service,
	reports *report.Aggregator,
) *Handler {
	return &Handler{
		catalog: catalog,
		orders:  orders,
		reports: reports,
	}
}

// Router mounts every API route under /api. Reads need any valid key,
// mutations need the matching write scope. mws run before routing and can
// read the matched route pattern after calling next.
func (h *Handler) Router(sec *SecurityHandler, mws ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(mws...)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, r, http.StatusNotFound, "The requested resource does not exist.")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, r, http.StatusMethodNotAllowed, "The method is not allowed for the requested resource.")
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(sec.Authenticate)

		r.Route("/products", func(r chi.Router) {
			r.With(sec.RequireScope(auth.ScopeCatalogWrite)).Post("/", h.CreateProduct)
			r.Get("/{id}", h.GetProduct)
			r.With(sec.RequireScope(auth.ScopeCatalogWrite)).Put("/{id}", h.UpdateProduct)
			r.With(sec.RequireScope(auth.ScopeCatalogWrite)).Delete("/{id}", h.DeleteProduct)
		})

		r.Route("/orders", func(r chi.Router) {
			r.With(sec.RequireScope(auth.ScopeOrdersWrite)).Post("/", h.CreateOrder)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetOrder)

				r.Group(func(r chi.Router) {
					r.Use(sec.RequireScope(auth.ScopeOrdersWrite))
					r.Put("/", h.UpdateOrder)
					r.Delete("/", h.DeleteOrder)
					r.Patch("/closures", h.CloseOrder)
					r.Post("/product-quantities", h.AddLineItem)
					r.Put("/product-quantities/{itemID}", h.UpdateLineItem)
					r.Delete("/product-quantities/{itemID}", h.RemoveLineItem)
				})
				r.Get("/product-quantities/{itemID}", h.GetLineItem)
			})
		})

		r.With(sec.RequireScope(auth.ScopeReportsRead)).Get("/product-reports", h.ProductReports)
	})

	return r
}
