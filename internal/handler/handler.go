// Package handler exposes the storefront REST API over chi.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/jachnun-storefront/internal/domain/auth"
	"github.com/xenking/jachnun-storefront/internal/domain/catalog"
	"github.com/xenking/jachnun-storefront/internal/domain/customer"
	"github.com/xenking/jachnun-storefront/internal/domain/order"
)

// Handler serves the /api routes, delegating to the domain services.
type Handler struct {
	orders    *order.Service
	customers *customer.Service
	auth      *auth.Service
	menu      catalog.Repository
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	orders *order.Service,
	customers *customer.Service,
	authService *auth.Service,
	menu catalog.Repository,
) *Handler {
	return &Handler{
		orders:    orders,
		customers: customers,
		auth:      authService,
		menu:      menu,
	}
}

// Mount registers every /api route on r.
func (h *Handler) Mount(r chi.Router) {
	admin := RequireAdmin(h.auth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/menu", h.GetMenu)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.PlaceOrder)
			r.Get("/status/{orderNumber}", h.GetOrderStatus)

			r.Group(func(r chi.Router) {
				r.Use(admin)
				r.Get("/", h.ListOrders)
				r.Get("/stats/summary", h.GetStats)
				r.Get("/{id}", h.GetOrder)
				r.Patch("/{id}/status", h.UpdateOrderStatus)
			})
		})

		r.Route("/customers", func(r chi.Router) {
			r.Get("/phone/{phone}", h.LookupPhone)

			r.Group(func(r chi.Router) {
				r.Use(admin)
				r.Get("/", h.ListCustomers)
				r.Get("/{id}", h.GetCustomer)
			})
		})

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", h.Login)
			r.Post("/setup", h.Setup)

			r.Group(func(r chi.Router) {
				r.Use(admin)
				r.Get("/me", h.Me)
				r.Post("/change-password", h.ChangePassword)
			})
		})

		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusNotFound, "Not found")
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		})
	})
}
