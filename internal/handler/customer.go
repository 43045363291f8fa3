package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/xenking/jachnun-storefront/internal/domain/customer"
)

// ListCustomers handles GET /api/customers.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.customers.List(r.Context(), r.URL.Query().Get("search"), queryInt(r, "limit"))
	if err != nil {
		fail(w, r, err, "Server error")
		return
	}

	resp := make([]customerResponse, len(customers))
	for i, c := range customers {
		resp[i] = newCustomerResponse(c)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetCustomer handles GET /api/customers/{id}.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Customer not found")
		return
	}

	d, err := h.customers.Get(r.Context(), id)
	if err != nil {
		fail(w, r, err, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, newCustomerDetailsResponse(d))
}

// LookupPhone handles GET /api/customers/phone/{phone}. Unknown and
// unparsable numbers both answer {"found": false}.
func (h *Handler) LookupPhone(w http.ResponseWriter, r *http.Request) {
	c, err := h.customers.LookupPhone(r.Context(), chi.URLParam(r, "phone"))
	switch {
	case errors.Is(err, customer.ErrNotFound), errors.Is(err, customer.ErrInvalidPhone):
		writeJSON(w, http.StatusOK, phoneLookupResponse{Found: false})
		return
	case err != nil:
		fail(w, r, err, "Server error")
		return
	}

	writeJSON(w, http.StatusOK, phoneLookupResponse{
		Found: true,
		Customer: &contactResponse{
			ID:      c.ID,
			Name:    c.Name,
			Email:   c.Email,
			Address: c.Address,
		},
	})
}
