package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/jachnun-storefront/internal/domain/order"
)

// PlaceOrder handles POST /api/orders.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err, "Failed to create order")
		return
	}

	res, err := h.orders.PlaceOrder(r.Context(), req.toDomain())
	if err != nil {
		fail(w, r, err, "Failed to create order")
		return
	}

	writeJSON(w, http.StatusCreated, placeOrderResponse{
		Message:     "Order created successfully",
		OrderID:     res.Order.ID,
		OrderNumber: res.Order.OrderNumber,
	})
}

// GetOrderStatus handles GET /api/orders/status/{orderNumber}.
func (h *Handler) GetOrderStatus(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetByNumber(r.Context(), chi.URLParam(r, "orderNumber"))
	if err != nil {
		fail(w, r, err, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, newOrderStatusResponse(o))
}

// ListOrders handles GET /api/orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orders, err := h.orders.List(r.Context(), order.ListQuery{
		Status: q.Get("status"),
		Date:   q.Get("date"),
		Limit:  queryInt(r, "limit"),
	})
	if err != nil {
		fail(w, r, err, "Server error")
		return
	}

	resp := make([]orderResponse, len(orders))
	for i := range orders {
		resp[i] = newOrderResponse(&orders[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetOrder handles GET /api/orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Order not found")
		return
	}

	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		fail(w, r, err, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}

// UpdateOrderStatus handles PATCH /api/orders/{id}/status.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err, "Server error")
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Order not found")
		return
	}

	change, err := h.orders.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		fail(w, r, err, "Server error")
		return
	}

	writeJSON(w, http.StatusOK, updateStatusResponse{
		Message:        "Order status updated",
		Status:         string(change.To),
		PreviousStatus: string(change.From),
	})
}

// GetStats handles GET /api/orders/stats/summary.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	s, err := h.orders.Stats(r.Context())
	if err != nil {
		fail(w, r, err, "Server error")
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		PendingCount:  s.PendingCount,
		TodayCount:    s.TodayCount,
		TodayRevenue:  money(s.TodayRevenue),
		CustomerCount: s.CustomerCount,
	})
}
