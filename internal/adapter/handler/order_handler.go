package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rl1809/dapr-shop/internal/core/domain"
)

type updateStatusRequest struct {
	Status domain.OrderStatus `json:"status" validate:"required,oneof=pending confirmed shipped delivered cancelled"`
}

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders := h.orders.List(r.Context())
	writeOK(w, http.StatusOK, orders, fmt.Sprintf("Retrieved %d orders", len(orders)))
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.checkID(w, id, "Order") {
		return
	}
	o, err := h.orders.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err, "Failed to retrieve order")
		return
	}
	writeOK(w, http.StatusOK, o, "")
}

func (h *HTTPHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	o, err := h.orders.Create(r.Context(), req.CustomerID, req.Items)
	if err != nil {
		h.writeError(w, r, err, "Failed to create order")
		return
	}
	writeOK(w, http.StatusCreated, o, "Order created successfully")
}

func (h *HTTPHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.checkID(w, id, "Order") {
		return
	}
	var req updateStatusRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	o, err := h.orders.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		h.writeError(w, r, err, "Failed to update order status")
		return
	}
	writeOK(w, http.StatusOK, o, "Order status updated successfully")
}
