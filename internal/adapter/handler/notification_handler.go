package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rl1809/dapr-shop/internal/core/domain"
	"github.com/rl1809/dapr-shop/internal/core/service"
)

func (h *HTTPHandler) SendNotification(w http.ResponseWriter, r *http.Request) {
	var req domain.NotificationRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	n, err := h.notifications.Send(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err, "Failed to send notification")
		return
	}
	writeOK(w, http.StatusCreated, n, "Notification processed")
}

func (h *HTTPHandler) GetNotification(w http.ResponseWriter, r *http.Request) {
	n, err := h.notifications.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err, "Failed to retrieve notification")
		return
	}
	writeOK(w, http.StatusOK, n, "")
}

func (h *HTTPHandler) NotificationHistory(w http.ResponseWriter, r *http.Request) {
	limit, fe := queryInt(r, "limit", service.DefaultHistoryLimit, 1, maxPageSize)
	if fe != nil {
		writeValidation(w, []FieldError{*fe})
		return
	}
	history := h.notifications.History(r.Context(), r.URL.Query().Get("recipient"), limit)
	writeOK(w, http.StatusOK, history, fmt.Sprintf("Retrieved %d notifications", len(history)))
}
