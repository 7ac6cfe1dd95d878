package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/rl1809/dapr-shop/internal/core/domain"
)

// Response is the envelope shared by every API route.
type Response struct {
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Message string       `json:"message,omitempty"`
	Error   string       `json:"error,omitempty"`
	Details []FieldError `json:"details,omitempty"`
}

type PagedResponse struct {
	Response
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeOK(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, Response{Success: true, Data: data, Message: message})
}

func writeValidation(w http.ResponseWriter, details []FieldError) {
	writeJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Validation failed", Details: details})
}

// statusFor maps a domain error kind to its HTTP status.
func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInsufficientStock, domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindConflict, domain.KindInvalidTransition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError hides unexpected errors behind a generic message; they only
// reach the log.
func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := statusFor(domain.KindOf(err))
	if status == http.StatusInternalServerError {
		h.logger.Error(fallback,
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, status, Response{Success: false, Error: fallback})
		return
	}
	writeJSON(w, status, Response{Success: false, Error: err.Error()})
}
