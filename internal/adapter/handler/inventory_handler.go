package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rl1809/dapr-shop/internal/core/domain"
)

const maxPageSize = 100

type quantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,gte=0"`
}

// queryInt parses an optional integer query parameter bounded below by min
// and, when max > 0, above by max.
func queryInt(r *http.Request, name string, def, min, max int) (int, *FieldError) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || (max > 0 && n > max) {
		msg := fmt.Sprintf("%s must be an integer of at least %d", name, min)
		if max > 0 {
			msg = fmt.Sprintf("%s must be between %d and %d", name, min, max)
		}
		return 0, &FieldError{Field: name, Message: msg}
	}
	return n, nil
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	var details []FieldError
	page, fe := queryInt(r, "page", 1, 1, 0)
	if fe != nil {
		details = append(details, *fe)
	}
	pageSize, fe := queryInt(r, "pageSize", 10, 1, maxPageSize)
	if fe != nil {
		details = append(details, *fe)
	}
	if len(details) > 0 {
		writeValidation(w, details)
		return
	}

	if term := r.URL.Query().Get("search"); term != "" {
		products := h.inventory.Search(r.Context(), term)
		writeOK(w, http.StatusOK, products, fmt.Sprintf("Found %d products matching %q", len(products), term))
		return
	}

	result := h.inventory.List(r.Context(), page, pageSize)
	writeJSON(w, http.StatusOK, PagedResponse{
		Response: Response{
			Success: true,
			Data:    result.Items,
			Message: fmt.Sprintf("Retrieved %d products", len(result.Items)),
		},
		Total:    result.Total,
		Page:     result.Page,
		PageSize: result.PageSize,
	})
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.checkID(w, id, "Product") {
		return
	}
	p, err := h.inventory.GetByID(r.Context(), id)
	if err != nil {
		h.writeProductError(w, r, err, "Failed to retrieve product")
		return
	}
	writeOK(w, http.StatusOK, p, "")
}

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var in domain.ProductInput
	if !h.decodeAndValidate(w, r, &in) {
		return
	}
	p, err := h.inventory.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err, "Failed to create product")
		return
	}
	writeOK(w, http.StatusCreated, p, "Product created successfully")
}

func (h *HTTPHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.checkID(w, id, "Product") {
		return
	}
	var patch domain.ProductPatch
	if !h.decodeAndValidate(w, r, &patch) {
		return
	}
	p, err := h.inventory.Update(r.Context(), id, patch)
	if err != nil {
		h.writeProductError(w, r, err, "Failed to update product")
		return
	}
	writeOK(w, http.StatusOK, p, "Product updated successfully")
}

func (h *HTTPHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.checkID(w, id, "Product") {
		return
	}
	var req quantityRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	p, err := h.inventory.UpdateQuantity(r.Context(), id, *req.Quantity)
	if err != nil {
		h.writeProductError(w, r, err, "Failed to update inventory")
		return
	}
	writeOK(w, http.StatusOK, p, "Inventory updated successfully")
}

func (h *HTTPHandler) LowStockProducts(w http.ResponseWriter, r *http.Request) {
	threshold, fe := queryInt(r, "threshold", h.inventory.Threshold(), 0, 0)
	if fe != nil {
		writeValidation(w, []FieldError{*fe})
		return
	}
	products := h.inventory.LowStock(r.Context(), threshold)
	writeOK(w, http.StatusOK, products, fmt.Sprintf("Found %d products with low stock", len(products)))
}

// writeProductError keeps the short "Product not found" body for missing ids.
func (h *HTTPHandler) writeProductError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	if domain.KindOf(err) == domain.KindNotFound {
		writeJSON(w, http.StatusNotFound, Response{Success: false, Error: "Product not found"})
		return
	}
	h.writeError(w, r, err, fallback)
}
