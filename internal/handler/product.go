package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/xenking/order-ledger/internal/domain/apperr"
	"github.com/xenking/order-ledger/internal/domain/product"
)

type productRequest struct {
	Name        string `json:"name" validate:"max=32,text"`
	Description string `json:"description" validate:"max=128,text"`
	Price       *int64 `json:"price"`
}

type productResponse struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Price       int64      `json:"price"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

func toProductResponse(p *product.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		DeletedAt:   p.DeletedAt,
	}
}

// CreateProduct handles POST /api/products.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSONBody(r, apperr.EntityProduct, &req); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.catalog.Create(r.Context(), product.Descriptor{
		Name:        req.Name,
		Description: req.Description,
		Price:       deref(req.Price),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toProductResponse(p))
}

// GetProduct handles GET /api/products/{id}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", apperr.EntityProduct)
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toProductResponse(p))
}

// UpdateProduct handles PUT /api/products/{id}. The price is validated but
// never changed.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", apperr.EntityProduct)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req productRequest
	if err := decodeJSONBody(r, apperr.EntityProduct, &req); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.catalog.Update(r.Context(), id, product.UpdateInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toProductResponse(p))
}

// DeleteProduct handles DELETE /api/products/{id}.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", apperr.EntityProduct)
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.catalog.Delete(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toProductResponse(p))
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
