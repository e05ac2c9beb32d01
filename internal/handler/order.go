package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/xenking/order-ledger/internal/domain/apperr"
	"github.com/xenking/order-ledger/internal/domain/order"
	"github.com/xenking/order-ledger/internal/domain/product"
)

type createOrderRequest struct {
	ExternalClient    string            `json:"external_client" validate:"max=128,text"`
	ProductQuantities []orderLineRequest `json:"product_quantities" validate:"dive"`
}

type orderLineRequest struct {
	Product  productRequest `json:"product"`
	Quantity int64          `json:"quantity"`
}

type updateOrderRequest struct {
	ExternalClient string `json:"external_client" validate:"max=128,text"`
}

type orderResponse struct {
	ID                uuid.UUID          `json:"id"`
	CreatedAt         time.Time          `json:"created_at"`
	ClosedAt          *time.Time         `json:"closed_at"`
	DeletedAt         *time.Time         `json:"deleted_at,omitempty"`
	ExternalClient    string             `json:"external_client"`
	TotalPrice        int64              `json:"total_price"`
	ProductQuantities []lineItemResponse `json:"product_quantities"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]lineItemResponse, 0, len(o.Items))
	for i := range o.Items {
		items = append(items, toLineItemResponse(&o.Items[i]))
	}
	return orderResponse{
		ID:                o.ID,
		CreatedAt:         o.CreatedAt,
		ClosedAt:          o.ClosedAt,
		DeletedAt:         o.DeletedAt,
		ExternalClient:    o.ExternalClient,
		TotalPrice:        o.TotalPrice,
		ProductQuantities: items,
	}
}

// CreateOrder handles POST /api/orders. Products are referenced by name and
// created on the fly when unknown.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSONBody(r, apperr.EntityOrder, &req); err != nil {
		writeError(w, r, err)
		return
	}

	lines := make([]order.LineRequest, 0, len(req.ProductQuantities))
	for _, l := range req.ProductQuantities {
		lines = append(lines, order.LineRequest{
			Product: product.Descriptor{
				Name:        l.Product.Name,
				Description: l.Product.Description,
				Price:       deref(l.Product.Price),
			},
			Quantity: l.Quantity,
		})
	}

	o, err := h.orders.Create(r.Context(), order.CreateRequest{
		ExternalClient: req.ExternalClient,
		Lines:          lines,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toOrderResponse(o))
}

// GetOrder handles GET /api/orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", apperr.EntityOrder)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toOrderResponse(o))
}

// UpdateOrder handles PUT /api/orders/{id}.
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", apperr.EntityOrder)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateOrderRequest
	if err := decodeJSONBody(r, apperr.EntityOrder, &req); err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.UpdateExternalClient(r.Context(), id, req.ExternalClient)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toOrderResponse(o))
}

// CloseOrder handles PATCH /api/orders/{id}/closures.
func (h *Handler) CloseOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", apperr.EntityOrder)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.Close(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toOrderResponse(o))
}

// DeleteOrder handles DELETE /api/orders/{id}.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", apperr.EntityOrder)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.Delete(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toOrderResponse(o))
}
