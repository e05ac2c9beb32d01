package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/xenking/order-ledger/internal/domain/apperr"
	"github.com/xenking/order-ledger/internal/domain/order"
)

type addLineItemRequest struct {
	Product struct {
		ID string `json:"id"`
	} `json:"product"`
	Quantity int64 `json:"quantity"`
}

type updateLineItemRequest struct {
	Quantity int64 `json:"quantity"`
}

type lineItemProduct struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       int64     `json:"price"`
}

type lineItemResponse struct {
	ID       uuid.UUID       `json:"id"`
	Product  lineItemProduct `json:"product"`
	Quantity int64           `json:"quantity"`
}

func toLineItemResponse(li *order.LineItem) lineItemResponse {
	return lineItemResponse{
		ID: li.ID,
		Product: lineItemProduct{
			ID:          li.ProductID,
			Name:        li.Product.Name,
			Description: li.Product.Description,
			Price:       li.Product.Price,
		},
		Quantity: li.Quantity,
	}
}

func lineItemPath(r *http.Request) (orderID, itemID uuid.UUID, err error) {
	if orderID, err = pathID(r, "id", apperr.EntityOrder); err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	if itemID, err = pathID(r, "itemID", apperr.EntityLineItem); err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return orderID, itemID, nil
}

// AddLineItem handles POST /api/orders/{id}/product-quantities.
func (h *Handler) AddLineItem(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "id", apperr.EntityOrder)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req addLineItemRequest
	if err := decodeJSONBody(r, apperr.EntityLineItem, &req); err != nil {
		writeError(w, r, err)
		return
	}
	productID, err := uuid.Parse(req.Product.ID)
	if err != nil {
		writeError(w, r, apperr.NotFound(apperr.EntityProduct, req.Product.ID))
		return
	}

	li, err := h.orders.AddLineItem(r.Context(), orderID, productID, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toLineItemResponse(li))
}

// GetLineItem handles GET /api/orders/{id}/product-quantities/{itemID}.
func (h *Handler) GetLineItem(w http.ResponseWriter, r *http.Request) {
	orderID, itemID, err := lineItemPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	li, err := h.orders.GetLineItem(r.Context(), orderID, itemID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toLineItemResponse(li))
}

// UpdateLineItem handles PUT /api/orders/{id}/product-quantities/{itemID}.
func (h *Handler) UpdateLineItem(w http.ResponseWriter, r *http.Request) {
	orderID, itemID, err := lineItemPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateLineItemRequest
	if err := decodeJSONBody(r, apperr.EntityLineItem, &req); err != nil {
		writeError(w, r, err)
		return
	}

	li, err := h.orders.UpdateLineItem(r.Context(), orderID, itemID, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toLineItemResponse(li))
}

// RemoveLineItem handles DELETE /api/orders/{id}/product-quantities/{itemID}.
func (h *Handler) RemoveLineItem(w http.ResponseWriter, r *http.Request) {
	orderID, itemID, err := lineItemPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	li, err := h.orders.RemoveLineItem(r.Context(), orderID, itemID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toLineItemResponse(li))
}
