package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/order-ledger/internal/domain/apperr"
)

type errorEnvelope struct {
	Error errorTrace `json:"error"`
}

type errorTrace struct {
	EventType  string `json:"event_type"`
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Target     string `json:"target"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zctx.From(r.Context()).Warn("Encode response", zap.Error(err))
	}
}

func writeStatus(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorEnvelope{Error: errorTrace{
		EventType:  r.Method,
		StatusCode: status,
		Message:    msg,
		Target:     r.URL.String(),
	}})
}

// writeError maps err to a status code and a rendered message. Failures that
// are not domain errors are logged and hidden behind a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperr.As(err)
	if !ok || e.Kind == apperr.KindInternal {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeStatus(w, r, http.StatusInternalServerError, "An unexpected error occurred.")
		return
	}
	writeStatus(w, r, statusFor(e.Kind), message(e))
}

func statusFor(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func message(e *apperr.Error) string {
	switch e.Reason {
	case apperr.ReasonOrderClosed:
		return fmt.Sprintf("The order with id '%s' is closed, no changes allowed.", e.ID)
	case apperr.ReasonNameTaken:
		return fmt.Sprintf("The product with name '%s' already exists.", e.Name)
	case apperr.ReasonDuplicateLine:
		return fmt.Sprintf("A product quantity for product with id '%s' already exists.", e.ID)
	case apperr.ReasonProductUnavailable:
		return fmt.Sprintf("The product with id '%s' does not exist or is no longer available.", e.ID)
	case apperr.ReasonEmptyWindow:
		return "No closed orders were found in the requested period."
	case apperr.ReasonMissing:
		switch e.Entity {
		case apperr.EntityOrder:
			return fmt.Sprintf("The order with identifier '%s' does not exist.", e.ID)
		case apperr.EntityProduct:
			return fmt.Sprintf("The product with id '%s' does not exist.", e.ID)
		case apperr.EntityLineItem:
			return fmt.Sprintf("The product quantity with id '%s' does not exist.", e.ID)
		}
	case apperr.ReasonRequired:
		switch e.Field {
		case "name":
			return "The product requires a valid name."
		case "external_client":
			return "The external client name is missing."
		default:
			return fmt.Sprintf("The '%s' parameter is required.", e.Field)
		}
	case apperr.ReasonNotPositive:
		return fmt.Sprintf("A valid %s, greater than zero, must be set.", e.Field)
	case apperr.ReasonTooLarge:
		if e.Entity == apperr.EntityReport {
			return "The report totals for the requested period exceed the supported range."
		}
		return fmt.Sprintf("The %s exceeds the maximum allowed value.", e.Field)
	case apperr.ReasonTooLong:
		return fmt.Sprintf("The field '%s' is too long.", e.Field)
	case apperr.ReasonCharset:
		return fmt.Sprintf("The field '%s' contains characters that are not allowed.", e.Field)
	case apperr.ReasonMalformed:
		if e.Field == "body" {
			return "The request body is not valid."
		}
		return fmt.Sprintf("The '%s' parameter must be a YYYY-MM-DD date or an RFC3339 timestamp.", e.Field)
	}
	return "The request could not be processed."
}
