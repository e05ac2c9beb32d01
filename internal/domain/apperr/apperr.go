// Package apperr defines the failure taxonomy shared by the catalog, order
// and report services. Transports map a Kind to a status code and render a
// message from the structured fields; the services never format user text.
package apperr

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Kind classifies a failure.
type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Entity names the resource a failure refers to.
type Entity string

const (
	EntityProduct  Entity = "product"
	EntityOrder    Entity = "order"
	EntityLineItem Entity = "product_quantity"
	EntityReport   Entity = "product_report"
)

// Reason is a stable machine-readable cause.
type Reason string

const (
	ReasonRequired           Reason = "required"
	ReasonNotPositive        Reason = "not_positive"
	ReasonTooLong            Reason = "too_long"
	ReasonTooLarge           Reason = "too_large"
	ReasonCharset            Reason = "charset"
	ReasonMalformed          Reason = "malformed"
	ReasonMissing            Reason = "missing"
	ReasonNameTaken          Reason = "name_taken"
	ReasonDuplicateLine      Reason = "duplicate_line"
	ReasonOrderClosed        Reason = "order_closed"
	ReasonProductUnavailable Reason = "product_unavailable"
	ReasonEmptyWindow        Reason = "empty_window"
	ReasonAssertion          Reason = "assertion"
)

// Error is the structured failure returned by the domain services.
type Error struct {
	Kind   Kind
	Entity Entity
	// ID is the identifier of the offending resource, when there is one.
	ID string
	// Field is the offending input attribute for validation failures.
	Field string
	// Name carries the conflicting product name for ReasonNameTaken.
	Name   string
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	switch {
	case e.Field != "":
		msg = fmt.Sprintf("%s %s", msg, e.Field)
	case e.ID != "":
		msg = fmt.Sprintf("%s %s %s", msg, e.Entity, e.ID)
	case e.Name != "":
		msg = fmt.Sprintf("%s %s %q", msg, e.Entity, e.Name)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports an invalid input attribute.
func Validation(entity Entity, field string, reason Reason) *Error {
	return &Error{Kind: KindValidation, Entity: entity, Field: field, Reason: reason}
}

// NotFound reports that an active resource with the given id does not exist.
func NotFound(entity Entity, id string) *Error {
	return &Error{Kind: KindNotFound, Entity: entity, ID: id, Reason: ReasonMissing}
}

// Conflict reports that an operation is not allowed in the current state.
func Conflict(entity Entity, id string, reason Reason) *Error {
	return &Error{Kind: KindConflict, Entity: entity, ID: id, Reason: reason}
}

// NameTaken reports that an active product already uses name.
func NameTaken(name string) *Error {
	return &Error{Kind: KindConflict, Entity: EntityProduct, Name: name, Reason: ReasonNameTaken}
}

// Internal reports a broken precondition, such as a missing collaborator argument.
func Internal(entity Entity, err error) *Error {
	return &Error{Kind: KindInternal, Entity: entity, Reason: ReasonAssertion, Err: err}
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind and reason.
func Is(err error, kind Kind, reason Reason) bool {
	e, ok := As(err)
	return ok && e.Kind == kind && e.Reason == reason
}
