package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/xenking/order-ledger/internal/domain/apperr"
	"github.com/xenking/order-ledger/internal/domain/product"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	if err := v.RegisterValidation("text", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || product.TextPattern.MatchString(s)
	}); err != nil {
		panic(err)
	}
	return v
}

// decodeJSONBody decodes a single JSON object into dest and validates its
// format constraints. Presence and positivity rules are left to the domain.
func decodeJSONBody(r *http.Request, entity apperr.Entity, dest any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		e := apperr.Validation(entity, "body", apperr.ReasonMalformed)
		e.Err = err
		return e
	}
	if err := validate.Struct(dest); err != nil {
		return validationError(entity, err)
	}
	return nil
}

func validationError(entity apperr.Entity, err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		e := apperr.Validation(entity, "body", apperr.ReasonMalformed)
		e.Err = err
		return e
	}

	fe := errs[0]
	reason := apperr.ReasonMalformed
	switch fe.Tag() {
	case "max":
		reason = apperr.ReasonTooLong
	case "text":
		reason = apperr.ReasonCharset
	case "required":
		reason = apperr.ReasonRequired
	}
	return apperr.Validation(entity, fe.Field(), reason)
}

// pathID parses a UUID path parameter. A malformed id cannot name an existing
// resource, so it is reported as not found.
func pathID(r *http.Request, param string, entity apperr.Entity) (uuid.UUID, error) {
	raw := chi.URLParam(r, param)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.NotFound(entity, raw)
	}
	return id, nil
}

const dateLayout = "2006-01-02"

// queryTime parses an RFC3339 timestamp or a YYYY-MM-DD date. A date-only
// end bound covers the whole day. An absent parameter yields the zero time.
func queryTime(r *http.Request, param string, endOfDay bool) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(param))
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, apperr.Validation(apperr.EntityReport, param, apperr.ReasonMalformed)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
