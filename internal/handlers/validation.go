package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
	"github.com/go-playground/validator/v10"
)

// maxBodyBytes caps request bodies; every body this API accepts is a few fields
const maxBodyBytes = 16 << 10

var validate = newValidator()

// newValidator reports fields by their JSON names so messages match the wire format
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// FieldError is the first failing field of a request
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidateRequest validates a request struct. The error is a *FieldError for
// the first failing field.
func ValidateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return &FieldError{Field: ve[0].Field(), Message: formatValidationError(ve[0])}
	}
	return fmt.Errorf("validation failed: %w", err)
}

func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}

// decodeJSON reads a size-limited JSON body into dst. An empty body is
// accepted when allowEmpty is set. On failure it writes the 400 itself.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}, allowEmpty bool) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}
	pkghttp.WriteBadRequest(w, "Invalid request body")
	return false
}

// validOrReject validates req and writes a 400 naming the failing field
func validOrReject(w http.ResponseWriter, req interface{}) bool {
	err := ValidateRequest(req)
	if err == nil {
		return true
	}
	var fe *FieldError
	if errors.As(err, &fe) {
		pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "bad_request", "Invalid "+fe.Field+": "+fe.Message, fe.Field)
		return false
	}
	pkghttp.WriteBadRequest(w, err.Error())
	return false
}
