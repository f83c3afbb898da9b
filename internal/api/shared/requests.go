package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/cpcomms/dispatch/internal/domain"
	"github.com/go-playground/validator/v10"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 64 << 10

// Global validator instance for reuse
var validate = validator.New()

// DecodeJSON decodes the request body into v. Unknown fields, trailing data,
// and oversized bodies are validation errors.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewValidationError("body", "is required", domain.ErrValidation)
		}
		return fmt.Errorf("%w: malformed request body: %v", domain.ErrValidation, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: request body must contain a single object", domain.ErrValidation)
	}
	return nil
}

// ValidateRequest validates the given struct using the validator package.
// Failures wrap domain.ErrValidation.
func ValidateRequest(v interface{}) error {
	var err error
	if vv, ok := v.(interface{ Validate() error }); ok {
		err = vv.Validate()
	} else {
		err = validate.Struct(v)
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrValidation) {
		return err
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return domain.NewValidationError(fe.Field(), tagMessage(fe.Tag()), domain.ErrValidation)
	}
	return fmt.Errorf("%w: %v", domain.ErrValidation, err)
}

func tagMessage(tag string) string {
	switch tag {
	case "required":
		return "is required"
	case "max":
		return "is too long"
	case "min":
		return "is too short"
	case "oneof":
		return "has an invalid value"
	case "uuid":
		return "must be a UUID"
	default:
		return "is invalid"
	}
}
