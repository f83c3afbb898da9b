package api

import (
	"errors"
	"net/http"

	"github.com/cpcomms/dispatch/internal/api/shared"
	"github.com/cpcomms/dispatch/internal/domain"
	"github.com/cpcomms/dispatch/internal/service/auth"
)

// classify maps an error to its HTTP status and response class. Anything
// unrecognized is an internal error.
func classify(err error) (int, shared.ErrorClass) {
	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized, shared.ClassUnauthenticated
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, shared.ClassValidation
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, shared.ClassForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, shared.ClassNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, shared.ClassConflict
	case errors.Is(err, domain.ErrTransient):
		return http.StatusServiceUnavailable, shared.ClassTransient
	default:
		return http.StatusInternalServerError, shared.ClassInternal
	}
}

// MapErrorToStatusCode maps an error to the HTTP status it is reported with.
func MapErrorToStatusCode(err error) int {
	status, _ := classify(err)
	return status
}

// GetSafeErrorMessage returns a client-safe message for err. Validation and
// conflict messages come from domain sentinels and never carry internals.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var verr *domain.ValidationError
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrMissingToken):
		return "Authentication required"
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenNotYetValid):
		return "Invalid token"
	case errors.As(err, &verr):
		return "Invalid " + verr.Field + ": " + verr.Message
	case errors.Is(err, domain.ErrInvalidTransition):
		return "Transition not allowed from the task's current state"
	case errors.Is(err, domain.ErrValidation):
		return validationMessage(err)
	case errors.Is(err, domain.ErrForbidden):
		return "Operation not permitted for your role"
	case errors.Is(err, domain.ErrNotFound):
		return "Task not found"
	case errors.Is(err, domain.ErrConflict):
		return "Task was changed by someone else; reload and retry"
	case errors.Is(err, domain.ErrTransient):
		return "Service temporarily unavailable"
	default:
		return "An unexpected error occurred"
	}
}

// validationMessages lists the sentinel validation errors whose text is
// safe to show as-is.
var validationMessages = []error{
	domain.ErrInvalidID,
	domain.ErrInvalidSignature,
	domain.ErrInvalidUrgency,
	domain.ErrInvalidCategory,
	domain.ErrEmptyDescription,
	domain.ErrDescriptionTooLong,
	domain.ErrEmptyReason,
	domain.ErrReasonTooLong,
	domain.ErrInvalidTarget,
	domain.ErrUnknownFleet,
	domain.ErrInvalidPeriod,
}

func validationMessage(err error) string {
	for _, sentinel := range validationMessages {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "Invalid request"
}

// HandleAPIError writes the error response for err. defaultMsg, when set,
// replaces the generic message for internal errors.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, defaultMsg string) {
	status, class := classify(err)
	msg := GetSafeErrorMessage(err)
	if class == shared.ClassInternal && defaultMsg != "" {
		msg = defaultMsg
	}
	shared.RespondWithErrorAndLog(w, r, status, class, msg, err)
}
