package httpx

import (
	"errors"
	"net/http"

	"github.com/gatekeeper-iam/gatekeeper/internal/shared"
)

// RespondError maps domain errors to envelope responses.
//
// Authentication failures stay generic on purpose; validation failures
// enumerate the offending items; everything unrecognized becomes a 500 with
// a stable message and no cause attached.
func RespondError(w http.ResponseWriter, err error) {
	var verr *shared.ValidationError
	switch {
	case errors.As(err, &verr):
		Error(w, http.StatusBadRequest, verr.Message, verr.Details)
	case errors.Is(err, shared.ErrInvalidCredentials):
		Error(w, http.StatusUnauthorized, "invalid credentials", nil)
	case errors.Is(err, shared.ErrInvalidToken):
		Error(w, http.StatusUnauthorized, "invalid token", nil)
	case errors.Is(err, shared.ErrResetCredentialInvalid):
		Error(w, http.StatusBadRequest, shared.ErrResetCredentialInvalid.Error(), nil)
	case errors.Is(err, shared.ErrPasswordMismatch):
		Error(w, http.StatusBadRequest, shared.ErrPasswordMismatch.Error(), nil)
	case errors.Is(err, shared.ErrDuplicate):
		Error(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, shared.ErrNotFound):
		Error(w, http.StatusNotFound, err.Error(), nil)
	default:
		Error(w, http.StatusInternalServerError, "internal error", nil)
	}
}
