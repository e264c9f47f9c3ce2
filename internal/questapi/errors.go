package questapi

import (
	"errors"
	"net/http"

	"github.com/juno-intents/quest-escrow/internal/authsig"
	"github.com/juno-intents/quest-escrow/internal/blobstore"
	"github.com/juno-intents/quest-escrow/internal/content"
	"github.com/juno-intents/quest-escrow/internal/policy"
	"github.com/juno-intents/quest-escrow/internal/quest"
)

// errorResponse maps err to an HTTP status and a stable error code.
func errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, quest.ErrValidation):
		return http.StatusBadRequest, quest.CodeOf(err)
	case errors.Is(err, quest.ErrUnauthorized):
		return http.StatusForbidden, quest.CodeOf(err)
	case errors.Is(err, quest.ErrStateConflict):
		return http.StatusConflict, quest.CodeOf(err)
	case errors.Is(err, quest.ErrArithmetic):
		return http.StatusUnprocessableEntity, quest.CodeOf(err)
	case errors.Is(err, quest.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, quest.ErrClaimExists):
		return http.StatusConflict, "claim_exists"
	case errors.Is(err, quest.ErrAlreadyInitialized):
		return http.StatusConflict, "already_initialized"
	case errors.Is(err, quest.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "insufficient_funds"
	case errors.Is(err, quest.ErrNotInitialized):
		return http.StatusServiceUnavailable, "not_initialized"

	case errors.Is(err, policy.ErrTooManyActive):
		return http.StatusForbidden, "too_many_active_claims"
	case errors.Is(err, policy.ErrTooManyStrikes):
		return http.StatusForbidden, "too_many_strikes"
	case errors.Is(err, policy.ErrDescriptionLength):
		return http.StatusBadRequest, "invalid_description"
	case errors.Is(err, policy.ErrDescriptionBlocked):
		return http.StatusBadRequest, "description_blocked"

	case errors.Is(err, authsig.ErrMissingHeaders):
		return http.StatusUnauthorized, "missing_signature"
	case errors.Is(err, authsig.ErrStale):
		return http.StatusUnauthorized, "stale_signature"
	case errors.Is(err, authsig.ErrInvalidSignature), errors.Is(err, authsig.ErrSignerMismatch):
		return http.StatusUnauthorized, "invalid_signature"
	case errors.Is(err, authsig.ErrReplayed):
		return http.StatusUnauthorized, "replayed_signature"
	case errors.Is(err, authsig.ErrReplayCacheFull):
		return http.StatusServiceUnavailable, "busy"

	case errors.Is(err, content.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, content.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_content"
	case errors.Is(err, blobstore.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "content_too_large"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
