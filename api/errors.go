package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ynaut/reward-ledger/auth"
	"github.com/ynaut/reward-ledger/ledger"
	"github.com/ynaut/reward-ledger/rewards"
)

// =============================================================================
// ERROR MAPPING
// =============================================================================

// errInvalidRequest marks malformed bodies and failed validation.
var errInvalidRequest = errors.New("invalid request")

// errorCode extends ledger.Code with the processor and auth sentinels.
func errorCode(err error) string {
	switch {
	case errors.Is(err, errInvalidRequest):
		return "invalid_request"
	case errors.Is(err, rewards.ErrInvalidContent):
		return "invalid_content"
	case errors.Is(err, rewards.ErrPostNotFound):
		return "post_not_found"
	case errors.Is(err, rewards.ErrChannelNotFound):
		return "channel_not_found"
	case errors.Is(err, rewards.ErrStoryNotFound):
		return "story_not_found"
	case errors.Is(err, auth.ErrInvalidRegistration):
		return "invalid_registration"
	case errors.Is(err, auth.ErrUserExists):
		return "user_exists"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "invalid_credentials"
	}
	return ledger.Code(err)
}

// statusFor maps a domain error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, errInvalidRequest),
		errors.Is(err, rewards.ErrInvalidContent),
		errors.Is(err, auth.ErrInvalidRegistration),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidEffect):
		return http.StatusBadRequest
	case ledger.IsNotFound(err),
		errors.Is(err, rewards.ErrPostNotFound),
		errors.Is(err, rewards.ErrChannelNotFound),
		errors.Is(err, rewards.ErrStoryNotFound):
		return http.StatusNotFound
	case ledger.IsConflict(err):
		return http.StatusConflict
	case ledger.IsRetryable(err):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// errorDetails exposes the structured fields of rich errors.
func errorDetails(err error) any {
	var (
		inf *ledger.InsufficientFundsError
		pm  *ledger.PriceMismatchError
		ve  validator.ValidationErrors
	)
	switch {
	case errors.As(err, &inf):
		return map[string]any{
			"available": inf.Available,
			"requested": inf.Requested,
			"shortfall": inf.Shortfall(),
		}
	case errors.As(err, &pm):
		return map[string]any{
			"item_id":        pm.ItemID,
			"declared_price": pm.Declared,
			"actual_price":   pm.Actual,
		}
	case errors.As(err, &ve):
		fields := make(map[string]string, len(ve))
		for _, fe := range ve {
			fields[fe.Field()] = fe.Tag()
		}
		return fields
	}
	return nil
}

// writeDomainError writes err with its mapped status and code. Internal
// errors are logged and never echoed to the client.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, status, errorCode(err), "internal error", nil)
		return
	}
	writeError(w, status, errorCode(err), err.Error(), errorDetails(err))
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message, Details: details})
}
