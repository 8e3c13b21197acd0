package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error codes returned by the service.
const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeInvalidCredentials = "invalid_credentials"
	ErrorCodeAccountLocked      = "account_locked"
	ErrorCodeGlobalLockActive   = "global_lock_active"
	ErrorCodePasswordPolicy     = "password_policy"
	ErrorCodePasswordMismatch   = "password_mismatch"
	ErrorCodePasswordExpired    = "password_expired"
	ErrorCodeDuplicateUsername  = "duplicate_username"
	ErrorCodeInvalidState       = "invalid_state"
	ErrorCodeNotAuthenticated   = "not_authenticated"
	ErrorCodeForbidden          = "forbidden"
	ErrorCodeRateLimitExceeded  = "rate_limit_exceeded"
	ErrorCodeServerError        = "server_error"
)

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string

	RemainingUser    *int
	RemainingGlobal  *int
	MinutesRemaining *int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%d %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Code, e.Message)
}

// parseErrorResponse turns a non-2xx response into an *APIError. Bodies that
// are not an ErrorResponse fall back to the status text.
func parseErrorResponse(resp *http.Response, body []byte) error {
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{
			StatusCode:       resp.StatusCode,
			Code:             errResp.Error,
			Message:          errResp.Message,
			RemainingUser:    errResp.RemainingUser,
			RemainingGlobal:  errResp.RemainingGlobal,
			MinutesRemaining: errResp.MinutesRemaining,
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Code:       ErrorCodeServerError,
		Message:    fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
