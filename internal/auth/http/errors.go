package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/spendsense/internal/auth/service"
	"github.com/aussiebroadwan/spendsense/pkg/authsdk"
	"github.com/aussiebroadwan/spendsense/pkg/httpx"
	"github.com/aussiebroadwan/spendsense/pkg/slogx"
)

// writeServiceError maps a service error to its HTTP response. Anything not
// recognised, storage failures included, is logged and returned as 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		locked *service.LockedError
		creds  *service.CredentialsError
		policy *service.PolicyError
	)

	switch {
	case errors.As(err, &locked):
		minutes := locked.MinutesRemaining
		resp := authsdk.ErrorResponse{MinutesRemaining: &minutes}
		status := http.StatusLocked
		if locked.Scope == service.LockScopeGlobal {
			resp.Error = authsdk.ErrorCodeGlobalLockActive
			resp.Message = fmt.Sprintf("Too many failed attempts. Try again in about %d minutes.", minutes)
			status = http.StatusTooManyRequests
		} else {
			resp.Error = authsdk.ErrorCodeAccountLocked
			resp.Message = fmt.Sprintf("This account is locked. Try again in about %d minutes.", minutes)
		}
		w.Header().Set("Retry-After", strconv.Itoa(minutes*60))
		httpx.WriteJSON(w, status, resp)

	case errors.As(err, &creds):
		remainingUser, remainingGlobal := creds.RemainingUser, creds.RemainingGlobal
		resp := authsdk.ErrorResponse{
			Error:           authsdk.ErrorCodeInvalidCredentials,
			Message:         "Invalid credentials.",
			RemainingUser:   &remainingUser,
			RemainingGlobal: &remainingGlobal,
		}
		httpx.WriteJSON(w, http.StatusUnauthorized, resp)

	case errors.As(err, &policy):
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodePasswordPolicy, "Password "+policy.Reason+".")

	case errors.Is(err, service.ErrPasswordMismatch):
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodePasswordMismatch, "Passwords do not match.")

	case errors.Is(err, service.ErrEmptyUsername):
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "Username is required.")

	case errors.Is(err, service.ErrInvalidRole):
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "Role must be one of Viewer, Manager or Admin.")

	case errors.Is(err, service.ErrDuplicateUsername):
		httpx.WriteError(w, http.StatusConflict, authsdk.ErrorCodeDuplicateUsername, "That username is already taken.")

	case errors.Is(err, service.ErrInvalidState):
		httpx.WriteError(w, http.StatusConflict, authsdk.ErrorCodeInvalidState, "Sign out first.")

	case errors.Is(err, service.ErrNotAuthenticated):
		httpx.WriteError(w, http.StatusUnauthorized, authsdk.ErrorCodeNotAuthenticated, "Sign in to continue.")

	case errors.Is(err, service.ErrPasswordExpired):
		httpx.WriteError(w, http.StatusForbidden, authsdk.ErrorCodePasswordExpired, "Your password has expired. Change it to continue.")

	default:
		slogx.FromContext(r.Context()).Error("request failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, authsdk.ErrorCodeServerError, "Something went wrong. Please try again.")
	}
}

func writeBadRequest(w http.ResponseWriter, err error) {
	httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, err.Error())
}
