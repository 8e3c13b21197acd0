package http

import (
	"net/http"

	"github.com/aussiebroadwan/spendsense/internal/auth/domain"
	"github.com/aussiebroadwan/spendsense/internal/auth/service"
	"github.com/aussiebroadwan/spendsense/pkg/authsdk"
	"github.com/aussiebroadwan/spendsense/pkg/httpx"
)

// AuthHandler serves the login state machine over HTTP.
type AuthHandler struct {
	AuthService *service.AuthService

	sessions *sessionManager
}

func sessionResponse(state domain.SessionState, id domain.Identity) authsdk.SessionResponse {
	resp := authsdk.SessionResponse{
		Authenticated: state == domain.StateAuthenticated,
		State:         string(state),
	}
	if state != domain.StateAnonymous {
		resp.UserID = id.UserID
		resp.Username = id.Username
		resp.Role = id.Role.String()
	}
	return resp
}

// HandleLogin godoc
//
//	@Summary		Sign in
//	@Description	Checks the session lock, the account lock and the password, in that order.
//	@Description	An expired password still signs in but leaves the session in must_change_password.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.SessionResponse	"state, username, role"
//	@Failure		400		{object}	authsdk.ErrorResponse	"invalid_request"
//	@Failure		401		{object}	authsdk.ErrorResponse	"invalid_credentials with remaining attempts"
//	@Failure		409		{object}	authsdk.ErrorResponse	"invalid_state: already signed in"
//	@Failure		423		{object}	authsdk.ErrorResponse	"account_locked with minutes_remaining"
//	@Failure		429		{object}	authsdk.ErrorResponse	"global_lock_active or rate_limit_exceeded"
//	@Router			/v1/auth/login [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	sess, err := h.sessions.ensureSession(w, r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out, err := h.AuthService.Login(ctx, sess, req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	// New ID on every sign-in.
	next, err := h.sessions.Sessions.Rotate(sess)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := h.sessions.setSessionCookie(w, next); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, sessionResponse(out.State, out.Identity))
}

// HandleSignup godoc
//
//	@Summary		Create an account
//	@Description	Creates a user with the given role. The session stays anonymous, sign in afterwards.
//	@Description	Passwords need at least 8 characters, an uppercase letter A-Z and a character outside A-Z, a-z and 0-9.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.SignupRequest	true	"New account"
//	@Success		201		{object}	authsdk.SignupResponse	"username, role"
//	@Failure		400		{object}	authsdk.ErrorResponse	"invalid_request, password_policy or password_mismatch"
//	@Failure		409		{object}	authsdk.ErrorResponse	"duplicate_username or invalid_state"
//	@Failure		429		{object}	authsdk.ErrorResponse	"global_lock_active or rate_limit_exceeded"
//	@Router			/v1/auth/signup [post].
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req authsdk.SignupRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	sess, err := h.sessions.ensureSession(w, r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	err = h.AuthService.Signup(ctx, sess, service.SignupRequest{
		Username: req.Username,
		Password: req.Password,
		Confirm:  req.Confirm,
		Role:     domain.Role(req.Role),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, authsdk.SignupResponse{
		Username: req.Username,
		Role:     req.Role,
	})
}

// HandleChangePassword godoc
//
//	@Summary		Change password
//	@Description	Forced when the session is in must_change_password, in which case current_password is ignored.
//	@Description	Otherwise the current password is verified first.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.ChangePasswordRequest	true	"Passwords"
//	@Success		200		{object}	authsdk.SessionResponse			"state, username, role"
//	@Failure		400		{object}	authsdk.ErrorResponse			"invalid_request, password_policy or password_mismatch"
//	@Failure		401		{object}	authsdk.ErrorResponse			"not_authenticated or invalid_credentials"
//	@Failure		429		{object}	authsdk.ErrorResponse			"global_lock_active or rate_limit_exceeded"
//	@Router			/v1/auth/password [post].
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req authsdk.ChangePasswordRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}

	sess, ok := sessionFromContext(ctx)
	if !ok {
		writeServiceError(w, r, service.ErrNotAuthenticated)
		return
	}

	out, err := h.AuthService.ChangePassword(ctx, sess, service.ChangePasswordRequest{
		Current: req.CurrentPassword,
		New:     req.NewPassword,
		Confirm: req.Confirm,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, sessionResponse(out.State, out.Identity))
}

// HandleLogout godoc
//
//	@Summary		Sign out
//	@Description	Ends the session and clears the cookie. Always succeeds.
//	@Tags			Auth
//	@Success		204	"No Content"
//	@Router			/v1/auth/logout [post].
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if sess, ok := sessionFromContext(ctx); ok {
		h.AuthService.Logout(ctx, sess)
		h.sessions.Sessions.Delete(sess.ID)
	}
	h.sessions.clearSessionCookie(w)

	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleSession godoc
//
//	@Summary		Current session
//	@Description	Describes the caller's session. Callers without a session are anonymous.
//	@Tags			Auth
//	@Produce		json
//	@Success		200	{object}	authsdk.SessionResponse	"authenticated, state, username, role"
//	@Router			/v1/auth/session [get].
func (h *AuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromContext(r.Context())
	if !ok {
		httpx.WriteJSON(w, http.StatusOK, sessionResponse(domain.StateAnonymous, domain.Identity{}))
		return
	}

	state, id := sess.Snapshot()
	httpx.WriteJSON(w, http.StatusOK, sessionResponse(state, id))
}
