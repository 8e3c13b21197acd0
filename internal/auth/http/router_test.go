package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/spendsense/internal/auth/domain"
	authhttp "github.com/aussiebroadwan/spendsense/internal/auth/http"
	"github.com/aussiebroadwan/spendsense/internal/auth/service"
	"github.com/aussiebroadwan/spendsense/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/spendsense/pkg/authsdk"
	"github.com/aussiebroadwan/spendsense/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	srv   *httptest.Server
	creds *service.CredentialService
	store *sqlite.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(sqlite.DSN(filepath.Join(t.TempDir(), "auth.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	creds := &service.CredentialService{Store: st}
	_, err = creds.SeedIfAbsent(context.Background(), domain.DemoUsers())
	require.NoError(t, err)

	keys, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{Issuer: "spendsense-test"})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	router := authhttp.NewRouter(keys, "test", st, logger)
	router.Sessions = &service.SessionRegistry{IdleTimeout: 30 * time.Minute, TTL: 12 * time.Hour}
	router.CredentialService = creds
	router.AuthService = &service.AuthService{
		Credentials: creds,
		Guard:       service.NewAccountGuard(st),
	}
	router.Cookie = authhttp.CookieConfig{TTL: 12 * time.Hour, Issuer: "spendsense-test"}
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, creds: creds, store: st}
}

func (e *testEnv) client(t *testing.T) *authsdk.Client {
	t.Helper()
	c, err := authsdk.NewClient(e.srv.URL)
	require.NoError(t, err)
	return c
}

func requireAPIError(t *testing.T, err error, status int, code string) *authsdk.APIError {
	t.Helper()
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, status, apiErr.StatusCode)
	require.Equal(t, code, apiErr.Code)
	return apiErr
}

func sessionCookie(t *testing.T, c *authsdk.Client, base string) *http.Cookie {
	t.Helper()
	u, err := url.Parse(base)
	require.NoError(t, err)
	for _, ck := range c.HTTPClient.Jar.Cookies(u) {
		if ck.Name == authhttp.DefaultCookieName {
			return ck
		}
	}
	return nil
}

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	ctx := context.Background()

	sess, err := c.Session(ctx)
	require.NoError(t, err)
	require.False(t, sess.Authenticated)
	require.Equal(t, authsdk.StateAnonymous, sess.State)

	sess, err = c.Login(ctx, "mario", "1234")
	require.NoError(t, err)
	require.True(t, sess.Authenticated)
	require.Equal(t, "mario", sess.Username)
	require.Equal(t, authsdk.RoleAdmin, sess.Role)
	require.NotNil(t, sessionCookie(t, c, env.srv.URL))

	sess, err = c.Session(ctx)
	require.NoError(t, err)
	require.True(t, sess.Authenticated)
	require.Equal(t, "mario", sess.Username)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	ctx := context.Background()

	_, err := c.Login(ctx, "lucas", "wrong")
	apiErr := requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials)
	require.NotNil(t, apiErr.RemainingUser)
	require.Equal(t, 4, *apiErr.RemainingUser)
	require.Equal(t, 11, *apiErr.RemainingGlobal)

	_, err = c.Login(ctx, "ghost", "wrong")
	apiErr = requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials)
	require.NotNil(t, apiErr.RemainingUser)
	require.Equal(t, 4, *apiErr.RemainingUser)
	require.Equal(t, 10, *apiErr.RemainingGlobal)
}

// Fresh cookie-less requests must not tell an unknown username from a real
// one by the shape or content of the body.
func TestLogin_UnknownUsernameLooksLikeWrongPassword(t *testing.T) {
	env := newTestEnv(t)

	post := func(username string) (int, map[string]any) {
		body := fmt.Sprintf(`{"username":%q,"password":"wrong"}`, username)
		resp, err := http.Post(env.srv.URL+"/v1/auth/login", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()

		var decoded map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
		return resp.StatusCode, decoded
	}

	realStatus, real := post("irene")
	ghostStatus, ghost := post("ghost-irene")

	require.Equal(t, http.StatusUnauthorized, realStatus)
	require.Equal(t, realStatus, ghostStatus)
	require.Equal(t, real, ghost)
	require.Contains(t, ghost, "remaining_user")
}

func TestLogin_AccountLocked(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	ctx := context.Background()

	for range 4 {
		_, err := c.Login(ctx, "mario", "wrong")
		requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials)
	}

	_, err := c.Login(ctx, "mario", "wrong")
	apiErr := requireAPIError(t, err, http.StatusLocked, authsdk.ErrorCodeAccountLocked)
	require.NotNil(t, apiErr.MinutesRemaining)
	require.Equal(t, 15, *apiErr.MinutesRemaining)

	_, err = c.Login(ctx, "mario", "1234")
	requireAPIError(t, err, http.StatusLocked, authsdk.ErrorCodeAccountLocked)
}

func TestLogin_GlobalLock(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	ctx := context.Background()

	for i := 1; i <= 11; i++ {
		_, err := c.Login(ctx, fmt.Sprintf("ghost%d", i), "x")
		requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials)
	}
	_, err := c.Login(ctx, "ghost12", "x")
	requireAPIError(t, err, http.StatusTooManyRequests, authsdk.ErrorCodeGlobalLockActive)

	_, err = c.Login(ctx, "mario", "1234")
	apiErr := requireAPIError(t, err, http.StatusTooManyRequests, authsdk.ErrorCodeGlobalLockActive)
	require.Equal(t, 15, *apiErr.MinutesRemaining)

	// A different browser has its own counter.
	_, err = env.client(t).Login(ctx, "mario", "1234")
	require.NoError(t, err)
}

func TestLogin_AlreadySignedIn(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	ctx := context.Background()

	_, err := c.Login(ctx, "mario", "1234")
	require.NoError(t, err)

	_, err = c.Login(ctx, "lucas", "abcd")
	requireAPIError(t, err, http.StatusConflict, authsdk.ErrorCodeInvalidState)
}

func TestLogin_RotatesSession(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	ctx := context.Background()

	_, err := c.Login(ctx, "ghost", "x")
	require.Error(t, err)
	before := sessionCookie(t, c, env.srv.URL)
	require.NotNil(t, before)

	_, err = c.Login(ctx, "irene", "pass")
	require.NoError(t, err)
	after := sessionCookie(t, c, env.srv.URL)
	require.NotEqual(t, before.Value, after.Value)

	// The pre-login cookie no longer carries the signed-in session.
	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/v1/auth/session", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: authhttp.DefaultCookieName, Value: before.Value})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `"authenticated":false`)
}

func TestLogin_BadRequest(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Post(env.srv.URL+"/v1/auth/login", "application/json", strings.NewReader(`{"username":"mario","pw":"1234"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
}

func TestSession_TamperedCookieIsAnonymous(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/v1/auth/session", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: authhttp.DefaultCookieName, Value: "not.a.token"})

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `"state":"anonymous"`)
}

func TestSignup(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	ctx := context.Background()

	req := authsdk.SignupRequest{Username: "alice", Password: "Abcdef1!", Confirm: "Abcdef1!", Role: authsdk.RoleManager}
	out, err := c.Signup(ctx, req)
	require.NoError(t, err)
	require.Equal(t, "alice", out.Username)

	sess, err := c.Session(ctx)
	require.NoError(t, err)
	require.False(t, sess.Authenticated)

	_, err = c.Signup(ctx, req)
	requireAPIError(t, err, http.StatusConflict, authsdk.ErrorCodeDuplicateUsername)

	sess, err = c.Login(ctx, "alice", "Abcdef1!")
	require.NoError(t, err)
	require.Equal(t, authsdk.RoleManager, sess.Role)
}

func TestSignup_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		req    authsdk.SignupRequest
		status int
		code   string
	}{
		{"empty username", authsdk.SignupRequest{Password: "Abcdef1!", Confirm: "Abcdef1!", Role: authsdk.RoleViewer}, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest},
		{"bad role", authsdk.SignupRequest{Username: "bob", Password: "Abcdef1!", Confirm: "Abcdef1!", Role: "viewer"}, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest},
		{"too short", authsdk.SignupRequest{Username: "bob", Password: "abc", Confirm: "abc", Role: authsdk.RoleViewer}, http.StatusBadRequest, authsdk.ErrorCodePasswordPolicy},
		{"no special", authsdk.SignupRequest{Username: "bob", Password: "Abcdefgh", Confirm: "Abcdefgh", Role: authsdk.RoleViewer}, http.StatusBadRequest, authsdk.ErrorCodePasswordPolicy},
		{"mismatch", authsdk.SignupRequest{Username: "bob", Password: "Abcdef1!", Confirm: "Abcdef1?", Role: authsdk.RoleViewer}, http.StatusBadRequest, authsdk.ErrorCodePasswordMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.client(t).Signup(ctx, tt.req)
			requireAPIError(t, err, tt.status, tt.code)
		})
	}
}

func TestAdminUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.client(t).ListUsers(ctx)
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeNotAuthenticated)

	viewer := env.client(t)
	_, err = viewer.Login(ctx, "irene", "pass")
	require.NoError(t, err)
	_, err = viewer.ListUsers(ctx)
	requireAPIError(t, err, http.StatusForbidden, authsdk.ErrorCodeForbidden)

	admin := env.client(t)
	_, err = admin.Login(ctx, "mario", "1234")
	require.NoError(t, err)
	list, err := admin.ListUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, list.Count)
	require.Equal(t, "irene", list.Users[0].Username)
}

func TestAdminUsers_NoHashMaterial(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)

	_, err := c.Login(context.Background(), "mario", "1234")
	require.NoError(t, err)

	resp, err := c.HTTPClient.Get(env.srv.URL + "/v1/admin/users")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NotContains(t, string(body), "salt")
	require.NotContains(t, string(body), "hash")
}

func TestExpiredPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	old := &service.CredentialService{
		Store: env.store,
		Now:   func() time.Time { return time.Now().Add(-100 * 24 * time.Hour) },
	}
	_, err := old.Create(ctx, "stale", "Old!passw0rd", domain.RoleAdmin)
	require.NoError(t, err)

	c := env.client(t)
	sess, err := c.Login(ctx, "stale", "Old!passw0rd")
	require.NoError(t, err)
	require.False(t, sess.Authenticated)
	require.Equal(t, authsdk.StateMustChangePassword, sess.State)

	_, err = c.ListUsers(ctx)
	requireAPIError(t, err, http.StatusForbidden, authsdk.ErrorCodePasswordExpired)

	sess, err = c.ChangePassword(ctx, authsdk.ChangePasswordRequest{NewPassword: "N3w!password", Confirm: "N3w!password"})
	require.NoError(t, err)
	require.True(t, sess.Authenticated)
	require.Equal(t, authsdk.RoleAdmin, sess.Role)

	_, err = c.ListUsers(ctx)
	require.NoError(t, err)
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	ctx := context.Background()

	_, err := c.ChangePassword(ctx, authsdk.ChangePasswordRequest{NewPassword: "N3w!password", Confirm: "N3w!password"})
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeNotAuthenticated)

	_, err = c.Login(ctx, "lucas", "abcd")
	require.NoError(t, err)

	_, err = c.ChangePassword(ctx, authsdk.ChangePasswordRequest{CurrentPassword: "nope", NewPassword: "N3w!password", Confirm: "N3w!password"})
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials)

	_, err = c.ChangePassword(ctx, authsdk.ChangePasswordRequest{CurrentPassword: "abcd", NewPassword: "short", Confirm: "short"})
	requireAPIError(t, err, http.StatusBadRequest, authsdk.ErrorCodePasswordPolicy)

	sess, err := c.ChangePassword(ctx, authsdk.ChangePasswordRequest{CurrentPassword: "abcd", NewPassword: "N3w!password", Confirm: "N3w!password"})
	require.NoError(t, err)
	require.True(t, sess.Authenticated)

	require.NoError(t, c.Logout(ctx))
	_, err = c.Login(ctx, "lucas", "abcd")
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials)
	_, err = c.Login(ctx, "lucas", "N3w!password")
	require.NoError(t, err)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	ctx := context.Background()

	_, err := c.Login(ctx, "mario", "1234")
	require.NoError(t, err)
	cookie := sessionCookie(t, c, env.srv.URL)
	require.NotNil(t, cookie)

	require.NoError(t, c.Logout(ctx))
	require.Nil(t, sessionCookie(t, c, env.srv.URL))

	sess, err := c.Session(ctx)
	require.NoError(t, err)
	require.False(t, sess.Authenticated)

	// Replaying the old cookie finds nothing.
	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/v1/admin/users", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Logging out without a session is fine.
	require.NoError(t, env.client(t).Logout(ctx))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	ctx := context.Background()

	live, err := c.GetLiveness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)
	require.Equal(t, "test", live.Version)

	ready, err := c.GetReadiness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Status)
	require.Equal(t, "ok", ready.Checks.Database)
	require.Equal(t, "ok", ready.Checks.Signer)
}

func TestSwagger(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/swagger/doc.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "/v1/auth/login")
}
