package auth_test

import (
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/spendsense/internal/auth/app"
	"github.com/aussiebroadwan/spendsense/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

/*
 * Common helpers for auth service end-to-end tests. Each test boots the full
 * application against a fresh SQLite file and talks to it through the SDK.
 */

const (
	adminUsername   = "mario"
	adminPassword   = "1234"
	managerUsername = "lucas"
	managerPassword = "abcd"
	viewerUsername  = "irene"
	viewerPassword  = "pass"
)

// setupAuthServer starts the application with demo users seeded and returns
// its base URL.
func setupAuthServer(t *testing.T, mutate ...func(*app.Config)) string {
	t.Helper()

	cfg := app.LoadConfig()
	cfg.Env = "test"
	cfg.DatabaseDriver = "sqlite"
	cfg.DatabaseFile = filepath.Join(t.TempDir(), "auth.db")
	cfg.SeedDemoUsers = true
	cfg.SessionCookieSecure = false
	cfg.LogLevel = "error"
	for _, fn := range mutate {
		fn(&cfg)
	}

	application, err := app.New(cfg)
	require.NoError(t, err)

	srv := httptest.NewServer(application.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = application.Close()
	})

	return srv.URL
}

// newClient returns an SDK client with its own cookie jar, i.e. a fresh browser session.
func newClient(t *testing.T, baseURL string) *authsdk.Client {
	t.Helper()

	c, err := authsdk.NewClient(baseURL)
	require.NoError(t, err)
	return c
}

// requireAPIError asserts err is an API error with the given status and code.
func requireAPIError(t *testing.T, err error, status int, code string) *authsdk.APIError {
	t.Helper()

	var apiErr *authsdk.APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %v", err)
	require.Equal(t, status, apiErr.StatusCode)
	require.Equal(t, code, apiErr.Code)
	return apiErr
}

// assertHealthy verifies a health check response is OK.
func assertHealthy(t *testing.T, health *authsdk.HealthResponse, err error) {
	t.Helper()
	require.NoError(t, err)
	require.NotNil(t, health)
	require.Equal(t, "ok", health.Status)
}
