package app

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/spendsense/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

func TestNew_SeedsAndServes(t *testing.T) {
	cfg := LoadConfig()
	cfg.DatabaseDriver = "sqlite"
	cfg.DatabaseFile = filepath.Join(t.TempDir(), "app.db")
	cfg.SeedDemoUsers = true
	cfg.SessionCookieSecure = false
	cfg.LogLevel = "error"

	application, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	srv := httptest.NewServer(application.Handler())
	t.Cleanup(srv.Close)

	c, err := authsdk.NewClient(srv.URL)
	require.NoError(t, err)

	sess, err := c.Login(context.Background(), "mario", "1234")
	require.NoError(t, err)
	require.Equal(t, authsdk.RoleAdmin, sess.Role)
}
