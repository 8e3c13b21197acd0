package service_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/spendsense/internal/auth/domain"
	"github.com/aussiebroadwan/spendsense/internal/auth/service"
	"github.com/aussiebroadwan/spendsense/internal/auth/store/drivers/sqlite"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	store    *sqlite.Store
	clock    *testClock
	creds    *service.CredentialService
	guard    *service.AccountGuard
	auth     *service.AuthService
	sessions *service.SessionRegistry
}

// newFixture wires the services over a temp-file SQLite store seeded with
// the demo users.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	s, err := sqlite.NewStore(sqlite.DSN(filepath.Join(t.TempDir(), "auth.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())

	clock := newTestClock()
	creds := &service.CredentialService{Store: s, Now: clock.Now}
	guard := service.NewAccountGuard(s)
	guard.Now = clock.Now

	_, err = creds.SeedIfAbsent(context.Background(), domain.DemoUsers())
	require.NoError(t, err)

	return &fixture{
		store: s,
		clock: clock,
		creds: creds,
		guard: guard,
		auth:  &service.AuthService{Credentials: creds, Guard: guard},
		sessions: &service.SessionRegistry{
			IdleTimeout: 30 * time.Minute,
			TTL:         12 * time.Hour,
			Now:         clock.Now,
		},
	}
}

func (f *fixture) newSession(t *testing.T) *service.Session {
	t.Helper()
	sess, err := f.sessions.Create()
	require.NoError(t, err)
	return sess
}
