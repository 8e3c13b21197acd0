package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aussiebroadwan/spendsense/internal/auth/service"
	"github.com/aussiebroadwan/spendsense/pkg/httpx"
	"github.com/aussiebroadwan/spendsense/pkg/jwtx"
	"github.com/aussiebroadwan/spendsense/pkg/slogx"
)

// DefaultCookieName is the session cookie used when CookieConfig.Name is empty.
const DefaultCookieName = "spendsense_session"

// CookieConfig controls the session cookie. The cookie value is a signed JWT
// whose sid claim names a session in the registry.
type CookieConfig struct {
	Name     string
	Secure   bool
	TTL      time.Duration
	Issuer   string
	Audience []string
}

func (c CookieConfig) name() string {
	if c.Name == "" {
		return DefaultCookieName
	}
	return c.Name
}

// sessionManager ties the cookie to the in-memory session registry.
type sessionManager struct {
	Sessions *service.SessionRegistry
	Keys     *jwtx.KeyManager
	Cookie   CookieConfig
}

type sessionCtxKey struct{}

func withSession(ctx context.Context, sess *service.Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, sess)
}

func sessionFromContext(ctx context.Context) (*service.Session, bool) {
	sess, ok := ctx.Value(sessionCtxKey{}).(*service.Session)
	return sess, ok
}

// sessions resolves the cookie to a live session and loads it into the
// request context. Authenticated sessions also get an httpx.Identity so the
// generic authz and rate-limit middleware can see the caller. A missing or
// bad cookie is not an error, the request simply has no session.
func (m *sessionManager) middleware() httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := m.resolveSession(r)
			if sess == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := withSession(r.Context(), sess)
			if id, ok := sess.CurrentUser(); ok {
				ctx = httpx.WithIdentity(ctx, httpx.Identity{
					UserID:    id.UserID,
					Username:  id.Username,
					Role:      id.Role.String(),
					SessionID: sess.ID,
				})
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (m *sessionManager) resolveSession(r *http.Request) *service.Session {
	c, err := r.Cookie(m.Cookie.name())
	if err != nil || c.Value == "" {
		return nil
	}

	claims, err := m.Keys.Verifier.Verify(c.Value)
	if err != nil {
		slogx.FromContext(r.Context()).Debug("ignoring session cookie", "error", err)
		return nil
	}

	sess, err := m.Sessions.Get(claims.SID)
	if err != nil {
		if !errors.Is(err, service.ErrSessionNotFound) {
			slogx.FromContext(r.Context()).Error("failed to load session", "error", err)
		}
		return nil
	}
	return sess
}

// ensureSession returns the request's session, starting a new anonymous one
// and setting its cookie when there is none.
func (m *sessionManager) ensureSession(w http.ResponseWriter, r *http.Request) (*service.Session, error) {
	if sess, ok := sessionFromContext(r.Context()); ok {
		return sess, nil
	}

	sess, err := m.Sessions.Create()
	if err != nil {
		return nil, err
	}
	if err := m.setSessionCookie(w, sess); err != nil {
		m.Sessions.Delete(sess.ID)
		return nil, err
	}
	return sess, nil
}

func (m *sessionManager) setSessionCookie(w http.ResponseWriter, sess *service.Session) error {
	signer := m.Keys.GetSigner()
	if signer == nil {
		return jwtx.ErrNoKey
	}

	token, err := signer.Sign(jwtx.NewSessionClaims(sess.ID, m.Cookie.Issuer, m.Cookie.Audience, m.Cookie.TTL, time.Now()))
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.Cookie.name(),
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.Cookie.TTL.Seconds()),
		HttpOnly: true,
		Secure:   m.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (m *sessionManager) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.Cookie.name(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// requireFullSession lets through only sessions in the authenticated state.
// A session that still has to change an expired password gets 403.
func requireFullSession() httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := sessionFromContext(r.Context())
			if !ok {
				httpx.WriteError(w, http.StatusUnauthorized, "not_authenticated", "Sign in to continue.")
				return
			}
			if _, err := sess.RequireAuthenticated(); err != nil {
				writeServiceError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
