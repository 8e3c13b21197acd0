package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/spendsense/internal/auth/domain"
	"github.com/aussiebroadwan/spendsense/internal/auth/service"
	"github.com/aussiebroadwan/spendsense/internal/auth/store"
	"github.com/aussiebroadwan/spendsense/pkg/httpx"
	"github.com/aussiebroadwan/spendsense/pkg/jwtx"
	"github.com/aussiebroadwan/spendsense/pkg/slogx"

	_ "github.com/aussiebroadwan/spendsense/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeyManager
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store

	Sessions          *service.SessionRegistry
	AuthService       *service.AuthService
	CredentialService *service.CredentialService
	Cookie            CookieConfig

	sessions *sessionManager
}

func NewRouter(
	keys *jwtx.KeyManager,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	return &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}
}

// ApplyRoutes registers every endpoint. Set the exported services and
// Cookie before calling it.
func (r *Router) ApplyRoutes() {
	r.sessions = &sessionManager{
		Sessions: r.Sessions,
		Keys:     r.keys,
		Cookie:   r.Cookie,
	}

	// Logging first so every response is logged, then the session so the
	// per-route middleware can see the caller.
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		r.sessions.middleware(),
	}

	r.registerAuth()
	r.registerAdmin()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			SpendSense Authentication Service API
//	@version		0.1.0
//	@description	Session based sign-in for SpendSense with per-account and per-session lockout.
//	@description
//	@description				The session is carried in an HttpOnly cookie holding an EdDSA signed token.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/spendsense
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	SessionCookie
//	@in							cookie
//	@name						spendsense_session
//	@description				Session cookie set by /v1/auth/login.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{
		AuthService: r.AuthService,
		sessions:    r.sessions,
	}

	// Credential endpoints - strict rate limit by IP + username (brute force)
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIPAndJSONField(httpx.StrictLimit, "username"),
		),
	)
	r.Mux.Handle("POST /v1/auth/signup",
		httpx.Chain(http.HandlerFunc(h.HandleSignup),
			httpx.RateLimitByIPAndJSONField(httpx.StrictLimit, "username"),
		),
	)
	r.Mux.Handle("POST /v1/auth/password",
		httpx.Chain(http.HandlerFunc(h.HandleChangePassword),
			httpx.RateLimitBySession(httpx.StrictLimit),
		),
	)

	// Session bookkeeping - moderate rate limit
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.RateLimitBySession(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("GET /v1/auth/session",
		httpx.Chain(http.HandlerFunc(h.HandleSession),
			httpx.RateLimitBySession(httpx.PublicLimit),
		),
	)
}

func (r *Router) registerAdmin() {
	h := &AdminUsersHandler{CredentialService: r.CredentialService}

	secured := httpx.Chain(h,
		requireFullSession(),
		httpx.RequireRole(domain.RoleAdmin.String()),
		httpx.RateLimitBySession(httpx.ModerateLimit),
	)

	r.Mux.Handle("GET /v1/admin/users", secured)
}

func (r *Router) registerSystem() {
	h := &HealthHandler{
		Started: r.startTime,
		Version: r.buildVersion,
		Store:   r.store,
		Keys:    r.keys,
	}

	// Probes are polled often, so they share the public profile.
	probe := httpx.RateLimitByIP(httpx.PublicLimit)
	r.Mux.Handle("GET /livez", httpx.Chain(http.HandlerFunc(h.HandleLivez), probe))
	r.Mux.Handle("GET /readyz", httpx.Chain(http.HandlerFunc(h.HandleReadyz), probe))
}
