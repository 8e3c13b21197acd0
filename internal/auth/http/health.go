package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/spendsense/internal/auth/store"
	"github.com/aussiebroadwan/spendsense/pkg/authsdk"
	"github.com/aussiebroadwan/spendsense/pkg/httpx"
	"github.com/aussiebroadwan/spendsense/pkg/jwtx"
)

const (
	healthOK       = "ok"
	healthDegraded = "degraded"
)

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	Started time.Time
	Version string
	Store   store.Store
	Keys    *jwtx.KeyManager
}

func (h *HealthHandler) report(status string, checks *authsdk.HealthChecks) authsdk.HealthResponse {
	return authsdk.HealthResponse{
		Status:  status,
		Uptime:  time.Since(h.Started).Round(time.Second).String(),
		Version: h.Version,
		Checks:  checks,
	}
}

// HandleLivez godoc
//
//	@Summary		Liveness probe
//	@Description	Returns 200 while the process is serving requests. No dependencies are checked.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"status, uptime, version"
//	@Router			/livez [get].
func (h *HealthHandler) HandleLivez(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.report(healthOK, nil))
}

// HandleReadyz godoc
//
//	@Summary		Readiness probe
//	@Description	Pings the credential store and checks a cookie signing key is loaded.
//	@Description	Returns 503 with the failing check when either is unavailable.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"status, uptime, version, checks"
//	@Failure		503	{object}	authsdk.HealthResponse	"service not ready"
//	@Router			/readyz [get].
func (h *HealthHandler) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := &authsdk.HealthChecks{Database: healthOK, Signer: healthOK}
	ready := true

	if err := h.Store.Ping(r.Context()); err != nil {
		checks.Database = "error: " + err.Error()
		ready = false
	}
	if h.Keys == nil || !h.Keys.IsReady() {
		checks.Signer = "error: no keys loaded"
		ready = false
	}

	if !ready {
		httpx.WriteJSON(w, http.StatusServiceUnavailable, h.report(healthDegraded, checks))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.report(healthOK, checks))
}
