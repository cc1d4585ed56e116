package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"payrollhub.org/internal/audit"
	"payrollhub.org/internal/auth"
	"payrollhub.org/internal/consistency"
	"payrollhub.org/internal/kv"
	"payrollhub.org/internal/obs"
	"payrollhub.org/internal/ratelimit"
	"payrollhub.org/internal/users"
)

// ReadyProbe pings the backing stores. Nil members are skipped.
type ReadyProbe struct {
	DB *sql.DB
	KV kv.Store
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if rp.KV != nil {
		return rp.KV.Ping(ctx)
	}
	return nil
}

// Deps are the services behind the routes.
type Deps struct {
	Guard    *auth.AccessGuard
	Auth     *auth.Authenticator
	Limiter  *ratelimit.Limiter
	Audit    *audit.Log
	Revenues *consistency.Service
	Users    *users.Service
	Ready    ReadyProbe
}

// API is the HTTP layer.
type API struct {
	Deps
	mux            *http.ServeMux
	version        string
	logger         *slog.Logger
	maxBodyBytes   int64
	allowedOrigins []string
	secureCookies  bool
	trustedProxies []*net.IPNet
}

// Option configures API.
type Option func(*API)

func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithVersion(v string) Option { return func(a *API) { a.version = v } }

func WithMaxBodyBytes(n int64) Option { return func(a *API) { a.maxBodyBytes = n } }

func WithAllowedOrigins(origins []string) Option {
	return func(a *API) { a.allowedOrigins = origins }
}

// WithSecureCookies marks the session cookie Secure.
func WithSecureCookies(secure bool) Option {
	return func(a *API) { a.secureCookies = secure }
}

// WithTrustedProxies lists the proxies allowed to set X-Forwarded-For. With
// none, the socket peer is the client address.
func WithTrustedProxies(proxies []*net.IPNet) Option {
	return func(a *API) { a.trustedProxies = proxies }
}

func New(deps Deps, opts ...Option) *API {
	a := &API{
		Deps:         deps,
		mux:          http.NewServeMux(),
		logger:       slog.Default(),
		maxBodyBytes: 1 << 20,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Readyz)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)
	a.mux.HandleFunc("/v1/users", a.handleUsers)
	a.mux.HandleFunc("/v1/revenues", a.handleRevenues)
	a.mux.HandleFunc("/v1/revenues/{id}", a.handleRevenueResource)
	a.mux.HandleFunc("/v1/audit", a.handleAudit)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	})
	return a
}

// Handler returns the mux wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = CORS(a.allowedOrigins)(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(a.logger)(h)
	h = RequestID(h)
	h = ClientIP(a.trustedProxies)(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "payrollhub-api",
		"version": a.version,
	})
}

func (a *API) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.Deps.Ready.Check(ctx); err != nil {
		a.logger.WarnContext(ctx, "readiness_failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
