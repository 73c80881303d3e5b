package httpserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"freightflow/portal/internal/audit"
	"freightflow/portal/internal/config"
	"freightflow/portal/internal/cookies"
	"freightflow/portal/internal/directory"
	"freightflow/portal/internal/documents"
	"freightflow/portal/internal/identity"
	"freightflow/portal/internal/observability"
	"freightflow/portal/internal/pages"
	"freightflow/portal/internal/refresh"
)

type AuditLogger interface {
	Log(e audit.Event) error
}

type Deps struct {
	Identity  *identity.Factory
	Directory directory.Store
	Documents *documents.Store
	Pages     *pages.Renderer
	Audit     AuditLogger
	Metrics   *observability.Metrics
	Logger    *slog.Logger

	// PublicURL is the externally visible origin used for OAuth redirects.
	// When empty it is derived from the request.
	PublicURL     string
	OAuthProvider string

	// Ready reports whether backing services are usable; nil means always
	// ready.
	Ready func(ctx context.Context) error
}

type Server struct {
	httpServer *http.Server
}

func New(cfg config.HTTPConfig, deps Deps) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      NewHandler(deps),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
	}
}

type handlers struct {
	Deps
	log *slog.Logger
}

func NewHandler(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.OAuthProvider == "" {
		deps.OAuthProvider = "google"
	}
	h := &handlers{Deps: deps, log: logger}

	r := chi.NewRouter()
	r.Use(loggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", h.ready)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}
	r.Handle("/static/*", http.StripPrefix("/static/", pages.Static()))
	r.Handle("/favicon.ico", pages.Favicon())

	r.Group(func(r chi.Router) {
		r.Use(refresh.Filter(deps.Identity, refresh.DefaultMatcher(), logger))

		r.Get("/", h.index)
		r.Get("/login", h.loginPage)
		r.Post("/login", h.loginSubmit)
		r.Post("/login/oauth", h.oauthStart)
		r.Post("/logout", h.logout)
		r.Get("/auth/auth-code-error", h.authCodeError)
		r.Get("/api/auth/callback", h.callback)
		r.Get("/api/download/{filename}", h.download)

		r.Get("/home", h.gated("home", pages.Home, "Home", nil))
		r.Get("/settings", h.gated("settings", pages.Settings, "Settings", nil))
		r.Get("/accounts", h.gated("accounts", pages.Accounts, "Accounts", h.loadAccounts))
		r.Get("/accounts/{clientId}", h.gated("account", pages.Account, "Account", h.loadAccount))
		r.Post("/accounts/{clientId}/messages", h.gated("account_message", "", "", h.postMessage))
		r.Get("/documents", h.gated("documents", pages.Documents, "Documents", h.loadDocuments))

		r.NotFound(h.notFound)
	})

	return r
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (h *handlers) ready(w http.ResponseWriter, r *http.Request) {
	if h.Ready != nil {
		if err := h.Ready(r.Context()); err != nil {
			h.log.Warn("readiness check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// identityFor binds an identity client to r's cookies. Session changes are
// written straight to w as Set-Cookie headers.
func (h *handlers) identityFor(w http.ResponseWriter, r *http.Request) *identity.Client {
	return h.Identity.ForRequest(cookies.FromRequest(r), cookies.NewResponseSink(w))
}

func (h *handlers) requestLogger(r *http.Request) *slog.Logger {
	return h.log.With("request_id", requestIDFromContext(r.Context()))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, message)
}

// redirect sends a temporary redirect. GET and HEAD keep their method;
// form posts are turned into a GET of the destination.
func redirect(w http.ResponseWriter, r *http.Request, dest string, permanent bool) {
	status := http.StatusTemporaryRedirect
	switch {
	case permanent:
		status = http.StatusPermanentRedirect
	case r.Method != http.MethodGet && r.Method != http.MethodHead:
		status = http.StatusSeeOther
	}
	http.Redirect(w, r, dest, status)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
			if reqID == "" {
				reqID = newRequestID()
			}
			w.Header().Set("X-Request-Id", reqID)
			r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, reqID))
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			elapsed := time.Since(start)
			metrics.ObserveHTTP(route, r.Method, rec.status, elapsed)
			logger.Info("http request",
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"route", route,
				"status", rec.status,
				"duration_ms", elapsed.Milliseconds(),
				"client_ip", clientIP(r),
			)
		})
	}
}

type requestIDKey struct{}

func newRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func requestIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(requestIDKey{}).(string); ok {
		return s
	}
	return ""
}

func clientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

func (h *handlers) auditReq(r *http.Request, actor, action string, err error) {
	if h.Audit == nil {
		return
	}
	e := audit.Event{
		RequestID: requestIDFromContext(r.Context()),
		ClientIP:  clientIP(r),
		Actor:     actor,
		Action:    action,
		Outcome:   audit.Outcome(err),
	}
	if err != nil {
		e.Detail = err.Error()
	}
	if logErr := h.Audit.Log(e); logErr != nil {
		h.requestLogger(r).Warn("audit log write failed", "action", action, "error", logErr)
	}
}
