package httpserver

import (
	"net/http"
	"net/url"
	"strings"

	"freightflow/portal/internal/audit"
	"freightflow/portal/internal/identity"
	"freightflow/portal/internal/pages"
)

const (
	afterSignIn      = "/settings"
	defaultNext      = "/home"
	authCodeErrorURL = "/auth/auth-code-error"
	callbackPath     = "/api/auth/callback"
)

// index sends signed-in browsers to settings and everyone else to login.
// It only inspects the session cookies; the gate on the destination does
// the live validation.
func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	sess, err := h.identityFor(w, r).GetSession(r.Context())
	if err != nil {
		h.requestLogger(r).Debug("session lookup failed", "error", err)
	}
	if err == nil && sess != nil {
		redirect(w, r, afterSignIn, false)
		return
	}
	redirect(w, r, "/login", false)
}

func (h *handlers) loginPage(w http.ResponseWriter, r *http.Request) {
	h.renderLogin(w, r, http.StatusOK, loginForm{Mode: normalizeMode(r.URL.Query().Get("mode"))}, "", "")
}

func (h *handlers) renderLogin(w http.ResponseWriter, r *http.Request, status int, f loginForm, errMsg, msg string) {
	h.render(w, r, status, pages.Login, pages.View{
		Title: "Log in",
		Path:  r.URL.Path,
		Props: map[string]any{
			"Mode":    f.Mode,
			"Email":   f.Email,
			"Error":   errMsg,
			"Message": msg,
		},
	})
}

func (h *handlers) loginSubmit(w http.ResponseWriter, r *http.Request) {
	f, err := parseLoginForm(r)
	if err != nil {
		h.renderLogin(w, r, http.StatusBadRequest, loginForm{Mode: modeLogin}, msgFallback, "")
		return
	}
	if problem := f.check(); problem != "" {
		h.renderLogin(w, r, http.StatusUnprocessableEntity, f, problem, "")
		return
	}

	client := h.identityFor(w, r)
	if f.Mode == modeLogin {
		_, err := client.SignInWithPassword(r.Context(), f.Email, f.Password)
		h.auditReq(r, f.Email, audit.ActionSignIn, err)
		if err != nil {
			h.requestLogger(r).Info("sign in failed", "error", err)
			h.renderLogin(w, r, http.StatusUnprocessableEntity, f, identity.Message(err, msgFallback), "")
			return
		}
		redirect(w, r, afterSignIn, false)
		return
	}

	sess, err := client.SignUp(r.Context(), f.Email, f.Password)
	h.auditReq(r, f.Email, audit.ActionSignUp, err)
	if err != nil {
		h.requestLogger(r).Info("sign up failed", "error", err)
		h.renderLogin(w, r, http.StatusUnprocessableEntity, f, identity.Message(err, msgFallback), "")
		return
	}
	if sess == nil {
		h.renderLogin(w, r, http.StatusOK, f, "", msgCheckEmail)
		return
	}
	redirect(w, r, afterSignIn, false)
}

func (h *handlers) oauthStart(w http.ResponseWriter, r *http.Request) {
	redirectTo := h.origin(r) + callbackPath + "?next=" + defaultNext
	authURL, err := h.identityFor(w, r).SignInWithOAuth(h.OAuthProvider, redirectTo)
	h.auditReq(r, "", audit.ActionOAuthStart, err)
	if err != nil {
		h.requestLogger(r).Warn("oauth start failed", "provider", h.OAuthProvider, "error", err)
		h.renderLogin(w, r, http.StatusBadGateway, loginForm{Mode: modeLogin}, identity.Message(err, msgFallback), "")
		return
	}
	http.Redirect(w, r, authURL, http.StatusSeeOther)
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	err := h.identityFor(w, r).SignOut(r.Context())
	h.auditReq(r, "", audit.ActionSignOut, err)
	if err != nil {
		h.requestLogger(r).Warn("sign out failed", "error", err)
	}
	redirect(w, r, "/login", false)
}

// callback completes the OAuth redirect. Success lands on next when it is a
// local path; any failure lands on the auth error page.
func (h *handlers) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	next := q.Get("next")
	if next == "" {
		next = defaultNext
	}

	if code != "" {
		_, err := h.identityFor(w, r).ExchangeCodeForSession(r.Context(), code)
		h.auditReq(r, "", audit.ActionCallback, err)
		if err == nil {
			redirect(w, r, safeNext(next), false)
			return
		}
		h.requestLogger(r).Info("oauth code exchange failed", "error", err)
	}
	redirect(w, r, authCodeErrorURL, false)
}

// safeNext keeps next only if it is a path on this origin. Protocol-relative
// forms such as //evil.example and /\evil.example are rejected, as is any
// control character: browsers drop tabs and newlines while parsing, so
// "/\t/evil.example" would otherwise become "//evil.example".
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, `/\`) {
		return defaultNext
	}
	if strings.IndexFunc(next, isControl) >= 0 {
		return defaultNext
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return defaultNext
	}
	return next
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f
}

func (h *handlers) origin(r *http.Request) string {
	if h.PublicURL != "" {
		return strings.TrimRight(h.PublicURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); proto == "https" || proto == "http" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}
