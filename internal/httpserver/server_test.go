package httpserver

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"freightflow/portal/internal/audit"
	"freightflow/portal/internal/directory"
	"freightflow/portal/internal/documents"
	"freightflow/portal/internal/identity"
	"freightflow/portal/internal/pages"
)

const testAPIKey = "anon-key"

// fakeIdentityService answers the handful of identity endpoints the portal
// calls.
type fakeIdentityService struct {
	mu        sync.Mutex
	users     map[string]identity.User
	passwords map[string]string
	calls     map[string]int
}

func newFakeIdentityService(t *testing.T) (*fakeIdentityService, *httptest.Server) {
	t.Helper()
	f := &fakeIdentityService{
		users:     map[string]identity.User{},
		passwords: map[string]string{},
		calls:     map[string]int{},
	}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeIdentityService) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeIdentityService) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := r.URL.Path
	if gt := r.URL.Query().Get("grant_type"); gt != "" {
		key += "?" + gt
	}
	f.calls[key]++

	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)
	bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	switch key {
	case "/auth/v1/user":
		u, ok := f.users[bearer]
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"code": 401, "msg": "invalid JWT"})
			return
		}
		writeJSON(w, http.StatusOK, u)
	case "/auth/v1/token?password":
		if pw, ok := f.passwords[body["email"]]; !ok || pw != body["password"] {
			writeJSON(w, http.StatusBadRequest, map[string]any{"code": 400, "error_code": "invalid_credentials", "msg": "Invalid login credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "pw-access", "refresh_token": "pw-refresh", "expires_in": 3600})
	case "/auth/v1/token?pkce":
		if body["auth_code"] != "good-code" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"code": 400, "msg": "invalid flow state"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "pkce-access", "refresh_token": "pkce-refresh", "expires_in": 3600})
	case "/auth/v1/signup":
		writeJSON(w, http.StatusOK, map[string]string{"id": "u-new", "email": body["email"]})
	case "/auth/v1/logout":
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func signedAccess(t *testing.T, sub string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *recordingAudit) Log(e audit.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
	return nil
}

type testEnv struct {
	handler   http.Handler
	identity  *fakeIdentityService
	directory *directory.MemoryStore
	audit     *recordingAudit
	docsDir   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake, srv := newFakeIdentityService(t)
	factory, err := identity.NewFactory(identity.Config{BaseURL: srv.URL, APIKey: testAPIKey, RefreshMargin: time.Minute})
	if err != nil {
		t.Fatalf("identity factory: %v", err)
	}
	seed, err := directory.DefaultSeed()
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "rate-confirmation.pdf"), []byte("%PDF-1.4 test"), 0o644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	docs, err := documents.NewStore(dir)
	if err != nil {
		t.Fatalf("documents store: %v", err)
	}
	renderer, err := pages.New()
	if err != nil {
		t.Fatalf("pages: %v", err)
	}
	store := directory.NewMemoryStore(seed)
	rec := &recordingAudit{}
	return &testEnv{
		handler: NewHandler(Deps{
			Identity:  factory,
			Directory: store,
			Documents: docs,
			Pages:     renderer,
			Audit:     rec,
			PublicURL: "https://portal.freightflow.test",
		}),
		identity:  fake,
		directory: store,
		audit:     rec,
		docsDir:   dir,
	}
}

// signIn registers a user with the fake service and returns the cookie
// header a signed-in browser would send.
func (e *testEnv) signIn(t *testing.T, email string) string {
	t.Helper()
	access := signedAccess(t, "u-1")
	e.identity.mu.Lock()
	e.identity.users[access] = identity.User{ID: "u-1", Email: email}
	e.identity.mu.Unlock()
	return identity.AccessTokenCookie + "=" + access + "; " + identity.RefreshTokenCookie + "=r-1"
}

func (e *testEnv) do(method, target, cookie string, form url.Values) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func setCookies(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestHealthz(t *testing.T) {
	handler := NewHandler(Deps{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected X-Request-Id header to be set")
	}
}

func TestReadyzReportsDependencyFailure(t *testing.T) {
	handler := NewHandler(Deps{Ready: func(context.Context) error { return context.DeadlineExceeded }})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
}

func TestGatedPagesRedirectAnonymousToLogin(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/home", "/settings", "/accounts", "/accounts/hannah-kim", "/documents"} {
		rec := env.do(http.MethodGet, path, "", nil)
		if rec.Code != http.StatusTemporaryRedirect {
			t.Fatalf("%s: expected status 307, got %d", path, rec.Code)
		}
		if got := rec.Header().Get("Location"); got != "/login" {
			t.Fatalf("%s: expected redirect to /login, got %q", path, got)
		}
	}
	if n := env.identity.count("/auth/v1/user"); n != 0 {
		t.Fatalf("expected no identity calls without cookies, got %d", n)
	}
}

func TestGatedPageRejectsRevokedToken(t *testing.T) {
	env := newTestEnv(t)
	cookie := identity.AccessTokenCookie + "=" + signedAccess(t, "u-gone")

	rec := env.do(http.MethodGet, "/accounts", cookie, nil)

	if rec.Code != http.StatusTemporaryRedirect || rec.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestSettingsRendersSignedInUser(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t, "dispatch@freightflow.test")

	rec := env.do(http.MethodGet, "/settings", cookie, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "dispatch@freightflow.test") {
		t.Fatalf("expected page to show the user email")
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("expected Cache-Control no-store, got %q", rec.Header().Get("Cache-Control"))
	}
}

func TestAccountsListsBothRoles(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/accounts", env.signIn(t, "ops@freightflow.test"), nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"Walmart", "Best Buy", "/accounts/hannah-kim"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected accounts page to contain %q", want)
		}
	}
}

func TestAccountUnknownIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/accounts/nobody", env.signIn(t, "ops@freightflow.test"), nil)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestPostMessageAppendsAndRedirects(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t, "ops@freightflow.test")

	rec := env.do(http.MethodPost, "/accounts/hannah-kim/messages", cookie, url.Values{"text": {"  Driver ETA 20 min  "}})

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected status 303, got %d", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "/accounts/hannah-kim" {
		t.Fatalf("expected redirect to thread, got %q", got)
	}
	msgs, err := env.directory.ListMessages(context.Background(), "hannah-kim")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	last := msgs[len(msgs)-1]
	if last.Text != "Driver ETA 20 min" || last.From != directory.SenderUser {
		t.Fatalf("unexpected last message: %+v", last)
	}
}

func TestPostMessageAnonymousDoesNotWrite(t *testing.T) {
	env := newTestEnv(t)
	before, _ := env.directory.ListMessages(context.Background(), "hannah-kim")

	rec := env.do(http.MethodPost, "/accounts/hannah-kim/messages", "", url.Values{"text": {"hi"}})

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("expected 303 to /login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	after, _ := env.directory.ListMessages(context.Background(), "hannah-kim")
	if len(after) != len(before) {
		t.Fatalf("expected no message written, had %d now %d", len(before), len(after))
	}
}

func TestIndexRedirects(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/", "", nil)
	if rec.Header().Get("Location") != "/login" {
		t.Fatalf("expected anonymous / to go to /login, got %q", rec.Header().Get("Location"))
	}

	rec = env.do(http.MethodGet, "/", env.signIn(t, "ops@freightflow.test"), nil)
	if rec.Header().Get("Location") != "/settings" {
		t.Fatalf("expected signed-in / to go to /settings, got %q", rec.Header().Get("Location"))
	}
}

func TestLoginPageRenders(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/login?mode=signup", "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `name="confirm"`) {
		t.Fatalf("expected sign-up form to ask for confirmation")
	}
}

func TestLoginSuccessSetsSessionCookies(t *testing.T) {
	env := newTestEnv(t)
	env.identity.passwords["ops@freightflow.test"] = "hunter22"

	rec := env.do(http.MethodPost, "/login", "", url.Values{
		"mode": {"login"}, "email": {"ops@freightflow.test"}, "password": {"hunter22"},
	})

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/settings" {
		t.Fatalf("expected 303 to /settings, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	got := setCookies(rec)
	if got[identity.AccessTokenCookie] == nil || got[identity.AccessTokenCookie].Value != "pw-access" {
		t.Fatalf("expected access token cookie, got %+v", got)
	}
	if !got[identity.AccessTokenCookie].HttpOnly {
		t.Fatalf("expected access token cookie to be HttpOnly")
	}
	if len(env.audit.events) != 1 || env.audit.events[0].Outcome != audit.OutcomeSuccess {
		t.Fatalf("expected one successful audit event, got %+v", env.audit.events)
	}
}

func TestLoginFailureShowsServiceMessage(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/login", "", url.Values{
		"email": {"ops@freightflow.test"}, "password": {"wrong"},
	})

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid login credentials") {
		t.Fatalf("expected service message in body")
	}
	if len(setCookies(rec)) != 0 {
		t.Fatalf("expected no cookies on failure")
	}
	if len(env.audit.events) != 1 || env.audit.events[0].Outcome != audit.OutcomeFailure {
		t.Fatalf("expected one failed audit event, got %+v", env.audit.events)
	}
}

func TestSignUpPasswordMismatch(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/login", "", url.Values{
		"mode": {"signup"}, "email": {"new@freightflow.test"}, "password": {"one"}, "confirm": {"two"},
	})

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), msgPasswordMismatch) {
		t.Fatalf("expected mismatch message")
	}
	if n := env.identity.count("/auth/v1/signup"); n != 0 {
		t.Fatalf("expected no sign-up call, got %d", n)
	}
}

func TestSignUpAsksToConfirmEmail(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/login", "", url.Values{
		"mode": {"signup"}, "email": {"new@freightflow.test"}, "password": {"secret"}, "confirm": {"secret"},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), msgCheckEmail) {
		t.Fatalf("expected check-email message")
	}
}

func TestOAuthStartRedirectsToProvider(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/login/oauth", "", url.Values{})

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected status 303, got %d", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if loc.Path != "/auth/v1/authorize" || loc.Query().Get("provider") != "google" {
		t.Fatalf("unexpected authorize url %s", loc)
	}
	if got := loc.Query().Get("redirect_to"); got != "https://portal.freightflow.test/api/auth/callback?next=/home" {
		t.Fatalf("unexpected redirect_to %q", got)
	}
	if setCookies(rec)[identity.CodeVerifierCookie] == nil {
		t.Fatalf("expected code verifier cookie")
	}
}

func TestCallbackNext(t *testing.T) {
	env := newTestEnv(t)
	verifier := identity.CodeVerifierCookie + "=v-1"

	cases := []struct {
		name   string
		target string
		want   string
	}{
		{name: "default next", target: "/api/auth/callback?code=good-code", want: "/home"},
		{name: "local next", target: "/api/auth/callback?code=good-code&next=/accounts", want: "/accounts"},
		{name: "absolute next", target: "/api/auth/callback?code=good-code&next=https://evil.example/x", want: "/home"},
		{name: "protocol relative next", target: "/api/auth/callback?code=good-code&next=//evil.example", want: "/home"},
		{name: "tab smuggled next", target: "/api/auth/callback?code=good-code&next=/%09/evil.example/x", want: "/home"},
		{name: "newline smuggled next", target: "/api/auth/callback?code=good-code&next=/%0A/evil.example", want: "/home"},
		{name: "missing code", target: "/api/auth/callback?next=/accounts", want: "/auth/auth-code-error"},
		{name: "rejected code", target: "/api/auth/callback?code=bad", want: "/auth/auth-code-error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(http.MethodGet, tc.target, verifier, nil)
			if rec.Code != http.StatusTemporaryRedirect {
				t.Fatalf("expected status 307, got %d", rec.Code)
			}
			if got := rec.Header().Get("Location"); got != tc.want {
				t.Fatalf("expected redirect to %q, got %q", tc.want, got)
			}
		})
	}
}

func TestCallbackWithoutVerifierFails(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/auth/callback?code=good-code", "", nil)

	if got := rec.Header().Get("Location"); got != "/auth/auth-code-error" {
		t.Fatalf("expected auth error redirect, got %q", got)
	}
	if n := env.identity.count("/auth/v1/token?pkce"); n != 0 {
		t.Fatalf("expected no exchange without a verifier, got %d", n)
	}
}

func TestAuthCodeErrorPage(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/auth/auth-code-error", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func TestLogoutClearsCookies(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/logout", env.signIn(t, "ops@freightflow.test"), url.Values{})

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("expected 303 to /login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	got := setCookies(rec)
	for _, name := range []string{identity.AccessTokenCookie, identity.RefreshTokenCookie} {
		c := got[name]
		if c == nil || c.MaxAge >= 0 {
			t.Fatalf("expected %s to be removed, got %+v", name, c)
		}
	}
	if n := env.identity.count("/auth/v1/logout"); n != 1 {
		t.Fatalf("expected one logout call, got %d", n)
	}
}

func TestDownload(t *testing.T) {
	env := newTestEnv(t)
	if err := os.Mkdir(filepath.Join(env.docsDir, "folder.pdf"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	cases := []struct {
		name   string
		target string
		status int
		body   string
	}{
		{name: "not a pdf", target: "/api/download/notes.txt", status: http.StatusBadRequest, body: "Invalid filename"},
		{name: "traversal", target: "/api/download/..%2F..%2Fetc%2Fpasswd.pdf", status: http.StatusBadRequest, body: "Bad path"},
		{name: "missing", target: "/api/download/missing.pdf", status: http.StatusNotFound, body: "Not found"},
		{name: "directory", target: "/api/download/folder.pdf", status: http.StatusNotFound, body: "Not found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(http.MethodGet, tc.target, "", nil)
			if rec.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rec.Code)
			}
			if rec.Body.String() != tc.body {
				t.Fatalf("expected body %q, got %q", tc.body, rec.Body.String())
			}
		})
	}
}

func TestDownloadStreamsAttachment(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/download/rate-confirmation.pdf", "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("unexpected content type %q", got)
	}
	disposition, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
	if err != nil {
		t.Fatalf("parse content disposition: %v", err)
	}
	if disposition != "attachment" || params["filename"] != "rate-confirmation.pdf" {
		t.Fatalf("unexpected content disposition %q", rec.Header().Get("Content-Disposition"))
	}
	if rec.Body.String() != "%PDF-1.4 test" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestDownloadQuotesAwkwardFilename(t *testing.T) {
	env := newTestEnv(t)
	name := `say "hi".pdf`
	if err := os.WriteFile(filepath.Join(env.docsDir, name), []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}

	rec := env.do(http.MethodGet, "/api/download/"+url.PathEscape(name), "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	_, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
	if err != nil {
		t.Fatalf("parse content disposition %q: %v", rec.Header().Get("Content-Disposition"), err)
	}
	if params["filename"] != name {
		t.Fatalf("expected filename %q, got %q", name, params["filename"])
	}
}

func TestUnknownRouteRendersNotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/no/such/page", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestSafeNext(t *testing.T) {
	cases := map[string]string{
		"":                     "/home",
		"/accounts/hannah-kim": "/accounts/hannah-kim",
		"https://evil.example": "/home",
		"//evil.example":       "/home",
		`/\evil.example`:       "/home",
		"accounts":             "/home",
		"/documents?sort=name": "/documents?sort=name",
		"/\t/evil.example/x":   "/home",
		"/\n/evil.example":     "/home",
		"/\r/evil.example":     "/home",
		"/accounts\x7f":        "/home",
		"/accounts\x00":        "/home",
	}
	for in, want := range cases {
		if got := safeNext(in); got != want {
			t.Fatalf("safeNext(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRedirectStatus(t *testing.T) {
	cases := []struct {
		method    string
		permanent bool
		want      int
	}{
		{http.MethodGet, false, http.StatusTemporaryRedirect},
		{http.MethodHead, false, http.StatusTemporaryRedirect},
		{http.MethodPost, false, http.StatusSeeOther},
		{http.MethodGet, true, http.StatusPermanentRedirect},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		redirect(rec, httptest.NewRequest(tc.method, "/x", nil), "/y", tc.permanent)
		if rec.Code != tc.want {
			t.Fatalf("%s permanent=%v: expected %d, got %d", tc.method, tc.permanent, tc.want, rec.Code)
		}
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Fatalf("expected first forwarded address, got %q", got)
	}
}
