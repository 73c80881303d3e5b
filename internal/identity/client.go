// Package identity is the adapter over the remote identity service. A
// process-wide Factory holds the trust-root configuration; a Client is bound
// to one request's cookies and writes session changes to that request's
// cookie sink.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"freightflow/portal/internal/cookies"
)

const (
	tracerName = "freightflow/identity"

	// Session cookies outlive the access token; the refresh token decides
	// how long a browser stays signed in.
	sessionCookieMaxAge = 400 * 24 * 60 * 60
	verifierMaxAge      = 10 * 60
)

// CallObserver receives one observation per identity service round trip.
type CallObserver interface {
	ObserveIdentityCall(operation, outcome string, elapsed time.Duration)
}

type Config struct {
	BaseURL       string
	APIKey        string
	HTTPClient    *http.Client
	Cookies       cookies.Policy
	RefreshMargin time.Duration
	Logger        *slog.Logger
	Observer      CallObserver
}

// Factory builds request-scoped clients. It is safe for concurrent use and
// holds no per-request state.
type Factory struct {
	baseURL       string
	apiKey        string
	httpClient    *http.Client
	policy        cookies.Policy
	refreshMargin time.Duration
	log           *slog.Logger
	observer      CallObserver
	tracer        trace.Tracer
	nowFunc       func() time.Time
}

func NewFactory(cfg Config) (*Factory, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("identity base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse identity base url: %w", err)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("identity api key is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Factory{
		baseURL:       base,
		apiKey:        cfg.APIKey,
		httpClient:    httpClient,
		policy:        cfg.Cookies,
		refreshMargin: cfg.RefreshMargin,
		log:           logger,
		observer:      cfg.Observer,
		tracer:        otel.Tracer(tracerName),
		nowFunc:       time.Now,
	}, nil
}

// ForRequest binds a client to the cookies of one request. Directives the
// client produces go to sink; the client also applies them to its own view
// of the jar so later calls in the same request see the new tokens.
func (f *Factory) ForRequest(jar cookies.Jar, sink cookies.Sink) *Client {
	return &Client{f: f, jar: jar, sink: sink}
}

type Client struct {
	f    *Factory
	jar  cookies.Jar
	sink cookies.Sink
}

// GetUser validates the current session with a live round trip. An access
// token that is missing or about to expire is refreshed first when a
// refresh token is available.
func (c *Client) GetUser(ctx context.Context) Outcome {
	ctx, span := c.f.tracer.Start(ctx, "identity.GetUser", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	sess, err := c.currentSession(ctx)
	if err != nil {
		recordSpanError(span, err)
		return unauthenticated(err)
	}
	if sess == nil {
		span.SetAttributes(attribute.Bool("identity.session", false))
		return unauthenticated(ErrNoSession)
	}

	var user User
	if err := c.call(ctx, "get_user", http.MethodGet, "/auth/v1/user", nil, nil, sess.AccessToken, &user); err != nil {
		recordSpanError(span, err)
		return unauthenticated(err)
	}
	span.SetAttributes(attribute.Bool("identity.session", true))
	return authenticated(&user)
}

// GetSession returns the session carried by the request's cookies,
// refreshing it when the access token has expired. It does not contact the
// identity service otherwise, so the user on the returned session is not
// authoritative. Returns nil when there is no session.
func (c *Client) GetSession(ctx context.Context) (*Session, error) {
	ctx, span := c.f.tracer.Start(ctx, "identity.GetSession", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	sess, err := c.currentSession(ctx)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return sess, nil
}

// SignInWithPassword exchanges email and password for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	ctx, span := c.f.tracer.Start(ctx, "identity.SignInWithPassword", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	body := map[string]string{"email": email, "password": password}
	sess, err := c.grant(ctx, "password", body)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return sess, nil
}

// SignUp registers a new account. The returned session is nil when the
// service requires email confirmation before the first sign-in.
func (c *Client) SignUp(ctx context.Context, email, password string) (*Session, error) {
	ctx, span := c.f.tracer.Start(ctx, "identity.SignUp", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	var res tokenResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.call(ctx, "sign_up", http.MethodPost, "/auth/v1/signup", nil, body, "", &res); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	if res.AccessToken == "" {
		return nil, nil
	}
	sess := res.session(c.f.nowFunc())
	c.saveSession(sess)
	return sess, nil
}

// SignOut revokes the session remotely and always clears the local cookies.
// A session the service no longer knows about is not an error.
func (c *Client) SignOut(ctx context.Context) error {
	ctx, span := c.f.tracer.Start(ctx, "identity.SignOut", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	defer c.clearSession()

	access, ok := c.jar.Get(AccessTokenCookie)
	if !ok || access == "" {
		return nil
	}
	err := c.call(ctx, "sign_out", http.MethodPost, "/auth/v1/logout", nil, nil, access, nil)
	var ie *Error
	if errors.As(err, &ie) && ie.Unauthorized() {
		return nil
	}
	if err != nil {
		recordSpanError(span, err)
		return err
	}
	return nil
}

// Refresh trades the refresh token cookie for a new session.
func (c *Client) Refresh(ctx context.Context) (*Session, error) {
	ctx, span := c.f.tracer.Start(ctx, "identity.Refresh", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	sess, err := c.refresh(ctx)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return sess, nil
}

// currentSession resolves the session from cookies. The access token is
// refreshed when it is missing or expires within the refresh margin.
func (c *Client) currentSession(ctx context.Context) (*Session, error) {
	access, _ := c.jar.Get(AccessTokenCookie)
	refresh, _ := c.jar.Get(RefreshTokenCookie)
	if access == "" && refresh == "" {
		return nil, nil
	}

	now := c.f.nowFunc()
	sess := &Session{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresAt:    tokenExpiry(access),
	}

	needsRefresh := access == "" ||
		(!sess.ExpiresAt.IsZero() && !now.Add(c.f.refreshMargin).Before(sess.ExpiresAt))
	if !needsRefresh {
		return sess, nil
	}
	if refresh == "" {
		if sess.Expired(now) {
			return nil, nil
		}
		return sess, nil
	}
	return c.refresh(ctx)
}

func (c *Client) refresh(ctx context.Context) (*Session, error) {
	refresh, _ := c.jar.Get(RefreshTokenCookie)
	if refresh == "" {
		return nil, ErrNoSession
	}
	sess, err := c.grant(ctx, "refresh_token", map[string]string{"refresh_token": refresh})
	if err != nil {
		var ie *Error
		if errors.As(err, &ie) && ie.Unauthorized() {
			// The refresh token is spent or revoked; keeping it would only
			// repeat the failure on every request.
			c.clearSession()
		}
		c.f.log.Debug("identity session refresh failed", "error", err)
		return nil, err
	}
	return sess, nil
}

func (c *Client) grant(ctx context.Context, grantType string, body any) (*Session, error) {
	var res tokenResponse
	q := url.Values{"grant_type": {grantType}}
	if err := c.call(ctx, "token_"+grantType, http.MethodPost, "/auth/v1/token", q, body, "", &res); err != nil {
		return nil, err
	}
	if res.AccessToken == "" {
		return nil, &Error{Status: http.StatusBadGateway, Message: "identity service returned no session"}
	}
	sess := res.session(c.f.nowFunc())
	c.saveSession(sess)
	return sess, nil
}

func (c *Client) saveSession(s *Session) {
	c.emit(
		c.f.policy.Set(AccessTokenCookie, s.AccessToken, sessionCookieMaxAge),
		c.f.policy.Set(RefreshTokenCookie, s.RefreshToken, sessionCookieMaxAge),
	)
}

func (c *Client) clearSession() {
	var ds []cookies.Directive
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie} {
		if _, ok := c.jar.Get(name); ok {
			ds = append(ds, c.f.policy.Remove(name))
		}
	}
	c.emit(ds...)
}

func (c *Client) emit(ds ...cookies.Directive) {
	if len(ds) == 0 {
		return
	}
	c.jar = c.jar.With(ds)
	if c.sink == nil {
		return
	}
	for _, d := range ds {
		c.sink.Append(d)
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

func (r tokenResponse) session(now time.Time) *Session {
	s := &Session{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		ExpiresIn:    r.ExpiresIn,
		User:         r.User,
	}
	switch {
	case r.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(r.ExpiresAt, 0)
	case r.ExpiresIn > 0:
		s.ExpiresAt = now.Add(time.Duration(r.ExpiresIn) * time.Second)
	default:
		s.ExpiresAt = tokenExpiry(r.AccessToken)
	}
	return s
}

func (c *Client) call(ctx context.Context, op, method, path string, query url.Values, body any, bearer string, out any) (err error) {
	start := time.Now()
	defer func() {
		if c.f.observer != nil {
			c.f.observer.ObserveIdentityCall(op, callOutcome(err), time.Since(start))
		}
	}()

	endpoint := c.f.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("apikey", c.f.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer == "" {
		bearer = c.f.apiKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	res, err := c.f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity %s: %w", op, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", op, err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return decodeError(res.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

func decodeError(status int, raw []byte) error {
	var payload struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		ErrorCode        string `json:"error_code"`
	}
	_ = json.Unmarshal(raw, &payload)

	e := &Error{Status: status, Code: payload.ErrorCode}
	for _, m := range []string{payload.Msg, payload.ErrorDescription, payload.Message, payload.Error} {
		if strings.TrimSpace(m) != "" {
			e.Message = m
			break
		}
	}
	if e.Code == "" && payload.Error != "" && payload.Error != e.Message {
		e.Code = payload.Error
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

func callOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	var ie *Error
	if errors.As(err, &ie) {
		if ie.Unauthorized() {
			return "rejected"
		}
		return "error"
	}
	return "unreachable"
}

func recordSpanError(span trace.Span, err error) {
	if errors.Is(err, ErrNoSession) {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
