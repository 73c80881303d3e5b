package identity

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

// SignInWithOAuth returns the identity service's authorize URL for provider.
// A PKCE verifier is stored in a short-lived cookie so the callback can
// complete the exchange.
func (c *Client) SignInWithOAuth(provider, redirectTo string) (string, error) {
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return "", fmt.Errorf("oauth provider is required")
	}

	verifier := oauth2.GenerateVerifier()
	q := url.Values{
		"provider":              {provider},
		"code_challenge":        {oauth2.S256ChallengeFromVerifier(verifier)},
		"code_challenge_method": {"s256"},
	}
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}

	c.emit(c.f.policy.Set(CodeVerifierCookie, verifier, verifierMaxAge))
	return c.f.baseURL + "/auth/v1/authorize?" + q.Encode(), nil
}

// ExchangeCodeForSession completes the OAuth redirect: the code from the
// callback and the stored verifier are traded for a session.
func (c *Client) ExchangeCodeForSession(ctx context.Context, code string) (*Session, error) {
	ctx, span := c.f.tracer.Start(ctx, "identity.ExchangeCodeForSession", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	code = strings.TrimSpace(code)
	if code == "" {
		err := &Error{Status: http.StatusBadRequest, Message: "auth code is required"}
		recordSpanError(span, err)
		return nil, err
	}
	verifier, ok := c.jar.Get(CodeVerifierCookie)
	if !ok || verifier == "" {
		recordSpanError(span, ErrMissingVerifier)
		return nil, ErrMissingVerifier
	}

	sess, err := c.grant(ctx, "pkce", map[string]string{
		"auth_code":     code,
		"code_verifier": verifier,
	})
	c.emit(c.f.policy.Remove(CodeVerifierCookie))
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return sess, nil
}
