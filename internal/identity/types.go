package identity

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	AccessTokenCookie  = "ff-access-token"
	RefreshTokenCookie = "ff-refresh-token"
	CodeVerifierCookie = "ff-code-verifier"
)

var (
	// ErrNoSession is returned when an operation needs a session and the
	// request carries none.
	ErrNoSession = errors.New("auth session missing")

	// ErrMissingVerifier is returned when a code exchange has no PKCE
	// verifier cookie to pair with the code.
	ErrMissingVerifier = errors.New("code verifier not found in storage")
)

type User struct {
	ID               string         `json:"id"`
	Aud              string         `json:"aud,omitempty"`
	Role             string         `json:"role,omitempty"`
	Email            string         `json:"email"`
	Phone            string         `json:"phone,omitempty"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	LastSignInAt     *time.Time     `json:"last_sign_in_at,omitempty"`
	AppMetadata      map[string]any `json:"app_metadata,omitempty"`
	UserMetadata     map[string]any `json:"user_metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    time.Time `json:"-"`
	User         *User     `json:"user,omitempty"`
}

// Expired reports whether the access token is past its expiry. A zero
// ExpiresAt means the expiry is unknown and the session is treated as live.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Outcome is the result of validating the current request's session.
// It is either authenticated (User set, Err nil) or not; there is no
// partial state.
type Outcome struct {
	User *User
	Err  error
}

func (o Outcome) Authenticated() bool {
	return o.Err == nil && o.User != nil
}

func authenticated(u *User) Outcome {
	if u == nil || u.ID == "" {
		return Outcome{Err: ErrNoSession}
	}
	return Outcome{User: u}
}

func unauthenticated(err error) Outcome {
	if err == nil {
		err = ErrNoSession
	}
	return Outcome{Err: err}
}

// Error is a failure reported by the identity service. Message carries the
// service's own text so it can be shown to the user unchanged.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("identity: %s (status %d, code %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("identity: %s (status %d)", e.Message, e.Status)
}

// Unauthorized reports whether the service rejected the credential itself,
// as opposed to failing for transport or server reasons.
func (e *Error) Unauthorized() bool {
	switch e.Status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

// Message extracts the user-facing text from err. Identity errors yield the
// service message verbatim; anything else yields fallback.
func Message(err error, fallback string) string {
	var ie *Error
	if errors.As(err, &ie) && ie.Message != "" {
		return ie.Message
	}
	if errors.Is(err, ErrMissingVerifier) {
		return ErrMissingVerifier.Error()
	}
	return fallback
}
