// Package gate wraps page loaders so they only run for an authenticated
// caller.
package gate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"freightflow/portal/internal/identity"
)

// LoginPath is where unauthenticated callers are sent.
const LoginPath = "/login"

// UserKey is the props key the gate fills with the resolved user.
const UserKey = "user"

// Identity is the slice of the identity client the gate needs.
type Identity interface {
	GetUser(ctx context.Context) identity.Outcome
}

// Request is what a loader sees: the inbound HTTP request, route params and
// the request-scoped identity client.
type Request struct {
	HTTP     *http.Request
	Params   map[string]string
	Identity Identity
	Logger   *slog.Logger
}

func (r *Request) Param(name string) string {
	if r == nil || r.Params == nil {
		return ""
	}
	return r.Params[name]
}

func (r *Request) logger() *slog.Logger {
	if r != nil && r.Logger != nil {
		return r.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type Redirect struct {
	Destination string
	Permanent   bool
}

// Result is one of: props to render, a redirect, not found, or a loader
// failure. Only the props form carries props.
type Result struct {
	Props    map[string]any
	Redirect *Redirect
	NotFound bool
	Err      error

	// unauthenticated marks the redirect WithAuth issues itself, as opposed
	// to a loader that happens to redirect to LoginPath.
	unauthenticated bool
}

// User returns the authenticated user placed in props by WithAuth.
func (r Result) User() *identity.User {
	u, _ := r.Props[UserKey].(*identity.User)
	return u
}

func Props(p map[string]any) Result {
	if p == nil {
		p = map[string]any{}
	}
	return Result{Props: p}
}

func RedirectTo(dest string) Result {
	return Result{Redirect: &Redirect{Destination: dest}}
}

func loginRedirect() Result {
	res := RedirectTo(LoginPath)
	res.unauthenticated = true
	return res
}

func NotFound() Result {
	return Result{NotFound: true}
}

func Fail(err error) Result {
	return Result{Err: err}
}

type Loader func(ctx context.Context, req *Request) Result

// WithAuth returns a loader that validates the session before running load.
// Unauthenticated callers get a temporary redirect to LoginPath and load is
// never called. Authenticated callers get load's result with the user merged
// into props under UserKey, after the loader's own keys. Redirect and not
// found results from load pass through untouched, as do failures. A nil load behaves as a
// loader returning empty props.
func WithAuth(load Loader) Loader {
	return func(ctx context.Context, req *Request) Result {
		if req == nil || req.Identity == nil {
			return loginRedirect()
		}
		out := req.Identity.GetUser(ctx)
		if !out.Authenticated() {
			if out.Err != nil && !errors.Is(out.Err, identity.ErrNoSession) {
				req.logger().Debug("auth gate rejected request", "error", out.Err)
			}
			return loginRedirect()
		}

		var res Result
		if load == nil {
			res = Props(nil)
		} else {
			res = load(ctx, req)
		}
		if res.Redirect != nil || res.NotFound || res.Err != nil {
			return res
		}

		merged := make(map[string]any, len(res.Props)+1)
		for k, v := range res.Props {
			merged[k] = v
		}
		merged[UserKey] = out.User
		return Result{Props: merged}
	}
}

// Wrapper decorates a loader.
type Wrapper func(Loader) Loader

// Chain applies wrappers to load so that the first wrapper is outermost.
func Chain(load Loader, wrappers ...Wrapper) Loader {
	for i := len(wrappers) - 1; i >= 0; i-- {
		load = wrappers[i](load)
	}
	return load
}
