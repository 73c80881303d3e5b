// Package refresh keeps session cookies fresh ahead of page handlers.
package refresh

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"freightflow/portal/internal/cookies"
	"freightflow/portal/internal/identity"
)

// Matcher decides which paths skip the filter.
type Matcher struct {
	prefixes []string
	exact    []string
	pattern  *regexp.Regexp
}

var assetExt = regexp.MustCompile(`(?i)\.(svg|png|jpg|jpeg|gif|webp)$`)

// DefaultMatcher excludes static assets, the favicon and common images.
func DefaultMatcher() Matcher {
	return Matcher{
		prefixes: []string{"/static/", "/_assets/"},
		exact:    []string{"/favicon.ico"},
		pattern:  assetExt,
	}
}

// Excluded reports whether the filter should leave path alone.
func (m Matcher) Excluded(path string) bool {
	for _, p := range m.exact {
		if path == p {
			return true
		}
	}
	for _, p := range m.prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return m.pattern != nil && m.pattern.MatchString(path)
}

// Filter validates the session on every non-excluded request so an expiring
// token is refreshed before page logic runs. The outcome is discarded. Any
// cookie changes are written to the response and also applied to the Cookie
// header seen by downstream handlers, so they work with the rotated tokens
// rather than the spent ones. Identity failures never block the request.
func Filter(factory *identity.Factory, m Matcher, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if factory == nil || m.Excluded(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			jar := cookies.FromRequest(r)
			var rec cookies.Recorder
			out := factory.ForRequest(jar, &rec).GetUser(r.Context())
			if out.Err != nil && !errors.Is(out.Err, identity.ErrNoSession) {
				var ie *identity.Error
				if errors.As(out.Err, &ie) {
					logger.Debug("session not refreshed", "path", r.URL.Path, "error", out.Err)
				} else {
					logger.Warn("session refresh failed", "path", r.URL.Path, "error", out.Err)
				}
			}

			pending := rec.Directives()
			if len(pending) > 0 {
				rec.FlushTo(cookies.NewResponseSink(w))
				r = withCookies(r, jar.With(pending))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func withCookies(r *http.Request, jar cookies.Jar) *http.Request {
	clone := r.Clone(r.Context())
	if h := jar.Header(); h != "" {
		clone.Header.Set("Cookie", h)
	} else {
		clone.Header.Del("Cookie")
	}
	return clone
}
