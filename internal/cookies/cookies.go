// Package cookies relays session cookies between the HTTP transport and the
// identity client. Inbound cookies are exposed as a read-only Jar; outbound
// changes are queued as Directives on a Sink.
package cookies

import (
	"net/http"
	"strings"
)

// Options are the attributes attached to an outbound cookie.
// MaxAge follows net/http semantics on the wire: a negative value emits
// Max-Age=0, which is how cookies are cleared.
type Options struct {
	Path     string
	Domain   string
	HTTPOnly bool
	SameSite http.SameSite
	Secure   bool
	MaxAge   int
}

// Directive is one queued Set-Cookie instruction.
type Directive struct {
	Name    string
	Value   string
	Options Options
}

// Cookie converts the directive to its net/http form.
func (d Directive) Cookie() *http.Cookie {
	return &http.Cookie{
		Name:     d.Name,
		Value:    d.Value,
		Path:     d.Options.Path,
		Domain:   d.Options.Domain,
		MaxAge:   d.Options.MaxAge,
		HttpOnly: d.Options.HTTPOnly,
		Secure:   d.Options.Secure,
		SameSite: d.Options.SameSite,
	}
}

// Removal reports whether the directive clears the cookie.
func (d Directive) Removal() bool {
	return d.Options.MaxAge < 0
}

// Policy holds the defaults applied to every session cookie.
type Policy struct {
	Secure bool
	Domain string
}

// Defaults returns path=/, httpOnly, sameSite=lax and the configured
// secure/domain attributes.
func (p Policy) Defaults() Options {
	return Options{
		Path:     "/",
		Domain:   p.Domain,
		HTTPOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   p.Secure,
	}
}

// Set builds a directive that stores value under name with the policy
// defaults. maxAge of zero means a browser-session cookie.
func (p Policy) Set(name, value string, maxAge int) Directive {
	opts := p.Defaults()
	if maxAge > 0 {
		opts.MaxAge = maxAge
	}
	return Directive{Name: name, Value: value, Options: opts}
}

// Remove builds a directive that clears name.
func (p Policy) Remove(name string) Directive {
	opts := p.Defaults()
	opts.MaxAge = -1
	return Directive{Name: name, Value: "", Options: opts}
}

// Jar is a read-only view of the cookies sent with a request.
type Jar struct {
	values map[string]string
	order  []string
}

// FromRequest parses the request's Cookie header. Cookies that fail to parse
// are skipped. When a name repeats, the first occurrence wins, which matches
// how browsers order more specific paths first.
func FromRequest(r *http.Request) Jar {
	j := Jar{values: make(map[string]string)}
	if r == nil {
		return j
	}
	for _, c := range r.Cookies() {
		j.put(c.Name, c.Value)
	}
	return j
}

// FromHeader parses a raw Cookie header value.
func FromHeader(header string) Jar {
	r := &http.Request{Header: http.Header{}}
	if strings.TrimSpace(header) != "" {
		r.Header.Set("Cookie", header)
	}
	return FromRequest(r)
}

func (j *Jar) put(name, value string) {
	if name == "" {
		return
	}
	if _, ok := j.values[name]; ok {
		return
	}
	j.values[name] = value
	j.order = append(j.order, name)
}

// Get returns the value for name, or false when absent.
func (j Jar) Get(name string) (string, bool) {
	v, ok := j.values[name]
	return v, ok
}

// All returns the cookies in header order.
func (j Jar) All() []http.Cookie {
	out := make([]http.Cookie, 0, len(j.order))
	for _, name := range j.order {
		out = append(out, http.Cookie{Name: name, Value: j.values[name]})
	}
	return out
}

// With returns a copy of the jar with directives applied: set directives
// overwrite values, removals delete them. The receiver is not modified.
func (j Jar) With(directives []Directive) Jar {
	out := Jar{values: make(map[string]string, len(j.values))}
	for _, name := range j.order {
		out.put(name, j.values[name])
	}
	for _, d := range directives {
		if d.Removal() {
			if _, ok := out.values[d.Name]; ok {
				delete(out.values, d.Name)
				out.order = removeName(out.order, d.Name)
			}
			continue
		}
		if _, ok := out.values[d.Name]; !ok {
			out.order = append(out.order, d.Name)
		}
		out.values[d.Name] = d.Value
	}
	return out
}

// Header renders the jar as a Cookie request header value.
func (j Jar) Header() string {
	parts := make([]string, 0, len(j.order))
	for _, c := range j.All() {
		parts = append(parts, (&http.Cookie{Name: c.Name, Value: c.Value}).String())
	}
	return strings.Join(parts, "; ")
}

func removeName(names []string, name string) []string {
	out := names[:0:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}
