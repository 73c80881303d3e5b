// Package pages renders the portal's HTML views from embedded templates.
package pages

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"strings"
	"time"

	"freightflow/portal/internal/identity"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

const (
	Login     = "login"
	Home      = "home"
	Settings  = "settings"
	Accounts  = "accounts"
	Account   = "account"
	Documents = "documents"
	AuthError = "auth_error"
	NotFound  = "not_found"
)

// Pages without the signed-in chrome.
var bare = map[string]bool{Login: true, AuthError: true}

// View is the data every template receives.
type View struct {
	Title string
	Path  string
	User  *identity.User
	Props map[string]any
}

type Renderer struct {
	pages map[string]*template.Template
}

func New() (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template)}
	for _, name := range []string{Login, Home, Settings, Accounts, Account, Documents, AuthError, NotFound} {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render executes page into a buffer first so a template error never leaves
// a half-written response.
func (r *Renderer) Render(w http.ResponseWriter, status int, page string, v View) error {
	t, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}
	root := "layout"
	if bare[page] {
		root = "bare"
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, root, v); err != nil {
		return fmt.Errorf("render %s: %w", page, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// Static serves the embedded assets; mount it under /static/.
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}

// Favicon serves the site icon.
func Favicon() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, err := staticFS.ReadFile("static/favicon.svg")
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		_, _ = w.Write(b)
	})
}

var funcs = template.FuncMap{
	"hasPrefix":  strings.HasPrefix,
	"pathEscape": url.PathEscape,
	"roleLabel": func(role any) string {
		s := fmt.Sprint(role)
		if s == "" {
			return ""
		}
		return strings.ToUpper(s[:1]) + s[1:]
	},
	"fmtTime": func(t time.Time) string {
		return t.UTC().Format("Jan 2, 2006 3:04 PM UTC")
	},
	"isoTime": func(t time.Time) string {
		return t.UTC().Format(time.RFC3339)
	},
	"section": func(title string, items any) map[string]any {
		return map[string]any{"Title": title, "Items": items}
	},
}
