package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"freightflow/portal/internal/directory"
	"freightflow/portal/internal/gate"
	"freightflow/portal/internal/pages"
)

// gated serves a page whose loader only runs for an authenticated caller.
// An empty tmpl means the loader always ends in a redirect.
func (h *handlers) gated(name, tmpl, title string, load gate.Loader) http.HandlerFunc {
	loader := gate.Chain(load, gate.Observe(name, h.Metrics), gate.WithAuth)
	return func(w http.ResponseWriter, r *http.Request) {
		req := &gate.Request{
			HTTP:     r,
			Params:   routeParams(r),
			Identity: h.identityFor(w, r),
			Logger:   h.requestLogger(r),
		}
		h.respond(w, r, tmpl, title, loader(r.Context(), req))
	}
}

func (h *handlers) respond(w http.ResponseWriter, r *http.Request, tmpl, title string, res gate.Result) {
	switch {
	case res.Err != nil:
		h.requestLogger(r).Error("page loader failed", "path", r.URL.Path, "error", res.Err)
		writeText(w, http.StatusInternalServerError, "Internal server error")
	case res.Redirect != nil:
		redirect(w, r, res.Redirect.Destination, res.Redirect.Permanent)
	case res.NotFound || tmpl == "":
		h.notFound(w, r)
	default:
		h.render(w, r, http.StatusOK, tmpl, pages.View{
			Title: title,
			Path:  r.URL.Path,
			User:  res.User(),
			Props: res.Props,
		})
	}
}

func (h *handlers) render(w http.ResponseWriter, r *http.Request, status int, tmpl string, v pages.View) {
	if h.Pages == nil {
		writeText(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if err := h.Pages.Render(w, status, tmpl, v); err != nil {
		h.requestLogger(r).Error("render page", "page", tmpl, "error", err)
		writeText(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *handlers) notFound(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusNotFound, pages.NotFound, pages.View{Title: "Not found", Path: r.URL.Path})
}

func (h *handlers) authCodeError(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, pages.AuthError, pages.View{Title: "Sign-in failed", Path: r.URL.Path})
}

func routeParams(r *http.Request) map[string]string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return nil
	}
	out := make(map[string]string, len(rctx.URLParams.Keys))
	for i, k := range rctx.URLParams.Keys {
		out[k] = rctx.URLParams.Values[i]
	}
	return out
}

func (h *handlers) loadAccounts(ctx context.Context, _ *gate.Request) gate.Result {
	accounts, err := h.Directory.ListAccounts(ctx)
	if err != nil {
		return gate.Fail(fmt.Errorf("list accounts: %w", err))
	}
	shippers, vendors := directory.ByRole(accounts)
	return gate.Props(map[string]any{"shippers": shippers, "vendors": vendors})
}

func (h *handlers) loadAccount(ctx context.Context, req *gate.Request) gate.Result {
	id := req.Param("clientId")
	account, err := h.Directory.GetAccount(ctx, id)
	if errors.Is(err, directory.ErrNotFound) {
		return gate.NotFound()
	}
	if err != nil {
		return gate.Fail(fmt.Errorf("get account %s: %w", id, err))
	}
	messages, err := h.Directory.ListMessages(ctx, id)
	if err != nil {
		return gate.Fail(fmt.Errorf("list messages for %s: %w", id, err))
	}
	return gate.Props(map[string]any{"account": account, "messages": messages})
}

// postMessage appends the signed-in user's message and sends the browser
// back to the thread. Blank messages are ignored.
func (h *handlers) postMessage(ctx context.Context, req *gate.Request) gate.Result {
	id := req.Param("clientId")
	if err := req.HTTP.ParseForm(); err != nil {
		return gate.RedirectTo("/accounts/" + url.PathEscape(id))
	}
	_, err := h.Directory.AppendMessage(ctx, id, directory.SenderUser, req.HTTP.PostForm.Get("text"))
	switch {
	case errors.Is(err, directory.ErrNotFound):
		return gate.NotFound()
	case errors.Is(err, directory.ErrEmptyMessage), err == nil:
		return gate.RedirectTo("/accounts/" + url.PathEscape(id))
	default:
		return gate.Fail(fmt.Errorf("append message for %s: %w", id, err))
	}
}

func (h *handlers) loadDocuments(context.Context, *gate.Request) gate.Result {
	if h.Documents == nil {
		return gate.Props(map[string]any{"files": []string{}})
	}
	files, err := h.Documents.List()
	if err != nil {
		return gate.Fail(err)
	}
	return gate.Props(map[string]any{"files": files})
}
