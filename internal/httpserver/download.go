package httpserver

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"freightflow/portal/internal/documents"
)

// download streams a PDF from the documents directory as an attachment.
func (h *handlers) download(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "filename"))
	if err != nil {
		writeText(w, http.StatusBadRequest, "Bad path")
		return
	}
	if h.Documents == nil {
		writeText(w, http.StatusNotFound, "Not found")
		return
	}

	f, err := h.Documents.Open(name)
	switch {
	case errors.Is(err, documents.ErrInvalidName):
		writeText(w, http.StatusBadRequest, "Invalid filename")
		return
	case errors.Is(err, documents.ErrBadPath):
		h.requestLogger(r).Warn("download path rejected", "filename", name, "client_ip", clientIP(r))
		writeText(w, http.StatusBadRequest, "Bad path")
		return
	case errors.Is(err, documents.ErrNotFound):
		writeText(w, http.StatusNotFound, "Not found")
		return
	case err != nil:
		h.requestLogger(r).Error("open document", "filename", name, "error", err)
		writeText(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.Name}))
	w.Header().Set("Content-Length", strconv.FormatInt(f.Size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		h.requestLogger(r).Warn("stream document", "filename", name, "error", err)
	}
}
