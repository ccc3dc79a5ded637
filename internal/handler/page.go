package handler

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/sakif/bookshelf/internal/apperror"
	"github.com/sakif/bookshelf/internal/auth"
	"github.com/sakif/bookshelf/internal/service"
)

// PageHandler serves the single page of the client.
// Templates are parsed once at startup.
type PageHandler struct {
	templates *template.Template
	browser   Browser
	logger    *slog.Logger
}

// pageData is what base.html and index.html are executed with.
type pageData struct {
	Title string
	*service.Page
}

// NewPageHandler parses base.html and index.html from templateDir.
// base.html lays out the document and pulls in the "content" block that
// index.html defines.
func NewPageHandler(templateDir string, browser Browser, logger *slog.Logger) (*PageHandler, error) {
	tmpl, err := template.ParseFiles(
		filepath.Join(templateDir, "base.html"),
		filepath.Join(templateDir, "index.html"),
	)
	if err != nil {
		return nil, err
	}

	return &PageHandler{
		templates: tmpl,
		browser:   browser,
		logger:    logger,
	}, nil
}

// HandleIndex renders the page for the caller's session.
//
// HTTP: GET /
//
// The first view of a session bootstraps it: users and catalog are loaded
// before the page is drawn, so the initial response already holds them.
func (h *PageHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	sid, ok := auth.SessionIDFromContext(r.Context())
	if !ok {
		writeError(w, errors.New("request reached the page without a session"))
		return
	}
	ctx := context.WithoutCancel(r.Context())

	page, err := h.browser.View(ctx, sid)
	if errors.Is(err, apperror.ErrNotFound) {
		if err = h.browser.Bootstrap(ctx, sid); err == nil {
			page, err = h.browser.View(ctx, sid)
		}
	}
	if err != nil {
		h.logger.Error("failed to build page",
			slog.String("session", sid),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	// The page reflects per-session state; never let a cache replay it.
	w.Header().Set("Cache-Control", "no-store")

	data := pageData{Title: "Book Recommendations", Page: page}
	if err := h.templates.ExecuteTemplate(w, "base", data); err != nil {
		h.logger.Error("failed to render template",
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
