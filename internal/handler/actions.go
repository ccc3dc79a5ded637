package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/bookshelf/internal/apperror"
	"github.com/sakif/bookshelf/internal/auth"
)

// RecommendationsAnchor is where the page scrolls after recommendations load.
const RecommendationsAnchor = "/#recommendations-section"

// ActionHandler turns form posts into BrowseService actions.
//
// Every action runs on a context detached from the request: once the
// browser has asked for something, the fetch runs to completion even if
// the browser navigates away, and its result lands in the session.
type ActionHandler struct {
	browser Browser
	logger  *slog.Logger
}

func NewActionHandler(browser Browser, logger *slog.Logger) *ActionHandler {
	return &ActionHandler{browser: browser, logger: logger}
}

// HandleSelectUser records the profile picked in the selector.
//
// HTTP: POST /session/user  (form: user_id, empty to clear)
func (h *ActionHandler) HandleSelectUser(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "/", func(ctx context.Context, sid string) error {
		return h.browser.SelectUser(ctx, sid, r.PostFormValue("user_id"))
	})
}

// HandleRecommendations loads recommendations for the selected user.
//
// HTTP: POST /recommendations
func (h *ActionHandler) HandleRecommendations(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}

	loaded, err := h.browser.RequestRecommendations(context.WithoutCancel(r.Context()), sid)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	target := "/"
	if loaded {
		target = RecommendationsAnchor
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// HandleOpenDetail opens the detail modal for a book card.
//
// HTTP: POST /modal/open/{id}
func (h *ActionHandler) HandleOpenDetail(w http.ResponseWriter, r *http.Request) {
	id, err := bookIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	h.run(w, r, "/", func(ctx context.Context, sid string) error {
		return h.browser.OpenDetail(ctx, sid, id)
	})
}

// HandleOpenSimilar switches the open modal to a similar book.
//
// HTTP: POST /modal/similar/{id}
func (h *ActionHandler) HandleOpenSimilar(w http.ResponseWriter, r *http.Request) {
	id, err := bookIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	h.run(w, r, "/", func(ctx context.Context, sid string) error {
		return h.browser.OpenSimilar(ctx, sid, id)
	})
}

// HandleCloseModal dismisses the modal, from the close button or the backdrop.
//
// HTTP: POST /modal/close
func (h *ActionHandler) HandleCloseModal(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "/", func(ctx context.Context, sid string) error {
		return h.browser.CloseModal(ctx, sid)
	})
}

// HandleRateBook submits the selected user's rating for a book.
//
// HTTP: POST /books/{id}/rate  (form: rating, 1-5)
func (h *ActionHandler) HandleRateBook(w http.ResponseWriter, r *http.Request) {
	id, err := bookIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rating, err := strconv.Atoi(strings.TrimSpace(r.PostFormValue("rating")))
	if err != nil {
		writeError(w, apperror.ValidationFailed("rating", "rating must be an integer"))
		return
	}
	h.run(w, r, "/", func(ctx context.Context, sid string) error {
		return h.browser.RateBook(ctx, sid, id, rating)
	})
}

// run resolves the session, runs action and redirects to target.
func (h *ActionHandler) run(w http.ResponseWriter, r *http.Request, target string, action func(ctx context.Context, sid string) error) {
	sid, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := action(context.WithoutCancel(r.Context()), sid); err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *ActionHandler) session(w http.ResponseWriter, r *http.Request) (string, bool) {
	sid, ok := auth.SessionIDFromContext(r.Context())
	if !ok {
		writeError(w, errors.New("request reached an action without a session"))
	}
	return sid, ok
}

// fail answers an action error. A session that no longer exists (it went
// idle and was swept, or the cookie is new) sends the browser back to the
// page, which bootstraps a fresh one. Anything else is written as JSON.
func (h *ActionHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, apperror.ErrNotFound) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if !errors.Is(err, apperror.ErrValidation) {
		h.logger.Error("action failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeError(w, err)
}

func bookIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, apperror.ValidationFailed("id", "book id must be a non-negative integer")
	}
	return id, nil
}
