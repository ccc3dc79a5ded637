// Package service holds the interaction logic of the web client: what each
// user action does to the session state.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses form posts, redirects, renders the page
//	Service (this package)   → runs one user action against one session
//	Repository (data layer)  → the remote book service and the session store
//
// BrowseService takes both repositories as interfaces, so tests drive it
// with in-memory fakes and main decides which session backend to use.
//
// THE MODAL STATE MACHINE:
//
//	Closed --OpenDetail ok--> Open(book, similar)
//	Open   --CloseModal-----> Closed
//	Open   --OpenSimilar----> Closed --settle--> OpenDetail(similar id)
//	any    --OpenDetail fails--> unchanged
//
// Network calls are never made while the session is locked. Each action
// fetches first and then folds the result into the latest session state
// with SessionRepository.Update. Two overlapping OpenDetail calls therefore
// both commit, in the order they resolve.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/bookshelf/internal/apperror"
	"github.com/sakif/bookshelf/internal/metrics"
	"github.com/sakif/bookshelf/internal/model"
	"github.com/sakif/bookshelf/internal/render"
	"github.com/sakif/bookshelf/internal/repository"
)

// Top-level operations. Fetch failures are re-tagged with the one that
// caught them, so logs and notices name the user action, not the request.
const (
	OpLoadUsers           = "loadUsers"
	OpLoadAllBooks        = "loadAllBooks"
	OpLoadRecommendations = "loadRecommendations"
	OpShowBookDetails     = "showBookDetails"
	OpRateBook            = "rateBook"
)

// Notice texts shown to the user.
const (
	MsgLoadUsersFailed           = "Failed to load users"
	MsgLoadBooksFailed           = "Failed to load books"
	MsgLoadRecommendationsFailed = "Failed to load recommendations"
	MsgBookDetailsFailed         = "Failed to load book details"
	MsgRateFailed                = "Failed to save rating"
	MsgRateSaved                 = "Rating saved"
)

const (
	MinRating = 1
	MaxRating = 5
)

var failureMessages = map[string]string{
	OpLoadUsers:           MsgLoadUsersFailed,
	OpLoadAllBooks:        MsgLoadBooksFailed,
	OpLoadRecommendations: MsgLoadRecommendationsFailed,
	OpShowBookDetails:     MsgBookDetailsFailed,
	OpRateBook:            MsgRateFailed,
}

// BrowseService runs user actions against browser sessions.
type BrowseService struct {
	books    repository.BookRepository
	sessions repository.SessionRepository
	settler  Settler
	links    render.Links
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a BrowseService.
type Option func(*BrowseService)

// WithSettler sets the wait between the two steps of OpenSimilar.
func WithSettler(s Settler) Option {
	return func(b *BrowseService) { b.settler = s }
}

// WithLinks sets the form actions rendered into book cards and similar entries.
func WithLinks(l render.Links) Option {
	return func(b *BrowseService) { b.links = l }
}

func NewBrowseService(books repository.BookRepository, sessions repository.SessionRepository, logger *slog.Logger, opts ...Option) *BrowseService {
	s := &BrowseService{
		books:    books,
		sessions: sessions,
		settler:  Immediate(),
		links:    render.DefaultLinks(),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bootstrap creates the session and loads the user list and the catalog
// concurrently. Each load commits on its own as soon as it resolves; a
// failure in one queues a notice and leaves the other unaffected.
//
// If the session already exists (two first requests racing), Bootstrap
// leaves the loading to whichever request created it.
func (s *BrowseService) Bootstrap(ctx context.Context, sid string) error {
	if err := s.sessions.Create(ctx, model.NewSession(sid, s.now())); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil
		}
		return fmt.Errorf("creating session: %w", err)
	}
	metrics.SessionsCreated.Inc()
	s.logger.Debug("session created", slog.String("session", sid))

	// Failures are handled inside each goroutine, so the group never
	// cancels a sibling; it only joins them.
	var g errgroup.Group
	g.Go(func() error {
		users, err := s.books.ListUsers(ctx)
		if err != nil {
			s.fail(ctx, sid, OpLoadUsers, err)
			return nil
		}
		s.commit(ctx, sid, OpLoadUsers, func(sess *model.Session) error {
			sess.Users = users
			return nil
		})
		return nil
	})
	g.Go(func() error {
		catalog, err := s.books.ListCatalog(ctx)
		if err != nil {
			s.fail(ctx, sid, OpLoadAllBooks, err)
			return nil
		}
		s.commit(ctx, sid, OpLoadAllBooks, func(sess *model.Session) error {
			sess.Catalog = catalog
			return nil
		})
		return nil
	})
	return g.Wait()
}

// SelectUser records the profile chosen in the selector. An empty value
// clears the selection. Anything else must be the id of a user this
// session was offered.
func (s *BrowseService) SelectUser(ctx context.Context, sid, raw string) error {
	raw = strings.TrimSpace(raw)

	var selected *int64
	if raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return apperror.ValidationFailed("user_id", "user_id must be an integer")
		}
		selected = &id
	}

	_, err := s.sessions.Update(ctx, sid, func(sess *model.Session) error {
		if selected != nil {
			if _, ok := model.FindUser(sess.Users, *selected); !ok {
				return apperror.ValidationFailed("user_id", fmt.Sprintf("unknown user %d", *selected))
			}
		}
		sess.SelectedUserID = selected
		return nil
	})
	return err
}

// RequestRecommendations loads recommendations for the selected user and
// reveals the panel. Without a selected user it does nothing at all.
// Returns whether the panel was (re)filled.
func (s *BrowseService) RequestRecommendations(ctx context.Context, sid string) (bool, error) {
	sess, err := s.sessions.Get(ctx, sid)
	if err != nil {
		return false, err
	}
	if sess.SelectedUserID == nil {
		return false, nil
	}
	userID := *sess.SelectedUserID

	result, err := s.books.GetRecommendations(ctx, userID)
	if err != nil {
		s.fail(ctx, sid, OpLoadRecommendations, err)
		return false, nil
	}

	_, err = s.sessions.Update(ctx, sid, func(sess *model.Session) error {
		sess.Recommendations = result
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// OpenDetail fetches a book and its similar books concurrently and opens
// the modal on them. The first failure ends the join: the notice is queued
// without waiting for the other request, which still runs to completion
// and is discarded. On failure the modal keeps whatever state it had.
func (s *BrowseService) OpenDetail(ctx context.Context, sid string, bookID int64) error {
	if _, err := s.sessions.Get(ctx, sid); err != nil {
		return err
	}

	type fetched struct {
		book    *model.Book
		similar *model.SimilarityResult
		err     error
	}
	// Buffered so the slower fetch never blocks after the join has returned.
	results := make(chan fetched, 2)
	go func() {
		book, err := s.books.GetBook(ctx, bookID)
		results <- fetched{book: book, err: err}
	}()
	go func() {
		similar, err := s.books.GetSimilar(ctx, bookID)
		results <- fetched{similar: similar, err: err}
	}()

	var (
		book    *model.Book
		similar *model.SimilarityResult
	)
	for range 2 {
		r := <-results
		if r.err != nil {
			s.fail(ctx, sid, OpShowBookDetails, r.err)
			return nil
		}
		if r.book != nil {
			book = r.book
		}
		if r.similar != nil {
			similar = r.similar
		}
	}
	if book == nil || similar == nil {
		s.fail(ctx, sid, OpShowBookDetails, errors.New("empty response"))
		return nil
	}

	_, err := s.sessions.Update(ctx, sid, func(sess *model.Session) error {
		sess.Modal = model.Modal{
			State:   model.ModalOpen,
			Book:    book,
			Similar: similar.SimilarBooks,
		}
		return nil
	})
	return err
}

// CloseModal hides the modal and drops its content.
func (s *BrowseService) CloseModal(ctx context.Context, sid string) error {
	_, err := s.sessions.Update(ctx, sid, func(sess *model.Session) error {
		sess.Modal = model.Modal{State: model.ModalClosed}
		return nil
	})
	return err
}

// OpenSimilar switches the modal to one of the similar books: it commits
// the close, waits for the settler, then opens the new book.
func (s *BrowseService) OpenSimilar(ctx context.Context, sid string, bookID int64) error {
	if err := s.CloseModal(ctx, sid); err != nil {
		return err
	}
	if err := s.settler.Settle(ctx); err != nil {
		return fmt.Errorf("waiting for modal close: %w", err)
	}
	return s.OpenDetail(ctx, sid, bookID)
}

// RateBook sends the selected user's rating of bookID to the service.
func (s *BrowseService) RateBook(ctx context.Context, sid string, bookID int64, rating int) error {
	if rating < MinRating || rating > MaxRating {
		return apperror.ValidationFailed("rating", fmt.Sprintf("rating must be between %d and %d", MinRating, MaxRating))
	}

	sess, err := s.sessions.Get(ctx, sid)
	if err != nil {
		return err
	}
	if sess.SelectedUserID == nil {
		return apperror.ValidationFailed("user_id", "select a user before rating")
	}

	if err := s.books.RateBook(ctx, *sess.SelectedUserID, bookID, rating); err != nil {
		s.fail(ctx, sid, OpRateBook, err)
		return nil
	}

	s.logger.Info("rating saved",
		slog.Int64("user", *sess.SelectedUserID),
		slog.Int64("book", bookID),
		slog.Int("rating", rating),
	)
	s.notify(ctx, sid, model.Notice{Level: model.NoticeInfo, Message: MsgRateSaved})
	return nil
}

// fail reports a caught fetch failure: it is logged under the top-level
// operation and queued as an error notice. Session state is not touched
// beyond the notice.
func (s *BrowseService) fail(ctx context.Context, sid, op string, err error) {
	fe := apperror.Fetch(op, err)
	metrics.UserFailures.WithLabelValues(op).Inc()
	s.logger.Error("operation failed",
		slog.String("operation", op),
		slog.String("session", sid),
		slog.String("error", fe.Error()),
	)
	s.notify(ctx, sid, model.Notice{Level: model.NoticeError, Message: failureMessages[op]})
}

func (s *BrowseService) notify(ctx context.Context, sid string, n model.Notice) {
	s.commit(ctx, sid, "notify", func(sess *model.Session) error {
		sess.Notices = append(sess.Notices, n)
		return nil
	})
}

// commit applies fn and logs, rather than returns, a failed write. It is
// used where the caller has nowhere to report the error to.
func (s *BrowseService) commit(ctx context.Context, sid, op string, fn repository.MutateFunc) {
	if _, err := s.sessions.Update(ctx, sid, fn); err != nil {
		s.logger.Warn("session update failed",
			slog.String("operation", op),
			slog.String("session", sid),
			slog.String("error", err.Error()),
		)
	}
}
