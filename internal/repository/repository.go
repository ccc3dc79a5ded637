// Package repository declares the data interfaces the service layer depends on.
//
// Two very different backends hide behind them:
//   - BookRepository is the remote book service, reached over HTTP
//     (see repository/httpapi). It is read-mostly and owned by someone else.
//   - SessionRepository holds the UI state of each browser session
//     (see repository/memory, repository/sqlite, repository/redisstore).
//
// The service never imports a concrete backend; main wires one in.
package repository

import (
	"context"
	"time"

	"github.com/sakif/bookshelf/internal/model"
)

// BookRepository is the data access layer for the remote book service.
//
// Each method issues exactly one request and performs no retries. Any
// network failure, non-2xx response or undecodable body is returned as an
// *apperror.FetchError.
type BookRepository interface {
	ListUsers(ctx context.Context) ([]model.User, error)
	ListCatalog(ctx context.Context) ([]model.Book, error)
	GetRecommendations(ctx context.Context, userID int64) (*model.RecommendationResult, error)
	GetBook(ctx context.Context, bookID int64) (*model.Book, error)
	GetSimilar(ctx context.Context, bookID int64) (*model.SimilarityResult, error)
	RateBook(ctx context.Context, userID, bookID int64, rating int) error
}

// MutateFunc changes a session in place. Returning an error aborts the
// update and leaves the stored session untouched.
type MutateFunc func(s *model.Session) error

// SessionRepository stores per-browser UI state.
//
// Update is the only way to change a stored session: it loads the latest
// version, applies fn and writes the result back as one atomic step per
// session, so two requests for the same session never lose each other's
// writes. Get returns a snapshot the caller may freely modify.
type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	Get(ctx context.Context, id string) (*model.Session, error)
	Update(ctx context.Context, id string, fn MutateFunc) (*model.Session, error)
	Delete(ctx context.Context, id string) error
	// Sweep removes sessions last updated before idleBefore and reports how
	// many were removed.
	Sweep(ctx context.Context, idleBefore time.Time) (int, error)
}
