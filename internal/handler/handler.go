// Package handler contains the HTTP handlers of the web client.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the incoming request (path values, form fields, session id)
//  2. Call the matching BrowseService action
//  3. Write the response: the rendered page for GET /, a 303 back to the
//     page for every action (post/redirect/get)
//
// Handlers hold no state of their own and contain no interaction logic.
package handler

import (
	"context"

	"github.com/sakif/bookshelf/internal/service"
)

// Browser is the part of service.BrowseService the handlers drive.
// Tests substitute a fake.
type Browser interface {
	Bootstrap(ctx context.Context, sid string) error
	SelectUser(ctx context.Context, sid, raw string) error
	RequestRecommendations(ctx context.Context, sid string) (bool, error)
	OpenDetail(ctx context.Context, sid string, bookID int64) error
	CloseModal(ctx context.Context, sid string) error
	OpenSimilar(ctx context.Context, sid string, bookID int64) error
	RateBook(ctx context.Context, sid string, bookID int64, rating int) error
	View(ctx context.Context, sid string) (*service.Page, error)
}

var _ Browser = (*service.BrowseService)(nil)
