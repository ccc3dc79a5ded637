// Package httpapi implements repository.BookRepository against the remote
// book service's JSON API.
//
// ENDPOINTS:
//
//	GET  /api/users                       → []User
//	GET  /api/books                       → []Book
//	GET  /api/users/{id}/recommendations  → {"recommendations": []Book}
//	GET  /api/books/{id}                  → Book
//	GET  /api/similar/{id}                → {"similar_books": []SimilarBook}
//	POST /api/users/{id}/rate             ← {"book_id": n, "rating": 1..5}
//
// Every call is a single request. There are no retries and no status-code
// special cases: 2xx with a decodable body is success, anything else is an
// *apperror.FetchError tagged with the operation name.
package httpapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/sakif/bookshelf/internal/apperror"
	"github.com/sakif/bookshelf/internal/metrics"
	"github.com/sakif/bookshelf/internal/model"
	"github.com/sakif/bookshelf/internal/repository"
)

// Operation names used to tag FetchErrors, metrics and log lines.
const (
	OpListUsers          = "listUsers"
	OpListCatalog        = "listCatalog"
	OpGetRecommendations = "getRecommendations"
	OpGetBook            = "getBook"
	OpGetSimilar         = "getSimilar"
	OpRateBook           = "rateBook"
)

var _ repository.BookRepository = (*Client)(nil)

// Client talks to the remote book service.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a Client for the service rooted at baseURL
// (e.g. "http://localhost:5000"). A zero timeout means requests may take
// as long as the service needs.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("httpapi: parsing base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("httpapi: base URL %q must be http or https", baseURL)
	}

	return &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// ListUsers returns every user profile.
func (c *Client) ListUsers(ctx context.Context) ([]model.User, error) {
	var payload []userPayload
	if err := c.getJSON(ctx, OpListUsers, "/api/users", &payload); err != nil {
		return nil, err
	}

	users := make([]model.User, 0, len(payload))
	for i, p := range payload {
		u, err := p.toModel()
		if err != nil {
			return nil, apperror.Fetch(OpListUsers, fmt.Errorf("user %d: %w", i, err))
		}
		users = append(users, u)
	}
	return users, nil
}

// ListCatalog returns the full catalog.
func (c *Client) ListCatalog(ctx context.Context) ([]model.Book, error) {
	var payload []bookPayload
	if err := c.getJSON(ctx, OpListCatalog, "/api/books", &payload); err != nil {
		return nil, err
	}

	books, err := booksToModel(payload)
	if err != nil {
		return nil, apperror.Fetch(OpListCatalog, err)
	}
	return books, nil
}

// GetRecommendations returns personalised recommendations for userID.
func (c *Client) GetRecommendations(ctx context.Context, userID int64) (*model.RecommendationResult, error) {
	var payload recommendationsPayload
	path := fmt.Sprintf("/api/users/%d/recommendations", userID)
	if err := c.getJSON(ctx, OpGetRecommendations, path, &payload); err != nil {
		return nil, err
	}

	books, err := booksToModel(payload.Recommendations)
	if err != nil {
		return nil, apperror.Fetch(OpGetRecommendations, err)
	}
	return &model.RecommendationResult{Recommendations: books}, nil
}

// GetBook returns a single book.
func (c *Client) GetBook(ctx context.Context, bookID int64) (*model.Book, error) {
	var payload bookPayload
	if err := c.getJSON(ctx, OpGetBook, fmt.Sprintf("/api/books/%d", bookID), &payload); err != nil {
		return nil, err
	}

	book, err := payload.toModel()
	if err != nil {
		return nil, apperror.Fetch(OpGetBook, err)
	}
	return &book, nil
}

// GetSimilar returns the books the service considers close to bookID.
func (c *Client) GetSimilar(ctx context.Context, bookID int64) (*model.SimilarityResult, error) {
	var payload similarPayload
	if err := c.getJSON(ctx, OpGetSimilar, fmt.Sprintf("/api/similar/%d", bookID), &payload); err != nil {
		return nil, err
	}

	similar := make([]model.SimilarBook, 0, len(payload.SimilarBooks))
	for i, p := range payload.SimilarBooks {
		sb, err := p.toModel()
		if err != nil {
			return nil, apperror.Fetch(OpGetSimilar, fmt.Errorf("similar book %d: %w", i, err))
		}
		similar = append(similar, sb)
	}
	return &model.SimilarityResult{SimilarBooks: similar}, nil
}

// RateBook records userID's rating (1-5) of bookID.
func (c *Client) RateBook(ctx context.Context, userID, bookID int64, rating int) error {
	body, err := json.Marshal(ratePayload{BookID: bookID, Rating: rating})
	if err != nil {
		return apperror.Fetch(OpRateBook, fmt.Errorf("encoding request: %w", err))
	}

	path := fmt.Sprintf("/api/users/%d/rate", userID)
	return c.do(ctx, OpRateBook, http.MethodPost, path, bytes.NewReader(body), nil)
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	return c.do(ctx, op, http.MethodGet, path, nil, out)
}

// do issues one request and, if out is non-nil, decodes the 2xx body into it.
func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, out any) (err error) {
	start := time.Now()
	status := 0
	defer func() {
		outcome := metrics.OutcomeSuccess
		if err != nil {
			outcome = metrics.OutcomeError
		}
		metrics.UpstreamRequests.WithLabelValues(op, outcome).Inc()
		metrics.UpstreamDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

		c.logger.Debug("upstream request",
			slog.String("operation", op),
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
			slog.Bool("ok", err == nil),
		)
	}()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apperror.Fetch(op, fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperror.Fetch(op, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return apperror.Fetch(op, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperror.Fetch(op, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}
