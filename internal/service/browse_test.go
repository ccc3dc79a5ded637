package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/bookshelf/internal/apperror"
	"github.com/sakif/bookshelf/internal/model"
	"github.com/sakif/bookshelf/internal/repository/memory"
)

// =========================================================================
// MOCK BOOK REPOSITORY
// =========================================================================
//
// mockBooks stands in for the remote book service. Each method counts its
// calls and fails when the matching *Err field is set. It is safe for the
// concurrent calls Bootstrap and OpenDetail make.

type rateCall struct {
	userID, bookID int64
	rating         int
}

type mockBooks struct {
	mu    sync.Mutex
	calls map[string]int

	users    []model.User
	usersErr error

	catalog    []model.Book
	catalogErr error

	recs    map[int64][]model.Book
	recsErr error

	books   map[int64]model.Book
	bookErr error
	// beforeBook, if set, runs inside GetBook before it returns.
	beforeBook func(id int64)

	similar    map[int64][]model.SimilarBook
	similarErr error

	rateErr error
	rated   []rateCall
}

func (m *mockBooks) record(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[op]++
}

func (m *mockBooks) count(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *mockBooks) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func (m *mockBooks) ListUsers(context.Context) ([]model.User, error) {
	m.record("listUsers")
	if m.usersErr != nil {
		return nil, apperror.Fetch("listUsers", m.usersErr)
	}
	return m.users, nil
}

func (m *mockBooks) ListCatalog(context.Context) ([]model.Book, error) {
	m.record("listCatalog")
	if m.catalogErr != nil {
		return nil, apperror.Fetch("listCatalog", m.catalogErr)
	}
	return m.catalog, nil
}

func (m *mockBooks) GetRecommendations(_ context.Context, userID int64) (*model.RecommendationResult, error) {
	m.record("getRecommendations")
	if m.recsErr != nil {
		return nil, apperror.Fetch("getRecommendations", m.recsErr)
	}
	return &model.RecommendationResult{Recommendations: m.recs[userID]}, nil
}

func (m *mockBooks) GetBook(_ context.Context, id int64) (*model.Book, error) {
	m.record("getBook")
	if m.beforeBook != nil {
		m.beforeBook(id)
	}
	if m.bookErr != nil {
		return nil, apperror.Fetch("getBook", m.bookErr)
	}
	b, ok := m.books[id]
	if !ok {
		return nil, apperror.Fetch("getBook", errors.New("unexpected status 404"))
	}
	return &b, nil
}

func (m *mockBooks) GetSimilar(_ context.Context, id int64) (*model.SimilarityResult, error) {
	m.record("getSimilar")
	if m.similarErr != nil {
		return nil, apperror.Fetch("getSimilar", m.similarErr)
	}
	return &model.SimilarityResult{SimilarBooks: m.similar[id]}, nil
}

func (m *mockBooks) RateBook(_ context.Context, userID, bookID int64, rating int) error {
	m.record("rateBook")
	if m.rateErr != nil {
		return apperror.Fetch("rateBook", m.rateErr)
	}
	m.mu.Lock()
	m.rated = append(m.rated, rateCall{userID, bookID, rating})
	m.mu.Unlock()
	return nil
}

// =========================================================================
// FIXTURES AND HELPERS
// =========================================================================

func ptr[T any](v T) *T { return &v }

var (
	dune     = model.Book{ID: 7, Title: "Dune", Author: "Frank Herbert", Genre: "Sci-Fi", Year: 1965, Rating: ptr(4.7)}
	hyperion = model.Book{ID: 9, Title: "Hyperion", Author: "Dan Simmons", Genre: "Sci-Fi", Year: 1989, Rating: ptr(4.2)}
)

func newFixtureBooks() *mockBooks {
	return &mockBooks{
		users:   []model.User{{ID: 1, Username: "alice"}, {ID: 2, Username: "bob"}},
		catalog: []model.Book{dune, hyperion},
		recs:    map[int64][]model.Book{1: {dune}},
		books:   map[int64]model.Book{7: dune, 9: hyperion},
		similar: map[int64][]model.SimilarBook{
			7: {{Book: hyperion, Similarity: ptr(0.87)}},
		},
	}
}

// newTestService returns a service over fake books and a real in-memory
// session store, with session "s1" already bootstrapped.
func newTestService(t *testing.T, books *mockBooks, opts ...Option) (*BrowseService, *memory.SessionStore) {
	t.Helper()
	store := memory.NewSessionStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewBrowseService(books, store, logger, opts...)
	require.NoError(t, svc.Bootstrap(context.Background(), "s1"))
	return svc, store
}

func getSession(t *testing.T, store *memory.SessionStore) *model.Session {
	t.Helper()
	sess, err := store.Get(context.Background(), "s1")
	require.NoError(t, err)
	return sess
}

func noticeMessages(notices []model.Notice) []string {
	out := make([]string, 0, len(notices))
	for _, n := range notices {
		out = append(out, n.Message)
	}
	return out
}

// =========================================================================
// BOOTSTRAP
// =========================================================================

func TestBootstrap_LoadsUsersAndCatalog(t *testing.T) {
	books := newFixtureBooks()
	_, store := newTestService(t, books)

	sess := getSession(t, store)
	assert.Len(t, sess.Users, 2)
	assert.Len(t, sess.Catalog, 2)
	assert.Nil(t, sess.SelectedUserID)
	assert.Nil(t, sess.Recommendations)
	assert.Equal(t, model.ModalClosed, sess.Modal.State)
	assert.Empty(t, sess.Notices)
	assert.Equal(t, 1, books.count("listUsers"))
	assert.Equal(t, 1, books.count("listCatalog"))
}

func TestBootstrap_PartialFailure(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(*mockBooks)
		wantUsers   int
		wantCatalog int
		wantNotices []string
	}{
		{
			name:        "users fail",
			setup:       func(m *mockBooks) { m.usersErr = errors.New("connection refused") },
			wantUsers:   0,
			wantCatalog: 2,
			wantNotices: []string{MsgLoadUsersFailed},
		},
		{
			name:        "catalog fails",
			setup:       func(m *mockBooks) { m.catalogErr = errors.New("unexpected status 500") },
			wantUsers:   2,
			wantCatalog: 0,
			wantNotices: []string{MsgLoadBooksFailed},
		},
		{
			name: "both fail",
			setup: func(m *mockBooks) {
				m.usersErr = errors.New("boom")
				m.catalogErr = errors.New("boom")
			},
			wantNotices: []string{MsgLoadBooksFailed, MsgLoadUsersFailed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			books := newFixtureBooks()
			tt.setup(books)
			_, store := newTestService(t, books)

			sess := getSession(t, store)
			assert.Len(t, sess.Users, tt.wantUsers)
			assert.Len(t, sess.Catalog, tt.wantCatalog)
			assert.ElementsMatch(t, tt.wantNotices, noticeMessages(sess.Notices))
		})
	}
}

func TestBootstrap_ExistingSessionIsNotReloaded(t *testing.T) {
	books := newFixtureBooks()
	svc, _ := newTestService(t, books)

	require.NoError(t, svc.Bootstrap(context.Background(), "s1"))
	assert.Equal(t, 1, books.count("listUsers"))
	assert.Equal(t, 1, books.count("listCatalog"))
}

// =========================================================================
// USER SELECTION AND RECOMMENDATIONS
// =========================================================================

func TestSelectUser(t *testing.T) {
	t.Run("valid id", func(t *testing.T) {
		svc, store := newTestService(t, newFixtureBooks())
		require.NoError(t, svc.SelectUser(context.Background(), "s1", " 2 "))

		sess := getSession(t, store)
		require.NotNil(t, sess.SelectedUserID)
		assert.Equal(t, int64(2), *sess.SelectedUserID)
	})

	t.Run("empty clears selection", func(t *testing.T) {
		svc, store := newTestService(t, newFixtureBooks())
		require.NoError(t, svc.SelectUser(context.Background(), "s1", "1"))
		require.NoError(t, svc.SelectUser(context.Background(), "s1", ""))
		assert.Nil(t, getSession(t, store).SelectedUserID)
	})

	for _, raw := range []string{"abc", "1.5", "99"} {
		t.Run("rejects "+raw, func(t *testing.T) {
			svc, store := newTestService(t, newFixtureBooks())
			require.NoError(t, svc.SelectUser(context.Background(), "s1", "1"))

			err := svc.SelectUser(context.Background(), "s1", raw)
			assert.ErrorIs(t, err, apperror.ErrValidation)

			sess := getSession(t, store)
			require.NotNil(t, sess.SelectedUserID, "state unchanged")
			assert.Equal(t, int64(1), *sess.SelectedUserID)
		})
	}

	t.Run("unknown session", func(t *testing.T) {
		svc, _ := newTestService(t, newFixtureBooks())
		err := svc.SelectUser(context.Background(), "nope", "1")
		assert.ErrorIs(t, err, apperror.ErrNotFound)
	})
}

func TestRequestRecommendations_NoUserMakesNoCall(t *testing.T) {
	books := newFixtureBooks()
	svc, store := newTestService(t, books)
	before := books.total()

	loaded, err := svc.RequestRecommendations(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, loaded)
	assert.Equal(t, before, books.total(), "no network call without a selected user")
	assert.Nil(t, getSession(t, store).Recommendations)
}

func TestRequestRecommendations_Success(t *testing.T) {
	books := newFixtureBooks()
	svc, _ := newTestService(t, books)
	require.NoError(t, svc.SelectUser(context.Background(), "s1", "1"))

	loaded, err := svc.RequestRecommendations(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, loaded)

	page, err := svc.View(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, page.RecommendationsVisible)
	assert.Contains(t, string(page.Recommendations), "Dune")
	assert.NotContains(t, string(page.Recommendations), "Hyperion")
}

func TestRequestRecommendations_EmptyResult(t *testing.T) {
	svc, _ := newTestService(t, newFixtureBooks())
	require.NoError(t, svc.SelectUser(context.Background(), "s1", "2"))

	_, err := svc.RequestRecommendations(context.Background(), "s1")
	require.NoError(t, err)

	page, err := svc.View(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, page.RecommendationsVisible)
	assert.Contains(t, string(page.Recommendations), "No books to display")
}

func TestRequestRecommendations_FailureKeepsPanel(t *testing.T) {
	books := newFixtureBooks()
	svc, store := newTestService(t, books)
	require.NoError(t, svc.SelectUser(context.Background(), "s1", "1"))
	_, err := svc.RequestRecommendations(context.Background(), "s1")
	require.NoError(t, err)

	books.recsErr = errors.New("unexpected status 500")
	loaded, err := svc.RequestRecommendations(context.Background(), "s1")
	require.NoError(t, err, "fetch failures are caught, not returned")
	assert.False(t, loaded)

	sess := getSession(t, store)
	require.NotNil(t, sess.Recommendations, "previous panel content stays")
	assert.Equal(t, []string{MsgLoadRecommendationsFailed}, noticeMessages(sess.Notices))
}

// =========================================================================
// MODAL STATE MACHINE
// =========================================================================

func TestOpenDetail_DuneScenario(t *testing.T) {
	svc, store := newTestService(t, newFixtureBooks())

	require.NoError(t, svc.OpenDetail(context.Background(), "s1", 7))

	sess := getSession(t, store)
	require.True(t, sess.Modal.IsOpen())
	assert.Equal(t, int64(7), sess.Modal.Book.ID)
	assert.NotEmpty(t, sess.Modal.Similar)

	page, err := svc.View(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, page.ModalOpen)
	assert.Equal(t, int64(7), page.ModalBookID)

	detail := string(page.Detail)
	assert.Contains(t, detail, "Dune")
	assert.Contains(t, detail, "4.7/5")
	assert.Contains(t, detail, `data-stars="5"`)
	assert.Contains(t, detail, "Similarity: 87%")
	assert.Contains(t, detail, `action="/modal/similar/9"`)

	// The catalog card for Dune shows the same rating.
	assert.Contains(t, string(page.AllBooks), `action="/modal/open/7"`)
}

func TestOpenDetail_EmptySimilarHidden(t *testing.T) {
	svc, _ := newTestService(t, newFixtureBooks())

	require.NoError(t, svc.OpenDetail(context.Background(), "s1", 9))

	page, err := svc.View(context.Background(), "s1")
	require.NoError(t, err)
	require.True(t, page.ModalOpen)
	assert.Contains(t, string(page.Detail), `class="similar-section" hidden`)
	assert.NotContains(t, string(page.Detail), "Similarity:")
}

func TestOpenDetail_Failure(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*mockBooks)
	}{
		{name: "similarity fails", setup: func(m *mockBooks) { m.similarErr = errors.New("unexpected status 500") }},
		{name: "book fails", setup: func(m *mockBooks) { m.bookErr = errors.New("connection reset") }},
	}

	for _, tt := range tests {
		t.Run(tt.name+" from closed", func(t *testing.T) {
			books := newFixtureBooks()
			tt.setup(books)
			svc, store := newTestService(t, books)

			require.NoError(t, svc.OpenDetail(context.Background(), "s1", 7))

			sess := getSession(t, store)
			assert.False(t, sess.Modal.IsOpen(), "modal stays closed")
			assert.Equal(t, []string{MsgBookDetailsFailed}, noticeMessages(sess.Notices))
			// The sibling request may still be finishing after the join returned.
			assert.Eventually(t, func() bool {
				return books.count("getBook") == 1 && books.count("getSimilar") == 1
			}, time.Second, 5*time.Millisecond)
		})

		t.Run(tt.name+" from open", func(t *testing.T) {
			books := newFixtureBooks()
			svc, store := newTestService(t, books)
			require.NoError(t, svc.OpenDetail(context.Background(), "s1", 9))

			tt.setup(books)
			require.NoError(t, svc.OpenDetail(context.Background(), "s1", 7))

			sess := getSession(t, store)
			require.True(t, sess.Modal.IsOpen(), "modal keeps its prior state")
			assert.Equal(t, int64(9), sess.Modal.Book.ID)
		})
	}
}

func TestOpenDetail_FirstFailureEndsJoin(t *testing.T) {
	books := newFixtureBooks()
	release := make(chan struct{})
	books.beforeBook = func(int64) { <-release }
	books.similarErr = errors.New("unexpected status 500")
	svc, store := newTestService(t, books)
	t.Cleanup(func() { close(release) })

	done := make(chan error, 1)
	go func() { done <- svc.OpenDetail(context.Background(), "s1", 7) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("OpenDetail waited on the book fetch after the similar fetch failed")
	}

	sess := getSession(t, store)
	assert.False(t, sess.Modal.IsOpen())
	assert.Equal(t, []string{MsgBookDetailsFailed}, noticeMessages(sess.Notices))
}

func TestCloseModal(t *testing.T) {
	svc, store := newTestService(t, newFixtureBooks())
	require.NoError(t, svc.OpenDetail(context.Background(), "s1", 7))

	require.NoError(t, svc.CloseModal(context.Background(), "s1"))

	sess := getSession(t, store)
	assert.Equal(t, model.ModalClosed, sess.Modal.State)
	assert.Nil(t, sess.Modal.Book)
	assert.Empty(t, sess.Modal.Similar)

	// Closing again is harmless.
	require.NoError(t, svc.CloseModal(context.Background(), "s1"))
}

func TestOpenSimilar_ClosesThenReopens(t *testing.T) {
	books := newFixtureBooks()
	var store *memory.SessionStore
	var stateAtSettle model.ModalState = -1

	settler := SettlerFunc(func(ctx context.Context) error {
		sess, err := store.Get(ctx, "s1")
		if err != nil {
			return err
		}
		stateAtSettle = sess.Modal.State
		return nil
	})

	svc, s := newTestService(t, books, WithSettler(settler))
	store = s
	require.NoError(t, svc.OpenDetail(context.Background(), "s1", 7))

	require.NoError(t, svc.OpenSimilar(context.Background(), "s1", 9))

	assert.Equal(t, model.ModalClosed, stateAtSettle, "close is committed before the reopen")
	sess := getSession(t, store)
	require.True(t, sess.Modal.IsOpen())
	assert.Equal(t, int64(9), sess.Modal.Book.ID)
	assert.Equal(t, "Hyperion", sess.Modal.Book.Title)
}

func TestOpenSimilar_FailureLeavesClosed(t *testing.T) {
	books := newFixtureBooks()
	svc, store := newTestService(t, books)
	require.NoError(t, svc.OpenDetail(context.Background(), "s1", 7))

	books.similarErr = errors.New("boom")
	require.NoError(t, svc.OpenSimilar(context.Background(), "s1", 9))

	sess := getSession(t, store)
	assert.False(t, sess.Modal.IsOpen())
	assert.Equal(t, []string{MsgBookDetailsFailed}, noticeMessages(sess.Notices))
}

func TestOpenDetail_LastResolvedWins(t *testing.T) {
	books := newFixtureBooks()
	release := make(chan struct{})
	books.beforeBook = func(id int64) {
		if id == 7 {
			<-release
		}
	}
	svc, store := newTestService(t, books)

	done := make(chan error, 1)
	go func() { done <- svc.OpenDetail(context.Background(), "s1", 7) }()

	// The later request for 9 resolves first...
	require.NoError(t, svc.OpenDetail(context.Background(), "s1", 9))
	assert.Equal(t, int64(9), getSession(t, store).Modal.Book.ID)

	// ...then the earlier one for 7 resolves and overwrites it.
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, int64(7), getSession(t, store).Modal.Book.ID)
}

// =========================================================================
// RATING
// =========================================================================

func TestRateBook(t *testing.T) {
	t.Run("requires a selected user", func(t *testing.T) {
		books := newFixtureBooks()
		svc, _ := newTestService(t, books)

		err := svc.RateBook(context.Background(), "s1", 7, 4)
		assert.ErrorIs(t, err, apperror.ErrValidation)
		assert.Equal(t, 0, books.count("rateBook"))
	})

	for _, rating := range []int{0, 6, -1} {
		t.Run("rejects out of range", func(t *testing.T) {
			books := newFixtureBooks()
			svc, _ := newTestService(t, books)
			require.NoError(t, svc.SelectUser(context.Background(), "s1", "1"))

			err := svc.RateBook(context.Background(), "s1", 7, rating)
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.Equal(t, 0, books.count("rateBook"))
		})
	}

	t.Run("success", func(t *testing.T) {
		books := newFixtureBooks()
		svc, store := newTestService(t, books)
		require.NoError(t, svc.SelectUser(context.Background(), "s1", "2"))

		require.NoError(t, svc.RateBook(context.Background(), "s1", 7, 5))

		assert.Equal(t, []rateCall{{userID: 2, bookID: 7, rating: 5}}, books.rated)
		sess := getSession(t, store)
		require.Len(t, sess.Notices, 1)
		assert.Equal(t, model.NoticeInfo, sess.Notices[0].Level)
		assert.Equal(t, MsgRateSaved, sess.Notices[0].Message)
	})

	t.Run("service failure", func(t *testing.T) {
		books := newFixtureBooks()
		books.rateErr = errors.New("unexpected status 400")
		svc, store := newTestService(t, books)
		require.NoError(t, svc.SelectUser(context.Background(), "s1", "2"))

		require.NoError(t, svc.RateBook(context.Background(), "s1", 7, 3))

		sess := getSession(t, store)
		require.Len(t, sess.Notices, 1)
		assert.Equal(t, model.NoticeError, sess.Notices[0].Level)
		assert.Equal(t, MsgRateFailed, sess.Notices[0].Message)
	})
}

// =========================================================================
// VIEW
// =========================================================================

func TestView_InitialPage(t *testing.T) {
	svc, _ := newTestService(t, newFixtureBooks())

	page, err := svc.View(context.Background(), "s1")
	require.NoError(t, err)

	assert.Len(t, page.Users, 2)
	assert.False(t, page.HasSelection)
	assert.False(t, page.CanRecommend, "recommend control disabled until a user is selected")
	assert.False(t, page.RecommendationsVisible)
	assert.False(t, page.ModalOpen)
	assert.Empty(t, page.Detail)
	assert.Equal(t, 2, strings.Count(string(page.AllBooks), `class="book-card"`))
}

func TestView_SelectionEnablesRecommend(t *testing.T) {
	svc, _ := newTestService(t, newFixtureBooks())
	require.NoError(t, svc.SelectUser(context.Background(), "s1", "1"))

	page, err := svc.View(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, page.HasSelection)
	assert.Equal(t, int64(1), page.SelectedUserID)
	assert.True(t, page.CanRecommend)
}

func TestView_NoticesShownOnce(t *testing.T) {
	books := newFixtureBooks()
	books.usersErr = errors.New("boom")
	svc, _ := newTestService(t, books)

	page, err := svc.View(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{MsgLoadUsersFailed}, noticeMessages(page.Notices))

	page, err = svc.View(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, page.Notices)
}

func TestView_UnknownSession(t *testing.T) {
	svc, _ := newTestService(t, newFixtureBooks())
	_, err := svc.View(context.Background(), "nope")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

// =========================================================================
// SETTLERS
// =========================================================================

func TestAfter(t *testing.T) {
	t.Run("waits", func(t *testing.T) {
		start := time.Now()
		require.NoError(t, After(20*time.Millisecond).Settle(context.Background()))
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})

	t.Run("honours cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := After(time.Hour).Settle(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("zero is immediate", func(t *testing.T) {
		assert.NoError(t, After(0).Settle(context.Background()))
	})
}
