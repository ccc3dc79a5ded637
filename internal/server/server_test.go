package server_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/bookshelf/internal/auth"
	"github.com/sakif/bookshelf/internal/config"
	"github.com/sakif/bookshelf/internal/model"
	"github.com/sakif/bookshelf/internal/repository/httpapi"
	"github.com/sakif/bookshelf/internal/repository/memory"
	"github.com/sakif/bookshelf/internal/server"
	"github.com/sakif/bookshelf/internal/service"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// newUpstream fakes the remote book service with one user and two books.
func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	routes := map[string]string{
		"/api/users":                   `[{"id": 1, "username": "alice"}]`,
		"/api/books":                   `[{"id": 7, "title": "Dune", "author": "Frank Herbert", "year": 1965, "rating": 4.7}, {"id": 9, "title": "Hyperion", "author": "Dan Simmons"}]`,
		"/api/books/7":                 `{"id": 7, "title": "Dune", "author": "Frank Herbert", "year": 1965, "rating": 4.7}`,
		"/api/similar/7":               `{"similar_books": [{"id": 9, "title": "Hyperion", "author": "Dan Simmons", "similarity": 0.87}]}`,
		"/api/users/1/recommendations": `{"recommendations": [{"id": 9, "title": "Hyperion", "author": "Dan Simmons"}]}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(apiURL string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:              8080,
			TemplateDir:       "../../web/templates",
			StaticDir:         "../../web/static",
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
			ShutdownTimeout:   time.Second,
		},
		API: config.APIConfig{BaseURL: apiURL, Timeout: 5 * time.Second},
		Session: config.SessionConfig{
			Store:         config.StoreMemory,
			Secret:        "test-secret-at-least-16",
			IdleTimeout:   time.Minute,
			SweepInterval: time.Minute,
			TokenTTL:      time.Hour,
		},
	}
}

// newTestServer wires the real stack against a fake upstream and returns
// a client that keeps the session cookie between requests.
func newTestServer(t *testing.T) (*httptest.Server, *http.Client) {
	t.Helper()
	upstream := newUpstream(t)
	cfg := testConfig(upstream.URL)

	books, err := httpapi.New(cfg.API.BaseURL, cfg.API.Timeout, testLogger)
	require.NoError(t, err)
	sessions := memory.NewSessionStore()
	tokens, err := auth.NewTokenService(cfg.Session.Secret, cfg.Session.TokenTTL)
	require.NoError(t, err)

	srv, err := server.New(cfg, server.Deps{
		Browser:  service.NewBrowseService(books, sessions, testLogger),
		Sessions: sessions,
		Tokens:   tokens,
	}, testLogger)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return ts, &http.Client{Jar: jar}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := server.New(testConfig("http://localhost:5000"), server.Deps{}, testLogger)
	assert.Error(t, err)
}

func TestBrowseFlow(t *testing.T) {
	ts, client := newTestServer(t)

	// First visit: cookie issued, session bootstrapped.
	resp, err := client.Get(ts.URL + "/")
	require.NoError(t, err)
	body := readBody(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "alice")
	assert.Contains(t, body, "Dune")
	assert.Contains(t, body, `id="get-recommendations" type="submit" disabled`)

	u, _ := url.Parse(ts.URL)
	require.Len(t, client.Jar.Cookies(u), 1)
	assert.Equal(t, auth.CookieName, client.Jar.Cookies(u)[0].Name)

	// Selecting a user enables the button; the redirect lands on the page.
	resp, err = client.PostForm(ts.URL+"/session/user", url.Values{"user_id": {"1"}})
	require.NoError(t, err)
	body = readBody(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `<option value="1" selected>alice</option>`)
	assert.Contains(t, body, `id="get-recommendations" type="submit">`)

	resp, err = client.PostForm(ts.URL+"/recommendations", nil)
	require.NoError(t, err)
	body = readBody(t, resp)
	assert.Equal(t, "/", resp.Request.URL.Path)
	assert.NotContains(t, body, `id="recommendations-section" class="books-section" hidden`)

	// Opening a card shows its details and similar books.
	resp, err = client.PostForm(ts.URL+"/modal/open/7", nil)
	require.NoError(t, err)
	body = readBody(t, resp)
	assert.Contains(t, body, "Frank Herbert")
	assert.Contains(t, body, "Hyperion")
	assert.NotContains(t, body, `id="book-modal" class="modal" hidden`)

	resp, err = client.PostForm(ts.URL+"/modal/close", nil)
	require.NoError(t, err)
	body = readBody(t, resp)
	assert.Contains(t, body, `id="book-modal" class="modal" hidden`)
}

func TestFetchFailureBecomesNotice(t *testing.T) {
	ts, client := newTestServer(t)

	_, err := client.Get(ts.URL + "/")
	require.NoError(t, err)

	// The fake upstream has no book 404.
	resp, err := client.PostForm(ts.URL+"/modal/open/404", nil)
	require.NoError(t, err)
	body := readBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `id="notice"`)
	assert.Contains(t, body, `id="book-modal" class="modal" hidden`)

	// Shown once.
	resp, err = client.Get(ts.URL + "/")
	require.NoError(t, err)
	assert.NotContains(t, readBody(t, resp), `id="notice"`)
}

func TestInfrastructureRoutes(t *testing.T) {
	ts, _ := newTestServer(t)

	tests := []struct {
		path        string
		wantContain string
	}{
		{path: "/healthz", wantContain: `"status":"ok"`},
		{path: "/metrics", wantContain: "bookshelf_http_requests_total"},
		{path: "/static/css/style.css", wantContain: ".modal"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			// /metrics only lists vectors that have been observed.
			_, _ = http.Get(ts.URL + "/healthz")

			resp, err := http.Get(ts.URL + tt.path)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Contains(t, readBody(t, resp), tt.wantContain)
			assert.Empty(t, resp.Cookies(), "no session cookie outside the page routes")
		})
	}
}

func TestBadBookIDIsRejected(t *testing.T) {
	ts, client := newTestServer(t)

	resp, err := client.PostForm(ts.URL+"/modal/open/abc", nil)
	require.NoError(t, err)
	body := readBody(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.True(t, strings.Contains(body, "validation_error"))
}

func TestJanitorSweep(t *testing.T) {
	store := memory.NewSessionStore()
	ctx := context.Background()
	start := time.Now()

	require.NoError(t, store.Create(ctx, model.NewSession("old", start.Add(-2*time.Hour))))
	require.NoError(t, store.Create(ctx, model.NewSession("fresh", start)))

	j := server.NewJanitor(store, time.Hour, time.Minute, testLogger)
	assert.Equal(t, 1, j.Sweep(ctx))
	assert.Equal(t, 1, store.Len())

	_, err := store.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestJanitorStartStop(t *testing.T) {
	j := server.NewJanitor(memory.NewSessionStore(), time.Hour, time.Millisecond, testLogger)
	j.Start()
	time.Sleep(5 * time.Millisecond)
	j.Stop()
	j.Stop()
}
