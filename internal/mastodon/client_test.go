package mastodon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requestLog records the request URIs a test server received
type requestLog struct {
	mu   sync.Mutex
	uris []string
}

func (l *requestLog) add(r *http.Request) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.uris = append(l.uris, r.URL.RequestURI())
}

func (l *requestLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.uris...)
}

func setupTestClient(t *testing.T, handler http.Handler, opts ...Option) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewTLSServer(handler)
	t.Cleanup(server.Close)

	domain := strings.TrimPrefix(server.URL, "https://")
	opts = append([]Option{WithHTTPClient(server.Client())}, opts...)
	return NewClient(domain, "test-token", opts...), server
}

func collectPages(t *testing.T, seq func(yield func(*Page, error) bool)) ([]*Page, error) {
	t.Helper()

	var pages []*Page
	for page, err := range seq {
		if err != nil {
			return pages, err
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func TestNewClient(t *testing.T) {
	client := NewClient("mastodon.example", "secret")

	assert.Equal(t, "https://mastodon.example/api/v1", client.APIURL())
	assert.False(t, client.GetRateLimitStatus().HasRemaining)
}

func TestRequestHeaders(t *testing.T) {
	headers := make(chan http.Header, 1)
	client, _ := setupTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		assert.Equal(t, "/api/v1/accounts/verify_credentials", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"1"}`)
	}))

	page, err := client.Request(context.Background(), "get", "accounts/verify_credentials", nil)
	require.NoError(t, err)

	got := <-headers
	assert.Equal(t, http.MethodGet, page.Request.Method)
	assert.Equal(t, "Bearer test-token", got.Get("Authorization"))
	assert.Equal(t, UserAgent, got.Get("User-Agent"))
	assert.Equal(t, "application/json", got.Get("Accept"))
	assert.True(t, page.OK())
}

func TestRequestPaginated(t *testing.T) {
	t.Run("SinglePageWithoutLink", func(t *testing.T) {
		log := &requestLog{}
		client, _ := setupTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.add(r)
			fmt.Fprint(w, `[{"id":"1"}]`)
		}))

		pages, err := collectPages(t, client.RequestPaginated(context.Background(), http.MethodGet, "bookmarks", url.Values{"limit": {"40"}}))
		require.NoError(t, err)
		assert.Len(t, pages, 1)
		assert.Equal(t, []string{"/api/v1/bookmarks?limit=40"}, log.all())
	})

	t.Run("LinkWithoutNextRelation", func(t *testing.T) {
		var server *httptest.Server
		client, server := setupTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Link", fmt.Sprintf(`<%s/api/v1/bookmarks?min_id=9>; rel="prev"`, server.URL))
			fmt.Fprint(w, `[]`)
		}))

		pages, err := collectPages(t, client.RequestPaginated(context.Background(), http.MethodGet, "bookmarks", nil))
		require.NoError(t, err)
		assert.Len(t, pages, 1)
	})

	t.Run("FollowsChainOfNextLinks", func(t *testing.T) {
		const chainLength = 4
		log := &requestLog{}
		var server *httptest.Server
		client, server := setupTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.add(r)
			n := 1
			if maxID := r.URL.Query().Get("max_id"); maxID != "" {
				fmt.Sscanf(maxID, "%d", &n)
			}
			if n < chainLength {
				w.Header().Add("Link", fmt.Sprintf(`<%s/api/v1/accounts/7/followers?limit=80&max_id=%d>; rel="next", <%s/api/v1/accounts/7/followers?min_id=1>; rel="prev"`, server.URL, n+1, server.URL))
			}
			fmt.Fprintf(w, `[{"id":"%d"}]`, n)
		}))

		pages, err := collectPages(t, client.RequestPaginated(context.Background(), http.MethodGet, "accounts/7/followers", url.Values{"limit": {"80"}}))
		require.NoError(t, err)
		assert.Len(t, pages, chainLength)

		assert.Equal(t, []string{
			"/api/v1/accounts/7/followers?limit=80",
			"/api/v1/accounts/7/followers?limit=80&max_id=2",
			"/api/v1/accounts/7/followers?limit=80&max_id=3",
			"/api/v1/accounts/7/followers?limit=80&max_id=4",
		}, log.all())
	})

	t.Run("StopsWhenConsumerBreaks", func(t *testing.T) {
		log := &requestLog{}
		var server *httptest.Server
		client, server := setupTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.add(r)
			w.Header().Set("Link", fmt.Sprintf(`<%s/api/v1/favourites?max_id=1>; rel="next"`, server.URL))
			fmt.Fprint(w, `[]`)
		}))

		for range client.RequestPaginated(context.Background(), http.MethodGet, "favourites", nil) {
			break
		}
		assert.Len(t, log.all(), 1)
	})

	t.Run("YieldsNonSuccessPages", func(t *testing.T) {
		client, _ := setupTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":"Record not found"}`)
		}))

		pages, err := collectPages(t, client.RequestPaginated(context.Background(), http.MethodGet, "accounts/missing/statuses", nil))
		require.NoError(t, err)
		require.Len(t, pages, 1)
		assert.Equal(t, http.StatusNotFound, pages[0].StatusCode())

		var httpErr *HTTPError
		require.ErrorAs(t, pages[0].Err(), &httpErr)
		assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	})

	t.Run("NextLinkOutsideBase", func(t *testing.T) {
		client, _ := setupTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Link", `<https://elsewhere.example/api/v1/bookmarks?max_id=1>; rel="next"`)
			fmt.Fprint(w, `[]`)
		}))

		pages, err := collectPages(t, client.RequestPaginated(context.Background(), http.MethodGet, "bookmarks", nil))
		assert.Len(t, pages, 1)

		var malformed *MalformedResponseError
		require.ErrorAs(t, err, &malformed)
	})
}

func TestRequestPaginatedRateLimitWait(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	reset := now.Add(91*time.Minute + 30*time.Second)

	t.Run("WaitsUntilReset", func(t *testing.T) {
		var waits []time.Duration
		sleep := func(ctx context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		}

		var server *httptest.Server
		var calls atomic.Int32
		client, server := setupTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := calls.Add(1)
			w.Header().Set("X-RateLimit-Limit", "300")
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", reset.Format(time.RFC3339Nano))
			if n == 1 {
				w.Header().Set("Link", fmt.Sprintf(`<%s/api/v1/bookmarks?max_id=5>; rel="next"`, server.URL))
			}
			fmt.Fprint(w, `[]`)
		}), WithClock(func() time.Time { return now }, sleep))

		pages, err := collectPages(t, client.RequestPaginated(context.Background(), http.MethodGet, "bookmarks", nil))
		require.NoError(t, err)
		assert.Len(t, pages, 2)

		require.Len(t, waits, 1)
		assert.Equal(t, 5490*time.Second, waits[0])
	})

	t.Run("NoWaitAboveLowWaterMark", func(t *testing.T) {
		var waits []time.Duration
		sleep := func(ctx context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		}

		var server *httptest.Server
		var calls atomic.Int32
		client, server := setupTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := calls.Add(1)
			w.Header().Set("X-RateLimit-Remaining", "250")
			w.Header().Set("X-RateLimit-Reset", reset.Format(time.RFC3339Nano))
			if n == 1 {
				w.Header().Set("Link", fmt.Sprintf(`<%s/api/v1/bookmarks?max_id=5>; rel="next"`, server.URL))
			}
			fmt.Fprint(w, `[]`)
		}), WithClock(func() time.Time { return now }, sleep))

		pages, err := collectPages(t, client.RequestPaginated(context.Background(), http.MethodGet, "bookmarks", nil))
		require.NoError(t, err)
		assert.Len(t, pages, 2)
		assert.Empty(t, waits)
	})

	t.Run("NoWaitAfterLastPage", func(t *testing.T) {
		var waits []time.Duration
		sleep := func(ctx context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		}

		client, _ := setupTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", reset.Format(time.RFC3339Nano))
			fmt.Fprint(w, `[]`)
		}), WithClock(func() time.Time { return now }, sleep))

		pages, err := collectPages(t, client.RequestPaginated(context.Background(), http.MethodGet, "bookmarks", nil))
		require.NoError(t, err)
		assert.Len(t, pages, 1)
		assert.Empty(t, waits)
	})

	t.Run("CancelledWhileWaiting", func(t *testing.T) {
		var server *httptest.Server
		client, server := setupTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", time.Now().Add(time.Hour).UTC().Format(time.RFC3339))
			w.Header().Set("Link", fmt.Sprintf(`<%s/api/v1/bookmarks?max_id=5>; rel="next"`, server.URL))
			fmt.Fprint(w, `[]`)
		}))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		var pages int
		var seqErr error
		for _, err := range client.RequestPaginated(ctx, http.MethodGet, "bookmarks", nil) {
			if err != nil {
				seqErr = err
				break
			}
			pages++
			cancel()
		}

		assert.Equal(t, 1, pages)
		assert.True(t, errors.Is(seqErr, context.Canceled))
	})
}

func TestTransportError(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	domain := strings.TrimPrefix(server.URL, "https://")
	httpClient := server.Client()
	server.Close()

	client := NewClient(domain, "test-token", WithHTTPClient(httpClient))

	_, err := client.Request(context.Background(), http.MethodGet, "accounts/verify_credentials", nil)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.MethodGet, transportErr.Method)

	pages, err := collectPages(t, client.RequestPaginated(context.Background(), http.MethodGet, "bookmarks", nil))
	assert.Empty(t, pages)
	require.ErrorAs(t, err, &transportErr)
}

func TestReadTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	transport := server.Client().Transport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = 50 * time.Millisecond

	client := NewClient(strings.TrimPrefix(server.URL, "https://"), "test-token",
		WithHTTPClient(&http.Client{Transport: transport}))

	_, err := client.Request(context.Background(), http.MethodGet, "bookmarks", nil)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
}

func TestPageDecoding(t *testing.T) {
	client, _ := setupTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/list":
			fmt.Fprint(w, `[{"id":"109876543210987654","followers_count":12345678901234567}]`)
		default:
			fmt.Fprint(w, `<html>not json</html>`)
		}
	}))

	page, err := client.Request(context.Background(), http.MethodGet, "list", nil)
	require.NoError(t, err)

	records, err := page.Records()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "109876543210987654", records[0]["id"])
	assert.Equal(t, "12345678901234567", fmt.Sprint(records[0]["followers_count"]))

	page, err = client.Request(context.Background(), http.MethodGet, "broken", nil)
	require.NoError(t, err)

	_, err = page.Records()
	var malformed *MalformedResponseError
	require.ErrorAs(t, err, &malformed)
}
