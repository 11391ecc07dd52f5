package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		UserAgent:   "test-agent",
		Timeout:     5 * time.Second,
		MaxRetries:  3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
		HostRates:   map[string]rate.Limit{},
	})
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Empty(t, r.Header.Get("If-None-Match"))
		_, _ = w.Write([]byte("NPI,FIRSTNAME\n"))
	}))
	defer srv.Close()

	body, err := newTestFetcher().Download(context.Background(), srv.URL+"/UPDATED.csv")
	require.NoError(t, err)
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "NPI,FIRSTNAME\n", string(data))
}

func TestFetch_NotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		_, _ = w.Write([]byte("should not reach"))
	}))
	defer srv.Close()

	prev := Validators{ETag: `"v1"`, LastModified: "Mon, 02 Jun 2025 00:00:00 GMT"}
	res, err := newTestFetcher().Fetch(context.Background(), srv.URL, prev)
	require.NoError(t, err)
	assert.True(t, res.NotModified)
	assert.Nil(t, res.Body)
	assert.Equal(t, prev, res.Validators)
}

func TestFetch_Changed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Mon, 02 Jun 2025 00:00:00 GMT", r.Header.Get("If-Modified-Since"))
		w.Header().Set("ETag", `"v2"`)
		w.Header().Set("Last-Modified", "Tue, 01 Jul 2025 00:00:00 GMT")
		_, _ = w.Write([]byte("new"))
	}))
	defer srv.Close()

	res, err := newTestFetcher().Fetch(context.Background(), srv.URL, Validators{ETag: `"v1"`, LastModified: "Mon, 02 Jun 2025 00:00:00 GMT"})
	require.NoError(t, err)
	require.False(t, res.NotModified)
	defer res.Body.Close() //nolint:errcheck
	assert.Equal(t, Validators{ETag: `"v2"`, LastModified: "Tue, 01 Jul 2025 00:00:00 GMT"}, res.Validators)
	data, _ := io.ReadAll(res.Body)
	assert.Equal(t, "new", string(data))
}

func TestDownload_RetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := newTestFetcher().Download(context.Background(), srv.URL)
	require.NoError(t, err)
	_ = body.Close()
	assert.Equal(t, int32(3), attempts.Load())
}

func TestDownload_RetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestFetcher().Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all retries exhausted")
}

func TestDownload_ClientErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestFetcher().Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 403")
	assert.Equal(t, int32(1), attempts.Load())
}

func TestDownload_429SlowsHost(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	f := newTestFetcher()
	f.opts.HostRates[u.Host] = 100

	body, err := f.Download(context.Background(), srv.URL)
	require.NoError(t, err)
	_ = body.Close()
	// halved to 50, then raised 20% to 60
	assert.InDelta(t, 60.0, float64(f.LimiterFor(srv.URL).Limit()), 0.01)
}

func TestDownload_RateLimited(t *testing.T) {
	var mu sync.Mutex
	var times []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		times = append(times, time.Now())
		mu.Unlock()
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	f := newTestFetcher()
	f.opts.HostRates[u.Host] = 4

	for range 3 {
		body, err := f.Download(context.Background(), srv.URL)
		require.NoError(t, err)
		_ = body.Close()
	}
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, times, 3)
	assert.GreaterOrEqual(t, times[2].Sub(times[0]), 300*time.Millisecond)
}

func TestDownload_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestFetcher().Download(ctx, srv.URL)
	require.Error(t, err)
}

func TestLimiterFor(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{})
	assert.InDelta(t, 2.0, float64(f.LimiterFor("https://oig.hhs.gov/exclusions/downloadables/UPDATED.csv").Limit()), 0.001)
	assert.InDelta(t, float64(DefaultRate), float64(f.LimiterFor("https://example.com/x").Limit()), 0.001)
	assert.Same(t, f.LimiterFor("https://example.com/a"), f.LimiterFor("https://example.com/b"))
	assert.NotNil(t, f.LimiterFor("://bad"))
}

func TestNewHTTPFetcher_Defaults(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{})
	assert.Equal(t, "provider-validator/1.0", f.opts.UserAgent)
	assert.Equal(t, 2*time.Minute, f.opts.Timeout)
	assert.Equal(t, 3, f.opts.MaxRetries)
}

func TestAdaptiveLimiter_Bounds(t *testing.T) {
	lim := NewAdaptiveLimiter(10, 1)
	lim.OnSuccess()
	assert.InDelta(t, 12.0, float64(lim.Limit()), 0.01)
	for range 20 {
		lim.OnSuccess()
	}
	assert.InDelta(t, 20.0, float64(lim.Limit()), 0.01)
	for range 20 {
		lim.OnRateLimit()
	}
	assert.InDelta(t, 2.5, float64(lim.Limit()), 0.01)
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, retryAfter("3", time.Millisecond))
	assert.Equal(t, time.Minute, retryAfter("600", time.Millisecond))
	assert.Equal(t, time.Millisecond, retryAfter("Wed, 21 Oct 2015 07:28:00 GMT", time.Millisecond))
}
