package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

// newTestServer serves handler and counts requests
func newTestServer(t *testing.T, handler func(w http.ResponseWriter, req graphQLRequest)) (*httptest.Server, *int32) {
	t.Helper()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var req graphQLRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		handler(w, req)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestClient(url string) *Client {
	return NewClient(Config{
		URL:       url,
		Token:     "test-token",
		Timeout:   5 * time.Second,
		RateLimit: time.Millisecond,
		Burst:     10,
	}, nil)
}

const duneResponse = `{"data":{"books":[{
	"id": 312460,
	"title": "Dune",
	"subtitle": "Deluxe Edition",
	"pages": 617,
	"contributions": [{"author": {"name": "Frank Herbert"}}],
	"default_physical_edition": {"isbn_13": "9780441172719", "edition_format": "Paperback"}
}]}}`

func TestClient_Lookup(t *testing.T) {
	srv, calls := newTestServer(t, func(w http.ResponseWriter, req graphQLRequest) {
		assert.Contains(t, req.Query, "books(where: {id: {_eq: $bookId}}")
		assert.EqualValues(t, 312460, req.Variables["bookId"])
		_, _ = w.Write([]byte(duneResponse))
	})
	c := newTestClient(srv.URL)

	m, err := c.Lookup(context.Background(), 312460)
	require.NoError(t, err)
	assert.Equal(t, &Metadata{
		ID:       312460,
		Title:    "Dune",
		Author:   "Frank Herbert",
		Subtitle: "Deluxe Edition",
		Pages:    617,
		ISBN13:   "9780441172719",
		Format:   "Paperback",
	}, m)
	assert.Equal(t, "Dune by Frank Herbert", m.String())

	// Served from cache
	_, err = c.Lookup(context.Background(), 312460)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestClient_LookupOptionalFields(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, _ graphQLRequest) {
		_, _ = w.Write([]byte(`{"data":{"books":[{
			"id": 7, "title": " Emma ", "subtitle": null, "pages": null,
			"contributions": [{"author": {"name": "Jane Austen"}}],
			"default_physical_edition": null
		}]}}`))
	})

	m, err := newTestClient(srv.URL).Lookup(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, &Metadata{ID: 7, Title: "Emma", Author: "Jane Austen"}, m)
}

func TestClient_LookupErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantNoRes  bool
		wantStatus int
	}{
		{
			name:      "unknown id",
			status:    http.StatusOK,
			body:      `{"data":{"books":[]}}`,
			wantNoRes: true,
		},
		{
			name:   "graphql error",
			status: http.StatusOK,
			body:   `{"errors":[{"message":"field 'books' not found"}]}`,
		},
		{
			name:       "server error",
			status:     http.StatusInternalServerError,
			body:       `internal error`,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "unauthorized",
			status:     http.StatusUnauthorized,
			body:       `{"error":"invalid token"}`,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:   "missing author",
			status: http.StatusOK,
			body:   `{"data":{"books":[{"id": 1, "title": "Anonymous", "contributions": []}]}}`,
		},
		{
			name:   "missing title",
			status: http.StatusOK,
			body:   `{"data":{"books":[{"id": 1, "title": "", "contributions": [{"author": {"name": "X"}}]}]}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, func(w http.ResponseWriter, _ graphQLRequest) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			m, err := newTestClient(srv.URL).Lookup(context.Background(), 1)
			require.Error(t, err)
			assert.Nil(t, m)

			if tt.wantNoRes {
				assert.ErrorIs(t, err, ErrNoResults)
				assert.False(t, IsProviderError(err))
				return
			}

			var pe *ProviderError
			require.True(t, errors.As(err, &pe), "expected *ProviderError, got %T: %v", err, err)
			assert.Equal(t, int64(1), pe.BookID)
			assert.Equal(t, tt.wantStatus, pe.StatusCode)
			assert.Contains(t, pe.Error(), "book ID: 1")
		})
	}
}

func TestClient_LookupInvalidID(t *testing.T) {
	c := newTestClient("http://127.0.0.1:0")

	for _, id := range []int64{0, -3} {
		_, err := c.Lookup(context.Background(), id)
		assert.ErrorIs(t, err, ErrInvalidID)
	}
}

func TestClient_LookupCanceled(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, _ graphQLRequest) {
		_, _ = w.Write([]byte(duneResponse))
	})
	c := newTestClient(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Lookup(ctx, 312460)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_RateLimitRetries(t *testing.T) {
	tests := []struct {
		name      string
		limited   int32
		wantErr   bool
		wantCalls int32
	}{
		{"recovers after one rate limited response", 1, false, 2},
		{"gives up when still rate limited", 10, true, maxAttempts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen int32
			srv, calls := newTestServer(t, func(w http.ResponseWriter, _ graphQLRequest) {
				if atomic.AddInt32(&seen, 1) <= tt.limited {
					w.Header().Set("Retry-After", "0")
					w.WriteHeader(http.StatusTooManyRequests)
					return
				}
				_, _ = w.Write([]byte(duneResponse))
			})
			c := newTestClient(srv.URL)
			before := c.limiter.GetRate()

			m, err := c.Lookup(context.Background(), 312460)
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(calls))
			assert.Greater(t, c.limiter.GetRate(), before, "rate limited responses slow the client down")

			if tt.wantErr {
				var pe *ProviderError
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, http.StatusTooManyRequests, pe.StatusCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Dune", m.Title)
		})
	}
}

func TestClient_RateLimitBackoffHonorsContext(t *testing.T) {
	srv, calls := newTestServer(t, func(w http.ResponseWriter, _ graphQLRequest) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	c := newTestClient(srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Lookup(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestProviderError(t *testing.T) {
	inner := errors.New("boom")
	err := &ProviderError{BookID: 9, StatusCode: 502, Err: inner}

	assert.Equal(t, "metadata provider error (book ID: 9, status 502): boom", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "metadata provider error (book ID: 9): boom", (&ProviderError{BookID: 9, Err: inner}).Error())
}
