// Package metadata looks up book metadata by provider id on the Hardcover
// GraphQL API.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hasura/go-graphql-client"

	"github.com/drallgood/book-manager/internal/cache"
	"github.com/drallgood/book-manager/internal/logger"
	"github.com/drallgood/book-manager/internal/util"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 30 * time.Second
	// DefaultCacheTTL is the default TTL for cached lookups
	DefaultCacheTTL = time.Hour

	// maxAttempts bounds requests per lookup when rate limited
	maxAttempts = 2
)

// ErrInvalidID is returned for ids that cannot exist on the provider
var ErrInvalidID = errors.New("book id must be positive")

const bookQuery = `
	query GetBook($bookId: Int!) {
		books(where: {id: {_eq: $bookId}}, limit: 1) {
			id
			title
			subtitle
			pages
			contributions(limit: 1) {
				author {
					name
				}
			}
			default_physical_edition {
				isbn_13
				edition_format
			}
		}
	}`

// Metadata describes a book as known to the provider
type Metadata struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Author   string `json:"author"`
	Subtitle string `json:"subtitle,omitempty"`
	Pages    int    `json:"pages,omitempty"`
	ISBN13   string `json:"isbn_13,omitempty"`
	Format   string `json:"format,omitempty"`
}

func (m Metadata) String() string {
	return fmt.Sprintf("%s by %s", m.Title, m.Author)
}

// Config holds the settings for a Client
type Config struct {
	URL       string
	Token     string
	Timeout   time.Duration
	CacheTTL  time.Duration
	RateLimit time.Duration
	Burst     int
}

// Client looks up book metadata
type Client struct {
	gql     *graphql.Client
	cache   cache.Cache[int64, Metadata]
	limiter *util.RateLimiter
	logger  *logger.Logger
}

// headerAddingTransport adds the bearer token and content headers
type headerAddingTransport struct {
	token string
	rt    http.RoundTripper
}

func (t *headerAddingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return t.rt.RoundTrip(req)
}

type statusKey struct{}

// attemptInfo is filled in by statusTransport for one request
type attemptInfo struct {
	status  int
	backoff time.Duration
}

// statusTransport records the response status in the request context and
// feeds rate limit responses back into the limiter
type statusTransport struct {
	limiter *util.RateLimiter
	rt      http.RoundTripper
}

func (t *statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.rt.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	info, _ := req.Context().Value(statusKey{}).(*attemptInfo)
	if info != nil {
		info.status = resp.StatusCode
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		backoff := t.limiter.OnRateLimit(util.ParseRetryAfter(resp.Header))
		if info != nil {
			info.backoff = backoff
		}
	}
	return resp, nil
}

// NewClient creates a metadata client
func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}

	log = log.With(map[string]interface{}{
		"component": "metadata_client",
	})
	limiter := util.NewRateLimiter(cfg.RateLimit, cfg.Burst, log)

	httpClient := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &statusTransport{
			limiter: limiter,
			rt: &headerAddingTransport{
				token: strings.TrimPrefix(cfg.Token, "Bearer "),
				rt:    http.DefaultTransport,
			},
		},
	}

	return &Client{
		gql:     graphql.NewClient(cfg.URL, httpClient),
		cache:   cache.WithTTL[int64, Metadata](cache.NewMemoryCache[int64, Metadata](log), cfg.CacheTTL),
		limiter: limiter,
		logger:  log,
	}
}

// Lookup fetches the metadata of the book with the given provider id.
// It returns an error wrapping ErrNoResults if the provider does not know
// the id, and a *ProviderError if the request fails or the provider
// returns a book without title or author.
func (c *Client) Lookup(ctx context.Context, id int64) (*Metadata, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidID, id)
	}

	if m, ok := c.cache.Get(id); ok {
		c.logger.Debug("Metadata cache hit", map[string]interface{}{"book_id": id})
		return &m, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	for attempt := 1; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}

		info := &attemptInfo{}
		var err error
		data, err = c.gql.ExecRaw(context.WithValue(ctx, statusKey{}, info), bookQuery, map[string]interface{}{
			"bookId": id,
		})
		if err == nil {
			break
		}

		if info.status == http.StatusTooManyRequests && attempt < maxAttempts {
			c.logger.Warn("Rate limited by metadata provider, retrying", map[string]interface{}{
				"book_id": id,
				"attempt": attempt,
				"backoff": info.backoff.String(),
				"rate":    c.limiter.GetRate().String(),
			})
			if err := sleep(ctx, info.backoff); err != nil {
				return nil, err
			}
			continue
		}

		c.logger.Error("Metadata query failed", map[string]interface{}{
			"book_id": id,
			"status":  info.status,
			"error":   err.Error(),
		})
		return nil, &ProviderError{BookID: id, StatusCode: providerStatus(info.status), Err: err}
	}

	var response struct {
		Books []struct {
			ID            int64   `json:"id"`
			Title         *string `json:"title"`
			Subtitle      *string `json:"subtitle"`
			Pages         *int    `json:"pages"`
			Contributions []struct {
				Author struct {
					Name string `json:"name"`
				} `json:"author"`
			} `json:"contributions"`
			DefaultPhysicalEdition *struct {
				ISBN13        *string `json:"isbn_13"`
				EditionFormat *string `json:"edition_format"`
			} `json:"default_physical_edition"`
		} `json:"books"`
	}
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, &ProviderError{BookID: id, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	if len(response.Books) == 0 {
		return nil, fmt.Errorf("%w for book id %d", ErrNoResults, id)
	}

	b := response.Books[0]
	m := Metadata{
		ID:       b.ID,
		Title:    strings.TrimSpace(deref(b.Title)),
		Subtitle: strings.TrimSpace(deref(b.Subtitle)),
	}
	if b.Pages != nil {
		m.Pages = *b.Pages
	}
	if len(b.Contributions) > 0 {
		m.Author = strings.TrimSpace(b.Contributions[0].Author.Name)
	}
	if e := b.DefaultPhysicalEdition; e != nil {
		m.ISBN13 = deref(e.ISBN13)
		m.Format = deref(e.EditionFormat)
	}

	if m.Title == "" || m.Author == "" {
		return nil, &ProviderError{BookID: id, Err: errors.New("incomplete metadata: title and author are required")}
	}

	c.cache.Set(id, m, 0)
	c.logger.Debug("Retrieved book metadata", map[string]interface{}{
		"book_id": id,
		"cached":  c.cache.Len(),
		"title":   m.Title,
		"author":  m.Author,
		"isbn_13": m.ISBN13,
	})
	return &m, nil
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// providerStatus drops successful statuses; a 200 with GraphQL errors is not
// an HTTP failure
func providerStatus(code int) int {
	if code >= 200 && code < 300 {
		return 0
	}
	return code
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
