// Package feed pulls batches of posts from an HTTP collection endpoint.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/rewired-gh/unrestwatch/internal/models"
)

// Client provides access to a post collection API
type Client struct {
	baseURL    string
	httpClient *http.Client
	limit      int
	executor   failsafe.Executor[[]models.PostInput]
}

// ClientConfig holds HTTP client tuning
type ClientConfig struct {
	Timeout        time.Duration
	Limit          int
	MaxRetries     int
	RetryDelayBase time.Duration
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d: %s", e.Code, e.Body)
}

// Temporary reports whether the request may succeed when retried.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

type response struct {
	Posts []models.PostInput `json:"posts"`
}

// NewClient creates a new feed client
func NewClient(baseURL string, cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 500
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}

	retry := retrypolicy.NewBuilder[[]models.PostInput]().
		HandleIf(func(_ []models.PostInput, err error) bool {
			if err == nil {
				return false
			}
			var se *StatusError
			if errors.As(err, &se) {
				return se.Temporary()
			}
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}).
		WithBackoff(cfg.RetryDelayBase, cfg.RetryDelayBase*8).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		ReturnLastFailure().
		Build()

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limit:    cfg.Limit,
		executor: failsafe.With[[]models.PostInput](retry),
	}
}

// Limit is the page size requested by FetchPosts.
func (c *Client) Limit() int {
	return c.limit
}

// FetchPosts retrieves up to Limit posts published at or after since. A zero
// since fetches the newest batch.
func (c *Client) FetchPosts(ctx context.Context, since time.Time) ([]models.PostInput, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid feed url: %w", err)
	}
	u = u.JoinPath("posts")
	q := u.Query()
	q.Set("limit", strconv.Itoa(c.limit))
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339Nano))
	}
	u.RawQuery = q.Encode()

	posts, err := c.executor.WithContext(ctx).Get(func() ([]models.PostInput, error) {
		return c.doRequest(ctx, u.String())
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch posts: %w", err)
	}
	return posts, nil
}

func (c *Client) doRequest(ctx context.Context, target string) ([]models.PostInput, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to decode posts: %w", err)
	}
	return r.Posts, nil
}
