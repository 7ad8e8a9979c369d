package request

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"depictor/pkg/cache"
	"depictor/pkg/config"
	"depictor/pkg/tracker"
	"depictor/pkg/version"
)

// Client handles HTTP requests with per-provider queuing, caching, and tracking.
type Client struct {
	httpClient *http.Client
	cache      cache.Cacher
	tracker    *tracker.Tracker
	userAgent  string
	retries    int
	baseDelay  time.Duration

	// Queues per provider (domain)
	queues map[string]chan job
	mu     sync.Mutex // Protects queues map
}

// job represents a queued request.
type job struct {
	req      *http.Request
	headers  map[string]string
	cacheKey string
	respChan chan jobResult
}

type jobResult struct {
	body []byte
	err  error
}

// New creates a new Client. contact goes into the User-Agent per the
// Wikimedia API etiquette.
func New(c cache.Cacher, t *tracker.Tracker, cfg config.RequestConfig, contact string) *Client {
	ua := fmt.Sprintf("Depictor/%s", version.Version)
	if contact != "" {
		ua = fmt.Sprintf("Depictor/%s (%s)", version.Version, contact)
	}

	retries := cfg.Retries
	if retries <= 0 {
		retries = 3
	}
	baseDelay := cfg.Backoff.BaseDelay.D()
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	timeout := cfg.Timeout.D()
	if timeout <= 0 {
		timeout = 300 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		cache:      c,
		tracker:    t,
		userAgent:  ua,
		retries:    retries,
		baseDelay:  baseDelay,
		queues:     make(map[string]chan job),
	}
}

// Get performs a GET request with queuing and caching if key is provided.
func (c *Client) Get(ctx context.Context, u, cacheKey string) ([]byte, error) {
	return c.GetWithHeaders(ctx, u, nil, cacheKey)
}

// GetWithHeaders performs a GET request with custom headers and optional caching.
func (c *Client) GetWithHeaders(ctx context.Context, u string, headers map[string]string, cacheKey string) ([]byte, error) {
	parsedURL, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	provider := normalizeProvider(parsedURL.Host)

	// 1. Check Cache (Only if key is provided)
	if cacheKey != "" {
		if val, hit := c.cache.GetCache(ctx, cacheKey); hit {
			c.tracker.TrackCacheHit(provider)
			slog.Debug("Cache Hit", "provider", provider, "key", cacheKey)
			return val, nil
		}
		c.tracker.TrackCacheMiss(provider)
		slog.Debug("Cache Miss", "provider", provider, "key", cacheKey)
	}

	// 2. Enqueue Request
	req, err := http.NewRequestWithContext(ctx, "GET", u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	return c.enqueue(ctx, provider, job{req: req, headers: headers, cacheKey: cacheKey})
}

// PostForm performs a form-encoded POST request with queuing.
func (c *Client) PostForm(ctx context.Context, u string, form url.Values) ([]byte, error) {
	parsedURL, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	provider := normalizeProvider(parsedURL.Host)

	req, err := http.NewRequestWithContext(ctx, "POST", u, bytes.NewReader([]byte(form.Encode())))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	headers := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
	return c.enqueue(ctx, provider, job{req: req, headers: headers})
}

// UserAgent returns the User-Agent applied to queued requests, for
// callers that perform their own (signed) requests.
func (c *Client) UserAgent() string {
	return c.userAgent
}

func (c *Client) enqueue(ctx context.Context, provider string, j job) ([]byte, error) {
	j.respChan = make(chan jobResult, 1)
	c.dispatch(provider, j)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-j.respChan:
		return res.body, res.err
	}
}

func normalizeProvider(host string) string {
	// Group subdomains per wiki farm so each external service gets one
	// serialized queue
	if strings.HasSuffix(host, ".wikimedia.org") || host == "wikimedia.org" {
		return "commons"
	}
	if strings.HasSuffix(host, ".wikidata.org") || host == "wikidata.org" {
		return "wikidata"
	}
	return host
}

// dispatch sends the job to the provider's queue, creating the queue/worker if needed.
func (c *Client) dispatch(provider string, j job) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.queues[provider]
	if !ok {
		// Create new queue and start worker
		q = make(chan job, 100)
		c.queues[provider] = q
		go c.worker(provider, q)
	}

	// We block here if the queue is full, effectively throttling the caller
	select {
	case q <- j:
	case <-j.req.Context().Done():
		// Caller gave up before we could even enqueue
		j.respChan <- jobResult{err: j.req.Context().Err()}
	}
}

// worker processes requests for a specific provider sequentially.
func (c *Client) worker(provider string, q <-chan job) {
	for j := range q {
		// Check context before processing
		if j.req.Context().Err() != nil {
			slog.Warn("Job dropped from queue (context expired)", "provider", provider, "error", j.req.Context().Err())
			j.respChan <- jobResult{err: j.req.Context().Err()}
			continue
		}

		// Apply User-Agent (Default if not provided)
		uaMatch := false
		for k, v := range j.headers {
			j.req.Header.Set(k, v)
			if http.CanonicalHeaderKey(k) == "User-Agent" {
				uaMatch = true
			}
		}
		if !uaMatch && j.req.Header.Get("User-Agent") == "" {
			j.req.Header.Set("User-Agent", c.userAgent)
		}

		body, err := c.executeWithBackoff(j.req)

		if err == nil {
			c.tracker.TrackAPISuccess(provider)
			// Cache result (Only if key is provided)
			if j.cacheKey != "" {
				if err := c.cache.SetCache(context.Background(), j.cacheKey, body); err != nil {
					slog.Error("Failed to cache response", "url", j.req.URL, "error", err)
				}
			}
		} else {
			c.tracker.TrackAPIFailure(provider)
		}

		j.respChan <- jobResult{body: body, err: err}

		// Hardcoded safety gap to prevent hitting rate limits
		time.Sleep(100 * time.Millisecond)
	}
}

// executeWithBackoff attempts the request with exponential backoff on retryable errors.
func (c *Client) executeWithBackoff(req *http.Request) ([]byte, error) {
	for attempt := 0; attempt < c.retries; attempt++ {
		// Verify context is still alive before dialing
		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}

		slog.Debug("Network Request", "host", req.URL.Host, "path", req.URL.Path, "attempt", attempt+1)
		resp, err := c.httpClient.Do(req)

		if err != nil {
			// Check if the error is a context cancellation from OUR side
			if req.Context().Err() != nil {
				return nil, req.Context().Err()
			}

			// Otherwise, it's a network error or server timeout
			slog.Warn("Request failed, retrying", "url", req.URL, "attempt", attempt+1, "error", err)

			if waitErr := c.sleepBackoff(req.Context(), attempt); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		// Handle Status Codes
		if resp.StatusCode == 429 || (resp.StatusCode >= 500 && resp.StatusCode < 600) {
			resp.Body.Close()
			slog.Warn("API Backoff", "status", resp.StatusCode, "url", req.URL, "attempt", attempt+1)

			if waitErr := c.sleepBackoff(req.Context(), attempt); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, fmt.Errorf("api error: status %d", resp.StatusCode)
		}

		// Success
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded")
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	sleepDur := time.Duration(math.Pow(2, float64(attempt))) * c.baseDelay
	select {
	case <-time.After(sleepDur):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
