// Package backend is the REST client for the task-execution service that
// owns authoritative bundle state.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/syntrixbase/bundlesync/internal/bundle"
)

// Client fetches authoritative bundle state.
type Client interface {
	// FetchAll returns every bundle known to the backend.
	FetchAll(ctx context.Context) ([]bundle.Snapshot, error)
	// FetchBundle returns one bundle, or an error matching ErrNotFound when
	// the backend no longer has it.
	FetchBundle(ctx context.Context, id string) (bundle.Snapshot, error)
	// FetchManifestPaths returns the resource paths listed in a bundle's manifest.
	FetchManifestPaths(ctx context.Context, id string) ([]string, error)
}

// HTTPClient implements Client over HTTP with bounded retries.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     *slog.Logger
}

// NewHTTPClient creates a client. A nil httpClient gets one with cfg.Timeout.
func NewHTTPClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *HTTPClient {
	cfg.ApplyDefaults()
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		token:      strings.TrimSpace(cfg.Token),
		httpClient: httpClient,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.RetryBaseDelay,
		maxDelay:   cfg.RetryMaxDelay,
		logger:     logger.With("component", "backend"),
	}
}

func (c *HTTPClient) FetchAll(ctx context.Context) ([]bundle.Snapshot, error) {
	var out []bundle.Snapshot
	if err := c.getJSON(ctx, "fetch_all", "/api/bundles", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) FetchBundle(ctx context.Context, id string) (bundle.Snapshot, error) {
	var out bundle.Snapshot
	if err := c.getJSON(ctx, "fetch_bundle", "/api/bundles/"+url.PathEscape(id), &out); err != nil {
		return bundle.Snapshot{}, err
	}
	if out.ID == "" {
		out.ID = id
	}
	return out, nil
}

type manifestResponse struct {
	ResourcePaths []string `json:"resourcePaths"`
}

func (c *HTTPClient) FetchManifestPaths(ctx context.Context, id string) ([]string, error) {
	var out manifestResponse
	if err := c.getJSON(ctx, "fetch_manifest", "/api/bundles/"+url.PathEscape(id)+"/manifest", &out); err != nil {
		return nil, err
	}
	return out.ResourcePaths, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, op, requestPath string, out any) error {
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+requestPath, nil)
		if err != nil {
			return err
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Correlation-Id", uuid.NewString())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if attempt < c.maxRetries {
				c.logger.Debug("Retrying request", "op", op, "attempt", attempt+1, "error", err)
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return &TransientError{Op: op, Err: err}
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return &TransientError{Op: op, Err: readErr}
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(payload) == 0 {
				return nil
			}
			if err := json.Unmarshal(payload, out); err != nil {
				return fmt.Errorf("%s: decode response: %w", op, err)
			}
			return nil
		}

		if isRetryableStatus(resp.StatusCode) && attempt < c.maxRetries {
			c.logger.Debug("Retrying request", "op", op, "attempt", attempt+1, "status", resp.StatusCode)
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}

		var errPayload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(payload, &errPayload)
		httpErr := &HTTPError{StatusCode: resp.StatusCode, Code: errPayload.Code, Message: errPayload.Message}
		if isRetryableStatus(resp.StatusCode) {
			return &TransientError{Op: op, Err: httpErr}
		}
		return httpErr
	}
}

func (c *HTTPClient) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	maxDelay := c.maxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		return min(retryAfter, maxDelay)
	}
	delay := c.baseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return min(delay, maxDelay)
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := http.ParseTime(header); err == nil {
		if delta := time.Until(ts); delta > 0 {
			return delta
		}
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsNotFound reports whether err means the bundle is gone.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
