package winget

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const maxBackoff = 30 * time.Second

// doWithRetry performs a throttled GET, retrying network errors, 5xx and 429 with exponential backoff
func (c *Client) doWithRetry(ctx context.Context, url string, withToken bool) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt-1); err != nil {
				return nil, err
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("waiting for catalog rate limit: %w", err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		if withToken {
			req.Header.Set("Accept", "application/vnd.github+json")
			if c.token != "" {
				req.Header.Set("Authorization", "Bearer "+c.token)
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			lastErr = fmt.Errorf("unexpected status %d", resp.StatusCode)
			slog.WarnContext(ctx, "Catalog request failed, retrying",
				slog.String("url", url),
				slog.Int("status_code", resp.StatusCode),
				slog.Int("attempt", attempt+1),
			)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("request to %s failed after %d attempts: %w", url, c.maxRetries+1, lastErr)
}

func (c *Client) backoff(ctx context.Context, attempt int) error {
	d := c.backoffBase * time.Duration(1<<uint(attempt))
	if d > maxBackoff {
		d = maxBackoff
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
