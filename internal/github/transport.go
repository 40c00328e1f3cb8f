package github

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// maxRetries is the total number of attempts made for one request.
	maxRetries             = 3
	defaultInitialInterval = 500 * time.Millisecond
	maxRateLimitWait       = time.Minute
)

// retryTransport retries server errors with exponential backoff and waits out
// rate-limit responses before trying again.
type retryTransport struct {
	base            http.RoundTripper
	logger          *slog.Logger
	maxRetries      int
	initialInterval time.Duration
	maxWait         time.Duration
}

func newRetryTransport(base http.RoundTripper, logger *slog.Logger) *retryTransport {
	return &retryTransport{
		base:            base,
		logger:          logger,
		maxRetries:      maxRetries,
		initialInterval: defaultInitialInterval,
		maxWait:         maxRateLimitWait,
	}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Only bodiless requests can be replayed safely.
	if req.Body != nil && req.Body != http.NoBody {
		return t.base.RoundTrip(req)
	}

	ctx := req.Context()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.initialInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(t.maxRetries-1)), ctx)

	var (
		resp    *http.Response
		attempt int
	)

	err := backoff.Retry(func() error {
		attempt++

		r, err := t.base.RoundTrip(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			t.logger.Debug("Request failed, retrying", "url", req.URL.String(), "attempt", attempt, "error", err)
			return err
		}

		if !shouldRetry(r) || attempt >= t.maxRetries {
			resp = r
			return nil
		}

		wait := rateLimitWait(r, t.maxWait)
		drainAndClose(r)
		t.logger.Debug("Retryable response", "url", req.URL.String(), "status", r.StatusCode, "attempt", attempt, "wait", wait)

		if wait > 0 {
			if err := sleep(ctx, wait); err != nil {
				return backoff.Permanent(err)
			}
		}
		return fmt.Errorf("retryable status %d", r.StatusCode)
	}, policy)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func shouldRetry(r *http.Response) bool {
	switch {
	case r.StatusCode >= http.StatusInternalServerError:
		return true
	case r.StatusCode == http.StatusTooManyRequests:
		return true
	case r.StatusCode == http.StatusForbidden:
		return r.Header.Get("Retry-After") != "" || r.Header.Get("X-RateLimit-Remaining") == "0"
	}
	return false
}

// rateLimitWait returns how long the server asked us to wait, capped at limit.
func rateLimitWait(r *http.Response, limit time.Duration) time.Duration {
	var wait time.Duration

	if v := r.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			wait = time.Duration(secs) * time.Second
		}
	} else if v := r.Header.Get("X-RateLimit-Reset"); v != "" && r.Header.Get("X-RateLimit-Remaining") == "0" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			wait = time.Until(time.Unix(unix, 0))
		}
	}

	if wait < 0 {
		return 0
	}
	if wait > limit {
		return limit
	}
	return wait
}

func drainAndClose(r *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, 64<<10))
	_ = r.Body.Close()
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
