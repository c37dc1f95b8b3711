package collector

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// PollClient wraps retryablehttp with the rate-limit awareness spec.md
// §4.5(d)/§5 requires: HTTP 429 handling and Ratelimit-Remaining/
// Ratelimit-Reset header deferral.
type PollClient struct {
	client *retryablehttp.Client
	log    *zap.Logger
}

// NewPollClient builds a PollClient logging through log, retrying
// transient failures with retryablehttp's default exponential backoff.
func NewPollClient(log *zap.Logger) *PollClient {
	rc := retryablehttp.NewClient()
	rc.Logger = nil // route through zap ourselves rather than retryablehttp's leveled logger shim
	rc.RetryMax = 5
	rc.RetryWaitMin = time.Second
	rc.RetryWaitMax = 30 * time.Second
	return &PollClient{client: rc, log: log}
}

// Do issues req, honoring the target API's rate-limit feedback. When
// Ratelimit-Remaining is exhausted it sleeps until Ratelimit-Reset (or 60s
// if absent) and then returns the response; on a 429 it sleeps the same way
// and then reissues req itself, per spec.md §5 "On HTTP 429, the collector honors the reset header (or
// defaults to 60s) and retries."
func (p *PollClient) Do(ctx context.Context, req *retryablehttp.Request) (*http.Response, error) {
	resp, err := p.client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, err
	}

	if remaining := resp.Header.Get("Ratelimit-Remaining"); remaining != "" {
		if n, parseErr := strconv.Atoi(remaining); parseErr == nil && n <= 0 {
			p.waitForReset(ctx, resp.Header.Get("Ratelimit-Reset"))
		}
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		p.waitForReset(ctx, resp.Header.Get("Ratelimit-Reset"))
		return p.Do(ctx, req)
	}
	return resp, nil
}

func (p *PollClient) waitForReset(ctx context.Context, resetHeader string) {
	wait := 60 * time.Second
	if resetHeader != "" {
		if secs, err := strconv.Atoi(resetHeader); err == nil && secs > 0 {
			wait = time.Duration(secs) * time.Second
		}
	}
	p.log.Warn("collector: rate limited, deferring", zap.Duration("wait", wait))
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
