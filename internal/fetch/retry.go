package fetch

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryPolicy controls the single retry DoWithRetry performs.
type RetryPolicy struct {
	// Retry429 waits Retry-After (capped at Max429Wait) and retries once.
	Retry429   bool
	Max429Wait time.Duration
	// Retry5xx waits Backoff5xx and retries once.
	Retry5xx   bool
	Backoff5xx time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	Retry429:   true,
	Max429Wait: 30 * time.Second,
	Retry5xx:   true,
	Backoff5xx: time.Second,
}

func retryable(code int, p RetryPolicy) (bool, func(*http.Response) time.Duration) {
	switch {
	case code == http.StatusTooManyRequests && p.Retry429:
		return true, func(r *http.Response) time.Duration {
			return parseRetryAfter(r.Header.Get("Retry-After"), p.Max429Wait)
		}
	case code >= 500 && p.Retry5xx:
		return true, func(*http.Response) time.Duration { return p.Backoff5xx }
	}
	return false, nil
}

// DoWithRetry performs a body-less req and retries it once on 429 or 5xx
// when the policy allows. Other 4xx responses are returned as is. The caller
// closes resp.Body when err is nil.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, policy RetryPolicy) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	ok, wait := retryable(resp.StatusCode, policy)
	if !ok {
		return resp, nil
	}

	d := wait(resp)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(d):
	}

	req2, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), nil)
	if err != nil {
		return nil, err
	}
	req2.Header = req.Header.Clone()
	return client.Do(req2)
}

// parseRetryAfter reads seconds or an HTTP date, capped at limit.
func parseRetryAfter(s string, limit time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Second
	}
	if sec, err := strconv.Atoi(s); err == nil && sec >= 0 {
		return min(time.Duration(sec)*time.Second, limit)
	}
	t, err := http.ParseTime(s)
	if err != nil {
		return time.Second
	}
	return min(max(time.Until(t), 0), limit)
}
