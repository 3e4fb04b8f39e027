package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/lox/gridprep/internal/metrics"
)

// StatusError is returned for a non-success HTTP status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether a status is worth retrying.
func Retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Fetcher performs rate-limited GET requests against one data source,
// retrying transport failures, 429 and 5xx responses with exponential
// backoff.
type Fetcher struct {
	Source      string
	Client      *http.Client
	Limiter     *rate.Limiter
	MaxAttempts int
	// InitialInterval overrides the first backoff delay when non-zero.
	InitialInterval time.Duration
}

// NewFetcher allows one request per minInterval.
func NewFetcher(source string, minInterval time.Duration, maxAttempts int) *Fetcher {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &Fetcher{
		Source:      source,
		Client:      NewClient(),
		Limiter:     rate.NewLimiter(limit, 1),
		MaxAttempts: maxAttempts,
	}
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
}

// Get fetches url. Successful statuses are 200 and 206.
func (f *Fetcher) Get(ctx context.Context, url string, header http.Header) (*Response, error) {
	var out *Response
	operation := func() error {
		if err := f.Limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		for k, v := range header {
			req.Header[k] = v
		}

		start := time.Now()
		resp, err := f.Client.Do(req)
		metrics.APILatency.WithLabelValues(f.Source).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.APICallsTotal.WithLabelValues(f.Source, "error").Inc()
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("%s: %w", f.Source, err)
		}
		defer resp.Body.Close()
		metrics.APICallsTotal.WithLabelValues(f.Source, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			serr := &StatusError{StatusCode: resp.StatusCode, Body: string(b)}
			if Retryable(resp.StatusCode) {
				return serr
			}
			return backoff.Permanent(serr)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		out = &Response{StatusCode: resp.StatusCode, Body: body}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	if f.InitialInterval > 0 {
		bo.InitialInterval = f.InitialInterval
	}
	attempts := f.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return out, nil
}
