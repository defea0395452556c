package statsapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cam3ron2/gh-dashboard/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerScope = "gh-dashboard/internal/statsapi"

// RetryConfig configures backend request retries.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// HTTPDoer is implemented by http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CallMetadata reports execution metadata for a client call.
type CallMetadata struct {
	Attempts        int
	LastRateHeaders RateLimitHeaders
	LastDecision    Decision
}

// Client wraps backend HTTP requests with retry and rate-limit controls.
type Client struct {
	doer       HTTPDoer
	retry      RetryConfig
	ratePolicy RateLimitPolicy
	// Sleep is injected for testability. It returns early with the context error.
	Sleep func(ctx context.Context, duration time.Duration) error
}

// NewClient creates a retrying request client.
func NewClient(doer HTTPDoer, retry RetryConfig, ratePolicy RateLimitPolicy) *Client {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	return &Client{
		doer:       doer,
		retry:      retry,
		ratePolicy: ratePolicy,
		Sleep:      sleepContext,
	}
}

// Do executes a request with retry and rate-limit awareness. A response is returned for the
// final attempt even when its status is a failure; callers map the status.
func (c *Client) Do(req *http.Request) (*http.Response, CallMetadata, error) {
	if req == nil {
		return nil, CallMetadata{}, fmt.Errorf("request is nil")
	}

	ctx, span := telemetry.StartSpan(
		req.Context(),
		tracerScope,
		"statsapi.client.do",
		attribute.String("http.method", req.Method),
		attribute.String("http.path", req.URL.EscapedPath()),
		attribute.Int("statsapi.max_attempts", c.retry.MaxAttempts),
	)
	defer span.End()

	metadata := CallMetadata{}
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		metadata.Attempts = attempt

		resp, err := c.doer.Do(req.Clone(ctx))
		if err != nil {
			span.RecordError(err)
			span.AddEvent("attempt_failed", trace.WithAttributes(attribute.Int("statsapi.attempt", attempt)))
			if attempt == c.retry.MaxAttempts || ctx.Err() != nil {
				span.SetStatus(codes.Error, err.Error())
				return nil, metadata, err
			}
			if sleepErr := c.Sleep(ctx, backoffForAttempt(c.retry, attempt)); sleepErr != nil {
				span.SetStatus(codes.Error, sleepErr.Error())
				return nil, metadata, sleepErr
			}
			continue
		}

		headers := ParseRateLimitHeaders(resp.Header, resp.StatusCode)
		metadata.LastRateHeaders = headers
		decision := c.ratePolicy.Evaluate(headers)
		metadata.LastDecision = decision

		span.AddEvent("attempt_completed", trace.WithAttributes(
			attribute.Int("statsapi.attempt", attempt),
			attribute.Int("http.status_code", resp.StatusCode),
			attribute.Int("statsapi.rate_limit_remaining", headers.Remaining),
			attribute.Bool("statsapi.rate_limit_allow", decision.Allow),
			attribute.String("statsapi.rate_limit_reason", decision.Reason),
		))

		retryable := !decision.Allow || (isTransientStatus(resp.StatusCode) && !headers.Throttled)
		if !retryable || attempt == c.retry.MaxAttempts {
			if resp.StatusCode >= http.StatusBadRequest {
				span.SetStatus(codes.Error, fmt.Sprintf("status %d", resp.StatusCode))
			} else {
				span.SetStatus(codes.Ok, "request completed")
			}
			return resp, metadata, nil
		}

		closeBody(resp)
		wait := decision.WaitFor
		if decision.Allow {
			wait = backoffForAttempt(c.retry, attempt)
		}
		if sleepErr := c.Sleep(ctx, wait); sleepErr != nil {
			span.SetStatus(codes.Error, sleepErr.Error())
			return nil, metadata, sleepErr
		}
	}

	span.SetStatus(codes.Error, "request attempts exhausted")
	return nil, metadata, fmt.Errorf("request attempts exhausted")
}

func isTransientStatus(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	return statusCode >= 500 && statusCode <= 599
}

func backoffForAttempt(retry RetryConfig, attempt int) time.Duration {
	backoff := retry.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if retry.MaxBackoff > 0 && backoff > retry.MaxBackoff {
			return retry.MaxBackoff
		}
	}
	if retry.MaxBackoff > 0 && backoff > retry.MaxBackoff {
		return retry.MaxBackoff
	}
	return backoff
}

func sleepContext(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func closeBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
}
