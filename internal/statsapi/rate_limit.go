package statsapi

import (
	"net/http"
	"strconv"
	"time"
)

// RateLimitHeaders contains parsed rate-limit response headers. The stats backend relays
// GitHub's headers and adds Retry-After on its own 429 responses.
type RateLimitHeaders struct {
	Present    bool
	Remaining  int
	ResetUnix  int64
	RetryAfter time.Duration
	Throttled  bool
	StatusCode int
}

// Decision represents a rate-limit action decision.
type Decision struct {
	Allow   bool
	WaitFor time.Duration
	Reason  string
}

// RateLimitPolicy evaluates rate-limit actions from parsed headers.
//
// The dashboard is interactive, so waits longer than MaxWait are not taken: the throttled
// response is surfaced to the widget instead and the user can retry.
type RateLimitPolicy struct {
	MinRemaining    int
	ThrottleBackoff time.Duration
	MaxWait         time.Duration
	Now             func() time.Time
}

// ParseRateLimitHeaders parses rate-limit and retry headers.
func ParseRateLimitHeaders(header http.Header, statusCode int) RateLimitHeaders {
	parsed := RateLimitHeaders{StatusCode: statusCode}
	if raw := header.Get("X-RateLimit-Remaining"); raw != "" {
		parsed.Present = true
		parsed.Remaining = parseInt(raw)
		parsed.ResetUnix = parseInt64(header.Get("X-RateLimit-Reset"))
	}
	if seconds := parseInt(header.Get("Retry-After")); seconds > 0 {
		parsed.RetryAfter = time.Duration(seconds) * time.Second
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		parsed.Throttled = true
	case statusCode == http.StatusForbidden && (parsed.RetryAfter > 0 || (parsed.Present && parsed.Remaining == 0)):
		parsed.Throttled = true
	}
	return parsed
}

// Evaluate decides whether the response may be used or the call should pause and retry.
func (p RateLimitPolicy) Evaluate(headers RateLimitHeaders) Decision {
	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}

	if headers.Throttled {
		waitFor := p.ThrottleBackoff
		if headers.RetryAfter > waitFor {
			waitFor = headers.RetryAfter
		}
		if resetAt := time.Unix(headers.ResetUnix, 0); headers.ResetUnix > 0 && resetAt.After(now) {
			if untilReset := resetAt.Sub(now); untilReset > waitFor {
				waitFor = untilReset
			}
		}
		return p.bounded(Decision{Allow: false, WaitFor: waitFor, Reason: "throttled"})
	}

	if !headers.Present || headers.Remaining >= p.MinRemaining {
		return Decision{Allow: true, Reason: "within_budget"}
	}

	// Below the floor the response itself is still good; only following calls are at risk.
	return Decision{Allow: true, Reason: "budget_low"}
}

func (p RateLimitPolicy) bounded(decision Decision) Decision {
	if p.MaxWait > 0 && decision.WaitFor > p.MaxWait {
		decision.Reason = "wait_exceeds_limit"
		decision.WaitFor = 0
		decision.Allow = true
	}
	return decision
}

func parseInt(raw string) int {
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}

func parseInt64(raw string) int64 {
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
