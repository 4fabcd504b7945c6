// Package retry centralizes the "external call" primitive referenced in
// Design Note §9: one timeout/retry/backoff/jitter policy, reused by the
// gateway client, the upstream catalog client, and the LLM client instead
// of each one sprinkling its own sleep/try loop (the smell the teacher
// itself exhibits across webhook.go, chatwoot.go and data_scraper.py).
package retry

import (
	"context"
	"math/rand"
	"time"

	retrygo "github.com/avast/retry-go/v4"
)

// Policy parameterizes a single external-call retry loop.
type Policy struct {
	MaxAttempts   int           // total attempts including the first, default 4
	BaseDelay     time.Duration // default 1s
	Factor        float64       // exponential backoff multiplier, default 2.0
	JitterMinPct  float64       // default 0.5 (50%)
	JitterMaxPct  float64       // default 1.5 (150%)
	Timeout       time.Duration // per-attempt timeout, 0 disables
	IsRetryable   func(error) bool
}

// DefaultPolicy matches spec §4.10's "generic GETs" policy: 3 retries,
// base 1s, factor 2, 50-150% jitter, retryable on 429/502/503/504/5xx.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  4, // 1 initial + 3 retries
		BaseDelay:    1 * time.Second,
		Factor:       2.0,
		JitterMinPct: 0.5,
		JitterMaxPct: 1.5,
		Timeout:      30 * time.Second,
		IsRetryable:  IsRetryableStatus,
	}
}

// StatusError is implemented by errors that carry an upstream HTTP status,
// allowing IsRetryableStatus to inspect it without a type assertion at
// every call site.
type StatusError interface {
	error
	HTTPStatus() int
}

// IsRetryableStatus implements the generic-GET retry predicate: 429 and
// any 5xx are retryable, 4xx (other than 429) are not.
func IsRetryableStatus(err error) bool {
	se, ok := err.(StatusError)
	if !ok {
		// network errors / timeouts with no status attached are retryable
		return true
	}
	status := se.HTTPStatus()
	if status == 429 {
		return true
	}
	return status >= 500 && status < 600
}

// IsRetryableProductStatus implements the product-GET exception from
// spec §4.10: upstream occasionally returns transient 400/404 for valid
// brand ids, so those are retried too, in addition to the generic set.
func IsRetryableProductStatus(err error) bool {
	se, ok := err.(StatusError)
	if !ok {
		return true
	}
	status := se.HTTPStatus()
	if status == 400 || status == 404 || status == 429 {
		return true
	}
	return status >= 500 && status < 600
}

// Do runs fn under the policy, applying exponential backoff with jitter
// between attempts and honoring ctx cancellation.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	retryable := p.IsRetryable
	if retryable == nil {
		retryable = IsRetryableStatus
	}

	call := func() error {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if p.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
			defer cancel()
		}
		return fn(attemptCtx)
	}

	delayFn := func(n uint, err error, cfg *retrygo.Config) time.Duration {
		base := p.BaseDelay
		if base <= 0 {
			base = time.Second
		}
		factor := p.Factor
		if factor <= 0 {
			factor = 2.0
		}
		d := float64(base) * pow(factor, float64(n))
		minPct, maxPct := p.JitterMinPct, p.JitterMaxPct
		if minPct <= 0 && maxPct <= 0 {
			minPct, maxPct = 1, 1
		}
		jitter := minPct + rand.Float64()*(maxPct-minPct)
		return time.Duration(d * jitter)
	}

	return retrygo.Do(
		call,
		retrygo.Context(ctx),
		retrygo.Attempts(uint(p.MaxAttempts)),
		retrygo.RetryIf(retryable),
		retrygo.DelayType(delayFn),
		retrygo.LastErrorOnly(true),
	)
}

func pow(base, exp float64) float64 {
	result := 1.0
	for i := 0; i < int(exp); i++ {
		result *= base
	}
	return result
}
