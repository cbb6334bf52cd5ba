// Package ratelimit implements plan-tiered request throttling.
//
// Consumption is tracked in fixed windows per key through a Store whose Take
// operation is a single atomic check-and-increment. Two concurrent requests
// competing for the last slot can never both be admitted, and a rejected
// request never moves the counter.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/config"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/pkg/models"
)

// Key prefixes keep the generation and auth counters independent.
const (
	PrefixGeneration = "ratelimit:llm:"
	PrefixAuth       = "ratelimit:auth:"
)

// ErrStoreUnavailable is returned by a fail-closed Limiter when the counter
// store cannot be reached.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Result is the outcome of a Take.
type Result struct {
	Allowed bool
	Count   int64 // admitted requests in the current window, after this call
	Limit   int64
	ResetIn time.Duration
}

// Store holds the window counters.
type Store interface {
	// Take admits one request for key if fewer than limit requests were
	// admitted in the current window. The check and the increment are one
	// atomic operation.
	Take(ctx context.Context, key string, limit int64, window time.Duration) (Result, error)
}

// Policy is an allowance of Limit requests per Window.
type Policy struct {
	Name   string
	Limit  int64
	Window time.Duration
}

// Policies builds the free, premium and auth policies from configuration.
func Policies(limits config.Limits) (free, premium, auth Policy) {
	g := limits.Generation
	free = Policy{Name: "free", Limit: g.Free, Window: g.Window}
	premium = Policy{Name: "premium", Limit: g.Premium, Window: g.Window}
	auth = Policy{Name: "auth", Limit: limits.Auth.Max, Window: limits.Auth.Window}
	return free, premium, auth
}

// ExceededError is returned when a key has used up its allowance.
type ExceededError struct {
	Policy     Policy
	Key        string
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %s tier allows %d requests per %s",
		e.Policy.Name, e.Policy.Limit, e.Policy.Window)
}

// Limiter applies policies to keys through a Store.
type Limiter struct {
	store    Store
	prefix   string
	failOpen bool
}

// NewLimiter creates a Limiter whose keys are namespaced by prefix. With
// failOpen set, store errors admit the request instead of rejecting it.
func NewLimiter(store Store, prefix string, failOpen bool) *Limiter {
	return &Limiter{store: store, prefix: prefix, failOpen: failOpen}
}

// Allow consumes one slot of p for key. It returns nil when admitted, an
// *ExceededError when the allowance is used up, or ErrStoreUnavailable
// (fail-closed only) when the store errors.
func (l *Limiter) Allow(ctx context.Context, key string, p Policy) error {
	res, err := l.store.Take(ctx, l.prefix+key, p.Limit, p.Window)
	if err != nil {
		log.Printf("ratelimit: %s check for %q failed: %v", p.Name, key, err)
		if l.failOpen {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !res.Allowed {
		return &ExceededError{Policy: p, Key: key, RetryAfter: res.ResetIn}
	}
	return nil
}

// TierLimiter admits principals against the allowance of their plan.
type TierLimiter struct {
	limiter *Limiter
	free    Policy
	premium Policy
}

// NewTierLimiter creates a TierLimiter. The premium allowance is expected to
// exceed the free one; config validation enforces it.
func NewTierLimiter(l *Limiter, free, premium Policy) *TierLimiter {
	return &TierLimiter{limiter: l, free: free, premium: premium}
}

// PolicyFor returns the policy of plan. Unknown plans get the free policy.
func (t *TierLimiter) PolicyFor(plan models.Plan) Policy {
	if plan == models.PlanPremium {
		return t.premium
	}
	return t.free
}

// Admit consumes one generation slot for principal.
func (t *TierLimiter) Admit(ctx context.Context, principal models.Principal, clientIP string) error {
	return t.limiter.Allow(ctx, KeyFor(principal, clientIP), t.PolicyFor(principal.Plan))
}

// KeyFor returns the counter key of a caller: the principal id, or the client
// address when no identity was resolved.
func KeyFor(principal models.Principal, clientIP string) string {
	if principal.ID != "" {
		return principal.ID
	}
	return "ip:" + clientIP
}
