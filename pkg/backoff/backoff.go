// Package backoff provides the wait policies used between fetch attempts and
// between batches. Policies hand out fresh cenkalti/backoff schedules so one
// policy value can be shared by every worker.
package backoff

import (
	"context"
	"fmt"
	"strings"
	"time"

	cbackoff "github.com/cenkalti/backoff"
)

// Kind names a policy family in configuration.
type Kind string

const (
	KindConstant    Kind = "constant"
	KindExponential Kind = "exponential"
	KindJittered    Kind = "jittered"
)

// Policy produces a new wait schedule for one retry sequence.
type Policy interface {
	NewBackOff() cbackoff.BackOff
}

// Config describes a policy in configuration terms.
type Config struct {
	Kind       Kind          `mapstructure:"kind"`
	Interval   time.Duration `mapstructure:"interval"`
	Max        time.Duration `mapstructure:"max"`
	Multiplier float64       `mapstructure:"multiplier"`
	// Jitter is the randomization factor for jittered policies (0..1).
	Jitter float64 `mapstructure:"jitter"`
}

// New builds the policy described by cfg.
func New(cfg Config) (Policy, error) {
	if cfg.Interval < 0 {
		return nil, fmt.Errorf("backoff interval must be >= 0 (got %s)", cfg.Interval)
	}

	switch Kind(strings.ToLower(string(cfg.Kind))) {
	case "", KindConstant:
		return Constant(cfg.Interval), nil
	case KindExponential:
		return Exponential(cfg.Interval, cfg.Max, cfg.Multiplier), nil
	case KindJittered:
		if cfg.Jitter < 0 || cfg.Jitter > 1 {
			return nil, fmt.Errorf("jitter must be within [0,1] (got %v)", cfg.Jitter)
		}
		return Jittered(cfg.Interval, cfg.Max, cfg.Multiplier, cfg.Jitter), nil
	default:
		return nil, fmt.Errorf("unknown backoff kind %q", cfg.Kind)
	}
}

// ConstantPolicy waits the same interval every time.
type ConstantPolicy struct {
	Interval time.Duration
}

// Constant returns a policy with a fixed interval.
func Constant(d time.Duration) ConstantPolicy {
	return ConstantPolicy{Interval: d}
}

// NewBackOff implements Policy.
func (p ConstantPolicy) NewBackOff() cbackoff.BackOff {
	if p.Interval <= 0 {
		return &cbackoff.ZeroBackOff{}
	}
	return cbackoff.NewConstantBackOff(p.Interval)
}

// ExponentialPolicy grows the interval by Multiplier up to Max, optionally
// randomized by Jitter.
type ExponentialPolicy struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// Exponential returns a deterministic exponential policy.
func Exponential(initial, max time.Duration, multiplier float64) ExponentialPolicy {
	return ExponentialPolicy{Initial: initial, Max: max, Multiplier: multiplier}
}

// Jittered returns an exponential policy randomized by ±jitter. A multiplier of 1
// gives a jittered constant interval.
func Jittered(initial, max time.Duration, multiplier, jitter float64) ExponentialPolicy {
	return ExponentialPolicy{Initial: initial, Max: max, Multiplier: multiplier, Jitter: jitter}
}

// NewBackOff implements Policy.
func (p ExponentialPolicy) NewBackOff() cbackoff.BackOff {
	if p.Initial <= 0 {
		return &cbackoff.ZeroBackOff{}
	}

	b := cbackoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	b.Multiplier = p.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = 2.0
	}
	b.MaxInterval = p.Max
	if b.MaxInterval < p.Initial {
		b.MaxInterval = p.Initial
	}
	b.RandomizationFactor = p.Jitter
	// Attempt limits are owned by the caller, never by elapsed time.
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Next returns the next wait of b, mapping cbackoff.Stop to zero.
func Next(b cbackoff.BackOff) time.Duration {
	d := b.NextBackOff()
	if d == cbackoff.Stop || d < 0 {
		return 0
	}
	return d
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
