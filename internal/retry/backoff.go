package retry

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

// Backoff computes the raw delay before the next attempt. attempt is the
// 1-based number of the attempt that just failed.
type Backoff func(base time.Duration, attempt int) time.Duration

// Constant waits base between every attempt.
func Constant(base time.Duration, _ int) time.Duration {
	return base
}

// Linear waits base, 2*base, 3*base, ...
func Linear(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(attempt)
}

// Exponential waits base, 2*base, 4*base, ...
func Exponential(base time.Duration, attempt int) time.Duration {
	d := float64(base) * math.Pow(2, float64(attempt-1))
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// ParseBackoff resolves a configured backoff shape name.
func ParseBackoff(name string) (Backoff, error) {
	switch strings.ToLower(name) {
	case "", "exponential":
		return Exponential, nil
	case "linear":
		return Linear, nil
	case "constant":
		return Constant, nil
	default:
		return nil, fmt.Errorf("unknown backoff shape %q", name)
	}
}

// delay applies the policy's shape, jitter and floor/ceiling.
func (p Policy) delay(attempt int) time.Duration {
	shape := p.Backoff
	if shape == nil {
		shape = Exponential
	}
	d := shape(p.BaseDelay, attempt)

	if p.Jitter > 0 && d > 0 {
		// Spread by up to ±Jitter (a fraction of d).
		spread := float64(d) * p.Jitter
		d += time.Duration((rand.Float64()*2 - 1) * spread)
	}

	if d < p.MinDelay {
		d = p.MinDelay
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}
