package transport

import (
	"math"
	"time"
)

// Backoff holds the per-class reconnect delay policy.
type Backoff struct {
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ServerBaseDelay time.Duration
	ServerMaxDelay  time.Duration
	Multiplier      float64
	// Jitter is the largest fraction of the delay added at random. Jitter
	// never shortens a delay below the computed minimum.
	Jitter float64
}

// DefaultBackoff returns the stock reconnect policy.
func DefaultBackoff() Backoff {
	return Backoff{
		BaseDelay:       2 * time.Second,
		MaxDelay:        30 * time.Second,
		ServerBaseDelay: 5 * time.Second,
		ServerMaxDelay:  2 * time.Minute,
		Multiplier:      2,
		Jitter:          0.1,
	}
}

// Min returns the delay before attempt (1-based) of the given class without
// jitter: base*multiplier^(attempt-1), capped at the class maximum.
func (b Backoff) Min(class Class, attempt int) time.Duration {
	base, ceiling := b.BaseDelay, b.MaxDelay
	if class == Server {
		base, ceiling = b.ServerBaseDelay, b.ServerMaxDelay
	}
	if attempt < 1 {
		attempt = 1
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(base) * math.Pow(mult, float64(attempt-1))
	if ceiling > 0 && d > float64(ceiling) {
		d = float64(ceiling)
	}
	return time.Duration(d)
}

// Delay returns Min plus jitter, where r is uniform in [0,1).
func (b Backoff) Delay(class Class, attempt int, r float64) time.Duration {
	d := b.Min(class, attempt)
	if b.Jitter > 0 && r > 0 {
		d += time.Duration(float64(d) * b.Jitter * r)
	}
	return d
}
