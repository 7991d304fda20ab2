package snapshot

import (
	"math"
	"time"
)

// previous is the last successful raw sample of one domain and the tick
// instant it was taken at.
type previous[T any] struct {
	at    time.Time
	value T
	ok    bool
}

// elapsed returns the seconds between the stored sample and now, or 0 when
// there is no usable previous sample.
func (p *previous[T]) elapsed(now time.Time) float64 {
	if !p.ok {
		return 0
	}
	secs := now.Sub(p.at).Seconds()
	if secs <= 0 {
		return 0
	}
	return secs
}

func (p *previous[T]) store(now time.Time, v T) {
	p.at, p.value, p.ok = now, v, true
}

// perSecond turns two readings of a cumulative counter into a rate. A counter
// that went backwards (reset or wrap) yields 0 for this interval.
func perSecond(prev, cur uint64, elapsed float64) uint64 {
	if elapsed <= 0 || cur < prev {
		return 0
	}
	return uint64(math.Round(float64(cur-prev) / elapsed))
}

// delta returns cur-prev, or 0 and false on regression.
func delta(prev, cur uint64) (uint64, bool) {
	if cur < prev {
		return 0, false
	}
	return cur - prev, true
}

// clampPct bounds a percentage to [0,100]; NaN becomes 0.
func clampPct(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

// resize returns a copy of v with exactly n elements, padding with zeros.
func resize(v []float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, v)
	return out
}
