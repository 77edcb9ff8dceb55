package session

import (
	"math/rand"
	"time"
)

// NextBackoffDelay returns how long the supervisor waits before redial N
// (1-based). The first redial waits InitialDelay; each later one grows by
// Multiplier up to MaxDelay. With Jitter the grown delay is scaled by a
// factor in [0.5, 1.5); a nil rng uses the low end.
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 || cfg.InitialDelay <= 0 {
		return max(cfg.InitialDelay, 0)
	}
	mult := max(cfg.Multiplier, 1)
	limit := float64(cfg.MaxDelay)

	d := float64(cfg.InitialDelay)
	for range attempt - 1 {
		d *= mult
		if limit > 0 && d >= limit {
			d = limit
			break
		}
	}
	if !cfg.Jitter {
		return time.Duration(d)
	}
	scale := 0.5
	if rng != nil {
		scale += rng.Float64()
	}
	return time.Duration(d * scale)
}
