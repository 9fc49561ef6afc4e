// Package backoff provides exponential backoff calculation.
package backoff

import (
	"math"
	"time"
)

// DefaultInitial is the base delay used when Config.Initial is unset.
const DefaultInitial = time.Second

// Config for exponential backoff.
type Config struct {
	Initial time.Duration // default: 1s
	Max     time.Duration // zero or negative: uncapped
}

// Exponential calculates exponential backoff for a given attempt.
// Attempt 1 returns initial, attempt 2 returns initial*2, etc.
func Exponential(attempt int, cfg *Config) time.Duration {
	initial := DefaultInitial
	var maxBackoff time.Duration
	if cfg != nil {
		if cfg.Initial > 0 {
			initial = cfg.Initial
		}
		maxBackoff = cfg.Max
	}

	if attempt < 1 {
		return initial
	}
	backoff := float64(initial) * math.Pow(2.0, float64(attempt-1))
	if maxBackoff > 0 && backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}
	if backoff >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(backoff)
}

