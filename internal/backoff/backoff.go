// Package backoff computes retry delays for the retry engine.
package backoff

import (
	"math/rand"
	"time"
)

// Delay returns the exponential backoff delay for a failed attempt
// (1-based): min(max, base * factor^(attempt-1)). Out-of-range inputs are
// clamped so the result is always within [0, max].
func Delay(attempt int, base, max time.Duration, factor float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// Cap the exponent to avoid float overflow on pathological configs.
	if attempt > 31 {
		attempt = 31
	}
	if factor < 1 {
		factor = 1
	}

	d := time.Duration(float64(base) * Pow(factor, attempt-1))
	if d < 0 || d > max {
		d = max
	}
	return d
}

// Jitter perturbs d by up to ±fraction (e.g. 0.1 for ±10%) to avoid
// synchronized retry storms across independent clients. fraction is clamped
// to [0, 1].
func Jitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return d
	}
	if fraction > 1 {
		fraction = 1
	}
	// Uniform in [1-fraction, 1+fraction).
	scale := 1 - fraction + 2*fraction*rand.Float64()
	return time.Duration(float64(d) * scale)
}

// Pow is an integer-exponent power avoiding a math.Pow dependency on the
// hot path.
func Pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
