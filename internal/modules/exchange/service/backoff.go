package service

import "time"

// Backoff экспоненциальная пауза между попытками переподключения:
// Min, Min*Factor, Min*Factor^2... но не больше Max.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64
}

func DefaultBackoff() Backoff {
	return Backoff{Min: time.Second, Max: 30 * time.Second, Factor: 2}
}

// Next пауза перед попыткой attempt (с 1).
func (b Backoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	min := b.Min
	if min <= 0 {
		min = time.Second
	}
	max := b.Max
	if max <= 0 {
		max = 30 * time.Second
	}
	factor := b.Factor
	if factor <= 1 {
		factor = 2
	}

	wait := min
	for i := 1; i < attempt; i++ {
		next := time.Duration(float64(wait) * factor)
		if next >= max {
			return max
		}
		wait = next
	}
	if wait > max {
		return max
	}
	return wait
}
