package camera

import "time"

// ReopenPolicy is the exponential backoff used to reopen a source that
// failed to open or died while running.
type ReopenPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

func (p ReopenPolicy) withDefaults() ReopenPolicy {
	if p.Initial <= 0 {
		p.Initial = time.Second
	}
	if p.Max <= 0 {
		p.Max = 30 * time.Second
	}
	return p
}

// Delay returns the wait after the given number of consecutive failures:
// Initial * 2^(attempt-1), capped at Max.
func (p ReopenPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	delay := p.Initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.Max {
			return p.Max
		}
	}
	return min(delay, p.Max)
}

type reopenState struct {
	policy    ReopenPolicy
	attempts  int
	nextRetry time.Time
}

func (r *reopenState) due(now time.Time) bool {
	return !now.Before(r.nextRetry)
}

func (r *reopenState) failed(now time.Time) time.Duration {
	r.attempts++
	delay := r.policy.Delay(r.attempts)
	r.nextRetry = now.Add(delay)
	return delay
}

func (r *reopenState) reset() {
	r.attempts = 0
	r.nextRetry = time.Time{}
}
