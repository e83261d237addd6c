package session

import "time"

type RetryPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

var DefaultHandshakePolicy = RetryPolicy{
	Interval:    time.Second,
	MaxAttempts: 10,
}

// Retry tracks attempts against a policy. It never sleeps; the owner asks it
// every frame whether the current attempt has expired.
type Retry struct {
	Policy RetryPolicy

	attempts int
	deadline time.Time
}

func NewRetry(policy RetryPolicy) *Retry {
	if policy.Interval <= 0 {
		policy.Interval = DefaultHandshakePolicy.Interval
	}
	return &Retry{Policy: policy}
}

// Begin records an attempt made at now and arms the deadline for it.
func (r *Retry) Begin(now time.Time) {
	r.attempts++
	r.deadline = now.Add(r.Policy.Interval)
}

func (r *Retry) Expired(now time.Time) bool {
	return r.attempts > 0 && !now.Before(r.deadline)
}

// Exhausted reports whether no further attempt is allowed. A MaxAttempts of
// zero never gives up.
func (r *Retry) Exhausted() bool {
	return r.Policy.MaxAttempts > 0 && r.attempts >= r.Policy.MaxAttempts
}

func (r *Retry) Attempts() int {
	return r.attempts
}

func (r *Retry) Reset() {
	r.attempts = 0
	r.deadline = time.Time{}
}
