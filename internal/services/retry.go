package services

import "time"

// RetryPolicy bounds the balance write retries that follow a committed
// transaction insert. Attempt n waits Backoff*n before retrying.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetryPolicy returns the defaults used when nothing is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Backoff: 50 * time.Millisecond}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Backoff < 0 {
		p.Backoff = 0
	}
	return p
}

// do runs fn until it succeeds or the attempts run out, returning the last
// error. onRetry is called before every wait.
func (p RetryPolicy) do(fn func() error, onRetry func(attempt int, err error)) (int, error) {
	p = p.normalized()
	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err = fn(); err == nil {
			return attempt, nil
		}
		if attempt == p.Attempts {
			break
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		time.Sleep(p.Backoff * time.Duration(attempt))
	}
	return p.Attempts, err
}
