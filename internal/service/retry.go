package service

import "time"

// RetryPolicy bounds transport-level retries during queue replay: a fixed
// attempt budget with exponential backoff between attempts.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration

	sleep func(time.Duration)
}

// NewRetryPolicy creates a retry policy
func NewRetryPolicy(maxAttempts int, backoff time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		Backoff:     backoff,
		sleep:       time.Sleep,
	}
}

// Do runs op up to MaxAttempts times, retrying only while retryable
// classifies the error as transient. Returns the last error.
func (p RetryPolicy) Do(op func() error, retryable func(error) bool) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	pause := p.sleep
	if pause == nil {
		pause = time.Sleep
	}

	var err error
	delay := p.Backoff
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op()
		if err == nil || !retryable(err) {
			return err
		}
		if attempt < attempts && delay > 0 {
			pause(delay)
			delay *= 2
		}
	}
	return err
}
