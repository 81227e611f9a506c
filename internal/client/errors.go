package client

import "time"

// TransportError means the request never produced an admission decision:
// connection refused, timeout, DNS. Recoverable by queueing.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "transport failure: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RestrictedError is the cooldown rejection: the subject already has an
// accepted check-in inside the window. A normal outcome, not a failure.
type RestrictedError struct {
	Message         string
	EmployeeID      string
	LastCheckInTime *time.Time
	CooldownEndsAt  *time.Time
	EntityType      string
}

func (e *RestrictedError) Error() string {
	return e.Message
}

// NotFoundError means no employee or contractor matches the reference
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

// ValidationError means the request was malformed and can never succeed
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// BackendError covers any other non-2xx response
type BackendError struct {
	Message    string
	StatusCode int
}

func (e *BackendError) Error() string {
	return e.Message
}
