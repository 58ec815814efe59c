package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrBrokerUnavailable is returned when a job cannot be persisted or published
	ErrBrokerUnavailable = errors.New("broker unavailable")

	// ErrJobNotFound is returned when a job cannot be found in the ledger
	ErrJobNotFound = errors.New("job not found")

	// ErrJobFinished is returned when claiming a job that already reached a terminal state
	ErrJobFinished = errors.New("job already finished")

	// ErrJobNotFailed is returned when requeueing a job that is not in the failed state
	ErrJobNotFailed = errors.New("job is not in failed state")

	// ErrJobInProgress is returned when deleting a job that may still run
	ErrJobInProgress = errors.New("job is waiting or active")

	// ErrInvalidPayload is returned when job payload JSON is malformed
	ErrInvalidPayload = errors.New("invalid job payload")

	// ErrEntityNotFound is returned when the row a processor writes to is gone
	ErrEntityNotFound = errors.New("entity not found")

	// ErrUnknownQueue is returned for a queue name no policy exists for
	ErrUnknownQueue = errors.New("unknown queue")
)

// TransientError is a failed call to an external service. It is always
// retried under the queue policy.
type TransientError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewStatusError reports a non-success HTTP response
func NewStatusError(op string, statusCode int, body string) error {
	return &TransientError{Op: op, StatusCode: statusCode, Body: body}
}

// NewTransportError reports a request that got no response
func NewTransportError(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}
