package transport

import "fmt"

// StatusError is returned for non-2xx responses. It drives queue-level
// retry classification; the queue treats every failure as retryable until
// the item's retry budget runs out.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}
