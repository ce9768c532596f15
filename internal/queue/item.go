// Package queue implements the durable FIFO queues that hold deferred work
// while the client is offline, and the drain algorithm that retries
// delivery once connectivity returns. The queue and the processor are
// generic; the request and document packages instantiate them with their own
// item types.
package queue

import "github.com/oklog/ulid/v2"

// Item is implemented by queued payload types. Items are treated as values:
// WithRetries returns a copy with the new retry count rather than mutating
// in place, so a drain can work on a snapshot.
type Item[T any] interface {
	// ItemID returns the queue-unique id assigned at creation.
	ItemID() string

	// RetryCount returns how many failed delivery attempts the item has seen.
	RetryCount() int

	// WithRetries returns a copy of the item with the given retry count.
	WithRetries(n int) T
}

// NewID returns a new item id. ULIDs encode the creation time plus a random
// suffix, so ids are unique within a queue's lifetime and sort in enqueue
// order.
func NewID() string {
	return ulid.Make().String()
}
