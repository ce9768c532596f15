package queue

import (
	"context"
	"time"

	"github.com/bsvalues/terrafield/internal/logging"
)

// DeliverFunc attempts to deliver one item. A nil return removes the item
// from the queue; any error counts as one failed attempt.
type DeliverFunc[T Item[T]] func(ctx context.Context, item T) error

// DropFunc observes items dropped after exhausting their retry budget.
// There is no dead-letter store; this hook is the only place such items can
// still be seen.
type DropFunc[T Item[T]] func(item T, err error)

// Result summarizes one drain pass.
type Result struct {
	// Ran is false when the drain was skipped because another one was
	// already in flight.
	Ran       bool
	Attempted int
	Delivered int
	Retained  int
	Dropped   int
}

// Processor runs the shared drain algorithm over one queue. Instantiate one
// per queue; the two queues of the sync engine drain independently and may
// overlap each other, but a processor never overlaps itself on the same
// queue.
type Processor[T Item[T]] struct {
	queue       *Queue[T]
	deliver     DeliverFunc[T]
	maxRetries  int
	itemTimeout time.Duration
	log         logging.Logger
	onDrop      DropFunc[T]
}

// ProcessorOption configures a Processor.
type ProcessorOption[T Item[T]] func(*Processor[T])

// WithItemTimeout sets the per-item delivery deadline. Default is 30s.
func WithItemTimeout[T Item[T]](d time.Duration) ProcessorOption[T] {
	return func(p *Processor[T]) { p.itemTimeout = d }
}

// WithOnDrop registers a hook called for every item dropped at the retry
// limit.
func WithOnDrop[T Item[T]](fn DropFunc[T]) ProcessorOption[T] {
	return func(p *Processor[T]) { p.onDrop = fn }
}

// NewProcessor builds a Processor draining q through deliver, dropping items
// after maxRetries failed attempts.
func NewProcessor[T Item[T]](q *Queue[T], deliver DeliverFunc[T], maxRetries int, log logging.Logger, opts ...ProcessorOption[T]) *Processor[T] {
	p := &Processor[T]{
		queue:       q,
		deliver:     deliver,
		maxRetries:  maxRetries,
		itemTimeout: 30 * time.Second,
		log:         log.With("queue", q.name),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Drain attempts delivery of every item present when the pass began. Items
// enqueued during the pass wait for the next one. Per-item failures never
// escape: a failed item is either retained with its retry count incremented
// or, once the count reaches maxRetries, dropped with a warning. A drain
// requested while one is in flight is a no-op.
func (p *Processor[T]) Drain(ctx context.Context) Result {
	snapshot, ok := p.queue.beginDrain()
	if !ok {
		p.log.Debug(ctx, "drain skipped, already in progress")
		return Result{}
	}

	res := Result{Ran: true, Attempted: len(snapshot)}
	survivors := snapshot[:0]

	for _, item := range snapshot {
		attemptCtx, cancel := context.WithTimeout(ctx, p.itemTimeout)
		err := p.deliver(attemptCtx, item)
		cancel()

		if err == nil {
			res.Delivered++
			continue
		}

		if item.RetryCount() < p.maxRetries {
			survivors = append(survivors, item.WithRetries(item.RetryCount()+1))
			res.Retained++
			p.log.Debug(ctx, "delivery failed, will retry",
				"id", item.ItemID(), "retries", item.RetryCount()+1, "error", err)
			continue
		}

		res.Dropped++
		p.log.Warn(ctx, "item dropped after exhausting retries",
			"id", item.ItemID(), "retries", item.RetryCount(), "error", err)
		if p.onDrop != nil {
			p.onDrop(item, err)
		}
	}

	p.queue.completeDrain(ctx, survivors, len(snapshot))

	if res.Attempted > 0 {
		p.log.Info(ctx, "drain finished",
			"attempted", res.Attempted,
			"delivered", res.Delivered,
			"retained", res.Retained,
			"dropped", res.Dropped)
	}

	return res
}
