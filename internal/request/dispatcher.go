package request

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bsvalues/terrafield/internal/common"
	"github.com/bsvalues/terrafield/internal/logging"
	"github.com/bsvalues/terrafield/internal/queue"
)

// ConnectivitySource reports the last known connectivity synchronously.
type ConnectivitySource interface {
	IsConnected() bool
}

// Dispatcher is the entry point for mutating API calls. Online, the call
// goes straight through the transport; offline (or when the transport
// reports the network gone mid-call), it lands in the request queue.
type Dispatcher struct {
	transport Sender
	queue     *queue.Queue[OfflineRequest]
	monitor   ConnectivitySource
	log       logging.Logger
}

// NewDispatcher wires a Dispatcher.
func NewDispatcher(t Sender, q *queue.Queue[OfflineRequest], monitor ConnectivitySource, log logging.Logger) *Dispatcher {
	return &Dispatcher{transport: t, queue: q, monitor: monitor, log: log}
}

// Send performs or defers one mutating call. queued is true when the call
// was appended to the queue instead of delivered; the response body is only
// meaningful when queued is false.
func (d *Dispatcher) Send(ctx context.Context, method, url string, body json.RawMessage) (resp []byte, queued bool, err error) {
	req, err := New(method, url, body)
	if err != nil {
		return nil, false, err
	}

	if !d.monitor.IsConnected() {
		return nil, true, d.enqueue(ctx, req)
	}

	resp, err = d.transport.Do(ctx, method, url, body)
	if errors.Is(err, common.ErrNetworkUnavailable) {
		// the monitor is stale; queue instead of failing the caller
		return nil, true, d.enqueue(ctx, req)
	}
	if err != nil {
		return nil, false, err
	}
	return resp, false, nil
}

func (d *Dispatcher) enqueue(ctx context.Context, req OfflineRequest) error {
	if err := d.queue.Enqueue(ctx, req); err != nil {
		return fmt.Errorf("enqueue %s %s: %w", req.Method, req.URL, err)
	}
	d.log.Info(ctx, "request queued for later delivery",
		"id", req.ID, "method", req.Method, "url", req.URL)
	return nil
}
