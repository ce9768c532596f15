// Package request defers mutating API calls made while offline. A mutation
// either goes out immediately or is appended to the durable request queue
// and replayed by the drain processor once connectivity returns.
package request

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bsvalues/terrafield/internal/logging"
	"github.com/bsvalues/terrafield/internal/queue"
	"github.com/bsvalues/terrafield/internal/store"
)

// StorageKey is the store key the request queue snapshot is persisted under.
const StorageKey = "queue:requests"

// OfflineRequest is one deferred mutating HTTP call. GETs are never queued;
// reads are answered from local state while offline.
type OfflineRequest struct {
	ID        string          `json:"id"`
	URL       string          `json:"url"`
	Method    string          `json:"method"`
	Body      json.RawMessage `json:"body,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Retries   int             `json:"retries"`
}

func (r OfflineRequest) ItemID() string  { return r.ID }
func (r OfflineRequest) RetryCount() int { return r.Retries }
func (r OfflineRequest) WithRetries(n int) OfflineRequest {
	r.Retries = n
	return r
}

// New builds an OfflineRequest for the given mutating call. Only POST, PUT,
// PATCH and DELETE are accepted.
func New(method, url string, body json.RawMessage) (OfflineRequest, error) {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return OfflineRequest{}, fmt.Errorf("method %s is not queueable", method)
	}

	return OfflineRequest{
		ID:        queue.NewID(),
		URL:       url,
		Method:    method,
		Body:      body,
		Timestamp: time.Now(),
	}, nil
}

// NewQueue constructs the durable request queue.
func NewQueue(st store.Store, log logging.Logger) *queue.Queue[OfflineRequest] {
	return queue.New[OfflineRequest]("requests", StorageKey, st, log)
}

// Sender is the transport surface delivery needs.
type Sender interface {
	Do(ctx context.Context, method, path string, body []byte) ([]byte, error)
}

// Deliver returns the delivery function the drain processor replays queued
// requests with.
func Deliver(t Sender) queue.DeliverFunc[OfflineRequest] {
	return func(ctx context.Context, r OfflineRequest) error {
		_, err := t.Do(ctx, r.Method, r.URL, r.Body)
		return err
	}
}
