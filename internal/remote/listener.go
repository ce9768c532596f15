// Package remote maintains the push channel: a websocket subscription the
// server uses to fan out CRDT fragments produced by other replicas. The
// listener is best effort; when it is down the client still converges
// through the periodic pull performed by the sync engine.
package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bsvalues/terrafield/internal/common"
	"github.com/bsvalues/terrafield/internal/logging"
	"github.com/bsvalues/terrafield/internal/securestore"
)

// FragmentSink receives fragments pushed by the server. Implemented by
// document.Registry.
type FragmentSink interface {
	ApplyRemoteFragment(ctx context.Context, documentID string, encoded string) error
}

// TokenSource hands out the current access token for the handshake.
type TokenSource interface {
	Load() (securestore.Tokens, error)
}

// frame is one pushed fragment as it appears on the wire.
type frame struct {
	DocumentID   string `json:"documentId"`
	DocumentType string `json:"documentType"`
	Updates      string `json:"updates"`
}

// Listener dials the push endpoint and feeds received fragments into the
// sink, reconnecting with capped backoff until its context is canceled.
type Listener struct {
	url    string
	tokens TokenSource
	sink   FragmentSink
	log    logging.Logger

	handshakeTimeout time.Duration
	minBackoff       time.Duration
	maxBackoff       time.Duration
}

// Option customizes a Listener.
type Option func(*Listener)

// WithBackoff overrides the reconnect backoff bounds.
func WithBackoff(min, max time.Duration) Option {
	return func(l *Listener) {
		l.minBackoff = min
		l.maxBackoff = max
	}
}

// WithHandshakeTimeout overrides the websocket handshake timeout.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(l *Listener) {
		l.handshakeTimeout = d
	}
}

// New constructs a Listener for the given websocket url.
func New(url string, tokens TokenSource, sink FragmentSink, log logging.Logger, opts ...Option) *Listener {
	l := &Listener{
		url:              url,
		tokens:           tokens,
		sink:             sink,
		log:              log,
		handshakeTimeout: 5 * time.Second,
		minBackoff:       time.Second,
		maxBackoff:       30 * time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run connects and reads frames until ctx is canceled. Connection failures
// are never fatal; the listener sleeps and redials, doubling the delay up to
// the configured cap and resetting it after a successful connect.
func (l *Listener) Run(ctx context.Context) {
	backoff := l.minBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		connected, err := l.connectAndRead(ctx)
		if connected {
			backoff = l.minBackoff
		}
		if err != nil && ctx.Err() == nil {
			l.log.Warn(ctx, "push channel lost", "error", err, "retry_in", backoff.String())
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > l.maxBackoff {
			backoff = l.maxBackoff
		}
	}
}

func (l *Listener) connectAndRead(ctx context.Context) (bool, error) {
	header := http.Header{}
	if tokens, err := l.tokens.Load(); err == nil && tokens.AccessToken != "" {
		header.Set(common.AuthorizationHeader, "Bearer "+tokens.AccessToken)
	}

	dialer := websocket.Dialer{HandshakeTimeout: l.handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, l.url, header)
	if err != nil {
		return false, err
	}

	l.log.Info(ctx, "push channel connected", "url", l.url)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			l.log.Warn(ctx, "unintelligible push frame dropped", "error", err)
			continue
		}
		if err := l.sink.ApplyRemoteFragment(ctx, f.DocumentID, f.Updates); err != nil {
			l.log.Warn(ctx, "pushed fragment not applied",
				"document_id", f.DocumentID, "error", err)
		}
	}
}
