// Package transport performs single HTTP calls against the TerraField API:
// auth-header injection, per-request timeout, and a one-shot token refresh
// followed by one retry when the server answers 401. That inner retry is
// invisible to the delivery queues; from their point of view it is still a
// single delivery attempt.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bsvalues/terrafield/internal/common"
	"github.com/bsvalues/terrafield/internal/logging"
	"github.com/bsvalues/terrafield/internal/securestore"
	"github.com/golang-jwt/jwt/v5"
)

// TokenSource stores and retrieves the credential pair. Implemented by
// securestore.FileStore.
type TokenSource interface {
	Load() (securestore.Tokens, error)
	Save(securestore.Tokens) error
}

// Client performs HTTP calls with auth handling.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	log     logging.Logger
	timeout time.Duration

	// serializes token refresh between concurrently draining queues
	refreshMu sync.Mutex
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTimeout sets the per-request deadline. Default is 15s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New constructs a Client for the given API base URL.
func New(baseURL string, tokens TokenSource, log logging.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		tokens:  tokens,
		log:     log,
		timeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do performs one HTTP call. A 401 triggers exactly one refresh and one
// retry of the original request; all other failures propagate to the caller.
// Connection-level failures are reported as common.ErrNetworkUnavailable so
// callers know to enqueue instead of fail.
func (c *Client) Do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	access := c.accessToken(ctx)

	// Pay the refresh round-trip up front when the token is visibly stale
	// instead of provoking a guaranteed 401.
	if access != "" && tokenExpired(access) {
		if refreshed, err := c.refresh(ctx); err == nil {
			access = refreshed
		}
	}

	respBody, status, err := c.send(ctx, method, path, body, access)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		access, err = c.refresh(ctx)
		if err != nil {
			return nil, fmt.Errorf("token refresh: %w", common.ErrUnauthorized)
		}

		respBody, status, err = c.send(ctx, method, path, body, access)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			return nil, common.ErrUnauthorized
		}
	}

	if status < 200 || status >= 300 {
		return nil, &StatusError{Code: status, Body: string(respBody)}
	}

	return respBody, nil
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, access string) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if access != "" {
		req.Header.Set(common.AuthorizationHeader, "Bearer "+access)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, 0, err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, 0, fmt.Errorf("%s %s: request timeout: %w", method, path, err)
		}
		return nil, 0, fmt.Errorf("%s %s: %w", method, path, common.ErrNetworkUnavailable)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}

	return respBody, resp.StatusCode, nil
}

func (c *Client) accessToken(ctx context.Context) string {
	tokens, err := c.tokens.Load()
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			c.log.Warn(ctx, "could not load tokens", "error", err)
		}
		return ""
	}
	return tokens.AccessToken
}

// refresh exchanges the refresh token for a new pair and persists it.
func (c *Client) refresh(ctx context.Context) (string, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	tokens, err := c.tokens.Load()
	if err != nil || tokens.RefreshToken == "" {
		return "", common.ErrUnauthorized
	}

	payload, err := json.Marshal(map[string]string{"refreshToken": tokens.RefreshToken})
	if err != nil {
		return "", err
	}

	respBody, status, err := c.send(ctx, http.MethodPost, "/auth/refresh", payload, "")
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("refresh status %d: %w", status, common.ErrUnauthorized)
	}

	var result struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("parse refresh response: %w", err)
	}

	if err := c.tokens.Save(securestore.Tokens{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	}); err != nil {
		c.log.Warn(ctx, "could not persist refreshed tokens", "error", err)
	}

	return result.AccessToken, nil
}

// Login authenticates with the server and stores the issued token pair.
func (c *Client) Login(ctx context.Context, username, password string) error {
	payload, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return err
	}

	respBody, status, err := c.send(ctx, http.MethodPost, "/auth/login", payload, "")
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		return common.ErrUnauthorized
	}
	if status != http.StatusOK {
		return &StatusError{Code: status, Body: string(respBody)}
	}

	var result struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("parse login response: %w", err)
	}

	return c.tokens.Save(securestore.Tokens{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	})
}

// Ping checks server reachability. Any HTTP response, including an error
// status, counts as reachable; only transport failures do not.
func (c *Client) Ping(ctx context.Context) error {
	_, _, err := c.send(ctx, http.MethodHead, "/health", nil, "")
	return err
}

// tokenExpired inspects the unverified exp claim. Signature verification is
// the server's job; the client only wants to know whether sending this
// token is pointless.
func tokenExpired(tokenString string) bool {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now().Add(30 * time.Second))
}
