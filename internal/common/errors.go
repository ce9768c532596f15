// Package common defines shared constants and sentinel errors used across
// the TerraField sync client. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Storage-level errors.
	ErrNotFound    = errors.New("not found")
	ErrPersistence = errors.New("persistence error")

	// Connectivity / transport errors.
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrTokenExpired       = errors.New("token expired")

	// Document sync errors.
	ErrDecode        = errors.New("fragment decode error")
	ErrNotRegistered = errors.New("document not registered")

	// Queue lifecycle errors.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	ErrQueueBusy          = errors.New("drain already in progress")
)
