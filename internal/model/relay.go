// Package model defines shared types for the gateway.
package model

import "context"

// RelayRequest is an inbound request reduced to what the gateway forwards.
type RelayRequest struct {
	Ctx context.Context
	// Suffix is the raw path and query after the mount prefix, exactly as received.
	Suffix string
}

// RelayResponse is the allow-listed part of an upstream response.
type RelayResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// ErrorEnvelope is the body sent to the caller when a relay fails.
type ErrorEnvelope struct {
	Title   string `json:"title"`
	Details string `json:"details"`
}
