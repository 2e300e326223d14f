package service

import "errors"

// ConfigurationError reports that the gateway cannot build an upstream request
// from its current configuration.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string { return e.Reason }

// ErrMissingAPIKey is returned when the key is unset, empty or whitespace-only.
var ErrMissingAPIKey = &ConfigurationError{Reason: "Missing API key"}

// TransportError wraps a failure to obtain a complete upstream response:
// DNS, connect, TLS, timeout, cancellation, or a body that could not be read.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "upstream request failed: " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// Kind names the failure for logs and metrics.
func Kind(err error) string {
	var cfgErr *ConfigurationError
	var trErr *TransportError
	switch {
	case errors.As(err, &cfgErr):
		return "configuration"
	case errors.As(err, &trErr):
		return "transport"
	default:
		return "internal"
	}
}
