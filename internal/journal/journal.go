// Package journal records the outcome of every relayed request.
//
// Entries describe what happened (suffix, status, size, timing) and never hold
// the upstream key or any payload.
package journal

import (
	"context"
	"time"
)

// Outcome values.
const (
	OutcomeRelayed = "relayed"
	OutcomeFailed  = "failed"
)

// Entry is one relayed request.
type Entry struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"request_id,omitempty"`
	Method     string    `json:"method"`
	Suffix     string    `json:"suffix"`
	Status     int       `json:"status"`
	Outcome    string    `json:"outcome"`
	FailKind   string    `json:"fail_kind,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Bytes      int       `json:"bytes"`
	Timestamp  time.Time `json:"timestamp"`
}

// Store persists entries.
type Store interface {
	Record(ctx context.Context, e Entry) error
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Enabled() bool
	Close() error
}

// Nop is the Store used when the journal is disabled.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error          { return nil }
func (Nop) Recent(context.Context, int) ([]Entry, error) { return nil, nil }
func (Nop) Enabled() bool                                { return false }
func (Nop) Close() error                                 { return nil }
