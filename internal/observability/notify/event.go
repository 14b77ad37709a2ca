// Package notify defines the incident payload delivered to operator-facing sinks.
package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
)

// Incident kinds.
const (
	// KindInconsistentLedger marks a debit whose jobs could not be stored.
	KindInconsistentLedger = "inconsistent_ledger"
)

// IncidentPayload captures the data emitted when the ledger and the job store disagree.
type IncidentPayload struct {
	Kind       string
	UserID     string
	Amount     string
	JobCount   int
	JobIDs     []string
	Error      string
	ErrorClass string
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Sink describes a destination capable of consuming incident notifications.
type Sink interface {
	SendIncident(ctx context.Context, payload IncidentPayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload IncidentPayload) error

// SendIncident implements the Sink interface.
func (f SinkFunc) SendIncident(ctx context.Context, payload IncidentPayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
