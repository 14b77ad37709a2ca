// Package incidents fans ledger incidents out to the configured operator sinks.
package incidents

import (
	"context"
	"log/slog"
	"sync"

	"github.com/target/sarbatch/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the incident notifier.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
}

// Notifier dispatches incidents to all registered sinks.
type Notifier struct {
	logger *slog.Logger
	sinks  []SinkRegistration
}

// NewNotifier constructs a Notifier. Nil sinks are dropped.
func NewNotifier(opts Options) *Notifier {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		if entry.Name == "" {
			entry.Name = "sink"
		}
		sinks = append(sinks, entry)
	}

	return &Notifier{
		logger: logger.With("component", "incident_notifier"),
		sinks:  sinks,
	}
}

// NotifyIncident delivers payload to every sink concurrently and waits for all of them.
// Delivery errors are logged, never returned.
func (n *Notifier) NotifyIncident(ctx context.Context, payload notify.IncidentPayload) {
	if len(n.sinks) == 0 {
		return
	}
	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}

	var wg sync.WaitGroup
	for _, entry := range n.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendIncident(ctx, payload); err != nil {
				n.logger.ErrorContext(ctx, "incident delivery failed",
					"sink", entry.Name,
					"kind", payload.Kind,
					"user_id", payload.UserID,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// Enabled reports whether the notifier has any active sinks.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.sinks) > 0
}
