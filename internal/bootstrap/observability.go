package bootstrap

import (
	"log/slog"

	"github.com/target/sarbatch/config"
	"github.com/target/sarbatch/internal/observability/notify/pagerduty"
	"github.com/target/sarbatch/internal/observability/notify/slack"
	"github.com/target/sarbatch/internal/observability/statsd"
	"github.com/target/sarbatch/internal/service/incidents"
)

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	// MetricsSink is nil when metrics are disabled.
	MetricsSink *statsd.Client
	Incidents   *incidents.Notifier
}

// Close flushes and closes the metrics connection.
func (o ObservabilityContainer) Close() error {
	if o.MetricsSink == nil {
		return nil
	}
	return o.MetricsSink.Close()
}

// sink returns the metrics sink as an interface, keeping a nil client a nil interface.
//
//nolint:ireturn // statsd.Sink is the port consumed by services.
func (o ObservabilityContainer) sink() statsd.Sink {
	if o.MetricsSink == nil {
		return nil
	}
	return o.MetricsSink
}

// BuildObservability configures metrics and incident notification adapters. Adapter
// failures are logged and the adapter skipped; they never block startup.
func BuildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	if logger == nil {
		logger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  "sarbatch",
			Logger:  logger,
		})
		if err != nil {
			logger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink: metricsSink,
		Incidents:   buildIncidentNotifier(logger, cfg.Notifications),
	}
}

func buildIncidentNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *incidents.Notifier {
	if !cfg.Enabled {
		return incidents.NewNotifier(incidents.Options{Logger: logger})
	}

	var sinks []incidents.SinkRegistration
	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:    cfg.Slack.WebhookURL,
			Channel:       cfg.Slack.Channel,
			Username:      cfg.Slack.Username,
			Timeout:       cfg.Timeout,
			RetryLimit:    cfg.RetryLimit,
			UserURLPrefix: cfg.Slack.UserURLPrefix,
		})
		if err != nil {
			logger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, incidents.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, incidents.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}

	return incidents.NewNotifier(incidents.Options{Logger: logger, Sinks: sinks})
}
