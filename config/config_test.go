package config

import (
	"reflect"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

func TestAppConfig_Defaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if !cfg.Ledger.DefaultCreditsPerUser.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("expected 1000 default credits, got %s", cfg.Ledger.DefaultCreditsPerUser)
	}
	if cfg.Ledger.ResetCreditsMonthly {
		t.Error("expected monthly reset to be off by default")
	}
	if cfg.Admission.MaxJobsPerBatch != 200 {
		t.Errorf("expected batch limit 200, got %d", cfg.Admission.MaxJobsPerBatch)
	}
	if cfg.Store.Backend != StorePostgres {
		t.Errorf("expected postgres store, got %q", cfg.Store.Backend)
	}
	if cfg.Postgres.Name != "sarbatch" {
		t.Errorf("expected database name sarbatch, got %q", cfg.Postgres.Name)
	}
	if cfg.Catalog.CacheTTL != 6*time.Hour {
		t.Errorf("expected 6h cache ttl, got %v", cfg.Catalog.CacheTTL)
	}

	end, err := cfg.Validation.OperaRTCEnd()
	if err != nil {
		t.Fatalf("parse opera end: %v", err)
	}
	if want := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC); !end.Equal(want) {
		t.Errorf("expected opera end %v, got %v", want, end)
	}
}

func TestAppConfig_ParseEnv(t *testing.T) {
	t.Setenv("DEFAULT_CREDITS_PER_USER", "12.5")
	t.Setenv("RESET_CREDITS_MONTHLY", "true")
	t.Setenv("MAX_JOBS_PER_BATCH", "50")
	t.Setenv("STORE", " Memory ")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_CLUSTER_NODES", "a:7000,b:7000")
	t.Setenv("CATALOG_URL", " https://catalog.example.com ")
	t.Setenv("CATALOG_RETRY_ATTEMPTS", "5")
	t.Setenv("JOB_SPECS_PATH", "/etc/sarbatch/job_specs.yml")
	t.Setenv("OPERA_RTC_S1_END_DATE", "2023-06-30")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if !cfg.Ledger.DefaultCreditsPerUser.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("unexpected default credits %s", cfg.Ledger.DefaultCreditsPerUser)
	}
	if !cfg.Ledger.ResetCreditsMonthly {
		t.Error("expected monthly reset to be on")
	}
	if cfg.Admission.MaxJobsPerBatch != 50 {
		t.Errorf("expected batch limit 50, got %d", cfg.Admission.MaxJobsPerBatch)
	}
	if cfg.Store.Backend != StoreMemory {
		t.Errorf("expected memory store, got %q", cfg.Store.Backend)
	}
	if cfg.Postgres.Host != "db.internal" {
		t.Errorf("unexpected db host %q", cfg.Postgres.Host)
	}
	if !cfg.Redis.Enabled || !reflect.DeepEqual(cfg.Redis.ClusterNodes, []string{"a:7000", "b:7000"}) {
		t.Errorf("unexpected redis config %#v", cfg.Redis)
	}
	if cfg.Catalog.URL != "https://catalog.example.com" {
		t.Errorf("expected trimmed catalog url, got %q", cfg.Catalog.URL)
	}
	if cfg.Catalog.RetryAttempts != 5 {
		t.Errorf("expected 5 attempts, got %d", cfg.Catalog.RetryAttempts)
	}
	if cfg.Validation.JobSpecsPath != "/etc/sarbatch/job_specs.yml" {
		t.Errorf("unexpected job specs path %q", cfg.Validation.JobSpecsPath)
	}

	end, err := cfg.Validation.OperaRTCEnd()
	if err != nil {
		t.Fatalf("parse opera end: %v", err)
	}
	if want := time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC); !end.Equal(want) {
		t.Errorf("expected opera end %v, got %v", want, end)
	}
}

func TestAppConfig_InvalidCredits(t *testing.T) {
	t.Setenv("DEFAULT_CREDITS_PER_USER", "lots")

	var cfg AppConfig
	if err := env.Parse(&cfg); err == nil {
		t.Fatal("expected parse error for non-numeric credits")
	}
}

func TestValidationConfig_OperaRTCEnd(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    time.Time
		wantErr bool
	}{
		{name: "calendar date", value: "2022-01-01", want: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)},
		{name: "empty", value: "", want: time.Time{}},
		{name: "timestamp rejected", value: "2022-01-01T00:00:00Z", wantErr: true},
		{name: "garbage", value: "soon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidationConfig{OperaRTCEndDate: tt.value}.OperaRTCEnd()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.value)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestSanitize_Guardrails(t *testing.T) {
	cfg := AppConfig{
		Store:     StoreConfig{Backend: "sqlite"},
		Ledger:    LedgerConfig{DefaultCreditsPerUser: decimal.NewFromInt(-5)},
		Admission: AdmissionConfig{MaxJobsPerBatch: -1},
		Validation: ValidationConfig{
			CoverageThreshold: 1.5,
			CoverageBuffer:    -0.1,
		},
		Catalog: CatalogConfig{PageSize: 5000},
		HTTP:    HTTPConfig{CompressionLevel: 12, UserHeader: " "},
	}

	cfg.Sanitize()

	if cfg.Store.Backend != StorePostgres {
		t.Errorf("expected unknown backend to fall back to postgres, got %q", cfg.Store.Backend)
	}
	if !cfg.Ledger.DefaultCreditsPerUser.IsZero() {
		t.Errorf("expected negative credits clamped to zero, got %s", cfg.Ledger.DefaultCreditsPerUser)
	}
	if cfg.Ledger.MaxAttempts != 1 {
		t.Errorf("expected at least one ledger attempt, got %d", cfg.Ledger.MaxAttempts)
	}
	if cfg.Admission.MaxJobsPerBatch != 200 {
		t.Errorf("expected default batch limit, got %d", cfg.Admission.MaxJobsPerBatch)
	}
	if cfg.Validation.CoverageThreshold != 0.2 || cfg.Validation.CoverageBuffer != 0 {
		t.Errorf("unexpected coverage tuning %#v", cfg.Validation)
	}
	if cfg.Catalog.PageSize != 2000 {
		t.Errorf("expected page size capped at 2000, got %d", cfg.Catalog.PageSize)
	}
	if cfg.Catalog.RetryAttempts != 1 || cfg.Catalog.Parallel != 1 {
		t.Errorf("expected catalog floors, got %#v", cfg.Catalog)
	}
	if cfg.HTTP.CompressionLevel != 9 {
		t.Errorf("expected compression level clamped to 9, got %d", cfg.HTTP.CompressionLevel)
	}
	if cfg.HTTP.UserHeader != "X-User-Id" {
		t.Errorf("expected default user header, got %q", cfg.HTTP.UserHeader)
	}
}

func TestAppConfig_DetectDevMode(t *testing.T) {
	t.Setenv("NODE_ENV", "development")

	cfg := AppConfig{}
	cfg.Sanitize()

	if !cfg.IsDev {
		t.Fatal("expected NODE_ENV=development to enable dev mode")
	}
}
func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " ",
	}

	cfg.Sanitize()

	if cfg.Enabled {
		t.Fatalf("expected enabled to be false when address is empty")
	}

	cfg = ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " statsd:1234 ",
	}

	cfg.Sanitize()

	if !cfg.IsEnabled() {
		t.Fatalf("expected metrics to remain enabled")
	}
	if cfg.StatsdAddress != "statsd:1234" {
		t.Fatalf("expected address to be trimmed, got %q", cfg.StatsdAddress)
	}
}

func TestObservabilityNotificationsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityNotificationsConfig{
		Enabled:    true,
		Timeout:    0,
		RetryLimit: -1,
		Slack: SlackNotificationConfig{
			Enabled:    true,
			WebhookURL: " ",
			Channel:    "  ",
			Username:   "",
		},
		PagerDuty: PagerDutyNotificationConfig{
			Enabled:    true,
			RoutingKey: " ",
			Source:     "",
			Component:  "",
		},
	}

	cfg.Sanitize()

	if cfg.Timeout <= 0 {
		t.Fatalf("expected timeout to fall back to default, got %v", cfg.Timeout)
	}
	if cfg.RetryLimit < 0 {
		t.Fatalf("expected retry limit to be clamped to >= 0, got %d", cfg.RetryLimit)
	}
	if cfg.Slack.Enabled {
		t.Fatal("expected slack to be disabled without a webhook url")
	}
	if cfg.PagerDuty.Enabled {
		t.Fatal("expected pagerduty to be disabled without a routing key")
	}
	if cfg.PagerDuty.Source != "sarbatch" {
		t.Fatalf("expected pagerduty source default, got %q", cfg.PagerDuty.Source)
	}
	if cfg.PagerDuty.Component != "sarbatch" {
		t.Fatalf("expected pagerduty component default, got %q", cfg.PagerDuty.Component)
	}

	// Disabled top-level should disable child sinks.
	cfg = ObservabilityNotificationsConfig{
		Enabled: false,
		Slack: SlackNotificationConfig{
			Enabled:    true,
			WebhookURL: "https://hooks.slack.com/services/test",
		},
		PagerDuty: PagerDutyNotificationConfig{
			Enabled:    true,
			RoutingKey: "abc",
		},
	}
	cfg.Sanitize()

	if cfg.Slack.Enabled {
		t.Fatal("expected slack to be disabled when top-level notifications disabled")
	}
	if cfg.PagerDuty.Enabled {
		t.Fatal("expected pagerduty to be disabled when top-level notifications disabled")
	}
}
