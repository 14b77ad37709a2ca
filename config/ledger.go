package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// operaDateLayout is the calendar-date form accepted for OPERA_RTC_S1_END_DATE.
const operaDateLayout = "2006-01-02"

// LedgerConfig controls the per-user credit ledger.
type LedgerConfig struct {
	// DefaultCreditsPerUser seeds new users and is the monthly allowance when no per-user
	// credits_per_month is set.
	DefaultCreditsPerUser decimal.Decimal `env:"DEFAULT_CREDITS_PER_USER" envDefault:"1000"`
	// ResetCreditsMonthly restores approved users to their allowance on first contact in a new month.
	ResetCreditsMonthly bool `env:"RESET_CREDITS_MONTHLY" envDefault:"false"`
	// MaxAttempts bounds re-reads after losing a create or reset race.
	MaxAttempts uint `env:"LEDGER_MAX_ATTEMPTS" envDefault:"5"`
}

// Sanitize clamps negative allowances to zero and keeps at least one attempt.
func (c *LedgerConfig) Sanitize() {
	if c.DefaultCreditsPerUser.IsNegative() {
		c.DefaultCreditsPerUser = decimal.Zero
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 1
	}
}

// AdmissionConfig limits batch submissions.
type AdmissionConfig struct {
	MaxJobsPerBatch int `env:"MAX_JOBS_PER_BATCH" envDefault:"200"`
}

// Sanitize restores the default batch limit for non-positive values.
func (c *AdmissionConfig) Sanitize() {
	if c.MaxJobsPerBatch <= 0 {
		c.MaxJobsPerBatch = 200
	}
}

// ValidationConfig locates the job-type catalogue and coverage reference data. Empty paths
// select the embedded defaults.
type ValidationConfig struct {
	JobSpecsPath       string  `env:"JOB_SPECS_PATH"`
	DEMCoveragePath    string  `env:"DEM_COVERAGE_PATH"`
	StaticCoveragePath string  `env:"STATIC_COVERAGE_PATH"`
	CoverageThreshold  float64 `env:"DEM_COVERAGE_THRESHOLD" envDefault:"0.2"`
	CoverageBuffer     float64 `env:"DEM_COVERAGE_BUFFER"    envDefault:"0"`
	// OperaRTCEndDate is the exclusive end of the on-demand OPERA RTC-S1 window (YYYY-MM-DD).
	OperaRTCEndDate string        `env:"OPERA_RTC_S1_END_DATE" envDefault:"2022-01-01"`
	PairWindow      time.Duration `env:"PAIR_TIMING_WINDOW"    envDefault:"2m"`
	MaxBoundsArea   float64       `env:"MAX_BOUNDS_AREA"       envDefault:"4.5"`
}

// Sanitize trims paths and clamps coverage tuning into range.
func (c *ValidationConfig) Sanitize() {
	c.JobSpecsPath = strings.TrimSpace(c.JobSpecsPath)
	c.DEMCoveragePath = strings.TrimSpace(c.DEMCoveragePath)
	c.StaticCoveragePath = strings.TrimSpace(c.StaticCoveragePath)
	c.OperaRTCEndDate = strings.TrimSpace(c.OperaRTCEndDate)
	if c.CoverageThreshold < 0 || c.CoverageThreshold > 1 {
		c.CoverageThreshold = 0.2
	}
	if c.CoverageBuffer < 0 {
		c.CoverageBuffer = 0
	}
}

// OperaRTCEnd parses OperaRTCEndDate. An empty value yields the zero time.
func (c ValidationConfig) OperaRTCEnd() (time.Time, error) {
	if c.OperaRTCEndDate == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(operaDateLayout, c.OperaRTCEndDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("OPERA_RTC_S1_END_DATE must be YYYY-MM-DD: %w", err)
	}
	return t.UTC(), nil
}
