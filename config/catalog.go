package config

import (
	"strings"
	"time"
)

// CatalogConfig configures the granule catalog client.
type CatalogConfig struct {
	URL           string        `env:"CATALOG_URL"            envDefault:"https://cmr.earthdata.nasa.gov"`
	Timeout       time.Duration `env:"CATALOG_TIMEOUT"        envDefault:"10s"`
	RetryAttempts uint          `env:"CATALOG_RETRY_ATTEMPTS" envDefault:"3"`
	RetryDelay    time.Duration `env:"CATALOG_RETRY_DELAY"    envDefault:"200ms"`
	PageSize      int           `env:"CATALOG_PAGE_SIZE"      envDefault:"100"`
	Parallel      int           `env:"CATALOG_PARALLEL"       envDefault:"4"`
	// CacheTTL applies when Redis is enabled.
	CacheTTL time.Duration `env:"CATALOG_CACHE_TTL" envDefault:"6h"`
}

// Sanitize restores defaults for out-of-range values.
func (c *CatalogConfig) Sanitize() {
	c.URL = strings.TrimSpace(c.URL)
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 1
	}
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.PageSize > 2000 {
		c.PageSize = 2000
	}
	if c.Parallel <= 0 {
		c.Parallel = 1
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 6 * time.Hour
	}
}
