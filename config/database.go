package config

import "strings"

// StoreBackend names a persistence implementation.
type StoreBackend string

const (
	// StorePostgres keeps users and jobs in PostgreSQL.
	StorePostgres StoreBackend = "postgres"
	// StoreMemory keeps users and jobs in process memory. Data is lost on restart.
	StoreMemory StoreBackend = "memory"
)

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend StoreBackend `env:"STORE" envDefault:"postgres"`
}

// Sanitize normalises the backend name, falling back to Postgres for unknown values.
func (c *StoreConfig) Sanitize() {
	c.Backend = StoreBackend(strings.ToLower(strings.TrimSpace(string(c.Backend))))
	switch c.Backend {
	case StorePostgres, StoreMemory:
	default:
		c.Backend = StorePostgres
	}
}

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"sarbatch"`
	Password string `env:"PASSWORD"                envDefault:"sarbatch"`
	Name     string `env:"NAME"                    envDefault:"sarbatch"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // 'require' in production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration for the catalog cache.
type RedisConfig struct {
	// Enabled turns the catalog cache on. Without Redis every lookup goes to the catalog.
	Enabled            bool     `env:"ENABLED"              envDefault:"false"`
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	DB                 int      `env:"DB"                   envDefault:"0"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}
