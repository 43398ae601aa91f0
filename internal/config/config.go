package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the GSOCC pipeline service
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Detection DetectionConfig `mapstructure:"detection"`
	SafeList  SafeListConfig  `mapstructure:"safelist"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString builds a pgx connection string from the settings.
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode,
	)
}

// RedisConfig holds Redis configuration for the velocity tracker
type RedisConfig struct {
	URL        string `mapstructure:"url"`
	Enabled    bool   `mapstructure:"enabled"`
	MaxRetries int    `mapstructure:"max_retries"`
	PoolSize   int    `mapstructure:"pool_size"`
}

// NATSConfig holds NATS notification sink configuration
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Enabled       bool          `mapstructure:"enabled"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// ArchiveConfig holds OpenSearch event archival configuration
type ArchiveConfig struct {
	URL      string `mapstructure:"url"`
	Enabled  bool   `mapstructure:"enabled"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Index    string `mapstructure:"index"`
	Insecure bool   `mapstructure:"insecure"`
}

// DetectionConfig holds escalation thresholds
type DetectionConfig struct {
	// RiskThreshold is the risk score at or above which an event escalates
	// directly to a CRITICAL incident.
	RiskThreshold int `mapstructure:"risk_threshold"`
	// VelocityThreshold is the event count from one source IP inside the
	// window that triggers a HIGH escalation.
	VelocityThreshold int           `mapstructure:"velocity_threshold"`
	VelocityWindow    time.Duration `mapstructure:"velocity_window"`
	// DatastoreTimeout bounds every persistence call made from the
	// orchestration path.
	DatastoreTimeout time.Duration `mapstructure:"datastore_timeout"`
}

// SafeListConfig holds the protected-entity allow-list
type SafeListConfig struct {
	// File is an optional YAML file with ips/user_ids lists. Entries from
	// the file are merged with the inline lists below.
	File    string   `mapstructure:"file"`
	IPs     []string `mapstructure:"ips"`
	UserIDs []string `mapstructure:"user_ids"`
}

// AuditConfig holds evidence signing configuration
type AuditConfig struct {
	Secret     string `mapstructure:"secret"`
	ExecutedBy string `mapstructure:"executed_by"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "gsocc")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "gsocc")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")

	v.SetDefault("archive.url", "https://localhost:9200")
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.username", "admin")
	v.SetDefault("archive.password", "")
	v.SetDefault("archive.index", "gsocc-events")
	v.SetDefault("archive.insecure", true)

	v.SetDefault("detection.risk_threshold", 70)
	v.SetDefault("detection.velocity_threshold", 10)
	v.SetDefault("detection.velocity_window", "60s")
	v.SetDefault("detection.datastore_timeout", "5s")

	v.SetDefault("safelist.file", "")
	v.SetDefault("safelist.ips", []string{})
	v.SetDefault("safelist.user_ids", []string{})

	v.SetDefault("audit.secret", "change-this-in-production")
	v.SetDefault("audit.executed_by", "GSOCC-AUTOMATION")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read from config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables override file config
	v.SetEnvPrefix("GSOCC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
