//nolint:lll // struct tags can't be split
package datastore

import (
	"log/slog"
	"strings"
	"time"
)

// Config selects and tunes the store's backends.
type Config struct {
	// Type is the remote backend: 'mongodb', 'postgres' or 'sqlite'.
	// When empty, it's inferred from the URI scheme.
	Type string `yaml:"type" mapstructure:"type" json:"type" binding:"omitempty,oneof=mongodb postgres sqlite"`

	// URI is the remote connection string (or sqlite file path). When
	// empty, the store runs in local mode.
	URI string `yaml:"uri" mapstructure:"uri" json:"uri" log:"[redacted]"`

	// Name is the MongoDB database name.
	Name string `yaml:"name" mapstructure:"name" json:"name"`

	// LocalDir holds one JSON file per collection in local mode. If empty,
	// local mode keeps documents in memory only.
	LocalDir string `yaml:"local_dir" mapstructure:"local_dir" json:"local_dir"`

	// ConnectTimeout bounds the startup connection attempt.
	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout" json:"connect_timeout" binding:"gte=0"`

	// OperationTimeout bounds each operation whose context has no deadline.
	OperationTimeout time.Duration `yaml:"operation_timeout" mapstructure:"operation_timeout" json:"operation_timeout" binding:"gte=0"`

	// SlowThreshold is the duration above which SQL queries are logged
	// as slow.
	SlowThreshold time.Duration `yaml:"slow_threshold" mapstructure:"slow_threshold" json:"slow_threshold"`

	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
}

func DefaultConfig() *Config {
	lvl := &slog.LevelVar{}
	lvl.Set(DefaultLogLevel)
	return &Config{
		Name:             DefaultDatabaseName,
		LocalDir:         DefaultLocalDir,
		ConnectTimeout:   DefaultConnectTimeout,
		OperationTimeout: DefaultOperationTimeout,
		SlowThreshold:    DefaultSlowThreshold,
		LogLevel:         lvl,
	}
}

// RemoteConfigured reports whether a remote backend should be attempted.
func (c Config) RemoteConfigured() bool {
	return strings.TrimSpace(c.URI) != ""
}

// BackendType returns the configured remote backend type, inferring it
// from the URI when Type isn't set.
func (c Config) BackendType() string {
	if c.Type != "" {
		return c.Type
	}
	uri := strings.ToLower(strings.TrimSpace(c.URI))
	switch {
	case strings.HasPrefix(uri, "mongodb://"), strings.HasPrefix(uri, "mongodb+srv://"):
		return BackendMongoDB
	case strings.HasPrefix(uri, "postgres://"), strings.HasPrefix(uri, "postgresql://"):
		return BackendPostgres
	default:
		return BackendSQLite
	}
}

func (c Config) databaseName() string {
	if c.Name == "" {
		return DefaultDatabaseName
	}
	return c.Name
}
