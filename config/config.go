// Package config loads service settings from an optional YAML file overlaid
// by environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/complyhq/issues-backend/v2/database"
	"github.com/complyhq/issues-backend/v2/util"
	"gopkg.in/yaml.v2"
)

// Store backends
const (
	BackendArango = "arango"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config is the full service configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Store       StoreConfig       `yaml:"store"`
	Arango      ArangoConfig      `yaml:"arango"`
	SQLite      SQLiteConfig      `yaml:"sqlite"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Notify      NotifyConfig      `yaml:"notify"`
	Reconcile   ReconcileConfig   `yaml:"reconcile"`
	Fingerprint FingerprintConfig `yaml:"fingerprint"`
	Auth        AuthConfig        `yaml:"auth"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port        string `yaml:"port"`
	BodyLimitMB int    `yaml:"body_limit_mb"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// StoreConfig selects the issue store backend.
type StoreConfig struct {
	Backend string `yaml:"backend"`
}

// ArangoConfig holds ArangoDB connection settings.
type ArangoConfig struct {
	URL      string `yaml:"url"`
	User     string `yaml:"user"`
	Pass     string `yaml:"pass"`
	Database string `yaml:"database"`
}

// SQLiteConfig holds the SQLite database location.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// KafkaConfig holds broker, credential and topic settings.
type KafkaConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Brokers        []string `yaml:"brokers"`
	APIKey         string   `yaml:"api_key"`
	APISecret      string   `yaml:"api_secret"`
	ScanTopic      string   `yaml:"scan_topic"`
	LifecycleTopic string   `yaml:"lifecycle_topic"`
	GroupID        string   `yaml:"group_id"`
}

// NotifyConfig sizes the lifecycle event queue.
type NotifyConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// ReconcileConfig tunes run-level concurrency and conflict retries.
type ReconcileConfig struct {
	Workers    int `yaml:"workers"`
	MaxRetries int `yaml:"max_retries"`
}

// FingerprintConfig selects the fingerprint hash.
type FingerprintConfig struct {
	Algorithm string `yaml:"algorithm"`
}

// AuthConfig holds the token signing secret. When empty the service trusts
// identity headers set by an upstream gateway.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080", BodyLimitMB: 50},
		Log:    LogConfig{Level: "info"},
		Store:  StoreConfig{Backend: BackendArango},
		Arango: ArangoConfig{
			URL:      "http://localhost:8529",
			User:     "root",
			Database: "issues",
		},
		SQLite: SQLiteConfig{Path: "~/.issues-backend/issues.db"},
		Kafka: KafkaConfig{
			Brokers:        []string{"localhost:9092"},
			ScanTopic:      "compliance-scan-events",
			LifecycleTopic: "issue-lifecycle-events",
			GroupID:        "issues-backend-worker",
		},
		Notify:      NotifyConfig{QueueSize: 256},
		Reconcile:   ReconcileConfig{Workers: 8, MaxRetries: 5},
		Fingerprint: FingerprintConfig{Algorithm: util.AlgorithmFNV1a32},
	}
}

// Load reads path (if not empty), applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Server.Port = database.GetEnvDefault("MS_PORT", c.Server.Port)
	c.Log.Level = database.GetEnvDefault("LOG_LEVEL", c.Log.Level)
	c.Store.Backend = database.GetEnvDefault("STORE_BACKEND", c.Store.Backend)

	if host, ok := os.LookupEnv("ARANGO_HOST"); ok {
		c.Arango.URL = "http://" + host + ":" + database.GetEnvDefault("ARANGO_PORT", "8529")
	}
	c.Arango.URL = database.GetEnvDefault("ARANGO_URL", c.Arango.URL)
	c.Arango.User = database.GetEnvDefault("ARANGO_USER", c.Arango.User)
	c.Arango.Pass = database.GetEnvDefault("ARANGO_PASS", c.Arango.Pass)
	c.Arango.Database = database.GetEnvDefault("ARANGO_DATABASE", c.Arango.Database)

	c.SQLite.Path = database.GetEnvDefault("SQLITE_PATH", c.SQLite.Path)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = splitList(brokers)
	}
	c.Kafka.APIKey = database.GetEnvDefault("KAFKA_API_KEY", c.Kafka.APIKey)
	c.Kafka.APISecret = database.GetEnvDefault("KAFKA_API_SECRET", c.Kafka.APISecret)
	c.Kafka.ScanTopic = database.GetEnvDefault("KAFKA_SCAN_TOPIC", c.Kafka.ScanTopic)
	c.Kafka.LifecycleTopic = database.GetEnvDefault("KAFKA_LIFECYCLE_TOPIC", c.Kafka.LifecycleTopic)
	c.Kafka.GroupID = database.GetEnvDefault("KAFKA_GROUP_ID", c.Kafka.GroupID)

	c.Fingerprint.Algorithm = database.GetEnvDefault("FINGERPRINT_ALGORITHM", c.Fingerprint.Algorithm)
	c.Auth.JWTSecret = database.GetEnvDefault("JWT_SECRET", c.Auth.JWTSecret)

	var err error
	if c.Kafka.Enabled, err = envBool("KAFKA_ENABLED", c.Kafka.Enabled); err != nil {
		return err
	}
	if c.Server.BodyLimitMB, err = envInt("BODY_LIMIT_MB", c.Server.BodyLimitMB); err != nil {
		return err
	}
	if c.Notify.QueueSize, err = envInt("NOTIFY_QUEUE_SIZE", c.Notify.QueueSize); err != nil {
		return err
	}
	if c.Reconcile.Workers, err = envInt("RECONCILE_WORKERS", c.Reconcile.Workers); err != nil {
		return err
	}
	if c.Reconcile.MaxRetries, err = envInt("RECONCILE_MAX_RETRIES", c.Reconcile.MaxRetries); err != nil {
		return err
	}
	return nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendArango, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if !util.ValidAlgorithm(c.Fingerprint.Algorithm) {
		return fmt.Errorf("unknown fingerprint algorithm %q", c.Fingerprint.Algorithm)
	}
	if c.Reconcile.Workers <= 0 {
		return fmt.Errorf("reconcile.workers must be positive")
	}
	if c.Reconcile.MaxRetries < 0 {
		return fmt.Errorf("reconcile.max_retries must not be negative")
	}
	if c.Notify.QueueSize <= 0 {
		return fmt.Errorf("notify.queue_size must be positive")
	}
	if c.Server.BodyLimitMB <= 0 {
		return fmt.Errorf("server.body_limit_mb must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	return nil
}

// DatabaseConfig converts the arango section for database.InitializeDatabase.
func (c *Config) DatabaseConfig() database.Config {
	return database.Config{
		URL:      c.Arango.URL,
		User:     c.Arango.User,
		Pass:     c.Arango.Pass,
		Database: c.Arango.Database,
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, def bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
