package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/complyhq/issues-backend/v2/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendArango, cfg.Store.Backend)
	assert.Equal(t, util.AlgorithmFNV1a32, cfg.Fingerprint.Algorithm)
	assert.Equal(t, 8, cfg.Reconcile.Workers)
	assert.Equal(t, "compliance-scan-events", cfg.Kafka.ScanTopic)
	assert.False(t, cfg.Kafka.Enabled)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
store:
  backend: sqlite
sqlite:
  path: /tmp/issues.db
kafka:
  enabled: true
  brokers: ["k1:9092", "k2:9092"]
reconcile:
  workers: 2
fingerprint:
  algorithm: xxhash64
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "/tmp/issues.db", cfg.SQLite.Path)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 2, cfg.Reconcile.Workers)
	assert.Equal(t, 5, cfg.Reconcile.MaxRetries)
	assert.Equal(t, util.AlgorithmXXHash64, cfg.Fingerprint.Algorithm)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "store:\n  backend: sqlite\n")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("KAFKA_BROKERS", "a:1, b:2,")
	t.Setenv("RECONCILE_WORKERS", "16")
	t.Setenv("ARANGO_HOST", "arango.internal")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Kafka.Brokers)
	assert.Equal(t, 16, cfg.Reconcile.Workers)
	assert.Equal(t, "http://arango.internal:8529", cfg.Arango.URL)
	assert.Equal(t, "http://arango.internal:8529", cfg.DatabaseConfig().URL)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "backend", yaml: "store:\n  backend: postgres\n"},
		{name: "algorithm", yaml: "fingerprint:\n  algorithm: md5\n"},
		{name: "workers", yaml: "reconcile:\n  workers: 0\n"},
		{name: "queue", yaml: "notify:\n  queue_size: -1\n"},
		{name: "bad yaml", yaml: "store: [\n"},
		{name: "bad env int", env: map[string]string{"NOTIFY_QUEUE_SIZE": "lots"}},
		{name: "bad env bool", env: map[string]string{"KAFKA_ENABLED": "sometimes"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.yaml != "" {
				path = writeConfig(t, tt.yaml)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}
