package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test in an empty directory with no csvload env set.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, k := range []string{"METADATA_DIR", "MYSQL_CONFIG_PATH", "CSVLOAD_METADATA_DIR", "CSVLOAD_ENGINE", "CSVLOAD_METRICS_BACKEND"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultMetadataDir, cfg.MetadataDir)
	assert.Equal(t, DefaultConnectionsPath, cfg.ConnectionsPath)
	assert.Equal(t, "duckdb", cfg.Engine)
	assert.Equal(t, 5, cfg.BooleanSampleSize)
	assert.Equal(t, "none", cfg.Metrics.Backend)
	assert.Equal(t, 60*time.Second, cfg.Metrics.FlushEvery)
}

func TestLoad_Precedence(t *testing.T) {
	dir := isolate(t)

	yml := "metadata_dir: from-file\nengine: csv\nboolean_sample_size: 7\nmetrics:\n  backend: datadog\n  flush_every: 10s\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFile), []byte(yml), 0o644))

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.MetadataDir)
	assert.Equal(t, "csv", cfg.Engine)
	assert.Equal(t, 7, cfg.BooleanSampleSize)
	assert.Equal(t, "datadog", cfg.Metrics.Backend)
	assert.Equal(t, 10*time.Second, cfg.Metrics.FlushEvery)

	t.Setenv("METADATA_DIR", "from-legacy")
	cfg, err = Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "from-legacy", cfg.MetadataDir)

	t.Setenv("CSVLOAD_METADATA_DIR", "from-env")
	t.Setenv("CSVLOAD_METRICS_BACKEND", "none")
	cfg, err = Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.MetadataDir)
	assert.Equal(t, "none", cfg.Metrics.Backend)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("metadata-dir", "", "")
	fs.String("engine", "", "")
	require.NoError(t, fs.Parse([]string{"--metadata-dir", "from-flag"}))

	cfg, err = Load("", fs)
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.MetadataDir)
	assert.Equal(t, "csv", cfg.Engine, "unset flags must not override")
}

func TestLoad_LegacyConnectionsPath(t *testing.T) {
	isolate(t)
	t.Setenv("MYSQL_CONFIG_PATH", "/etc/csvload/conns.json")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "/etc/csvload/conns.json", cfg.ConnectionsPath)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	t.Setenv("CSVLOAD_ENGINE", "")
	os.Unsetenv("CSVLOAD_ENGINE")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CSVLOAD_ENGINE=csv\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("CSVLOAD_ENGINE") })

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "csv", cfg.Engine)
}

func TestLoad_Invalid(t *testing.T) {
	dir := isolate(t)

	p := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(p, []byte("boolean_sample_size: 0\nmetrics:\n  backend: statsd\n"), 0o644))

	_, err := Load(p, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boolean_sample_size")
	assert.Contains(t, err.Error(), "statsd")

	_, err = Load(filepath.Join(dir, "missing.yaml"), nil)
	require.Error(t, err)
}

func TestKeyMapping(t *testing.T) {
	assert.Equal(t, "metrics.flush_every", envKey("CSVLOAD_METRICS_FLUSH_EVERY"))
	assert.Equal(t, "boolean_sample_size", envKey("CSVLOAD_BOOLEAN_SAMPLE_SIZE"))
	assert.Equal(t, "metrics.backend", flagKey("metrics-backend"))
	assert.Equal(t, "log_level", flagKey("log-level"))
}
