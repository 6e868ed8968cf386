package config

import (
	"encoding/json"
	stdErrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/glass/domain/entities"
	"github.com/reglet-dev/glass/domain/errors"
)

func TestParse_Full(t *testing.T) {
	cfg, err := Parse([]byte(`
env:
  - name: GREETING
    value: hello=world
dirs:
  - guest: /data
    host: /srv/data
allowed_http_hosts:
  - api.example.com
  - "*.internal:8080"
max_concurrent_requests: 4
inherit_stdio: true
engine:
  core_features: v1
  memory_limit_pages: 16
  cache_dir: /tmp/glass-cache
  invocation_timeout: 5s
`))
	require.NoError(t, err)

	assert.Equal(t, []entities.EnvVar{{Name: "GREETING", Value: "hello=world"}}, cfg.Env)
	assert.Equal(t, []entities.DirMapping{{Guest: "/data", Host: "/srv/data"}}, cfg.Dirs)
	assert.Equal(t, []string{"api.example.com", "*.internal:8080"}, cfg.AllowedHTTPHosts)
	assert.Equal(t, 4, cfg.MaxConcurrentRequests)
	assert.True(t, cfg.InheritStdio)
	assert.Equal(t, "v1", cfg.Engine.CoreFeatures)
	assert.Equal(t, uint32(16), cfg.Engine.MemoryLimitPages)
	assert.Equal(t, "/tmp/glass-cache", cfg.Engine.CacheDir)
	assert.Equal(t, 5*time.Second, cfg.Engine.InvocationTimeout)
}

func TestParse_EmptyKeepsDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, entities.DefaultConfig(), cfg)
	assert.Nil(t, cfg.AllowedHTTPHosts, "absent allow-list permits every host")
}

func TestParse_EmptyAllowListDeniesAll(t *testing.T) {
	cfg, err := Parse([]byte("allowed_http_hosts: []\n"))
	require.NoError(t, err)
	assert.NotNil(t, cfg.AllowedHTTPHosts)
	assert.Empty(t, cfg.AllowedHTTPHosts)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{name: "unknown key", yaml: "colour: blue\n"},
		{name: "env without name", yaml: "env:\n  - value: x\n", field: "Config.Env[0].Name"},
		{name: "dir without host", yaml: "dirs:\n  - guest: /data\n", field: "Config.Dirs[0].Host"},
		{name: "blank host", yaml: "allowed_http_hosts: [\"\"]\n", field: "Config.AllowedHTTPHosts[0]"},
		{name: "negative concurrency", yaml: "max_concurrent_requests: -1\n", field: "Config.MaxConcurrentRequests"},
		{name: "bad core features", yaml: "engine:\n  core_features: v3\n", field: "Config.Engine.CoreFeatures"},
		{name: "too many pages", yaml: "engine:\n  memory_limit_pages: 70000\n", field: "Config.Engine.MemoryLimitPages"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)

			var cerr *errors.ConfigError
			require.True(t, stdErrors.As(err, &cerr), "want ConfigError, got %T", err)
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glass.yaml")
	require.NoError(t, os.WriteFile(path, []byte("inherit_stdio: true\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.InheritStdio)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate_DefaultConfig(t *testing.T) {
	assert.NoError(t, Validate(entities.DefaultConfig()))
}

func TestSchema(t *testing.T) {
	out, err := Schema()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))

	props, ok := doc["properties"].(map[string]any)
	require.True(t, ok, "schema should expand the config struct inline")
	for _, key := range []string{"env", "dirs", "allowed_http_hosts", "max_concurrent_requests", "inherit_stdio", "engine"} {
		assert.Contains(t, props, key)
	}
}
