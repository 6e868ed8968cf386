package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvVar(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    EnvVar
		wantErr bool
	}{
		{"simple", "FOO=bar", EnvVar{Name: "FOO", Value: "bar"}, false},
		{"empty value", "FOO=", EnvVar{Name: "FOO", Value: ""}, false},
		{"value with equals", "URL=a=b", EnvVar{Name: "URL", Value: "a=b"}, false},
		{"missing separator", "FOO", EnvVar{}, true},
		{"missing name", "=bar", EnvVar{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEnvVar(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.input, got.String())
		})
	}
}

func TestParseDirMapping(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    DirMapping
		wantErr bool
	}{
		{"guest and host", "/data::/srv/data", DirMapping{Guest: "/data", Host: "/srv/data"}, false},
		{"plain path", "/tmp", DirMapping{Guest: "/tmp", Host: "/tmp"}, false},
		{"empty", "", DirMapping{}, true},
		{"too many separators", "a::b::c", DirMapping{}, true},
		{"missing host", "/data::", DirMapping{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDirMapping(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig(
		WithEnv(EnvVar{Name: "A", Value: "1"}),
		WithDir("/data", "/srv"),
		WithMaxConcurrentRequests(4),
		WithInvocationTimeout(2*time.Second),
		WithCacheDir("/var/cache/glass"),
	)

	assert.Equal(t, []EnvVar{{Name: "A", Value: "1"}}, cfg.Env)
	assert.Equal(t, []DirMapping{{Guest: "/data", Host: "/srv"}}, cfg.Dirs)
	assert.Nil(t, cfg.AllowedHTTPHosts, "no allow-list means every host is permitted")
	assert.Equal(t, 4, cfg.MaxConcurrentRequests)
	assert.Equal(t, 2*time.Second, cfg.Engine.InvocationTimeout)
	assert.Equal(t, "/var/cache/glass", cfg.Engine.CacheDir)
	assert.Equal(t, "v2", cfg.Engine.CoreFeatures)
}

func TestWithAllowedHTTPHosts_EmptyDeniesAll(t *testing.T) {
	cfg := NewConfig(WithAllowedHTTPHosts())
	assert.NotNil(t, cfg.AllowedHTTPHosts)
	assert.Empty(t, cfg.AllowedHTTPHosts)
}

func TestConfigClone(t *testing.T) {
	orig := NewConfig(
		WithEnv(EnvVar{Name: "A", Value: "1"}),
		WithDir("/data", "/srv"),
		WithAllowedHTTPHosts("example.com"),
	)

	clone := orig.Clone()
	orig.Env[0].Value = "changed"
	orig.Dirs[0].Host = "/elsewhere"
	orig.AllowedHTTPHosts[0] = "evil.com"

	assert.Equal(t, "1", clone.Env[0].Value)
	assert.Equal(t, "/srv", clone.Dirs[0].Host)
	assert.Equal(t, []string{"example.com"}, clone.AllowedHTTPHosts)

	empty := NewConfig(WithAllowedHTTPHosts()).Clone()
	assert.NotNil(t, empty.AllowedHTTPHosts, "clone must keep an empty allow-list distinct from nil")
	assert.Nil(t, NewConfig().Clone().AllowedHTTPHosts)
}

func TestErrorDetail_Error(t *testing.T) {
	detail := &ErrorDetail{Type: "boundary", Message: "bad tag", Code: "invalid_variant"}
	assert.Equal(t, "boundary: bad tag [invalid_variant]", detail.Error())

	wrapped := &ErrorDetail{Type: "invocation", Message: "handler failed", Wrapped: detail}
	assert.Equal(t, "invocation: handler failed: boundary: bad tag [invalid_variant]", wrapped.Error())

	var nilDetail *ErrorDetail
	assert.Equal(t, "", nilDetail.Error())
}

func TestErrorDetail_With(t *testing.T) {
	detail := (&ErrorDetail{Type: "build"}).With("name", "handler").With("phase", "resolve")
	assert.Equal(t, map[string]any{"name": "handler", "phase": "resolve"}, detail.Details)
}
