package entities

import (
	"fmt"
	"strings"
	"time"
)

// AllowAllHosts is the allow-list entry that disables host filtering.
const AllowAllHosts = "insecure:allow-all"

// Config is the runtime configuration consumed once by the template builder.
// It is a plain value; Build takes a deep copy so later mutation by the caller
// is never observed by running invocations.
type Config struct {
	// Env lists environment variables exposed to the guest, in order.
	Env []EnvVar `json:"env,omitempty" yaml:"env,omitempty" validate:"dive"`

	// Dirs maps guest paths to host directories.
	Dirs []DirMapping `json:"dirs,omitempty" yaml:"dirs,omitempty" validate:"dive"`

	// AllowedHTTPHosts is the outbound HTTP allow-list.
	// nil permits every host; a non-nil slice permits only the listed ones.
	AllowedHTTPHosts []string `json:"allowed_http_hosts,omitempty" yaml:"allowed_http_hosts,omitempty" validate:"omitempty,dive,required"`

	// MaxConcurrentRequests bounds open outbound responses per invocation.
	// Zero means unlimited.
	MaxConcurrentRequests int `json:"max_concurrent_requests,omitempty" yaml:"max_concurrent_requests,omitempty" validate:"gte=0"`

	// InheritStdio connects the guest's standard streams to the host's.
	InheritStdio bool `json:"inherit_stdio,omitempty" yaml:"inherit_stdio,omitempty"`

	// Engine holds compilation engine tuning.
	Engine EngineConfig `json:"engine" yaml:"engine"`
}

// EnvVar is a single environment variable.
type EnvVar struct {
	Name  string `json:"name" yaml:"name" validate:"required"`
	Value string `json:"value" yaml:"value"`
}

// String renders the variable as NAME=VALUE.
func (v EnvVar) String() string {
	return v.Name + "=" + v.Value
}

// ParseEnvVar parses a NAME=VALUE pair. The value may contain '='.
func ParseEnvVar(s string) (EnvVar, error) {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return EnvVar{}, fmt.Errorf("environment variable %q must be in key=value format", s)
	}
	return EnvVar{Name: name, Value: value}, nil
}

// DirMapping grants the guest access to Host under the guest path Guest.
type DirMapping struct {
	Guest string `json:"guest" yaml:"guest" validate:"required"`
	Host  string `json:"host" yaml:"host" validate:"required"`
}

// ParseDirMapping parses GUEST::HOST. A plain path maps a directory to itself.
func ParseDirMapping(s string) (DirMapping, error) {
	if !strings.Contains(s, "::") {
		if s == "" {
			return DirMapping{}, fmt.Errorf("directory mapping cannot be empty")
		}
		return DirMapping{Guest: s, Host: s}, nil
	}
	parts := strings.Split(s, "::")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return DirMapping{}, fmt.Errorf("directory mapping %q must be in GUEST::HOST format", s)
	}
	return DirMapping{Guest: parts[0], Host: parts[1]}, nil
}

// EngineConfig controls the shared compilation engine.
type EngineConfig struct {
	// MultiMemory requests the multi-memory proposal.
	MultiMemory bool `json:"multi_memory,omitempty" yaml:"multi_memory,omitempty"`

	// ModuleLinking requests the module-linking proposal.
	ModuleLinking bool `json:"module_linking,omitempty" yaml:"module_linking,omitempty"`

	// CoreFeatures selects the WebAssembly core feature set ("v1" or "v2").
	CoreFeatures string `json:"core_features,omitempty" yaml:"core_features,omitempty" validate:"omitempty,oneof=v1 v2"`

	// MemoryLimitPages caps each instance's linear memory (64 KiB pages). Zero keeps the engine default.
	MemoryLimitPages uint32 `json:"memory_limit_pages,omitempty" yaml:"memory_limit_pages,omitempty" validate:"lte=65536"`

	// CacheDir enables the on-disk compilation cache when set.
	CacheDir string `json:"cache_dir,omitempty" yaml:"cache_dir,omitempty"`

	// InvocationTimeout bounds a single guest call. Zero disables the bound.
	InvocationTimeout time.Duration `json:"invocation_timeout,omitempty" yaml:"invocation_timeout,omitempty" validate:"gte=0"`
}

// DefaultConfig returns a configuration with no grants and every host allowed.
func DefaultConfig() Config {
	return Config{
		Engine: EngineConfig{
			CoreFeatures:      "v2",
			InvocationTimeout: 30 * time.Second,
		},
	}
}

// ConfigOption is a functional option for building a Config.
type ConfigOption func(*Config)

// WithEnv appends environment variables.
func WithEnv(vars ...EnvVar) ConfigOption {
	return func(c *Config) {
		c.Env = append(c.Env, vars...)
	}
}

// WithDir appends a directory grant.
func WithDir(guest, host string) ConfigOption {
	return func(c *Config) {
		c.Dirs = append(c.Dirs, DirMapping{Guest: guest, Host: host})
	}
}

// WithAllowedHTTPHosts installs an allow-list. Calling it with no hosts denies every host.
func WithAllowedHTTPHosts(hosts ...string) ConfigOption {
	return func(c *Config) {
		c.AllowedHTTPHosts = append([]string{}, hosts...)
	}
}

// WithMaxConcurrentRequests bounds open outbound responses per invocation.
func WithMaxConcurrentRequests(n int) ConfigOption {
	return func(c *Config) {
		if n >= 0 {
			c.MaxConcurrentRequests = n
		}
	}
}

// WithInvocationTimeout sets the per-invocation deadline.
func WithInvocationTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		if d >= 0 {
			c.Engine.InvocationTimeout = d
		}
	}
}

// WithCacheDir enables the compilation cache.
func WithCacheDir(dir string) ConfigOption {
	return func(c *Config) {
		c.Engine.CacheDir = dir
	}
}

// NewConfig creates a Config from DefaultConfig and the given options.
func NewConfig(opts ...ConfigOption) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Clone returns a deep copy. The nil-ness of AllowedHTTPHosts is preserved.
func (c Config) Clone() Config {
	out := c
	if c.Env != nil {
		out.Env = append([]EnvVar(nil), c.Env...)
	}
	if c.Dirs != nil {
		out.Dirs = append([]DirMapping(nil), c.Dirs...)
	}
	if c.AllowedHTTPHosts != nil {
		out.AllowedHTTPHosts = append([]string{}, c.AllowedHTTPHosts...)
	}
	return out
}
