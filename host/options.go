package host

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/reglet-dev/glass/domain/ports"
	binder "github.com/reglet-dev/glass/infrastructure/wazero"
)

// Option configures Build.
type Option func(*buildOptions)

type buildOptions struct {
	httpClient ports.HTTPClient
	backend    ports.InferenceBackend
	registerer prometheus.Registerer
	middleware []binder.Middleware
	strict     bool
}

// WithHTTPClient replaces the outbound HTTP client used by the
// wasi_experimental_http imports. The allow-list is still enforced.
func WithHTTPClient(c ports.HTTPClient) Option {
	return func(o *buildOptions) {
		o.httpClient = c
	}
}

// WithInferenceBackend enables the wasi_ephemeral_nn imports. Without a
// backend every inference call returns runtime_error.
func WithInferenceBackend(b ports.InferenceBackend) Option {
	return func(o *buildOptions) {
		o.backend = b
	}
}

// WithStrictNames makes duplicate host import names a build error instead of
// a warning.
func WithStrictNames() Option {
	return func(o *buildOptions) {
		o.strict = true
	}
}

// WithMiddleware wraps the HTTP and inference host imports. WASI functions
// are not wrapped. Middleware runs inside the built-in logging middleware, in
// the order given.
func WithMiddleware(mws ...binder.Middleware) Option {
	return func(o *buildOptions) {
		o.middleware = append(o.middleware, mws...)
	}
}

// WithRegisterer registers the engine's metrics with r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *buildOptions) {
		o.registerer = r
	}
}
