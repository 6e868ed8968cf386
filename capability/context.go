package capability

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/reglet-dev/glass/domain/errors"
	"github.com/reglet-dev/glass/hostfuncs"
)

// Context is the capability state of exactly one in-flight invocation.
// It is never shared between invocations and is not safe for concurrent use;
// a guest instance calls its imports from a single goroutine.
type Context struct {
	payload   any
	os        *OSContext
	http      *hostfuncs.HTTPSessions
	inference *hostfuncs.InferenceSession
	id        uuid.UUID
}

// Option configures a Context.
type Option func(*Context)

// WithOS attaches the WASI grants.
func WithOS(o *OSContext) Option {
	return func(c *Context) { c.os = o }
}

// WithHTTP attaches the outbound HTTP response table.
func WithHTTP(s *hostfuncs.HTTPSessions) Option {
	return func(c *Context) { c.http = s }
}

// WithInference attaches an inference session.
func WithInference(s *hostfuncs.InferenceSession) Option {
	return func(c *Context) { c.inference = s }
}

// WithPayload stashes a caller-supplied value.
func WithPayload(p any) Option {
	return func(c *Context) { c.payload = p }
}

// New creates a Context with a fresh invocation ID.
func New(opts ...Option) *Context {
	c := &Context{id: uuid.New()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID returns the invocation ID.
func (c *Context) ID() uuid.UUID {
	return c.id
}

// OS returns the WASI grants.
func (c *Context) OS() (*OSContext, error) {
	if c.os == nil {
		return nil, &errors.NotConfiguredError{Capability: "os"}
	}
	return c.os, nil
}

// HTTP returns the outbound HTTP response table.
func (c *Context) HTTP() (*hostfuncs.HTTPSessions, error) {
	if c.http == nil {
		return nil, &errors.NotConfiguredError{Capability: "http"}
	}
	return c.http, nil
}

// Inference returns the inference session.
func (c *Context) Inference() (*hostfuncs.InferenceSession, error) {
	if c.inference == nil {
		return nil, &errors.NotConfiguredError{Capability: "inference"}
	}
	return c.inference, nil
}

// Payload returns the caller-supplied value, or nil.
func (c *Context) Payload() any {
	return c.payload
}

// Release drops per-invocation resources. The Context must not be used afterwards.
func (c *Context) Release() {
	if c.http != nil {
		c.http.CloseAll()
	}
}

// PayloadAs returns the payload as T.
func PayloadAs[T any](c *Context) (T, error) {
	var zero T
	if c.payload == nil {
		return zero, &errors.NotConfiguredError{Capability: "payload"}
	}
	v, ok := c.payload.(T)
	if !ok {
		return zero, fmt.Errorf("payload is %T, not %T", c.payload, zero)
	}
	return v, nil
}

// contextKey is a private type for context keys.
type contextKey struct {
	name string
}

var capabilityKey = &contextKey{name: "capability"}

// WithContext returns ctx carrying c.
func WithContext(ctx context.Context, c *Context) context.Context {
	return context.WithValue(ctx, capabilityKey, c)
}

// FromContext retrieves the Capability Context attached by WithContext.
func FromContext(ctx context.Context) (*Context, error) {
	c, ok := ctx.Value(capabilityKey).(*Context)
	if !ok || c == nil {
		return nil, &errors.NotConfiguredError{Capability: "context"}
	}
	return c, nil
}
