// Package capability holds the per-invocation Capability Context.
//
// A Context is created for every guest invocation and carries the state the
// host imports operate on: environment and directory grants, the outbound
// HTTP response table, the inference session and the caller payload. Host
// imports retrieve it from the call's context.Context with FromContext.
//
// Accessors for a family that was not configured return an error matching
// errors.ErrNotConfigured instead of panicking.
package capability
