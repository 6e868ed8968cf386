// Package entities holds the plain value types shared by the runtime:
// the immutable Config consumed at build time and the structured ErrorDetail
// reported by failed invocations.
package entities
