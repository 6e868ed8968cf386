// Package errors provides the runtime's error taxonomy.
// All error types support error unwrapping via errors.As() and errors.Is().
//
// Build-fatal failures are reported as *BuildError, ABI decode failures as
// *BoundaryError, allow-list rejections as *PolicyError. Per-invocation
// failures are wrapped by the host package with the pipeline stage they
// occurred in.
package errors

import (
	stdErrors "errors"
	"fmt"
	"time"

	"github.com/reglet-dev/glass/domain/entities"
)

// ErrorDetail is an alias to entities.ErrorDetail for convenience.
type ErrorDetail = entities.ErrorDetail

// DetailedError is implemented by error types that can convert themselves
// to a structured ErrorDetail.
type DetailedError interface {
	error
	ToErrorDetail() *entities.ErrorDetail
}

// ToErrorDetail converts a Go error to a structured ErrorDetail.
func ToErrorDetail(err error) *entities.ErrorDetail {
	if err == nil {
		return nil
	}

	var e *entities.ErrorDetail
	if stdErrors.As(err, &e) {
		return e
	}

	var de DetailedError
	if stdErrors.As(err, &de) {
		return de.ToErrorDetail()
	}

	return &entities.ErrorDetail{
		Message: err.Error(),
		Type:    "internal",
	}
}

// ErrNotConfigured is matched by every NotConfiguredError.
var ErrNotConfigured = stdErrors.New("capability not configured")

// NotConfiguredError is returned by capability accessors for a family that was
// not set up for the current invocation.
type NotConfiguredError struct {
	Capability string
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("capability %q not configured", e.Capability)
}

// Is reports whether target is ErrNotConfigured.
func (e *NotConfiguredError) Is(target error) bool {
	return target == ErrNotConfigured
}

// ToErrorDetail implements DetailedError.
func (e *NotConfiguredError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "config", Code: "not_configured"}
}

// BuildPhase names the template build step that failed.
type BuildPhase string

const (
	PhaseConfigure BuildPhase = "configure"
	PhasePreopen   BuildPhase = "preopen"
	PhaseBind      BuildPhase = "bind"
	PhaseCompile   BuildPhase = "compile"
	PhaseLink      BuildPhase = "link"
	PhaseResolve   BuildPhase = "resolve"
)

// BuildError is a build-fatal failure. It aborts startup and is never retried.
type BuildError struct {
	Err   error
	Phase BuildPhase
	// Name identifies the offending item (import, export, directory), if any.
	Name string
}

func (e *BuildError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("build %s failed for %s: %v", e.Phase, e.Name, e.Err)
	}
	return fmt.Sprintf("build %s failed: %v", e.Phase, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *BuildError) ToErrorDetail() *entities.ErrorDetail {
	d := &entities.ErrorDetail{Message: e.Error(), Type: "build", Code: string(e.Phase)}
	if e.Name != "" {
		d.With("name", e.Name)
	}
	return d
}

// BoundaryKind classifies a host/guest boundary violation.
type BoundaryKind string

const (
	KindInvalidUTF8    BoundaryKind = "invalid_utf8"
	KindInvalidVariant BoundaryKind = "invalid_variant"
	KindOutOfBounds    BoundaryKind = "out_of_bounds"
	KindBadInt         BoundaryKind = "bad_int"
	KindInvalidHeader  BoundaryKind = "invalid_header"
	KindAllocation     BoundaryKind = "allocation"
)

// BoundaryError reports a value that could not cross the host/guest boundary.
type BoundaryError struct {
	Err    error
	Kind   BoundaryKind
	Detail string
}

func (e *BoundaryError) Error() string {
	msg := fmt.Sprintf("boundary violation (%s)", e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BoundaryError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *BoundaryError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "boundary", Code: string(e.Kind)}
}

// NewBoundaryError is shorthand for a BoundaryError with a formatted detail.
func NewBoundaryError(kind BoundaryKind, format string, args ...any) *BoundaryError {
	return &BoundaryError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// IsBoundaryKind reports whether err is a BoundaryError of the given kind.
func IsBoundaryKind(err error, kind BoundaryKind) bool {
	var be *BoundaryError
	return stdErrors.As(err, &be) && be.Kind == kind
}

// PolicyError records an outbound request rejected by the allow-list.
// Guests only ever see the numeric error value; this type exists for host-side logging.
type PolicyError struct {
	URL  string
	Host string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("destination %s not allowed (url: %s)", e.Host, e.URL)
}

// ToErrorDetail implements DetailedError.
func (e *PolicyError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "policy", Code: "destination_not_allowed"}
}

// NetworkError represents an outbound network operation failure.
type NetworkError struct {
	Err       error
	Operation string
	Target    string
}

func (e *NetworkError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("network %s failed for %s: %v", e.Operation, e.Target, e.Err)
	}
	return fmt.Sprintf("network %s failed: %v", e.Operation, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *NetworkError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "network", Code: e.Operation}
}

// TimeoutError represents a deadline exceeded during an operation.
type TimeoutError struct {
	Operation string
	Duration  time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Duration > 0 {
		return fmt.Sprintf("%s timeout after %v", e.Operation, e.Duration)
	}
	return fmt.Sprintf("%s timeout", e.Operation)
}

func (e *TimeoutError) Timeout() bool {
	return true
}

// ToErrorDetail implements DetailedError.
func (e *TimeoutError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "timeout", Code: e.Operation, IsTimeout: true}
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Err   error
	Field string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config validation failed for field '%s': %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *ConfigError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "config", Code: e.Field}
}
