package host

import (
	stdErrors "errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/reglet-dev/glass/domain/entities"
	"github.com/reglet-dev/glass/domain/errors"
)

// Stage is a step of one invocation. Stages only move forward.
type Stage int

const (
	StageIdle Stage = iota
	StageContextBuilt
	StageInstantiated
	StageArgumentsLowered
	StageGuestExecuting
	StageResultLifted
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageContextBuilt:
		return "context_built"
	case StageInstantiated:
		return "instantiated"
	case StageArgumentsLowered:
		return "arguments_lowered"
	case StageGuestExecuting:
		return "guest_executing"
	case StageResultLifted:
		return "result_lifted"
	case StageDone:
		return "done"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// FailureKind classifies why an invocation failed.
type FailureKind string

const (
	KindContext       FailureKind = "context"
	KindInstantiate   FailureKind = "instantiate"
	KindTrap          FailureKind = "trap"
	KindExit          FailureKind = "exit"
	KindTimeout       FailureKind = "timeout"
	KindCanceled      FailureKind = "canceled"
	KindDecode        FailureKind = "decode"
	KindEncode        FailureKind = "encode"
	KindMissingExport FailureKind = "missing_export"
)

// InvocationError is a failure confined to one invocation. Nothing is retried.
type InvocationError struct {
	Err          error
	Kind         FailureKind
	Stage        Stage
	InvocationID uuid.UUID
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invocation %s failed at %s (%s): %v", e.InvocationID, e.Stage, e.Kind, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the invocation ran out of time.
func (e *InvocationError) Timeout() bool {
	return e.Kind == KindTimeout
}

// ToErrorDetail implements errors.DetailedError.
func (e *InvocationError) ToErrorDetail() *entities.ErrorDetail {
	d := &entities.ErrorDetail{
		Message:   e.Error(),
		Type:      "invocation",
		Code:      string(e.Kind),
		IsTimeout: e.Kind == KindTimeout,
	}
	d.With("stage", e.Stage.String())
	if e.InvocationID != uuid.Nil {
		d.With("invocation_id", e.InvocationID.String())
	}
	var inner errors.DetailedError
	if stdErrors.As(e.Err, &inner) {
		d.Wrapped = inner.ToErrorDetail()
	}
	return d
}
