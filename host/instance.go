package host

import (
	"context"
	stdErrors "errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"

	"github.com/reglet-dev/glass/capability"
	"github.com/reglet-dev/glass/marshal"
)

// Instance is one invocation: a fresh guest module and its capability
// context. It is used from a single goroutine and closed exactly once.
type Instance struct {
	engine     *Engine
	module     api.Module
	capability *capability.Context
	ctx        context.Context
	cancel     context.CancelFunc
	codec      *marshal.Codec
	stage      Stage
	closed     bool
}

// ID returns the invocation ID. It is also the module name.
func (i *Instance) ID() uuid.UUID {
	if i.capability == nil {
		return uuid.Nil
	}
	return i.capability.ID()
}

// Module returns the guest module.
func (i *Instance) Module() api.Module {
	return i.module
}

// Capability returns the invocation's capability context.
func (i *Instance) Capability() *capability.Context {
	return i.capability
}

// Context returns the context guest calls run under. It carries the
// capability context and the invocation deadline.
func (i *Instance) Context() context.Context {
	return i.ctx
}

// Stage returns the furthest stage reached.
func (i *Instance) Stage() Stage {
	return i.stage
}

// Advance records that the invocation reached s. Moving backwards is ignored.
func (i *Instance) Advance(s Stage) {
	if s > i.stage {
		i.stage = s
	}
}

// Fail wraps err as an InvocationError at the current stage. An err that
// already is an InvocationError is returned unchanged.
func (i *Instance) Fail(kind FailureKind, err error) *InvocationError {
	var ierr *InvocationError
	if stdErrors.As(err, &ierr) {
		return ierr
	}
	return &InvocationError{Err: err, Kind: kind, Stage: i.stage, InvocationID: i.ID()}
}

// Codec returns a codec over the guest's memory and allocator exports.
func (i *Instance) Codec() (*marshal.Codec, error) {
	if i.codec != nil {
		return i.codec, nil
	}
	mem := i.module.Memory()
	if mem == nil {
		return nil, i.Fail(KindMissingExport, fmt.Errorf("guest exports no memory"))
	}
	alloc, err := marshal.NewGuestAllocator(i.module)
	if err != nil {
		return nil, i.Fail(KindMissingExport, err)
	}
	i.codec = marshal.NewCodec(mem, alloc)
	return i.codec, nil
}

// Call runs the guest export name. Traps, exits and deadline interruptions are
// reported as InvocationErrors at StageGuestExecuting.
func (i *Instance) Call(name string, params ...uint64) ([]uint64, error) {
	fn := i.module.ExportedFunction(name)
	if fn == nil {
		return nil, i.Fail(KindMissingExport, fmt.Errorf("guest does not export %q", name))
	}
	i.Advance(StageGuestExecuting)
	results, err := fn.Call(i.ctx, params...)
	if err != nil {
		return nil, i.Fail(classify(err, KindTrap), err)
	}
	return results, nil
}

// classify maps a wazero call error to a failure kind. Errors that are not
// exits fall back to def.
func classify(err error, def FailureKind) FailureKind {
	var exit *sys.ExitError
	if !stdErrors.As(err, &exit) {
		return def
	}
	switch exit.ExitCode() {
	case sys.ExitCodeDeadlineExceeded:
		return KindTimeout
	case sys.ExitCodeContextCanceled:
		return KindCanceled
	default:
		return KindExit
	}
}

// Close tears down the guest module and the capability context. It is safe
// to call more than once.
func (i *Instance) Close() error {
	if i.closed {
		return nil
	}
	i.closed = true

	// The deadline context may already be done; closing must not depend on it.
	err := i.module.Close(context.WithoutCancel(i.ctx))
	i.capability.Release()
	i.cancel()

	i.engine.active.Add(-1)
	i.engine.metrics.active.WithLabelValues(i.engine.iface.Name).Dec()
	return err
}
