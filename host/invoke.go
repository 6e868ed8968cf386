package host

import (
	"context"
	stdErrors "errors"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// outcomeOK labels successful invocations in metrics.
const outcomeOK = "ok"

// Invoke runs fn against a fresh instance and closes it afterwards, whatever
// fn returns. The invocation is logged and recorded in the engine's metrics.
func Invoke[T any](ctx context.Context, e *Engine, payload any, fn func(*Instance) (T, error)) (out T, err error) {
	start := time.Now()
	inst, err := e.Prepare(ctx, payload)
	if err != nil {
		e.record(nil, start, err)
		return out, err
	}
	defer func() {
		err = multierr.Append(err, inst.Close())
		e.record(inst, start, err)
	}()

	out, err = fn(inst)
	if err != nil {
		return out, err
	}
	inst.Advance(StageDone)
	return out, nil
}

func (e *Engine) record(inst *Instance, start time.Time, err error) {
	elapsed := time.Since(start)
	outcome := outcomeOK
	var ierr *InvocationError
	switch {
	case err == nil:
	case stdErrors.As(err, &ierr):
		outcome = string(ierr.Kind)
	default:
		outcome = "error"
	}
	e.metrics.observe(e.iface.Name, outcome, elapsed)

	fields := []zap.Field{
		zap.String("interface", e.iface.Name),
		zap.String("outcome", outcome),
		zap.Duration("elapsed", elapsed),
	}
	if inst != nil {
		fields = append(fields, zap.Stringer("invocation", inst.ID()), zap.Stringer("stage", inst.Stage()))
	}
	if err != nil {
		Logger().Warn("invocation failed", append(fields, zap.Error(err))...)
		return
	}
	Logger().Debug("invocation completed", fields...)
}
