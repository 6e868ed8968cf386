package ports

import "context"

// Executor runs one guest invocation per call.
// Implementations are safe for concurrent use.
type Executor[In, Out any] interface {
	Execute(ctx context.Context, input In) (Out, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc[In, Out any] func(ctx context.Context, input In) (Out, error)

// Execute calls f(ctx, input).
func (f ExecutorFunc[In, Out]) Execute(ctx context.Context, input In) (Out, error) {
	return f(ctx, input)
}

// OutputBinding receives the result of a timer-driven invocation.
type OutputBinding interface {
	Write(ctx context.Context, output string) error
}
