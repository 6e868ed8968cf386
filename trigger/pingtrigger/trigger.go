// Package pingtrigger runs a deislabs_ping_v01 guest on a timer.
package pingtrigger

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/reglet-dev/glass/domain/ports"
)

const (
	// DefaultInterval is the tick interval when none is configured.
	DefaultInterval = 2 * time.Second
	// InputLayout formats the tick time passed to the guest.
	InputLayout = "2006-01-02][15:04:05"
)

var logger atomic.Pointer[zap.Logger]

// Logger returns the package logger. It is a no-op logger until SetLogger is called.
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// SetLogger replaces the package logger.
func SetLogger(l *zap.Logger) {
	logger.Store(l.Named("pingtrigger"))
}

// Executor runs one ping invocation.
type Executor = ports.Executor[string, string]

// Trigger calls the guest once per tick and hands each result to an output binding.
type Trigger struct {
	executor Executor
	output   ports.OutputBinding
	now      func() time.Time
	interval time.Duration
}

// Option configures a Trigger.
type Option func(*Trigger)

// WithInterval sets the tick interval.
func WithInterval(d time.Duration) Option {
	return func(t *Trigger) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithOutput sets the binding receiving results. The default writes to stdout.
func WithOutput(out ports.OutputBinding) Option {
	return func(t *Trigger) {
		t.output = out
	}
}

// WithClock replaces the time source used to build the guest input.
func WithClock(now func() time.Time) Option {
	return func(t *Trigger) {
		t.now = now
	}
}

// New creates a timer trigger for exec.
func New(exec Executor, opts ...Option) *Trigger {
	t := &Trigger{
		executor: exec,
		interval: DefaultInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.output == nil {
		t.output = NewConsole(nil)
	}
	return t
}

// Run ticks until ctx is done. The first tick fires immediately. Ticks do
// not overlap: a slow invocation delays the next one. Failed invocations are
// logged and do not stop the loop; a failing output binding does.
func (t *Trigger) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	Logger().Info("timer started", zap.Duration("interval", t.interval))
	for {
		if err := t.Tick(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			Logger().Info("timer stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick performs a single invocation and propagates its result.
func (t *Trigger) Tick(ctx context.Context) error {
	input := t.now().Format(InputLayout)
	out, err := t.executor.Execute(ctx, input)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		Logger().Warn("invocation failed", zap.String("input", input), zap.Error(err))
		return nil
	}
	if err := t.output.Write(ctx, out); err != nil {
		return fmt.Errorf("output binding: %w", err)
	}
	return nil
}

// Console writes each result as a line to a writer.
type Console struct {
	w   io.Writer
	now func() time.Time
}

var _ ports.OutputBinding = (*Console)(nil)

// NewConsole returns a binding writing to w, or to stdout when w is nil.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{w: w, now: time.Now}
}

// Write prints output with the time it was received.
func (c *Console) Write(_ context.Context, output string) error {
	_, err := fmt.Fprintf(c.w, "OUTPUT BINDING: %s at %s\n", output, c.now().Format(time.TimeOnly))
	return err
}
