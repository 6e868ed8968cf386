package hostfuncs

import (
	"context"
	stdErrors "errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/reglet-dev/glass/domain/ports"
)

// NNErrno is the error value returned to guests by the inference imports.
type NNErrno uint32

const (
	NNSuccess NNErrno = iota
	NNInvalidArgument
	NNInvalidEncoding
	NNMissingMemory
	NNBusy
	NNRuntimeError
)

var nnErrnoNames = [...]string{
	"success",
	"invalid argument",
	"invalid encoding",
	"missing memory",
	"busy",
	"runtime error",
}

func (e NNErrno) Error() string {
	if int(e) < len(nnErrnoNames) {
		return nnErrnoNames[e]
	}
	return fmt.Sprintf("nn errno %d", uint32(e))
}

// AsNNErrno extracts the guest-facing error value from err.
func AsNNErrno(err error) NNErrno {
	if err == nil {
		return NNSuccess
	}
	var errno NNErrno
	if stdErrors.As(err, &errno) {
		return errno
	}
	return NNRuntimeError
}

// InferenceSession holds the graphs and execution contexts created by one
// invocation. Handles are indices into the session and are only meaningful to
// the guest instance that owns it.
type InferenceSession struct {
	backend  ports.InferenceBackend
	graphs   []ports.Graph
	contexts []ports.ExecutionContext
}

// NewInferenceSession creates an empty session over backend.
func NewInferenceSession(backend ports.InferenceBackend) *InferenceSession {
	return &InferenceSession{backend: backend}
}

// Load loads a model and returns its graph handle.
func (s *InferenceSession) Load(ctx context.Context, builders [][]byte, encoding ports.GraphEncoding, target ports.ExecutionTarget) (uint32, error) {
	if encoding > ports.EncodingTensorflowLite {
		return 0, NNInvalidEncoding
	}
	if target > ports.TargetTPU {
		return 0, NNInvalidArgument
	}
	g, err := s.backend.Load(ctx, builders, encoding, target)
	if err != nil {
		Logger().Debug("inference load failed", zap.Error(err))
		return 0, wrapBackendError(err)
	}
	s.graphs = append(s.graphs, g)
	return uint32(len(s.graphs) - 1), nil //nolint:gosec // G115: bounded by guest call count
}

// InitExecutionContext creates an execution context for a loaded graph.
func (s *InferenceSession) InitExecutionContext(ctx context.Context, graph uint32) (uint32, error) {
	if int(graph) >= len(s.graphs) {
		return 0, NNInvalidArgument
	}
	ec, err := s.graphs[graph].InitExecutionContext(ctx)
	if err != nil {
		return 0, wrapBackendError(err)
	}
	s.contexts = append(s.contexts, ec)
	return uint32(len(s.contexts) - 1), nil //nolint:gosec // G115: bounded by guest call count
}

// SetInput binds a tensor to an input index.
func (s *InferenceSession) SetInput(ctx context.Context, execCtx, index uint32, tensor ports.Tensor) error {
	ec, err := s.context(execCtx)
	if err != nil {
		return err
	}
	if tensor.Type > ports.TensorI32 {
		return NNInvalidArgument
	}
	return wrapBackendError(ec.SetInput(ctx, index, tensor))
}

// Compute runs inference.
func (s *InferenceSession) Compute(ctx context.Context, execCtx uint32) error {
	ec, err := s.context(execCtx)
	if err != nil {
		return err
	}
	return wrapBackendError(ec.Compute(ctx))
}

// GetOutput returns the bytes of an output tensor.
func (s *InferenceSession) GetOutput(ctx context.Context, execCtx, index uint32) ([]byte, error) {
	ec, err := s.context(execCtx)
	if err != nil {
		return nil, err
	}
	out, err := ec.GetOutput(ctx, index)
	if err != nil {
		return nil, wrapBackendError(err)
	}
	return out, nil
}

// Graphs returns the number of loaded graphs.
func (s *InferenceSession) Graphs() int {
	return len(s.graphs)
}

func (s *InferenceSession) context(handle uint32) (ports.ExecutionContext, error) {
	if int(handle) >= len(s.contexts) {
		return nil, NNInvalidArgument
	}
	return s.contexts[handle], nil
}

// wrapBackendError keeps backend-supplied errnos and maps everything else to a runtime error.
func wrapBackendError(err error) error {
	if err == nil {
		return nil
	}
	var errno NNErrno
	if stdErrors.As(err, &errno) {
		return errno
	}
	return fmt.Errorf("%w: %w", NNRuntimeError, err)
}
