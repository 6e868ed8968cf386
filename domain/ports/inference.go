package ports

import "context"

// GraphEncoding identifies the serialization format of a model.
type GraphEncoding uint32

const (
	EncodingOpenVINO GraphEncoding = iota
	EncodingONNX
	EncodingTensorflow
	EncodingPyTorch
	EncodingTensorflowLite
)

// ExecutionTarget identifies the device a graph should run on.
type ExecutionTarget uint32

const (
	TargetCPU ExecutionTarget = iota
	TargetGPU
	TargetTPU
)

// TensorType identifies the element type of a tensor.
type TensorType uint32

const (
	TensorF16 TensorType = iota
	TensorF32
	TensorU8
	TensorI32
)

// Tensor is a host copy of a guest tensor.
type Tensor struct {
	Dims []uint32
	Data []byte
	Type TensorType
}

// InferenceBackend loads models for the inference capability family.
// The runtime only owns session bookkeeping; all numeric work happens here.
type InferenceBackend interface {
	Load(ctx context.Context, builders [][]byte, encoding GraphEncoding, target ExecutionTarget) (Graph, error)
}

// Graph is a loaded model.
type Graph interface {
	InitExecutionContext(ctx context.Context) (ExecutionContext, error)
}

// ExecutionContext holds the inputs and outputs of one inference run.
type ExecutionContext interface {
	SetInput(ctx context.Context, index uint32, tensor Tensor) error
	Compute(ctx context.Context) error
	GetOutput(ctx context.Context, index uint32) ([]byte, error)
}
