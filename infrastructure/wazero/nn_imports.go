package wazero

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/reglet-dev/glass/capability"
	"github.com/reglet-dev/glass/domain/ports"
	"github.com/reglet-dev/glass/hostfuncs"
	"github.com/reglet-dev/glass/marshal"
)

// Guest tensor layout: dims (ptr, len) at 0, element type at 8, data (ptr, len) at 12.
const (
	tensorDimsOffset = 0
	tensorTypeOffset = 8
	tensorDataOffset = 12
)

func nnState(ctx context.Context, mod api.Module) (*hostfuncs.InferenceSession, marshal.View, hostfuncs.NNErrno) {
	c, err := capability.FromContext(ctx)
	if err != nil {
		return nil, marshal.View{}, hostfuncs.NNRuntimeError
	}
	session, err := c.Inference()
	if err != nil {
		Logger().Debug("inference import called without a backend", zap.Error(err))
		return nil, marshal.View{}, hostfuncs.NNRuntimeError
	}
	mem := mod.Memory()
	if mem == nil {
		return nil, marshal.View{}, hostfuncs.NNMissingMemory
	}
	return session, marshal.NewView(mem), hostfuncs.NNSuccess
}

// nnLoad: (builders, builders_len, encoding, target, graph_ptr) -> errno
func nnLoad(ctx context.Context, mod api.Module, stack []uint64) {
	stack[0] = uint64(doNNLoad(ctx, mod, stack))
}

func doNNLoad(ctx context.Context, mod api.Module, stack []uint64) hostfuncs.NNErrno {
	session, v, errno := nnState(ctx, mod)
	if errno != hostfuncs.NNSuccess {
		return errno
	}
	base, count := api.DecodeU32(stack[0]), api.DecodeU32(stack[1])
	if v.CheckRange(base, count, 8) != nil {
		return hostfuncs.NNInvalidArgument
	}
	builders := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		ptr, length, err := v.PtrLen(base + i*8)
		if err != nil {
			return hostfuncs.NNInvalidArgument
		}
		b, err := v.Bytes(ptr, length)
		if err != nil {
			return hostfuncs.NNInvalidArgument
		}
		builders = append(builders, b)
	}

	graph, err := session.Load(ctx, builders,
		ports.GraphEncoding(api.DecodeU32(stack[2])), ports.ExecutionTarget(api.DecodeU32(stack[3])))
	if err != nil {
		return hostfuncs.AsNNErrno(err)
	}
	if err := v.PutU32(api.DecodeU32(stack[4]), graph); err != nil {
		return hostfuncs.NNInvalidArgument
	}
	return hostfuncs.NNSuccess
}

// nnInitExecutionContext: (graph, ctx_ptr) -> errno
func nnInitExecutionContext(ctx context.Context, mod api.Module, stack []uint64) {
	session, v, errno := nnState(ctx, mod)
	if errno == hostfuncs.NNSuccess {
		handle, err := session.InitExecutionContext(ctx, api.DecodeU32(stack[0]))
		errno = hostfuncs.AsNNErrno(err)
		if err == nil && v.PutU32(api.DecodeU32(stack[1]), handle) != nil {
			errno = hostfuncs.NNInvalidArgument
		}
	}
	stack[0] = uint64(errno)
}

// nnSetInput: (ctx, index, tensor_ptr) -> errno
func nnSetInput(ctx context.Context, mod api.Module, stack []uint64) {
	stack[0] = uint64(doNNSetInput(ctx, mod, stack))
}

func doNNSetInput(ctx context.Context, mod api.Module, stack []uint64) hostfuncs.NNErrno {
	session, v, errno := nnState(ctx, mod)
	if errno != hostfuncs.NNSuccess {
		return errno
	}
	tensor, err := readTensor(v, api.DecodeU32(stack[2]))
	if err != nil {
		return hostfuncs.NNInvalidArgument
	}
	return hostfuncs.AsNNErrno(session.SetInput(ctx, api.DecodeU32(stack[0]), api.DecodeU32(stack[1]), tensor))
}

func readTensor(v marshal.View, ptr uint32) (ports.Tensor, error) {
	dimsPtr, dimsLen, err := v.PtrLen(ptr + tensorDimsOffset)
	if err != nil {
		return ports.Tensor{}, err
	}
	if err := v.CheckRange(dimsPtr, dimsLen, 4); err != nil {
		return ports.Tensor{}, err
	}
	dims := make([]uint32, dimsLen)
	for i := range dims {
		if dims[i], err = v.U32(dimsPtr + uint32(i)*4); err != nil { //nolint:gosec // G115: i < dimsLen
			return ports.Tensor{}, err
		}
	}
	typ, err := v.Bytes(ptr+tensorTypeOffset, 1)
	if err != nil {
		return ports.Tensor{}, err
	}
	dataPtr, dataLen, err := v.PtrLen(ptr + tensorDataOffset)
	if err != nil {
		return ports.Tensor{}, err
	}
	data, err := v.Bytes(dataPtr, dataLen)
	if err != nil {
		return ports.Tensor{}, err
	}
	return ports.Tensor{Dims: dims, Type: ports.TensorType(typ[0]), Data: data}, nil
}

// nnCompute: (ctx) -> errno
func nnCompute(ctx context.Context, mod api.Module, stack []uint64) {
	session, _, errno := nnState(ctx, mod)
	if errno == hostfuncs.NNSuccess {
		errno = hostfuncs.AsNNErrno(session.Compute(ctx, api.DecodeU32(stack[0])))
	}
	stack[0] = uint64(errno)
}

// nnGetOutput: (ctx, index, out, out_max, written_ptr) -> errno
func nnGetOutput(ctx context.Context, mod api.Module, stack []uint64) {
	stack[0] = uint64(doNNGetOutput(ctx, mod, stack))
}

func doNNGetOutput(ctx context.Context, mod api.Module, stack []uint64) hostfuncs.NNErrno {
	session, v, errno := nnState(ctx, mod)
	if errno != hostfuncs.NNSuccess {
		return errno
	}
	out, err := session.GetOutput(ctx, api.DecodeU32(stack[0]), api.DecodeU32(stack[1]))
	if err != nil {
		return hostfuncs.AsNNErrno(err)
	}
	if uint64(len(out)) > uint64(api.DecodeU32(stack[3])) {
		return hostfuncs.NNInvalidArgument
	}
	if err := v.Put(api.DecodeU32(stack[2]), out); err != nil {
		return hostfuncs.NNInvalidArgument
	}
	if err := v.PutU32(api.DecodeU32(stack[4]), uint32(len(out))); err != nil { //nolint:gosec // G115: bounded by out_max
		return hostfuncs.NNInvalidArgument
	}
	return hostfuncs.NNSuccess
}
