// Package pingv01 runs guests of the deislabs_ping_v01 world: a single
// export that maps a string to a string.
package pingv01

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/reglet-dev/glass/domain/entities"
	"github.com/reglet-dev/glass/domain/ports"
	"github.com/reglet-dev/glass/host"
	"github.com/reglet-dev/glass/marshal"
)

const (
	// InterfaceName is the world name.
	InterfaceName = "deislabs_ping_v01"
	// Export is the entrypoint function.
	Export = "ping"
)

// Result area layout: string ptr at 0, len at 8.
const (
	retPtrOffset = 0
	retLenOffset = 8
	retAreaSize  = retLenOffset + 4
)

var i32 = api.ValueTypeI32

// Interface is the export set a ping guest must provide.
var Interface = host.Interface{
	Name: InterfaceName,
	Exports: []host.Export{
		{Name: Export, Params: []api.ValueType{i32, i32}, Results: []api.ValueType{i32}},
		{Name: marshal.ReallocExport, Params: []api.ValueType{i32, i32, i32, i32}, Results: []api.ValueType{i32}},
		{Name: marshal.FreeExport, Params: []api.ValueType{i32, i32, i32}},
	},
	Memory: true,
}

// Engine executes ping invocations, each in a fresh instance.
type Engine struct {
	engine *host.Engine
}

var _ ports.Executor[string, string] = (*Engine)(nil)

// New builds a ping engine from src.
func New(ctx context.Context, src host.Source, cfg entities.Config, opts ...host.Option) (*Engine, error) {
	e, err := host.Build(ctx, src, Interface, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &Engine{engine: e}, nil
}

// Execute passes input to the guest's ping export and returns its answer.
func (e *Engine) Execute(ctx context.Context, input string) (string, error) {
	return host.Invoke(ctx, e.engine, input, func(inst *host.Instance) (string, error) {
		return Invoke(inst, input)
	})
}

// Host returns the underlying engine.
func (e *Engine) Host() *host.Engine {
	return e.engine
}

// Close releases the engine.
func (e *Engine) Close(ctx context.Context) error {
	return e.engine.Close(ctx)
}

// Invoke calls ping on an already prepared instance.
func Invoke(inst *host.Instance, input string) (string, error) {
	codec, err := inst.Codec()
	if err != nil {
		return "", err
	}
	ctx := inst.Context()

	ptr, length, err := codec.LowerString(ctx, input)
	if err != nil {
		return "", inst.Fail(host.KindEncode, err)
	}
	inst.Advance(host.StageArgumentsLowered)

	results, err := inst.Call(Export, api.EncodeU32(ptr), api.EncodeU32(length))
	if err != nil {
		return "", err
	}

	ret := api.DecodeU32(results[0])
	if err := codec.View().CheckRange(ret, 1, retAreaSize); err != nil {
		return "", inst.Fail(host.KindDecode, err)
	}
	outPtr, err := codec.View().U32(ret + retPtrOffset)
	if err != nil {
		return "", inst.Fail(host.KindDecode, err)
	}
	outLen, err := codec.View().U32(ret + retLenOffset)
	if err != nil {
		return "", inst.Fail(host.KindDecode, err)
	}
	out, err := codec.LiftString(ctx, outPtr, outLen)
	if err != nil {
		return "", inst.Fail(host.KindDecode, err)
	}
	inst.Advance(host.StageResultLifted)
	return out, nil
}
