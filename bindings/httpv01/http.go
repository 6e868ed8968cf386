// Package httpv01 runs guests of the deislabs_http_v01 world. A guest exports
// a single handler taking a request tuple and returning a response tuple.
package httpv01

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
	InterfaceName = "deislabs_http_v01"
	// Export is the entrypoint function.
	Export = "handler"
)

// Result area layout.
const (
	retStatus     = 0
	retHeadersTag = 8
	retHeadersPtr = 16
	retHeadersLen = 24
	retBodyTag    = 32
	retBodyPtr    = 40
	retBodyLen    = 48
	retAreaSize   = retBodyLen + 4
)

const handlerParams = 11

// Interface is the export set an HTTP guest must provide.
var Interface = host.Interface{
	Name: InterfaceName,
	Exports: []host.Export{
		{Name: Export, Params: i32s(handlerParams), Results: i32s(1)},
		{Name: marshal.ReallocExport, Params: i32s(4), Results: i32s(1)},
		{Name: marshal.FreeExport, Params: i32s(3)},
	},
	Memory: true,
}

func i32s(n int) []api.ValueType {
	out := make([]api.ValueType, n)
	for i := range out {
		out[i] = api.ValueTypeI32
	}
	return out
}

// Request is the request tuple passed to the handler.
type Request struct {
	URI     string
	Headers []marshal.Header
	// Params is optional; nil is passed as none.
	Params []string
	// Body is optional; nil is passed as none.
	Body   []byte
	Method marshal.Method
}

// Response is the handler's result. Headers and Body are nil when the guest
// returned none.
type Response struct {
	Headers []marshal.Header
	Body    []byte
	Status  uint16
}

// Engine executes HTTP invocations, each in a fresh instance.
type Engine struct {
	engine *host.Engine
}

var _ ports.Executor[Request, Response] = (*Engine)(nil)

// New builds an HTTP engine from src.
func New(ctx context.Context, src host.Source, cfg entities.Config, opts ...host.Option) (*Engine, error) {
	e, err := host.Build(ctx, src, Interface, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &Engine{engine: e}, nil
}

// Execute runs the guest handler on req.
func (e *Engine) Execute(ctx context.Context, req Request) (Response, error) {
	return host.Invoke(ctx, e.engine, req, func(inst *host.Instance) (Response, error) {
		return Invoke(inst, req)
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

// Invoke calls the handler on an already prepared instance.
func Invoke(inst *host.Instance, req Request) (Response, error) {
	headers, err := marshal.EncodeHeaders(req.Headers)
	if err != nil {
		return Response{}, inst.Fail(host.KindEncode, err)
	}
	codec, err := inst.Codec()
	if err != nil {
		return Response{}, err
	}

	params, err := lower(inst.Context(), codec, req, headers)
	if err != nil {
		return Response{}, inst.Fail(host.KindEncode, err)
	}
	inst.Advance(host.StageArgumentsLowered)

	results, err := inst.Call(Export, params...)
	if err != nil {
		return Response{}, err
	}

	resp, err := lift(inst.Context(), codec, api.DecodeU32(results[0]))
	if err != nil {
		return Response{}, inst.Fail(host.KindDecode, err)
	}
	inst.Advance(host.StageResultLifted)
	return resp, nil
}

func lower(ctx context.Context, codec *marshal.Codec, req Request, headers []string) ([]uint64, error) {
	uriPtr, uriLen, err := codec.LowerString(ctx, req.URI)
	if err != nil {
		return nil, err
	}
	hdrBase, hdrCount, err := codec.LowerStringList(ctx, headers)
	if err != nil {
		return nil, err
	}
	paramsTag, paramsBase, paramsCount, err := codec.LowerOptionStringList(ctx, req.Params)
	if err != nil {
		return nil, err
	}
	bodyTag, bodyPtr, bodyLen, err := codec.LowerOptionBytes(ctx, req.Body)
	if err != nil {
		return nil, err
	}
	return []uint64{
		api.EncodeU32(uint32(req.Method)),
		api.EncodeU32(uriPtr), api.EncodeU32(uriLen),
		api.EncodeU32(hdrBase), api.EncodeU32(hdrCount),
		api.EncodeU32(paramsTag), api.EncodeU32(paramsBase), api.EncodeU32(paramsCount),
		api.EncodeU32(bodyTag), api.EncodeU32(bodyPtr), api.EncodeU32(bodyLen),
	}, nil
}

// lift decodes the result area at ret, which must lie wholly inside memory.
// Every field is lifted even after an earlier one fails so that each guest
// buffer is freed; the first error wins.
func lift(ctx context.Context, codec *marshal.Codec, ret uint32) (Response, error) {
	v := codec.View()
	if err := v.CheckRange(ret, 1, retAreaSize); err != nil {
		return Response{}, err
	}
	var resp Response
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	status, err := v.U32(ret + retStatus)
	keep(err)
	if err == nil {
		resp.Status, err = marshal.LiftU16(status)
		keep(err)
	}

	if some, err := liftTag(v, ret+retHeadersTag); err != nil {
		keep(err)
	} else if some {
		base, count, err := ptrLen(v, ret+retHeadersPtr, ret+retHeadersLen)
		keep(err)
		if err == nil {
			raw, err := codec.LiftStringList(ctx, base, count)
			keep(err)
			if err == nil {
				resp.Headers, err = marshal.DecodeHeaders(raw)
				keep(err)
			}
		}
	}

	if some, err := liftTag(v, ret+retBodyTag); err != nil {
		keep(err)
	} else if some {
		ptr, length, err := ptrLen(v, ret+retBodyPtr, ret+retBodyLen)
		keep(err)
		if err == nil {
			resp.Body, err = codec.LiftBytes(ctx, ptr, length)
			keep(err)
		}
	}

	if firstErr != nil {
		return Response{}, firstErr
	}
	return resp, nil
}

func liftTag(v marshal.View, at uint32) (bool, error) {
	tag, err := v.U32(at)
	if err != nil {
		return false, err
	}
	return marshal.LiftOption(tag)
}

func ptrLen(v marshal.View, ptrAt, lenAt uint32) (ptr, length uint32, err error) {
	if ptr, err = v.U32(ptrAt); err != nil {
		return 0, 0, err
	}
	if length, err = v.U32(lenAt); err != nil {
		return 0, 0, err
	}
	return ptr, length, nil
}
