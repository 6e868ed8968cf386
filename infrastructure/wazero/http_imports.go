package wazero

import (
	"context"
	"encoding/binary"
	"unicode/utf8"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/reglet-dev/glass/capability"
	"github.com/reglet-dev/glass/hostfuncs"
	"github.com/reglet-dev/glass/marshal"
)

// httpState resolves the response table and guest memory of the calling instance.
func httpState(ctx context.Context, mod api.Module) (*hostfuncs.HTTPSessions, marshal.View, hostfuncs.HTTPErrno) {
	c, err := capability.FromContext(ctx)
	if err != nil {
		return nil, marshal.View{}, hostfuncs.HTTPRuntimeError
	}
	sessions, err := c.HTTP()
	if err != nil {
		return nil, marshal.View{}, hostfuncs.HTTPRuntimeError
	}
	mem := mod.Memory()
	if mem == nil {
		return nil, marshal.View{}, hostfuncs.HTTPMemoryNotFound
	}
	return sessions, marshal.NewView(mem), hostfuncs.HTTPSuccess
}

func readGuestString(v marshal.View, ptr, length uint64) (string, hostfuncs.HTTPErrno) {
	b, err := v.Bytes(api.DecodeU32(ptr), api.DecodeU32(length))
	if err != nil {
		return "", hostfuncs.HTTPMemoryAccessError
	}
	if !utf8.Valid(b) {
		return "", hostfuncs.HTTPUtf8Error
	}
	return string(b), hostfuncs.HTTPSuccess
}

// writeBounded copies data into a guest buffer of capacity bufLen and records
// the written length.
func writeBounded(v marshal.View, data []byte, bufPtr, bufLen, writtenPtr uint32) hostfuncs.HTTPErrno {
	if uint64(len(data)) > uint64(bufLen) {
		return hostfuncs.HTTPBufferTooSmall
	}
	if err := v.Put(bufPtr, data); err != nil {
		return hostfuncs.HTTPMemoryAccessError
	}
	if err := v.PutU32(writtenPtr, uint32(len(data))); err != nil { //nolint:gosec // G115: bounded by bufLen
		return hostfuncs.HTTPMemoryAccessError
	}
	return hostfuncs.HTTPSuccess
}

// httpReq: (url, url_len, method, method_len, headers, headers_len, body, body_len, status_ptr, handle_ptr) -> errno
func httpReq(ctx context.Context, mod api.Module, stack []uint64) {
	stack[0] = uint64(doHTTPReq(ctx, mod, stack))
}

func doHTTPReq(ctx context.Context, mod api.Module, stack []uint64) hostfuncs.HTTPErrno {
	sessions, v, errno := httpState(ctx, mod)
	if errno != hostfuncs.HTTPSuccess {
		return errno
	}
	rawURL, errno := readGuestString(v, stack[0], stack[1])
	if errno != hostfuncs.HTTPSuccess {
		return errno
	}
	method, errno := readGuestString(v, stack[2], stack[3])
	if errno != hostfuncs.HTTPSuccess {
		return errno
	}
	block, errno := readGuestString(v, stack[4], stack[5])
	if errno != hostfuncs.HTTPSuccess {
		return errno
	}
	headers, err := marshal.ParseHeaderBlock(block)
	if err != nil {
		Logger().Debug("guest sent malformed request headers", zap.Error(err))
		return hostfuncs.HTTPInvalidEncoding
	}
	body, err := v.Bytes(api.DecodeU32(stack[6]), api.DecodeU32(stack[7]))
	if err != nil {
		return hostfuncs.HTTPMemoryAccessError
	}

	handle, status, err := sessions.Request(ctx, method, rawURL, headers, body)
	if err != nil {
		return hostfuncs.AsHTTPErrno(err)
	}

	statusBuf := binary.LittleEndian.AppendUint16(nil, uint16(status)) //nolint:gosec // G115: HTTP status codes fit in u16
	if err := v.Put(api.DecodeU32(stack[8]), statusBuf); err != nil {
		_ = sessions.Close(handle)
		return hostfuncs.HTTPMemoryAccessError
	}
	if err := v.PutU32(api.DecodeU32(stack[9]), handle); err != nil {
		_ = sessions.Close(handle)
		return hostfuncs.HTTPMemoryAccessError
	}
	return hostfuncs.HTTPSuccess
}

// httpClose: (handle) -> errno
func httpClose(ctx context.Context, mod api.Module, stack []uint64) {
	sessions, _, errno := httpState(ctx, mod)
	if errno == hostfuncs.HTTPSuccess {
		errno = hostfuncs.AsHTTPErrno(sessions.Close(api.DecodeU32(stack[0])))
	}
	stack[0] = uint64(errno)
}

// httpHeaderGet: (handle, name, name_len, value, value_len, written_ptr) -> errno
func httpHeaderGet(ctx context.Context, mod api.Module, stack []uint64) {
	stack[0] = uint64(doHTTPHeaderGet(ctx, mod, stack))
}

func doHTTPHeaderGet(ctx context.Context, mod api.Module, stack []uint64) hostfuncs.HTTPErrno {
	sessions, v, errno := httpState(ctx, mod)
	if errno != hostfuncs.HTTPSuccess {
		return errno
	}
	name, errno := readGuestString(v, stack[1], stack[2])
	if errno != hostfuncs.HTTPSuccess {
		return errno
	}
	value, err := sessions.Header(api.DecodeU32(stack[0]), name)
	if err != nil {
		return hostfuncs.AsHTTPErrno(err)
	}
	return writeBounded(v, []byte(value), api.DecodeU32(stack[3]), api.DecodeU32(stack[4]), api.DecodeU32(stack[5]))
}

// httpHeadersGetAll: (handle, buf, buf_len, written_ptr) -> errno
func httpHeadersGetAll(ctx context.Context, mod api.Module, stack []uint64) {
	stack[0] = uint64(doHTTPHeadersGetAll(ctx, mod, stack))
}

func doHTTPHeadersGetAll(ctx context.Context, mod api.Module, stack []uint64) hostfuncs.HTTPErrno {
	sessions, v, errno := httpState(ctx, mod)
	if errno != hostfuncs.HTTPSuccess {
		return errno
	}
	headers, err := sessions.Headers(api.DecodeU32(stack[0]))
	if err != nil {
		return hostfuncs.AsHTTPErrno(err)
	}
	block := marshal.FormatHeaderBlock(headers)
	return writeBounded(v, []byte(block), api.DecodeU32(stack[1]), api.DecodeU32(stack[2]), api.DecodeU32(stack[3]))
}

// httpBodyRead: (handle, buf, buf_len, written_ptr) -> errno. Zero bytes
// written means the body is exhausted.
func httpBodyRead(ctx context.Context, mod api.Module, stack []uint64) {
	stack[0] = uint64(doHTTPBodyRead(ctx, mod, stack))
}

func doHTTPBodyRead(ctx context.Context, mod api.Module, stack []uint64) hostfuncs.HTTPErrno {
	sessions, v, errno := httpState(ctx, mod)
	if errno != hostfuncs.HTTPSuccess {
		return errno
	}
	chunk, err := sessions.ReadBody(api.DecodeU32(stack[0]), int(api.DecodeU32(stack[2])))
	if err != nil {
		return hostfuncs.AsHTTPErrno(err)
	}
	return writeBounded(v, chunk, api.DecodeU32(stack[1]), api.DecodeU32(stack[2]), api.DecodeU32(stack[3]))
}

