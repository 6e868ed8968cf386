package testutil

import (
	"fmt"
	"strings"
)

// Response describes the fixed reply of a handler guest. Tags other than 0
// and 1 produce malformed option discriminants.
type Response struct {
	Body       string
	Headers    []string
	Status     uint32
	HeadersTag uint32
	BodyTag    uint32
}

const handlerSig = `(param $method i32) (param $uri i32) (param $uri_len i32)
    (param $hdrs i32) (param $hdrs_len i32)
    (param $ptag i32) (param $pptr i32) (param $plen i32)
    (param $btag i32) (param $bptr i32) (param $blen i32) (result i32)`

// HTTPResponder returns a deislabs_http_v01 guest that always answers r.
func HTTPResponder(r Response) string {
	var data strings.Builder
	var code strings.Builder
	// fixture data starts past the $fail scratch area
	addr := uint32(1088)
	place := func(b []byte) uint32 {
		at := addr
		fmt.Fprintf(&data, "  (data (i32.const %d) %s)\n", at, watString(b))
		addr += (uint32(len(b)) + 3) &^ 3 //nolint:gosec // G115: fixture sizes are tiny
		return at
	}

	lent := uint32(0)
	listBase := uint32(0)
	if len(r.Headers) > 0 {
		ptrs := make([]uint32, len(r.Headers))
		for i, h := range r.Headers {
			ptrs[i] = place([]byte(h))
		}
		listBase = addr
		addr += uint32(len(r.Headers)) * 8 //nolint:gosec // G115: fixture sizes are tiny
		for i, h := range r.Headers {
			fmt.Fprintf(&code, "    (i32.store (i32.const %d) (i32.const %d))\n", listBase+uint32(i)*8, ptrs[i])  //nolint:gosec // G115
			fmt.Fprintf(&code, "    (i32.store (i32.const %d) (i32.const %d))\n", listBase+uint32(i)*8+4, len(h)) //nolint:gosec // G115
		}
	}
	if r.HeadersTag == 1 {
		lent += uint32(len(r.Headers)) + 1 //nolint:gosec // G115
	}
	bodyPtr := place([]byte(r.Body))
	if r.BodyTag == 1 {
		lent++
	}

	fmt.Fprintf(&code, "    (i32.store (i32.const 256) (i32.const %d))\n", r.Status)
	fmt.Fprintf(&code, "    (i32.store offset=8 (i32.const 256) (i32.const %d))\n", r.HeadersTag)
	fmt.Fprintf(&code, "    (i32.store offset=16 (i32.const 256) (i32.const %d))\n", listBase)
	fmt.Fprintf(&code, "    (i32.store offset=24 (i32.const 256) (i32.const %d))\n", len(r.Headers))
	fmt.Fprintf(&code, "    (i32.store offset=32 (i32.const 256) (i32.const %d))\n", r.BodyTag)
	fmt.Fprintf(&code, "    (i32.store offset=40 (i32.const 256) (i32.const %d))\n", bodyPtr)
	fmt.Fprintf(&code, "    (i32.store offset=48 (i32.const 256) (i32.const %d))\n", len(r.Body))
	fmt.Fprintf(&code, "    (global.set $lent (i32.const %d))\n", lent)

	return module("", data.String(),
		`  (func (export "handler") `+handlerSig+"\n"+code.String()+"    (i32.const 256))")
}

// OK answers 200 with a text/plain header and body "ok".
func OK() string {
	return HTTPResponder(Response{
		Status:     200,
		HeadersTag: 1,
		Headers:    []string{"content-type:text/plain"},
		BodyTag:    1,
		Body:       "ok",
	})
}

// Teapot answers 418 with no headers and body "teapot".
func Teapot() string {
	return HTTPResponder(Response{Status: 418, BodyTag: 1, Body: "teapot"})
}

// Echo answers with status 200+method, the request headers and the request body.
func Echo() string {
	return module("", `
  (func (export "handler") `+handlerSig+`
    (i32.store (i32.const 256) (i32.add (i32.const 200) (local.get $method)))
    (i32.store offset=8 (i32.const 256) (i32.const 1))
    (i32.store offset=16 (i32.const 256) (local.get $hdrs))
    (i32.store offset=24 (i32.const 256) (local.get $hdrs_len))
    (i32.store offset=32 (i32.const 256) (local.get $btag))
    (i32.store offset=40 (i32.const 256) (local.get $bptr))
    (i32.store offset=48 (i32.const 256) (local.get $blen))
    (global.set $lent (i32.add (i32.add (local.get $hdrs_len) (i32.const 1)) (local.get $btag)))
    (i32.const 256))`)
}

// EchoURI answers 200 with the request URI as body and no headers.
func EchoURI() string {
	return module("", `
  (func (export "handler") `+handlerSig+`
    (local $out i32)
    (local.set $out (call $realloc (i32.const 0) (i32.const 0) (i32.const 1) (local.get $uri_len)))
    (memory.copy (local.get $out) (local.get $uri) (local.get $uri_len))
    (i32.store (i32.const 256) (i32.const 200))
    (i32.store offset=8 (i32.const 256) (i32.const 0))
    (i32.store offset=32 (i32.const 256) (i32.const 1))
    (i32.store offset=40 (i32.const 256) (local.get $out))
    (i32.store offset=48 (i32.const 256) (local.get $uri_len))
    (global.set $lent (i32.const 1))
    (i32.const 256))`)
}

// HugeHeaderList answers 200 with a header list whose length far exceeds memory.
func HugeHeaderList() string {
	return module("", `
  (func (export "handler") `+handlerSig+`
    (i32.store (i32.const 256) (i32.const 200))
    (i32.store offset=8 (i32.const 256) (i32.const 1))
    (i32.store offset=16 (i32.const 256) (i32.const 0))
    (i32.store offset=24 (i32.const 256) (i32.const 0x1fffffff))
    (i32.store offset=32 (i32.const 256) (i32.const 0))
    (i32.const 256))`)
}

// HandlerReturning answers with the result area pointer ret.
func HandlerReturning(ret uint32) string {
	return module("", fmt.Sprintf(`
  (func (export "handler") `+handlerSig+`
    (i32.const %d))`, int32(ret))) //nolint:gosec // G115: wasm i32 literal
}

// NoHandler exports the allocator but no entrypoint.
func NoHandler() string {
	return module("")
}

// WrongHandlerSignature exports a handler that takes two parameters.
func WrongHandlerSignature() string {
	return module("", `
  (func (export "handler") (param i32 i32) (result i32)
    (i32.const 256))`)
}
