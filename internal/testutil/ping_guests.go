package testutil

import "fmt"

// returnOut stores the $out and $out_len locals as the ping result.
const returnOut = `
    (i32.store (i32.const 256) (local.get $out))
    (i32.store offset=8 (i32.const 256) (local.get $out_len))
    (global.set $lent (i32.const 1))
    (i32.const 256)`

// Ping returns a deislabs_ping_v01 guest answering prefix followed by the input.
func Ping(prefix string) string {
	n := len(prefix)
	return module("",
		fmt.Sprintf(`  (data (i32.const 1088) %s)`, watString([]byte(prefix))),
		fmt.Sprintf(`
  (func (export "ping") (param $ptr i32) (param $len i32) (result i32)
    (local $out i32) (local $out_len i32)
    (local.set $out_len (i32.add (local.get $len) (i32.const %d)))
    (local.set $out (call $realloc (i32.const 0) (i32.const 0) (i32.const 1) (local.get $out_len)))
    (memory.copy (local.get $out) (i32.const 1088) (i32.const %d))
    (memory.copy (i32.add (local.get $out) (i32.const %d)) (local.get $ptr) (local.get $len))`+returnOut+`)`, n, n, n))
}

// Counter answers the input followed by a digit counting calls on this
// instance. A fresh instance always answers input+"1".
func Counter() string {
	return module("", `
  (global $calls (mut i32) (i32.const 0))
  (func (export "ping") (param $ptr i32) (param $len i32) (result i32)
    (local $out i32) (local $out_len i32)
    (global.set $calls (i32.add (global.get $calls) (i32.const 1)))
    (local.set $out_len (i32.add (local.get $len) (i32.const 1)))
    (local.set $out (call $realloc (i32.const 0) (i32.const 0) (i32.const 1) (local.get $out_len)))
    (memory.copy (local.get $out) (local.get $ptr) (local.get $len))
    (i32.store8 (i32.add (local.get $out) (local.get $len))
      (i32.add (i32.const 48) (global.get $calls)))`+returnOut+`)`)
}

// Spin never returns.
func Spin() string {
	return module("", `
  (func (export "ping") (param $ptr i32) (param $len i32) (result i32)
    (loop $forever (br $forever))
    (i32.const 256))`)
}

// Trap executes unreachable.
func Trap() string {
	return module("", `
  (func (export "ping") (param $ptr i32) (param $len i32) (result i32)
    (unreachable))`)
}

// InvalidUTF8 answers a string that is not valid UTF-8.
func InvalidUTF8() string {
	return module("", `
  (data (i32.const 1088) "\ff\fe")
  (func (export "ping") (param $ptr i32) (param $len i32) (result i32)
    (local $out i32) (local $out_len i32)
    (local.set $out (i32.const 1088))
    (local.set $out_len (i32.const 2))`+returnOut+`)`)
}

// OutOfBounds answers a string pointing past the end of memory.
func OutOfBounds() string {
	return module("", `
  (func (export "ping") (param $ptr i32) (param $len i32) (result i32)
    (local $out i32) (local $out_len i32)
    (local.set $out (i32.const 0x7fff0000))
    (local.set $out_len (i32.const 16))`+returnOut+`)`)
}

// PingReturning answers with the result area pointer ret.
func PingReturning(ret uint32) string {
	return module("", fmt.Sprintf(`
  (func (export "ping") (param $ptr i32) (param $len i32) (result i32)
    (i32.const %d))`, int32(ret))) //nolint:gosec // G115: wasm i32 literal
}

// Environ answers the guest's environment as NUL-separated NAME=VALUE pairs.
func Environ() string {
	return module(`
  (import "wasi_snapshot_preview1" "environ_sizes_get" (func $environ_sizes_get (param i32 i32) (result i32)))
  (import "wasi_snapshot_preview1" "environ_get" (func $environ_get (param i32 i32) (result i32)))
`, `
  (func (export "ping") (param $ptr i32) (param $len i32) (result i32)
    (local $out i32) (local $out_len i32)
    (drop (call $environ_sizes_get (i32.const 128) (i32.const 132)))
    (drop (call $environ_get (i32.const 2048) (i32.const 4096)))
    (local.set $out (i32.const 4096))
    (if (i32.load (i32.const 132))
      (then (local.set $out_len (i32.sub (i32.load (i32.const 132)) (i32.const 1)))))`+returnOut+`)`)
}

// Preopen answers the name of the first pre-opened directory, or "none".
func Preopen() string {
	return module(`
  (import "wasi_snapshot_preview1" "fd_prestat_get" (func $fd_prestat_get (param i32 i32) (result i32)))
  (import "wasi_snapshot_preview1" "fd_prestat_dir_name" (func $fd_prestat_dir_name (param i32 i32 i32) (result i32)))
`, `
  (data (i32.const 1088) "none")
  (func (export "ping") (param $ptr i32) (param $len i32) (result i32)
    (local $out i32) (local $out_len i32)
    (local.set $out (i32.const 1088))
    (local.set $out_len (i32.const 4))
    (if (i32.eqz (call $fd_prestat_get (i32.const 3) (i32.const 128)))
      (then
        (local.set $out (i32.const 4096))
        (local.set $out_len (i32.load (i32.const 132)))
        (drop (call $fd_prestat_dir_name (i32.const 3) (i32.const 4096) (local.get $out_len)))))`+returnOut+`)`)
}

// Fetch performs a GET of the input URL and answers the response body, a '|'
// and the value of the response header "x-test". Failures answer "Enn".
func Fetch() string {
	return module(`
  (import "wasi_experimental_http" "req" (func $req (param i32 i32 i32 i32 i32 i32 i32 i32 i32 i32) (result i32)))
  (import "wasi_experimental_http" "body_read" (func $body_read (param i32 i32 i32 i32) (result i32)))
  (import "wasi_experimental_http" "header_get" (func $header_get (param i32 i32 i32 i32 i32 i32) (result i32)))
  (import "wasi_experimental_http" "close" (func $close (param i32) (result i32)))
`, `
  (data (i32.const 1088) "GET")
  (data (i32.const 1096) "x-test")
  (func (export "ping") (param $ptr i32) (param $len i32) (result i32)
    (local $e i32) (local $handle i32) (local $body_len i32) (local $out i32) (local $out_len i32)
    (if (local.tee $e (call $req (local.get $ptr) (local.get $len) (i32.const 1088) (i32.const 3)
          (i32.const 0) (i32.const 0) (i32.const 0) (i32.const 0) (i32.const 128) (i32.const 132)))
      (then (return (call $fail (local.get $e)))))
    (local.set $handle (i32.load (i32.const 132)))
    (if (local.tee $e (call $body_read (local.get $handle) (i32.const 4096) (i32.const 2048) (i32.const 136)))
      (then (return (call $fail (local.get $e)))))
    (local.set $body_len (i32.load (i32.const 136)))
    (i32.store8 (i32.add (i32.const 4096) (local.get $body_len)) (i32.const 124))
    (if (local.tee $e (call $header_get (local.get $handle) (i32.const 1096) (i32.const 6)
          (i32.add (i32.const 4097) (local.get $body_len)) (i32.const 1024) (i32.const 140)))
      (then (return (call $fail (local.get $e)))))
    (if (local.tee $e (call $close (local.get $handle)))
      (then (return (call $fail (local.get $e)))))
    (local.set $out (i32.const 4096))
    (local.set $out_len (i32.add (i32.add (local.get $body_len) (i32.const 1)) (i32.load (i32.const 140))))`+returnOut+`)`)
}

// Infer loads the input as an ONNX model, feeds it back as an f32 tensor and
// answers output 0. Failures answer "Enn".
func Infer() string {
	return module(`
  (import "wasi_ephemeral_nn" "load" (func $load (param i32 i32 i32 i32 i32) (result i32)))
  (import "wasi_ephemeral_nn" "init_execution_context" (func $init (param i32 i32) (result i32)))
  (import "wasi_ephemeral_nn" "set_input" (func $set_input (param i32 i32 i32) (result i32)))
  (import "wasi_ephemeral_nn" "compute" (func $compute (param i32) (result i32)))
  (import "wasi_ephemeral_nn" "get_output" (func $get_output (param i32 i32 i32 i32 i32) (result i32)))
`, `
  (func (export "ping") (param $ptr i32) (param $len i32) (result i32)
    (local $e i32) (local $out i32) (local $out_len i32)
    (i32.store (i32.const 512) (local.get $ptr))
    (i32.store offset=4 (i32.const 512) (local.get $len))
    (if (local.tee $e (call $load (i32.const 512) (i32.const 1) (i32.const 1) (i32.const 0) (i32.const 144)))
      (then (return (call $fail (local.get $e)))))
    (if (local.tee $e (call $init (i32.load (i32.const 144)) (i32.const 148)))
      (then (return (call $fail (local.get $e)))))
    (i32.store (i32.const 192) (local.get $len))
    (i32.store (i32.const 160) (i32.const 192))
    (i32.store offset=4 (i32.const 160) (i32.const 1))
    (i32.store8 offset=8 (i32.const 160) (i32.const 1))
    (i32.store offset=12 (i32.const 160) (local.get $ptr))
    (i32.store offset=16 (i32.const 160) (local.get $len))
    (if (local.tee $e (call $set_input (i32.load (i32.const 148)) (i32.const 0) (i32.const 160)))
      (then (return (call $fail (local.get $e)))))
    (if (local.tee $e (call $compute (i32.load (i32.const 148))))
      (then (return (call $fail (local.get $e)))))
    (if (local.tee $e (call $get_output (i32.load (i32.const 148)) (i32.const 0) (i32.const 4096) (i32.const 1024) (i32.const 152)))
      (then (return (call $fail (local.get $e)))))
    (local.set $out (i32.const 4096))
    (local.set $out_len (i32.load (i32.const 152)))`+returnOut+`)`)
}

// UnknownImport imports a function the host does not provide.
func UnknownImport() string {
	return module(`
  (import "wasi_experimental_http" "teleport" (func $teleport (param i32) (result i32)))
`, pingStub)
}

// UnknownNamespace imports from a namespace the host does not provide.
func UnknownNamespace() string {
	return module(`
  (import "env" "abort" (func $abort))
`, pingStub)
}

// MismatchedImport imports a host function with the wrong signature.
func MismatchedImport() string {
	return module(`
  (import "wasi_experimental_http" "close" (func $close (param i32 i32) (result i32)))
`, pingStub)
}

const pingStub = `
  (func (export "ping") (param $ptr i32) (param $len i32) (result i32)
    (i32.const 256))`
