// Package testutil provides hand-written guest modules for tests.
//
// Guests are written in WebAssembly text and compiled at test time. Every
// guest embeds a bump allocator exporting the canonical ABI allocator
// functions and three counters: "allocs" (realloc calls), "frees" (free
// calls) and "lent" (buffers the guest handed to the host on return). After
// an invocation the host must have freed exactly "lent" buffers.
package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"
	"github.com/wippyai/wasm-runtime/wat"
)

// Compile compiles WAT source, failing the test on error.
func Compile(t testing.TB, source string) []byte {
	t.Helper()
	bin, err := wat.Compile(source)
	require.NoError(t, err, "compile guest")
	return bin
}

// Counters reads the allocator counters of a live guest instance.
func Counters(mod api.Module) (allocs, frees, lent uint32) {
	get := func(name string) uint32 {
		g := mod.ExportedGlobal(name)
		if g == nil {
			return 0
		}
		return api.DecodeU32(g.Get())
	}
	return get("allocs"), get("frees"), get("lent")
}

// prelude is shared by every guest: memory, allocator and the failure helper.
// Addresses below 8192 are reserved for fixed scratch areas; the heap starts there.
const prelude = `
  (memory $mem 4)
  (export "memory" (memory $mem))
  (global $heap (mut i32) (i32.const 8192))
  (global $allocs (mut i32) (i32.const 0))
  (global $frees (mut i32) (i32.const 0))
  (global $lent (mut i32) (i32.const 0))
  (export "allocs" (global $allocs))
  (export "frees" (global $frees))
  (export "lent" (global $lent))

  (func $realloc (export "canonical_abi_realloc")
    (param $old i32) (param $old_size i32) (param $align i32) (param $size i32) (result i32)
    (local $p i32)
    (global.set $allocs (i32.add (global.get $allocs) (i32.const 1)))
    (local.set $p (i32.and
      (i32.add (global.get $heap) (i32.sub (local.get $align) (i32.const 1)))
      (i32.sub (i32.const 0) (local.get $align))))
    (global.set $heap (i32.add (local.get $p) (local.get $size)))
    (local.get $p))

  (func $free (export "canonical_abi_free") (param $ptr i32) (param $size i32) (param $align i32)
    (global.set $frees (i32.add (global.get $frees) (i32.const 1))))

  ;; $fail returns the string "Enn" with the two-digit error value nn.
  (func $fail (param $e i32) (result i32)
    (i32.store8 (i32.const 1040) (i32.const 69))
    (i32.store8 (i32.const 1041) (i32.add (i32.const 48) (i32.div_u (local.get $e) (i32.const 10))))
    (i32.store8 (i32.const 1042) (i32.add (i32.const 48) (i32.rem_u (local.get $e) (i32.const 10))))
    (i32.store (i32.const 256) (i32.const 1040))
    (i32.store offset=8 (i32.const 256) (i32.const 3))
    (global.set $lent (i32.const 1))
    (i32.const 256))
`

// module assembles a guest. Imports precede the prelude's definitions.
func module(imports string, body ...string) string {
	return "(module\n" + imports + prelude + strings.Join(body, "\n") + "\n)"
}

// watString renders b as a WAT string literal.
func watString(b []byte) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, c := range b {
		if c >= 0x20 && c < 0x7f && c != '"' && c != '\\' {
			sb.WriteByte(c)
			continue
		}
		fmt.Fprintf(&sb, "\\%02x", c)
	}
	sb.WriteByte('"')
	return sb.String()
}
