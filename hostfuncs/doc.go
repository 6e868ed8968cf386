// Package hostfuncs implements the host side of the guest capability families
// in plain Go: the outbound HTTP allow-list and response-handle table, and the
// inference session bookkeeping. Nothing here touches guest memory; the wasm
// bindings in infrastructure/wazero translate pointers into these calls.
package hostfuncs
