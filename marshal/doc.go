// Package marshal converts between host values and the guest's flat canonical
// ABI: strings, byte buffers and string lists passed as (ptr, len) pairs,
// options encoded as a 0/1 discriminant.
//
// Lowering allocates through the guest's canonical_abi_realloc export. Lifting
// copies each guest buffer out and then releases it through canonical_abi_free,
// exactly once. Every pointer is bounds-checked; failures are reported as
// *errors.BoundaryError, never as panics.
package marshal
