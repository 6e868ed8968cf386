package marshal

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/reglet-dev/glass/domain/errors"
)

// Export names of the guest allocator.
const (
	ReallocExport = "canonical_abi_realloc"
	FreeExport    = "canonical_abi_free"
)

// Allocator allocates and releases guest memory.
type Allocator interface {
	Realloc(ctx context.Context, oldPtr, oldSize, align, newSize uint32) (uint32, error)
	Free(ctx context.Context, ptr, size, align uint32) error
}

// GuestAllocator calls the guest's canonical ABI allocator exports.
type GuestAllocator struct {
	realloc api.Function
	free    api.Function
}

// NewGuestAllocator looks up the allocator exports on mod.
func NewGuestAllocator(mod api.Module) (*GuestAllocator, error) {
	realloc := mod.ExportedFunction(ReallocExport)
	if realloc == nil {
		return nil, fmt.Errorf("guest module missing %q export", ReallocExport)
	}
	free := mod.ExportedFunction(FreeExport)
	if free == nil {
		return nil, fmt.Errorf("guest module missing %q export", FreeExport)
	}
	return &GuestAllocator{realloc: realloc, free: free}, nil
}

// Realloc implements Allocator.
func (a *GuestAllocator) Realloc(ctx context.Context, oldPtr, oldSize, align, newSize uint32) (uint32, error) {
	results, err := a.realloc.Call(ctx,
		api.EncodeU32(oldPtr), api.EncodeU32(oldSize), api.EncodeU32(align), api.EncodeU32(newSize))
	if err != nil {
		return 0, &errors.BoundaryError{Kind: errors.KindAllocation, Detail: fmt.Sprintf("realloc %d bytes", newSize), Err: err}
	}
	return api.DecodeU32(results[0]), nil
}

// Free implements Allocator.
func (a *GuestAllocator) Free(ctx context.Context, ptr, size, align uint32) error {
	if _, err := a.free.Call(ctx, api.EncodeU32(ptr), api.EncodeU32(size), api.EncodeU32(align)); err != nil {
		return &errors.BoundaryError{Kind: errors.KindAllocation, Detail: fmt.Sprintf("free %d bytes at %#x", size, ptr), Err: err}
	}
	return nil
}
