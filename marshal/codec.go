package marshal

import (
	"context"
	"math"
	"unicode/utf8"

	"github.com/reglet-dev/glass/domain/errors"
)

// Alignment of the canonical ABI allocations made by the codec.
const (
	alignByte = 1
	alignList = 4
	// listElemSize is the size of one (ptr, len) element of a string list.
	listElemSize = 8
)

// Option discriminants.
const (
	TagNone uint32 = 0
	TagSome uint32 = 1
)

// Codec lowers host values into guest memory and lifts guest values back.
// Every buffer lifted from the guest is freed exactly once, after copying,
// whether or not decoding it succeeds.
type Codec struct {
	alloc Allocator
	view  View
}

// NewCodec creates a codec over mem using alloc for guest allocations.
func NewCodec(mem Memory, alloc Allocator) *Codec {
	return &Codec{view: NewView(mem), alloc: alloc}
}

// View returns the codec's memory view.
func (c *Codec) View() View {
	return c.view
}

// LowerBytes copies b into a fresh guest allocation.
func (c *Codec) LowerBytes(ctx context.Context, b []byte) (ptr, length uint32, err error) {
	if uint64(len(b)) > math.MaxUint32 {
		return 0, 0, errors.NewBoundaryError(errors.KindBadInt, "buffer of %d bytes exceeds 32-bit length", len(b))
	}
	length = uint32(len(b)) //nolint:gosec // G115: checked above
	ptr, err = c.alloc.Realloc(ctx, 0, 0, alignByte, length)
	if err != nil {
		return 0, 0, err
	}
	if err := c.view.Put(ptr, b); err != nil {
		return 0, 0, err
	}
	return ptr, length, nil
}

// LowerString copies s into a fresh guest allocation.
func (c *Codec) LowerString(ctx context.Context, s string) (ptr, length uint32, err error) {
	return c.LowerBytes(ctx, []byte(s))
}

// LowerStringList writes a list of (ptr, len) string elements and returns the list base and count.
func (c *Codec) LowerStringList(ctx context.Context, items []string) (base, count uint32, err error) {
	if uint64(len(items)) > math.MaxUint32/listElemSize {
		return 0, 0, errors.NewBoundaryError(errors.KindBadInt, "list of %d elements too long", len(items))
	}
	count = uint32(len(items)) //nolint:gosec // G115: checked above
	base, err = c.alloc.Realloc(ctx, 0, 0, alignList, count*listElemSize)
	if err != nil {
		return 0, 0, err
	}
	for i, item := range items {
		ptr, length, err := c.LowerString(ctx, item)
		if err != nil {
			return 0, 0, err
		}
		if err := c.view.PutPtrLen(base+uint32(i)*listElemSize, ptr, length); err != nil { //nolint:gosec // G115: i < count
			return 0, 0, err
		}
	}
	return base, count, nil
}

// LowerOptionBytes lowers an optional buffer. A nil slice is encoded as none.
func (c *Codec) LowerOptionBytes(ctx context.Context, b []byte) (tag, ptr, length uint32, err error) {
	if b == nil {
		return TagNone, 0, 0, nil
	}
	ptr, length, err = c.LowerBytes(ctx, b)
	return TagSome, ptr, length, err
}

// LowerOptionStringList lowers an optional string list. A nil slice is encoded as none.
func (c *Codec) LowerOptionStringList(ctx context.Context, items []string) (tag, base, count uint32, err error) {
	if items == nil {
		return TagNone, 0, 0, nil
	}
	base, count, err = c.LowerStringList(ctx, items)
	return TagSome, base, count, err
}

// LiftBytes copies [ptr, ptr+length) out of the guest and frees it.
func (c *Codec) LiftBytes(ctx context.Context, ptr, length uint32) ([]byte, error) {
	b, readErr := c.view.Bytes(ptr, length)
	if readErr != nil {
		return nil, readErr
	}
	if err := c.alloc.Free(ctx, ptr, length, alignByte); err != nil {
		return nil, err
	}
	return b, nil
}

// LiftString lifts a UTF-8 string and frees its buffer.
func (c *Codec) LiftString(ctx context.Context, ptr, length uint32) (string, error) {
	b, err := c.LiftBytes(ctx, ptr, length)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errors.NewBoundaryError(errors.KindInvalidUTF8, "string of %d bytes at %#x", length, ptr)
	}
	return string(b), nil
}

// LiftStringList lifts a list of strings, freeing every element and then the list itself.
// Decoding continues past a bad element so that every buffer is still released;
// the first error is returned.
func (c *Codec) LiftStringList(ctx context.Context, base, count uint32) ([]string, error) {
	if count > math.MaxUint32/listElemSize {
		return nil, errors.NewBoundaryError(errors.KindBadInt, "list of %d elements too long", count)
	}
	if err := c.view.CheckRange(base, count, listElemSize); err != nil {
		return nil, err
	}
	out := make([]string, 0, count)
	var firstErr error
	for i := uint32(0); i < count; i++ {
		ptr, length, err := c.view.PtrLen(base + i*listElemSize)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			break
		}
		s, err := c.LiftString(ctx, ptr, length)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out = append(out, s)
	}
	if err := c.alloc.Free(ctx, base, count*listElemSize, alignList); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// LiftOption decodes an option discriminant.
func LiftOption(tag uint32) (bool, error) {
	switch tag {
	case TagNone:
		return false, nil
	case TagSome:
		return true, nil
	default:
		return false, errors.NewBoundaryError(errors.KindInvalidVariant, "option discriminant %d", tag)
	}
}

// LiftU16 narrows a guest i32 to uint16.
func LiftU16(v uint32) (uint16, error) {
	if v > math.MaxUint16 {
		return 0, errors.NewBoundaryError(errors.KindBadInt, "value %d out of range for u16", v)
	}
	return uint16(v), nil //nolint:gosec // G115: checked above
}
