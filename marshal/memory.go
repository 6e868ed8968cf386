package marshal

import (
	"fmt"

	"github.com/reglet-dev/glass/domain/errors"
)

// Memory is the subset of a guest linear memory the codec needs.
// api.Memory satisfies it.
type Memory interface {
	Size() uint32
	Read(offset, byteCount uint32) ([]byte, bool)
	Write(offset uint32, v []byte) bool
	ReadUint32Le(offset uint32) (uint32, bool)
	WriteUint32Le(offset, v uint32) bool
}

// View is a bounds-checked accessor over guest memory. Every failed access is
// reported as an out_of_bounds BoundaryError.
type View struct {
	mem Memory
}

// NewView wraps mem.
func NewView(mem Memory) View {
	return View{mem: mem}
}

// Bytes returns a host-owned copy of [ptr, ptr+n).
func (v View) Bytes(ptr, n uint32) ([]byte, error) {
	if n == 0 {
		return []byte{}, nil
	}
	buf, ok := v.mem.Read(ptr, n)
	if !ok {
		return nil, v.outOfBounds("read", ptr, n)
	}
	out := make([]byte, n)
	copy(out, buf)
	return out, nil
}

// Put writes b at ptr.
func (v View) Put(ptr uint32, b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if !v.mem.Write(ptr, b) {
		return v.outOfBounds("write", ptr, uint32(len(b))) //nolint:gosec // G115: bounded by guest memory size
	}
	return nil
}

// U32 loads a little-endian uint32.
func (v View) U32(ptr uint32) (uint32, error) {
	val, ok := v.mem.ReadUint32Le(ptr)
	if !ok {
		return 0, v.outOfBounds("read", ptr, 4)
	}
	return val, nil
}

// PutU32 stores a little-endian uint32.
func (v View) PutU32(ptr, val uint32) error {
	if !v.mem.WriteUint32Le(ptr, val) {
		return v.outOfBounds("write", ptr, 4)
	}
	return nil
}

// PtrLen loads a (ptr, len) pair stored at base and base+4.
func (v View) PtrLen(base uint32) (ptr, length uint32, err error) {
	if ptr, err = v.U32(base); err != nil {
		return 0, 0, err
	}
	if length, err = v.U32(base + 4); err != nil {
		return 0, 0, err
	}
	return ptr, length, nil
}

// PutPtrLen stores a (ptr, len) pair at base and base+4.
func (v View) PutPtrLen(base, ptr, length uint32) error {
	if err := v.PutU32(base, ptr); err != nil {
		return err
	}
	return v.PutU32(base+4, length)
}

// CheckRange returns an out_of_bounds error unless count elements of elemSize bytes at base
// lie inside guest memory. Call it before sizing host buffers from guest counts.
func (v View) CheckRange(base, count, elemSize uint32) error {
	if end := uint64(base) + uint64(count)*uint64(elemSize); end > uint64(v.mem.Size()) {
		return &errors.BoundaryError{
			Kind:   errors.KindOutOfBounds,
			Detail: fmt.Sprintf("%d elements of %d bytes at %#x exceed memory size %d", count, elemSize, base, v.mem.Size()),
		}
	}
	return nil
}

func (v View) outOfBounds(op string, ptr, n uint32) error {
	return &errors.BoundaryError{
		Kind:   errors.KindOutOfBounds,
		Detail: fmt.Sprintf("%s of %d bytes at %#x exceeds memory size %d", op, n, ptr, v.mem.Size()),
	}
}
