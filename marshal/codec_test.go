package marshal

import (
	"context"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/glass/domain/errors"
)

// sliceMemory is a Memory backed by a byte slice.
type sliceMemory struct {
	buf []byte
}

func newSliceMemory(size int) *sliceMemory {
	return &sliceMemory{buf: make([]byte, size)}
}

func (m *sliceMemory) Size() uint32 { return uint32(len(m.buf)) }

func (m *sliceMemory) Read(offset, n uint32) ([]byte, bool) {
	if uint64(offset)+uint64(n) > uint64(len(m.buf)) {
		return nil, false
	}
	return m.buf[offset : offset+n], true
}

func (m *sliceMemory) Write(offset uint32, v []byte) bool {
	if uint64(offset)+uint64(len(v)) > uint64(len(m.buf)) {
		return false
	}
	copy(m.buf[offset:], v)
	return true
}

func (m *sliceMemory) ReadUint32Le(offset uint32) (uint32, bool) {
	b, ok := m.Read(offset, 4)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}

func (m *sliceMemory) WriteUint32Le(offset, v uint32) bool {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return m.Write(offset, b[:])
}

type allocation struct {
	ptr, size, align uint32
}

// trackingAllocator is a bump allocator that records every call.
type trackingAllocator struct {
	next   uint32
	allocs []allocation
	frees  []allocation
}

func newTrackingAllocator() *trackingAllocator {
	return &trackingAllocator{next: 16}
}

func (a *trackingAllocator) Realloc(_ context.Context, _, _, align, newSize uint32) (uint32, error) {
	ptr := (a.next + align - 1) &^ (align - 1)
	a.next = ptr + newSize
	a.allocs = append(a.allocs, allocation{ptr, newSize, align})
	return ptr, nil
}

func (a *trackingAllocator) Free(_ context.Context, ptr, size, align uint32) error {
	a.frees = append(a.frees, allocation{ptr, size, align})
	return nil
}

func TestCodec_BytesRoundTrip(t *testing.T) {
	ctx := context.Background()
	mem := newSliceMemory(1024)
	alloc := newTrackingAllocator()
	c := NewCodec(mem, alloc)

	body := []byte{0x00, 0xff, 'h', 'i', 0x7f}
	ptr, n, err := c.LowerBytes(ctx, body)
	require.NoError(t, err)
	assert.Equal(t, uint32(len(body)), n)

	got, err := c.LiftBytes(ctx, ptr, n)
	require.NoError(t, err)
	assert.Equal(t, body, got)

	// Mutating guest memory after lifting must not affect the host copy.
	mem.buf[ptr] = 'X'
	assert.Equal(t, byte(0x00), got[0])

	require.Len(t, alloc.frees, 1)
	assert.Equal(t, allocation{ptr, n, 1}, alloc.frees[0])
}

func TestCodec_LiftZeroLengthStillFrees(t *testing.T) {
	alloc := newTrackingAllocator()
	c := NewCodec(newSliceMemory(64), alloc)

	s, err := c.LiftString(context.Background(), 32, 0)
	require.NoError(t, err)
	assert.Equal(t, "", s)
	assert.Equal(t, []allocation{{32, 0, 1}}, alloc.frees)
}

func TestCodec_LiftStringInvalidUTF8(t *testing.T) {
	mem := newSliceMemory(64)
	alloc := newTrackingAllocator()
	c := NewCodec(mem, alloc)
	copy(mem.buf[8:], []byte{0xff, 0xfe})

	_, err := c.LiftString(context.Background(), 8, 2)
	require.Error(t, err)
	assert.True(t, errors.IsBoundaryKind(err, errors.KindInvalidUTF8))
	assert.Len(t, alloc.frees, 1, "buffer is released even when decoding fails")
}

func TestCodec_LiftOutOfBounds(t *testing.T) {
	alloc := newTrackingAllocator()
	c := NewCodec(newSliceMemory(64), alloc)

	_, err := c.LiftBytes(context.Background(), 60, 16)
	require.Error(t, err)
	assert.True(t, errors.IsBoundaryKind(err, errors.KindOutOfBounds))
	assert.Empty(t, alloc.frees)
}

func TestCodec_StringListRoundTrip(t *testing.T) {
	ctx := context.Background()
	alloc := newTrackingAllocator()
	c := NewCodec(newSliceMemory(4096), alloc)

	items := []string{"host:example.com", "accept:*/*", "x-empty:"}
	base, count, err := c.LowerStringList(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), count)
	assert.Equal(t, uint32(0), base%4, "list base is 4-byte aligned")
	require.Len(t, alloc.allocs, 4)
	assert.Equal(t, allocation{base, 24, 4}, alloc.allocs[0])

	got, err := c.LiftStringList(ctx, base, count)
	require.NoError(t, err)
	assert.Equal(t, items, got)

	// One free per element followed by the list itself.
	require.Len(t, alloc.frees, 4)
	assert.Equal(t, allocation{base, 24, 4}, alloc.frees[3])
	for i := 0; i < 3; i++ {
		assert.Equal(t, alloc.allocs[i+1], alloc.frees[i])
	}
}

func TestCodec_LiftStringListFreesPastBadElement(t *testing.T) {
	ctx := context.Background()
	mem := newSliceMemory(4096)
	alloc := newTrackingAllocator()
	c := NewCodec(mem, alloc)

	base, count, err := c.LowerStringList(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	ptrB, _, err := c.View().PtrLen(base + 8)
	require.NoError(t, err)
	mem.buf[ptrB] = 0xff

	_, err = c.LiftStringList(ctx, base, count)
	require.Error(t, err)
	assert.True(t, errors.IsBoundaryKind(err, errors.KindInvalidUTF8))
	assert.Len(t, alloc.frees, 4)
}

func TestCodec_LiftStringListHugeCount(t *testing.T) {
	ctx := context.Background()
	alloc := newTrackingAllocator()
	c := NewCodec(newSliceMemory(64), alloc)

	_, err := c.LiftStringList(ctx, 0, 0x1fffffff)
	require.Error(t, err)
	assert.True(t, errors.IsBoundaryKind(err, errors.KindOutOfBounds))
	assert.Empty(t, alloc.frees)
}

func TestCodec_Options(t *testing.T) {
	ctx := context.Background()
	c := NewCodec(newSliceMemory(256), newTrackingAllocator())

	tag, ptr, n, err := c.LowerOptionBytes(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint32{TagNone, 0, 0}, []uint32{tag, ptr, n})

	tag, _, n, err = c.LowerOptionBytes(ctx, []byte{})
	require.NoError(t, err)
	assert.Equal(t, TagSome, tag, "an empty body is present, not absent")
	assert.Equal(t, uint32(0), n)

	tag, base, count, err := c.LowerOptionStringList(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint32{TagNone, 0, 0}, []uint32{tag, base, count})
}

func TestLiftOption(t *testing.T) {
	present, err := LiftOption(0)
	require.NoError(t, err)
	assert.False(t, present)

	present, err = LiftOption(1)
	require.NoError(t, err)
	assert.True(t, present)

	for _, tag := range []uint32{2, 255, 0xffffffff} {
		t.Run(fmt.Sprint(tag), func(t *testing.T) {
			_, err := LiftOption(tag)
			assert.True(t, errors.IsBoundaryKind(err, errors.KindInvalidVariant))
		})
	}
}

func TestLiftU16(t *testing.T) {
	v, err := LiftU16(418)
	require.NoError(t, err)
	assert.Equal(t, uint16(418), v)

	_, err = LiftU16(70000)
	assert.True(t, errors.IsBoundaryKind(err, errors.KindBadInt))
}

func TestView_Bounds(t *testing.T) {
	v := NewView(newSliceMemory(8))

	require.NoError(t, v.PutU32(4, 0xdeadbeef))
	got, err := v.U32(4)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), got)

	_, err = v.U32(6)
	assert.True(t, errors.IsBoundaryKind(err, errors.KindOutOfBounds))
	assert.True(t, errors.IsBoundaryKind(v.Put(7, []byte("ab")), errors.KindOutOfBounds))
}

func TestView_CheckRange(t *testing.T) {
	v := NewView(newSliceMemory(16))

	assert.NoError(t, v.CheckRange(0, 2, 8))
	assert.NoError(t, v.CheckRange(16, 0, 8))
	assert.True(t, errors.IsBoundaryKind(v.CheckRange(8, 2, 8), errors.KindOutOfBounds))
	assert.True(t, errors.IsBoundaryKind(v.CheckRange(0xfffffff0, 0xffffffff, 8), errors.KindOutOfBounds))
}
