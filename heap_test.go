package ember

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPoolAllocGrowsByPageAndReusesFreedSlots(t *testing.T) {
	p := newPool(4, func() *Vector { return &Vector{} })
	require.Equal(t, 0, p.usedCount())

	first := p.alloc()
	require.True(t, first.getUsed())
	require.False(t, first.getMark())
	require.Equal(t, 1, p.usedCount())

	for i := 0; i < 3; i++ {
		p.alloc()
	}
	require.Equal(t, 4, p.usedCount())

	// a fifth allocation must grow the backing slice by one page
	p.alloc()
	require.Equal(t, 5, p.usedCount())
	require.Len(t, p.slots, 8)

	// sweeping everything unmarked frees every slot
	freed := p.sweep()
	require.Equal(t, 5, freed)
	require.Equal(t, 0, p.usedCount())

	// the next allocation reuses a freed slot instead of growing again
	p.alloc()
	require.Equal(t, 1, p.usedCount())
	require.Len(t, p.slots, 8)
}

func TestPoolSweepOnlyReclaimsUnmarkedSlots(t *testing.T) {
	p := newPool(4, func() *Vector { return &Vector{} })
	a := p.alloc()
	b := p.alloc()
	a.setMark(true)

	freed := p.sweep()
	require.Equal(t, 1, freed)
	require.True(t, a.getUsed())
	require.False(t, b.getUsed())
}

func TestPoolResetMarksClearsEverySlot(t *testing.T) {
	p := newPool(4, func() *Vector { return &Vector{} })
	a := p.alloc()
	a.setMark(true)
	p.resetMarks()
	require.False(t, a.getMark())
}

func TestHeapInternReturnsSamePointerForEqualStrings(t *testing.T) {
	h := newHeap()
	a := h.intern("hello")
	b := h.intern("hello")
	require.Same(t, a, b)

	c := h.intern("world")
	require.NotSame(t, a, c)
}

func TestHeapPromoteYoungStringsMergesSorted(t *testing.T) {
	h := newHeap()
	h.intern("banana")
	h.intern("apple")
	h.promoteYoungStrings()
	require.Empty(t, h.youngStrings)
	require.Len(t, h.oldStrings, 2)
	require.Equal(t, "apple", h.oldStrings[0].bytes)
	require.Equal(t, "banana", h.oldStrings[1].bytes)

	h.intern("cherry")
	h.promoteYoungStrings()
	require.Len(t, h.oldStrings, 3)
	require.Equal(t, "cherry", h.oldStrings[2].bytes)

	// interning a string already promoted to the old region must not
	// create a second young-region copy.
	again := h.intern("apple")
	require.Same(t, h.oldStrings[0], again)
}

func TestHeapSweepYoungStringsDropsUnmarked(t *testing.T) {
	h := newHeap()
	kept := h.intern("kept")
	h.intern("dropped")

	marked := map[*istring]bool{kept: true}
	h.sweepYoungStrings(marked)

	require.Len(t, h.youngStrings, 1)
	require.Equal(t, "kept", h.youngStrings[0].bytes)
}

func TestAllocCoroutineStampsUniqueIDs(t *testing.T) {
	h := newHeap()
	a := h.allocCoroutine()
	b := h.allocCoroutine()

	require.NotEmpty(t, a.id)
	require.NotEmpty(t, b.id)
	require.NotEqual(t, a.id, b.id)
}

func TestAllocCoroutineRestampsIDOnRecycledSlot(t *testing.T) {
	// a one-slot page leaves the rotating cursor on the freed slot
	h := newHeapSized(1)
	a := h.allocCoroutine()
	firstID := a.id
	a.setMark(false)
	a.reset()
	a.setUsed(false)

	b := h.allocCoroutine()
	require.Same(t, a, b)
	require.NotEqual(t, firstID, b.id)
}

func TestMarkReachabilityThroughVectorAndMap(t *testing.T) {
	h := newHeap()
	inner := h.allocVector()
	inner.Push(IntVal(1))

	outer := h.allocMap()
	outer.Set(IntVal(1), Value{Tag: TagVector, Vec: inner})

	ms := map[*istring]bool{}
	markMap(outer, ms)

	require.True(t, outer.marked)
	require.True(t, inner.marked)
}

func TestMarkReachabilityThroughCoroutineStack(t *testing.T) {
	h := newHeap()
	vec := h.allocVector()

	co := h.allocCoroutine()
	co.stack = []Value{{Tag: TagVector, Vec: vec}}

	ms := map[*istring]bool{}
	markCoroutine(co, ms)

	require.True(t, co.marked)
	require.True(t, vec.marked)
}

func TestMarkDoesNotRevisitAlreadyMarkedObjects(t *testing.T) {
	h := newHeap()
	m := h.allocMap()
	m.Meta = Value{Tag: TagMap, M: m} // self-referential meta

	ms := map[*istring]bool{}
	require.NotPanics(t, func() {
		markMap(m, ms)
	})
	require.True(t, m.marked)
}
