package ember

import (
	"sort"

	"github.com/google/uuid"
)

// poolObject is implemented by every heap-managed reference type
// (Vector, Map, Coroutine, Userdata) so a single generic pool type can
// allocate, mark and sweep all four kinds (§4.1).
type poolObject interface {
	getUsed() bool
	setUsed(bool)
	getMark() bool
	setMark(bool)
	reset()
}

func (v *Vector) getUsed() bool    { return v.used }
func (v *Vector) setUsed(u bool)   { v.used = u }
func (v *Vector) getMark() bool    { return v.marked }
func (v *Vector) setMark(m bool)   { v.marked = m }
func (v *Vector) reset()          { v.items = nil; v.Meta = Nil }

func (m *Map) getUsed() bool  { return m.used }
func (m *Map) setUsed(u bool) { m.used = u }
func (m *Map) getMark() bool  { return m.marked }
func (m *Map) setMark(k bool) { m.marked = k }
func (m *Map) reset() {
	m.keys = Vector{}
	m.vals = Vector{}
	m.Meta = Nil
}

func (c *Coroutine) getUsed() bool  { return c.used }
func (c *Coroutine) setUsed(u bool) { c.used = u }
func (c *Coroutine) getMark() bool  { return c.marked }
func (c *Coroutine) setMark(k bool) { c.marked = k }
func (c *Coroutine) reset()         { *c = Coroutine{used: true} }

func (u *Userdata) getUsed() bool  { return u.used }
func (u *Userdata) setUsed(b bool) { u.used = b }
func (u *Userdata) getMark() bool  { return u.marked }
func (u *Userdata) setMark(b bool) { u.marked = b }
func (u *Userdata) reset()         { u.Ptr = nil; u.Meta = Nil }

// pool is a typed arena allocator: a flat slot array mirrored by a
// per-slot used/mark bit (carried on the object itself rather than a
// separate bitset, which is the natural Go reading of §4.1's "per-slot
// `used` bit and `mark` bit mirror each page" when slots are already
// individually addressable Go values instead of raw bytes). Allocation
// scans from a rotating cursor for the first free slot and grows by one
// page when the arena is full; this is the teacher's absent component —
// ozanh/ugo leaves lifetime entirely to the Go GC — so it is grounded
// directly on the spec text and on the arena/pool style VMs in the
// broader retrieval pack (e.g. bytecode-VM-style arena allocators that
// reuse freed slots by index rather than returning memory to the
// runtime allocator).
type pool[T poolObject] struct {
	slots    []T
	cursor   int
	pageSize int
	zero     func() T
}

func newPool[T poolObject](pageSize int, zero func() T) *pool[T] {
	return &pool[T]{pageSize: pageSize, zero: zero}
}

func (p *pool[T]) alloc() T {
	n := len(p.slots)
	for i := 0; i < n; i++ {
		idx := (p.cursor + i) % n
		if !p.slots[idx].getUsed() {
			p.slots[idx].setUsed(true)
			p.slots[idx].setMark(false)
			p.cursor = (idx + 1) % n
			return p.slots[idx]
		}
	}
	grow := p.pageSize
	for i := 0; i < grow; i++ {
		p.slots = append(p.slots, p.zero())
	}
	obj := p.slots[n]
	obj.setUsed(true)
	p.cursor = (n + 1) % len(p.slots)
	return obj
}

// sweep clears every used-but-unmarked slot, freeing its internal
// buffers (§4.1 "Sweep pools"), and returns the number of slots
// reclaimed.
func (p *pool[T]) sweep() int {
	freed := 0
	for _, s := range p.slots {
		if s.getUsed() && !s.getMark() {
			s.reset()
			s.setUsed(false)
			freed++
		}
	}
	return freed
}

// resetMarks clears every slot's mark bit ahead of a fresh mark phase
// (§4.1) — without this, an object that was reachable last cycle but
// isn't anymore would wrongly survive sweep on its stale mark bit.
func (p *pool[T]) resetMarks() {
	for _, s := range p.slots {
		s.setMark(false)
	}
}

func (p *pool[T]) usedCount() int {
	n := 0
	for _, s := range p.slots {
		if s.getUsed() {
			n++
		}
	}
	return n
}

// Heap owns the object pools and the two-region string interner
// (§4.1). It is created once per VM and shared by every coroutine.
type Heap struct {
	vectors    *pool[*Vector]
	maps       *pool[*Map]
	coroutines *pool[*Coroutine]
	userdata   *pool[*Userdata]

	oldStrings   []*istring
	youngStrings []*istring
}

const defaultPoolPage = 64

func newHeap() *Heap { return newHeapSized(defaultPoolPage) }

// newHeapSized is newHeap with an overridable pool page size, for
// hosts that pass CreateOptions.MemoryPages.
func newHeapSized(page int) *Heap {
	return &Heap{
		vectors:    newPool(page, func() *Vector { return &Vector{} }),
		maps:       newPool(page, func() *Map { return &Map{} }),
		coroutines: newPool(page, func() *Coroutine { return &Coroutine{} }),
		userdata:   newPool(page, func() *Userdata { return &Userdata{} }),
	}
}

// resetMarks clears the mark bit on every pool ahead of a Collect
// mark phase.
func (h *Heap) resetMarks() {
	h.vectors.resetMarks()
	h.maps.resetMarks()
	h.coroutines.resetMarks()
	h.userdata.resetMarks()
}

func (h *Heap) allocVector() *Vector { return h.vectors.alloc() }
func (h *Heap) allocMap() *Map       { return h.maps.alloc() }

// allocCoroutine stamps a fresh id onto the slot before returning it,
// so a recycled pool slot never reuses a prior coroutine's identity.
func (h *Heap) allocCoroutine() *Coroutine {
	c := h.coroutines.alloc()
	c.id = uuid.NewString()
	return c
}

func (h *Heap) allocUserdata() *Userdata { return h.userdata.alloc() }

// intern returns the unique *istring for s, inserting into the young
// region if not already present in either region (§4.1 "String
// interning"). Binary search is used in both regions since each is
// kept sorted by byte content.
func (h *Heap) intern(s string) *istring {
	if is := searchIstrings(h.oldStrings, s); is != nil {
		return is
	}
	if is := searchIstrings(h.youngStrings, s); is != nil {
		return is
	}
	is := &istring{bytes: s}
	i := sort.Search(len(h.youngStrings), func(i int) bool {
		return h.youngStrings[i].bytes >= s
	})
	h.youngStrings = append(h.youngStrings, nil)
	copy(h.youngStrings[i+1:], h.youngStrings[i:])
	h.youngStrings[i] = is
	return is
}

func searchIstrings(region []*istring, s string) *istring {
	i := sort.Search(len(region), func(i int) bool { return region[i].bytes >= s })
	if i < len(region) && region[i].bytes == s {
		return region[i]
	}
	return nil
}

// promoteYoungStrings merges the young region into the old region and
// starts a fresh young region; called once after compilation finishes
// (§4.1) so that script-source identifiers and literals become
// permanent and are skipped by future sweeps.
func (h *Heap) promoteYoungStrings() {
	merged := make([]*istring, 0, len(h.oldStrings)+len(h.youngStrings))
	i, j := 0, 0
	for i < len(h.oldStrings) && j < len(h.youngStrings) {
		if h.oldStrings[i].bytes <= h.youngStrings[j].bytes {
			merged = append(merged, h.oldStrings[i])
			i++
		} else {
			merged = append(merged, h.youngStrings[j])
			j++
		}
	}
	merged = append(merged, h.oldStrings[i:]...)
	merged = append(merged, h.youngStrings[j:]...)
	h.oldStrings = merged
	h.youngStrings = nil
}

// sweepYoungStrings drops unmarked entries from the young region only;
// the old region is never swept (§3 "the old region is never swept").
func (h *Heap) sweepYoungStrings(marked map[*istring]bool) {
	kept := h.youngStrings[:0]
	for _, is := range h.youngStrings {
		if marked[is] {
			kept = append(kept, is)
		}
	}
	h.youngStrings = kept
}

// mark recursively marks a reachable Value's heap objects (§4.1
// "Collection"). markedStrings accumulates reachable young-region
// *istring pointers for sweepYoungStrings.
func mark(v Value, markedStrings map[*istring]bool) {
	switch v.Tag {
	case TagString:
		if v.S != nil {
			markedStrings[v.S] = true
		}
	case TagVector:
		markVector(v.Vec, markedStrings)
	case TagMap:
		markMap(v.M, markedStrings)
	case TagCoroutine:
		markCoroutine(v.Cor, markedStrings)
	case TagUserdata:
		markUserdata(v.U, markedStrings)
	}
}

func markVector(vec *Vector, ms map[*istring]bool) {
	if vec == nil || vec.marked {
		return
	}
	vec.marked = true
	mark(vec.Meta, ms)
	for _, it := range vec.items {
		mark(it, ms)
	}
}

func markMap(m *Map, ms map[*istring]bool) {
	if m == nil || m.marked {
		return
	}
	m.marked = true
	// keys/vals are embedded, not pool slots, so resetMarks never
	// clears their own mark bits; clear them here before walking them.
	m.keys.marked, m.vals.marked = false, false
	mark(m.Meta, ms)
	markVector(&m.keys, ms)
	markVector(&m.vals, ms)
}

func markCoroutine(c *Coroutine, ms map[*istring]bool) {
	if c == nil || c.marked {
		return
	}
	c.marked = true
	mark(c.pendingMap, ms)
	for _, v := range c.stack {
		mark(v, ms)
	}
	for _, v := range c.other {
		mark(v, ms)
	}
	for _, f := range c.frames {
		mark(f.pendingMap, ms)
		for _, v := range f.localVals {
			mark(v, ms)
		}
		for _, n := range f.localNames {
			ms[n] = true
		}
	}
}

func markUserdata(u *Userdata, ms map[*istring]bool) {
	if u == nil || u.marked {
		return
	}
	u.marked = true
	mark(u.Meta, ms)
}
