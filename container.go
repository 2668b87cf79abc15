package ember

import "strings"

// Vector is the growable, 0-indexed sequence of §3/§4.2, with an
// optional meta value used for operator dispatch (§4.8). It is
// allocated from the heap's vector pool (heap.go) and managed by the
// collector; it is never freed directly by user code.
//
// Grounded on the teacher's Array type (objects.go) — IndexGet/
// IndexSet/String/Sort here are the same operations, generalized from
// `[]Object` to the spec's explicitly pool-owned representation.
type Vector struct {
	items []Value
	Meta  Value
	marked bool
	used   bool
}

func newVector() *Vector { return &Vector{} }

func (v *Vector) Len() int { return len(v.items) }

func (v *Vector) Get(i int) (Value, bool) {
	if i < 0 || i >= len(v.items) {
		return Nil, false
	}
	return v.items[i], true
}

// Set assigns index i, growing (nil-padding) the vector when i is the
// append position `#vec` or beyond, matching §6 "vec[#vec] is the
// append position".
func (v *Vector) Set(i int, val Value) bool {
	if i < 0 {
		return false
	}
	for i >= len(v.items) {
		v.items = append(v.items, Nil)
	}
	v.items[i] = val
	return true
}

func (v *Vector) Push(val Value) { v.items = append(v.items, val) }

func (v *Vector) Items() []Value { return v.items }

func (v *Vector) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, it := range v.items {
		if i > 0 {
			sb.WriteString(", ")
		}
		if it.Tag == TagString {
			sb.WriteString(strings.ReplaceAll(it.S.bytes, "\"", "\\\""))
		} else {
			sb.WriteString(it.String())
		}
	}
	sb.WriteByte(']')
	return sb.String()
}

// Map is the sorted parallel-vector map of §3/§4.2: `keys` strictly
// sorted, `|keys|=|vals|`, no key ever bound to a nil value (assigning
// nil deletes). Lookup is binary search above mapLinearThreshold.
//
// Grounded on the teacher's Map type (objects.go), generalized from a
// Go-native `map[string]Object` to the spec's explicit sorted-vector
// representation (the spec's total key order spans all Value types,
// not just strings).
type Map struct {
	keys Vector
	vals Vector
	Meta Value
	marked bool
	used   bool
}

func newMap() *Map { return &Map{} }

// mapLinearThreshold: below this many keys, a linear scan beats binary
// search in practice (branch-prediction-friendly short scans), matching
// §4.2 "Lookup is binary search above a small linear-scan threshold."
const mapLinearThreshold = 8

// search returns the index of key if present, or the insertion point
// and false otherwise.
func (m *Map) search(key Value) (int, bool) {
	n := m.keys.Len()
	if n <= mapLinearThreshold {
		for i := 0; i < n; i++ {
			k, _ := m.keys.Get(i)
			c := k.Compare(key)
			if c == 0 {
				return i, true
			}
			if c > 0 {
				return i, false
			}
		}
		return n, false
	}
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		k, _ := m.keys.Get(mid)
		c := k.Compare(key)
		switch {
		case c == 0:
			return mid, true
		case c < 0:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false
}

func (m *Map) Get(key Value) (Value, bool) {
	i, ok := m.search(key)
	if !ok {
		return Nil, false
	}
	v, _ := m.vals.Get(i)
	return v, true
}

// Set inserts or updates key=val, or deletes the key if val is nil
// (§3 invariant "A map never contains a key whose value is nil").
func (m *Map) Set(key, val Value) {
	i, ok := m.search(key)
	if val.Tag == TagNil {
		if ok {
			m.keys.items = append(m.keys.items[:i], m.keys.items[i+1:]...)
			m.vals.items = append(m.vals.items[:i], m.vals.items[i+1:]...)
		}
		return
	}
	if ok {
		m.vals.items[i] = val
		return
	}
	m.keys.items = append(m.keys.items, Nil)
	copy(m.keys.items[i+1:], m.keys.items[i:])
	m.keys.items[i] = key

	m.vals.items = append(m.vals.items, Nil)
	copy(m.vals.items[i+1:], m.vals.items[i:])
	m.vals.items[i] = val
}

func (m *Map) Delete(key Value) { m.Set(key, Nil) }

func (m *Map) Len() int { return m.keys.Len() }

func (m *Map) Keys() *Vector { return &m.keys }
func (m *Map) Vals() *Vector { return &m.vals }

func (m *Map) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i := 0; i < m.keys.Len(); i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		k, _ := m.keys.Get(i)
		v, _ := m.vals.Get(i)
		sb.WriteString(k.String())
		sb.WriteString(": ")
		sb.WriteString(v.String())
	}
	sb.WriteByte('}')
	return sb.String()
}
