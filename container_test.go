package ember

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVectorGetSetPush(t *testing.T) {
	v := newVector()
	require.Equal(t, 0, v.Len())

	_, ok := v.Get(0)
	require.False(t, ok)

	v.Push(IntVal(1))
	v.Push(IntVal(2))
	require.Equal(t, 2, v.Len())

	got, ok := v.Get(0)
	require.True(t, ok)
	require.Equal(t, IntVal(1), got)

	// Set at #vec grows by one (the append position).
	require.True(t, v.Set(2, IntVal(3)))
	require.Equal(t, 3, v.Len())

	// Set past #vec nil-pads.
	require.True(t, v.Set(5, IntVal(9)))
	require.Equal(t, 6, v.Len())
	for i := 3; i < 5; i++ {
		got, ok := v.Get(i)
		require.True(t, ok)
		require.True(t, got.IsFalsy())
	}

	require.False(t, v.Set(-1, IntVal(0)))
}

func TestVectorString(t *testing.T) {
	v := newVector()
	v.Push(IntVal(1))
	v.Push(Value{Tag: TagString, S: &istring{bytes: "hi"}})
	require.Equal(t, `[1, hi]`, v.String())
}

func TestMapSetGetDeleteKeepsKeysSorted(t *testing.T) {
	m := newMap()
	m.Set(IntVal(3), IntVal(30))
	m.Set(IntVal(1), IntVal(10))
	m.Set(IntVal(2), IntVal(20))

	require.Equal(t, 3, m.Len())

	var prev Value
	for i := 0; i < m.Keys().Len(); i++ {
		k, _ := m.Keys().Get(i)
		if i > 0 {
			require.Negative(t, prev.Compare(k))
		}
		prev = k
	}

	v, ok := m.Get(IntVal(2))
	require.True(t, ok)
	require.Equal(t, IntVal(20), v)

	m.Delete(IntVal(2))
	require.Equal(t, 2, m.Len())
	_, ok = m.Get(IntVal(2))
	require.False(t, ok)
}

func TestMapSetNilValueDeletes(t *testing.T) {
	m := newMap()
	m.Set(IntVal(1), IntVal(10))
	require.Equal(t, 1, m.Len())

	m.Set(IntVal(1), Nil)
	require.Equal(t, 0, m.Len())
	_, ok := m.Get(IntVal(1))
	require.False(t, ok)
}

func TestMapSetOverwriteExisting(t *testing.T) {
	m := newMap()
	m.Set(IntVal(1), IntVal(10))
	m.Set(IntVal(1), IntVal(99))
	require.Equal(t, 1, m.Len())
	v, _ := m.Get(IntVal(1))
	require.Equal(t, IntVal(99), v)
}

func TestMapAboveLinearThresholdStaysSortedAndSearchable(t *testing.T) {
	m := newMap()
	// Insert more than mapLinearThreshold keys, in reverse order, to
	// exercise the binary-search branch of search as well as the
	// linear-scan branch on the way there.
	n := mapLinearThreshold + 20
	for i := n; i > 0; i-- {
		m.Set(IntVal(int64(i)), IntVal(int64(i*10)))
	}
	require.Equal(t, n, m.Len())

	for i := 1; i <= n; i++ {
		v, ok := m.Get(IntVal(int64(i)))
		require.True(t, ok)
		require.Equal(t, IntVal(int64(i*10)), v)
	}

	var prev Value
	for i := 0; i < m.Keys().Len(); i++ {
		k, _ := m.Keys().Get(i)
		if i > 0 {
			require.Negative(t, prev.Compare(k))
		}
		prev = k
	}
}

func TestMapString(t *testing.T) {
	m := newMap()
	m.Set(IntVal(1), IntVal(2))
	require.Equal(t, "{1: 2}", m.String())
}
