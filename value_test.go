package ember

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueIsFalsy(t *testing.T) {
	s := &istring{bytes: ""}
	cases := []struct {
		name  string
		v     Value
		falsy bool
	}{
		{"nil", Nil, true},
		{"false", False, true},
		{"true", True, false},
		{"zero int", IntVal(0), false},
		{"zero float", FloatVal(0), false},
		{"empty string", Value{Tag: TagString, S: s}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.falsy, c.v.IsFalsy())
		})
	}
}

func TestValueCompareOrdersByTypeThenValue(t *testing.T) {
	require.Negative(t, Nil.Compare(IntVal(0)))
	require.Positive(t, IntVal(0).Compare(Nil))
	require.Zero(t, IntVal(5).Compare(IntVal(5)))
	require.Negative(t, IntVal(1).Compare(IntVal(2)))
	require.Positive(t, FloatVal(2.5).Compare(FloatVal(1.5)))

	a := Value{Tag: TagString, S: &istring{bytes: "aa"}}
	b := Value{Tag: TagString, S: &istring{bytes: "bb"}}
	require.Negative(t, a.Compare(b))
	require.Zero(t, a.Compare(a))
}

func TestValueEqualIsTypedAndExact(t *testing.T) {
	require.True(t, IntVal(3).Equal(IntVal(3)))
	require.False(t, IntVal(3).Equal(FloatVal(3)))
	require.True(t, Nil.Equal(Nil))
	require.False(t, True.Equal(False))

	is := &istring{bytes: "hi"}
	require.True(t, (Value{Tag: TagString, S: is}).Equal(Value{Tag: TagString, S: is}))
	require.False(t, (Value{Tag: TagString, S: is}).Equal(Value{Tag: TagString, S: &istring{bytes: "hi"}}))
}

func TestValueTypeNameAndString(t *testing.T) {
	require.Equal(t, "integer", IntVal(1).TypeName())
	require.Equal(t, "number", FloatVal(1).TypeName())
	require.Equal(t, "nil", Nil.TypeName())
	require.Equal(t, "true", True.String())
	require.Equal(t, "false", False.String())
	require.Equal(t, "nil", Nil.String())
	require.Equal(t, "42", IntVal(42).String())
	require.Equal(t, "subroutine", SubroutineVal(7).TypeName())
	require.Equal(t, "<subroutine:7>", SubroutineVal(7).String())
}

func TestValueCanCall(t *testing.T) {
	require.False(t, Nil.CanCall())
	require.False(t, IntVal(1).CanCall())
	require.True(t, SubroutineVal(0).CanCall())
	require.True(t, (Value{Tag: TagCallback, Cb: &Callback{Name: "f"}}).CanCall())
}
