package mathlib_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ember-lang/ember"
	"github.com/ember-lang/ember/stdlib/mathlib"
)

func runWithMath(t *testing.T, src string) string {
	t.Helper()
	var out bytes.Buffer
	vm, err := ember.CreateWithOptions(ember.CreateOptions{
		Modules:       []ember.NamedSource{{Name: "main", Src: src}},
		Registrations: mathlib.Registrations(),
		Stdout:        &out,
	})
	require.NoError(t, err)
	require.NoError(t, vm.Run(0), "script error: %s", vm.Err())
	return out.String()
}

func TestMathlibUnaryPrimitives(t *testing.T) {
	out := runWithMath(t, `print(sqrt(16), floor(3.7), ceil(3.2), abs(-5))`)
	require.Equal(t, "4\t3\t4\t5\n", out)
}

func TestMathlibBinaryPrimitives(t *testing.T) {
	out := runWithMath(t, `print(pow(2, 10))`)
	require.Equal(t, "1024\n", out)
}

func TestMathlibMinMaxPreservesOriginalValue(t *testing.T) {
	out := runWithMath(t, `print(min(3, 1, 2), max(3, 1, 2))`)
	require.Equal(t, "1\t3\n", out)
}

func TestMathlibTrig(t *testing.T) {
	out := runWithMath(t, `print(sin(0), cos(0))`)
	require.Equal(t, "0\t1\n", out)
}

func TestMathlibMissingArgErrors(t *testing.T) {
	var out bytes.Buffer
	vm, err := ember.CreateWithOptions(ember.CreateOptions{
		Modules:       []ember.NamedSource{{Name: "main", Src: `sqrt()`}},
		Registrations: mathlib.Registrations(),
		Stdout:        &out,
	})
	require.NoError(t, err)

	err = vm.Run(0)
	require.Error(t, err)
}

func TestMathlibNotAutoWiredIntoCoreScope(t *testing.T) {
	var out bytes.Buffer
	vm, err := ember.CreateWithOptions(ember.CreateOptions{
		Modules: []ember.NamedSource{{Name: "main", Src: `sqrt(4)`}},
		Stdout:  &out,
	})
	require.NoError(t, err)

	err = vm.Run(0)
	require.Error(t, err)
}
