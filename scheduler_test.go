package ember

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestVM(t *testing.T, src string) *VM {
	t.Helper()
	var out bytes.Buffer
	vm, err := CreateWithOptions(CreateOptions{
		Modules: []NamedSource{{Name: "main", Src: src}},
		Stdout:  &out,
	})
	require.NoError(t, err)
	require.NoError(t, vm.Run(0), "script error: %s", vm.Err())
	return vm
}

// TestCollectSweepsVectorsUnreachableFromAnyRoot exercises Collect's
// mark phase (vm.core, vm.global, every live coroutine's stack, and
// every module's constant pool) against a vector that was only ever a
// throwaway local: once the module's frame is gone, nothing roots it, so
// Run's own final collection already reclaims it.
func TestCollectSweepsVectorsUnreachableFromAnyRoot(t *testing.T) {
	vm := newTestVM(t, `
		local_only = [1, 2, 3]
	`)
	// the pool only grew because the script allocated the vector
	require.NotEmpty(t, vm.heap.vectors.slots)
	require.Equal(t, 0, vm.heap.vectors.usedCount())

	vm.Collect()
	require.Equal(t, 0, vm.heap.vectors.usedCount())
}

// TestCollectKeepsVectorsReachableFromGlobal mirrors the sweep test but
// roots the vector through vm.global, which Collect marks explicitly
// before sweeping.
func TestCollectKeepsVectorsReachableFromGlobal(t *testing.T) {
	vm := newTestVM(t, `
		global.kept = [1, 2, 3]
	`)
	vm.Collect()
	require.Equal(t, 1, vm.heap.vectors.usedCount())
}

// TestCollectKeepsCoroutinesReachableFromRoutines pins down that a
// suspended coroutine sitting in vm.routines survives a collection even
// though nothing in global/core/module constants points at it: Collect
// walks vm.routines as its own root set (scheduler.go), separately from
// the mark sweep over vm.core/vm.global/module constants.
func TestCollectKeepsCoroutinesReachableFromRoutines(t *testing.T) {
	vm := newTestVM(t, `
		function gen()
			lib.yield(1)
			lib.yield(2)
		end
		co = lib.coroutine(gen)
		lib.resume(co)
	`)
	require.Equal(t, 1, vm.heap.coroutines.usedCount())

	vm.Collect()
	require.Equal(t, 1, vm.heap.coroutines.usedCount())
}

// TestCollectDropsCoroutineOnceUnreachable checks the converse: once a
// coroutine is no longer reachable from any root (the script never
// stashed it anywhere global, and the frame that held its only local
// binding is gone after Run returns), a collection reclaims its slot;
// Run's own final collection already does so.
func TestCollectDropsCoroutineOnceUnreachable(t *testing.T) {
	vm := newTestVM(t, `
		function gen()
			lib.yield(1)
		end
		throwaway = lib.coroutine(gen)
		lib.resume(throwaway)
	`)
	// the pool only grew because the script allocated the coroutine
	require.NotEmpty(t, vm.heap.coroutines.slots)
	require.Equal(t, 0, vm.heap.coroutines.usedCount())

	vm.Collect()
	require.Equal(t, 0, vm.heap.coroutines.usedCount())
}
