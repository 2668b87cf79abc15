package ember_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ember-lang/ember"
)

func run(t *testing.T, src string) (string, *ember.VM) {
	t.Helper()
	var out bytes.Buffer
	vm, err := ember.CreateWithOptions(ember.CreateOptions{
		Modules: []ember.NamedSource{{Name: "main", Src: src}},
		Stdout:  &out,
	})
	require.NoError(t, err)
	err = vm.Run(0)
	require.NoError(t, err, "script error: %s", vm.Err())
	return out.String(), vm
}

func TestHostPrintAndArithmetic(t *testing.T) {
	out, _ := run(t, `
		a = 1 + 2 * 3
		b = (1 + 2) * 3
		print(a, b)
	`)
	require.Equal(t, "7\t9\n", out)
}

func TestHostStringConcatAndInterpolation(t *testing.T) {
	out, _ := run(t, `
		name = "world"
		print("hello " + name)
		print("hi $name!")
	`)
	require.Equal(t, "hello world\nhi world!\n", out)
}

func TestHostIfElseBranches(t *testing.T) {
	out, _ := run(t, `
		function sign(n)
			if n < 0
				return "negative"
			else
				if n > 0
					return "positive"
				end
				return "zero"
			end
		end
		print(sign(-3), sign(0), sign(5))
	`)
	require.Equal(t, "negative\tzero\tpositive\n", out)
}

func TestHostAndOrKeywordOperators(t *testing.T) {
	out, _ := run(t, `
		a = [0, 1]
		b = [0, 1]
		print(a[0] == b[0] and a[1] == b[1])
		print(a[0] == 5 or a[1] == 1)
		print(a[0] == 5 and a[1] == 1)
	`)
	require.Equal(t, "true\ntrue\nfalse\n", out)
}

func TestHostWhileLoop(t *testing.T) {
	out, _ := run(t, `
		i = 0
		sum = 0
		while i < 5
			sum = sum + i
			i = i + 1
		end
		print(sum)
	`)
	require.Equal(t, "10\n", out)
}

func TestHostForOverIntAndVector(t *testing.T) {
	out, _ := run(t, `
		total = 0
		for i in 5
			total = total + i
		end

		v = [10, 20, 30]
		vsum = 0
		for x in v
			vsum = vsum + x
		end

		idxsum = 0
		for k, x in v
			idxsum = idxsum + k
		end

		print(total, vsum, idxsum)
	`)
	require.Equal(t, "10\t60\t3\n", out)
}

func TestHostForOverMapYieldsKeyAndValue(t *testing.T) {
	out, _ := run(t, `
		m = {a = 1, b = 2, c = 3}
		ksum = 0
		vsum = 0
		for k, v in m
			ksum = ksum + m[k]
			vsum = vsum + v
		end
		print(ksum, vsum)
	`)
	require.Equal(t, "6\t6\n", out)
}

func TestHostRecursiveFunctionAndScopePathLookup(t *testing.T) {
	out, _ := run(t, `
		function fib(n)
			if n < 2
				return n
			end
			return fib(n - 1) + fib(n - 2)
		end
		print(fib(10))
	`)
	require.Equal(t, "55\n", out)
}

func TestHostNestedFunctionSeesEnclosingLocals(t *testing.T) {
	out, _ := run(t, `
		function outer()
			x = 10
			function inner()
				return x + 1
			end
			return inner()
		end
		print(outer())
	`)
	require.Equal(t, "11\n", out)
}

func TestHostGlobalKeywordSharesStateAcrossFunctions(t *testing.T) {
	out, _ := run(t, `
		function bump()
			global.counter = global.counter + 1
		end
		global.counter = 0
		bump()
		bump()
		bump()
		print(global.counter)
	`)
	require.Equal(t, "3\n", out)
}

func TestHostVectorAndMapIndexing(t *testing.T) {
	out, _ := run(t, `
		v = [1, 2, 3]
		v[1] = 20
		print(v[0], v[1], v[2], #v)

		m = {x = 1}
		m.y = 2
		print(m.x, m.y, #m)
	`)
	require.Equal(t, "1\t20\t3\t3\n1\t2\t2\n", out)
}

func TestHostGnameAndLiteralArithmeticFusionPaths(t *testing.T) {
	out, _ := run(t, `
		m = {x = 10}
		v = [1, 2, 3]
		print(m.x, v[1], m.x + 5, m.x * 3)
	`)
	require.Equal(t, "10\t2\t15\t30\n", out)
}

func TestHostPushBuiltinAppendsAndReturnsVector(t *testing.T) {
	out, _ := run(t, `
		v = [1, 2]
		lib.push(v, 3)
		print(v[0], v[1], v[2], #v)
	`)
	require.Equal(t, "1\t2\t3\t3\n", out)
}

func TestHostAssertTypeAndSort(t *testing.T) {
	out, _ := run(t, `
		lib.assert(1 < 2)
		print(lib.type(1), lib.type(1.5), lib.type("s"), lib.type(true), lib.type(nil), lib.type([1]), lib.type({a=1}))

		v = [3, 1, 2]
		lib.sort(v)
		print(v[0], v[1], v[2])
	`)
	require.Equal(t, "integer\tnumber\tstring\tboolean\tnil\tvector\tmap\n1\t2\t3\n", out)
}

func TestHostSortWithComparator(t *testing.T) {
	out, _ := run(t, `
		v = [1, 2, 3]
		function desc(a, b)
			return a > b
		end
		lib.sort(v, desc)
		print(v[0], v[1], v[2])
	`)
	require.Equal(t, "3\t2\t1\n", out)
}

func TestHostCoroutineResumeYield(t *testing.T) {
	out, _ := run(t, `
		function gen()
			lib.yield(1)
			lib.yield(2)
			return 3
		end
		co = lib.coroutine(gen)
		print(lib.resume(co))
		print(lib.resume(co))
		print(lib.resume(co))
	`)
	require.Equal(t, "1\n2\n3\n", out)
}

func TestHostForOverCoroutine(t *testing.T) {
	out, _ := run(t, `
		function counter()
			lib.yield(1)
			lib.yield(2)
			lib.yield(3)
		end
		sum = 0
		for v in lib.coroutine(counter)
			sum = sum + v
		end
		print(sum)
	`)
	require.Equal(t, "6\n", out)
}

func TestHostVectorMethodCallFallsThroughToMeta(t *testing.T) {
	out, _ := run(t, `
		v = [1, 2, 3]
		meta = {}
		meta[":greet"] = function(self)
			return "hi from vector of " + (#self + 0)
		end
		lib.setmeta(v, meta)
		print(v:greet())
	`)
	require.Equal(t, "hi from vector of 3\n", out)
}

func TestHostMapMethodCallFallsThroughToMeta(t *testing.T) {
	out, _ := run(t, `
		m = {x = 1}
		meta = {}
		meta[":greet"] = function(self)
			return "hi from map"
		end
		lib.setmeta(m, meta)
		print(m:greet())
	`)
	require.Equal(t, "hi from map\n", out)
}

func TestHostMetaGetSetOnVector(t *testing.T) {
	out, _ := run(t, `
		v = [1, 2]
		meta = {tag = "vec"}
		lib.setmeta(v, meta)
		got = lib.getmeta(v)
		print(got.tag)
	`)
	require.Equal(t, "vec\n", out)
}

func TestHostZeroDivisionErrorSurfacesThroughErr(t *testing.T) {
	var out bytes.Buffer
	vm, err := ember.CreateWithOptions(ember.CreateOptions{
		Modules: []ember.NamedSource{{Name: "main", Src: `x = 1 / 0`}},
		Stdout:  &out,
	})
	require.NoError(t, err)

	err = vm.Run(0)
	require.Error(t, err)
	require.NotEmpty(t, vm.Err())
}

func TestHostHostRegistrationIsCallableFromScript(t *testing.T) {
	var out bytes.Buffer
	var got int64
	vm, err := ember.CreateWithOptions(ember.CreateOptions{
		Modules: []ember.NamedSource{{Name: "main", Src: `record(40 + 2)`}},
		Registrations: []ember.Registration{
			{Name: "record", Fn: func(vm *ember.VM) error {
				got = vm.ToInt(vm.Pick(0))
				return nil
			}},
		},
		Stdout: &out,
	})
	require.NoError(t, err)
	require.NoError(t, vm.Run(0))
	require.Equal(t, int64(42), got)
}

func TestHostCallReentersFromGoHostCode(t *testing.T) {
	var out bytes.Buffer
	var double ember.Value
	vm, err := ember.CreateWithOptions(ember.CreateOptions{
		Modules: []ember.NamedSource{{Name: "main", Src: `
			function double(n)
				return n * 2
			end
			capture(double)
		`}},
		Registrations: []ember.Registration{
			{Name: "capture", Fn: func(vm *ember.VM) error {
				double = vm.Pick(0)
				return nil
			}},
		},
		Stdout: &out,
	})
	require.NoError(t, err)
	require.NoError(t, vm.Run(0))

	results, err := vm.Call(double, ember.IntVal(21))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, int64(42), vm.ToInt(results[0]))
}

func TestHostMultiModuleRunDoesNotLeakLocalsBetweenModules(t *testing.T) {
	var out bytes.Buffer
	vm, err := ember.CreateWithOptions(ember.CreateOptions{
		Modules: []ember.NamedSource{
			{Name: "first", Src: `leaked = 99`},
			{Name: "second", Src: `
				found = true
				v = leaked
				found = false
			`},
		},
		Stdout: &out,
	})
	require.NoError(t, err)

	err = vm.Run(0, 1)
	require.Error(t, err)
}

func TestHostCoroutineIDIsStableAndUnique(t *testing.T) {
	var out bytes.Buffer
	var a, b ember.Value
	vm, err := ember.CreateWithOptions(ember.CreateOptions{
		Modules: []ember.NamedSource{{Name: "main", Src: `
			function gen()
				lib.yield(1)
			end
			global.a = lib.coroutine(gen)
			global.b = lib.coroutine(gen)
			capture(global.a, global.b)
		`}},
		Registrations: []ember.Registration{
			{Name: "capture", Fn: func(vm *ember.VM) error {
				a = vm.Pick(0)
				b = vm.Pick(1)
				return nil
			}},
		},
		Stdout: &out,
	})
	require.NoError(t, err)
	require.NoError(t, vm.Run(0))

	idA := vm.CoroutineID(a)
	idB := vm.CoroutineID(b)
	require.NotEmpty(t, idA)
	require.NotEmpty(t, idB)
	require.NotEqual(t, idA, idB)
	require.Equal(t, idA, vm.CoroutineID(a))
}
