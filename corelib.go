package ember

import "fmt"

// buildCoreScope assembles the core scope map Create installs as
// vm.core: `print`, the sole builtin a script's FIND opcode can
// resolve bare, the `lib` table holding every other primitive
// (coroutine, resume, yield, assert, type, sort, collect, setmeta,
// getmeta, push — reached as `lib.coroutine`, `lib.setmeta`, and so
// on, and indirectly extractable too, `f = lib.type; f(x)`,
// §4.8's "~" bridge looking up `lib.match`), and finally every host
// Registration, which can shadow a primitive of the same name.
//
// Grounded on `original_source/rela.c`'s func registration loop
// (rela.c:3975-3983): its `.lib=true` entries land only in `lib`,
// while `print` is registered separately and explicitly also bound
// bare. `core`/`lib` otherwise generalize the teacher's flat Builtins
// map (ugo.go) from the teacher's *Object-returning BuiltinFunction to
// this spec's *Callback closing over *VM and driving the stack ABI
// directly (§6.3).
func buildCoreScope(vm *VM, registrations []Registration) *Map {
	core := vm.heap.allocMap()
	lib := vm.heap.allocMap()

	bindBoth := func(name string, fn func(vm *VM) error) {
		cb := Value{Tag: TagCallback, Cb: &Callback{Name: name, Fn: fn}}
		core.Set(strVal(vm.intern(name)), cb)
		lib.Set(strVal(vm.intern(name)), cb)
	}
	bindLib := func(name string, fn func(vm *VM) error) {
		cb := Value{Tag: TagCallback, Cb: &Callback{Name: name, Fn: fn}}
		lib.Set(strVal(vm.intern(name)), cb)
	}

	bindBoth("print", cbPrint)
	bindLib("coroutine", cbCoroutine)
	bindLib("resume", cbResume)
	bindLib("yield", cbYield)
	bindLib("assert", cbAssert)
	bindLib("type", cbType)
	bindLib("sort", cbSort)
	bindLib("collect", cbGc)
	bindLib("setmeta", cbMetaSet)
	bindLib("getmeta", cbMetaGet)
	bindLib("push", cbPush)

	core.Set(strVal(vm.intern("lib")), Value{Tag: TagMap, M: lib})

	for _, r := range registrations {
		cb := Value{Tag: TagCallback, Cb: &Callback{Name: r.Name, Fn: r.Fn}}
		core.Set(strVal(vm.intern(r.Name)), cb)
		lib.Set(strVal(vm.intern(r.Name)), cb)
	}
	return core
}

// cbPrint implements the `print` builtin reachable from script code:
// every argument's String() form, tab-separated, one trailing newline
// (§4.5 side-effecting builtins). The PRINT opcode (vm.go) pops and
// prints a single value in the same style; it exists only for
// disassembly parity since the compiler never emits it directly (every
// script-visible builtin, including this one, resolves through FIND
// into the core scope instead, per §4.6's name-resolution model).
func cbPrint(vm *VM) error {
	co := vm.top()
	mark := co.topMark()
	args := co.stack[mark:]
	co.stack = co.stack[:mark]
	for i, a := range args {
		if i > 0 {
			fmt.Fprint(vm.out, "\t")
		}
		fmt.Fprint(vm.out, a.String())
	}
	fmt.Fprintln(vm.out)
	return nil
}

func cbCoroutine(vm *VM) error { return vm.execCoroutine(vm.top()) }
func cbResume(vm *VM) error    { return vm.execResume(vm.top()) }
func cbYield(vm *VM) error     { return vm.execYield(vm.top()) }
func cbSort(vm *VM) error      { return vm.execSort(vm.top()) }
func cbGc(vm *VM) error        { vm.Collect(); return nil }

func cbAssert(vm *VM) error {
	co := vm.top()
	mark := co.topMark()
	args := co.stack[mark:]
	co.stack = co.stack[:mark]
	if len(args) == 0 || args[0].IsFalsy() {
		msg := "assertion failed"
		if len(args) > 1 && args[1].Tag == TagString {
			msg = args[1].S.bytes
		}
		return ErrAssertionFailed.NewError(msg)
	}
	return nil
}

func cbType(vm *VM) error {
	co := vm.top()
	mark := co.topMark()
	args := co.stack[mark:]
	co.stack = co.stack[:mark]
	if len(args) == 0 {
		return newOperandTypeError("type", "", "")
	}
	co.push(strVal(vm.intern(args[0].TypeName())))
	return nil
}

func cbMetaSet(vm *VM) error {
	co := vm.top()
	mark := co.topMark()
	args := co.stack[mark:]
	co.stack = co.stack[:mark]
	if len(args) < 2 {
		return newOperandTypeError("setmeta", "", "")
	}
	return setMeta(args[0], args[1])
}

func cbMetaGet(vm *VM) error {
	co := vm.top()
	mark := co.topMark()
	args := co.stack[mark:]
	co.stack = co.stack[:mark]
	if len(args) == 0 {
		return newOperandTypeError("getmeta", "", "")
	}
	co.push(getMeta(args[0]))
	return nil
}

// cbPush implements the `lib.push` builtin: append a value to a vector
// in place and return the same vector, so `v = lib.push(v, x)` and a
// bare `lib.push(v, x)` statement both read naturally. It drives the VPUSH
// opcode directly (vm.go) rather than calling Vector.Push itself,
// since VPUSH's "pop value, peek vector, append" shape is exactly this
// builtin's job and the compiler never emits VPUSH on its own (vector
// literals go through MARK/VECTOR instead).
func cbPush(vm *VM) error {
	co := vm.top()
	mark := co.topMark()
	args := co.stack[mark:]
	co.stack = co.stack[:mark]
	if len(args) != 2 || args[0].Tag != TagVector {
		return newOperandTypeError("push", "", "")
	}
	co.push(args[0])
	co.push(args[1])
	return vm.exec(co, &Cell{Op: OpVpush}, co.ip)
}

// RegisterMatch installs fn as the `~` operator's host-provided string
// pattern matcher. The MATCH opcode looks `match` up in the core
// scope's `lib` table (callLibNamed); this binds fn there and under
// `match` in the core scope itself. Create leaves `match` unbound so an
// unregistered `~` use fails
// with an InvalidOperatorError; a host calls this after Create to wire
// its own matcher.
func RegisterMatch(vm *VM, fn func(vm *VM) error) {
	name := strVal(vm.intern("match"))
	cb := Value{Tag: TagCallback, Cb: &Callback{Name: "match", Fn: fn}}
	vm.core.Set(name, cb)
	if lib, ok := vm.core.Get(strVal(vm.intern("lib"))); ok && lib.Tag == TagMap {
		lib.M.Set(name, cb)
	}
}
