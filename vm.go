package ember

import "fmt"

// VM is the shared compiler+interpreter object of §2: one Heap, one
// compiled Bytecode per module, a core scope of host-registered and
// built-in names, and the chain of coroutines currently executing
// (§4.7). Grounded on the teacher's VM type (vm.go) — same
// "single object drives compile and run" shape — generalized from the
// teacher's switch-on-Object-interface dispatch to this spec's
// tagged-Value dispatch.
type VM struct {
	heap *Heap

	modules []*Bytecode

	// moduleMains holds each source module's rebased top-level entry
	// instruction index into modules[0], in the order Create compiled
	// them, for Run(moduleIndices...) to select (compiler.go Link).
	moduleMains []int

	core   *Map // core scope: builtins + host callbacks, built by Create (RegisterMatch adds `match` later)
	global *Map // global scope: the `global` map, fresh each Run

	routines []*Coroutine

	userData interface{}

	lastErr *RuntimeError
	halted  bool

	out interface{ Write([]byte) (int, error) }
}

func (vm *VM) top() *Coroutine { return vm.routines[len(vm.routines)-1] }
func (vm *VM) main() *Coroutine { return vm.routines[0] }

// Err returns the message of the last run's failure, or "" if the last
// run succeeded (§6 "Error reporting").
func (vm *VM) Err() string {
	if vm.lastErr == nil {
		return ""
	}
	return vm.lastErr.Error()
}

// intern is the VM-facing wrapper over the heap's string interner.
func (vm *VM) intern(s string) *istring { return vm.heap.intern(s) }

func strVal(is *istring) Value { return Value{Tag: TagString, S: is} }

// ---- name resolution (§4.6) ----

// find resolves a bare name per §4.6's four-level lookup: current
// frame locals; lexical-ancestor frames walked outward, skipping
// frames that are recursive calls of the current function; the global
// scope map; the core scope map.
func (vm *VM) find(co *Coroutine, name *istring) (Value, bool) {
	frames := co.frames
	if len(frames) == 0 {
		if v, ok := vm.global.Get(strVal(name)); ok {
			return v, true
		}
		return vm.core.Get(strVal(name))
	}
	cur := frames[len(frames)-1]
	if v, ok := cur.findLocal(name); ok {
		return v, true
	}
	for i := len(frames) - 2; i >= 0; i-- {
		f := frames[i]
		if f.funcID == cur.funcID {
			continue // skip recursive self frames (§4.6)
		}
		if !cur.hasAncestor(f.funcID) {
			continue
		}
		if v, ok := f.findLocal(name); ok {
			return v, true
		}
	}
	if v, ok := vm.global.Get(strVal(name)); ok {
		return v, true
	}
	return vm.core.Get(strVal(name))
}

// assign always binds into the current frame's locals (top-level code
// has an implicit frame, §4.5/Run) — "variables are function-local
// unless declared via the global map reference" (§6).
func (vm *VM) assign(co *Coroutine, name *istring, v Value) {
	f := co.curFrame()
	if f == nil {
		vm.global.Set(strVal(name), v)
		return
	}
	f.setLocal(name, v)
}

// ---- run entry points ----

// runModule executes bytecode bc's top-level on co, starting a fresh
// implicit top-level frame, and drives the dispatch loop until that
// frame returns (§4.5 "RETURN from an empty call stack").
func (vm *VM) runModule(co *Coroutine, bc *Bytecode) error {
	return vm.runModuleAt(co, bc.Main)
}

// runModuleAt is runModule generalized to an explicit entry index, for
// Run(moduleIndices...) driving several linked modules' rebased main
// entries on the same coroutine in sequence. A module that runs off its
// trailing STOP instead of hitting an explicit top-level RETURN leaves
// its synthetic top-level frame and mark on co — STOP only halts, it
// never pops a frame the way RETURN does — so this always restores co
// to its pre-call frame/mark/stack depth afterward. Without that, a
// second module sharing the same coroutine would inherit the first
// module's leftover top-level frame as a lexical ancestor (every
// top-level frame carries the same funcID/scopePath), letting its name
// lookups silently see the previous module's locals.
func (vm *VM) runModuleAt(co *Coroutine, entry int) error {
	frameDepth, markDepth, stackDepth := len(co.frames), len(co.markStack), len(co.stack)

	co.ip = entry
	co.pushMark()
	f := &frame{savedIP: -1, scopePath: []int{0}}
	co.frames = append(co.frames, f)
	co.state = CoRunning
	err := vm.loop(co, frameDepth)

	if len(co.frames) > frameDepth {
		co.frames = co.frames[:frameDepth]
	}
	if len(co.markStack) > markDepth {
		co.markStack = co.markStack[:markDepth]
	}
	if len(co.stack) > stackDepth {
		co.stack = co.stack[:stackDepth]
	}
	return err
}

// loop is the single dispatch loop shared by top-level runs, nested
// invocations (meta dispatch, for-generator calls, host re-entrancy)
// and coroutine stepping: it always steps whichever coroutine is
// current top of the chain, so a RESUME/YIELD that happens inside a
// nested invocation transfers control transparently (§5).
func (vm *VM) loop(stopCo *Coroutine, stopFrameDepth int) error {
	for {
		if vm.halted {
			return nil
		}
		co := vm.top()
		if co == stopCo && len(co.frames) == stopFrameDepth {
			return nil
		}
		if co.state == CoDead {
			if len(vm.routines) == 1 {
				return nil
			}
			vm.popDeadCoroutine()
			continue
		}
		if err := vm.step(co); err != nil {
			return vm.fail(co, err)
		}
	}
}

func (vm *VM) fail(co *Coroutine, err error) error {
	re, ok := err.(*RuntimeError)
	if !ok {
		e, ok := err.(*Error)
		if !ok {
			e = ErrHostRaised.NewError(err.Error())
		}
		re = &RuntimeError{Err: e}
	}
	re.addTrace(fmt.Sprintf("ip=%d", co.ip))
	vm.lastErr = re
	vm.reset()
	return re
}

// reset empties the routines chain and runs one collection, matching
// §4.9's "resets the VM state (empties routines, collects)".
func (vm *VM) reset() {
	vm.routines = vm.routines[:0]
	m := newCoroutine()
	m.state = CoRunning
	vm.routines = append(vm.routines, m)
	vm.Collect()
}

func (vm *VM) popDeadCoroutine() {
	dead := vm.routines[len(vm.routines)-1]
	vm.routines = vm.routines[:len(vm.routines)-1]
	if len(vm.routines) == 0 {
		return
	}
	caller := vm.top()
	mark := dead.popMark()
	vals := append([]Value(nil), dead.stack[mark:]...)
	caller.stack = append(caller.stack, vals...)
}

// ---- single-step dispatch ----

func (vm *VM) step(co *Coroutine) error {
	ip := co.ip
	if ip < 0 || ip >= len(vm.curBytecode().Cells) {
		return ErrStackImbalance.NewError("instruction pointer out of range")
	}
	c := vm.curBytecode().Cells[ip]
	co.ip++
	return vm.exec(co, &c, ip)
}

// curBytecode returns the single linked Bytecode all modules share
// cell addresses within (modules are concatenated at Create time, see
// compiler.go Link).
func (vm *VM) curBytecode() *Bytecode {
	return vm.modules[0]
}

func (vm *VM) exec(co *Coroutine, c *Cell, ip int) error {
	switch c.Op {
	case OpStop:
		vm.halted = true
		return nil
	case OpJmp:
		co.ip = c.Arg
		return nil
	case OpJfalse:
		if co.top().IsFalsy() {
			co.ip = c.Arg
		}
		return nil
	case OpJtrue:
		if !co.top().IsFalsy() {
			co.ip = c.Arg
		}
		return nil
	case OpAnd:
		if co.top().IsFalsy() {
			co.ip = c.Arg
		} else {
			co.pop()
		}
		return nil
	case OpOr:
		if !co.top().IsFalsy() {
			co.ip = c.Arg
		} else {
			co.pop()
		}
		return nil

	case OpMark:
		co.pushMark()
		return nil
	case OpLimit:
		co.limit(co.popMark(), c.Arg)
		return nil
	case OpClean:
		co.stack = co.stack[:co.topMark()]
		return nil
	case OpCopy:
		co.push(co.top())
		return nil
	case OpShunt:
		co.other = append(co.other, co.pop())
		return nil
	case OpShift:
		n := len(co.other)
		co.push(co.other[n-1])
		co.other = co.other[:n-1]
		return nil
	case OpDrop:
		co.pop()
		return nil

	case OpLit:
		co.push(c.Lit)
		return nil
	case OpNil:
		co.push(Nil)
		return nil
	case OpTrue:
		co.push(True)
		return nil
	case OpFalse:
		co.push(False)
		return nil
	case OpFind:
		v, ok := vm.find(co, c.Lit.S)
		if !ok {
			return ErrUnknownName.NewError(fmt.Sprintf("unknown name %q", c.Lit.S.bytes))
		}
		co.push(v)
		return nil
	case OpAssign:
		vm.assign(co, c.Lit.S, co.pop())
		return nil
	case OpGlobal:
		co.push(Value{Tag: TagMap, M: vm.global})
		return nil
	case OpPid:
		f := co.curFrame()
		if f != nil {
			if fn := vm.funcByID(c.Arg); fn != nil {
				f.scopePath = fn.ScopePath
			}
		}
		return nil
	case OpArg:
		f := co.curFrame()
		var v Value
		if f != nil {
			if idx := f.argBase + c.Arg; idx >= 0 && idx < len(co.stack) && idx < f.argEnd {
				v = co.stack[idx]
			}
		}
		co.push(v)
		return nil

	case OpGet:
		key := co.pop()
		cont := co.pop()
		v, err := vm.indexGet(cont, key)
		if err != nil {
			return err
		}
		co.push(v)
		return nil
	case OpSet:
		val := co.pop()
		key := co.pop()
		cont := co.pop()
		return vm.indexSet(cont, key, val)

	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpConcat:
		r := co.pop()
		l := co.pop()
		v, err := vm.binaryArith(c.Op, l, r)
		if err != nil {
			return err
		}
		co.push(v)
		return nil
	case OpEq:
		r, l := co.pop(), co.pop()
		eq, err := vm.metaEqual(l, r)
		if err != nil {
			return err
		}
		co.push(BoolVal(eq))
		return nil
	case OpNe:
		r, l := co.pop(), co.pop()
		eq, err := vm.metaEqual(l, r)
		if err != nil {
			return err
		}
		co.push(BoolVal(!eq))
		return nil
	case OpLt, OpLte, OpGt, OpGte:
		r, l := co.pop(), co.pop()
		v, err := vm.metaCompare(c.Op, l, r)
		if err != nil {
			return err
		}
		co.push(v)
		return nil
	case OpNeg:
		v := co.pop()
		switch v.Tag {
		case TagInt:
			co.push(IntVal(-v.I))
		case TagFloat:
			co.push(FloatVal(-v.F))
		default:
			return newOperandTypeError("-", v.TypeName(), "")
		}
		return nil
	case OpNot:
		co.push(BoolVal(co.pop().IsFalsy()))
		return nil
	case OpCount:
		v := co.pop()
		n, err := vm.metaCount(v)
		if err != nil {
			return err
		}
		co.push(IntVal(n))
		return nil
	case OpMatch:
		r, l := co.pop(), co.pop()
		res, err := vm.callLibNamed("match", []Value{l, r})
		if err != nil {
			return err
		}
		co.push(res)
		return nil
	case OpUnpack:
		v := co.pop()
		if v.Tag != TagVector {
			return newOperandTypeError("...", v.TypeName(), "")
		}
		for _, it := range v.Vec.items {
			co.push(it)
		}
		return nil

	case OpVector:
		mark := co.popMark()
		items := append([]Value(nil), co.stack[mark:]...)
		co.stack = co.stack[:mark]
		vec := vm.heap.allocVector()
		vec.items = items
		co.push(Value{Tag: TagVector, Vec: vec})
		return nil
	case OpVpush:
		val := co.pop()
		vec := co.top()
		vec.Vec.Push(val)
		return nil
	case OpMap:
		mark := co.popMark()
		pairs := co.stack[mark:]
		co.stack = co.stack[:mark]
		m := vm.heap.allocMap()
		for i := 0; i+1 < len(pairs); i += 2 {
			m.Set(pairs[i], pairs[i+1])
		}
		co.push(Value{Tag: TagMap, M: m})
		return nil
	case OpUnmap:
		v := co.pop()
		if v.Tag != TagMap {
			return newOperandTypeError("unmap", v.TypeName(), "")
		}
		for i := 0; i < v.M.Len(); i++ {
			k, _ := v.M.keys.Get(i)
			val, _ := v.M.vals.Get(i)
			co.push(k)
			co.push(val)
		}
		return nil
	case OpMetaSet:
		meta := co.pop()
		target := co.pop()
		if err := setMeta(target, meta); err != nil {
			return err
		}
		return nil
	case OpMetaGet:
		target := co.pop()
		co.push(getMeta(target))
		return nil

	case OpCall:
		return vm.execCall(co)
	case OpReturn:
		return vm.execReturn(co)

	case OpLoop:
		co.loopStack = append(co.loopStack, loopMark{
			continueAt: c.Arg, breakAt: int(c.Lit.I),
			markDepth: len(co.markStack), stackDepth: len(co.stack),
			forDepth: len(co.forStack),
		})
		return nil
	case OpUnloop:
		co.loopStack = co.loopStack[:len(co.loopStack)-1]
		return nil
	case OpBreak:
		return vm.execBreak(co)
	case OpContinue:
		return vm.execContinue(co)
	case OpFor:
		return vm.execFor(co, c, ip)

	case OpCoroutine:
		return vm.execCoroutine(co)
	case OpResume:
		return vm.execResume(co)
	case OpYield:
		return vm.execYield(co)

	case OpPrint:
		v := co.pop()
		fmt.Fprintln(vm.out, v.String())
		return nil
	case OpAssert:
		v := co.pop()
		if v.IsFalsy() {
			return ErrAssertionFailed.NewError("assertion failed")
		}
		return nil
	case OpType:
		v := co.pop()
		co.push(strVal(vm.intern(v.TypeName())))
		return nil
	case OpSort:
		return vm.execSort(co)
	case OpGc:
		vm.Collect()
		return nil

	case OpFname:
		v, ok := vm.find(co, c.Lit.S)
		if !ok {
			return ErrUnknownName.NewError(fmt.Sprintf("unknown name %q", c.Lit.S.bytes))
		}
		co.push(v)
		return nil
	case OpGname:
		cont := co.pop()
		v, err := vm.indexGet(cont, c.Lit)
		if err != nil {
			return err
		}
		co.push(v)
		return nil
	case OpCfunc:
		v, ok := vm.find(co, c.Lit.S)
		if !ok {
			return ErrUnknownName.NewError(fmt.Sprintf("unknown name %q", c.Lit.S.bytes))
		}
		co.push(v)
		return vm.execCall(co)
	case OpAssignL:
		vm.assign(co, c.Lit.S, co.pop())
		return nil
	case OpAssignP:
		vm.assign(co, c.Lit.S, co.pop())
		return nil
	case OpAddLit:
		v := co.pop()
		r, err := vm.binaryArith(OpAdd, v, c.Lit)
		if err != nil {
			return err
		}
		co.push(r)
		return nil
	case OpMulLit:
		v := co.pop()
		r, err := vm.binaryArith(OpMul, v, c.Lit)
		if err != nil {
			return err
		}
		co.push(r)
		return nil
	case OpUpdate:
		cur, ok := vm.find(co, c.Lit.S)
		if !ok {
			return ErrUnknownName.NewError(fmt.Sprintf("unknown name %q", c.Lit.S.bytes))
		}
		nv, err := vm.binaryArith(OpAdd, cur, IntVal(int64(c.Arg)))
		if err != nil {
			return err
		}
		vm.assign(co, c.Lit.S, nv)
		return nil
	}
	return fmt.Errorf("unhandled opcode %s", c.Op)
}

func (vm *VM) execBreak(co *Coroutine) error {
	if len(co.loopStack) == 0 {
		return ErrStackImbalance.NewError("break outside loop")
	}
	lm := co.loopStack[len(co.loopStack)-1]
	co.markStack = co.markStack[:lm.markDepth]
	co.stack = co.stack[:lm.stackDepth]
	co.loopStack = co.loopStack[:len(co.loopStack)-1]
	co.forStack = co.forStack[:lm.forDepth]
	co.ip = lm.breakAt
	return nil
}

func (vm *VM) execContinue(co *Coroutine) error {
	if len(co.loopStack) == 0 {
		return ErrStackImbalance.NewError("continue outside loop")
	}
	lm := co.loopStack[len(co.loopStack)-1]
	co.markStack = co.markStack[:lm.markDepth]
	co.stack = co.stack[:lm.stackDepth]
	co.ip = lm.continueAt
	return nil
}

// execCall implements §4.5's call discipline.
func (vm *VM) execCall(co *Coroutine) error {
	callMark := co.topMark()
	callee := co.pop()
	switch callee.Tag {
	case TagCallback:
		args := append([]Value(nil), co.stack[callMark:]...)
		co.stack = co.stack[:callMark]
		return vm.invokeCallback(callee.Cb, args, co)
	case TagSubroutine:
		f := &frame{savedIP: co.ip, savedLoop: len(co.loopStack), argBase: callMark, argEnd: len(co.stack)}
		fn := vm.funcAt(int(callee.I))
		if fn != nil {
			f.funcID = fn.FuncID
		}
		co.frames = append(co.frames, f)
		co.pushMark()
		co.ip = int(callee.I)
		return nil
	default:
		return ErrNotCallable.NewError(fmt.Sprintf("%s is not callable", callee.TypeName()))
	}
}

func (vm *VM) funcAt(entry int) *CompiledFunction {
	for _, f := range vm.curBytecode().Functions {
		if f.Entry == entry {
			return f
		}
	}
	return nil
}

func (vm *VM) funcByID(id int) *CompiledFunction {
	for _, f := range vm.curBytecode().Functions {
		if f.FuncID == id {
			return f
		}
	}
	return nil
}

// execReturn implements §4.5's return discipline. A compiled function
// body always precedes RETURN with MARK + its (possibly empty) value
// list, so the mark on top of co.markStack here is always that
// return-value envelope, never some unrelated caller mark. For an
// ordinary call this compacts the return values down onto the
// frame's argBase, overwriting its arguments and any working values
// in between — the call expression's result ends up exactly where its
// callee and arguments used to be. For a coroutine's outermost
// return, the mark and values are left untouched for
// finishCoroutine/popDeadCoroutine to harvest the same way YIELD does.
func (vm *VM) execReturn(co *Coroutine) error {
	if len(co.frames) == 0 {
		return vm.finishCoroutine(co)
	}
	f := co.frames[len(co.frames)-1]
	co.frames = co.frames[:len(co.frames)-1]
	if f.savedIP < 0 {
		return vm.finishCoroutine(co)
	}
	mark := co.popMark()
	vals := append([]Value(nil), co.stack[mark:]...)
	if len(co.markStack) > 0 {
		co.markStack = co.markStack[:len(co.markStack)-1]
	}
	co.stack = co.stack[:f.argBase]
	co.stack = append(co.stack, vals...)
	co.ip = f.savedIP
	co.loopStack = co.loopStack[:f.savedLoop]
	return nil
}

// finishCoroutine implements the "completing its outermost RETURN
// marks itself DEAD and performs an implicit yield" rule of §4.7.
func (vm *VM) finishCoroutine(co *Coroutine) error {
	co.state = CoDead
	if co == vm.main() && len(vm.routines) == 1 {
		vm.halted = true
		return nil
	}
	if len(vm.routines) > 1 && vm.top() == co {
		vm.popDeadCoroutine()
	}
	return nil
}

// invoke pushes a synthetic call frame for fn and runs it to
// completion, returning the produced values — used by meta dispatch,
// for-loop generator calls and any other re-entrant invocation that
// is not itself a CALL opcode (§5 "Host-call reentrancy").
func (vm *VM) invoke(co *Coroutine, fn Value, args []Value) ([]Value, error) {
	switch fn.Tag {
	case TagCallback:
		before := len(co.stack)
		co.pushMark()
		if err := vm.invokeCallback(fn.Cb, args, co); err != nil {
			co.popMark()
			co.stack = co.stack[:before]
			return nil, err
		}
		co.popMark()
		out := append([]Value(nil), co.stack[before:]...)
		co.stack = co.stack[:before]
		return out, nil
	case TagSubroutine:
		depth := len(co.frames)
		co.pushMark()
		base := len(co.stack)
		for _, a := range args {
			co.push(a)
		}
		f := &frame{savedIP: co.ip, savedLoop: len(co.loopStack), argBase: base, argEnd: len(co.stack)}
		if fn2 := vm.funcAt(int(fn.I)); fn2 != nil {
			f.funcID = fn2.FuncID
		}
		savedIP := co.ip
		co.frames = append(co.frames, f)
		co.pushMark()
		co.ip = int(fn.I)
		if err := vm.loop(co, depth); err != nil {
			return nil, err
		}
		out := append([]Value(nil), co.stack[base:]...)
		co.stack = co.stack[:base]
		// execReturn already popped the return-value mark and the entry
		// mark pushed just above; only the outer mark pushed before args
		// remains, playing the role a trailing OpLimit would otherwise
		// consume.
		co.popMark()
		co.ip = savedIP
		return out, nil
	default:
		return nil, ErrNotCallable.NewError(fmt.Sprintf("%s is not callable", fn.TypeName()))
	}
}

func setMeta(target, meta Value) error {
	switch target.Tag {
	case TagVector:
		target.Vec.Meta = meta
	case TagMap:
		target.M.Meta = meta
	case TagUserdata:
		target.U.Meta = meta
	default:
		return ErrType.NewError("meta can only be set on vector, map or userdata")
	}
	return nil
}

func getMeta(target Value) Value {
	switch target.Tag {
	case TagVector:
		return target.Vec.Meta
	case TagMap:
		return target.M.Meta
	case TagUserdata:
		return target.U.Meta
	}
	return Nil
}
