package ember

import "fmt"

// invokeCallback runs a host Callback against co: args are pushed onto
// co's operand stack at the position the active mark already points
// at (the mark itself is owned by the caller — a CALL's callMark, or a
// synthetic one pushed by invoke), then cb.Fn drives the rest through
// the ordinary stack ABI. Whatever cb.Fn leaves above that position is
// the callback's return values.
func (vm *VM) invokeCallback(cb *Callback, args []Value, co *Coroutine) error {
	for _, a := range args {
		co.push(a)
	}
	if err := cb.Fn(vm); err != nil {
		return err
	}
	return nil
}

// execCoroutine implements `coroutine(f)` (§4.7): allocates a fresh,
// not-yet-started Coroutine whose body is the subroutine f, and pushes
// it as a TagCoroutine value. The coroutine does not run until it is
// first resumed.
func (vm *VM) execCoroutine(co *Coroutine) error {
	mark := co.topMark()
	args := co.stack[mark:]
	if len(args) == 0 {
		return newOperandTypeError("coroutine", "", "")
	}
	f := args[0]
	co.stack = co.stack[:mark]
	if f.Tag != TagSubroutine {
		return newOperandTypeError("coroutine", f.TypeName(), "")
	}
	nc := vm.heap.allocCoroutine()
	nc.state = CoSuspended
	nc.entry = int(f.I)
	co.push(Value{Tag: TagCoroutine, Cor: nc})
	return nil
}

// execResume implements `resume(cor, args...)`: drives cor to its next
// YIELD or completion and leaves whatever it produced on co's stack.
func (vm *VM) execResume(co *Coroutine) error {
	mark := co.topMark()
	args := append([]Value(nil), co.stack[mark:]...)
	co.stack = co.stack[:mark]
	if len(args) == 0 || args[0].Tag != TagCoroutine {
		return newOperandTypeError("resume", "", "")
	}
	target := args[0].Cor
	out, err := vm.resumeInto(co, target, args[1:])
	if err != nil {
		return err
	}
	for _, v := range out {
		co.push(v)
	}
	return nil
}

// execYield implements `yield(vals...)` (§4.7): pops the running
// coroutine off the chain, hands its yielded values to the new top of
// chain, and suspends it. The coroutine's own mark is left in place —
// RESUME picks execution back up right after the YIELD cell.
func (vm *VM) execYield(co *Coroutine) error {
	if len(vm.routines) < 2 {
		return ErrInvalidOperator.NewError("yield outside a coroutine")
	}
	mark := co.topMark()
	vals := append([]Value(nil), co.stack[mark:]...)
	co.stack = co.stack[:mark]
	co.state = CoSuspended
	vm.routines = vm.routines[:len(vm.routines)-1]
	dst := vm.top()
	dst.stack = append(dst.stack, vals...)
	return nil
}

// resumeInto pushes target onto the routine chain above caller, seeds
// its operand stack with args (bound as its call arguments on the
// first resume, left loose above any pending state on later resumes),
// and drives the shared dispatch loop until control returns to caller
// — either because target yielded or because it ran to completion.
// The values target produced are returned to caller's own call site.
func (vm *VM) resumeInto(caller *Coroutine, target *Coroutine, args []Value) ([]Value, error) {
	if target.state == CoDead {
		return nil, nil
	}
	first := !target.started
	for _, a := range args {
		target.push(a)
	}
	if first {
		target.started = true
		target.ip = target.entry
		f := &frame{savedIP: -1, scopePath: []int{0}, argBase: 0, argEnd: len(target.stack)}
		target.frames = append(target.frames, f)
		target.pushMark()
	}
	target.state = CoRunning
	vm.routines = append(vm.routines, target)
	before := len(caller.stack)
	if err := vm.loop(caller, len(caller.frames)); err != nil {
		return nil, err
	}
	out := append([]Value(nil), caller.stack[before:]...)
	caller.stack = caller.stack[:before]
	return out, nil
}

// callLibNamed looks name up in the core scope's "lib" table and
// invokes it with args, for VM-internal primitives — currently MATCH —
// that delegate to a host-registered handler rather than a fixed
// opcode semantics (§4.8 "~ operator").
func (vm *VM) callLibNamed(name string, args []Value) (Value, error) {
	co := vm.top()
	lib, ok := vm.core.Get(strVal(vm.intern("lib")))
	if ok && lib.Tag == TagMap {
		if h, ok2 := lib.M.Get(strVal(vm.intern(name))); ok2 && h.CanCall() {
			out, err := vm.invoke(co, h, args)
			if err != nil {
				return Nil, err
			}
			if len(out) > 0 {
				return out[0], nil
			}
			return Nil, nil
		}
	}
	return Nil, ErrInvalidOperator.NewError(fmt.Sprintf("no %q handler registered", name))
}

// Collect runs one mark-and-sweep cycle (§4.1): clears every pool's
// mark bit, walks from the core scope, the global scope, every
// routine on the chain and every module's literal pool, then sweeps
// the four object pools and the young string region. It never runs
// implicitly — only here, at VM creation, at the end of a Run, after a
// runtime failure (vm.reset), and from `lib.collect()`.
func (vm *VM) Collect() {
	vm.heap.resetMarks()
	marked := map[*istring]bool{}
	if vm.core != nil {
		mark(Value{Tag: TagMap, M: vm.core}, marked)
	}
	if vm.global != nil {
		mark(Value{Tag: TagMap, M: vm.global}, marked)
	}
	for _, co := range vm.routines {
		markCoroutine(co, marked)
	}
	for _, bc := range vm.modules {
		for _, c := range bc.Cells {
			mark(c.Lit, marked)
		}
	}
	vm.heap.vectors.sweep()
	vm.heap.maps.sweep()
	vm.heap.coroutines.sweep()
	vm.heap.userdata.sweep()
	vm.heap.sweepYoungStrings(marked)
}
