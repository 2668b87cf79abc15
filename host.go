package ember

import (
	"fmt"
	"io"
	"os"
)

// NamedSource is one module a host hands to Create (§6 "an ordered
// list of named source modules"): Name is used for error messages and
// disassembly headers, Src is the program text.
type NamedSource struct {
	Name string
	Src  string
}

// Registration is one native callback a host binds into the core
// scope under Name, reachable from script as a bare name (§6 "a list
// of named native-callback registrations").
type Registration struct {
	Name string
	Fn   func(vm *VM) error
}

// CreateOptions is the functional-builder-style config struct behind
// Create, grounded on the teacher's chained-setter construction
// pattern (vm.go's SetRecover/SetBytecode) generalized to a single
// struct literal since this design's VM is fully assembled in one
// call rather than piecewise.
type CreateOptions struct {
	Modules       []NamedSource
	Registrations []Registration
	UserData      interface{}
	// MemoryPages overrides the heap pool's page growth size (§4.1);
	// zero uses defaultPoolPage.
	MemoryPages int
	// Stdout receives `print` output (the builtin and the PRINT opcode);
	// nil defaults to os.Stdout.
	Stdout io.Writer
}

// Create compiles modules, interns their strings, promotes them to
// the old string region, registers the host callbacks under their
// names plus the built-in core scope, and runs one collection —
// exactly §6 point 1's creation contract.
func Create(modules []NamedSource, registrations []Registration, userdata interface{}) (*VM, error) {
	return CreateWithOptions(CreateOptions{Modules: modules, Registrations: registrations, UserData: userdata})
}

// CreateWithOptions is Create's fuller entry point, for hosts that
// also need MemoryPages or a non-stdout Stdout.
func CreateWithOptions(opts CreateOptions) (*VM, error) {
	page := defaultPoolPage
	if opts.MemoryPages > 0 {
		page = opts.MemoryPages
	}
	heap := newHeapSized(page)

	bcs := make([]*Bytecode, 0, len(opts.Modules))
	for _, m := range opts.Modules {
		bc, err := CompileSource(heap, m.Name, m.Src)
		if err != nil {
			return nil, fmt.Errorf("module %q: %w", m.Name, err)
		}
		bcs = append(bcs, bc)
	}
	linked, mains := Link(bcs, "ember")

	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}

	vm := &VM{
		heap:        heap,
		modules:     []*Bytecode{linked},
		moduleMains: mains,
		userData:    opts.UserData,
		out:         out,
	}
	vm.core = buildCoreScope(vm, opts.Registrations)
	heap.promoteYoungStrings()
	vm.Collect()
	return vm, nil
}

// Run executes the named modules in order on a fresh coroutine with a
// fresh global scope (§6 point 2, "fresh runtime state"), then runs a
// final collection.
func (vm *VM) Run(moduleIndices ...int) error {
	vm.halted = false
	vm.lastErr = nil
	main := newCoroutine()
	main.state = CoRunning
	vm.routines = []*Coroutine{main}
	vm.global = vm.heap.allocMap()

	for _, idx := range moduleIndices {
		if idx < 0 || idx >= len(vm.moduleMains) {
			return ErrType.NewError(fmt.Sprintf("module index %d out of range", idx))
		}
		vm.halted = false
		if err := vm.runModuleAt(main, vm.moduleMains[idx]); err != nil {
			return err
		}
	}
	vm.halted = true
	vm.Collect()
	return nil
}

// Destroy releases vm's pools and string tables (§6 point 4). The Go
// garbage collector reclaims the underlying memory once vm itself
// becomes unreachable; Destroy's role is to drop every reference vm
// holds so that happens promptly instead of waiting on a live VM the
// host forgot to discard.
func (vm *VM) Destroy() {
	vm.routines = nil
	vm.modules = nil
	vm.core = nil
	vm.global = nil
	vm.heap = nil
	vm.userData = nil
}

// UserData returns the opaque pointer passed to Create.
func (vm *VM) UserData() interface{} { return vm.userData }

// ---- stack-based ABI (§6 point 3) ----
// Every method below operates on the coroutine currently executing a
// host callback (vm.top()), matching §5's "a host callback runs on
// the current coroutine's stack."

// Depth returns the number of values above the callback's own MARK —
// for a registered Registration or Callback, this is always exactly
// the number of arguments the script passed plus whatever the
// callback itself has pushed so far.
func (vm *VM) Depth() int {
	co := vm.top()
	return len(co.stack) - co.topMark()
}

// Push pushes v onto the current coroutine's operand stack.
func (vm *VM) Push(v Value) { vm.top().push(v) }

// Pop pops and returns the top value.
func (vm *VM) Pop() Value { return vm.top().pop() }

// Top returns the top value without removing it.
func (vm *VM) Top() Value { return vm.top().top() }

// Pick returns the value at depth i above the callback's own mark
// (0 is the first argument), without removing anything.
func (vm *VM) Pick(i int) Value {
	co := vm.top()
	idx := co.topMark() + i
	if idx < 0 || idx >= len(co.stack) {
		return Nil
	}
	return co.stack[idx]
}

// ---- typed is_*/to_*/make_* builders, one per Value variant ----

func (vm *VM) IsNil(v Value) bool    { return v.Tag == TagNil }
func (vm *VM) IsInt(v Value) bool    { return v.Tag == TagInt }
func (vm *VM) IsFloat(v Value) bool  { return v.Tag == TagFloat }
func (vm *VM) IsString(v Value) bool { return v.Tag == TagString }
func (vm *VM) IsBool(v Value) bool   { return v.Tag == TagBool }
func (vm *VM) IsVector(v Value) bool { return v.Tag == TagVector }
func (vm *VM) IsMap(v Value) bool    { return v.Tag == TagMap }
func (vm *VM) IsCallable(v Value) bool { return v.CanCall() }
func (vm *VM) IsCoroutine(v Value) bool { return v.Tag == TagCoroutine }
func (vm *VM) IsUserdata(v Value) bool  { return v.Tag == TagUserdata }

func (vm *VM) ToInt(v Value) int64 {
	switch v.Tag {
	case TagInt:
		return v.I
	case TagFloat:
		return int64(v.F)
	}
	return 0
}

func (vm *VM) ToFloat(v Value) float64 {
	switch v.Tag {
	case TagFloat:
		return v.F
	case TagInt:
		return float64(v.I)
	}
	return 0
}

func (vm *VM) ToString(v Value) string { return v.String() }
func (vm *VM) ToBool(v Value) bool     { return !v.IsFalsy() }

// ToUserdata returns the host-owned pointer wrapped by a userdata
// Value, or nil if v is not userdata.
func (vm *VM) ToUserdata(v Value) interface{} {
	if v.Tag != TagUserdata || v.U == nil {
		return nil
	}
	return v.U.Ptr
}

// CoroutineID returns the identity Heap.allocCoroutine stamped onto v
// when it was created, or "" if v is not a coroutine. Useful for a
// host logging or tracing which of several suspended coroutines is
// running without pinning to the pool slot pointer, which a sweep can
// recycle out from under a dead coroutine's old identity.
func (vm *VM) CoroutineID(v Value) string {
	if v.Tag != TagCoroutine || v.Cor == nil {
		return ""
	}
	return v.Cor.id
}

func (vm *VM) MakeInt(i int64) Value      { return IntVal(i) }
func (vm *VM) MakeFloat(f float64) Value  { return FloatVal(f) }
func (vm *VM) MakeBool(b bool) Value      { return BoolVal(b) }
func (vm *VM) MakeString(s string) Value  { return strVal(vm.intern(s)) }
func (vm *VM) MakeVector() Value {
	return Value{Tag: TagVector, Vec: vm.heap.allocVector()}
}
func (vm *VM) MakeMap() Value { return Value{Tag: TagMap, M: vm.heap.allocMap()} }

// MakeCallback wraps a host function as a first-class callable Value,
// usable as a meta handler or passed around as script data without
// going through the core scope.
func (vm *VM) MakeCallback(name string, fn func(vm *VM) error) Value {
	return Value{Tag: TagCallback, Cb: &Callback{Name: name, Fn: fn}}
}

// MakeUserdata wraps ptr as opaque userdata with no meta value; the
// host sets one afterward with SetMeta if operator dispatch is
// needed (§4.8).
func (vm *VM) MakeUserdata(ptr interface{}) Value {
	u := vm.heap.allocUserdata()
	u.Ptr = ptr
	return Value{Tag: TagUserdata, U: u}
}

// ---- ordered-map and vector accessors ----

func (vm *VM) VectorLen(v Value) int { return v.Vec.Len() }
func (vm *VM) VectorGet(v Value, i int) Value {
	r, _ := v.Vec.Get(i)
	return r
}
func (vm *VM) VectorSet(v Value, i int, val Value) { v.Vec.Set(i, val) }
func (vm *VM) VectorPush(v Value, val Value)       { v.Vec.Push(val) }

func (vm *VM) MapLen(v Value) int { return v.M.Len() }
func (vm *VM) MapGet(v Value, key Value) (Value, bool) { return v.M.Get(key) }
func (vm *VM) MapSet(v Value, key, val Value)          { v.M.Set(key, val) }
func (vm *VM) MapDelete(v Value, key Value)            { v.M.Delete(key) }

// GetMeta/SetMeta expose §4.8's per-container meta value to host code,
// mirroring OpMetaGet/OpMetaSet.
func (vm *VM) GetMeta(v Value) Value          { return getMeta(v) }
func (vm *VM) SetMeta(v Value, meta Value) error { return setMeta(v, meta) }

// Call invokes fn with args from host code, the same re-entrant path
// meta dispatch and for-generators use (§5 "Host-call reentrancy").
func (vm *VM) Call(fn Value, args ...Value) ([]Value, error) {
	// Run leaves vm.halted set; the dispatch loop would otherwise return
	// before the callee executes a single cell.
	halted := vm.halted
	vm.halted = false
	out, err := vm.invoke(vm.top(), fn, args)
	vm.halted = halted
	return out, err
}
