package ember

import "fmt"

// Operator polymorphism (§4.8): vectors, maps and userdata carry an
// optional meta value consulted before falling back to built-in
// behavior. Grounded on the teacher's ObjectImpl-level BinaryOp/
// IndexGet/IndexSet dispatch (objects.go), generalized from Go
// interface methods to an explicit meta-Value lookup since this
// design's containers are concrete structs, not interfaces.

// metaHandler looks up opName on v's meta value (if any), returning
// the callable handler to invoke, or Nil+false if v has no meta or
// the meta declines (§4.8).
func (vm *VM) metaHandler(co *Coroutine, v Value, opName string) (Value, bool, error) {
	meta := getMeta(v)
	switch meta.Tag {
	case TagNil:
		return Nil, false, nil
	case TagMap:
		h, ok := meta.Get(opName, vm)
		if !ok || !h.CanCall() {
			return Nil, false, nil
		}
		return h, true, nil
	case TagSubroutine, TagCallback:
		out, err := vm.invoke(co, meta, []Value{strVal(vm.intern(opName))})
		if err != nil {
			return Nil, false, err
		}
		if len(out) == 0 || !out[0].CanCall() {
			return Nil, false, nil
		}
		return out[0], true, nil
	}
	return Nil, false, nil
}

// Get is a small convenience used by metaHandler: map lookup keyed by
// a Go string rather than an already-interned Value.
func (m Value) Get(key string, vm *VM) (Value, bool) {
	return m.M.Get(strVal(vm.intern(key)))
}

func (vm *VM) metaBinary(co *Coroutine, opName string, l, r Value) (Value, bool, error) {
	if !l.Tag.isContainer() && !r.Tag.isContainer() {
		return Nil, false, nil
	}
	for _, v := range [2]Value{l, r} {
		if !v.Tag.isContainer() {
			continue
		}
		h, ok, err := vm.metaHandler(co, v, opName)
		if err != nil {
			return Nil, false, err
		}
		if ok {
			out, err := vm.invoke(co, h, []Value{l, r})
			if err != nil {
				return Nil, false, err
			}
			if len(out) == 0 {
				return Nil, true, nil
			}
			return out[0], true, nil
		}
	}
	return Nil, false, nil
}

func (t Tag) isContainer() bool {
	return t == TagVector || t == TagMap || t == TagUserdata
}

// metaEqual implements `==`/`!=`: meta "==" dispatch first, then
// Value.Equal. For containers that is identity: two distinct vectors
// or maps with equal elements compare unequal unless a meta "=="
// handler says otherwise; elements are not compared.
func (vm *VM) metaEqual(l, r Value) (bool, error) {
	v, ok, err := vm.metaBinary(vm.mainOrCurrent(), "==", l, r)
	if err != nil {
		return false, err
	}
	if ok {
		return !v.IsFalsy(), nil
	}
	return l.Equal(r), nil
}

func (vm *VM) mainOrCurrent() *Coroutine {
	if len(vm.routines) == 0 {
		return nil
	}
	return vm.top()
}

func (vm *VM) metaCompare(op Opcode, l, r Value) (Value, error) {
	sym := map[Opcode]string{OpLt: "<", OpLte: "<=", OpGt: ">", OpGte: ">="}[op]
	v, ok, err := vm.metaBinary(vm.mainOrCurrent(), sym, l, r)
	if err != nil {
		return Nil, err
	}
	if ok {
		return v, nil
	}
	c := l.Compare(r)
	switch op {
	case OpLt:
		return BoolVal(c < 0), nil
	case OpLte:
		return BoolVal(c <= 0), nil
	case OpGt:
		return BoolVal(c > 0), nil
	default:
		return BoolVal(c >= 0), nil
	}
}

func (vm *VM) metaCount(v Value) (int64, error) {
	h, ok, err := vm.metaHandler(vm.mainOrCurrent(), v, "#")
	if err != nil {
		return 0, err
	}
	if ok {
		out, err := vm.invoke(vm.mainOrCurrent(), h, []Value{v})
		if err != nil {
			return 0, err
		}
		if len(out) > 0 {
			return out[0].I, nil
		}
		return 0, nil
	}
	switch v.Tag {
	case TagVector:
		return int64(v.Vec.Len()), nil
	case TagMap:
		return int64(v.M.Len()), nil
	case TagString:
		return int64(len(v.S.bytes)), nil
	}
	return 0, newOperandTypeError("#", v.TypeName(), "")
}

func (vm *VM) binaryArith(op Opcode, l, r Value) (Value, error) {
	sym := map[Opcode]string{OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%", OpConcat: ".."}[op]
	v, ok, err := vm.metaBinary(vm.mainOrCurrent(), sym, l, r)
	if err != nil {
		return Nil, err
	}
	if ok {
		return v, nil
	}
	if op == OpConcat || op == OpAdd && (l.Tag == TagString || r.Tag == TagString) {
		return strVal(vm.intern(l.String() + r.String())), nil
	}
	if l.Tag != TagInt && l.Tag != TagFloat || r.Tag != TagInt && r.Tag != TagFloat {
		return Nil, newOperandTypeError(sym, l.TypeName(), r.TypeName())
	}
	bothInt := l.Tag == TagInt && r.Tag == TagInt
	lf, rf := toFloat(l), toFloat(r)
	switch op {
	case OpAdd:
		if bothInt {
			return IntVal(l.I + r.I), nil
		}
		return FloatVal(lf + rf), nil
	case OpSub:
		if bothInt {
			return IntVal(l.I - r.I), nil
		}
		return FloatVal(lf - rf), nil
	case OpMul:
		if bothInt {
			return IntVal(l.I * r.I), nil
		}
		return FloatVal(lf * rf), nil
	case OpDiv:
		if rf == 0 {
			return Nil, ErrZeroDivision.NewError("division by zero")
		}
		return FloatVal(lf / rf), nil
	case OpMod:
		if !bothInt {
			return Nil, newOperandTypeError("%", l.TypeName(), r.TypeName())
		}
		if r.I == 0 {
			return Nil, ErrZeroDivision.NewError("division by zero")
		}
		return IntVal(l.I % r.I), nil
	}
	return Nil, ErrInvalidOperator.NewError(sym)
}

func toFloat(v Value) float64 {
	if v.Tag == TagFloat {
		return v.F
	}
	return float64(v.I)
}

// indexGet implements `.`/`[]` read access, consulting meta first for
// containers that decline the built-in lookup (field access that
// misses falls through to meta, matching §4.8's method-lookup role).
func (vm *VM) indexGet(cont, key Value) (Value, error) {
	switch cont.Tag {
	case TagVector:
		if key.Tag != TagInt {
			h, ok, err := vm.metaHandler(vm.mainOrCurrent(), cont, ":"+key.String())
			if err != nil {
				return Nil, err
			}
			if ok {
				return h, nil
			}
			return Nil, newIndexTypeError("integer", key.TypeName())
		}
		if v, ok := cont.Vec.Get(int(key.I)); ok {
			return v, nil
		}
		return Nil, ErrIndexOutOfBounds.NewError(fmt.Sprintf("index %d out of bounds", key.I))
	case TagMap:
		if v, ok := cont.M.Get(key); ok {
			return v, nil
		}
		h, ok, err := vm.metaHandler(vm.mainOrCurrent(), cont, ":"+key.String())
		if err != nil {
			return Nil, err
		}
		if ok {
			return h, nil
		}
		return Nil, nil
	case TagString:
		if key.Tag != TagInt {
			return Nil, newIndexTypeError("integer", key.TypeName())
		}
		if key.I < 0 || int(key.I) >= len(cont.S.bytes) {
			return Nil, ErrIndexOutOfBounds.NewError("string index out of bounds")
		}
		return IntVal(int64(cont.S.bytes[key.I])), nil
	case TagUserdata:
		h, ok, err := vm.metaHandler(vm.mainOrCurrent(), cont, ":"+key.String())
		if err != nil {
			return Nil, err
		}
		if ok {
			return h, nil
		}
		return Nil, ErrNotIndexable.NewError("userdata has no meta handler for " + key.String())
	}
	return Nil, ErrNotIndexable.NewError(fmt.Sprintf("%s is not indexable", cont.TypeName()))
}

func (vm *VM) indexSet(cont, key, val Value) error {
	switch cont.Tag {
	case TagVector:
		if key.Tag != TagInt {
			return newIndexTypeError("integer", key.TypeName())
		}
		if !cont.Vec.Set(int(key.I), val) {
			return ErrIndexOutOfBounds.NewError(fmt.Sprintf("index %d out of bounds", key.I))
		}
		return nil
	case TagMap:
		cont.M.Set(key, val)
		return nil
	}
	return ErrNotIndexAssignable.NewError(fmt.Sprintf("%s is not index-assignable", cont.TypeName()))
}
