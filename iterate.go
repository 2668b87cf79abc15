package ember

// forState is the persistent iterator state for one active `for`
// loop (§4.7, §8 "Iterable kinds"), pushed the first time its FOR
// cell executes and popped on exhaustion or BREAK.
type forState struct {
	ip   int
	kind forKind

	idx int64
	n   int64

	vec *Vector
	m   *Map

	gen Value
	cor *Coroutine
}

type forKind int

const (
	forInt forKind = iota
	forVector
	forMap
	forGen
	forCoroutine
)

func newForState(ip int, v Value) (*forState, error) {
	switch v.Tag {
	case TagInt:
		return &forState{ip: ip, kind: forInt, n: v.I}, nil
	case TagVector:
		return &forState{ip: ip, kind: forVector, vec: v.Vec}, nil
	case TagMap:
		return &forState{ip: ip, kind: forMap, m: v.M}, nil
	case TagSubroutine, TagCallback:
		return &forState{ip: ip, kind: forGen, gen: v}, nil
	case TagCoroutine:
		return &forState{ip: ip, kind: forCoroutine, cor: v.Cor}, nil
	default:
		return nil, newOperandTypeError("for-in", v.TypeName(), "")
	}
}

// next produces the next (key, value, ok) triple, or ok=false when
// the iterable is exhausted (§8 boundary behaviors, §4.7).
func (st *forState) next(vm *VM, co *Coroutine) (Value, Value, bool, error) {
	switch st.kind {
	case forInt:
		if st.idx >= st.n {
			return Nil, Nil, false, nil
		}
		v := IntVal(st.idx)
		st.idx++
		return v, v, true, nil
	case forVector:
		if int(st.idx) >= st.vec.Len() {
			return Nil, Nil, false, nil
		}
		v, _ := st.vec.Get(int(st.idx))
		k := IntVal(st.idx)
		st.idx++
		return k, v, true, nil
	case forMap:
		if int(st.idx) >= st.m.Len() {
			return Nil, Nil, false, nil
		}
		k, _ := st.m.keys.Get(int(st.idx))
		v, _ := st.m.vals.Get(int(st.idx))
		st.idx++
		return k, v, true, nil
	case forGen:
		out, err := vm.invoke(co, st.gen, []Value{IntVal(st.idx)})
		st.idx++
		if err != nil {
			return Nil, Nil, false, err
		}
		if len(out) == 0 || out[0].Tag == TagNil {
			return Nil, Nil, false, nil
		}
		val := out[0]
		key := IntVal(st.idx - 1)
		if len(out) > 1 {
			key = out[1]
		}
		return key, val, true, nil
	case forCoroutine:
		if st.cor.state == CoDead {
			return Nil, Nil, false, nil
		}
		out, err := vm.resumeInto(co, st.cor, nil)
		if err != nil {
			return Nil, Nil, false, err
		}
		if len(out) == 0 || out[0].Tag == TagNil {
			return Nil, Nil, false, nil
		}
		val := out[0]
		key := val
		if len(out) > 1 {
			key = out[1]
		}
		return key, val, true, nil
	}
	return Nil, Nil, false, nil
}

// execFor steps the FOR loop headed at ip, matching on continuation
// state kept in co.forStack (LIFO — nested for-loops' FOR addresses
// are distinct, so no separate key is needed). On exhaustion it jumps
// to c.Arg, the instruction just past `end`.
func (vm *VM) execFor(co *Coroutine, c *Cell, ip int) error {
	var st *forState
	if n := len(co.forStack); n > 0 && co.forStack[n-1].ip == ip {
		st = co.forStack[n-1]
	} else {
		v := co.pop()
		var err error
		st, err = newForState(ip, v)
		if err != nil {
			return err
		}
		co.forStack = append(co.forStack, st)
	}

	k, v, ok, err := st.next(vm, co)
	if err != nil {
		return err
	}
	if !ok {
		co.forStack = co.forStack[:len(co.forStack)-1]
		co.ip = c.Arg
		return nil
	}
	co.push(v)
	co.push(k)
	co.ip = ip + 1
	return nil
}

func (vm *VM) execSort(co *Coroutine) error {
	callMark := co.topMark()
	args := co.stack[callMark:]
	co.stack = co.stack[:callMark]
	if len(args) == 0 || args[0].Tag != TagVector {
		return newOperandTypeError("sort", "", "")
	}
	vec := args[0].Vec
	var cmp Value
	if len(args) > 1 {
		cmp = args[1]
	}
	if err := vm.sortVector(co, vec, cmp); err != nil {
		return err
	}
	co.push(args[0])
	return nil
}

func (vm *VM) sortVector(co *Coroutine, vec *Vector, cmp Value) error {
	items := vec.items
	var sortErr error
	less := func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		if cmp.CanCall() {
			out, err := vm.invoke(co, cmp, []Value{items[i], items[j]})
			if err != nil {
				sortErr = err
				return false
			}
			return len(out) > 0 && !out[0].IsFalsy()
		}
		return items[i].Compare(items[j]) < 0
	}
	insertionSort(items, less)
	return sortErr
}

func insertionSort(items []Value, less func(i, j int) bool) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && less(j, j-1); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}
