// Package mathlib provides the math primitives rela.c binds at
// startup (sin, cos, tan, asin, acos, atan, sinh, cosh, tanh, ceil,
// floor, sqrt, abs, atan2, log, log10, pow, min, max), registered
// through the same ember.Registration list any host passes to Create, following
// the teacher's one-subpackage-per-builtin-module layout
// (stdlib/{fmt,json,strings,time}) and its map-of-name-to-callable
// shape (there, a map to ugo.Object; here, a slice of ember.Registration
// since ember.Create takes registrations as a list rather than a
// scope-merged map).
package mathlib

import (
	"math"

	"github.com/ember-lang/ember"
)

// Registrations returns one ember.Registration per math primitive, for
// a host to pass to ember.Create (or append to its own registration
// list) when a script needs math beyond +,-,*,/.
func Registrations() []ember.Registration {
	return []ember.Registration{
		unary("sin", math.Sin),
		unary("cos", math.Cos),
		unary("tan", math.Tan),
		unary("asin", math.Asin),
		unary("acos", math.Acos),
		unary("atan", math.Atan),
		unary("sinh", math.Sinh),
		unary("cosh", math.Cosh),
		unary("tanh", math.Tanh),
		unary("ceil", math.Ceil),
		unary("floor", math.Floor),
		unary("sqrt", math.Sqrt),
		unary("abs", math.Abs),
		unary("log", math.Log),
		unary("log10", math.Log10),
		binary("atan2", math.Atan2),
		binary("pow", math.Pow),
		{Name: "min", Fn: minMax(false)},
		{Name: "max", Fn: minMax(true)},
	}
}

func unary(name string, fn func(float64) float64) ember.Registration {
	return ember.Registration{Name: name, Fn: func(vm *ember.VM) error {
		if vm.Depth() < 1 {
			return missingArg(name)
		}
		x := vm.ToFloat(vm.Pick(0))
		vm.Pop()
		vm.Push(vm.MakeFloat(fn(x)))
		return nil
	}}
}

func binary(name string, fn func(float64, float64) float64) ember.Registration {
	return ember.Registration{Name: name, Fn: func(vm *ember.VM) error {
		if vm.Depth() < 2 {
			return missingArg(name)
		}
		b := vm.ToFloat(vm.Pop())
		a := vm.ToFloat(vm.Pop())
		vm.Push(vm.MakeFloat(fn(a, b)))
		return nil
	}}
}

// minMax builds the variadic min/max primitive: at least one argument,
// comparing by float value and returning the winning original Value
// unconverted (so min(1, 2) stays an integer).
func minMax(wantMax bool) func(vm *ember.VM) error {
	return func(vm *ember.VM) error {
		n := vm.Depth()
		if n < 1 {
			return missingArg("min/max")
		}
		best := vm.Pick(0)
		bestF := vm.ToFloat(best)
		for i := 1; i < n; i++ {
			v := vm.Pick(i)
			f := vm.ToFloat(v)
			if (wantMax && f > bestF) || (!wantMax && f < bestF) {
				best, bestF = v, f
			}
		}
		for i := 0; i < n; i++ {
			vm.Pop()
		}
		vm.Push(best)
		return nil
	}
}

func missingArg(name string) error {
	return &mathArgError{name: name}
}

type mathArgError struct{ name string }

func (e *mathArgError) Error() string { return "mathlib: " + e.name + " requires an argument" }
