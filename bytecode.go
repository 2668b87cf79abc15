package ember

import (
	"fmt"
	"io"
)

// Cell is one bytecode instruction: an opcode, an inline-cached/operand
// integer slot and an optional literal Value (§3 "Bytecode"). Arg's
// meaning is opcode-specific: a jump target for branch opcodes and
// LOOP, a value count for LIMIT, a function ID for PID, or a parameter
// index for ARG.
type Cell struct {
	Op  Opcode
	Arg int
	Lit Value
}

// CompiledFunction is one subroutine's metadata: its entry point into
// the shared Bytecode.Cells array, its parameter count and its
// compile-time scope path (§4.6), grounded on the teacher's
// CompiledFunction (bytecode.go) minus the teacher's free-variable
// list, since this design has no reference-capturing closures.
type CompiledFunction struct {
	Name     string
	Entry    int
	NumParam int
	ScopePath []int
	FuncID   int
}

// Bytecode is the flat, fully linked instruction array produced by the
// Compiler for one module, plus the function table used for
// disassembly and for locating a module's top-level entry point.
// Grounded on the teacher's Bytecode type (bytecode.go): same
// Cells-array-plus-side-tables shape, generalized from the teacher's
// opcode/operand encoding to this spec's Cell type.
type Bytecode struct {
	Cells     []Cell
	Functions []*CompiledFunction
	Main      int // entry instruction index for the module's top level
	Name      string
}

// Fprint writes a human-readable disassembly of b to w, one cell per
// line, annotated with function boundaries — the "logging of
// decompiled bytecode" ambient mechanism named in §1/SPEC_FULL §2,
// grounded on the teacher's Bytecode.Fprint / putConstants.
func (b *Bytecode) Fprint(w io.Writer) {
	fmt.Fprintf(w, "Bytecode<%s>\n", b.Name)
	funcAt := map[int]*CompiledFunction{}
	for _, f := range b.Functions {
		funcAt[f.Entry] = f
	}
	for i, c := range b.Cells {
		if f, ok := funcAt[i]; ok {
			fmt.Fprintf(w, "; function %s(#%d) params=%d path=%v\n", f.Name, f.FuncID, f.NumParam, f.ScopePath)
		}
		fmt.Fprintf(w, "%5d  %-10s", i, c.Op)
		switch {
		case isBranch(c.Op):
			fmt.Fprintf(w, "-> %d", c.Arg)
		case c.Op == OpLit || c.Op == OpFname || c.Op == OpGname || c.Op == OpFind ||
			c.Op == OpAssign || c.Op == OpAssignL || c.Op == OpAssignP ||
			c.Op == OpAddLit || c.Op == OpMulLit || c.Op == OpUpdate:
			fmt.Fprintf(w, "%s", c.Lit.String())
		default:
			if c.Arg != 0 {
				fmt.Fprintf(w, "%d", c.Arg)
			}
		}
		fmt.Fprintln(w)
	}
}

// FprintFunction disassembles only the instructions belonging to fn,
// for per-function traces.
func (b *Bytecode) FprintFunction(w io.Writer, fn *CompiledFunction) {
	end := len(b.Cells)
	for _, other := range b.Functions {
		if other.Entry > fn.Entry && other.Entry < end {
			end = other.Entry
		}
	}
	fmt.Fprintf(w, "function %s(#%d)\n", fn.Name, fn.FuncID)
	for i := fn.Entry; i < end; i++ {
		fmt.Fprintf(w, "%5d  %s\n", i, b.Cells[i].Op)
	}
}
