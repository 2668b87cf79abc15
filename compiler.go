package ember

import (
	"errors"
	"fmt"

	"github.com/ember-lang/ember/lang"
	"github.com/ember-lang/ember/token"
)

// Compiler lowers a parsed ember program into a single linked
// Bytecode (§4.3, §4.4), grounded on the shape of the teacher's
// (ozanh/ugo) compiler.go: one pass over the AST emitting Cells
// directly into a flat slice, backpatching branch targets once the
// jump destination is known. Unlike the teacher, which switches on its
// Object-interface AST and a symbol-table-per-scope model, this
// compiler never allocates local slots — every binding instead flows
// through FIND/ASSIGN against the runtime's frame-walking scope model
// (§4.6), so there is no symbol table here at all.
type Compiler struct {
	heap  *Heap
	bc    *Bytecode
	cells []Cell
	errs  []error
}

// NewCompiler creates a Compiler that interns string literals and
// names through heap.
func NewCompiler(heap *Heap) *Compiler {
	return &Compiler{heap: heap, bc: &Bytecode{}}
}

// CompileSource parses src under name and compiles it to a Bytecode in
// one call, the entry point Create uses for each module source (§5).
func CompileSource(heap *Heap, name, src string) (*Bytecode, error) {
	file := lang.NewSourceFile(name, 0, src)
	p := lang.NewParser(file, src)
	prog, err := p.ParseProgram()
	if err != nil {
		return nil, err
	}
	c := NewCompiler(heap)
	return c.Compile(name, prog)
}

func (c *Compiler) intern(s string) *istring { return c.heap.intern(s) }

func (c *Compiler) strVal(s string) Value { return Value{Tag: TagString, S: c.intern(s)} }

// emit appends one Cell, folding it into the last already-emitted cell
// as a peephole-fused opcode in place when the pattern applies, instead
// of appending a new one. Four folds exist: GNAME, ADD_LIT, MUL_LIT and
// CFUNC (grounded on original_source/rela.c's `compile()`, which runs a
// similar check inline every time a cell is about to be appended); the
// other fused opcodes are never produced here. Branch targets are
// captured by reading len(c.cells), so a branch already patched to the
// index this cell would take (the end of an `and`/`or` right operand,
// for instance) must land on it: the fold is skipped when
// isJumpTarget reports such a branch.
func (c *Compiler) emit(op Opcode, arg int, lit Value) int {
	if n := len(c.cells); n > 0 && !c.isJumpTarget(n) {
		back1 := &c.cells[n-1]
		switch {
		// name.lit, get -> gname (obj.field and recv:method lookups,
		// compileChainRest/compileMethodCallTail's SelField pattern)
		case op == OpGet && back1.Op == OpLit:
			back1.Op = OpGname
			return n - 1
		// lit, add -> add_lit (rhs literal operand of `+`)
		case op == OpAdd && back1.Op == OpLit:
			back1.Op = OpAddLit
			return n - 1
		// lit, mul -> mul_lit (rhs literal operand of `*`)
		case op == OpMul && back1.Op == OpLit:
			back1.Op = OpMulLit
			return n - 1
		// find, call -> cfunc (bare-name direct call: print(x), min(a,b))
		case op == OpCall && back1.Op == OpFind:
			back1.Op = OpCfunc
			return n - 1
		}
	}
	c.cells = append(c.cells, Cell{Op: op, Arg: arg, Lit: lit})
	return len(c.cells) - 1
}

// isJumpTarget reports whether a branch cell already points at idx.
func (c *Compiler) isJumpTarget(idx int) bool {
	for i := range c.cells {
		if isBranch(c.cells[i].Op) && c.cells[i].Arg == idx {
			return true
		}
	}
	return false
}

func (c *Compiler) patchArg(idx, arg int) { c.cells[idx].Arg = arg }
func (c *Compiler) patchBreakAt(idx int, at int64) { c.cells[idx].Lit = IntVal(at) }

func (c *Compiler) errf(pos lang.Pos, format string, args ...interface{}) {
	c.errs = append(c.errs, fmt.Errorf(format, args...))
}

// Compile lowers prog (already parsed) to the module's Bytecode. The
// implicit top-level scope is function 0, matching runModule's
// manually constructed frame (§4.5).
func (c *Compiler) Compile(name string, prog []lang.Node) (*Bytecode, error) {
	c.bc.Name = name
	c.bc.Main = 0
	c.bc.Functions = append(c.bc.Functions, &CompiledFunction{
		Name: "main", Entry: 0, FuncID: 0, ScopePath: []int{0},
	})
	c.compileStmtList(prog)
	c.emit(OpStop, 0, Nil)
	c.bc.Cells = c.cells
	if len(c.errs) > 0 {
		return c.bc, errors.Join(c.errs...)
	}
	return c.bc, nil
}

// ---- statements ----

func (c *Compiler) compileStmtList(stmts []lang.Node) {
	for _, s := range stmts {
		c.compileStmt(s)
	}
}

func (c *Compiler) compileStmt(n lang.Node) {
	switch t := n.(type) {
	case *lang.MultiNode:
		if t.Assign {
			c.compileAssign(t)
			return
		}
		for _, it := range t.Items {
			c.compileStmtExpr(it)
		}
	case *lang.ReturnNode:
		c.emit(OpMark, 0, Nil)
		c.compileArgList(t.Values)
		c.emit(OpReturn, 0, Nil)
	case *lang.OpcodeNode:
		switch t.Op {
		case lang.OpBreak:
			c.emit(OpBreak, 0, Nil)
		case lang.OpContinue:
			c.emit(OpContinue, 0, Nil)
		default:
			c.compileStmtExpr(n)
		}
	case *lang.IfNode:
		c.compileIfStmt(t)
	case *lang.WhileNode:
		c.compileWhileStmt(t)
	case *lang.ForNode:
		c.compileForStmt(t)
	case *lang.FunctionNode:
		c.compileFunctionLiteral(t)
		if t.Name != "" {
			c.emit(OpAssign, 0, c.strVal(t.Name))
		} else {
			c.emit(OpDrop, 0, Nil)
		}
	default:
		c.compileStmtExpr(n)
	}
}

// compileStmtExpr evaluates n purely for side effects, discarding
// whatever it produces regardless of arity.
func (c *Compiler) compileStmtExpr(n lang.Node) {
	c.emit(OpMark, 0, Nil)
	c.compileExprSpread(n)
	c.emit(OpLimit, 0, Nil)
}

// JFALSE only peeks at the condition (§3 "branch opcodes never pop
// their own operand", matching AND/OR's reuse of the same top-of-stack
// value) — both the fallthrough and jump targets still have it on top,
// so every JFALSE site here is paired with an explicit DROP on each
// side.
func (c *Compiler) compileIfStmt(n *lang.IfNode) {
	c.compileExpr1(n.Cond)
	jf := c.emit(OpJfalse, 0, Nil)
	c.emit(OpDrop, 0, Nil)
	c.compileStmtList(n.Then)
	jend := c.emit(OpJmp, 0, Nil)
	c.patchArg(jf, len(c.cells))
	c.emit(OpDrop, 0, Nil)
	c.compileStmtList(n.Else)
	c.patchArg(jend, len(c.cells))
}

func (c *Compiler) compileWhileStmt(n *lang.WhileNode) {
	loopIdx := c.emit(OpLoop, 0, Nil)
	condStart := len(c.cells)
	c.compileExpr1(n.Cond)
	jf := c.emit(OpJfalse, 0, Nil)
	c.emit(OpDrop, 0, Nil)
	c.compileStmtList(n.Body)
	c.emit(OpJmp, condStart, Nil)
	c.patchArg(jf, len(c.cells))
	c.emit(OpDrop, 0, Nil)
	c.emit(OpUnloop, 0, Nil)
	afterUnloop := len(c.cells)
	c.patchArg(loopIdx, condStart)
	c.patchBreakAt(loopIdx, int64(afterUnloop))
}

func (c *Compiler) compileForStmt(n *lang.ForNode) {
	loopIdx := c.emit(OpLoop, 0, Nil)
	c.compileExpr1(n.Iter)
	forIdx := c.emit(OpFor, 0, Nil)
	if len(n.Vars) == 2 {
		c.emit(OpAssign, 0, c.strVal(n.Vars[0]))
		c.emit(OpAssign, 0, c.strVal(n.Vars[1]))
	} else {
		c.emit(OpDrop, 0, Nil)
		c.emit(OpAssign, 0, c.strVal(n.Vars[0]))
	}
	c.compileStmtList(n.Body)
	c.emit(OpJmp, forIdx, Nil)
	unloopIdx := len(c.cells)
	c.patchArg(forIdx, unloopIdx)
	c.emit(OpUnloop, 0, Nil)
	afterUnloop := len(c.cells)
	c.patchArg(loopIdx, forIdx)
	c.patchBreakAt(loopIdx, int64(afterUnloop))
}

// compileAssign lowers a comma-target = comma-value list (§4.3): the
// values are reconciled to exactly len(Items) through a MARK…LIMIT
// envelope, then targets are bound right to left, since the last
// value produced sits on top of the stack.
func (c *Compiler) compileAssign(m *lang.MultiNode) {
	c.emit(OpMark, 0, Nil)
	c.compileArgList(m.Values)
	c.emit(OpLimit, len(m.Items), Nil)
	for i := len(m.Items) - 1; i >= 0; i-- {
		c.compileAssignTarget(m.Items[i])
	}
}

func (c *Compiler) compileAssignTarget(target lang.Node) {
	switch t := target.(type) {
	case *lang.NameNode:
		if len(t.Chain) == 0 {
			c.emit(OpAssign, 0, c.strVal(t.Name))
			return
		}
		c.compileCompoundAssign(func() { c.emitNameBase(t.Name) }, t.Chain)
	case *lang.CallChainNode:
		c.compileCompoundAssign(func() { c.compileExpr1(t.Base) }, t.Chain)
	default:
		c.errf(target.Pos(), "invalid assignment target")
	}
}

// compileCompoundAssign assigns into a trailing index/field selector.
// The value being assigned is already on top of the stack (pushed by
// the enclosing MARK…LIMIT envelope); it is shunted aside while the
// container and key are computed, then shifted back into SET's
// expected [container, key, value] order (§4.3 "SHUNT/SHIFT").
func (c *Compiler) compileCompoundAssign(pushBase func(), chain []lang.Selector) {
	last := chain[len(chain)-1]
	if last.Kind != lang.SelIndex && last.Kind != lang.SelField {
		c.errf(0, "cannot assign to a call result")
		return
	}
	c.emit(OpShunt, 0, Nil)
	pushBase()
	c.compileChainRest(chain[:len(chain)-1], -1)
	if last.Kind == lang.SelIndex {
		c.compileExpr1(last.Key)
	} else {
		c.emit(OpLit, 0, c.strVal(last.Name))
	}
	c.emit(OpShift, 0, Nil)
	c.emit(OpSet, 0, Nil)
}

// ---- expressions ----

// compileExpr1 compiles n so it leaves exactly one value.
func (c *Compiler) compileExpr1(n lang.Node) {
	switch t := n.(type) {
	case *lang.LiteralNode:
		c.compileLiteral(t)
	case *lang.OpcodeNode:
		c.compileUnary(t)
	case *lang.OperatorNode:
		c.compileOperator(t)
	case *lang.VecNode:
		c.compileVec(t)
	case *lang.MapNode:
		c.compileMap(t)
	case *lang.FunctionNode:
		c.compileFunctionLiteral(t)
	case *lang.IfNode:
		c.compileIfExpr(t)
	case *lang.NameNode:
		arity := -1
		if chainEndsInCall(t.Chain) {
			arity = 1
		}
		c.compileSelectorChain(n, arity)
	case *lang.CallChainNode:
		arity := -1
		if chainEndsInCall(t.Chain) {
			arity = 1
		}
		c.compileSelectorChain(n, arity)
	default:
		c.errf(n.Pos(), "unsupported expression %T", n)
		c.emit(OpNil, 0, Nil)
	}
}

// compileExprSpread compiles n in a trailing list position, letting a
// call's natural arity flow into the caller's already-open MARK
// region instead of forcing exactly one value.
func (c *Compiler) compileExprSpread(n lang.Node) {
	switch t := n.(type) {
	case *lang.NameNode:
		c.compileSelectorChain(n, -1)
		_ = t
	case *lang.CallChainNode:
		c.compileSelectorChain(n, -1)
	case *lang.OpcodeNode:
		if t.Op == lang.OpUnpack {
			c.compileExpr1(t.Operand)
			c.emit(OpUnpack, 0, Nil)
			return
		}
		c.compileExpr1(n)
	default:
		c.compileExpr1(n)
	}
}

// compileArgList compiles a comma list (call args, return values):
// every item but the last is forced to one value, the last is allowed
// to spread (§4.3).
func (c *Compiler) compileArgList(items []lang.Node) {
	for i, it := range items {
		if i == len(items)-1 {
			c.compileExprSpread(it)
		} else {
			c.compileExpr1(it)
		}
	}
}

func chainEndsInCall(chain []lang.Selector) bool {
	if len(chain) == 0 {
		return false
	}
	k := chain[len(chain)-1].Kind
	return k == lang.SelCall || k == lang.SelMethod
}

func (c *Compiler) compileLiteral(n *lang.LiteralNode) {
	switch n.Kind {
	case lang.LitNil:
		c.emit(OpNil, 0, Nil)
	case lang.LitBool:
		if n.Bool {
			c.emit(OpTrue, 0, Nil)
		} else {
			c.emit(OpFalse, 0, Nil)
		}
	case lang.LitInt:
		c.emit(OpLit, 0, IntVal(n.Int))
	case lang.LitFloat:
		c.emit(OpLit, 0, FloatVal(n.Flt))
	case lang.LitString:
		if n.Interp == nil {
			c.emit(OpLit, 0, c.strVal(n.Str))
			return
		}
		c.compileInterpString(n)
	}
}

// compileInterpString lowers an interpolated string literal's parts
// and sub-expressions into a LIT/CONCAT chain.
func (c *Compiler) compileInterpString(n *lang.LiteralNode) {
	c.emit(OpLit, 0, c.strVal(n.Parts[0]))
	for i, sub := range n.Interp {
		c.compileExpr1(sub)
		c.emit(OpConcat, 0, Nil)
		if i+1 < len(n.Parts) && n.Parts[i+1] != "" {
			c.emit(OpLit, 0, c.strVal(n.Parts[i+1]))
			c.emit(OpConcat, 0, Nil)
		}
	}
}

func (c *Compiler) compileUnary(n *lang.OpcodeNode) {
	switch n.Op {
	case lang.OpNeg:
		c.compileExpr1(n.Operand)
		c.emit(OpNeg, 0, Nil)
	case lang.OpNot:
		c.compileExpr1(n.Operand)
		c.emit(OpNot, 0, Nil)
	case lang.OpCount:
		c.compileExpr1(n.Operand)
		c.emit(OpCount, 0, Nil)
	case lang.OpUnpack:
		c.compileExpr1(n.Operand)
		c.emit(OpUnpack, 0, Nil)
	default:
		c.errf(n.Pos(), "opcode node %v is statement-only", n.Op)
		c.emit(OpNil, 0, Nil)
	}
}

var binOpcodes = map[token.Token]Opcode{
	token.Add: OpAdd, token.Sub: OpSub, token.Mul: OpMul, token.Quo: OpDiv,
	token.Rem: OpMod, token.Eq: OpEq, token.Ne: OpNe, token.Lt: OpLt,
	token.Le: OpLte, token.Gt: OpGt, token.Ge: OpGte, token.Match: OpMatch,
}

func (c *Compiler) compileOperator(n *lang.OperatorNode) {
	switch n.Tok {
	case token.LogAnd:
		c.compileExpr1(n.Left)
		idx := c.emit(OpAnd, 0, Nil)
		c.compileExpr1(n.Right)
		c.patchArg(idx, len(c.cells))
		return
	case token.LogOr:
		c.compileExpr1(n.Left)
		idx := c.emit(OpOr, 0, Nil)
		c.compileExpr1(n.Right)
		c.patchArg(idx, len(c.cells))
		return
	}
	op, ok := binOpcodes[n.Tok]
	if !ok {
		c.errf(n.Pos(), "unsupported operator %s", n.Tok)
		c.emit(OpNil, 0, Nil)
		return
	}
	c.compileExpr1(n.Left)
	c.compileExpr1(n.Right)
	c.emit(op, 0, Nil)
}

func (c *Compiler) compileVec(n *lang.VecNode) {
	c.emit(OpMark, 0, Nil)
	c.compileArgList(n.Items)
	c.emit(OpVector, 0, Nil)
}

func (c *Compiler) compileMap(n *lang.MapNode) {
	c.emit(OpMark, 0, Nil)
	for i := range n.Keys {
		c.compileExpr1(n.Keys[i])
		c.compileExpr1(n.Vals[i])
	}
	c.emit(OpMap, 0, Nil)
}

// compileIfExpr compiles an if-used-as-expression: the value of
// whichever branch ran becomes the expression's result, nil if a
// taken branch has no statements.
func (c *Compiler) compileIfExpr(n *lang.IfNode) {
	c.compileExpr1(n.Cond)
	jf := c.emit(OpJfalse, 0, Nil)
	c.emit(OpDrop, 0, Nil)
	c.compileBranchValue(n.Then)
	jend := c.emit(OpJmp, 0, Nil)
	c.patchArg(jf, len(c.cells))
	c.emit(OpDrop, 0, Nil)
	c.compileBranchValue(n.Else)
	c.patchArg(jend, len(c.cells))
}

func (c *Compiler) compileBranchValue(stmts []lang.Node) {
	if len(stmts) == 0 {
		c.emit(OpNil, 0, Nil)
		return
	}
	c.compileStmtList(stmts[:len(stmts)-1])
	last := stmts[len(stmts)-1]
	if _, ok := last.(*lang.ReturnNode); ok {
		c.compileStmt(last)
		c.emit(OpNil, 0, Nil)
		return
	}
	if isStatementOnly(last) {
		c.compileStmt(last)
		c.emit(OpNil, 0, Nil)
		return
	}
	c.emit(OpMark, 0, Nil)
	c.compileExprSpread(last)
	c.emit(OpLimit, 1, Nil)
}

func isStatementOnly(n lang.Node) bool {
	switch t := n.(type) {
	case *lang.IfNode, *lang.WhileNode, *lang.ForNode:
		return true
	case *lang.MultiNode:
		return t.Assign
	case *lang.OpcodeNode:
		return t.Op == lang.OpBreak || t.Op == lang.OpContinue
	case *lang.FunctionNode:
		return t.Name != ""
	}
	return false
}

// ---- name / chain compilation ----

// emitNameBase pushes the base value a bare name resolves to: the
// `global` keyword always means the global scope map (§4.3), never a
// FIND lookup for a variable literally named "global".
func (c *Compiler) emitNameBase(name string) {
	if name == "global" {
		c.emit(OpGlobal, 0, Nil)
		return
	}
	c.emit(OpFind, 0, c.strVal(name))
}

// compileSelectorChain compiles a NameNode or CallChainNode. forceArity
// applies only to a trailing call/method selector: -1 leaves its
// natural result arity (for list/spread positions), a non-negative
// value truncates/pads it to exactly that many values.
func (c *Compiler) compileSelectorChain(n lang.Node, forceArity int) {
	switch t := n.(type) {
	case *lang.NameNode:
		chain := t.Chain
		if len(chain) == 0 {
			c.emitNameBase(t.Name)
			return
		}
		switch chain[0].Kind {
		case lang.SelCall:
			arity := -1
			if len(chain) == 1 {
				arity = forceArity
			}
			c.emit(OpMark, 0, Nil)
			c.compileArgList(chain[0].Args)
			c.emitNameBase(t.Name)
			c.emit(OpCall, 0, Nil)
			c.emit(OpLimit, arity, Nil)
			c.compileChainRest(chain[1:], forceArity)
		case lang.SelMethod:
			c.emitNameBase(t.Name)
			arity := -1
			if len(chain) == 1 {
				arity = forceArity
			}
			c.compileMethodCallTail(chain[0].Name, chain[0].Args, arity)
			c.compileChainRest(chain[1:], forceArity)
		default:
			c.emitNameBase(t.Name)
			c.compileChainRest(chain, forceArity)
		}
	case *lang.CallChainNode:
		c.compileExpr1(t.Base)
		c.compileChainRest(t.Chain, forceArity)
	}
}

// compileChainRest processes a chain whose base value is already on
// top of the stack.
func (c *Compiler) compileChainRest(chain []lang.Selector, forceArity int) {
	for i, sel := range chain {
		arity := -1
		if i == len(chain)-1 {
			arity = forceArity
		}
		switch sel.Kind {
		case lang.SelIndex:
			c.compileExpr1(sel.Key)
			c.emit(OpGet, 0, Nil)
		case lang.SelField:
			c.emit(OpLit, 0, c.strVal(sel.Name))
			c.emit(OpGet, 0, Nil)
		case lang.SelCall:
			c.compileCallTailShunt(sel.Args, arity)
		case lang.SelMethod:
			c.compileMethodCallTail(sel.Name, sel.Args, arity)
		}
	}
}

// compileCallTailShunt calls a callee that is already the top of the
// stack (the result of a prior GET), reordering it across a freshly
// inserted MARK via SHUNT/SHIFT (§4.3).
func (c *Compiler) compileCallTailShunt(args []lang.Node, forceArity int) {
	c.emit(OpShunt, 0, Nil)
	c.emit(OpMark, 0, Nil)
	c.compileArgList(args)
	c.emit(OpShift, 0, Nil)
	c.emit(OpCall, 0, Nil)
	c.emit(OpLimit, forceArity, Nil)
}

// compileMethodCallTail compiles `recv:name(args)`, passing the
// receiver as argument 0. The receiver is already on top of the
// stack; one copy is used to look the method up by field name, the
// other is shunted aside (together with the looked-up method value)
// so both can be replayed in the right order across a freshly
// inserted MARK (§4.3 "SHUNT/SHIFT … method calls").
func (c *Compiler) compileMethodCallTail(name string, args []lang.Node, forceArity int) {
	c.emit(OpCopy, 0, Nil)
	c.emit(OpLit, 0, c.strVal(name))
	c.emit(OpGet, 0, Nil)
	c.emit(OpShunt, 0, Nil) // park method value
	c.emit(OpShunt, 0, Nil) // park receiver (now on top of the "other" stack)
	c.emit(OpMark, 0, Nil)
	c.emit(OpShift, 0, Nil) // receiver becomes arg 0
	c.compileArgList(args)
	c.emit(OpShift, 0, Nil) // method value becomes the callee
	c.emit(OpCall, 0, Nil)
	c.emit(OpLimit, forceArity, Nil)
}

// compileFunctionLiteral compiles a function literal to a skipped-over
// inline body and pushes its entry point as a TagSubroutine value
// (§4.5, §4.6). The prologue binds the scope path PID records for
// lexical lookup, then ARG-and-ASSIGN for every declared parameter; an
// implicit empty `return` covers a body that falls through without one.
func (c *Compiler) compileFunctionLiteral(fn *lang.FunctionNode) {
	jmp := c.emit(OpJmp, 0, Nil)
	entry := len(c.cells)

	scopePath := append([]int{}, fn.Path...)
	scopePath = append(scopePath, 0)
	c.bc.Functions = append(c.bc.Functions, &CompiledFunction{
		Name: fn.Name, Entry: entry, NumParam: len(fn.Params),
		ScopePath: scopePath, FuncID: fn.ID,
	})

	c.emit(OpPid, fn.ID, Nil)
	for i, p := range fn.Params {
		c.emit(OpArg, i, Nil)
		c.emit(OpAssign, 0, c.strVal(p))
	}
	c.compileStmtList(fn.Body)
	c.emit(OpMark, 0, Nil)
	c.emit(OpReturn, 0, Nil)

	c.patchArg(jmp, len(c.cells))
	c.emit(OpLit, 0, SubroutineVal(entry))
}

// addressOpcodes is the set of opcodes whose Arg (and, for OpLoop,
// whose Lit.I too) is an absolute index into the Cells array rather
// than a count, a FuncID or a parameter slot — exactly the set Link
// must rebase when it concatenates one more module's Cells onto the
// combined array (§5 "one module per Create call, addressed as one
// shared Cells array").
var addressOpcodes = map[Opcode]bool{
	OpJmp: true, OpJfalse: true, OpJtrue: true, OpAnd: true, OpOr: true,
	OpFor: true, OpLoop: true,
}

// Link concatenates the Cells of each module in bcs into one shared
// array, rebasing every absolute address each module's own Compile
// pass emitted relative to its own Cells[0]. It returns the combined
// Bytecode (curBytecode's vm.modules[0]) plus, parallel to bcs, the
// rebased top-level entry instruction index of each module — what
// Run's moduleIndices select between.
func Link(bcs []*Bytecode, name string) (*Bytecode, []int) {
	out := &Bytecode{Name: name}
	mains := make([]int, len(bcs))
	for _, bc := range bcs {
		base := len(out.Cells)
		for _, c := range bc.Cells {
			if addressOpcodes[c.Op] {
				c.Arg += base
			}
			if c.Op == OpLoop {
				c.Lit = IntVal(c.Lit.I + int64(base))
			}
			if c.Op == OpLit && c.Lit.Tag == TagSubroutine {
				c.Lit = SubroutineVal(int(c.Lit.I) + base)
			}
			out.Cells = append(out.Cells, c)
		}
		for _, fn := range bc.Functions {
			nf := *fn
			nf.Entry += base
			out.Functions = append(out.Functions, &nf)
		}
	}
	base := 0
	for i, bc := range bcs {
		mains[i] = base + bc.Main
		base += len(bc.Cells)
	}
	return out, mains
}
