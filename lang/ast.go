package lang

import "github.com/ember-lang/ember/token"

// Node is a parsed AST node. The compiler's emit pass type-switches on
// the concrete Node types below, one of: Multi, Name, Literal, Opcode,
// If, While, For, Function, Return, Operator, Vec, Map, CallChain.
type Node interface {
	Pos() Pos
}

// SelectorKind distinguishes the forms a name or call-chain segment can
// take: a plain call, an index (`[expr]`), a field (`.name`) or a
// method call (`:name(args)`, which passes the receiver as arg 0).
type SelectorKind int

const (
	SelCall SelectorKind = iota
	SelIndex
	SelField
	SelMethod
)

// Selector is one link of a Name or CallChain's trailing chain.
type Selector struct {
	Kind SelectorKind
	Key  Node   // SelIndex
	Name string // SelField, SelMethod
	Args []Node // SelCall, SelMethod
	TPos Pos
}

// MultiNode represents a parenthesis-free comma list of expressions; it
// doubles as an assignment when followed by '=' and a Values list. A
// bare MultiNode with no Values is just an expression-list result.
type MultiNode struct {
	NPos    Pos
	Items   []Node
	Assign  bool
	Values  []Node
}

func (n *MultiNode) Pos() Pos { return n.NPos }

// NameNode is an identifier, optionally followed by a chain of
// index/field/call/method selectors.
type NameNode struct {
	NPos  Pos
	Name  string
	Chain []Selector
}

func (n *NameNode) Pos() Pos { return n.NPos }

// LiteralKind distinguishes the primitive literal forms.
type LiteralKind int

const (
	LitNil LiteralKind = iota
	LitBool
	LitInt
	LitFloat
	LitString
)

// LiteralNode is a compile-time constant: nil, bool, int, float or a
// (possibly interpolated) string.
type LiteralNode struct {
	NPos Pos
	Kind LiteralKind
	Bool bool
	Int  int64
	Flt  float64
	Str  string
	// Interp holds the parsed sub-expressions of a `$name`/`$(expr)`
	// interpolated string literal, interleaved with the literal
	// fragments in Parts; when non-nil Str is ignored and the compiler
	// emits a LIT/CONCAT chain over Parts and Interp instead of a single
	// constant.
	Parts  []string
	Interp []Node
}

func (n *LiteralNode) Pos() Pos { return n.NPos }

// OpcodeKind names the handful of raw opcodes the parser inlines
// directly into the tree rather than modeling as its own node type:
// unary modifiers and the zero-operand loop control statements.
type OpcodeKind int

const (
	OpNeg OpcodeKind = iota
	OpNot
	OpCount
	OpBreak
	OpContinue
	OpUnpack
)

// OpcodeNode wraps a single inlined operation, either unary (Operand
// set) or nullary (break/continue).
type OpcodeNode struct {
	NPos    Pos
	Op      OpcodeKind
	Operand Node
}

func (n *OpcodeNode) Pos() Pos { return n.NPos }

// IfNode is `if cond ... [else ...] end`, itself expression-valued: it
// yields the value of whichever branch ran (nil if neither/no else and
// condition false).
type IfNode struct {
	NPos Pos
	Cond Node
	Then []Node
	Else []Node
}

func (n *IfNode) Pos() Pos { return n.NPos }

// WhileNode is `while cond ... end`.
type WhileNode struct {
	NPos Pos
	Cond Node
	Body []Node
}

func (n *WhileNode) Pos() Pos { return n.NPos }

// ForNode is `for [k,]v in iterable ... end`.
type ForNode struct {
	NPos Pos
	Vars []string
	Iter Node
	Body []Node
}

func (n *ForNode) Pos() Pos { return n.NPos }

// FunctionNode is `function [name](params) ... end`. ID is a
// compile-time unique identifier used to build the scope path (§4.6);
// Path holds this function's own ID as Path[0], followed by the IDs of
// its enclosing functions from innermost to outermost, as assigned by
// the parser.
type FunctionNode struct {
	NPos   Pos
	Name   string
	Params []string
	Body   []Node
	ID     int
	Path   []int
}

func (n *FunctionNode) Pos() Pos { return n.NPos }

// ReturnNode is `return expr, expr, ...` (Values may be empty).
type ReturnNode struct {
	NPos   Pos
	Values []Node
}

func (n *ReturnNode) Pos() Pos { return n.NPos }

// OperatorNode is a binary operator application produced by the
// shunting-yard expression parser.
type OperatorNode struct {
	NPos  Pos
	Tok   token.Token
	Left  Node
	Right Node
}

func (n *OperatorNode) Pos() Pos { return n.NPos }

// VecNode is a `[a, b, c]` vector literal.
type VecNode struct {
	NPos  Pos
	Items []Node
}

func (n *VecNode) Pos() Pos { return n.NPos }

// MapNode is a `{ k = v, ... }` map literal.
type MapNode struct {
	NPos Pos
	Keys []Node
	Vals []Node
}

func (n *MapNode) Pos() Pos { return n.NPos }

// CallChainNode applies a chain of selectors to an arbitrary base
// expression that is not a bare identifier (a literal, a vector/map
// constructor, or a parenthesized expression).
type CallChainNode struct {
	NPos  Pos
	Base  Node
	Chain []Selector
}

func (n *CallChainNode) Pos() Pos { return n.NPos }
