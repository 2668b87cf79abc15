// Package lang implements the lexer and recursive-descent / shunting-yard
// parser that turns ember source text into the typed AST described by
// §4.3 of the specification. The parser is single-pass in the sense
// that it builds the AST directly from the token stream with one
// token of lookahead; there is no separate grammar-generation step,
// grounded on the structure of the teacher's (ozanh/ugo) parser
// package, which is likewise a hand-written recursive-descent parser
// over a token stream.
package lang

import (
	"fmt"
	"strconv"

	"github.com/ember-lang/ember/token"
)

// ParseError reports a syntax error together with its source position.
type ParseError struct {
	File *SourceFile
	Pos  Pos
	Msg  string
}

func (e *ParseError) Error() string {
	if e.File == nil {
		return e.Msg
	}
	line, col := e.File.Position(e.Pos)
	return fmt.Sprintf("%s:%d:%d: %s", e.File.Name, line, col, e.Msg)
}

// Parser consumes a token stream and produces Nodes.
type Parser struct {
	file *SourceFile
	lex  *Lexer
	tok  Token

	funcCounter *int
	funcStack   []int
}

// NewParser creates a Parser over src, named file for error reporting.
func NewParser(file *SourceFile, src string) *Parser {
	p := &Parser{file: file, lex: NewLexer(file, src), funcCounter: new(int)}
	p.advance()
	return p
}

func (p *Parser) advance() error {
	t, err := p.lex.Scan()
	if err != nil {
		return &ParseError{p.file, t.Pos, err.Error()}
	}
	p.tok = t
	return nil
}

func (p *Parser) errf(format string, args ...interface{}) error {
	return &ParseError{p.file, p.tok.Pos, fmt.Sprintf(format, args...)}
}

func (p *Parser) expect(tok token.Token) (Token, error) {
	if p.tok.Tok != tok {
		return Token{}, p.errf("expected %s, found %s", tok, p.tok.Tok)
	}
	t := p.tok
	return t, p.advance()
}

// ParseProgram parses a whole source file into a top-level block.
func (p *Parser) ParseProgram() ([]Node, error) {
	body, err := p.parseBlock(token.EOF)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.EOF); err != nil {
		return nil, err
	}
	return body, nil
}

var blockEnd = map[token.Token]bool{}

func (p *Parser) parseBlock(enders ...token.Token) ([]Node, error) {
	endSet := make(map[token.Token]bool, len(enders))
	for _, e := range enders {
		endSet[e] = true
	}

	var body []Node
	for {
		for p.tok.Tok == token.Semi {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		if endSet[p.tok.Tok] {
			return body, nil
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		body = append(body, stmt)
	}
}

func (p *Parser) parseStatement() (Node, error) {
	switch p.tok.Tok {
	case token.KwBreak:
		pos := p.tok.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &OpcodeNode{NPos: pos, Op: OpBreak}, nil
	case token.KwContinue:
		pos := p.tok.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &OpcodeNode{NPos: pos, Op: OpContinue}, nil
	case token.KwReturn:
		return p.parseReturn()
	default:
		return p.parseExprStatement()
	}
}

func (p *Parser) parseReturn() (Node, error) {
	pos := p.tok.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	n := &ReturnNode{NPos: pos}
	if p.startsExpr() {
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		n.Values = append(n.Values, v)
		for p.tok.Tok == token.Comma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			v, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			n.Values = append(n.Values, v)
		}
	}
	return n, nil
}

// startsExpr reports whether the current token can begin an expression;
// used to decide whether a bare `return` has any values.
func (p *Parser) startsExpr() bool {
	switch p.tok.Tok {
	case token.Semi, token.KwEnd, token.KwElse, token.EOF:
		return false
	}
	return true
}

func (p *Parser) parseExprStatement() (Node, error) {
	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	items := []Node{first}
	for p.tok.Tok == token.Comma {
		if err := p.advance(); err != nil {
			return nil, err
		}
		n, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}

	if p.tok.Tok == token.Assign {
		pos := p.tok.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		vals := []Node{}
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
		for p.tok.Tok == token.Comma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			v, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			vals = append(vals, v)
		}
		return &MultiNode{NPos: pos, Items: items, Assign: true, Values: vals}, nil
	}

	if len(items) == 1 {
		return items[0], nil
	}
	return &MultiNode{NPos: first.Pos(), Items: items}, nil
}

// parseExpr parses a full expression via shunting-yard precedence
// climbing (§4.3).
func (p *Parser) parseExpr() (Node, error) {
	return p.parseBinary(token.PrecLowest + 1)
}

func (p *Parser) parseBinary(minPrec int) (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for token.IsBinaryOp(p.tok.Tok) && token.Precedence(p.tok.Tok) >= minPrec {
		op := p.tok.Tok
		pos := p.tok.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseBinary(token.Precedence(op) + 1)
		if err != nil {
			return nil, err
		}
		left = &OperatorNode{NPos: pos, Tok: op, Left: left, Right: right}
	}
	return left, nil
}

// parseUnary handles the tighter-than-binary unary modifiers `# - !`
// and the prefix `...` unpack operator (§4.3).
func (p *Parser) parseUnary() (Node, error) {
	pos := p.tok.Pos
	switch p.tok.Tok {
	case token.Count:
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &OpcodeNode{NPos: pos, Op: OpCount, Operand: operand}, nil
	case token.Sub:
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &OpcodeNode{NPos: pos, Op: OpNeg, Operand: operand}, nil
	case token.Not:
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &OpcodeNode{NPos: pos, Op: OpNot, Operand: operand}, nil
	case token.Ellipsis:
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &OpcodeNode{NPos: pos, Op: OpUnpack, Operand: operand}, nil
	}
	return p.parsePrimaryChain()
}

func (p *Parser) parsePrimaryChain() (Node, error) {
	switch p.tok.Tok {
	case token.Ident:
		return p.parseNameChain()
	case token.KwGlobal:
		pos := p.tok.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		n := &NameNode{NPos: pos, Name: "global"}
		chain, err := p.parseChain()
		if err != nil {
			return nil, err
		}
		n.Chain = chain
		return n, nil
	case token.Int, token.Float, token.String, token.KwTrue, token.KwFalse, token.KwNil:
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return p.wrapChain(lit)
	case token.LParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RParen); err != nil {
			return nil, err
		}
		return p.wrapChain(inner)
	case token.LBrack:
		vec, err := p.parseVec()
		if err != nil {
			return nil, err
		}
		return p.wrapChain(vec)
	case token.LBrace:
		m, err := p.parseMap()
		if err != nil {
			return nil, err
		}
		return p.wrapChain(m)
	case token.KwIf:
		return p.parseIf()
	case token.KwWhile:
		return p.parseWhile()
	case token.KwFor:
		return p.parseFor()
	case token.KwFunction:
		return p.parseFunction()
	}
	return nil, p.errf("unexpected token %s", p.tok.Tok)
}

// wrapChain attaches any trailing index/field/call/method selectors to
// a non-Name base expression as a CallChainNode.
func (p *Parser) wrapChain(base Node) (Node, error) {
	chain, err := p.parseChain()
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return base, nil
	}
	return &CallChainNode{NPos: base.Pos(), Base: base, Chain: chain}, nil
}

func (p *Parser) parseNameChain() (Node, error) {
	pos := p.tok.Pos
	name := p.tok.Lit
	if err := p.advance(); err != nil {
		return nil, err
	}
	n := &NameNode{NPos: pos, Name: name}
	chain, err := p.parseChain()
	if err != nil {
		return nil, err
	}
	n.Chain = chain
	return n, nil
}

func (p *Parser) parseChain() ([]Selector, error) {
	var chain []Selector
	for {
		switch p.tok.Tok {
		case token.LParen:
			pos := p.tok.Pos
			if err := p.advance(); err != nil {
				return nil, err
			}
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.RParen); err != nil {
				return nil, err
			}
			chain = append(chain, Selector{Kind: SelCall, Args: args, TPos: pos})
		case token.LBrack:
			pos := p.tok.Pos
			if err := p.advance(); err != nil {
				return nil, err
			}
			key, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.RBrack); err != nil {
				return nil, err
			}
			chain = append(chain, Selector{Kind: SelIndex, Key: key, TPos: pos})
		case token.Dot:
			pos := p.tok.Pos
			if err := p.advance(); err != nil {
				return nil, err
			}
			id, err := p.expect(token.Ident)
			if err != nil {
				return nil, err
			}
			chain = append(chain, Selector{Kind: SelField, Name: id.Lit, TPos: pos})
		case token.Colon:
			pos := p.tok.Pos
			if err := p.advance(); err != nil {
				return nil, err
			}
			id, err := p.expect(token.Ident)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.LParen); err != nil {
				return nil, err
			}
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.RParen); err != nil {
				return nil, err
			}
			chain = append(chain, Selector{Kind: SelMethod, Name: id.Lit, Args: args, TPos: pos})
		default:
			return chain, nil
		}
	}
}

func (p *Parser) parseArgs() ([]Node, error) {
	var args []Node
	if p.tok.Tok == token.RParen {
		return args, nil
	}
	a, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	args = append(args, a)
	for p.tok.Tok == token.Comma {
		if err := p.advance(); err != nil {
			return nil, err
		}
		a, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
	}
	return args, nil
}

func (p *Parser) parseLiteral() (Node, error) {
	pos := p.tok.Pos
	switch p.tok.Tok {
	case token.KwNil:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &LiteralNode{NPos: pos, Kind: LitNil}, nil
	case token.KwTrue:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &LiteralNode{NPos: pos, Kind: LitBool, Bool: true}, nil
	case token.KwFalse:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &LiteralNode{NPos: pos, Kind: LitBool, Bool: false}, nil
	case token.Int:
		lit := p.tok.Lit
		if err := p.advance(); err != nil {
			return nil, err
		}
		v, err := strconv.ParseInt(lit, 0, 64)
		if err != nil {
			return nil, &ParseError{p.file, pos, err.Error()}
		}
		return &LiteralNode{NPos: pos, Kind: LitInt, Int: v}, nil
	case token.Float:
		lit := p.tok.Lit
		if err := p.advance(); err != nil {
			return nil, err
		}
		v, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return nil, &ParseError{p.file, pos, err.Error()}
		}
		return &LiteralNode{NPos: pos, Kind: LitFloat, Flt: v}, nil
	case token.String:
		lit := p.tok.Lit
		if err := p.advance(); err != nil {
			return nil, err
		}
		return p.parseInterpolatedString(pos, lit)
	}
	return nil, p.errf("expected literal, found %s", p.tok.Tok)
}

// parseInterpolatedString splits a scanned string literal on `$name`
// and `$(expr)` markers, parsing each marker's expression with a fresh
// sub-parser (§4.3 "String interpolation").
func (p *Parser) parseInterpolatedString(pos Pos, s string) (Node, error) {
	var parts []string
	var exprs []Node
	var cur []byte

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if c != '$' || i+1 >= len(runes) {
			cur = append(cur, []byte(string(c))...)
			continue
		}
		next := runes[i+1]
		if isLetter(next) {
			j := i + 1
			for j < len(runes) && (isLetter(runes[j]) || isDigit(runes[j])) {
				j++
			}
			name := string(runes[i+1 : j])
			parts = append(parts, string(cur))
			cur = nil
			exprs = append(exprs, &NameNode{NPos: pos, Name: name})
			i = j - 1
			continue
		}
		if next == '(' {
			depth := 1
			j := i + 2
			for j < len(runes) && depth > 0 {
				if runes[j] == '(' {
					depth++
				} else if runes[j] == ')' {
					depth--
				}
				j++
			}
			sub := string(runes[i+2 : j-1])
			n, err := ParseExprString(sub)
			if err != nil {
				return nil, &ParseError{p.file, pos, err.Error()}
			}
			parts = append(parts, string(cur))
			cur = nil
			exprs = append(exprs, n)
			i = j - 1
			continue
		}
		cur = append(cur, []byte(string(c))...)
	}
	parts = append(parts, string(cur))

	if len(exprs) == 0 {
		return &LiteralNode{NPos: pos, Kind: LitString, Str: s}, nil
	}
	return &LiteralNode{NPos: pos, Kind: LitString, Parts: parts, Interp: exprs}, nil
}

// ParseExprString parses a single standalone expression, used to
// re-parse the `$(expr)` sub-expressions found inside interpolated
// string literals.
func ParseExprString(src string) (Node, error) {
	f := NewSourceFile("<interp>", NoPos, src)
	p := NewParser(f, src)
	n, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.tok.Tok != token.EOF {
		return nil, p.errf("unexpected trailing token %s in interpolation", p.tok.Tok)
	}
	return n, nil
}

func (p *Parser) parseVec() (Node, error) {
	pos := p.tok.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	n := &VecNode{NPos: pos}
	for p.tok.Tok != token.RBrack {
		item, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		n.Items = append(n.Items, item)
		if p.tok.Tok == token.Comma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if _, err := p.expect(token.RBrack); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *Parser) parseMap() (Node, error) {
	pos := p.tok.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	n := &MapNode{NPos: pos}
	for p.tok.Tok != token.RBrace {
		var key Node
		switch p.tok.Tok {
		case token.Ident:
			key = &LiteralNode{NPos: p.tok.Pos, Kind: LitString, Str: p.tok.Lit}
			if err := p.advance(); err != nil {
				return nil, err
			}
		case token.String:
			lit, err := p.parseLiteral()
			if err != nil {
				return nil, err
			}
			key = lit
		default:
			return nil, p.errf("expected map key, found %s", p.tok.Tok)
		}
		if _, err := p.expect(token.Assign); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		n.Keys = append(n.Keys, key)
		n.Vals = append(n.Vals, val)
		if p.tok.Tok == token.Comma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if _, err := p.expect(token.RBrace); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *Parser) parseIf() (Node, error) {
	pos := p.tok.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	then, err := p.parseBlock(token.KwElse, token.KwEnd)
	if err != nil {
		return nil, err
	}
	var els []Node
	if p.tok.Tok == token.KwElse {
		if err := p.advance(); err != nil {
			return nil, err
		}
		els, err = p.parseBlock(token.KwEnd)
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(token.KwEnd); err != nil {
		return nil, err
	}
	return &IfNode{NPos: pos, Cond: cond, Then: then, Else: els}, nil
}

func (p *Parser) parseWhile() (Node, error) {
	pos := p.tok.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock(token.KwEnd)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.KwEnd); err != nil {
		return nil, err
	}
	return &WhileNode{NPos: pos, Cond: cond, Body: body}, nil
}

func (p *Parser) parseFor() (Node, error) {
	pos := p.tok.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	id, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	vars := []string{id.Lit}
	if p.tok.Tok == token.Comma {
		if err := p.advance(); err != nil {
			return nil, err
		}
		id2, err := p.expect(token.Ident)
		if err != nil {
			return nil, err
		}
		vars = append(vars, id2.Lit)
	}
	if _, err := p.expect(token.KwIn); err != nil {
		return nil, err
	}
	iter, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock(token.KwEnd)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.KwEnd); err != nil {
		return nil, err
	}
	return &ForNode{NPos: pos, Vars: vars, Iter: iter, Body: body}, nil
}

func (p *Parser) parseFunction() (Node, error) {
	pos := p.tok.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	name := ""
	if p.tok.Tok == token.Ident {
		name = p.tok.Lit
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	var params []string
	for p.tok.Tok != token.RParen {
		id, err := p.expect(token.Ident)
		if err != nil {
			return nil, err
		}
		params = append(params, id.Lit)
		if p.tok.Tok == token.Comma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}

	*p.funcCounter++
	id := *p.funcCounter
	path := make([]int, 1, len(p.funcStack)+1)
	path[0] = id
	for i := len(p.funcStack) - 1; i >= 0; i-- {
		path = append(path, p.funcStack[i])
	}
	p.funcStack = append(p.funcStack, id)

	body, err := p.parseBlock(token.KwEnd)

	p.funcStack = p.funcStack[:len(p.funcStack)-1]
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.KwEnd); err != nil {
		return nil, err
	}
	return &FunctionNode{NPos: pos, Name: name, Params: params, Body: body, ID: id, Path: path}, nil
}
