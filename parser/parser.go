// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package parser converts expression strings into expression trees.
//
// Operator precedence, from lowest to highest:
//
//	|                      logical or
//	&                      logical and
//	= != < <= > >=         comparison
//	+ -                    addition, subtraction
//	* / %                  multiplication, division, modulo
//	- !                    unary minus, logical not
//	^                      power (right associative)
//
// Elements are numeric literals, variables, constants, function calls and
// parenthesized expressions. A unit name directly following an element
// multiplies it by the unit's scale factor.
package parser

import (
	"math"
	"strings"

	"github.com/beevik/fparser/tree"
	"github.com/beevik/fparser/vm"
)

// Config holds settings that affect how an expression is parsed.
type Config struct {
	Degrees   bool // trigonometric functions use degrees
	Delimiter byte // parsing stops successfully at this character if nonzero
}

// Result holds the output of a successful parse.
type Result struct {
	Root *tree.Node // expression tree
	Vars []string   // variable names, in slot order
	End  int        // offset of the delimiter that ended parsing, or -1
}

// Parse parses the expression expr. The variables are given as a
// comma-separated list of names in vars. Any error returned is an *Error.
func Parse(expr, vars string, syms *Symbols, cfg Config) (*Result, error) {
	names, ok := ParseVariables(vars)
	if !ok {
		return nil, errorAt(InvalidVars, len(expr))
	}
	return parseWithVars(expr, names, syms, cfg)
}

// ParseDeduce parses the expression expr, treating every unknown identifier
// as an input variable. Variables are assigned slots in order of first use.
func ParseDeduce(expr string, syms *Symbols, cfg Config) (*Result, error) {
	var names []string
	lastOffset := -1
	for {
		r, err := parseWithVars(expr, names, syms, cfg)
		if err == nil {
			return r, nil
		}

		// Retry with the identifier at the error location added to the
		// variable list.
		perr := err.(*Error)
		if perr.Type != UnknownIdentifier || perr.Offset == lastOffset {
			return nil, err
		}
		n := tstring(expr[perr.Offset:]).scanIdentifier()
		if n == 0 {
			return nil, err
		}
		name := expr[perr.Offset : perr.Offset+n]
		if _, ok := vm.LookupFunction(name); ok {
			return nil, err
		}
		if _, ok := syms.Lookup(name); ok {
			return nil, err
		}
		names = append(names, name)
		lastOffset = perr.Offset
	}
}

// ParseVariables splits a comma-separated list of variable names. It
// returns false if any name is malformed, duplicated or the name of a
// built-in function.
func ParseVariables(vars string) ([]string, bool) {
	t := tstring(vars)
	if t.consume(t.scanWhitespace()) == "" {
		return nil, true
	}

	var names []string
	seen := make(map[string]bool)
	for _, field := range strings.Split(vars, ",") {
		f := tstring(field)
		f = f.consume(f.scanWhitespace())
		n := f.scanIdentifier()
		name := string(f[:n])
		if n == 0 || f.consume(n).scanWhitespace() != len(f)-n {
			return nil, false
		}
		if _, ok := vm.LookupFunction(name); ok || seen[name] {
			return nil, false
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, true
}

func parseWithVars(expr string, names []string, syms *Symbols, cfg Config) (*Result, error) {
	vars := make(map[string]int, len(names))
	for i, n := range names {
		if _, ok := syms.Lookup(n); ok {
			return nil, errorAt(InvalidVars, len(expr))
		}
		vars[n] = i
	}

	p := &parser{
		lex:  lexer{expr: expr},
		syms: syms,
		vars: vars,
		cfg:  cfg,
	}
	p.advance()

	root, err := p.parseExpression()
	if err != nil {
		return nil, err
	}

	r := &Result{Root: root, Vars: names, End: -1}
	if p.tok.Type != tokenEnd {
		if cfg.Delimiter == 0 || expr[p.tok.Pos] != cfg.Delimiter {
			return nil, errorAt(ExpectOperator, p.tok.Pos)
		}
		r.End = p.tok.Pos
	}
	return r, nil
}

//
// parser
//

type parser struct {
	lex  lexer
	tok  token
	syms *Symbols
	vars map[string]int
	cfg  Config
}

func (p *parser) advance() {
	p.tok = p.lex.next()
}

func (p *parser) parseExpression() (*tree.Node, error) {
	n, err := p.parseAnd()
	for err == nil && p.tok.Type == tokenOr {
		p.advance()
		var rhs *tree.Node
		if rhs, err = p.parseAnd(); err == nil {
			n = tree.New(vm.OpOr, n, rhs)
		}
	}
	return n, err
}

func (p *parser) parseAnd() (*tree.Node, error) {
	n, err := p.parseComparison()
	for err == nil && p.tok.Type == tokenAnd {
		p.advance()
		var rhs *tree.Node
		if rhs, err = p.parseComparison(); err == nil {
			n = tree.New(vm.OpAnd, n, rhs)
		}
	}
	return n, err
}

var comparisonOps = map[tokenType]vm.Opcode{
	tokenEq: vm.OpEqual,
	tokenNe: vm.OpNEqual,
	tokenLt: vm.OpLess,
	tokenLe: vm.OpLessOrEq,
	tokenGt: vm.OpGreater,
	tokenGe: vm.OpGreaterOrEq,
}

func (p *parser) parseComparison() (*tree.Node, error) {
	n, err := p.parseAddition()
	for err == nil {
		op, ok := comparisonOps[p.tok.Type]
		if !ok {
			break
		}
		p.advance()
		var rhs *tree.Node
		if rhs, err = p.parseAddition(); err == nil {
			n = tree.New(op, n, rhs)
		}
	}
	return n, err
}

func (p *parser) parseAddition() (*tree.Node, error) {
	n, err := p.parseMult()
	for err == nil && (p.tok.Type == tokenAdd || p.tok.Type == tokenSub) {
		op := vm.OpAdd
		if p.tok.Type == tokenSub {
			op = vm.OpSub
		}
		p.advance()
		var rhs *tree.Node
		if rhs, err = p.parseMult(); err == nil {
			n = tree.New(op, n, rhs)
		}
	}
	return n, err
}

func (p *parser) parseMult() (*tree.Node, error) {
	n, err := p.parseUnary()
	for err == nil {
		var op vm.Opcode
		switch p.tok.Type {
		case tokenMul:
			op = vm.OpMul
		case tokenDiv:
			op = vm.OpDiv
		case tokenMod:
			op = vm.OpMod
		default:
			return n, nil
		}
		p.advance()
		var rhs *tree.Node
		if rhs, err = p.parseUnary(); err == nil {
			n = tree.New(op, n, rhs)
		}
	}
	return n, err
}

func (p *parser) parseUnary() (*tree.Node, error) {
	switch p.tok.Type {
	case tokenSub:
		p.advance()
		n, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if n.IsImmed() {
			return tree.Immed(-n.Value), nil
		}
		return tree.New(vm.OpNeg, n), nil

	case tokenNot:
		p.advance()
		n, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return tree.New(vm.OpNot, n), nil
	}
	return p.parsePow()
}

func (p *parser) parsePow() (*tree.Node, error) {
	n, err := p.parseElement()
	if err != nil {
		return nil, err
	}
	n = p.parsePossibleUnit(n)

	if p.tok.Type != tokenPow {
		return n, nil
	}
	p.advance()

	exp, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	switch {
	case n.IsImmedValue(math.E):
		return tree.New(vm.OpExp, exp), nil
	case n.IsImmedValue(2):
		return tree.New(vm.OpExp2, exp), nil
	default:
		return tree.New(vm.OpPow, n, exp), nil
	}
}

func (p *parser) parsePossibleUnit(n *tree.Node) *tree.Node {
	if p.tok.Type != tokenIdentifier {
		return n
	}
	sym, ok := p.syms.Lookup(p.tok.Text)
	if !ok || sym.Kind != KindUnit {
		return n
	}
	if _, ok := p.vars[p.tok.Text]; ok {
		return n
	}
	p.advance()
	return tree.New(vm.OpMul, n, tree.Immed(sym.Value))
}

func (p *parser) parseElement() (*tree.Node, error) {
	tok := p.tok
	switch tok.Type {
	case tokenNumber:
		p.advance()
		return tree.Immed(tok.Value), nil

	case tokenIdentifier:
		return p.parseIdentifier()

	case tokenLParen:
		return p.parseParenthesis()

	case tokenRParen:
		return nil, errorAt(MismatchedParenth, tok.Pos)

	case tokenEnd:
		return nil, errorAt(PrematureEOS, tok.Pos)

	default:
		return nil, errorAt(SyntaxError, tok.Pos)
	}
}

func (p *parser) parseIdentifier() (*tree.Node, error) {
	tok := p.tok
	name := tok.Text

	if op, ok := vm.LookupFunction(name); ok {
		p.advance()
		return p.parseFunction(op)
	}

	if idx, ok := p.vars[name]; ok {
		p.advance()
		return tree.Var(idx), nil
	}

	sym, ok := p.syms.Lookup(name)
	if !ok {
		return nil, errorAt(UnknownIdentifier, tok.Pos)
	}

	switch sym.Kind {
	case KindConstant:
		p.advance()
		return tree.Immed(sym.Value), nil

	case KindFunction, KindParserFunction:
		p.advance()
		params, err := p.parseParams(sym.Params)
		if err != nil {
			return nil, err
		}
		op := vm.OpFCall
		if sym.Kind == KindParserFunction {
			op = vm.OpPCall
		}
		return tree.Call(op, sym.Index, params...), nil

	default:
		// Units may only follow an element.
		return nil, errorAt(SyntaxError, tok.Pos)
	}
}

func (p *parser) parseFunction(op vm.Opcode) (*tree.Node, error) {
	if op == vm.OpIf {
		return p.parseIf()
	}

	params, err := p.parseParams(op.FuncParams(len(p.vars)))
	if err != nil {
		return nil, err
	}

	if p.cfg.Degrees && op.AngleIn() {
		params[0] = tree.New(vm.OpRad, params[0])
	}
	n := tree.New(op, params...)
	if p.cfg.Degrees && op.AngleOut() {
		n = tree.New(vm.OpDeg, n)
	}
	return n, nil
}

func (p *parser) parseIf() (*tree.Node, error) {
	if p.tok.Type != tokenLParen {
		return nil, errorAt(ExpectParenthFunc, p.tok.Pos)
	}

	var params [3]*tree.Node
	for i := range params {
		p.advance()
		n, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		params[i] = n

		if i < 2 && p.tok.Type != tokenComma {
			return nil, noCommaError(p.tok)
		}
	}
	if p.tok.Type != tokenRParen {
		return nil, noParenthError(p.tok)
	}
	p.advance()

	return tree.New(vm.OpIf, params[:]...), nil
}

// parseParams parses a parenthesized list of exactly count parameters.
func (p *parser) parseParams(count int) ([]*tree.Node, error) {
	if p.tok.Type != tokenLParen {
		return nil, errorAt(ExpectParenthFunc, p.tok.Pos)
	}
	p.advance()

	params := make([]*tree.Node, 0, count)
	if count > 0 {
		first := p.tok
		n, err := p.parseExpression()
		if err != nil {
			// Report () as a parameter count error.
			if first.Type == tokenRParen {
				return nil, errorAt(IllegalParamsAmount, first.Pos)
			}
			return nil, err
		}
		params = append(params, n)

		for i := 1; i < count; i++ {
			if p.tok.Type != tokenComma {
				return nil, noCommaError(p.tok)
			}
			p.advance()
			if n, err = p.parseExpression(); err != nil {
				return nil, err
			}
			params = append(params, n)
		}
	}

	if p.tok.Type != tokenRParen {
		return nil, noParenthError(p.tok)
	}
	p.advance()
	return params, nil
}

func (p *parser) parseParenthesis() (*tree.Node, error) {
	p.advance()
	if p.tok.Type == tokenRParen {
		return nil, errorAt(EmptyParenth, p.tok.Pos)
	}

	n, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if p.tok.Type != tokenRParen {
		return nil, errorAt(MissingParenth, p.tok.Pos)
	}
	p.advance()
	return n, nil
}
