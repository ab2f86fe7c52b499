// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package optimize

import (
	_ "embed"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/beevik/fparser/vm"
)

//go:embed grammar.txt
var grammarText string

// A Policy determines how the parameters of a pattern are matched against
// the parameters of a node.
type Policy byte

// Parameter matching policies.
const (
	PositionalParams Policy = iota // [ ] exact count, in order
	SelectedParams                 // { } a subset, in any order
	AnyParams                      // < > all parameters, in any order
)

// A Constraint restricts the subtrees a placeholder may capture.
type Constraint uint16

// Placeholder constraints.
const (
	NonNegative Constraint = 1 << iota // P
	Negative                           // N
	Integer                            // I
	Even                               // E
	Odd                                // O
	One                                // 1
	NotOne                             // ~
	Logical                            // L
	Safe                               // S
)

var constraintFlags = map[byte]Constraint{
	'P': NonNegative,
	'N': Negative,
	'I': Integer,
	'E': Even,
	'O': Odd,
	'1': One,
	'~': NotOne,
	'L': Logical,
	'S': Safe,
}

// ElemKind identifies the variant of a pattern or template element.
type ElemKind byte

// Element kinds.
const (
	ElemConst  ElemKind = iota // numeric constant
	ElemHolder                 // named placeholder capturing any subtree
	ElemImmed                  // named placeholder capturing an immediate
	ElemRest                   // remaining parameters of an unordered list
	ElemTree                   // nested operation
)

// An Elem is one element of a match pattern or a replacement template.
type Elem struct {
	Kind   ElemKind
	Value  float64    // ElemConst
	Name   string     // ElemHolder, ElemImmed, ElemRest
	Flags  Constraint // ElemHolder, ElemImmed
	Op     vm.Opcode  // ElemTree
	Policy Policy     // ElemTree
	Params []*Elem    // ElemTree
}

// RuleKind determines how a matched rule rewrites its subtree.
type RuleKind byte

// Rule kinds.
const (
	ProduceNewTree RuleKind = iota // ->
	ReplaceParams                  // :
)

// A Rule is a single rewrite rule of a grammar.
type Rule struct {
	Match   *Elem    // root pattern; always an ElemTree
	Kind    RuleKind // rewrite kind
	Replace []*Elem  // one template for ProduceNewTree; parameters for ReplaceParams
	Line    int      // source line, for diagnostics
	Text    string
}

// A Grammar is a named set of rules applied together in one optimizer pass.
type Grammar struct {
	Name  string
	Rules []*Rule
	id    int32
	byOp  map[vm.Opcode][]*Rule
}

// RulesFor returns the rules whose root pattern matches the opcode, in
// grammar order.
func (g *Grammar) RulesFor(op vm.Opcode) []*Rule {
	return g.byOp[op]
}

var grammarOps = map[string]vm.Opcode{
	"Abs": vm.OpAbs, "Acos": vm.OpAcos, "Acosh": vm.OpAcosh, "Asin": vm.OpAsin,
	"Asinh": vm.OpAsinh, "Atan": vm.OpAtan, "Atan2": vm.OpAtan2, "Atanh": vm.OpAtanh,
	"Cbrt": vm.OpCbrt, "Ceil": vm.OpCeil, "Cos": vm.OpCos, "Cosh": vm.OpCosh,
	"Cot": vm.OpCot, "Csc": vm.OpCsc, "Exp": vm.OpExp, "Exp2": vm.OpExp2,
	"Floor": vm.OpFloor, "Hypot": vm.OpHypot, "If": vm.OpIf, "Int": vm.OpInt,
	"Log": vm.OpLog, "Log10": vm.OpLog10, "Log2": vm.OpLog2, "Max": vm.OpMax,
	"Min": vm.OpMin, "Pow": vm.OpPow, "Sec": vm.OpSec, "Sin": vm.OpSin,
	"Sinh": vm.OpSinh, "Tan": vm.OpTan, "Tanh": vm.OpTanh, "Trunc": vm.OpTrunc,
	"Add": vm.OpAdd, "Mul": vm.OpMul, "Mod": vm.OpMod,
	"Equal": vm.OpEqual, "NEqual": vm.OpNEqual, "Less": vm.OpLess, "LessOrEq": vm.OpLessOrEq,
	"Not": vm.OpNot, "NotNot": vm.OpNotNot, "And": vm.OpAnd, "Or": vm.OpOr,
	"Log2by": vm.OpLog2by, "AbsNot": vm.OpAbsNot, "AbsNotNot": vm.OpAbsNotNot,
	"AbsAnd": vm.OpAbsAnd, "AbsOr": vm.OpAbsOr, "AbsIf": vm.OpAbsIf,
}

var namedConstants = map[string]float64{
	"e":  math.E,
	"pi": math.Pi,
}

// LoadGrammars parses grammar source text. Every malformed rule is
// reported in the returned error.
func LoadGrammars(src string) ([]*Grammar, error) {
	var grammars []*Grammar
	var cur *Grammar
	var errs error

	for i, line := range strings.Split(src, "\n") {
		lineNum := i + 1
		line = strings.TrimSpace(line)
		if line == "" || line[0] == '#' {
			continue
		}

		if line[0] == '[' {
			if !strings.HasSuffix(line, "]") {
				errs = multierr.Append(errs, errors.Errorf("line %d: malformed section header", lineNum))
				continue
			}
			cur = &Grammar{
				Name: line[1 : len(line)-1],
				id:   int32(len(grammars) + 1),
				byOp: make(map[vm.Opcode][]*Rule),
			}
			grammars = append(grammars, cur)
			continue
		}

		if cur == nil {
			errs = multierr.Append(errs, errors.Errorf("line %d: rule outside of a section", lineNum))
			continue
		}

		r, err := parseRule(line)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "line %d", lineNum))
			continue
		}
		r.Line = lineNum
		cur.Rules = append(cur.Rules, r)
		cur.byOp[r.Match.Op] = append(cur.byOp[r.Match.Op], r)
	}

	if errs != nil {
		return nil, errs
	}
	return grammars, nil
}

func mustLoadGrammars(src string) map[string]*Grammar {
	list, err := LoadGrammars(src)
	if err != nil {
		panic(errors.Wrap(err, "optimize: invalid built-in grammar"))
	}
	m := make(map[string]*Grammar, len(list))
	for _, g := range list {
		m[g.Name] = g
	}
	return m
}

var builtinGrammars = mustLoadGrammars(grammarText)

//
// rule parsing
//

type ruleParser struct {
	toks []string
	pos  int
}

func tokenizeRule(line string) []string {
	r := strings.NewReplacer(
		"(", " ( ", ")", " ) ",
		"[", " [ ", "]", " ] ",
		"{", " { ", "}", " } ",
		"<", " < ", ">", " > ",
	)
	return strings.Fields(r.Replace(line))
}

func parseRule(line string) (*Rule, error) {
	// Protect the "->" separator from the '>' replacement.
	toks := tokenizeRule(strings.ReplaceAll(line, "->", " \x00 "))
	for i, t := range toks {
		if t == "\x00" {
			toks[i] = "->"
		}
	}

	p := &ruleParser{toks: toks}
	match, err := p.parseElem(false)
	if err != nil {
		return nil, err
	}
	if match.Kind != ElemTree {
		return nil, errors.New("rule must match an operation")
	}

	r := &Rule{Match: match, Text: line}
	switch p.peek() {
	case "->":
		p.pos++
		r.Kind = ProduceNewTree
		t, err := p.parseElem(true)
		if err != nil {
			return nil, err
		}
		r.Replace = []*Elem{t}

	case ":":
		p.pos++
		r.Kind = ReplaceParams
		if p.next() != "[" {
			return nil, errors.New("expected '[' after ':'")
		}
		params, err := p.parseList("]", true)
		if err != nil {
			return nil, err
		}
		r.Replace = params

	default:
		return nil, errors.Errorf("expected '->' or ':', found '%s'", p.peek())
	}

	if p.pos != len(p.toks) {
		return nil, errors.Errorf("unexpected '%s' after rule", p.peek())
	}
	if err := validateRule(r); err != nil {
		return nil, err
	}

	sortPattern(r.Match)
	return r, nil
}

func (p *ruleParser) peek() string {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return ""
}

func (p *ruleParser) next() string {
	t := p.peek()
	if t != "" {
		p.pos++
	}
	return t
}

func (p *ruleParser) parseElem(template bool) (*Elem, error) {
	tok := p.next()
	switch {
	case tok == "":
		return nil, errors.New("unexpected end of rule")

	case tok == "(":
		name := p.next()
		op, ok := grammarOps[name]
		if !ok {
			return nil, errors.Errorf("unknown operation '%s'", name)
		}
		e := &Elem{Kind: ElemTree, Op: op}
		var closing string
		switch p.next() {
		case "[":
			e.Policy, closing = PositionalParams, "]"
		case "{":
			e.Policy, closing = SelectedParams, "}"
		case "<":
			e.Policy, closing = AnyParams, ">"
		default:
			return nil, errors.Errorf("expected parameter list after '%s'", name)
		}
		if template && e.Policy != PositionalParams {
			return nil, errors.New("templates must use positional parameter lists")
		}
		params, err := p.parseList(closing, template)
		if err != nil {
			return nil, err
		}
		e.Params = params
		if p.next() != ")" {
			return nil, errors.Errorf("expected ')' after '%s' parameters", name)
		}
		return e, nil

	case strings.HasPrefix(tok, "$"):
		v, ok := namedConstants[tok[1:]]
		if !ok {
			return nil, errors.Errorf("unknown constant '%s'", tok)
		}
		return &Elem{Kind: ElemConst, Value: v}, nil

	case strings.HasPrefix(tok, "..."):
		if len(tok) == 3 {
			return nil, errors.New("unnamed rest holder")
		}
		return &Elem{Kind: ElemRest, Name: tok[3:]}, nil

	case tok[0] == '%':
		name, flags, err := parseHolder(tok[1:])
		if err != nil {
			return nil, err
		}
		return &Elem{Kind: ElemImmed, Name: name, Flags: flags}, nil

	case tok[0] == '-' || tok[0] == '.' || (tok[0] >= '0' && tok[0] <= '9'):
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, errors.Errorf("invalid number '%s'", tok)
		}
		return &Elem{Kind: ElemConst, Value: v}, nil

	case tok[0] >= 'a' && tok[0] <= 'z':
		name, flags, err := parseHolder(tok)
		if err != nil {
			return nil, err
		}
		return &Elem{Kind: ElemHolder, Name: name, Flags: flags}, nil
	}
	return nil, errors.Errorf("unexpected '%s'", tok)
}

func (p *ruleParser) parseList(closing string, template bool) ([]*Elem, error) {
	var list []*Elem
	for p.peek() != closing {
		e, err := p.parseElem(template)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	p.pos++
	return list, nil
}

func parseHolder(tok string) (name string, flags Constraint, err error) {
	name = tok
	if i := strings.IndexByte(tok, '@'); i >= 0 {
		name = tok[:i]
		for j := i + 1; j < len(tok); j++ {
			f, ok := constraintFlags[tok[j]]
			if !ok {
				return "", 0, errors.Errorf("unknown constraint '%c'", tok[j])
			}
			flags |= f
		}
	}
	if name == "" {
		return "", 0, errors.New("unnamed placeholder")
	}
	return name, flags, nil
}

// validateRule checks that the template only refers to names captured by
// the pattern and that rest holders appear only in unordered lists.
func validateRule(r *Rule) error {
	bound := make(map[string]ElemKind)
	var errs error

	var visitMatch func(e *Elem, policy Policy)
	visitMatch = func(e *Elem, policy Policy) {
		switch e.Kind {
		case ElemHolder, ElemImmed:
			if k, ok := bound[e.Name]; ok && k != e.Kind {
				errs = multierr.Append(errs, errors.Errorf("'%s' used as two kinds of placeholder", e.Name))
			}
			bound[e.Name] = e.Kind
		case ElemRest:
			if policy == PositionalParams {
				errs = multierr.Append(errs, errors.New("rest holder in a positional list"))
			}
			if _, ok := bound[e.Name]; ok {
				errs = multierr.Append(errs, errors.Errorf("rest holder '%s' used twice", e.Name))
			}
			bound[e.Name] = ElemRest
		case ElemTree:
			for _, p := range e.Params {
				visitMatch(p, e.Policy)
			}
		}
	}
	visitMatch(r.Match, PositionalParams)

	var visitTemplate func(e *Elem)
	visitTemplate = func(e *Elem) {
		switch e.Kind {
		case ElemHolder, ElemImmed, ElemRest:
			if k, ok := bound[e.Name]; !ok || k != e.Kind {
				errs = multierr.Append(errs, errors.Errorf("template uses unbound '%s'", e.Name))
			}
		case ElemTree:
			for _, p := range e.Params {
				visitTemplate(p)
			}
		}
	}
	for _, t := range r.Replace {
		visitTemplate(t)
	}
	if r.Kind == ProduceNewTree && r.Replace[0].Kind == ElemRest {
		errs = multierr.Append(errs, errors.New("rest holder cannot replace a tree"))
	}
	return errs
}

// sortPattern orders the parameters of unordered lists so that the most
// specific elements are matched first and rest holders last.
func sortPattern(e *Elem) {
	if e.Kind != ElemTree {
		return
	}
	for _, p := range e.Params {
		sortPattern(p)
	}
	if e.Policy == PositionalParams {
		return
	}
	rank := func(p *Elem) int {
		switch p.Kind {
		case ElemTree:
			return 0
		case ElemConst:
			return 1
		case ElemImmed:
			return 2
		case ElemHolder:
			return 3
		default:
			return 4
		}
	}
	sort.SliceStable(e.Params, func(i, j int) bool {
		return rank(e.Params[i]) < rank(e.Params[j])
	})
}
