// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fparser parses mathematical expressions at run time, optimizes
// them and evaluates them against vectors of input values.
//
// A Parser holds one compiled function. Parse compiles an expression,
// Optimize rewrites it into a cheaper equivalent form, and Eval computes
// its value for a set of variable values:
//
//	p := fparser.New()
//	if off := p.Parse("sqrt(x*x + y*y)", "x,y", false); off >= 0 {
//		log.Fatalf("%s at offset %d", p.ErrorMsg(), off)
//	}
//	p.Optimize()
//	v := p.Eval([]float64{3, 4}) // 5
package fparser

import (
	"sync/atomic"

	"github.com/apex/log"

	"github.com/beevik/fparser/optimize"
	"github.com/beevik/fparser/parser"
	"github.com/beevik/fparser/synth"
	"github.com/beevik/fparser/tree"
	"github.com/beevik/fparser/vm"
)

// Func is an external function callable from expressions.
type Func = vm.Func

// ParseErrorType categorizes a parse error.
type ParseErrorType = parser.ErrorType

// Parse error types.
const (
	SyntaxError         = parser.SyntaxError
	MismatchedParenth   = parser.MismatchedParenth
	MissingParenth      = parser.MissingParenth
	EmptyParenth        = parser.EmptyParenth
	ExpectOperator      = parser.ExpectOperator
	OutOfMemory         = parser.OutOfMemory
	UnexpectedError     = parser.UnexpectedError
	InvalidVars         = parser.InvalidVars
	IllegalParamsAmount = parser.IllegalParamsAmount
	PrematureEOS        = parser.PrematureEOS
	ExpectParenthFunc   = parser.ExpectParenthFunc
	UnknownIdentifier   = parser.UnknownIdentifier
	NoFunctionParsedYet = parser.NoFunctionParsedYet
	NoError             = parser.NoError
)

// ParseError is a parse error located at a byte offset of the expression.
type ParseError = parser.Error

// Evaluation error codes returned by EvalError.
const (
	EvalOK         = int(vm.ErrNone)
	EvalDivByZero  = int(vm.ErrDivByZero)
	EvalSqrtDomain = int(vm.ErrSqrtDomain)
	EvalLogDomain  = int(vm.ErrLogDomain)
	EvalTrigDomain = int(vm.ErrTrigDomain)
	EvalRecursion  = int(vm.ErrRecursion)
)

// An Option configures a Parser.
type Option func(*options)

type options struct {
	threadSafe        bool
	shortcutLogical   bool
	ignoreSideEffects bool
	logger            log.Interface
}

// WithThreadSafeEval makes Eval allocate a fresh stack on every call, so
// that a single Parser may be evaluated from several goroutines.
func WithThreadSafeEval(on bool) Option {
	return func(o *options) { o.threadSafe = on }
}

// WithShortcutLogical makes the optimizer compile & and | into
// conditional jumps that skip the right operand when possible.
func WithShortcutLogical(on bool) Option {
	return func(o *options) { o.shortcutLogical = on }
}

// WithIgnoreSideEffects lets the optimizer fold if(c,x,x) into x even
// when c could raise an evaluation error.
func WithIgnoreSideEffects(on bool) Option {
	return func(o *options) { o.ignoreSideEffects = on }
}

// WithLogger sets the logger receiving optimizer diagnostics.
func WithLogger(l log.Interface) Option {
	return func(o *options) { o.logger = l }
}

// data is the state shared by copies of a Parser until one of them
// changes it.
type data struct {
	owners    atomic.Int32
	syms      *parser.Symbols
	funcs     []vm.FuncDef
	funcNames []string
	subs      []vm.SubDef
	subNames  []string
	vars      []string
	delimiter byte
	eps       float64
	expr      string
	root      *tree.Node
	prog      *vm.Program
	optimized bool
	stack     []float64
}

func newData() *data {
	d := &data{
		syms: parser.NewSymbols(),
		eps:  vm.DefaultEpsilon,
	}
	d.owners.Store(1)
	return d
}

func (d *data) clone() *data {
	c := &data{
		syms:      d.syms.Clone(),
		funcs:     append([]vm.FuncDef(nil), d.funcs...),
		funcNames: append([]string(nil), d.funcNames...),
		subs:      append([]vm.SubDef(nil), d.subs...),
		subNames:  append([]string(nil), d.subNames...),
		vars:      append([]string(nil), d.vars...),
		delimiter: d.delimiter,
		eps:       d.eps,
		expr:      d.expr,
		root:      d.root,
		prog:      d.prog,
		optimized: d.optimized,
	}
	if d.prog != nil {
		c.stack = make([]float64, d.prog.StackSize)
	}
	c.owners.Store(1)
	return c
}

// A Parser compiles and evaluates a single function.
type Parser struct {
	d        *data
	opts     options
	log      log.Interface
	parseErr *ParseError
	evalErr  atomic.Int32
}

// New creates a parser with no function.
func New(opts ...Option) *Parser {
	p := &Parser{d: newData()}
	for _, o := range opts {
		o(&p.opts)
	}
	p.log = p.opts.logger
	if p.log == nil {
		p.log = log.Log
	}
	p.parseErr = &ParseError{Type: NoFunctionParsedYet, Offset: -1}
	return p
}

// Clone returns a copy of the parser. The copy shares the compiled
// function with the original until either one is modified.
func (p *Parser) Clone() *Parser {
	p.d.owners.Add(1)
	c := &Parser{
		d:        p.d,
		opts:     p.opts,
		log:      p.log,
		parseErr: p.parseErr,
	}
	c.evalErr.Store(p.evalErr.Load())
	return c
}

// ForceDeepCopy stops sharing data with other copies of the parser.
func (p *Parser) ForceDeepCopy() {
	p.copyOnWrite()
}

// copyOnWrite gives the parser its own data if it is shared.
func (p *Parser) copyOnWrite() {
	if p.d.owners.Load() == 1 {
		return
	}
	c := p.d.clone()
	p.d.owners.Add(-1)
	p.d = c
}

// SetDelimiterChar sets a character at which parsing stops successfully.
// Parse then returns the offset of the character. Zero disables it.
func (p *Parser) SetDelimiterChar(c byte) {
	p.copyOnWrite()
	p.d.delimiter = c
}

// SetEpsilon sets the tolerance used by comparison operators.
func (p *Parser) SetEpsilon(eps float64) {
	p.copyOnWrite()
	p.d.eps = eps
}

// Parse compiles the expression expr. The variables it may use are given
// as a comma-separated list of names in vars. If useDegrees is true, the
// trigonometric functions work in degrees.
//
// Parse returns -1 on success, or the offset of the delimiter character
// that ended the expression. On failure it returns the offset of the
// error; the error itself is available from ParseErrorType, ErrorMsg and
// ParseErr. A failed parse leaves the previous function in place, but Eval
// returns 0 until a parse succeeds.
func (p *Parser) Parse(expr, vars string, useDegrees bool) int {
	p.copyOnWrite()
	r, err := parser.Parse(expr, vars, p.d.syms, p.config(useDegrees))
	return p.publish(expr, r, err)
}

// ParseAndDeduceVariables compiles the expression expr, treating every
// unknown identifier as a variable. Variables are numbered in order of
// first use. It returns the same offset as Parse, and the names of the
// variables on success.
func (p *Parser) ParseAndDeduceVariables(expr string, useDegrees bool) (int, []string) {
	p.copyOnWrite()
	r, err := parser.ParseDeduce(expr, p.d.syms, p.config(useDegrees))
	off := p.publish(expr, r, err)
	if err != nil {
		return off, nil
	}
	return off, append([]string(nil), r.Vars...)
}

func (p *Parser) config(useDegrees bool) parser.Config {
	return parser.Config{Degrees: useDegrees, Delimiter: p.d.delimiter}
}

func (p *Parser) publish(expr string, r *parser.Result, err error) int {
	if err != nil {
		p.parseErr = err.(*ParseError)
		return p.parseErr.Offset
	}

	d := p.d
	d.expr = expr
	d.vars = r.Vars
	d.root = r.Root
	d.optimized = false
	p.compile(synth.Options{})
	p.parseErr = nil
	return r.End
}

// compile synthesizes the current tree into the program evaluated by Eval.
func (p *Parser) compile(opts synth.Options) {
	d := p.d
	prog := synth.Synthesize(d.root, opts)
	prog.NumVars = len(d.vars)
	prog.Funcs = append([]vm.FuncDef(nil), d.funcs...)
	prog.Subs = append([]vm.SubDef(nil), d.subs...)
	d.prog = prog
	d.stack = make([]float64, prog.StackSize)
}

// Optimize rewrites the parsed function into a faster equivalent form.
// Calling it more than once has no further effect.
func (p *Parser) Optimize() {
	if p.parseErr != nil || p.d.prog == nil || p.d.optimized {
		return
	}
	p.copyOnWrite()

	o := optimize.New(optimize.Options{
		ShortcutLogical:   p.opts.shortcutLogical,
		IgnoreSideEffects: p.opts.ignoreSideEffects,
		Epsilon:           p.d.eps,
		Logger:            p.log,
	})
	p.d.root = o.Apply(p.d.root)
	p.compile(synth.Options{Optimized: true})
	p.d.optimized = true
}

// Eval evaluates the function for the variable values in vars, given in
// the order the variables were declared. Missing values are taken as 0.
// On an evaluation error it returns 0 and EvalError reports the cause.
func (p *Parser) Eval(vars []float64) float64 {
	d := p.d
	if p.parseErr != nil || d.prog == nil {
		return 0
	}
	if len(vars) < d.prog.NumVars {
		v := make([]float64, d.prog.NumVars)
		copy(v, vars)
		vars = v
	}

	var stack []float64
	if !p.opts.threadSafe {
		stack = d.stack
	}
	v, err := d.prog.Eval(vars, stack, d.eps)
	p.evalErr.Store(int32(err))
	return v
}

// EvalError returns the error code of the most recent call to Eval.
func (p *Parser) EvalError() int {
	return int(p.evalErr.Load())
}

// ParseErrorType returns the type of the most recent parse error, or
// NoError if the last parse succeeded.
func (p *Parser) ParseErrorType() ParseErrorType {
	if p.parseErr == nil {
		return NoError
	}
	return p.parseErr.Type
}

// ErrorMsg returns the message of the most recent parse error, or an empty
// string if the last parse succeeded.
func (p *Parser) ErrorMsg() string {
	return p.ParseErrorType().String()
}

// ParseErr returns the most recent parse error, or nil.
func (p *Parser) ParseErr() error {
	if p.parseErr == nil {
		return nil
	}
	return p.parseErr
}

// Expression returns the source of the current function.
func (p *Parser) Expression() string {
	return p.d.expr
}

// Variables returns the variable names of the current function.
func (p *Parser) Variables() []string {
	return append([]string(nil), p.d.vars...)
}

// Tree returns the expression tree of the current function, or nil.
func (p *Parser) Tree() *tree.Node {
	return p.d.root
}

// Program returns the compiled program of the current function, or nil.
func (p *Parser) Program() *vm.Program {
	return p.d.prog
}
