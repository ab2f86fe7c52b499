// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fparser

import (
	"github.com/beevik/fparser/parser"
	"github.com/beevik/fparser/vm"
)

// AddConstant defines a named constant usable in subsequently parsed
// expressions. It returns false if the name is invalid or already names
// something other than a constant.
func (p *Parser) AddConstant(name string, value float64) bool {
	if !p.definable(name, parser.KindConstant) {
		return false
	}
	p.copyOnWrite()
	return p.d.syms.Define(name, parser.Symbol{Kind: parser.KindConstant, Value: value})
}

// AddUnit defines a unit. A unit name directly following an element
// multiplies the element by value.
func (p *Parser) AddUnit(name string, value float64) bool {
	if !p.definable(name, parser.KindUnit) {
		return false
	}
	p.copyOnWrite()
	return p.d.syms.Define(name, parser.Symbol{Kind: parser.KindUnit, Value: value})
}

// AddFunction makes the Go function fn callable from expressions under the
// given name, taking the given number of parameters.
func (p *Parser) AddFunction(name string, fn Func, params int) bool {
	if fn == nil || params < 0 || !p.definable(name, parser.KindFunction) {
		return false
	}
	p.copyOnWrite()

	d := p.d
	def := vm.FuncDef{Fn: fn, Params: params}
	if sym, ok := d.syms.Lookup(name); ok {
		d.funcs[sym.Index] = def
		sym.Params = params
		return d.syms.Define(name, sym)
	}
	d.funcs = append(d.funcs, def)
	d.funcNames = append(d.funcNames, name)
	return d.syms.Define(name, parser.Symbol{
		Kind:   parser.KindFunction,
		Index:  len(d.funcs) - 1,
		Params: params,
	})
}

// AddParserFunction makes the function compiled by sub callable from
// expressions under the given name. Its parameters are the variables of
// sub. It fails if sub holds no successfully parsed function, or if sub
// calls p directly or indirectly.
func (p *Parser) AddParserFunction(name string, sub *Parser) bool {
	if sub == nil || sub.parseErr != nil || sub.calls(p) {
		return false
	}
	if !p.definable(name, parser.KindParserFunction) {
		return false
	}
	p.copyOnWrite()

	d := p.d
	def := vm.SubDef{Eval: sub, Params: len(sub.d.vars)}
	if sym, ok := d.syms.Lookup(name); ok {
		d.subs[sym.Index] = def
		sym.Params = def.Params
		return d.syms.Define(name, sym)
	}
	d.subs = append(d.subs, def)
	d.subNames = append(d.subNames, name)
	return d.syms.Define(name, parser.Symbol{
		Kind:   parser.KindParserFunction,
		Index:  len(d.subs) - 1,
		Params: def.Params,
	})
}

// RemoveIdentifier removes a constant, unit or function. Variables of the
// current function cannot be removed. Expressions already parsed are not
// affected.
func (p *Parser) RemoveIdentifier(name string) bool {
	if p.isVariable(name) {
		return false
	}
	if _, ok := p.d.syms.Lookup(name); !ok {
		return false
	}
	p.copyOnWrite()
	return p.d.syms.Remove(name)
}

// Identifiers returns the names of all user-defined constants, units and
// functions in sorted order.
func (p *Parser) Identifiers() []string {
	return p.d.syms.Names()
}

// definable reports whether name may be defined as a symbol of kind k.
func (p *Parser) definable(name string, k parser.Kind) bool {
	if !parser.IsValidName(name) || p.isVariable(name) {
		return false
	}
	if _, ok := vm.LookupFunction(name); ok {
		return false
	}
	if sym, ok := p.d.syms.Lookup(name); ok && sym.Kind != k {
		return false
	}
	return true
}

func (p *Parser) isVariable(name string) bool {
	for _, v := range p.d.vars {
		if v == name {
			return true
		}
	}
	return false
}

// calls reports whether evaluating p may evaluate target.
func (p *Parser) calls(target *Parser) bool {
	if p == target || p.d == target.d {
		return true
	}
	for _, s := range p.d.subs {
		if sub, ok := s.Eval.(*Parser); ok && sub.calls(target) {
			return true
		}
	}
	return false
}
