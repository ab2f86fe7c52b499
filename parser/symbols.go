// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package parser

import (
	"sort"

	"github.com/beevik/fparser/vm"
)

// Kind identifies what a symbol name refers to.
type Kind byte

// Symbol kinds.
const (
	KindConstant Kind = iota
	KindUnit
	KindFunction
	KindParserFunction
)

var kindNames = []string{"constant", "unit", "function", "parser function"}

func (k Kind) String() string {
	return kindNames[k]
}

// A Symbol is a named constant, unit or function.
type Symbol struct {
	Kind   Kind
	Value  float64 // constant value or unit scale factor
	Index  int     // function index
	Params int     // function parameter count
}

// Symbols maps identifiers to user-defined symbols.
type Symbols struct {
	m map[string]Symbol
}

// NewSymbols creates an empty symbol table.
func NewSymbols() *Symbols {
	return &Symbols{m: make(map[string]Symbol)}
}

// Clone returns an independent copy of the symbol table.
func (s *Symbols) Clone() *Symbols {
	c := &Symbols{m: make(map[string]Symbol, len(s.m))}
	for k, v := range s.m {
		c.m[k] = v
	}
	return c
}

// Lookup returns the symbol with the given name.
func (s *Symbols) Lookup(name string) (Symbol, bool) {
	sym, ok := s.m[name]
	return sym, ok
}

// Define adds or redefines a symbol. It fails if the name is not a valid
// identifier, names a built-in function, or is already defined as a symbol
// of a different kind.
func (s *Symbols) Define(name string, sym Symbol) bool {
	if !IsValidName(name) {
		return false
	}
	if _, ok := vm.LookupFunction(name); ok {
		return false
	}
	if old, ok := s.m[name]; ok && old.Kind != sym.Kind {
		return false
	}
	s.m[name] = sym
	return true
}

// Remove deletes a symbol. It returns false if no such symbol exists.
func (s *Symbols) Remove(name string) bool {
	if _, ok := s.m[name]; !ok {
		return false
	}
	delete(s.m, name)
	return true
}

// Names returns the names of all symbols in sorted order.
func (s *Symbols) Names() []string {
	names := make([]string, 0, len(s.m))
	for k := range s.m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
