// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package optimize

import (
	"math"

	"github.com/beevik/fparser/tree"
	"github.com/beevik/fparser/vm"
)

// bindings is a persistent list of placeholder captures. Extending it never
// modifies an existing list, so backtracking simply drops the extension.
type bindings struct {
	name string
	node *tree.Node   // ElemHolder, ElemImmed
	rest []*tree.Node // ElemRest
	next *bindings
}

func (b *bindings) bind(name string, n *tree.Node) *bindings {
	return &bindings{name: name, node: n, next: b}
}

func (b *bindings) bindRest(name string, r []*tree.Node) *bindings {
	return &bindings{name: name, rest: r, next: b}
}

func (b *bindings) lookup(name string) *bindings {
	for ; b != nil; b = b.next {
		if b.name == name {
			return b
		}
	}
	return nil
}

// A match continuation receives the bindings accumulated so far and
// returns true to accept them.
type cont func(b *bindings) bool

type matcher struct {
	r *ranges
}

func constEqual(a, b float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b) <= 1e-14*math.Max(math.Abs(a), math.Abs(b))
}

// match tries the rule against n. On success it returns the bindings and,
// for the root parameter list, the indices of the parameters consumed.
func (m *matcher) match(r *Rule, n *tree.Node) (*bindings, []bool, bool) {
	if n.Op != r.Match.Op {
		return nil, nil, false
	}
	var result *bindings
	var used []bool
	ok := m.matchParams(r.Match, n.Params, nil, func(b *bindings, u []bool) bool {
		result = b
		used = append([]bool(nil), u...)
		return true
	})
	return result, used, ok
}

func (m *matcher) matchElem(e *Elem, n *tree.Node, b *bindings, k cont) bool {
	switch e.Kind {
	case ElemConst:
		return n.IsImmed() && constEqual(n.Value, e.Value) && k(b)

	case ElemImmed:
		if !n.IsImmed() {
			return false
		}
		fallthrough

	case ElemHolder:
		if !m.satisfies(n, e.Flags) {
			return false
		}
		if prev := b.lookup(e.Name); prev != nil {
			return prev.node.IsIdenticalTo(n) && k(b)
		}
		return k(b.bind(e.Name, n))

	case ElemTree:
		if n.Op != e.Op {
			return false
		}
		return m.matchParams(e, n.Params, b, func(b *bindings, _ []bool) bool {
			return k(b)
		})
	}
	return false
}

func (m *matcher) matchParams(e *Elem, params []*tree.Node, b *bindings, k func(*bindings, []bool) bool) bool {
	used := make([]bool, len(params))

	if e.Policy == PositionalParams {
		if len(e.Params) != len(params) {
			return false
		}
		for i := range used {
			used[i] = true
		}
		var step func(i int, b *bindings) bool
		step = func(i int, b *bindings) bool {
			if i == len(params) {
				return k(b, used)
			}
			return m.matchElem(e.Params[i], params[i], b, func(b *bindings) bool {
				return step(i+1, b)
			})
		}
		return step(0, b)
	}

	// Rest holders are sorted to the end of the pattern.
	elems := e.Params
	var rest *Elem
	if n := len(elems); n > 0 && elems[n-1].Kind == ElemRest {
		rest = elems[n-1]
		elems = elems[:n-1]
	}
	if len(elems) > len(params) {
		return false
	}
	if e.Policy == AnyParams && rest == nil && len(elems) != len(params) {
		return false
	}

	var step func(i int, b *bindings) bool
	step = func(i int, b *bindings) bool {
		if i == len(elems) {
			if rest != nil {
				var r []*tree.Node
				for j, p := range params {
					if !used[j] {
						r = append(r, p)
						used[j] = true
						defer func(j int) { used[j] = false }(j)
					}
				}
				return k(b.bindRest(rest.Name, r), used)
			}
			return k(b, used)
		}
		for j, p := range params {
			if used[j] {
				continue
			}
			used[j] = true
			ok := m.matchElem(elems[i], p, b, func(b *bindings) bool {
				return step(i+1, b)
			})
			used[j] = false
			if ok {
				return true
			}
		}
		return false
	}
	return step(0, b)
}

// satisfies checks a placeholder's constraints against a subtree.
func (m *matcher) satisfies(n *tree.Node, c Constraint) bool {
	if c == 0 {
		return true
	}
	if c&NonNegative != 0 && !(m.r.of(n).lo >= 0) {
		return false
	}
	if c&Negative != 0 && !(m.r.of(n).hi < 0) {
		return false
	}
	if c&Integer != 0 && !m.r.isInteger(n) {
		return false
	}
	if c&Even != 0 && !(n.IsImmed() && vm.IsEvenInteger(n.Value)) {
		return false
	}
	if c&Odd != 0 && !(n.IsImmed() && vm.IsOddInteger(n.Value)) {
		return false
	}
	if c&One != 0 && !n.IsImmedValue(1) {
		return false
	}
	if c&NotOne != 0 && n.IsImmedValue(1) {
		return false
	}
	if c&Logical != 0 && !m.r.isLogical(n) {
		return false
	}
	if c&Safe != 0 && m.r.mayFail(n) {
		return false
	}
	return true
}

// instantiate builds the subtrees described by a template element.
// A rest holder expands to zero or more subtrees.
func instantiate(t *Elem, b *bindings) []*tree.Node {
	switch t.Kind {
	case ElemConst:
		return []*tree.Node{tree.Immed(t.Value)}
	case ElemHolder, ElemImmed:
		return []*tree.Node{b.lookup(t.Name).node}
	case ElemRest:
		return b.lookup(t.Name).rest
	default:
		var params []*tree.Node
		for _, p := range t.Params {
			params = append(params, instantiate(p, b)...)
		}
		return []*tree.Node{tree.New(t.Op, params...)}
	}
}

// rewrite applies a matched rule to n.
func rewrite(r *Rule, n *tree.Node, b *bindings, used []bool) *tree.Node {
	if r.Kind == ProduceNewTree {
		return instantiate(r.Replace[0], b)[0]
	}

	params := make([]*tree.Node, 0, len(n.Params))
	for i, p := range n.Params {
		if !used[i] {
			params = append(params, p)
		}
	}
	for _, t := range r.Replace {
		params = append(params, instantiate(t, b)...)
	}
	return n.WithParams(params)
}
