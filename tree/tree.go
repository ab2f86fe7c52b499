// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tree implements the intermediate representation of a parsed
// expression.
//
// Nodes are immutable once constructed. A node's structural hash and depth
// are computed when it is built, so a subtree may be shared freely between
// parents and between copies of a parsed function. Rewriting a subtree
// produces new nodes along the path to the root.
package tree

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/beevik/fparser/vm"
)

// Hash is a 128-bit structural hash of a subtree.
type Hash struct {
	Hi, Lo uint64
}

// Less orders hashes.
func (h Hash) Less(o Hash) bool {
	if h.Hi != o.Hi {
		return h.Hi < o.Hi
	}
	return h.Lo < o.Lo
}

// A Node is one operation or leaf value of an expression tree.
type Node struct {
	Op     vm.Opcode // operation
	Value  float64   // immediate value, valid for OpImmed
	Index  int       // variable or function index, valid for OpVar, OpFCall, OpPCall
	Params []*Node   // parameters; must not be modified after construction

	hash   Hash
	depth  int
	stable atomic.Int32 // last rewrite pass under which this subtree was stable
}

// New creates a node applying op to params.
func New(op vm.Opcode, params ...*Node) *Node {
	n := &Node{Op: op, Params: params}
	n.rehash()
	return n
}

// Immed creates an immediate value node.
func Immed(v float64) *Node {
	if v == 0 {
		v = 0 // normalize negative zero
	}
	n := &Node{Op: vm.OpImmed, Value: v}
	n.rehash()
	return n
}

// Var creates a node reading the input variable with the given index.
func Var(index int) *Node {
	n := &Node{Op: vm.OpVar, Index: index}
	n.rehash()
	return n
}

// Call creates an external function (OpFCall) or sub-parser (OpPCall) call.
func Call(op vm.Opcode, index int, params ...*Node) *Node {
	n := &Node{Op: op, Index: index, Params: params}
	n.rehash()
	return n
}

// WithParams returns a copy of n with its parameters replaced.
func (n *Node) WithParams(params []*Node) *Node {
	c := &Node{Op: n.Op, Value: n.Value, Index: n.Index, Params: params}
	c.rehash()
	return c
}

// Hash returns the structural hash of the subtree.
func (n *Node) Hash() Hash { return n.hash }

// Depth returns the height of the subtree. Leaves have depth 1.
func (n *Node) Depth() int { return n.depth }

// IsImmed returns true if the node is an immediate value.
func (n *Node) IsImmed() bool { return n.Op == vm.OpImmed }

// IsImmedValue returns true if the node is the immediate value v.
func (n *Node) IsImmedValue(v float64) bool {
	return n.Op == vm.OpImmed && n.Value == v
}

// StableUnder returns the identifier of the last rewrite pass that left
// this subtree unchanged, or zero.
func (n *Node) StableUnder() int32 { return n.stable.Load() }

// MarkStable records that the rewrite pass id left this subtree unchanged.
func (n *Node) MarkStable(id int32) { n.stable.Store(id) }

const (
	mulHi = 0x9e3779b97f4a7c15
	mulLo = 0xc2b2ae3d27d4eb4f
)

func mix(h Hash, v uint64) Hash {
	h.Hi = (h.Hi ^ v) * mulHi
	h.Lo = (h.Lo + v) * mulLo
	h.Lo ^= h.Lo >> 29
	return h
}

func (n *Node) rehash() {
	h := Hash{Hi: uint64(n.Op) << 32, Lo: ^uint64(n.Op)}
	h = mix(h, uint64(len(n.Params)))
	switch n.Op {
	case vm.OpImmed:
		h = mix(h, math.Float64bits(n.Value))
	case vm.OpVar, vm.OpFCall, vm.OpPCall:
		h = mix(h, uint64(n.Index))
	}

	depth := 0
	for _, p := range n.Params {
		h = mix(h, p.hash.Hi)
		h = mix(h, p.hash.Lo)
		if p.depth > depth {
			depth = p.depth
		}
	}
	n.hash = h
	n.depth = depth + 1
}

// IsIdenticalTo returns true if the subtrees n and o are structurally
// identical. Hashes are compared first.
func (n *Node) IsIdenticalTo(o *Node) bool {
	if n == o {
		return true
	}
	if n.hash != o.hash || n.Op != o.Op || len(n.Params) != len(o.Params) {
		return false
	}
	switch n.Op {
	case vm.OpImmed:
		if n.Value != o.Value {
			return false
		}
	case vm.OpVar, vm.OpFCall, vm.OpPCall:
		if n.Index != o.Index {
			return false
		}
	}
	for i := range n.Params {
		if !n.Params[i].IsIdenticalTo(o.Params[i]) {
			return false
		}
	}
	return true
}

// Size returns the number of nodes in the subtree.
func (n *Node) Size() int {
	s := 1
	for _, p := range n.Params {
		s += p.Size()
	}
	return s
}

// Walk calls fn for every node of the subtree in post-order. Walking stops
// below a node if fn returns false for it in pre-order.
func (n *Node) Walk(pre func(*Node) bool, post func(*Node)) {
	if pre != nil && !pre(n) {
		return
	}
	for _, p := range n.Params {
		p.Walk(pre, post)
	}
	if post != nil {
		post(n)
	}
}

// Contains returns true if x occurs within n.
func (n *Node) Contains(x *Node) bool {
	if n.hash == x.hash && n.IsIdenticalTo(x) {
		return true
	}
	for _, p := range n.Params {
		if p.Contains(x) {
			return true
		}
	}
	return false
}

// String returns a compact functional rendering of the subtree, used in
// debug output and tests.
func (n *Node) String() string {
	var b strings.Builder
	n.format(&b)
	return b.String()
}

func (n *Node) format(b *strings.Builder) {
	switch n.Op {
	case vm.OpImmed:
		fmt.Fprintf(b, "%g", n.Value)
		return
	case vm.OpVar:
		fmt.Fprintf(b, "x%d", n.Index)
		return
	case vm.OpFCall, vm.OpPCall:
		fmt.Fprintf(b, "%s%d", n.Op, n.Index)
	default:
		b.WriteString(n.Op.String())
	}
	b.WriteByte('(')
	for i, p := range n.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		p.format(b)
	}
	b.WriteByte(')')
}
