// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package synth converts expression trees into byte-code programs for the
// stack machine in package vm.
//
// In plain mode the tree is emitted as written. In optimized mode the
// synthesizer also lowers the optimizer's canonical forms back into compact
// opcodes, hoists common subexpressions, pairs sin and cos of the same
// argument, and expands integer powers into multiplication chains.
package synth

import (
	"math"
	"sort"

	"github.com/beevik/fparser/tree"
	"github.com/beevik/fparser/vm"
)

// Options controls synthesis.
type Options struct {
	Optimized bool
}

// A synth holds the state of a single synthesis.
type synth struct {
	opts   Options
	code   []uint32
	immed  []float64
	immIdx map[uint64]int
	sp     int
	maxSP  int

	// optimized mode
	entries map[tree.Hash]*entry
	order   []*entry
	slots   map[tree.Hash]int
	chains  map[int64][]vm.Opcode
	hoisted int
}

// Synthesize converts the tree rooted at root into a program. The
// caller fills in the program's variable count and function tables.
func Synthesize(root *tree.Node, opts Options) *vm.Program {
	s := &synth{
		opts:   opts,
		immIdx: make(map[uint64]int),
	}

	if opts.Optimized {
		s.entries = make(map[tree.Hash]*entry)
		s.slots = make(map[tree.Hash]int)
		s.chains = make(map[int64][]vm.Opcode)
		s.hoist(root)
	}

	s.emitNode(root)
	if s.hoisted > 0 {
		s.emitOp(vm.OpPopNMov, 0, 0, uint32(s.sp-1))
		s.sp = 1
	}

	return &vm.Program{
		Code:      s.code,
		Immed:     s.immed,
		StackSize: s.maxSP,
	}
}

//
// emission helpers
//

// emitOp appends an instruction and its operands, adjusting the stack
// depth by delta. It returns the instruction's offset.
func (s *synth) emitOp(op vm.Opcode, delta int, operands ...uint32) int {
	ip := len(s.code)
	s.code = append(s.code, uint32(op))
	s.code = append(s.code, operands...)
	s.push(delta)
	return ip
}

func (s *synth) push(delta int) {
	s.sp += delta
	if s.sp > s.maxSP {
		s.maxSP = s.sp
	}
}

func (s *synth) emitImmed(v float64) {
	bits := math.Float64bits(v)
	idx, ok := s.immIdx[bits]
	if !ok {
		idx = len(s.immed)
		s.immed = append(s.immed, v)
		s.immIdx[bits] = idx
	}
	s.emitOp(vm.OpImmed, 1, uint32(idx))
}

// fetch pushes a copy of a stack slot.
func (s *synth) fetch(slot int) {
	if slot == s.sp-1 {
		s.emitOp(vm.OpDup, 1)
	} else {
		s.emitOp(vm.OpFetch, 1, uint32(slot))
	}
}

// emitNode pushes the value of n, fetching it if it was hoisted.
func (s *synth) emitNode(n *tree.Node) {
	if s.opts.Optimized {
		if slot, ok := s.slotOf(n); ok {
			s.fetch(slot)
			return
		}
	}
	s.emitBody(n)
}

func (s *synth) emitBody(n *tree.Node) {
	switch n.Op {
	case vm.OpImmed:
		s.emitImmed(n.Value)

	case vm.OpVar:
		s.emitOp(vm.OpVar, 1, uint32(n.Index))

	case vm.OpIf, vm.OpAbsIf:
		s.emitIf(n)

	case vm.OpFCall, vm.OpPCall:
		for _, p := range n.Params {
			s.emitNode(p)
		}
		s.emitOp(n.Op, 1-len(n.Params), uint32(n.Index))

	case vm.OpAdd:
		if s.opts.Optimized {
			s.emitSum(n)
		} else {
			s.emitChain(n)
		}

	case vm.OpMul:
		if s.opts.Optimized {
			s.emitProduct(n)
		} else {
			s.emitChain(n)
		}

	case vm.OpPow:
		if s.opts.Optimized {
			s.emitPow(n)
		} else {
			s.emitChain(n)
		}

	case vm.OpAnd, vm.OpOr, vm.OpMin, vm.OpMax:
		s.emitChain(n)

	default:
		for _, p := range n.Params {
			s.emitNode(p)
		}
		s.emitOp(n.Op, 1-len(n.Params))
	}
}

// emitChain emits a binary operation over any number of parameters as a
// left-to-right sequence of binary instructions.
func (s *synth) emitChain(n *tree.Node) {
	s.emitNode(n.Params[0])
	for _, p := range n.Params[1:] {
		s.emitNode(p)
		s.emitOp(n.Op, -1)
	}
}

func (s *synth) emitIf(n *tree.Node) {
	s.emitNode(n.Params[0])
	ifIP := s.emitOp(n.Op, -1, 0)

	s.emitNode(n.Params[1])
	jumpIP := s.emitOp(vm.OpJump, 0, 0)

	s.code[ifIP+1] = uint32(len(s.code))
	s.sp--
	s.emitNode(n.Params[2])
	s.code[jumpIP+1] = uint32(len(s.code))
}

//
// canonical form lowering
//

// negated returns y if p has the form y*-1.
func negated(p *tree.Node) (*tree.Node, bool) {
	if p.Op != vm.OpMul || len(p.Params) != 2 {
		return nil, false
	}
	switch {
	case p.Params[1].IsImmedValue(-1):
		return p.Params[0], true
	case p.Params[0].IsImmedValue(-1):
		return p.Params[1], true
	}
	return nil, false
}

// inverted returns y if p has the form y^-1.
func inverted(p *tree.Node) (*tree.Node, bool) {
	if p.Op == vm.OpPow && p.Params[1].IsImmedValue(-1) {
		return p.Params[0], true
	}
	return nil, false
}

// splitSum separates the terms of a sum into added and subtracted ones.
func splitSum(n *tree.Node) (pos, neg []*tree.Node) {
	for _, p := range n.Params {
		if y, ok := negated(p); ok {
			neg = append(neg, y)
		} else {
			pos = append(pos, p)
		}
	}
	return pos, neg
}

// splitProduct separates the factors of a product into multipliers and
// divisors. A -1 factor is reported separately.
func splitProduct(n *tree.Node) (pos, div []*tree.Node, negate bool) {
	for _, p := range n.Params {
		if p.IsImmedValue(-1) && !negate {
			negate = true
		} else if y, ok := inverted(p); ok {
			div = append(div, y)
		} else {
			pos = append(pos, p)
		}
	}
	return pos, div, negate
}

func (s *synth) emitSum(n *tree.Node) {
	pos, neg := splitSum(n)
	if len(pos) == 0 {
		s.emitNode(neg[0])
		s.emitOp(vm.OpNeg, 0)
		neg = neg[1:]
	} else {
		s.emitNode(pos[0])
		for _, p := range pos[1:] {
			s.emitNode(p)
			s.emitOp(vm.OpAdd, -1)
		}
	}
	for _, p := range neg {
		s.emitNode(p)
		s.emitOp(vm.OpSub, -1)
	}
}

func (s *synth) emitProduct(n *tree.Node) {
	pos, div, negate := splitProduct(n)
	switch {
	case len(pos) > 0:
		s.emitNode(pos[0])
		for _, p := range pos[1:] {
			s.emitNode(p)
			s.emitOp(vm.OpMul, -1)
		}
	case len(div) > 0:
		s.emitNode(div[0])
		s.emitOp(vm.OpInv, 0)
		div = div[1:]
	default:
		s.emitImmed(-1)
		return
	}
	for _, p := range div {
		s.emitNode(p)
		s.emitOp(vm.OpDiv, -1)
	}
	if negate {
		s.emitOp(vm.OpNeg, 0)
	}
}

func (s *synth) emitPow(n *tree.Node) {
	base, exp := n.Params[0], n.Params[1]
	switch {
	case base.IsImmedValue(math.E):
		s.emitNode(exp)
		s.emitOp(vm.OpExp, 0)
		return
	case base.IsImmedValue(2):
		s.emitNode(exp)
		s.emitOp(vm.OpExp2, 0)
		return
	}

	if exp.IsImmed() {
		if slot, m, ok := s.cachedPower(base, exp.Value); ok {
			s.fetch(slot)
			s.emitPowi(s.chain(m))
			return
		}
	}

	s.emitNode(base)
	if exp.IsImmed() {
		if ops, ok := s.powi(exp.Value); ok {
			s.emitPowi(ops)
			return
		}
	}
	s.emitNode(exp)
	s.emitOp(vm.OpPow, -1)
}

func (s *synth) emitPowi(ops []vm.Opcode) {
	for _, op := range ops {
		switch op {
		case vm.OpDup:
			s.emitOp(op, 1)
		case vm.OpMul:
			s.emitOp(op, -1)
		default:
			s.emitOp(op, 0)
		}
	}
}

// cachedPower finds the highest power of base already held in a hoisted
// stack slot whose exponent divides y. It returns the slot and the
// remaining exponent.
func (s *synth) cachedPower(base *tree.Node, y float64) (slot int, m int64, ok bool) {
	if !s.opts.Optimized || !vm.IsInteger(y) || y < 2 || y > 1024 {
		return 0, 0, false
	}
	n, best := int64(y), int64(1)
	for _, e := range s.order {
		p := e.node
		if p.Op != vm.OpPow || !p.Params[1].IsImmed() || !p.Params[0].IsIdenticalTo(base) {
			continue
		}
		k := p.Params[1].Value
		if !vm.IsInteger(k) || k <= float64(best) || k >= y || n%int64(k) != 0 {
			continue
		}
		if !powiEligible(n / int64(k)) {
			continue
		}
		if sl, found := s.slotOf(p); found {
			slot, best, ok = sl, int64(k), true
		}
	}
	return slot, n / best, ok
}

// operands returns the subtrees the lowering of n emits, in order.
func operands(n *tree.Node) []*tree.Node {
	switch n.Op {
	case vm.OpAdd:
		pos, neg := splitSum(n)
		return append(pos, neg...)
	case vm.OpMul:
		pos, div, _ := splitProduct(n)
		return append(pos, div...)
	case vm.OpPow:
		base, exp := n.Params[0], n.Params[1]
		switch {
		case base.IsImmedValue(math.E), base.IsImmedValue(2):
			return []*tree.Node{exp}
		case exp.IsImmed():
			return []*tree.Node{base}
		}
	}
	return n.Params
}

//
// integer powers
//

// MaxPowiLength is the maximum number of instructions an integer power
// may expand to before the generic pow instruction is used instead.
const MaxPowiLength = 20

var powiFactors = [128]int64{
	0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 3,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 5, 0, 3, 0, 0, 3, 0,
	0, 0, 0, 0, 0, 0, 0, 3, 0, 0, 0, 0, 0, 5, 0, 0,
	0, 0, 5, 3, 0, 0, 3, 5, 0, 3, 0, 0, 3, 0, 0, 3,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 3, 0, 0, 3, 0,
	0, 9, 0, 0, 0, 5, 0, 3, 0, 0, 5, 7, 0, 0, 0, 5,
	0, 0, 0, 3, 5, 0, 3, 0, 0, 3, 0, 0, 3, 0, 5, 3,
	0, 0, 3, 5, 0, 9, 0, 7, 3, 11, 0, 3, 0, 5, 3, 0,
}

func powiFactor(n int64) int64 {
	if n >= int64(len(powiFactors)) {
		return 0
	}
	return powiFactors[n]
}

func powiEligible(n int64) bool {
	return n >= 1 && (n <= 46 || (n <= 1024 && n&(n-1) == 0))
}

// powi returns the instructions that raise the value on top of the stack
// to the power y, or false if y cannot be expanded within the budget.
// Exponents of the form n/2^k are handled with up to four square roots.
func (s *synth) powi(y float64) ([]vm.Opcode, bool) {
	for k := 0; k <= 4; k++ {
		v := y * float64(int64(1)<<uint(k))
		if !vm.IsInteger(v) || math.Abs(v) > 1024 {
			continue
		}
		n := int64(v)
		abs := n
		if abs < 0 {
			abs = -abs
		}
		if !powiEligible(abs) {
			continue
		}

		var ops []vm.Opcode
		for i := k; i > 0; i-- {
			if i == 1 && n < 0 {
				ops = append(ops, vm.OpRSqrt)
				n = -n
			} else {
				ops = append(ops, vm.OpSqrt)
			}
		}
		if abs%2 == 0 {
			ops = append(ops, vm.OpSqr)
			abs >>= 1
		}
		ops = append(ops, s.chain(abs)...)
		if n < 0 {
			ops = append(ops, vm.OpInv)
		}

		if len(ops) > MaxPowiLength {
			return nil, false
		}
		return ops, true
	}
	return nil, false
}

// chain returns the squaring and multiplication sequence computing x^n
// from x. Odd steps duplicate the running value and defer the matching
// multiplications to the end. Results are memoized per exponent.
func (s *synth) chain(n int64) []vm.Opcode {
	if c, ok := s.chains[n]; ok {
		return c
	}

	var ops []vm.Opcode
	muls := 0
	for m := n; m > 1; {
		if f := powiFactor(m); f != 0 {
			ops = append(ops, s.chain(f)...)
			m /= f
			continue
		}
		if m%2 == 0 {
			ops = append(ops, vm.OpSqr)
			m /= 2
		} else {
			ops = append(ops, vm.OpDup)
			m--
			muls++
		}
	}
	for ; muls > 0; muls-- {
		ops = append(ops, vm.OpMul)
	}

	s.chains[n] = ops
	return ops
}

//
// common subexpressions
//

// An entry tracks the unconditional occurrences of one subtree.
type entry struct {
	node   *tree.Node
	count  int
	pair   *entry // cos entry paired with this sin entry
	paired bool   // emitted by its sin entry
}

func (s *synth) lookup(n *tree.Node) *entry {
	if e, ok := s.entries[n.Hash()]; ok && e.node.IsIdenticalTo(n) {
		return e
	}
	return nil
}

func (s *synth) slotOf(n *tree.Node) (int, bool) {
	slot, ok := s.slots[n.Hash()]
	if !ok {
		return 0, false
	}
	if e := s.lookup(n); e == nil {
		return 0, false
	}
	return slot, true
}

// count records the unconditional occurrences of every subtree. The
// children of a subtree seen before are not counted again, so only the
// outermost repeated subtree is reused.
func (s *synth) count(n *tree.Node, conditional bool) {
	if len(n.Params) == 0 {
		return
	}
	if !conditional {
		e := s.lookup(n)
		if e == nil {
			if _, taken := s.entries[n.Hash()]; taken {
				return
			}
			e = &entry{node: n}
			s.entries[n.Hash()] = e
			s.order = append(s.order, e)
		}
		e.count++
		if e.count > 1 {
			return
		}
	}

	if n.Op == vm.OpIf || n.Op == vm.OpAbsIf {
		s.count(n.Params[0], conditional)
		s.count(n.Params[1], true)
		s.count(n.Params[2], true)
		return
	}
	for _, p := range operands(n) {
		s.count(p, conditional)
	}
}

func hasCall(n *tree.Node) bool {
	found := false
	n.Walk(func(c *tree.Node) bool {
		if c.Op == vm.OpFCall || c.Op == vm.OpPCall {
			found = true
		}
		return !found
	}, nil)
	return found
}

// savings returns the number of instructions saved by computing e once
// and fetching it at every use. Subtrees containing calls are never
// hoisted.
func savings(e *entry) int {
	if e.count < 2 || hasCall(e.node) {
		return 0
	}
	return (e.count-1)*e.node.Size() - e.count
}

// pairSavings returns the number of instructions saved by computing the
// sin and cos entries with a single sincos.
func pairSavings(sin, cos *entry) int {
	if hasCall(sin.node) {
		return 0
	}
	arg := sin.node.Params[0].Size() + 1
	uses := sin.count + cos.count
	return arg*uses - arg - uses
}

// hoist emits the repeated subtrees of root, innermost first, and records
// the stack slots holding their values. Nothing is hoisted unless the
// savings cover the final popnmov.
func (s *synth) hoist(root *tree.Node) {
	s.count(root, false)

	for _, e := range s.order {
		if e.node.Op == vm.OpSin {
			c := s.lookup(tree.New(vm.OpCos, e.node.Params[0]))
			if c != nil && pairSavings(e, c) > 0 {
				e.pair, c.paired = c, true
			}
		}
	}

	var list []*entry
	total := 0
	for _, e := range s.order {
		switch {
		case e.pair != nil:
			list = append(list, e)
			total += pairSavings(e, e.pair)
		case !e.paired && savings(e) > 0:
			list = append(list, e)
			total += savings(e)
		}
	}
	if total <= 1 {
		return
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].node.Depth() < list[j].node.Depth()
	})

	for _, e := range list {
		if e.pair != nil {
			s.emitNode(e.node.Params[0])
			s.emitOp(vm.OpSinCos, 1)
			s.slots[e.node.Hash()] = s.sp - 2
			s.slots[e.pair.node.Hash()] = s.sp - 1
			s.hoisted += 2
			continue
		}
		s.emitBody(e.node)
		s.slots[e.node.Hash()] = s.sp - 1
		s.hoisted++
	}
}
