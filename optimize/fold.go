// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package optimize

import (
	"math"
	"sort"

	"github.com/beevik/fparser/tree"
	"github.com/beevik/fparser/vm"
)

// A folder rewrites nodes into canonical form and evaluates whatever can
// be decided from immediate values and value ranges. Its parameters are
// assumed to be folded already. It returns n itself when nothing changes.
type folder struct {
	eps float64
	r   *ranges
}

func (f *folder) fold(n *tree.Node) *tree.Node {
	if c := f.canonicalize(n); c != n {
		return f.fold(c)
	}

	switch n.Op {
	case vm.OpAdd, vm.OpMul, vm.OpAnd, vm.OpOr, vm.OpMin, vm.OpMax:
		return f.foldNary(n)
	case vm.OpEqual, vm.OpNEqual, vm.OpLess, vm.OpLessOrEq:
		return f.foldComparison(n)
	case vm.OpIf, vm.OpAbsIf:
		return f.foldIf(n)
	case vm.OpNot, vm.OpNotNot:
		return f.foldNot(n)
	case vm.OpAbs:
		return f.foldAbs(n)
	case vm.OpFloor, vm.OpCeil, vm.OpInt, vm.OpTrunc:
		if f.r.isInteger(n.Params[0]) {
			return n.Params[0]
		}
	case vm.OpPow:
		return f.foldPow(n)
	case vm.OpEval, vm.OpFCall, vm.OpPCall, vm.OpImmed, vm.OpVar:
		return n
	}
	return f.foldImmed(n)
}

// canonicalize expresses derived operations through the core set of
// additions, multiplications, powers and less-than comparisons.
func (f *folder) canonicalize(n *tree.Node) *tree.Node {
	p := n.Params
	switch n.Op {
	case vm.OpSub:
		return tree.New(vm.OpAdd, p[0], f.fold(tree.New(vm.OpMul, p[1], tree.Immed(-1))))
	case vm.OpNeg:
		return tree.New(vm.OpMul, p[0], tree.Immed(-1))
	case vm.OpDiv:
		return tree.New(vm.OpMul, p[0], f.fold(tree.New(vm.OpPow, p[1], tree.Immed(-1))))
	case vm.OpInv:
		return tree.New(vm.OpPow, p[0], tree.Immed(-1))
	case vm.OpSqrt:
		return tree.New(vm.OpPow, p[0], tree.Immed(0.5))
	case vm.OpRSqrt:
		return tree.New(vm.OpPow, p[0], tree.Immed(-0.5))
	case vm.OpSqr:
		return tree.New(vm.OpPow, p[0], tree.Immed(2))
	case vm.OpExp:
		return tree.New(vm.OpPow, tree.Immed(math.E), p[0])
	case vm.OpExp2:
		return tree.New(vm.OpPow, tree.Immed(2), p[0])
	case vm.OpGreater:
		return tree.New(vm.OpLess, p[1], p[0])
	case vm.OpGreaterOrEq:
		return tree.New(vm.OpLessOrEq, p[1], p[0])
	case vm.OpDeg:
		return tree.New(vm.OpMul, p[0], tree.Immed(180/math.Pi))
	case vm.OpRad:
		return tree.New(vm.OpMul, p[0], tree.Immed(math.Pi/180))
	}
	return n
}

// foldImmed evaluates an operation whose parameters are all immediate.
// Operations that would raise an evaluation error are left in place.
func (f *folder) foldImmed(n *tree.Node) *tree.Node {
	args := make([]float64, len(n.Params))
	for i, p := range n.Params {
		if !p.IsImmed() {
			return n
		}
		args[i] = p.Value
	}
	v, err, ok := vm.Apply(n.Op, args, f.eps)
	if !ok || err != vm.ErrNone || math.IsNaN(v) {
		return n
	}
	return tree.Immed(v)
}

func (f *folder) foldNary(n *tree.Node) *tree.Node {
	var params []*tree.Node
	for _, p := range n.Params {
		if p.Op == n.Op {
			params = append(params, p.Params...)
		} else {
			params = append(params, p)
		}
	}

	// Combine immediates into a single value.
	var acc float64
	var accNode *tree.Node // the only immediate, if there is just one
	hasAcc := false
	kept := params[:0:0]
	for _, p := range params {
		if !p.IsImmed() {
			kept = append(kept, p)
			continue
		}
		if !hasAcc {
			acc, accNode, hasAcc = p.Value, p, true
			continue
		}
		accNode = nil
		switch n.Op {
		case vm.OpAdd:
			acc += p.Value
		case vm.OpMul:
			acc *= p.Value
		case vm.OpAnd:
			acc = b2f(vm.Truth(acc) && vm.Truth(p.Value))
		case vm.OpOr:
			acc = b2f(vm.Truth(acc) || vm.Truth(p.Value))
		case vm.OpMin:
			acc = math.Min(acc, p.Value)
		case vm.OpMax:
			acc = math.Max(acc, p.Value)
		}
	}
	params = kept
	if hasAcc && accNode == nil {
		accNode = tree.Immed(acc)
	}

	if hasAcc {
		switch n.Op {
		case vm.OpAdd:
			if acc != 0 {
				params = append(params, accNode)
			}
		case vm.OpMul:
			if acc == 0 {
				return tree.Immed(0)
			}
			if acc != 1 {
				params = append(params, accNode)
			}
		case vm.OpAnd:
			if !vm.Truth(acc) {
				return tree.Immed(0)
			}
		case vm.OpOr:
			if vm.Truth(acc) {
				return tree.Immed(1)
			}
		default:
			params = append(params, accNode)
		}
	}

	// Drop logical operands whose truth is known from their range.
	if n.Op == vm.OpAnd || n.Op == vm.OpOr {
		kept := params[:0:0]
		for _, p := range params {
			switch t := f.r.of(p).truth(); {
			case t > 0 && n.Op == vm.OpOr:
				return tree.Immed(1)
			case t < 0 && n.Op == vm.OpAnd:
				return tree.Immed(0)
			case t != 0:
				continue
			}
			kept = append(kept, p)
		}
		params = kept
	}

	switch len(params) {
	case 0:
		switch n.Op {
		case vm.OpMul, vm.OpAnd:
			return tree.Immed(1)
		default:
			return tree.Immed(0)
		}
	case 1:
		if n.Op == vm.OpAnd || n.Op == vm.OpOr {
			return f.fold(tree.New(vm.OpNotNot, params[0]))
		}
		return params[0]
	}

	sort.SliceStable(params, func(i, j int) bool {
		return params[i].Hash().Less(params[j].Hash())
	})

	if len(params) == len(n.Params) {
		same := true
		for i := range params {
			if !params[i].IsIdenticalTo(n.Params[i]) {
				same = false
				break
			}
		}
		if same {
			return n
		}
	}
	return n.WithParams(params)
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (f *folder) foldComparison(n *tree.Node) *tree.Node {
	if m := f.foldImmed(n); m != n {
		return m
	}

	a, b := f.r.of(n.Params[0]), f.r.of(n.Params[1])
	eps := f.eps
	disjoint := a.lo > b.hi+eps || b.lo > a.hi+eps
	switch n.Op {
	case vm.OpEqual:
		if disjoint {
			return tree.Immed(0)
		}
	case vm.OpNEqual:
		if disjoint {
			return tree.Immed(1)
		}
	case vm.OpLess:
		switch {
		case a.hi < b.lo-eps:
			return tree.Immed(1)
		case a.lo >= b.hi-eps:
			return tree.Immed(0)
		}
	case vm.OpLessOrEq:
		switch {
		case a.hi <= b.lo+eps:
			return tree.Immed(1)
		case a.lo > b.hi+eps:
			return tree.Immed(0)
		}
	}

	if n.Op.IsCommutative() && n.Params[1].Hash().Less(n.Params[0].Hash()) {
		return tree.New(n.Op, n.Params[1], n.Params[0])
	}
	return n
}

func (f *folder) foldIf(n *tree.Node) *tree.Node {
	cond, yes, no := n.Params[0], n.Params[1], n.Params[2]

	var t int
	if n.Op == vm.OpAbsIf {
		t = f.r.of(cond).absTruth()
	} else {
		t = f.r.of(cond).truth()
	}
	switch {
	case t > 0:
		return yes
	case t < 0:
		return no
	}

	notOp, notNotOp := vm.OpNot, vm.OpNotNot
	if n.Op == vm.OpAbsIf {
		notOp, notNotOp = vm.OpAbsNot, vm.OpAbsNotNot
	}
	switch {
	case yes.IsImmedValue(1) && no.IsImmedValue(0):
		return f.fold(tree.New(notNotOp, cond))
	case yes.IsImmedValue(0) && no.IsImmedValue(1):
		return f.fold(tree.New(notOp, cond))
	}
	return n
}

func (f *folder) foldNot(n *tree.Node) *tree.Node {
	x := n.Params[0]
	switch t := f.r.of(x).truth(); {
	case t > 0:
		return tree.Immed(b2f(n.Op == vm.OpNotNot))
	case t < 0:
		return tree.Immed(b2f(n.Op == vm.OpNot))
	}
	if n.Op == vm.OpNotNot && f.r.isLogical(x) {
		return x
	}
	return n
}

func (f *folder) foldAbs(n *tree.Node) *tree.Node {
	x := n.Params[0]
	r := f.r.of(x)
	switch {
	case r.lo >= 0:
		return x
	case r.hi <= 0:
		return f.fold(tree.New(vm.OpMul, x, tree.Immed(-1)))
	}
	return n
}

func (f *folder) foldPow(n *tree.Node) *tree.Node {
	base, exp := n.Params[0], n.Params[1]
	switch {
	case exp.IsImmedValue(1):
		return base
	case exp.IsImmedValue(0):
		return tree.Immed(1)
	case base.IsImmedValue(1):
		return tree.Immed(1)
	}
	return f.foldImmed(n)
}
