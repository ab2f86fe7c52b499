// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package optimize

import (
	"math"

	"github.com/beevik/fparser/tree"
	"github.com/beevik/fparser/vm"
)

// An interval bounds the values a subtree may produce. Unknown bounds are
// infinite.
type interval struct {
	lo, hi float64
}

var (
	unknown     = interval{math.Inf(-1), math.Inf(1)}
	nonNegative = interval{0, math.Inf(1)}
	unitRange   = interval{-1, 1}
	logicRange  = interval{0, 1}
)

func point(v float64) interval { return interval{v, v} }

func (r interval) valid() bool {
	return !math.IsNaN(r.lo) && !math.IsNaN(r.hi) && r.lo <= r.hi
}

func (r interval) or(fallback interval) interval {
	if r.valid() {
		return r
	}
	return fallback
}

// monotonic maps an interval through a non-decreasing function.
func (r interval) monotonic(f func(float64) float64) interval {
	return interval{f(r.lo), f(r.hi)}.or(unknown)
}

func (r interval) abs() interval {
	switch {
	case r.lo >= 0:
		return r
	case r.hi <= 0:
		return interval{-r.hi, -r.lo}
	}
	return interval{0, math.Max(-r.lo, r.hi)}
}

// truth returns +1 if every value in the interval is true, -1 if every
// value is false, and 0 if the interval holds both.
func (r interval) truth() int {
	switch {
	case r.lo >= 0.5 || r.hi <= -0.5:
		return 1
	case r.lo > -0.5 && r.hi < 0.5:
		return -1
	}
	return 0
}

// absTruth is truth for values known to be non-negative.
func (r interval) absTruth() int {
	switch {
	case r.lo >= 0.5:
		return 1
	case r.hi < 0.5:
		return -1
	}
	return 0
}

// ranges computes and caches value intervals for subtrees. Nodes are
// immutable, so a node's interval never changes.
type ranges struct {
	cache map[*tree.Node]interval
}

func newRanges() *ranges {
	return &ranges{cache: make(map[*tree.Node]interval)}
}

func (r *ranges) of(n *tree.Node) interval {
	if v, ok := r.cache[n]; ok {
		return v
	}
	v := r.compute(n)
	r.cache[n] = v
	return v
}

func (r *ranges) compute(n *tree.Node) interval {
	if n.Op.IsLogical() {
		return logicRange
	}

	switch n.Op {
	case vm.OpImmed:
		return point(n.Value)

	case vm.OpAbs:
		return r.of(n.Params[0]).abs()

	case vm.OpAdd:
		sum := point(0)
		for _, p := range n.Params {
			pr := r.of(p)
			sum = interval{sum.lo + pr.lo, sum.hi + pr.hi}
		}
		return sum.or(unknown)

	case vm.OpMul:
		prod := point(1)
		for _, p := range n.Params {
			prod = mulInterval(prod, r.of(p))
		}
		return prod.or(unknown)

	case vm.OpPow:
		return r.powRange(n)

	case vm.OpSin:
		return sinRange(r.of(n.Params[0]))
	case vm.OpCos:
		p := r.of(n.Params[0])
		return sinRange(interval{p.lo + math.Pi/2, p.hi + math.Pi/2})

	case vm.OpAtan:
		return r.of(n.Params[0]).monotonic(math.Atan)
	case vm.OpAtan2:
		return interval{-math.Pi, math.Pi}
	case vm.OpTanh:
		return r.of(n.Params[0]).monotonic(math.Tanh)
	case vm.OpSinh:
		return r.of(n.Params[0]).monotonic(math.Sinh)
	case vm.OpAsinh:
		return r.of(n.Params[0]).monotonic(math.Asinh)
	case vm.OpCbrt:
		return r.of(n.Params[0]).monotonic(math.Cbrt)
	case vm.OpExp:
		return r.of(n.Params[0]).monotonic(math.Exp)
	case vm.OpExp2:
		return r.of(n.Params[0]).monotonic(math.Exp2)
	case vm.OpCosh:
		return interval{1, math.Inf(1)}
	case vm.OpAcos:
		return interval{0, math.Pi}
	case vm.OpAsin:
		return interval{-math.Pi / 2, math.Pi / 2}

	case vm.OpLog, vm.OpLog2, vm.OpLog10:
		f := map[vm.Opcode]func(float64) float64{
			vm.OpLog: math.Log, vm.OpLog2: math.Log2, vm.OpLog10: math.Log10,
		}[n.Op]
		p := r.of(n.Params[0])
		lo := math.Inf(-1)
		if p.lo > 0 {
			lo = f(p.lo)
		}
		return interval{lo, f(p.hi)}.or(unknown)

	case vm.OpFloor, vm.OpCeil, vm.OpInt, vm.OpTrunc:
		p := r.of(n.Params[0])
		return interval{math.Floor(p.lo), math.Ceil(p.hi)}.or(unknown)

	case vm.OpMin, vm.OpMax:
		f := math.Min
		if n.Op == vm.OpMax {
			f = math.Max
		}
		res := r.of(n.Params[0])
		for _, p := range n.Params[1:] {
			pr := r.of(p)
			res = interval{f(res.lo, pr.lo), f(res.hi, pr.hi)}
		}
		return res

	case vm.OpIf, vm.OpAbsIf:
		a, b := r.of(n.Params[1]), r.of(n.Params[2])
		return interval{math.Min(a.lo, b.lo), math.Max(a.hi, b.hi)}

	case vm.OpMod:
		d := r.of(n.Params[1])
		m := math.Max(math.Abs(d.lo), math.Abs(d.hi))
		if r.of(n.Params[0]).lo >= 0 {
			return interval{0, m}
		}
		return interval{-m, m}
	}

	if n.Op.NeverNegative() {
		return nonNegative
	}
	return unknown
}

// maxSinArg is the magnitude beyond which the location of the extrema of
// sin can no longer be resolved in float64.
const maxSinArg = 1e15

// sinRange bounds sin over an interval, including an extremum only when
// a peak or trough lies inside it.
func sinRange(p interval) interval {
	if !p.valid() || p.hi-p.lo >= 2*math.Pi ||
		math.Abs(p.lo) > maxSinArg || math.Abs(p.hi) > maxSinArg {
		return unitRange
	}
	a, b := math.Sin(p.lo), math.Sin(p.hi)
	res := interval{math.Min(a, b), math.Max(a, b)}

	// Extrema sit at pi/2 + k*pi. An interval narrower than 2*pi holds at
	// most two of them.
	k0 := int64(math.Ceil((p.lo - math.Pi/2) / math.Pi))
	k1 := int64(math.Floor((p.hi - math.Pi/2) / math.Pi))
	for k := k0; k <= k1 && k < k0+3; k++ {
		if k%2 == 0 {
			res.hi = 1
		} else {
			res.lo = -1
		}
	}
	return res
}

func mulInterval(a, b interval) interval {
	c := [4]float64{a.lo * b.lo, a.lo * b.hi, a.hi * b.lo, a.hi * b.hi}
	res := interval{c[0], c[0]}
	for _, v := range c[1:] {
		if math.IsNaN(v) {
			return unknown
		}
		res.lo = math.Min(res.lo, v)
		res.hi = math.Max(res.hi, v)
	}
	if math.IsNaN(c[0]) {
		return unknown
	}
	return res
}

func (r *ranges) powRange(n *tree.Node) interval {
	base, exp := n.Params[0], n.Params[1]
	b := r.of(base)

	if !exp.IsImmed() {
		if b.lo > 0 {
			return nonNegative
		}
		return unknown
	}

	y := exp.Value
	pow := func(x float64) float64 { return math.Pow(x, y) }
	switch {
	case vm.IsEvenInteger(y):
		a := b.abs()
		if y > 0 {
			return a.monotonic(pow)
		}
		return interval{pow(a.hi), pow(a.lo)}.or(nonNegative)

	case vm.IsOddInteger(y) && y > 0:
		return b.monotonic(pow)

	case b.lo >= 0:
		if y > 0 {
			return b.monotonic(pow)
		}
		return interval{pow(b.hi), pow(b.lo)}.or(nonNegative)
	}
	return unknown
}

// isInteger reports whether the subtree always produces an integer.
func (r *ranges) isInteger(n *tree.Node) bool {
	switch {
	case n.IsImmed():
		return vm.IsInteger(n.Value)
	case n.Op.AlwaysInteger():
		return true
	}

	switch n.Op {
	case vm.OpAdd, vm.OpMul, vm.OpMin, vm.OpMax, vm.OpAbs:
		for _, p := range n.Params {
			if !r.isInteger(p) {
				return false
			}
		}
		return true
	case vm.OpIf, vm.OpAbsIf:
		return r.isInteger(n.Params[1]) && r.isInteger(n.Params[2])
	case vm.OpPow:
		e := n.Params[1]
		return r.isInteger(n.Params[0]) && e.IsImmed() && vm.IsInteger(e.Value) && e.Value >= 0
	}
	return false
}

// isLogical reports whether the subtree always produces 0 or 1.
func (r *ranges) isLogical(n *tree.Node) bool {
	switch {
	case n.Op.IsLogical():
		return true
	case n.IsImmed():
		return n.Value == 0 || n.Value == 1
	case n.Op == vm.OpIf || n.Op == vm.OpAbsIf:
		return r.isLogical(n.Params[1]) && r.isLogical(n.Params[2])
	}
	return false
}

// mayFail reports whether evaluating the subtree could raise an evaluation
// error or call out to a function.
func (r *ranges) mayFail(n *tree.Node) bool {
	switch n.Op {
	case vm.OpEval, vm.OpFCall, vm.OpPCall,
		vm.OpDiv, vm.OpMod, vm.OpInv, vm.OpCot, vm.OpCsc, vm.OpSec:
		return true
	case vm.OpPow:
		// Fractional powers of non-positive bases lower to square roots,
		// and negative powers of zero divide by zero.
		base, exp := r.of(n.Params[0]), n.Params[1]
		switch {
		case base.lo > 0:
		case exp.IsImmed() && vm.IsInteger(exp.Value):
			if exp.Value < 0 && base.hi >= 0 {
				return true
			}
		default:
			return true
		}
	default:
		if n.Op.HasInvalidRange() {
			return true
		}
	}
	for _, p := range n.Params {
		if r.mayFail(p) {
			return true
		}
	}
	return false
}
