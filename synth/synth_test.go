// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package synth

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/beevik/fparser/tree"
	"github.com/beevik/fparser/vm"
)

var (
	x = tree.Var(0)
	y = tree.Var(1)
)

func imm(v float64) *tree.Node { return tree.Immed(v) }

func node(op vm.Opcode, params ...*tree.Node) *tree.Node { return tree.New(op, params...) }

func code(ops ...interface{}) []uint32 {
	var c []uint32
	for _, o := range ops {
		switch v := o.(type) {
		case vm.Opcode:
			c = append(c, uint32(v))
		case int:
			c = append(c, uint32(v))
		}
	}
	return c
}

func expectCode(t *testing.T, n *tree.Node, opts Options, exp []uint32) *vm.Program {
	t.Helper()
	p := Synthesize(n, opts)
	if diff := cmp.Diff(exp, p.Code); diff != "" {
		t.Errorf("Code for %s incorrect (-exp +got):\n%s", n, diff)
	}
	return p
}

func expectEval(t *testing.T, p *vm.Program, vars []float64, exp float64) {
	t.Helper()
	p.NumVars = len(vars)
	got, err := p.Eval(vars, nil, vm.DefaultEpsilon)
	if err != vm.ErrNone {
		t.Errorf("Eval failed: %v", err)
		return
	}
	if math.Abs(got-exp) > 1e-9*math.Max(1, math.Abs(exp)) {
		t.Errorf("Eval incorrect. exp: %v, got: %v", exp, got)
	}
}

func TestPlain(t *testing.T) {
	plain := Options{}
	p := expectCode(t, node(vm.OpAdd, node(vm.OpMul, x, imm(2)), imm(2)), plain,
		code(vm.OpVar, 0, vm.OpImmed, 0, vm.OpMul, vm.OpImmed, 0, vm.OpAdd))
	if diff := cmp.Diff([]float64{2}, p.Immed); diff != "" {
		t.Errorf("Immediates incorrect (-exp +got):\n%s", diff)
	}
	if p.StackSize != 2 {
		t.Errorf("Stack size incorrect. exp: 2, got: %d", p.StackSize)
	}
	expectEval(t, p, []float64{3}, 8)

	// Canonical forms are emitted as written.
	expectCode(t, node(vm.OpMul, x, imm(-1)), plain,
		code(vm.OpVar, 0, vm.OpImmed, 0, vm.OpMul))
	expectCode(t, node(vm.OpPow, x, imm(2)), plain,
		code(vm.OpVar, 0, vm.OpImmed, 0, vm.OpPow))
	expectCode(t, node(vm.OpSub, x, y), plain,
		code(vm.OpVar, 0, vm.OpVar, 1, vm.OpSub))
}

func TestIfPatching(t *testing.T) {
	n := node(vm.OpIf, x, imm(1), imm(2))
	p := expectCode(t, n, Options{},
		code(vm.OpVar, 0, vm.OpIf, 8, vm.OpImmed, 0, vm.OpJump, 10, vm.OpImmed, 1))
	expectEval(t, p, []float64{1}, 1)
	expectEval(t, p, []float64{0}, 2)

	n = node(vm.OpAbsIf, node(vm.OpLess, x, imm(0)), node(vm.OpNeg, x), x)
	p = Synthesize(n, Options{Optimized: true})
	expectEval(t, p, []float64{-4}, 4)
	expectEval(t, p, []float64{5}, 5)
}

func TestLowering(t *testing.T) {
	opt := Options{Optimized: true}
	expectCode(t, node(vm.OpAdd, x, node(vm.OpMul, y, imm(-1))), opt,
		code(vm.OpVar, 0, vm.OpVar, 1, vm.OpSub))
	expectCode(t, node(vm.OpMul, x, node(vm.OpPow, y, imm(-1))), opt,
		code(vm.OpVar, 0, vm.OpVar, 1, vm.OpDiv))
	expectCode(t, node(vm.OpMul, x, imm(-1)), opt,
		code(vm.OpVar, 0, vm.OpNeg))
	expectCode(t, node(vm.OpPow, x, imm(-1)), opt,
		code(vm.OpVar, 0, vm.OpInv))
	expectCode(t, node(vm.OpPow, x, imm(0.5)), opt,
		code(vm.OpVar, 0, vm.OpSqrt))
	expectCode(t, node(vm.OpPow, x, imm(-0.5)), opt,
		code(vm.OpVar, 0, vm.OpRSqrt))
	expectCode(t, node(vm.OpPow, x, imm(2)), opt,
		code(vm.OpVar, 0, vm.OpSqr))
	expectCode(t, node(vm.OpPow, imm(math.E), x), opt,
		code(vm.OpVar, 0, vm.OpExp))
	expectCode(t, node(vm.OpPow, imm(2), x), opt,
		code(vm.OpVar, 0, vm.OpExp2))
	expectCode(t, node(vm.OpPow, x, imm(0.3)), opt,
		code(vm.OpVar, 0, vm.OpImmed, 0, vm.OpPow))

	p := expectCode(t, node(vm.OpPow, x, imm(1.5)), opt,
		code(vm.OpVar, 0, vm.OpSqrt, vm.OpDup, vm.OpSqr, vm.OpMul))
	expectEval(t, p, []float64{1.7}, math.Pow(1.7, 1.5))
}

func TestPowi(t *testing.T) {
	for n := -20; n <= 20; n++ {
		if n == 0 {
			continue
		}
		p := Synthesize(node(vm.OpPow, x, imm(float64(n))), Options{Optimized: true})
		if l := p.Len() - 1; l > MaxPowiLength {
			t.Errorf("Power %d too long. exp: <= %d, got: %d", n, MaxPowiLength, l)
		}
		for ip := 0; ip < len(p.Code); ip = p.Next(ip) {
			if vm.Opcode(p.Code[ip]) == vm.OpPow {
				t.Errorf("Power %d emitted a generic pow", n)
			}
		}
		for _, v := range []float64{-1.3, 0.7, 2.5} {
			expectEval(t, p, []float64{v}, math.Pow(v, float64(n)))
		}
	}

	p := Synthesize(node(vm.OpPow, x, imm(1024)), Options{Optimized: true})
	expectEval(t, p, []float64{1.001}, math.Pow(1.001, 1024))

	// Not eligible for expansion.
	p = Synthesize(node(vm.OpPow, x, imm(47)), Options{Optimized: true})
	if op := vm.Opcode(p.Code[len(p.Code)-1]); op != vm.OpPow {
		t.Errorf("Power 47 incorrect. exp: pow, got: %s", op)
	}
}

func TestCSE(t *testing.T) {
	sum := node(vm.OpAdd, node(vm.OpMul, x, y), imm(1))
	n := node(vm.OpMul, sum, node(vm.OpSin, sum))
	p := expectCode(t, n, Options{Optimized: true},
		code(vm.OpVar, 0, vm.OpVar, 1, vm.OpMul, vm.OpImmed, 0, vm.OpAdd,
			vm.OpDup, vm.OpFetch, 0, vm.OpSin, vm.OpMul,
			vm.OpPopNMov, 0, 1))
	if p.StackSize != 3 {
		t.Errorf("Stack size incorrect. exp: 3, got: %d", p.StackSize)
	}
	expectEval(t, p, []float64{0.25, 0.5}, 1.125*math.Sin(1.125))

	// Hoisting x+y saves nothing once the fetches and popnmov are paid.
	sum = node(vm.OpAdd, x, y)
	n = node(vm.OpMul, sum, node(vm.OpSin, sum))
	p = expectCode(t, n, Options{Optimized: true},
		code(vm.OpVar, 0, vm.OpVar, 1, vm.OpAdd,
			vm.OpVar, 0, vm.OpVar, 1, vm.OpAdd, vm.OpSin, vm.OpMul))
	expectEval(t, p, []float64{0.25, 0.5}, 0.75*math.Sin(0.75))

	// Subtrees inside conditional branches are not hoisted.
	n = node(vm.OpIf, x, node(vm.OpSin, sum), node(vm.OpSin, sum))
	p = Synthesize(n, Options{Optimized: true})
	for ip := 0; ip < len(p.Code); ip = p.Next(ip) {
		if vm.Opcode(p.Code[ip]) == vm.OpPopNMov {
			t.Error("Conditional subtree was hoisted")
		}
	}
}

func TestCachedPowers(t *testing.T) {
	sq := node(vm.OpPow, x, imm(2))
	n := node(vm.OpAdd, node(vm.OpPow, x, imm(4)), sq, sq, sq)
	p := expectCode(t, n, Options{Optimized: true},
		code(vm.OpVar, 0, vm.OpSqr,
			vm.OpDup, vm.OpSqr,
			vm.OpFetch, 0, vm.OpAdd,
			vm.OpFetch, 0, vm.OpAdd,
			vm.OpFetch, 0, vm.OpAdd,
			vm.OpPopNMov, 0, 1))
	expectEval(t, p, []float64{1.5}, 1.5*1.5*1.5*1.5+3*1.5*1.5)
}

func TestSinCos(t *testing.T) {
	arg := node(vm.OpMul, x, y)
	n := node(vm.OpAdd, node(vm.OpSin, arg), node(vm.OpCos, arg))
	p := expectCode(t, n, Options{Optimized: true},
		code(vm.OpVar, 0, vm.OpVar, 1, vm.OpMul, vm.OpSinCos,
			vm.OpFetch, 0, vm.OpFetch, 1, vm.OpAdd,
			vm.OpPopNMov, 0, 2))
	expectEval(t, p, []float64{0.3, 2}, math.Sin(0.6)+math.Cos(0.6))

	// A single variable argument is cheaper to evaluate twice.
	n = node(vm.OpAdd, node(vm.OpSin, x), node(vm.OpCos, x))
	p = expectCode(t, n, Options{Optimized: true},
		code(vm.OpVar, 0, vm.OpSin, vm.OpVar, 0, vm.OpCos, vm.OpAdd))
	expectEval(t, p, []float64{0.3}, math.Sin(0.3)+math.Cos(0.3))
}

func TestCalls(t *testing.T) {
	n := tree.Call(vm.OpFCall, 0, x, imm(2))
	p := expectCode(t, n, Options{},
		code(vm.OpVar, 0, vm.OpImmed, 0, vm.OpFCall, 0))
	p.Funcs = []vm.FuncDef{{Fn: func(a []float64) float64 { return a[0] * a[1] }, Params: 2}}
	expectEval(t, p, []float64{4}, 8)

	// Calls are never hoisted.
	call := tree.Call(vm.OpFCall, 0, x, imm(2))
	n = node(vm.OpAdd, node(vm.OpSin, call), node(vm.OpSin, call), imm(1))
	p = Synthesize(n, Options{Optimized: true})
	fcalls := 0
	for ip := 0; ip < len(p.Code); ip = p.Next(ip) {
		if vm.Opcode(p.Code[ip]) == vm.OpFCall {
			fcalls++
		}
	}
	if fcalls != 2 {
		t.Errorf("Call count incorrect. exp: 2, got: %d", fcalls)
	}
}
