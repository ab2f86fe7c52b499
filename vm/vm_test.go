// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vm

import (
	"math"
	"testing"
)

func op(o Opcode, operands ...uint32) []uint32 {
	return append([]uint32{uint32(o)}, operands...)
}

func program(stack int, immed []float64, ops ...[]uint32) *Program {
	p := &Program{Immed: immed, StackSize: stack}
	for _, o := range ops {
		p.Code = append(p.Code, o...)
	}
	return p
}

func expectValue(t *testing.T, p *Program, vars []float64, exp float64) {
	t.Helper()
	got, err := p.Eval(vars, nil, DefaultEpsilon)
	if err != ErrNone {
		t.Errorf("Unexpected eval error: %v", err)
		return
	}
	if math.Abs(got-exp) > 1e-12 {
		t.Errorf("Result incorrect. exp: %v, got: %v", exp, got)
	}
}

func expectError(t *testing.T, p *Program, vars []float64, exp Error) {
	t.Helper()
	got, err := p.Eval(vars, nil, DefaultEpsilon)
	if err != exp {
		t.Errorf("Error incorrect. exp: %d, got: %d", exp, err)
	}
	if got != 0 {
		t.Errorf("Result on error incorrect. exp: 0, got: %v", got)
	}
}

func TestArithmetic(t *testing.T) {
	// (x + 2) * y - 1
	p := program(2, []float64{2, 1},
		op(OpVar, 0), op(OpImmed, 0), op(OpAdd),
		op(OpVar, 1), op(OpMul),
		op(OpImmed, 1), op(OpSub))
	expectValue(t, p, []float64{3, 4}, 19)
	expectValue(t, p, []float64{-2, 10}, -1)

	if p.Len() != 7 {
		t.Errorf("Length incorrect. exp: 7, got: %d", p.Len())
	}
}

func TestIfJump(t *testing.T) {
	// if(x, 10, 20)
	p := program(1, []float64{10, 20},
		op(OpVar, 0), op(OpIf, 8), op(OpImmed, 0), op(OpJump, 10), op(OpImmed, 1))
	expectValue(t, p, []float64{1}, 10)
	expectValue(t, p, []float64{0.4}, 20)
	expectValue(t, p, []float64{-0.6}, 10)

	p.Code[2] = uint32(OpAbsIf)
	expectValue(t, p, []float64{-0.6}, 20)
}

func TestStackOps(t *testing.T) {
	// x*x + x with x kept at the bottom of the stack
	p := program(3, nil,
		op(OpVar, 0), op(OpVar, 0), op(OpDup), op(OpMul), op(OpFetch, 0), op(OpAdd))
	expectValue(t, p, []float64{3}, 12)

	p = program(3, nil,
		op(OpVar, 0), op(OpVar, 1), op(OpDup), op(OpMul), op(OpPopNMov, 0, 1))
	expectValue(t, p, []float64{3, 5}, 25)

	p = program(2, nil, op(OpVar, 0), op(OpSinCos), op(OpDiv))
	expectValue(t, p, []float64{0.3}, math.Tan(0.3))
}

func TestEvalErrors(t *testing.T) {
	tests := []struct {
		op   Opcode
		x    float64
		code Error
	}{
		{OpInv, 0, ErrDivByZero},
		{OpCot, 0, ErrDivByZero},
		{OpCsc, 0, ErrDivByZero},
		{OpRSqrt, 0, ErrDivByZero},
		{OpSqrt, -1, ErrSqrtDomain},
		{OpLog, 0, ErrLogDomain},
		{OpLog2, -3, ErrLogDomain},
		{OpLog10, 0, ErrLogDomain},
		{OpAcos, 1.5, ErrTrigDomain},
		{OpAsin, -1.5, ErrTrigDomain},
		{OpAcosh, 0.5, ErrTrigDomain},
		{OpAtanh, 1, ErrTrigDomain},
	}
	for _, test := range tests {
		p := program(1, nil, op(OpVar, 0), op(test.op))
		expectError(t, p, []float64{test.x}, test.code)
	}

	p := program(2, nil, op(OpVar, 0), op(OpVar, 1), op(OpDiv))
	expectError(t, p, []float64{1, 0}, ErrDivByZero)
	expectValue(t, p, []float64{1, 2}, 0.5)

	p = program(2, nil, op(OpVar, 0), op(OpVar, 1), op(OpPow))
	expectError(t, p, []float64{0, -2}, ErrLogDomain)
	expectValue(t, p, []float64{0, 2}, 0)
}

func TestEvalRecursion(t *testing.T) {
	// eval(x) recurses without end.
	p := program(1, nil, op(OpVar, 0), op(OpEval))
	p.NumVars = 1
	expectError(t, p, []float64{1}, ErrRecursion)

	// if(x < 1, 1, x * eval(x - 1))
	p = program(3, []float64{1},
		op(OpVar, 0), op(OpImmed, 0), op(OpLess),
		op(OpIf, 11), op(OpImmed, 0), op(OpJump, 20),
		op(OpVar, 0), op(OpVar, 0), op(OpImmed, 0), op(OpSub), op(OpEval), op(OpMul))
	p.NumVars = 1
	expectValue(t, p, []float64{5}, 120)
}

type fakeSub struct {
	err int
}

func (s *fakeSub) Eval(vars []float64) float64 { return vars[0] - vars[1] }
func (s *fakeSub) EvalError() int              { return s.err }

func TestCalls(t *testing.T) {
	sub := &fakeSub{}
	p := program(2, nil, op(OpVar, 0), op(OpVar, 1), op(OpPCall, 0), op(OpFCall, 0))
	p.Funcs = []FuncDef{{Fn: func(a []float64) float64 { return a[0] * 10 }, Params: 1}}
	p.Subs = []SubDef{{Eval: sub, Params: 2}}
	expectValue(t, p, []float64{7, 2}, 50)

	sub.err = 3
	expectError(t, p, []float64{7, 2}, ErrLogDomain)
}

func TestComparisons(t *testing.T) {
	eps := 1e-3
	cases := []struct {
		op   Opcode
		a, b float64
		exp  float64
	}{
		{OpEqual, 1, 1.0005, 1},
		{OpNEqual, 1, 1.0005, 0},
		{OpLess, 1, 1.0005, 0},
		{OpLess, 1, 1.01, 1},
		{OpLessOrEq, 1.0005, 1, 1},
		{OpGreater, 1.01, 1, 1},
		{OpGreaterOrEq, 1, 1.0005, 1},
		{OpAnd, 0.5, -0.7, 1},
		{OpAnd, 0.4, 1, 0},
		{OpOr, 0.4, -0.6, 1},
		{OpAbsOr, 0.4, -0.6, 0},
	}
	for _, c := range cases {
		got, _, _ := Apply(c.op, []float64{c.a, c.b}, eps)
		if got != c.exp {
			t.Errorf("%v(%v, %v) incorrect. exp: %v, got: %v", c.op, c.a, c.b, c.exp, got)
		}
	}
}

func TestPow(t *testing.T) {
	cases := []struct {
		x, y, exp float64
	}{
		{1, math.NaN(), 1},
		{2, 10, 1024},
		{2, -2, 0.25},
		{-2, 3, -8},
		{4, 0.5, 2},
		{-8, 1.0 / 3, -2},
		{0, 0.5, 0},
		{0.25, -0.5, 2},
	}
	for _, c := range cases {
		got := Pow(c.x, c.y)
		if math.Abs(got-c.exp) > 1e-12 {
			t.Errorf("Pow(%v, %v) incorrect. exp: %v, got: %v", c.x, c.y, c.exp, got)
		}
	}

	if Int(2.5) != 3 || Int(-2.5) != -3 || Int(1.2) != 1 {
		t.Error("Int does not round half away from zero")
	}
}

func TestFunctionTable(t *testing.T) {
	for _, name := range Functions() {
		op, ok := LookupFunction(name)
		if !ok || op.String() != name {
			t.Errorf("Function lookup failed for %s", name)
		}
		if !op.IsFunction() {
			t.Errorf("%s is not flagged as a function", name)
		}
	}
	if _, ok := LookupFunction("sqr"); ok {
		t.Error("sqr should not be callable by name")
	}
	if OpIf.FuncParams(0) != 3 || OpEval.FuncParams(4) != 4 || OpAtan2.FuncParams(0) != 2 {
		t.Error("Function parameter counts incorrect")
	}
	if !OpSin.AngleIn() || !OpAtan2.AngleOut() || OpSinh.AngleIn() {
		t.Error("Angle flags incorrect")
	}
}
