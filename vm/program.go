// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vm implements the byte-code instruction set and the stack
// machine that evaluates compiled expressions.
package vm

import "math"

// Error is an evaluation error code.
type Error int

// Evaluation error codes.
const (
	ErrNone       Error = iota // no error
	ErrDivByZero               // division by zero
	ErrSqrtDomain              // sqrt of a negative value
	ErrLogDomain               // log of a non-positive value
	ErrTrigDomain              // inverse trig or hyperbolic function out of range
	ErrRecursion               // maximum eval() recursion level reached
)

var errorText = []string{
	"no error",
	"division by zero",
	"sqrt of a negative value",
	"log of a non-positive value",
	"argument out of range",
	"maximum recursion level reached",
}

func (e Error) Error() string {
	if int(e) < len(errorText) {
		return errorText[e]
	}
	return "unknown error"
}

// MaxEvalRecursion is the maximum nesting level of the eval() function.
const MaxEvalRecursion = 1000

// A Func is an external function callable from an expression.
type Func func(args []float64) float64

// An Evaluator is a compiled function that may be called from another
// program.
type Evaluator interface {
	Eval(vars []float64) float64
	EvalError() int
}

// FuncDef is an external function together with its parameter count.
type FuncDef struct {
	Fn     Func
	Params int
}

// SubDef is a sub-parser function together with its parameter count.
type SubDef struct {
	Eval   Evaluator
	Params int
}

// A Program is a compiled expression. It is immutable once built.
type Program struct {
	Code      []uint32  // opcodes followed by their inline operands
	Immed     []float64 // immediate constant pool
	StackSize int       // maximum stack depth
	NumVars   int       // number of input variables
	Funcs     []FuncDef // external functions referenced by fcall
	Subs      []SubDef  // sub-parsers referenced by pcall
}

// Next returns the instruction pointer of the instruction following the one
// at ip.
func (p *Program) Next(ip int) int {
	return ip + 1 + Opcode(p.Code[ip]).Operands()
}

// Len returns the number of instructions in the program, not counting
// inline operands.
func (p *Program) Len() int {
	n := 0
	for ip := 0; ip < len(p.Code); ip = p.Next(ip) {
		n++
	}
	return n
}

// Eval runs the program against the input vector vars. If stack is large
// enough it is used as scratch space; otherwise a new stack is allocated.
// Comparisons use the tolerance eps.
func (p *Program) Eval(vars, stack []float64, eps float64) (float64, Error) {
	if len(stack) < p.StackSize {
		stack = make([]float64, p.StackSize)
	}
	return p.run(vars, stack, eps, 0)
}

func (p *Program) run(vars, stack []float64, eps float64, level int) (float64, Error) {
	code := p.Code
	sp := -1

	for ip := 0; ip < len(code); {
		op := Opcode(code[ip])
		switch op {
		case OpImmed:
			sp++
			stack[sp] = p.Immed[code[ip+1]]

		case OpVar:
			sp++
			stack[sp] = vars[code[ip+1]]

		case OpJump:
			ip = int(code[ip+1])
			continue

		case OpIf, OpAbsIf:
			var t bool
			if op == OpIf {
				t = Truth(stack[sp])
			} else {
				t = AbsTruth(stack[sp])
			}
			sp--
			if !t {
				ip = int(code[ip+1])
				continue
			}

		case OpDup:
			stack[sp+1] = stack[sp]
			sp++

		case OpFetch:
			stack[sp+1] = stack[code[ip+1]]
			sp++

		case OpPopNMov:
			tgt, src := code[ip+1], code[ip+2]
			stack[tgt] = stack[src]
			sp = int(tgt)

		case OpSinCos:
			s, c := math.Sincos(stack[sp])
			stack[sp], stack[sp+1] = s, c
			sp++

		case OpEval:
			n := p.NumVars
			if level >= MaxEvalRecursion {
				return 0, ErrRecursion
			}
			args := stack[sp-n+1 : sp+1]
			v, err := p.run(args, make([]float64, p.StackSize), eps, level+1)
			if err != ErrNone {
				return 0, err
			}
			sp -= n - 1
			stack[sp] = v

		case OpFCall:
			f := p.Funcs[code[ip+1]]
			v := f.Fn(stack[sp-f.Params+1 : sp+1])
			sp -= f.Params - 1
			stack[sp] = v

		case OpPCall:
			s := p.Subs[code[ip+1]]
			v := s.Eval.Eval(stack[sp-s.Params+1 : sp+1])
			if err := s.Eval.EvalError(); err != 0 {
				return 0, Error(err)
			}
			sp -= s.Params - 1
			stack[sp] = v

		default:
			n := int(info[op].params)
			v, err, ok := Apply(op, stack[sp-n+1:sp+1], eps)
			if !ok {
				panic("vm: invalid opcode " + op.String())
			}
			if err != ErrNone {
				return 0, err
			}
			sp -= n - 1
			stack[sp] = v
		}
		ip += 1 + op.Operands()
	}

	return stack[sp], ErrNone
}
