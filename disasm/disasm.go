// Copyright 2014 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package disasm implements a byte-code disassembler for compiled
// expressions.
package disasm

import (
	"fmt"
	"io"
	"strings"

	"github.com/beevik/fparser/vm"
)

// Names supplies display names for the variables and functions referenced
// by a program. Missing names are generated from their indices.
type Names struct {
	Vars  []string
	Funcs []string
	Subs  []string
}

func pick(names []string, i int, prefix string) string {
	if i < len(names) {
		return names[i]
	}
	return fmt.Sprintf("%s%d", prefix, i)
}

func (n *Names) variable(i int) string { return pick(n.Vars, i, "x") }
func (n *Names) function(i int) string { return pick(n.Funcs, i, "f") }
func (n *Names) sub(i int) string      { return pick(n.Subs, i, "p") }

// Disassemble the instruction at offset ip of program p. Return a 'line'
// string representing the instruction and the offset 'next' of the
// following instruction.
func Disassemble(p *vm.Program, ip int, names *Names) (line string, next int) {
	op := vm.Opcode(p.Code[ip])
	next = p.Next(ip)

	var operand string
	switch op {
	case vm.OpImmed:
		operand = fmt.Sprintf("%g", p.Immed[p.Code[ip+1]])
	case vm.OpVar:
		operand = names.variable(int(p.Code[ip+1]))
	case vm.OpJump, vm.OpIf, vm.OpAbsIf:
		operand = fmt.Sprintf("$%04X", p.Code[ip+1])
	case vm.OpFetch:
		operand = fmt.Sprintf("[%d]", p.Code[ip+1])
	case vm.OpPopNMov:
		operand = fmt.Sprintf("[%d], [%d]", p.Code[ip+1], p.Code[ip+2])
	case vm.OpFCall:
		operand = names.function(int(p.Code[ip+1]))
	case vm.OpPCall:
		operand = names.sub(int(p.Code[ip+1]))
	}

	line = strings.TrimRight(fmt.Sprintf("%-10s %s", op, operand), " ")
	return line, next
}

// Fprint writes a listing of program p to w, one instruction per line. If
// showExpr is true, each line also shows the expression held on top of the
// stack after the instruction executes.
func Fprint(w io.Writer, p *vm.Program, names *Names, showExpr bool) {
	if names == nil {
		names = &Names{}
	}
	var sim *simulator
	if showExpr {
		sim = newSimulator(p, names)
	}

	for ip := 0; ip < len(p.Code); {
		line, next := Disassemble(p, ip, names)
		if sim != nil {
			if expr := sim.step(ip); expr != "" {
				line = fmt.Sprintf("%-24s ; %s", line, expr)
			}
		}
		fmt.Fprintf(w, "%04X  %s\n", ip, line)
		ip = next
	}

	if sim != nil {
		sim.join(len(p.Code))
		fmt.Fprintf(w, "      = %s\n", sim.top())
	}
}

//
// expression reconstruction
//

var infix = map[vm.Opcode]string{
	vm.OpAdd:         "+",
	vm.OpSub:         "-",
	vm.OpMul:         "*",
	vm.OpDiv:         "/",
	vm.OpMod:         "%",
	vm.OpEqual:       "=",
	vm.OpNEqual:      "!=",
	vm.OpLess:        "<",
	vm.OpLessOrEq:    "<=",
	vm.OpGreater:     ">",
	vm.OpGreaterOrEq: ">=",
	vm.OpAnd:         "&",
	vm.OpOr:          "|",
	vm.OpAbsAnd:      "&",
	vm.OpAbsOr:       "|",
}

// A branch tracks a conditional while its arms are being simulated.
type branch struct {
	cond     string
	then     string
	end      int
	thenDone bool
}

// A simulator executes a program symbolically, keeping a source string for
// every stack entry.
type simulator struct {
	p        *vm.Program
	names    *Names
	stack    []string
	branches []*branch
}

func newSimulator(p *vm.Program, names *Names) *simulator {
	return &simulator{p: p, names: names}
}

func (s *simulator) push(e string) { s.stack = append(s.stack, e) }

func (s *simulator) pop() string {
	if len(s.stack) == 0 {
		return "?"
	}
	e := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return e
}

func (s *simulator) popN(n int) []string {
	args := make([]string, n)
	for i := n - 1; i >= 0; i-- {
		args[i] = s.pop()
	}
	return args
}

func (s *simulator) top() string {
	if len(s.stack) == 0 {
		return ""
	}
	return s.stack[len(s.stack)-1]
}

// join completes the innermost conditional whose else arm ends at ip.
func (s *simulator) join(ip int) {
	for len(s.branches) > 0 {
		b := s.branches[len(s.branches)-1]
		if !b.thenDone || b.end != ip {
			return
		}
		e := s.pop()
		s.push(fmt.Sprintf("if(%s, %s, %s)", b.cond, b.then, e))
		s.branches = s.branches[:len(s.branches)-1]
	}
}

// step simulates the instruction at ip and returns the expression on top
// of the stack afterwards.
func (s *simulator) step(ip int) string {
	s.join(ip)

	code := s.p.Code
	op := vm.Opcode(code[ip])
	switch op {
	case vm.OpImmed:
		s.push(fmt.Sprintf("%g", s.p.Immed[code[ip+1]]))

	case vm.OpVar:
		s.push(s.names.variable(int(code[ip+1])))

	case vm.OpIf, vm.OpAbsIf:
		s.branches = append(s.branches, &branch{cond: s.pop()})
		return ""

	case vm.OpJump:
		if n := len(s.branches); n > 0 {
			b := s.branches[n-1]
			b.then, b.end, b.thenDone = s.pop(), int(code[ip+1]), true
		}
		return ""

	case vm.OpDup:
		s.push(s.top())

	case vm.OpFetch:
		if slot := int(code[ip+1]); slot < len(s.stack) {
			s.push(s.stack[slot])
		} else {
			s.push("?")
		}

	case vm.OpPopNMov:
		tgt, src := int(code[ip+1]), int(code[ip+2])
		if src < len(s.stack) && tgt < len(s.stack) {
			s.stack[tgt] = s.stack[src]
			s.stack = s.stack[:tgt+1]
		}

	case vm.OpSinCos:
		a := s.pop()
		s.push("sin(" + a + ")")
		s.push("cos(" + a + ")")

	case vm.OpNeg:
		s.push("-" + s.pop())
	case vm.OpNot, vm.OpAbsNot:
		s.push("!" + s.pop())
	case vm.OpNotNot, vm.OpAbsNotNot:
		s.push("!!" + s.pop())
	case vm.OpInv:
		s.push("1/" + s.pop())
	case vm.OpSqr:
		s.push(s.pop() + "^2")
	case vm.OpRSqrt:
		s.push("1/sqrt(" + s.pop() + ")")

	case vm.OpFCall:
		f := s.p.Funcs
		i := int(code[ip+1])
		n := 0
		if i < len(f) {
			n = f[i].Params
		}
		s.call(s.names.function(i), n)

	case vm.OpPCall:
		subs := s.p.Subs
		i := int(code[ip+1])
		n := 0
		if i < len(subs) {
			n = subs[i].Params
		}
		s.call(s.names.sub(i), n)

	default:
		if sym, ok := infix[op]; ok {
			args := s.popN(2)
			s.push("(" + args[0] + sym + args[1] + ")")
		} else {
			s.call(op.String(), op.FuncParams(s.p.NumVars))
		}
	}
	return s.top()
}

func (s *simulator) call(name string, n int) {
	s.push(name + "(" + strings.Join(s.popN(n), ", ") + ")")
}
