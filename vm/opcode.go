// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vm

import "sort"

// An Opcode identifies a single byte-code operation. Opcodes double as the
// node operators of the expression tree.
type Opcode uint32

// Built-in functions. These are kept in alphabetical order so that the
// function table can be searched by name.
const (
	OpAbs Opcode = iota
	OpAcos
	OpAcosh
	OpAsin
	OpAsinh
	OpAtan
	OpAtan2
	OpAtanh
	OpCbrt
	OpCeil
	OpCos
	OpCosh
	OpCot
	OpCsc
	OpEval
	OpExp
	OpExp2
	OpFloor
	OpHypot
	OpIf
	OpInt
	OpLog
	OpLog10
	OpLog2
	OpMax
	OpMin
	OpPow
	OpSec
	OpSin
	OpSinh
	OpSqrt
	OpTan
	OpTanh
	OpTrunc

	// Operators and internal instructions.
	OpImmed
	OpJump
	OpNeg
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEqual
	OpNEqual
	OpLess
	OpLessOrEq
	OpGreater
	OpGreaterOrEq
	OpNot
	OpAnd
	OpOr
	OpNotNot
	OpDeg
	OpRad
	OpFCall
	OpPCall
	OpFetch
	OpPopNMov
	OpLog2by
	OpSinCos
	OpAbsNot
	OpAbsNotNot
	OpAbsAnd
	OpAbsOr
	OpAbsIf
	OpDup
	OpInv
	OpSqr
	OpRSqrt
	OpVar

	opcodeCount
)

type opflags uint16

const (
	fnBuiltin       opflags = 1 << iota // callable by name from an expression
	fnAngleIn                           // argument is an angle
	fnAngleOut                          // result is an angle
	fnNeverNegative                     // result is never negative
	fnAlwaysInteger                     // result is always an integer
	fnInvalidRange                      // some arguments raise an eval error
	fnComparison                        // =, !=, <, <=, >, >=
	fnLogical                           // result is 0 or 1
	fnCommutative                       // parameters may be reordered
)

// Opcode metadata. A params value of -1 means the number of consumed
// stack values is determined at run time (eval, fcall, pcall).
type opcodeInfo struct {
	op       Opcode
	name     string
	params   int8
	operands int8
	flags    opflags
}

const (
	fnLogic = fnLogical | fnNeverNegative | fnAlwaysInteger
	fnCmp   = fnComparison | fnLogic
)

var info = [opcodeCount]opcodeInfo{
	{OpAbs, "abs", 1, 0, fnBuiltin | fnNeverNegative},
	{OpAcos, "acos", 1, 0, fnBuiltin | fnAngleOut | fnNeverNegative | fnInvalidRange},
	{OpAcosh, "acosh", 1, 0, fnBuiltin | fnInvalidRange},
	{OpAsin, "asin", 1, 0, fnBuiltin | fnAngleOut | fnInvalidRange},
	{OpAsinh, "asinh", 1, 0, fnBuiltin},
	{OpAtan, "atan", 1, 0, fnBuiltin | fnAngleOut},
	{OpAtan2, "atan2", 2, 0, fnBuiltin | fnAngleOut},
	{OpAtanh, "atanh", 1, 0, fnBuiltin | fnInvalidRange},
	{OpCbrt, "cbrt", 1, 0, fnBuiltin},
	{OpCeil, "ceil", 1, 0, fnBuiltin | fnAlwaysInteger},
	{OpCos, "cos", 1, 0, fnBuiltin | fnAngleIn},
	{OpCosh, "cosh", 1, 0, fnBuiltin | fnNeverNegative},
	{OpCot, "cot", 1, 0, fnBuiltin | fnAngleIn},
	{OpCsc, "csc", 1, 0, fnBuiltin | fnAngleIn},
	{OpEval, "eval", -1, 0, fnBuiltin},
	{OpExp, "exp", 1, 0, fnBuiltin | fnNeverNegative},
	{OpExp2, "exp2", 1, 0, fnBuiltin | fnNeverNegative},
	{OpFloor, "floor", 1, 0, fnBuiltin | fnAlwaysInteger},
	{OpHypot, "hypot", 2, 0, fnBuiltin | fnNeverNegative},
	{OpIf, "if", 1, 1, fnBuiltin},
	{OpInt, "int", 1, 0, fnBuiltin | fnAlwaysInteger},
	{OpLog, "log", 1, 0, fnBuiltin | fnInvalidRange},
	{OpLog10, "log10", 1, 0, fnBuiltin | fnInvalidRange},
	{OpLog2, "log2", 1, 0, fnBuiltin | fnInvalidRange},
	{OpMax, "max", 2, 0, fnBuiltin | fnCommutative},
	{OpMin, "min", 2, 0, fnBuiltin | fnCommutative},
	{OpPow, "pow", 2, 0, fnBuiltin},
	{OpSec, "sec", 1, 0, fnBuiltin | fnAngleIn},
	{OpSin, "sin", 1, 0, fnBuiltin | fnAngleIn},
	{OpSinh, "sinh", 1, 0, fnBuiltin},
	{OpSqrt, "sqrt", 1, 0, fnBuiltin | fnNeverNegative | fnInvalidRange},
	{OpTan, "tan", 1, 0, fnBuiltin | fnAngleIn},
	{OpTanh, "tanh", 1, 0, fnBuiltin},
	{OpTrunc, "trunc", 1, 0, fnBuiltin | fnAlwaysInteger},

	{OpImmed, "push", 0, 1, 0},
	{OpJump, "jump", 0, 1, 0},
	{OpNeg, "neg", 1, 0, 0},
	{OpAdd, "add", 2, 0, fnCommutative},
	{OpSub, "sub", 2, 0, 0},
	{OpMul, "mul", 2, 0, fnCommutative},
	{OpDiv, "div", 2, 0, 0},
	{OpMod, "mod", 2, 0, 0},
	{OpEqual, "cmp_eq", 2, 0, fnCmp | fnCommutative},
	{OpNEqual, "cmp_ne", 2, 0, fnCmp | fnCommutative},
	{OpLess, "cmp_lt", 2, 0, fnCmp},
	{OpLessOrEq, "cmp_le", 2, 0, fnCmp},
	{OpGreater, "cmp_gt", 2, 0, fnCmp},
	{OpGreaterOrEq, "cmp_ge", 2, 0, fnCmp},
	{OpNot, "not", 1, 0, fnLogic},
	{OpAnd, "and", 2, 0, fnLogic | fnCommutative},
	{OpOr, "or", 2, 0, fnLogic | fnCommutative},
	{OpNotNot, "notnot", 1, 0, fnLogic},
	{OpDeg, "deg", 1, 0, 0},
	{OpRad, "rad", 1, 0, 0},
	{OpFCall, "fcall", -1, 1, 0},
	{OpPCall, "pcall", -1, 1, 0},
	{OpFetch, "fetch", 0, 1, 0},
	{OpPopNMov, "popnmov", 0, 2, 0},
	{OpLog2by, "log2by", 2, 0, fnInvalidRange},
	{OpSinCos, "sincos", 1, 0, 0},
	{OpAbsNot, "abs_not", 1, 0, fnLogic},
	{OpAbsNotNot, "abs_notnot", 1, 0, fnLogic},
	{OpAbsAnd, "abs_and", 2, 0, fnLogic | fnCommutative},
	{OpAbsOr, "abs_or", 2, 0, fnLogic | fnCommutative},
	{OpAbsIf, "abs_if", 1, 1, 0},
	{OpDup, "dup", 0, 0, 0},
	{OpInv, "inv", 1, 0, 0},
	{OpSqr, "sqr", 1, 0, fnNeverNegative},
	{OpRSqrt, "rsqrt", 1, 0, fnNeverNegative | fnInvalidRange},
	{OpVar, "var", 0, 1, 0},
}

// Built-in function opcodes, sorted by name.
var functions []Opcode

func init() {
	for i := range info {
		if info[i].op != Opcode(i) {
			panic("opcode table out of order: " + info[i].name)
		}
		if info[i].flags&fnBuiltin != 0 {
			functions = append(functions, Opcode(i))
		}
	}
	sort.Slice(functions, func(i, j int) bool {
		return info[functions[i]].name < info[functions[j]].name
	})
}

// String returns the mnemonic of the opcode.
func (op Opcode) String() string {
	if op < opcodeCount {
		return info[op].name
	}
	return "???"
}

// Params returns the number of stack values consumed by the opcode, or -1
// if it depends on the instruction's operand or on the program.
func (op Opcode) Params() int {
	if op == OpIf || op == OpAbsIf {
		return 1
	}
	return int(info[op].params)
}

// FuncParams returns the number of parameters a built-in function takes in
// an expression. The if function takes three; eval takes numVars.
func (op Opcode) FuncParams(numVars int) int {
	switch op {
	case OpIf:
		return 3
	case OpEval:
		return numVars
	}
	return int(info[op].params)
}

// Operands returns the number of inline operand words following the opcode
// in a program.
func (op Opcode) Operands() int {
	return int(info[op].operands)
}

// IsFunction returns true if the opcode is a built-in function that may be
// called by name.
func (op Opcode) IsFunction() bool {
	return info[op].flags&fnBuiltin != 0
}

// AngleIn returns true if the function argument is an angle.
func (op Opcode) AngleIn() bool { return info[op].flags&fnAngleIn != 0 }

// AngleOut returns true if the function result is an angle.
func (op Opcode) AngleOut() bool { return info[op].flags&fnAngleOut != 0 }

// NeverNegative returns true if the operation never produces a negative
// value.
func (op Opcode) NeverNegative() bool { return info[op].flags&fnNeverNegative != 0 }

// AlwaysInteger returns true if the operation always produces an integer.
func (op Opcode) AlwaysInteger() bool { return info[op].flags&fnAlwaysInteger != 0 }

// HasInvalidRange returns true if some arguments of the operation produce an
// evaluation error.
func (op Opcode) HasInvalidRange() bool { return info[op].flags&fnInvalidRange != 0 }

// IsComparison returns true for the six comparison operators.
func (op Opcode) IsComparison() bool { return info[op].flags&fnComparison != 0 }

// IsLogical returns true if the operation always produces 0 or 1.
func (op Opcode) IsLogical() bool { return info[op].flags&fnLogical != 0 }

// IsCommutative returns true if the operation's parameters may be
// reordered.
func (op Opcode) IsCommutative() bool { return info[op].flags&fnCommutative != 0 }

// LookupFunction returns the built-in function with the given name.
func LookupFunction(name string) (Opcode, bool) {
	i := sort.Search(len(functions), func(i int) bool {
		return info[functions[i]].name >= name
	})
	if i < len(functions) && info[functions[i]].name == name {
		return functions[i], true
	}
	return 0, false
}

// Functions returns the names of all built-in functions in sorted order.
func Functions() []string {
	names := make([]string, len(functions))
	for i, op := range functions {
		names[i] = info[op].name
	}
	return names
}
