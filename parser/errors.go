// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package parser

import "fmt"

// ErrorType categorizes a parse error.
type ErrorType int

// All parse error types.
const (
	SyntaxError ErrorType = iota
	MismatchedParenth
	MissingParenth
	EmptyParenth
	ExpectOperator
	OutOfMemory
	UnexpectedError
	InvalidVars
	IllegalParamsAmount
	PrematureEOS
	ExpectParenthFunc
	UnknownIdentifier
	NoFunctionParsedYet
	NoError
)

var errorMessages = []string{
	"Syntax error",
	"Mismatched parenthesis",
	"Missing ')'",
	"Empty parentheses",
	"Syntax error: Operator expected",
	"Not enough memory",
	"Unexpected internal error",
	"Syntax error in variable list",
	"Illegal number of parameters to function",
	"Syntax error: Premature end of string",
	"Syntax error: Expecting ( after function",
	"Syntax error: Unknown identifier",
	"(No function has been parsed yet)",
	"",
}

// String returns the message describing the error type.
func (t ErrorType) String() string {
	if t >= 0 && int(t) < len(errorMessages) {
		return errorMessages[t]
	}
	return "unknown error"
}

// Error is a parse error located at a byte offset of the expression.
type Error struct {
	Type   ErrorType
	Offset int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (at offset %d)", e.Type, e.Offset)
}

func errorAt(t ErrorType, offset int) *Error {
	return &Error{Type: t, Offset: offset}
}

// Error selected when a comma was expected but not found.
func noCommaError(tok token) *Error {
	if tok.Type == tokenRParen {
		return errorAt(IllegalParamsAmount, tok.Pos)
	}
	return errorAt(SyntaxError, tok.Pos)
}

// Error selected when a closing parenthesis was expected but not found.
func noParenthError(tok token) *Error {
	if tok.Type == tokenComma {
		return errorAt(IllegalParamsAmount, tok.Pos)
	}
	return errorAt(MissingParenth, tok.Pos)
}
