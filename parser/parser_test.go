// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package parser

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testSymbols() *Symbols {
	s := NewSymbols()
	s.Define("pi", Symbol{Kind: KindConstant, Value: 3.14159})
	s.Define("e", Symbol{Kind: KindConstant, Value: 2.718281828459045})
	s.Define("cm", Symbol{Kind: KindUnit, Value: 0.01})
	s.Define("f", Symbol{Kind: KindFunction, Index: 0, Params: 2})
	s.Define("g", Symbol{Kind: KindParserFunction, Index: 0, Params: 1})
	s.Define("h", Symbol{Kind: KindFunction, Index: 1, Params: 0})
	return s
}

func expectTree(t *testing.T, expr, vars, exp string) {
	t.Helper()
	r, err := Parse(expr, vars, testSymbols(), Config{})
	if err != nil {
		t.Errorf("Parse of '%s' failed: %v", expr, err)
		return
	}
	if got := r.Root.String(); got != exp {
		t.Errorf("Tree for '%s' incorrect.\n exp: %s\n got: %s", expr, exp, got)
	}
}

func expectParseError(t *testing.T, expr, vars string, typ ErrorType, offset int) {
	t.Helper()
	_, err := Parse(expr, vars, testSymbols(), Config{})
	if err == nil {
		t.Errorf("Parse of '%s' succeeded unexpectedly", expr)
		return
	}
	perr := err.(*Error)
	if perr.Type != typ || perr.Offset != offset {
		t.Errorf("Error for '%s' incorrect. exp: %v@%d, got: %v@%d",
			expr, typ, offset, perr.Type, perr.Offset)
	}
}

func TestPrecedence(t *testing.T) {
	expectTree(t, "x+y*2", "x,y", "add(x0, mul(x1, 2))")
	expectTree(t, "x-y-1", "x,y", "sub(sub(x0, x1), 1)")
	expectTree(t, "-x^2", "x", "neg(pow(x0, 2))")
	expectTree(t, "x^y^2", "x,y", "pow(x0, pow(x1, 2))")
	expectTree(t, "x^-1", "x", "pow(x0, -1)")
	expectTree(t, "x<y & y<=2 | !x", "x,y",
		"or(and(cmp_lt(x0, x1), cmp_le(x1, 2)), not(x0))")
	expectTree(t, "x = y != 1", "x,y", "cmp_ne(cmp_eq(x0, x1), 1)")
	expectTree(t, "x%3/y", "x,y", "div(mod(x0, 3), x1)")
	expectTree(t, "--x", "x", "neg(neg(x0))")
}

func TestComparisonTokens(t *testing.T) {
	var tests = []struct {
		expr string
		exp  []tokenType
	}{
		{"!", []tokenType{tokenNot}},
		{"!=", []tokenType{tokenNe}},
		{"<", []tokenType{tokenLt}},
		{"<=", []tokenType{tokenLe}},
		{">", []tokenType{tokenGt}},
		{">=", []tokenType{tokenGe}},
		{"x<!y", []tokenType{tokenIdentifier, tokenLt, tokenNot, tokenIdentifier}},
		{"x> =y", []tokenType{tokenIdentifier, tokenGt, tokenEq, tokenIdentifier}},
	}

	for _, test := range tests {
		l := &lexer{expr: test.expr}
		var got []tokenType
		for tok := l.next(); tok.Type != tokenEnd; tok = l.next() {
			got = append(got, tok.Type)
		}
		if diff := cmp.Diff(test.exp, got); diff != "" {
			t.Errorf("Tokens for '%s' incorrect (-exp +got):\n%s", test.expr, diff)
		}
	}
}

func TestElements(t *testing.T) {
	expectTree(t, "1.5e3 + .25 + 2.", "", "add(add(1500, 0.25), 2)")
	expectTree(t, "0x1F + 0x1.8p1", "", "add(31, 3)")
	expectTree(t, "pi*x", "x", "mul(3.14159, x0)")
	expectTree(t, "5cm", "", "mul(5, 0.01)")
	expectTree(t, "(x+1)cm^2", "x", "pow(mul(add(x0, 1), 0.01), 2)")
	expectTree(t, "e^x + 2^x", "x", "add(exp(x0), exp2(x0))")
	expectTree(t, "f(x, 1) + g(x) + h()", "x", "add(add(fcall0(x0, 1), pcall0(x0)), fcall1())")
	expectTree(t, "if(x>0, sin(x), atan2(x, 1))", "x",
		"if(cmp_gt(x0, 0), sin(x0), atan2(x0, 1))")
	expectTree(t, "eval(x-1, y)", "x,y", "eval(sub(x0, 1), x1)")
	expectTree(t, "\u00a0x\u3000+\ty\n", "x,y", "add(x0, x1)")
	expectTree(t, "ä+1", "ä", "add(x0, 1)")
}

func TestDegrees(t *testing.T) {
	r, err := Parse("sin(x) + acos(x) + sinh(x)", "x", testSymbols(), Config{Degrees: true})
	if err != nil {
		t.Fatal(err)
	}
	exp := "add(add(sin(rad(x0)), deg(acos(x0))), sinh(x0))"
	if got := r.Root.String(); got != exp {
		t.Errorf("Degrees tree incorrect.\n exp: %s\n got: %s", exp, got)
	}
}

func TestParseErrors(t *testing.T) {
	expectParseError(t, "x+z", "x", UnknownIdentifier, 2)
	expectParseError(t, "x+", "x", PrematureEOS, 2)
	expectParseError(t, "x+$", "x", SyntaxError, 2)
	expectParseError(t, "x)", "x", ExpectOperator, 1)
	expectParseError(t, ")", "x", MismatchedParenth, 0)
	expectParseError(t, "(x", "x", MissingParenth, 2)
	expectParseError(t, "()", "", EmptyParenth, 1)
	expectParseError(t, "x y", "x,y", ExpectOperator, 2)
	expectParseError(t, "x!y", "x,y", ExpectOperator, 1)
	expectParseError(t, "sin x", "x", ExpectParenthFunc, 4)
	expectParseError(t, "sin()", "x", IllegalParamsAmount, 4)
	expectParseError(t, "sin(x,x)", "x", IllegalParamsAmount, 5)
	expectParseError(t, "atan2(x)", "x", IllegalParamsAmount, 7)
	expectParseError(t, "atan2(x;x)", "x", SyntaxError, 7)
	expectParseError(t, "sin(x;", "x", MissingParenth, 5)
	expectParseError(t, "h(1)", "", MissingParenth, 2)
	expectParseError(t, "cm", "", SyntaxError, 0)
	expectParseError(t, "0x", "", SyntaxError, 0)
	expectParseError(t, "if(x,1)", "x", IllegalParamsAmount, 6)
	expectParseError(t, "x", "x,,y", InvalidVars, 1)
	expectParseError(t, "x", "x,x", InvalidVars, 1)
	expectParseError(t, "x", "sin", InvalidVars, 1)
	expectParseError(t, "x", "pi", InvalidVars, 1)
	expectParseError(t, "x", "1x", InvalidVars, 1)
}

func TestDelimiter(t *testing.T) {
	r, err := Parse("x+1 } rest", "x", testSymbols(), Config{Delimiter: '}'})
	if err != nil {
		t.Fatal(err)
	}
	if r.End != 4 {
		t.Errorf("Delimiter offset incorrect. exp: 4, got: %d", r.End)
	}

	r, err = Parse("x+1", "x", testSymbols(), Config{Delimiter: '}'})
	if err != nil || r.End != -1 {
		t.Errorf("Parse without delimiter incorrect: %v, %v", r, err)
	}
}

func TestDeduce(t *testing.T) {
	r, err := ParseDeduce("b*sin(a) + b + pi + c", testSymbols(), Config{})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"b", "a", "c"}, r.Vars); diff != "" {
		t.Errorf("Deduced variables incorrect (-exp +got):\n%s", diff)
	}

	_, err = ParseDeduce("x + cm", testSymbols(), Config{})
	if err == nil || err.(*Error).Type != SyntaxError {
		t.Errorf("Expected syntax error, got %v", err)
	}
}

func TestParseVariables(t *testing.T) {
	names, ok := ParseVariables(" x , y_1,\tz ")
	if !ok {
		t.Fatal("ParseVariables failed")
	}
	if diff := cmp.Diff([]string{"x", "y_1", "z"}, names); diff != "" {
		t.Errorf("Variables incorrect (-exp +got):\n%s", diff)
	}
	if names, ok := ParseVariables(""); !ok || len(names) != 0 {
		t.Error("Empty variable list rejected")
	}
	for _, bad := range []string{"x,", "x y", "cos", "a,a", "2b"} {
		if _, ok := ParseVariables(bad); ok {
			t.Errorf("ParseVariables accepted '%s'", bad)
		}
	}
}

func TestSymbols(t *testing.T) {
	s := testSymbols()
	if s.Define("sqrt", Symbol{Kind: KindConstant}) {
		t.Error("Defined a built-in function name")
	}
	if s.Define("pi", Symbol{Kind: KindUnit, Value: 2}) {
		t.Error("Redefined a constant as a unit")
	}
	if !s.Define("pi", Symbol{Kind: KindConstant, Value: 3}) {
		t.Error("Failed to redefine a constant")
	}
	if s.Define("a b", Symbol{Kind: KindConstant}) {
		t.Error("Defined an invalid name")
	}

	c := s.Clone()
	if !c.Remove("pi") || c.Remove("pi") {
		t.Error("Remove incorrect")
	}
	if _, ok := s.Lookup("pi"); !ok {
		t.Error("Removing from a clone affected the original")
	}
}
