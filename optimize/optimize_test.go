// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package optimize

import (
	"math"
	"strings"
	"testing"

	"github.com/apex/log"
	"github.com/apex/log/handlers/memory"
	"go.uber.org/multierr"

	"github.com/beevik/fparser/parser"
	"github.com/beevik/fparser/tree"
	"github.com/beevik/fparser/vm"
)

func parse(t *testing.T, expr string) *tree.Node {
	t.Helper()
	r, err := parser.Parse(expr, "x,y", parser.NewSymbols(), parser.Config{})
	if err != nil {
		t.Fatalf("Parse of '%s' failed: %v", expr, err)
	}
	return r.Root
}

func expectOptimized(t *testing.T, o *Optimizer, expr, exp string) {
	t.Helper()
	got := o.Apply(parse(t, expr)).String()
	if got != exp {
		t.Errorf("Optimized '%s' incorrect.\n exp: %s\n got: %s", expr, exp, got)
	}
}

func expectSame(t *testing.T, o *Optimizer, a, b string) {
	t.Helper()
	ta, tb := o.Apply(parse(t, a)), o.Apply(parse(t, b))
	if !ta.IsIdenticalTo(tb) {
		t.Errorf("Optimized '%s' and '%s' differ.\n %s\n %s", a, b, ta, tb)
	}
}

func TestConstantFolding(t *testing.T) {
	o := New(Options{})
	expectOptimized(t, o, "1+2*3", "7")
	expectOptimized(t, o, "sin(0)+cos(0)", "1")
	expectOptimized(t, o, "x*0", "0")
	expectOptimized(t, o, "x*1+0", "x0")
	expectOptimized(t, o, "x-x", "0")
	expectOptimized(t, o, "--x", "x0")
	expectOptimized(t, o, "if(1, x, y)", "x0")
	expectOptimized(t, o, "if(0, x, y)", "x1")
	expectOptimized(t, o, "x | 1", "1")
	expectOptimized(t, o, "x & 0", "0")
	expectOptimized(t, o, "floor(int(x))", "int(x0)")

	// Operations that would fail at run time stay in the tree.
	expectOptimized(t, o, "1/0", "pow(0, -1)")
	expectOptimized(t, o, "log(-1)", "log(-1)")
}

func TestAlgebraicRules(t *testing.T) {
	o := New(Options{})
	expectOptimized(t, o, "x*x*x", "pow(x0, 3)")
	expectOptimized(t, o, "x/x", "1")
	expectOptimized(t, o, "sqrt(x*x)", "abs(x0)")
	expectOptimized(t, o, "abs(x*x)", "pow(x0, 2)")
	expectOptimized(t, o, "log(exp(x))", "x0")
	expectOptimized(t, o, "sin(x)^2+cos(x)^2", "1")
	expectOptimized(t, o, "sin(x)/cos(x)", "tan(x0)")
	expectOptimized(t, o, "1/tan(x)", "cot(x0)")
	expectOptimized(t, o, "cos(-x)", "cos(x0)")
	expectOptimized(t, o, "x>y", "cmp_lt(x1, x0)")
	expectOptimized(t, o, "!!(x<y)", "cmp_lt(x0, x1)")
	expectOptimized(t, o, "!(x<y)", "cmp_le(x1, x0)")
	expectOptimized(t, o, "x = x", "1")
	expectOptimized(t, o, "x & !x", "0")

	expectSame(t, o, "x*y", "y*x")
	expectSame(t, o, "x+y+1", "1+(y+x)")
	expectSame(t, o, "x*3+x", "4*x")
	expectSame(t, o, "max(x, min(x, y))", "x")
}

func TestLogicalPasses(t *testing.T) {
	o := New(Options{})
	expectOptimized(t, o, "if(x<y, x, y)", "abs_if(cmp_lt(x0, x1), x0, x1)")
	expectOptimized(t, o, "if(x, y, y)", "if(x0, x1, x1)")
	expectOptimized(t, o, "if(x, 1, 0)", "notnot(x0)")
	expectOptimized(t, o, "x & 1", "notnot(x0)")

	o = New(Options{IgnoreSideEffects: true})
	expectOptimized(t, o, "if(x, y, y)", "x1")

	o = New(Options{ShortcutLogical: true})
	if n := o.Apply(parse(t, "x & y")); n.Op != vm.OpIf {
		t.Errorf("Shortcut logical root incorrect. exp: if, got: %s", n)
	}
}

func TestIdempotent(t *testing.T) {
	o := New(Options{})
	for _, expr := range []string{
		"x*x*x + sin(x)^2 + cos(x)^2",
		"if(x<y & y<3, x/y, -x)",
		"log(x*x) + exp(-y) - 2^x",
	} {
		once := o.Apply(parse(t, expr))
		twice := o.Apply(once)
		if !once.IsIdenticalTo(twice) {
			t.Errorf("Optimizing '%s' twice changed the tree.\n %s\n %s", expr, once, twice)
		}
	}
}

func TestPasses(t *testing.T) {
	o := New(Options{ShortcutLogical: true, IgnoreSideEffects: true})
	exp := []string{"round1", "round2", "round3", "round4",
		"shortcut_logical", "ignore_if_sideeffects", "abs_logical"}
	got := o.Passes()
	if len(got) != len(exp) {
		t.Fatalf("Passes incorrect. exp: %v, got: %v", exp, got)
	}
	for i := range exp {
		if got[i] != exp[i] {
			t.Errorf("Pass %d incorrect. exp: %s, got: %s", i, exp[i], got[i])
		}
	}
}

func TestLoadGrammars(t *testing.T) {
	g, err := LoadGrammars(`
# comment
[test]
(Mul {x x}) : [(Pow [x 2])]
(Not [(Not [x@L])]) -> x
`)
	if err != nil {
		t.Fatal(err)
	}
	if len(g) != 1 || g[0].Name != "test" || len(g[0].Rules) != 2 {
		t.Fatalf("Loaded grammar incorrect: %+v", g)
	}
	if r := g[0].RulesFor(vm.OpNot); len(r) != 1 || r[0].Kind != ProduceNewTree {
		t.Errorf("Rules for 'not' incorrect: %+v", r)
	}

	_, err = LoadGrammars(`
(Add [x]) -> x
[bad]
(Foo [x]) -> x
(Add {x}) -> y
(Add [...r]) -> 0
(Add <x>) -> (Mul {x})
`)
	if n := len(multierr.Errors(err)); n != 5 {
		t.Errorf("Error count incorrect. exp: 5, got: %d (%v)", n, err)
	}
}

func TestRanges(t *testing.T) {
	r := newRanges()
	cases := []struct {
		expr   string
		lo, hi float64
	}{
		{"sin(x)", -1, 1},
		{"sin(atan(abs(x)))", 0, 1},
		{"abs(x)+1", 1, inf},
		{"x<y", 0, 1},
		{"x^2", 0, inf},
		{"atan(abs(x))", 0, 1.5707963267948966},
		{"if(x, 2, -3)", -3, 2},
	}
	for _, c := range cases {
		got := r.of(parse(t, c.expr))
		if got.lo != c.lo || got.hi != c.hi {
			t.Errorf("Range of '%s' incorrect. exp: [%v, %v], got: [%v, %v]",
				c.expr, c.lo, c.hi, got.lo, got.hi)
		}
	}
}

var inf = unknown.hi

func TestConvergence(t *testing.T) {
	for _, expr := range []string{
		"x+1",
		"x-y",
		"x*2",
		"2*x+3*x",
		"x*2 + y*y",
		"x+1 + !!(y<2)",
		"(x+1)*(y-2)/3",
		"min(x, 2, 3) + max(1, y)",
		"if(x<1, x+2, y*3) - 4",
		"x & 1 | y",
	} {
		h := memory.New()
		o := New(Options{Logger: &log.Logger{Handler: h, Level: log.DebugLevel}})
		o.Apply(parse(t, expr))
		for _, e := range h.Entries {
			if e.Level != log.DebugLevel {
				t.Errorf("Optimizing '%s' logged '%s'", expr, e.Message)
				continue
			}
			if n, _ := e.Fields.Get("rewrites").(int); n >= 100 {
				t.Errorf("Pass %v of '%s' did not converge. rewrites: %d",
					e.Fields.Get("pass"), expr, n)
			}
		}
	}
}

func TestSiblingRules(t *testing.T) {
	o := New(Options{})
	if got := o.Apply(parse(t, "x*2 + y*y")).String(); !strings.Contains(got, "pow(x1, 2)") {
		t.Errorf("Square not rewritten. got: %s", got)
	}
	if got := o.Apply(parse(t, "x+1 + !!(y<2)")).String(); strings.Contains(got, "not(") {
		t.Errorf("Double negation not removed. got: %s", got)
	}
}

func TestGuardedBranches(t *testing.T) {
	o := New(Options{})

	// A branch that may fail stays conditional.
	for _, expr := range []string{
		"if(x>0, log(x)>0, 0)",
		"if(x>0, 1, y/x>1)",
		"if(x>0, 0, sqrt(x)<1)",
	} {
		n := o.Apply(parse(t, expr))
		if n.Op != vm.OpIf && n.Op != vm.OpAbsIf {
			t.Errorf("Guard of '%s' removed. got: %s", expr, n)
		}
	}

	// A branch that cannot fail becomes a logical operation.
	n := o.Apply(parse(t, "if(x>0, y>0, 0)"))
	if n.Op != vm.OpAnd && n.Op != vm.OpAbsAnd {
		t.Errorf("Logical branch not rewritten. got: %s", n)
	}
}

func TestSinRange(t *testing.T) {
	cases := []struct {
		in     interval
		lo, hi float64
	}{
		{interval{0, math.Pi}, 0, 1},
		{interval{-math.Pi / 2, math.Pi / 2}, -1, 1},
		{interval{0.1, 0.2}, math.Sin(0.1), math.Sin(0.2)},
		{interval{3, 9}, -1, 1},
		{interval{0, 10}, -1, 1},
		{point(1e17), -1, 1},
		{interval{1e17, 1e17 + 3}, -1, 1},
		{point(-2e17), -1, 1},
		{point(1e19), -1, 1},
	}
	for _, c := range cases {
		got := sinRange(c.in)
		if got.lo != c.lo || got.hi != c.hi {
			t.Errorf("sin range of [%v, %v] incorrect. exp: [%v, %v], got: [%v, %v]",
				c.in.lo, c.in.hi, c.lo, c.hi, got.lo, got.hi)
		}
	}

	// Points within resolvable range still bound tightly.
	r := sinRange(point(1e6))
	if r.lo != r.hi || r.lo != math.Sin(1e6) {
		t.Errorf("sin range of 1e6 incorrect. got: [%v, %v]", r.lo, r.hi)
	}
}
