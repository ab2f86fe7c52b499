// Copyright 2014 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package disasm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/beevik/fparser/vm"
)

func op(o vm.Opcode) uint32 { return uint32(o) }

func TestDisassemble(t *testing.T) {
	p := &vm.Program{
		Code: []uint32{
			op(vm.OpVar), 0,
			op(vm.OpImmed), 0,
			op(vm.OpMul),
			op(vm.OpFetch), 0,
			op(vm.OpPopNMov), 0, 1,
		},
		Immed: []float64{2.5},
	}
	names := &Names{Vars: []string{"x"}}

	cases := []struct {
		ip   int
		line string
		next int
	}{
		{0, "var        x", 2},
		{2, "push       2.5", 4},
		{4, "mul", 5},
		{5, "fetch      [0]", 7},
		{7, "popnmov    [0], [1]", 10},
	}
	for _, c := range cases {
		line, next := Disassemble(p, c.ip, names)
		if line != c.line || next != c.next {
			t.Errorf("Disassemble at %d incorrect. exp: '%s' %d, got: '%s' %d",
				c.ip, c.line, c.next, line, next)
		}
	}
}

func TestExpressions(t *testing.T) {
	// if(x < 1, sin(x), y*2)
	p := &vm.Program{
		Code: []uint32{
			op(vm.OpVar), 0,
			op(vm.OpImmed), 0,
			op(vm.OpLess),
			op(vm.OpIf), 12,
			op(vm.OpVar), 0,
			op(vm.OpSin),
			op(vm.OpJump), 17,
			op(vm.OpVar), 1,
			op(vm.OpImmed), 1,
			op(vm.OpMul),
		},
		Immed: []float64{1, 2},
	}

	var buf bytes.Buffer
	Fprint(&buf, p, &Names{Vars: []string{"x", "y"}}, true)
	out := buf.String()

	for _, exp := range []string{
		"0000  var        x",
		"; (x<1)",
		"0005  if         $000C",
		"; sin(x)",
		"; (y*2)",
		"= if((x<1), sin(x), (y*2))",
	} {
		if !strings.Contains(out, exp) {
			t.Errorf("Listing is missing '%s':\n%s", exp, out)
		}
	}
}

func TestSinCosListing(t *testing.T) {
	p := &vm.Program{
		Code: []uint32{
			op(vm.OpVar), 0,
			op(vm.OpSinCos),
			op(vm.OpFetch), 0,
			op(vm.OpFetch), 1,
			op(vm.OpAdd),
			op(vm.OpPopNMov), 0, 2,
		},
	}
	var buf bytes.Buffer
	Fprint(&buf, p, nil, true)
	if out := buf.String(); !strings.Contains(out, "= (sin(x0)+cos(x0))") {
		t.Errorf("SinCos listing incorrect:\n%s", out)
	}
}
