// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fparser

import (
	"io"

	"github.com/beevik/fparser/disasm"
)

// PrintByteCode writes a disassembly of the current function to w. If
// showExpression is true, each instruction is annotated with the
// expression it leaves on top of the stack.
func (p *Parser) PrintByteCode(w io.Writer, showExpression bool) {
	d := p.d
	if d.prog == nil {
		return
	}
	names := &disasm.Names{
		Vars:  d.vars,
		Funcs: d.funcNames,
		Subs:  d.subNames,
	}
	disasm.Fprint(w, d.prog, names, showExpression)
}
