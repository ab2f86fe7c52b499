// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package optimize rewrites expression trees into cheaper equivalent forms.
//
// Optimization runs a sequence of passes. Each pass applies one rule
// grammar, together with constant folding, bottom-up until the tree stops
// changing. The grammars are read from grammar.txt at startup.
package optimize

import (
	"github.com/apex/log"

	"github.com/beevik/fparser/tree"
	"github.com/beevik/fparser/vm"
)

// MaxRewrites bounds the number of rewrites a single pass may perform.
const MaxRewrites = 100000

// Options controls which grammars the optimizer applies.
type Options struct {
	ShortcutLogical   bool          // rewrite & and | as conditional jumps
	IgnoreSideEffects bool          // fold if(c,x,x) into x
	Epsilon           float64       // comparison tolerance used when folding
	Logger            log.Interface // pass statistics are logged at debug level
}

// An Optimizer applies rewrite passes to expression trees.
type Optimizer struct {
	opts   Options
	passes []*Grammar
	log    log.Interface
}

// New creates an optimizer.
func New(opts Options) *Optimizer {
	o := &Optimizer{opts: opts, log: opts.Logger}
	if o.log == nil {
		o.log = log.Log
	}

	names := []string{"round1", "round2", "round3", "round4"}
	if opts.ShortcutLogical {
		names = append(names, "shortcut_logical")
	} else {
		names = append(names, "nonshortcut_logical")
	}
	if opts.IgnoreSideEffects {
		names = append(names, "ignore_if_sideeffects")
	}
	names = append(names, "abs_logical")

	for _, name := range names {
		o.passes = append(o.passes, builtinGrammars[name])
	}
	return o
}

// Passes returns the names of the grammars applied, in order.
func (o *Optimizer) Passes() []string {
	var names []string
	for _, g := range o.passes {
		names = append(names, g.Name)
	}
	return names
}

// pass holds the state of a single grammar application.
type pass struct {
	g        *Grammar
	f        folder
	m        matcher
	rewrites int
	log      log.Interface
}

// Apply optimizes the tree rooted at root and returns the new root. The
// input tree is not modified.
func (o *Optimizer) Apply(root *tree.Node) *tree.Node {
	r := newRanges()
	for _, g := range o.passes {
		p := &pass{
			g:   g,
			f:   folder{eps: o.opts.Epsilon, r: r},
			m:   matcher{r: r},
			log: o.log,
		}
		before := root.Size()
		root = p.apply(root)
		o.log.WithFields(log.Fields{
			"pass":     g.Name,
			"rewrites": p.rewrites,
			"before":   before,
			"after":    root.Size(),
		}).Debug("optimizer pass")
	}
	return root
}

func (p *pass) apply(n *tree.Node) *tree.Node {
	for {
		if n.StableUnder() == p.g.id || p.rewrites >= MaxRewrites {
			return n
		}

		var params []*tree.Node
		for i, c := range n.Params {
			d := p.apply(c)
			if d != c && params == nil {
				params = append([]*tree.Node(nil), n.Params...)
			}
			if params != nil {
				params[i] = d
			}
		}
		if params != nil {
			n = n.WithParams(params)
		}

		m := p.f.fold(n)
		if m != n && m.IsIdenticalTo(n) {
			m = n
		}
		if m == n {
			m = p.rewrite(n)
		}
		if m == n {
			n.MarkStable(p.g.id)
			return n
		}

		p.rewrites++
		if p.rewrites == MaxRewrites {
			p.log.WithField("pass", p.g.Name).Warn("optimizer rewrite limit reached")
		}
		n = m
	}
}

// rewrite applies the first grammar rule that matches n.
func (p *pass) rewrite(n *tree.Node) *tree.Node {
	if n.Op == vm.OpImmed || n.Op == vm.OpVar {
		return n
	}
	for _, r := range p.g.RulesFor(n.Op) {
		if b, used, ok := p.m.match(r, n); ok {
			m := rewrite(r, n, b, used)
			if !m.IsIdenticalTo(n) {
				return m
			}
		}
	}
	return n
}
