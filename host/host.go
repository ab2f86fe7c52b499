// Copyright 2018 Brett Vickers.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package host implements an interactive calculator built on the
// expression parser.
//
// Within the host it is possible to parse functions, evaluate them for
// arbitrary variable values, optimize them, inspect their byte code, and
// define constants, units and functions usable in later expressions.
package host

import (
	"bufio"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"

	"github.com/apex/log"
	"github.com/beevik/cmd"
	"github.com/beevik/prefixtree/v2"
	"github.com/peterh/liner"
	"github.com/pkg/errors"

	"github.com/beevik/fparser"
	"github.com/beevik/fparser/config"
	"github.com/beevik/fparser/parser"
	"github.com/beevik/fparser/vm"
)

var errQuit = errors.New("quit")

var functionTree = prefixtree.New[vm.Opcode]()

func init() {
	for _, name := range vm.Functions() {
		op, _ := vm.LookupFunction(name)
		functionTree.Add(name, op)
	}
}

// A Host is an interactive calculator holding a current function and a
// set of user-defined identifiers.
type Host struct {
	input       *bufio.Scanner
	output      *bufio.Writer
	interactive bool
	parser      *fparser.Parser
	vars        string
	settings    *settings
	log         log.Interface
	lastCmd     *cmd.Selection
}

// New creates a calculator host configured by cfg, which may be nil. Log
// entries are sent to l.
func New(cfg *config.Config, l log.Interface) (*Host, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if l == nil {
		l = log.Log
	}

	h := &Host{
		parser:   fparser.New(append(cfg.Options(), fparser.WithLogger(l))...),
		settings: newSettings(),
		log:      l,
	}
	h.settings.Degrees = cfg.Degrees
	h.settings.AutoOptimize = cfg.Optimize

	if err := cfg.Apply(h.parser); err != nil {
		return nil, errors.Wrap(err, "could not apply configuration")
	}
	return h, nil
}

// Parser returns the parser holding the current function.
func (h *Host) Parser() *fparser.Parser {
	return h.parser
}

// RunCommands accepts host commands from a reader and outputs the results
// to a writer. If the commands are interactive, a prompt is displayed while
// the host waits for the the next command to be entered.
func (h *Host) RunCommands(r io.Reader, w io.Writer, interactive bool) {
	h.input = bufio.NewScanner(r)
	h.output = bufio.NewWriter(w)
	h.interactive = interactive

	for {
		h.prompt()

		line, err := h.getLine()
		if err != nil {
			break
		}
		if h.execute(line) != nil {
			break
		}
	}
	h.flush()
}

// RunInteractive reads commands from the terminal with line editing,
// history and completion until the user quits.
func (h *Host) RunInteractive(w io.Writer) {
	h.output = bufio.NewWriter(w)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetCompleter(h.complete)

	for {
		line, err := ln.Prompt("> ")
		if err != nil {
			break
		}
		line = strings.TrimSpace(line)
		if line != "" {
			ln.AppendHistory(line)
		}
		if h.execute(line) != nil {
			break
		}
	}
	h.flush()
}

// execute runs a single command line. An empty line repeats the previous
// command. It returns an error when the host should stop.
func (h *Host) execute(line string) error {
	var c cmd.Selection
	if line != "" {
		var err error
		c, err = cmds.Lookup(line)
		switch {
		case err == cmd.ErrNotFound:
			h.println("Command not found.")
			return nil
		case err == cmd.ErrAmbiguous:
			h.println("Command is ambiguous.")
			return nil
		case err != nil:
			h.printf("ERROR: %v.\n", err)
			return nil
		}
	} else if h.lastCmd != nil {
		c = *h.lastCmd
	}

	if c.Command == nil {
		return nil
	}
	h.lastCmd = &c

	handler := c.Command.Data.(func(*Host, cmd.Selection) error)
	return handler(h, c)
}

// complete returns the completions of a partially typed line. The first
// word completes to a command name, later words to built-in functions and
// user-defined identifiers.
func (h *Host) complete(line string) []string {
	i := strings.LastIndexAny(line, " ,()+-*/%^&|!=<>")
	head, word := line[:i+1], line[i+1:]

	var names []string
	if strings.TrimSpace(head) == "" {
		for _, d := range commands {
			names = append(names, d.Name)
		}
	} else {
		names = append(vm.Functions(), h.parser.Identifiers()...)
	}

	var matches []string
	for _, n := range names {
		if strings.HasPrefix(n, word) {
			matches = append(matches, head+n)
		}
	}
	return matches
}

func (h *Host) printf(format string, args ...interface{}) {
	fmt.Fprintf(h.output, format, args...)
	h.flush()
}

func (h *Host) println(args ...interface{}) {
	fmt.Fprintln(h.output, args...)
	h.flush()
}

func (h *Host) flush() {
	h.output.Flush()
}

func (h *Host) getLine() (string, error) {
	if h.input.Scan() {
		return strings.TrimSpace(h.input.Text()), nil
	}
	if h.input.Err() != nil {
		return "", h.input.Err()
	}
	return "", io.EOF
}

func (h *Host) prompt() {
	if h.interactive {
		h.printf("> ")
	}
}

func (h *Host) cmdHelp(c cmd.Selection) error {
	if len(c.Args) == 0 {
		h.println("Commands:")
		for _, d := range commands {
			h.printf("    %-15s  %s\n", d.Name, d.Brief)
		}
		return nil
	}

	s, err := cmds.Lookup(strings.Join(c.Args, " "))
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}
	d := describe(s.Command)
	if d == nil {
		return nil
	}
	if d.Usage != "" {
		h.printf("Syntax: %s\n\n", d.Usage)
	}
	switch {
	case d.Description != "":
		h.printf("Description:\n%s\n\n", indentWrap(3, d.Description))
	case d.Brief != "":
		h.printf("Description:\n%s.\n\n", indentWrap(3, d.Brief))
	}
	return nil
}

func describe(c *cmd.Command) *cmd.CommandDescriptor {
	for i := range commands {
		if commands[i].Name == c.Name {
			return &commands[i]
		}
	}
	return nil
}

func (h *Host) displayUsage(c *cmd.Command) {
	if d := describe(c); d != nil && d.Usage != "" {
		h.printf("Syntax: %s\n", d.Usage)
	} else {
		h.println("<no help text>")
	}
}

func (h *Host) cmdParse(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c.Command)
		return nil
	}
	h.parse(strings.Join(c.Args, " "))
	return nil
}

// parse makes expr the current function and reports whether it succeeded.
func (h *Host) parse(expr string) bool {
	off := h.parser.Parse(expr, h.vars, h.settings.Degrees)
	if off >= 0 {
		h.displayParseError(expr, off)
		return false
	}
	h.log.WithFields(log.Fields{
		"expr": expr,
		"vars": h.vars,
	}).Debug("parsed function")

	if h.settings.AutoOptimize {
		h.parser.Optimize()
	}
	h.printf("Parsed. Code size %d.\n", h.parser.Program().Len())
	return true
}

func (h *Host) displayParseError(expr string, off int) {
	h.printf("    %s\n", expr)
	if off <= len(expr) {
		h.printf("    %s^\n", strings.Repeat(" ", off))
	}
	h.printf("%s.\n", h.parser.ErrorMsg())
}

func (h *Host) cmdDeduce(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c.Command)
		return nil
	}

	expr := strings.Join(c.Args, " ")
	off, vars := h.parser.ParseAndDeduceVariables(expr, h.settings.Degrees)
	if off >= 0 {
		h.displayParseError(expr, off)
		return nil
	}
	h.vars = strings.Join(vars, ",")
	if h.settings.AutoOptimize {
		h.parser.Optimize()
	}
	h.printf("Variables: %s\n", strings.Join(vars, ", "))
	return nil
}

func (h *Host) cmdVars(c cmd.Selection) error {
	if len(c.Args) == 0 {
		vars := h.parser.Variables()
		if h.parser.ParseErrorType() != fparser.NoError {
			vars, _ = parser.ParseVariables(h.vars)
		}
		h.printf("Variables: %s\n", strings.Join(vars, ", "))
		return nil
	}

	list := strings.Join(c.Args, " ")
	if _, ok := parser.ParseVariables(list); !ok {
		h.printf("Invalid variable list '%s'.\n", list)
		return nil
	}
	h.vars = list
	h.println("Variables updated.")
	return nil
}

func (h *Host) cmdEval(c cmd.Selection) error {
	if h.parser.ParseErrorType() != fparser.NoError {
		h.println("No function has been parsed.")
		return nil
	}

	values, err := parseValues(c.Args)
	if err != nil {
		h.printf("%v.\n", err)
		return nil
	}

	v := h.parser.Eval(values)
	if code := h.parser.EvalError(); code != fparser.EvalOK {
		h.printf("Evaluation error: %v.\n", vm.Error(code))
		return nil
	}
	h.println(h.format(v))
	return nil
}

func (h *Host) format(v float64) string {
	return strconv.FormatFloat(v, 'g', h.settings.Precision, 64)
}

func (h *Host) cmdOptimize(c cmd.Selection) error {
	if h.parser.ParseErrorType() != fparser.NoError {
		h.println("No function has been parsed.")
		return nil
	}

	before := h.parser.Program().Len()
	h.parser.Optimize()
	after := h.parser.Program().Len()
	h.printf("Optimized. Code size %d -> %d.\n", before, after)
	return nil
}

func (h *Host) cmdDisasm(c cmd.Selection) error {
	if len(c.Args) > 0 && !h.parse(strings.Join(c.Args, " ")) {
		return nil
	}
	if h.parser.ParseErrorType() != fparser.NoError {
		h.println("No function has been parsed.")
		return nil
	}
	h.parser.PrintByteCode(h.output, h.settings.ShowExpression)
	h.flush()
	return nil
}

// evalConstant evaluates a constant expression using the identifiers
// defined so far.
func (h *Host) evalConstant(expr string) (float64, error) {
	p := h.parser.Clone()
	if off := p.Parse(expr, "", h.settings.Degrees); off >= 0 {
		return 0, errors.Wrapf(p.ParseErr(), "'%s'", expr)
	}
	v := p.Eval(nil)
	if code := p.EvalError(); code != fparser.EvalOK {
		return 0, errors.Wrapf(vm.Error(code), "'%s'", expr)
	}
	return v, nil
}

func (h *Host) cmdConst(c cmd.Selection) error {
	return h.define(c, "Constant", h.parser.AddConstant)
}

func (h *Host) cmdUnit(c cmd.Selection) error {
	return h.define(c, "Unit", h.parser.AddUnit)
}

func (h *Host) define(c cmd.Selection, kind string, add func(string, float64) bool) error {
	if len(c.Args) < 2 {
		h.displayUsage(c.Command)
		return nil
	}

	name := c.Args[0]
	v, err := h.evalConstant(strings.Join(c.Args[1:], " "))
	if err != nil {
		h.printf("%v.\n", err)
		return nil
	}
	if !add(name, v) {
		h.printf("%s '%s' could not be defined.\n", kind, name)
		return nil
	}
	h.printf("%s '%s' = %s.\n", kind, name, h.format(v))
	return nil
}

func (h *Host) cmdFunc(c cmd.Selection) error {
	if len(c.Args) < 3 {
		h.displayUsage(c.Command)
		return nil
	}

	name, vars, expr := c.Args[0], c.Args[1], strings.Join(c.Args[2:], " ")
	sub := h.parser.Clone()
	if off := sub.Parse(expr, vars, h.settings.Degrees); off >= 0 {
		h.printf("%s.\n", sub.ErrorMsg())
		return nil
	}
	if h.settings.AutoOptimize {
		sub.Optimize()
	}
	if !h.parser.AddParserFunction(name, sub) {
		h.printf("Function '%s' could not be defined.\n", name)
		return nil
	}
	h.log.WithFields(log.Fields{
		"name": name,
		"vars": vars,
		"expr": expr,
	}).Debug("defined function")
	h.printf("Function '%s' defined.\n", name)
	return nil
}

func (h *Host) cmdRemove(c cmd.Selection) error {
	if len(c.Args) != 1 {
		h.displayUsage(c.Command)
		return nil
	}
	if !h.parser.RemoveIdentifier(c.Args[0]) {
		h.printf("Identifier '%s' could not be removed.\n", c.Args[0])
		return nil
	}
	h.printf("Identifier '%s' removed.\n", c.Args[0])
	return nil
}

func (h *Host) cmdFunctions(c cmd.Selection) error {
	var prefix string
	if len(c.Args) > 0 {
		prefix = strings.ToLower(c.Args[0])
	}

	var ops []vm.Opcode
	if op, err := functionTree.FindValue(prefix); prefix != "" && err == nil {
		ops = append(ops, op)
	} else {
		for _, name := range vm.Functions() {
			if strings.HasPrefix(name, prefix) {
				op, _ := vm.LookupFunction(name)
				ops = append(ops, op)
			}
		}
	}

	if len(ops) == 0 {
		h.printf("No functions match '%s'.\n", prefix)
		return nil
	}
	for _, op := range ops {
		switch op {
		case vm.OpEval:
			h.printf("    %-8s %s\n", op, "<vars>")
		default:
			h.printf("    %-8s %d\n", op, op.FuncParams(0))
		}
	}
	return nil
}

func (h *Host) cmdQuit(c cmd.Selection) error {
	return errQuit
}

func (h *Host) cmdSet(c cmd.Selection) error {
	switch len(c.Args) {
	case 0:
		h.println("Settings:")
		h.settings.Display(h.output)
		h.flush()

	case 1:
		h.displayUsage(c.Command)

	default:
		key, value := strings.ToLower(c.Args[0]), strings.Join(c.Args[1:], " ")

		var err error
		switch h.settings.Kind(key) {
		case reflect.Invalid:
			err = errors.Errorf("Setting '%s' not found", key)
		case reflect.Bool:
			var v bool
			v, err = stringToBool(value)
			if err == nil {
				err = h.settings.Set(key, v)
			}
		default:
			var v int
			v, err = strconv.Atoi(value)
			if err == nil {
				err = h.settings.Set(key, v)
			}
		}

		if err == nil {
			h.log.WithField(h.settings.Name(key), value).Debug("setting updated")
			h.println("Setting updated.")
		} else {
			h.printf("%v\n", err)
		}
	}

	return nil
}
