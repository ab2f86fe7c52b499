// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/apex/log"
	clihandler "github.com/apex/log/handlers/cli"
	"github.com/beevik/term"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/beevik/fparser"
	"github.com/beevik/fparser/config"
	"github.com/beevik/fparser/host"
	"github.com/beevik/fparser/vm"
)

const (
	configUsage   = "path to a YAML or TOML configuration file"
	degreesUsage  = "trigonometric functions use degrees"
	optimizeUsage = "optimize parsed functions"
	verboseUsage  = "print debug information to stderr"
	varsUsage     = "comma-separated variable list; deduced from the expression if omitted"
)

// options holds the global command-line flags.
type options struct {
	config   string
	degrees  bool
	optimize bool
	verbose  bool
}

func main() {
	log.SetHandler(clihandler.New(os.Stderr))

	app := newApp(os.Stdin, os.Stdout)
	if err := app.Run(os.Args); err != nil {
		exitOnError(err)
	}
}

func newApp(in io.Reader, out io.Writer) *cli.App {
	var opts options

	app := cli.NewApp()
	app.Name = "fparser"
	app.Usage = "parse, optimize and evaluate mathematical expressions"
	app.Writer = out
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "c, config", Usage: configUsage},
		cli.BoolFlag{Name: "d, degrees", Usage: degreesUsage},
		cli.BoolFlag{Name: "O, optimize", Usage: optimizeUsage},
		cli.BoolFlag{Name: "v, verbose", Usage: verboseUsage},
	}
	app.Before = func(ctx *cli.Context) error {
		opts = options{
			config:   ctx.String("config"),
			degrees:  ctx.Bool("degrees"),
			optimize: ctx.Bool("optimize"),
			verbose:  ctx.Bool("verbose"),
		}
		return nil
	}

	repl := func(ctx *cli.Context) error {
		return replCmd(ctx, &opts, in, out)
	}
	app.Action = repl
	app.Commands = []cli.Command{
		{
			Name:      "repl",
			Usage:     "Run the interactive calculator",
			ArgsUsage: "[script ...]",
			Action:    repl,
		},
		{
			Name:      "eval",
			Usage:     "Evaluate an expression",
			ArgsUsage: "EXPR [VALUE ...]",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "vars", Usage: varsUsage},
			},
			Action: func(ctx *cli.Context) error {
				return evalCmd(ctx, &opts, out)
			},
		},
		{
			Name:      "disasm",
			Usage:     "Print the byte code of an expression",
			ArgsUsage: "EXPR",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "vars", Usage: varsUsage},
				cli.BoolFlag{Name: "x, expressions", Usage: "annotate instructions with expressions"},
			},
			Action: func(ctx *cli.Context) error {
				return disasmCmd(ctx, &opts, out)
			},
		},
	}
	return app
}

// setup loads the configuration selected by the flags and applies the
// logging settings.
func setup(opts *options) (*config.Config, error) {
	cfg := &config.Config{}
	if opts.config != "" {
		var err error
		if cfg, err = config.Load(opts.config); err != nil {
			return nil, err
		}
	}
	cfg.Degrees = cfg.Degrees || opts.degrees
	cfg.Optimize = cfg.Optimize || opts.optimize

	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	if opts.verbose {
		level = log.DebugLevel
	}
	log.SetLevel(level)
	return cfg, nil
}

func replCmd(ctx *cli.Context, opts *options, in io.Reader, out io.Writer) error {
	cfg, err := setup(opts)
	if err != nil {
		return err
	}
	h, err := host.New(cfg, log.Log)
	if err != nil {
		return err
	}

	// Run commands contained in command-line files.
	for _, filename := range ctx.Args() {
		file, err := os.Open(filename)
		if err != nil {
			return errors.Wrap(err, "could not open script")
		}
		h.RunCommands(file, out, false)
		file.Close()
	}

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		h.RunInteractive(out)
		return nil
	}
	h.RunCommands(in, out, false)
	return nil
}

// compile parses the expression named by the first argument of ctx.
func compile(ctx *cli.Context, opts *options) (*fparser.Parser, error) {
	cfg, err := setup(opts)
	if err != nil {
		return nil, err
	}
	if !ctx.Args().Present() {
		return nil, errors.New("missing expression")
	}

	p := fparser.New(cfg.Options()...)
	if err := cfg.Apply(p); err != nil {
		return nil, err
	}

	expr := ctx.Args().First()
	var off int
	if vars := ctx.String("vars"); vars != "" {
		off = p.Parse(expr, vars, cfg.Degrees)
	} else {
		off, _ = p.ParseAndDeduceVariables(expr, cfg.Degrees)
	}
	if off >= 0 {
		return nil, errors.Wrapf(p.ParseErr(), "'%s'", expr)
	}
	if cfg.Optimize {
		p.Optimize()
	}
	return p, nil
}

func evalCmd(ctx *cli.Context, opts *options, out io.Writer) error {
	p, err := compile(ctx, opts)
	if err != nil {
		return err
	}

	var values []float64
	for _, a := range ctx.Args().Tail() {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return errors.Errorf("invalid value '%s'", a)
		}
		values = append(values, v)
	}
	if n := len(p.Variables()); len(values) != n {
		return errors.Errorf("expected %d values for variables %s, got %d",
			n, strings.Join(p.Variables(), ", "), len(values))
	}

	v := p.Eval(values)
	if code := p.EvalError(); code != fparser.EvalOK {
		return errors.Wrap(vm.Error(code), "evaluation failed")
	}
	fmt.Fprintln(out, strconv.FormatFloat(v, 'g', -1, 64))
	return nil
}

func disasmCmd(ctx *cli.Context, opts *options, out io.Writer) error {
	p, err := compile(ctx, opts)
	if err != nil {
		return err
	}
	p.PrintByteCode(out, ctx.Bool("expressions"))
	return nil
}

func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	os.Exit(1)
}
