// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads calculator settings and user-defined identifiers
// from YAML or TOML files.
package config

import (
	"io/ioutil"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/apex/log"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	yaml "gopkg.in/yaml.v2"

	"github.com/beevik/fparser"
	"github.com/beevik/fparser/parser"
)

var (
	ErrUnknownFormat = errors.New("unknown configuration format")
)

// Supported file formats.
const (
	YAML = "yaml"
	TOML = "toml"
)

// Config holds the settings of a calculator session.
type Config struct {
	Degrees           bool                `mapstructure:"degrees"`
	Optimize          bool                `mapstructure:"optimize"`
	ThreadSafe        bool                `mapstructure:"thread-safe"`
	ShortcutLogical   bool                `mapstructure:"shortcut-logical"`
	IgnoreSideEffects bool                `mapstructure:"ignore-side-effects"`
	Epsilon           float64             `mapstructure:"epsilon"`
	LogLevel          string              `mapstructure:"log-level"`
	Constants         map[string]float64  `mapstructure:"constants"`
	Units             map[string]float64  `mapstructure:"units"`
	Functions         map[string]Function `mapstructure:"functions"`
}

// Function is a user-defined function compiled into a sub-parser.
type Function struct {
	Vars string `mapstructure:"vars"`
	Expr string `mapstructure:"expr"`
}

// Load reads the configuration file at path. The format is chosen by the
// file extension.
func Load(path string) (*Config, error) {
	var format string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = YAML
	case ".toml":
		format = TOML
	default:
		return nil, errors.Wrapf(ErrUnknownFormat, "%s", path)
	}

	log.WithField("path", path).Debug("loading configuration")
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not read configuration")
	}
	c, err := Decode(data, format)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return c, nil
}

// Decode parses configuration data in the given format and validates it.
func Decode(data []byte, format string) (*Config, error) {
	var raw map[string]interface{}
	switch format {
	case YAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, errors.Wrap(err, "invalid yaml")
		}
	case TOML:
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, errors.Wrap(err, "invalid toml")
		}
	default:
		return nil, errors.Wrapf(ErrUnknownFormat, "%q", format)
	}

	c := &Config{}
	d, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		Result:      c,
	})
	if err != nil {
		return nil, err
	}
	if err := d.Decode(raw); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks every setting and reports all problems found.
func (c *Config) Validate() error {
	var err error
	if c.Epsilon < 0 {
		err = multierr.Append(err, errors.Errorf("epsilon %g is negative", c.Epsilon))
	}
	if _, lerr := c.Level(); lerr != nil {
		err = multierr.Append(err, lerr)
	}

	names := make(map[string]string)
	check := func(kind, name string) {
		if !parser.IsValidName(name) {
			err = multierr.Append(err, errors.Errorf("%s name %q is invalid", kind, name))
		}
		if prev, ok := names[name]; ok {
			err = multierr.Append(err, errors.Errorf("%s %q already defined as a %s", kind, name, prev))
		}
		names[name] = kind
	}
	for _, n := range sortedKeys(c.Constants) {
		check("constant", n)
	}
	for _, n := range sortedKeys(c.Units) {
		check("unit", n)
	}
	for _, n := range sortedFuncs(c.Functions) {
		check("function", n)
		if c.Functions[n].Expr == "" {
			err = multierr.Append(err, errors.Errorf("function %q has no expression", n))
		}
	}
	return err
}

// Level returns the configured log level, defaulting to info.
func (c *Config) Level() (log.Level, error) {
	if c.LogLevel == "" {
		return log.InfoLevel, nil
	}
	l, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel, errors.Wrapf(err, "log-level %q", c.LogLevel)
	}
	return l, nil
}

// Options returns the parser options selected by the configuration.
func (c *Config) Options() []fparser.Option {
	return []fparser.Option{
		fparser.WithThreadSafeEval(c.ThreadSafe),
		fparser.WithShortcutLogical(c.ShortcutLogical),
		fparser.WithIgnoreSideEffects(c.IgnoreSideEffects),
	}
}

// Apply registers the configured epsilon, constants, units and functions
// with the parser p. Functions may use the constants, the units and each
// other, in any order, as long as they do not form a cycle. Every failure
// is reported.
func (c *Config) Apply(p *fparser.Parser) error {
	if c.Epsilon > 0 {
		p.SetEpsilon(c.Epsilon)
	}

	var err error
	for _, n := range sortedKeys(c.Constants) {
		if !p.AddConstant(n, c.Constants[n]) {
			err = multierr.Append(err, errors.Errorf("could not add constant %q", n))
		}
	}
	for _, n := range sortedKeys(c.Units) {
		if !p.AddUnit(n, c.Units[n]) {
			err = multierr.Append(err, errors.Errorf("could not add unit %q", n))
		}
	}

	// Functions are compiled in rounds until no more can be resolved.
	pending := sortedFuncs(c.Functions)
	for len(pending) > 0 {
		var next []string
		var unresolved error
		for _, n := range pending {
			ferr := c.addFunction(p, n)
			switch perr, ok := errors.Cause(ferr).(*fparser.ParseError); {
			case ferr == nil:
			case ok && perr.Type == fparser.UnknownIdentifier:
				next = append(next, n)
				unresolved = multierr.Append(unresolved, ferr)
			default:
				err = multierr.Append(err, ferr)
			}
		}
		if len(next) == len(pending) {
			err = multierr.Append(err, unresolved)
			break
		}
		pending = next
	}
	return err
}

func (c *Config) addFunction(p *fparser.Parser, name string) error {
	f := c.Functions[name]
	sub := p.Clone()
	if sub.Parse(f.Expr, f.Vars, c.Degrees) >= 0 {
		return errors.Wrapf(sub.ParseErr(), "function %q", name)
	}
	if c.Optimize {
		sub.Optimize()
	}
	if !p.AddParserFunction(name, sub) {
		return errors.Errorf("could not add function %q", name)
	}
	return nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedFuncs(m map[string]Function) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
