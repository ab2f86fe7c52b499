// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import "github.com/beevik/cmd"

var (
	cmds     *cmd.Tree
	commands []cmd.CommandDescriptor
)

func init() {
	commands = []cmd.CommandDescriptor{
		{
			Name:        "help",
			Brief:       "Display help for a command",
			Description: "Display help for a command.",
			Usage:       "help [<command>]",
			Data:        (*Host).cmdHelp,
		},
		{
			Name:  "const",
			Brief: "Define a constant",
			Description: "Define a named constant usable in subsequently parsed" +
				" functions. An existing constant is redefined.",
			Usage: "const <name> <value>",
			Data:  (*Host).cmdConst,
		},
		{
			Name:  "deduce",
			Brief: "Parse a function, deducing its variables",
			Description: "Parse a function, treating every unknown identifier" +
				" as a variable. Variables are numbered in order of first use" +
				" and become the current variable list.",
			Usage: "deduce <expression>",
			Data:  (*Host).cmdDeduce,
		},
		{
			Name:  "disasm",
			Brief: "Disassemble the current function",
			Description: "Display the byte code of the current function. If an" +
				" expression is given, it is parsed first. When the" +
				" ShowExpression setting is on, each instruction is annotated" +
				" with the expression it computes.",
			Usage: "disasm [<expression>]",
			Data:  (*Host).cmdDisasm,
		},
		{
			Name:  "eval",
			Brief: "Evaluate the current function",
			Description: "Evaluate the current function with the given variable" +
				" values. Values are listed in variable order, separated by" +
				" spaces or commas. Missing values are zero.",
			Usage: "eval [<value> ...]",
			Data:  (*Host).cmdEval,
		},
		{
			Name:  "func",
			Brief: "Define a function",
			Description: "Define a function implemented by an expression. The" +
				" comma-separated variable list gives its parameters.",
			Usage: "func <name> <vars> <expression>",
			Data:  (*Host).cmdFunc,
		},
		{
			Name:  "functions",
			Brief: "List built-in functions",
			Description: "List the built-in functions and their parameter" +
				" counts. A prefix selects a subset of the functions.",
			Usage: "functions [<prefix>]",
			Data:  (*Host).cmdFunctions,
		},
		{
			Name:  "optimize",
			Brief: "Optimize the current function",
			Description: "Optimize the current function and report the size of" +
				" its byte code before and after.",
			Usage: "optimize",
			Data:  (*Host).cmdOptimize,
		},
		{
			Name:  "parse",
			Brief: "Parse a function",
			Description: "Parse an expression using the current variable list" +
				" and make it the current function.",
			Usage: "parse <expression>",
			Data:  (*Host).cmdParse,
		},
		{
			Name:        "quit",
			Brief:       "Quit the program",
			Description: "Quit the program.",
			Usage:       "quit",
			Data:        (*Host).cmdQuit,
		},
		{
			Name:  "remove",
			Brief: "Remove a constant, unit or function",
			Description: "Remove a user-defined identifier. Functions already" +
				" parsed are not affected.",
			Usage: "remove <name>",
			Data:  (*Host).cmdRemove,
		},
		{
			Name:  "set",
			Brief: "Set a configuration variable",
			Description: "Set the value of a configuration variable. To see the" +
				" current values of all configuration variables, type set" +
				" without any arguments.",
			Usage: "set [<var> <value>]",
			Data:  (*Host).cmdSet,
		},
		{
			Name:  "unit",
			Brief: "Define a unit",
			Description: "Define a unit. A unit name following a value" +
				" multiplies the value by the unit's scale factor.",
			Usage: "unit <name> <value>",
			Data:  (*Host).cmdUnit,
		},
		{
			Name:  "vars",
			Brief: "Show or change the variable list",
			Description: "Without arguments, display the variables of the" +
				" current function. Otherwise set the comma-separated variable" +
				" list used by subsequent parse commands.",
			Usage: "vars [<list>]",
			Data:  (*Host).cmdVars,
		},
	}

	root := cmd.NewTree(cmd.TreeDescriptor{Name: "fparser"})
	for _, c := range commands {
		root.AddCommand(c)
	}

	// Add command shortcuts.
	root.AddShortcut("?", "help")
	root.AddShortcut("d", "disasm")
	root.AddShortcut("e", "eval")
	root.AddShortcut("o", "optimize")
	root.AddShortcut("p", "parse")

	cmds = root
}
