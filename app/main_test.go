// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runApp(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp(strings.NewReader(input), &out)
	err := app.Run(append([]string{"fparser"}, args...))
	return out.String(), err
}

func TestEval(t *testing.T) {
	out, err := runApp(t, "", "eval", "--vars", "x,y", "x*y + 1", "3", "-4")
	require.NoError(t, err)
	assert.Equal(t, "-11\n", out)

	out, err = runApp(t, "", "eval", "b - a", "5", "2")
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)

	out, err = runApp(t, "", "--degrees", "--optimize", "eval", "sin(x)^2 + cos(x)^2 + sin(x)", "90")
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)
}

func TestEvalErrors(t *testing.T) {
	_, err := runApp(t, "", "eval", "x +", "1")
	assert.Error(t, err)

	_, err = runApp(t, "", "eval", "x*y", "1")
	assert.Error(t, err)

	_, err = runApp(t, "", "eval", "x", "one")
	assert.Error(t, err)

	_, err = runApp(t, "", "eval", "1/x", "0")
	assert.EqualError(t, err, "evaluation failed: division by zero")

	_, err = runApp(t, "", "eval")
	assert.Error(t, err)
}

func TestDisasm(t *testing.T) {
	out, err := runApp(t, "", "disasm", "-x", "--vars", "x", "x+1")
	require.NoError(t, err)
	assert.Contains(t, out, "0000  var        x")
	assert.Contains(t, out, "= (x+1)")

	out, err = runApp(t, "", "disasm", "x+1")
	require.NoError(t, err)
	assert.NotContains(t, out, "=")
}

func TestRepl(t *testing.T) {
	out, err := runApp(t, "vars x\nparse x*2\neval 21\n")
	require.NoError(t, err)
	assert.Contains(t, out, "\n42\n")

	dir, err := ioutil.TempDir("", "fparser")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	script := filepath.Join(dir, "script.txt")
	require.NoError(t, ioutil.WriteFile(script, []byte("const k 7\n"), 0644))
	out, err = runApp(t, "vars x\nparse k*x\neval 2\n", "repl", script)
	require.NoError(t, err)
	assert.Contains(t, out, "\n14\n")
}

func TestConfigFlag(t *testing.T) {
	dir, err := ioutil.TempDir("", "fparser")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "calc.toml")
	cfg := "[constants]\nk = 2.5\n\n[functions.twice]\nvars = \"v\"\nexpr = \"2*v\"\n"
	require.NoError(t, ioutil.WriteFile(path, []byte(cfg), 0644))

	out, err := runApp(t, "", "--config", path, "eval", "twice(k) + x", "1")
	require.NoError(t, err)
	assert.Equal(t, "6\n", out)

	_, err = runApp(t, "", "--config", filepath.Join(dir, "missing.toml"), "eval", "1")
	assert.Error(t, err)
}
