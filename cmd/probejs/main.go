// Copyright 2024 The probejs Authors
// This file is part of probejs.

// Command probejs is a thin demonstration consumer of the engine core:
// `eval` runs a script file (or a `build`-produced precompiled bundle),
// `repl` drives an interactive line-at-a-time session, `dis` prints a
// compiled function's bytecode listing, `build` writes a precompiled
// bundle, `inspect` runs a script with the debug-protocol server attached.
// None of it is imported back into the core packages.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/cp"
	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"github.com/peterh/liner"
	"gopkg.in/urfave/cli.v1"

	"github.com/probejs/probejs/atom"
	"github.com/probejs/probejs/bccache"
	"github.com/probejs/probejs/compiler"
	"github.com/probejs/probejs/inspector"
	"github.com/probejs/probejs/opcode"
	"github.com/probejs/probejs/parser"
	"github.com/probejs/probejs/runtime"
	"github.com/probejs/probejs/value"
)

const version = "0.1.0"

func main() {
	app := cli.NewApp()
	app.Name = "probejs"
	app.Version = version
	app.Usage = "an embeddable ECMAScript engine"
	app.Commands = []cli.Command{evalCommand, replCommand, disCommand, buildCommand, inspectCommand}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "probejs: %v\n", err)
		os.Exit(1)
	}
}

var evalCommand = cli.Command{
	Name:      "eval",
	Usage:     "run a script file",
	ArgsUsage: "<source.js>",
	Flags: []cli.Flag{
		cli.DurationFlag{Name: "timeout", Usage: "abort the script if it runs longer than this"},
	},
	Action: runEval,
}

func runEval(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return cli.NewExitError("usage: probejs eval <source.js>", 1)
	}
	filename := ctx.Args().Get(0)

	rt := runtime.New(runtime.DefaultConfig())
	c := rt.CreateContext()
	if d := ctx.Duration("timeout"); d > 0 {
		deadline := time.Now().Add(d)
		c.SetInterruptHandler(func() error {
			if time.Now().After(deadline) {
				return errors.New("timeout exceeded")
			}
			return nil
		})
	}

	var result value.Value
	var err error
	if strings.HasSuffix(filename, ".jsc") {
		// A precompiled bundle skips parsing/compiling entirely.
		var code *value.CodeObject
		code, err = bccache.LoadPrecompiled(filename, rt.Table())
		if err == nil {
			result, err = c.Run(code, runtime.ModeScript)
		}
	} else {
		var source []byte
		source, err = os.ReadFile(filename)
		if err == nil {
			result, err = c.Eval(string(source), filename, runtime.ModeScript)
		}
	}
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	c.RunMicrotasks()
	fmt.Println(c.Dump(result))
	return nil
}

var replCommand = cli.Command{
	Name:   "repl",
	Usage:  "start an interactive session",
	Action: runRepl,
}

func runRepl(ctx *cli.Context) error {
	rt := runtime.New(runtime.DefaultConfig())
	c := rt.CreateContext()

	out := colorable.NewColorableStdout()
	errColor := color.New(color.FgRed)
	okColor := color.New(color.FgGreen)
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt("probejs> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			return nil
		}
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		line.AppendHistory(input)

		result, err := c.Eval(input, "<repl>", runtime.ModeScript)
		if err != nil {
			errColor.Fprintln(out, err.Error())
			continue
		}
		c.RunMicrotasks()
		okColor.Fprintln(out, c.Dump(result))
	}
}

var disCommand = cli.Command{
	Name:      "dis",
	Usage:     "print a compiled function's bytecode listing",
	ArgsUsage: "<source.js>",
	Action:    runDis,
}

func runDis(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return cli.NewExitError("usage: probejs dis <source.js>", 1)
	}
	filename := ctx.Args().Get(0)
	source, err := os.ReadFile(filename)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	prog, errs := parser.Parse(filename, string(source))
	if len(errs) > 0 {
		return cli.NewExitError(errs[0].Error(), 1)
	}
	code, err := compiler.Compile(prog, filename, atom.NewTable())
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	disassemble(w, code)
	return nil
}

var inspectCommand = cli.Command{
	Name:      "inspect",
	Usage:     "run a script file with the debug-protocol server attached",
	ArgsUsage: "<source.js>",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "addr", Value: "127.0.0.1:9229", Usage: "inspector listen address"},
	},
	Action: runInspect,
}

func runInspect(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return cli.NewExitError("usage: probejs inspect <source.js>", 1)
	}
	filename := ctx.Args().Get(0)
	source, err := os.ReadFile(filename)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	rt := runtime.New(runtime.DefaultConfig())
	c := rt.CreateContext()
	sess := inspector.NewSession(c, nil)

	srv := inspector.NewServer()
	srv.Register(filename, sess)

	addr := ctx.String("addr")
	go func() {
		if err := srv.ListenAndServe(addr); err != nil {
			fmt.Fprintf(os.Stderr, "probejs: inspector server: %v\n", err)
		}
	}()
	fmt.Fprintf(os.Stderr, "probejs: inspector listening on ws://%s/sessions/%s/ws\n", addr, filename)

	result, err := c.Eval(string(source), filename, runtime.ModeScript)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	c.RunMicrotasks()
	fmt.Println(c.Dump(result))
	return nil
}

var buildCommand = cli.Command{
	Name:      "build",
	Usage:     "compile a script to a precompiled bytecode file",
	ArgsUsage: "<source.js>",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "o", Usage: "output file"},
	},
	Action: runBuild,
}

func runBuild(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return cli.NewExitError("usage: probejs build -o <out> <source.js>", 1)
	}
	filename := ctx.Args().Get(0)
	out := ctx.String("o")
	if out == "" {
		out = filename + "c"
	}

	source, err := os.ReadFile(filename)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	table := atom.NewTable()
	prog, errs := parser.Parse(filename, string(source))
	if len(errs) > 0 {
		return cli.NewExitError(errs[0].Error(), 1)
	}
	code, err := compiler.Compile(prog, filename, table)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	tmp, err := os.CreateTemp("", "probejs-build-*")
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	tmp.Close()
	defer os.Remove(tmp.Name())
	// bccache.SavePrecompiled, not a raw gob.Encode(code): CodeObject's
	// Constants hold value.Value, whose fields are unexported, so gob
	// would silently drop them. SavePrecompiled routes through the same
	// atom-name/constant-kind record the two-tier cache uses.
	if err := bccache.SavePrecompiled(tmp.Name(), code, table); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	// Build into a scratch file first and move it into place atomically,
	// so a reader of the output path never observes a half-written file
	// (cp.CopyFile fsyncs before the rename).
	if err := cp.CopyFile(out, tmp.Name()); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	return nil
}

func disassemble(w io.Writer, code *value.CodeObject) {
	fmt.Fprintf(w, "function %s (params=%d locals=%d maxstack=%d)\n", code.Name, code.ParamCount, code.LocalsCount, code.MaxStack)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"PC", "OP", "OPERAND"})
	table.SetAutoWrapText(false)
	table.SetBorder(false)

	ins := code.Instructions
	for pc := 0; pc < len(ins); {
		op := opcode.Op(ins[pc])
		start := pc
		pc++
		n := op.OperandBytes()
		operand := ""
		if n > 0 && pc+n <= len(ins) {
			v := 0
			for i := 0; i < n; i++ {
				v = v<<8 | int(ins[pc+i])
			}
			operand = strconv.Itoa(v)
			pc += n
		}
		table.Append([]string{strconv.Itoa(start), op.String(), operand})
	}
	table.Render()

	for _, sub := range code.Inner {
		fmt.Fprintln(w)
		disassemble(w, sub)
	}
}
