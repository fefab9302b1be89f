// Command compile lowers a frontend-supplied typed AST (spec.md §1: "the
// compiler's frontend is treated as a black box delivering a typed AST...
// consumed as input") to this architecture's assembly text. The pipeline
// starts past the frontend boundary: decode AST, build IR, generate code
// (native or, behind --llvm, the llvmbridge shim).
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/rvmtoolchain/rvmc/internal/ast"
	"github.com/rvmtoolchain/rvmc/internal/codegen"
	"github.com/rvmtoolchain/rvmc/internal/config"
	"github.com/rvmtoolchain/rvmc/internal/diag"
	"github.com/rvmtoolchain/rvmc/internal/ir"
	"github.com/rvmtoolchain/rvmc/internal/llvmbridge"
	"github.com/rvmtoolchain/rvmc/internal/logging"
	"github.com/spf13/cobra"
)

// exitErr carries the process exit code a cobra error should translate to,
// per spec §6: "0 success, 1 compile error, 2 invalid invocation".
type exitErr struct {
	code int
	err  error
}

func (e *exitErr) Error() string { return e.err.Error() }
func (e *exitErr) Unwrap() error { return e.err }

func newRootCmd() *cobra.Command {
	cfg := config.Default()

	cmd := &cobra.Command{
		Use:           "compile <input.json>",
		Short:         "lower a typed AST to assembly",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Src = args[0]
			return run(cfg, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfg.Out, "output", "o", "", "output path (default: stdout)")
	flags.StringArrayVarP(&cfg.IncludeDirs, "include", "I", nil, "include search path (pass-through; no preprocessor in this backend)")
	flags.BoolVar(&cfg.Trace, "trace", false, "dump JSON stage artifacts (typed AST and built IR) to stderr")
	flags.IntVar(&cfg.DebugLevel, "debug", 0, "diagnostic verbosity, 0-4")
	flags.BoolVar(&cfg.UseLLVM, "llvm", false, "route through the LLVM module-shell backend instead of the native one")
	return cmd
}

func run(cfg config.Options, out io.Writer) error {
	logging.Configure(cfg.DebugLevel, cfg.Trace)
	log := logging.Logger()

	data, err := os.ReadFile(cfg.Src)
	if err != nil {
		return &exitErr{code: 2, err: errors.Wrapf(err, "reading %s", cfg.Src)}
	}

	prog, err := ast.Decode(data)
	if err != nil {
		return &exitErr{code: 2, err: err}
	}

	if cfg.Trace {
		if b, err := json.MarshalIndent(prog, "", "  "); err == nil {
			fmt.Fprintln(os.Stderr, "-- trace: typed AST (tokens/parse/semantic stages are external to this backend) --")
			fmt.Fprintln(os.Stderr, string(b))
		}
	}

	mod, listener := ir.Build(prog)
	if listener.Len() > 0 {
		return &exitErr{code: 1, err: diagErr(listener)}
	}

	if cfg.Trace {
		if b, err := json.MarshalIndent(mod, "", "  "); err == nil {
			fmt.Fprintln(os.Stderr, "-- trace: IR module --")
			fmt.Fprintln(os.Stderr, string(b))
		}
	}

	if cfg.UseLLVM {
		if err := llvmbridge.Generate(mod, cfg); err != nil {
			return &exitErr{code: 1, err: err}
		}
		return nil
	}

	codeProg, cgListener := codegen.Generate(mod, cfg)
	if cgListener.Len() > 0 {
		return &exitErr{code: 1, err: diagErr(cgListener)}
	}

	asm := renderProgram(codeProg)

	if cfg.Out == "" {
		_, err = out.Write([]byte(asm))
		return err
	}
	if err := os.WriteFile(cfg.Out, []byte(asm), 0o644); err != nil {
		return &exitErr{code: 1, err: errors.Wrapf(err, "writing %s", cfg.Out)}
	}
	log.WithField("output", cfg.Out).Debug("compile: wrote assembly")
	return nil
}

// diagErr joins every recorded diagnostic into one error, per §7's
// "compilation stops at the first non-recoverable error per function but
// continues with other functions when possible": every function's error
// surfaces, not just the first.
func diagErr(l *diag.Listener) error {
	var msg string
	for i, e := range l.Errors() {
		if i > 0 {
			msg += "\n"
		}
		msg += e.Error()
	}
	return errors.New(msg)
}

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var ee *exitErr
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(2)
	}
}
