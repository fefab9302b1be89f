// Command assemble turns textual assembly into an object record, per spec
// §6: "assemble <in.asm> -o <out.obj>". The two-pass internal/assembler
// this repository owns end to end replaces any dependency on an external
// system assembler toolchain.
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/rvmtoolchain/rvmc/internal/assembler"
	"github.com/rvmtoolchain/rvmc/internal/config"
	"github.com/rvmtoolchain/rvmc/internal/logging"
	"github.com/rvmtoolchain/rvmc/internal/object"
	"github.com/spf13/cobra"
)

type exitErr struct {
	code int
	err  error
}

func (e *exitErr) Error() string { return e.err.Error() }
func (e *exitErr) Unwrap() error { return e.err }

func newRootCmd() *cobra.Command {
	cfg := config.Default()
	var format string

	cmd := &cobra.Command{
		Use:           "assemble <in.asm>",
		Short:         "assemble textual assembly into an object record",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Src = args[0]
			f, err := parseFormat(format)
			if err != nil {
				return &exitErr{code: 2, err: err}
			}
			cfg.Format = f
			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfg.Out, "output", "o", "", "output path (default: stdout)")
	flags.IntVar(&cfg.BankSize, "bank-size", config.BankSizeCells, "bank size override, in cells")
	flags.IntVar(&cfg.MaxImmediate, "max-immediate", config.DefaultMaxImmediate, "maximum representable immediate value")
	flags.StringVarP(&format, "format", "f", "object", "output format: object|binary|macro|archive")
	flags.IntVar(&cfg.DebugLevel, "debug", 0, "diagnostic verbosity, 0-4")
	return cmd
}

func parseFormat(s string) (config.ObjectFormat, error) {
	switch s {
	case "object":
		return config.FormatObject, nil
	case "binary":
		return config.FormatBinary, nil
	case "macro":
		return config.FormatMacro, nil
	case "archive":
		return config.FormatArchive, nil
	default:
		return 0, errors.Errorf("assemble: unknown format %q", s)
	}
}

func run(cfg config.Options) error {
	logging.Configure(cfg.DebugLevel, false)

	src, err := os.ReadFile(cfg.Src)
	if err != nil {
		return &exitErr{code: 2, err: errors.Wrapf(err, "reading %s", cfg.Src)}
	}

	obj, err := assembler.Assemble(cfg.Src, string(src), cfg)
	if err != nil {
		return &exitErr{code: 1, err: err}
	}

	out := os.Stdout
	if cfg.Out != "" {
		f, err := os.Create(cfg.Out)
		if err != nil {
			return &exitErr{code: 1, err: errors.Wrapf(err, "creating %s", cfg.Out)}
		}
		defer f.Close()
		return writeObject(f, obj, cfg)
	}
	return writeObject(out, obj, cfg)
}

func writeObject(w *os.File, obj *object.Object, cfg config.Options) error {
	switch cfg.Format {
	case config.FormatObject:
		return obj.Encode(w)
	case config.FormatMacro:
		_, err := w.WriteString(obj.Listing())
		return err
	case config.FormatArchive:
		ar := object.NewArchive()
		ar.Add(memberName(cfg.Src), obj)
		return ar.Encode(w)
	case config.FormatBinary:
		if len(obj.Unresolved) > 0 {
			return errors.New("assemble: -f binary requires every reference resolved; link the object instead")
		}
		entryAddr := 0
		if obj.Entry != "" {
			sym, ok := obj.FindSymbol(obj.Entry)
			if !ok {
				return errors.Errorf("assemble: entry symbol %q not found", obj.Entry)
			}
			entryAddr = sym.Address
		}
		img := &object.Image{EntryAddress: uint32(entryAddr), Instructions: obj.Instructions, Data: obj.Data}
		return img.Encode(w)
	default:
		return errors.Errorf("assemble: unsupported format %v", cfg.Format)
	}
}

func memberName(path string) string {
	base := path
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			base = path[i+1:]
			break
		}
	}
	return base
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
