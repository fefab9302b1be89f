// Command link combines object records (and archives) into a loadable
// image, per spec §6: "link <obj1> <obj2> ... [-l archive]* -o <image>".
// It is the repository's only consumer of internal/linker, and the final
// stage of the pipeline, after a separately invoked assemble step.
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/rvmtoolchain/rvmc/internal/config"
	"github.com/rvmtoolchain/rvmc/internal/linker"
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
		Use:           "link <obj1> [obj2 ...]",
		Short:         "link object records and archives into a loadable image",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFormat(format)
			if err != nil {
				return &exitErr{code: 2, err: err}
			}
			cfg.Format = f
			return run(cfg, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfg.Out, "output", "o", "", "output path (default: stdout)")
	flags.StringArrayVarP(&cfg.Archives, "archive", "l", nil, "archive path to pull members from lazily")
	flags.StringVarP(&format, "format", "f", "binary", "output format: binary|macro|archive|text")
	flags.StringVar(&cfg.Entry, "entry", "main", "entry symbol name")
	flags.BoolVar(&cfg.Standalone, "standalone", false, "do not expect a crt0 to supply GP init")
	flags.IntVar(&cfg.BankSize, "bank-size", config.BankSizeCells, "bank size override, in cells")
	flags.IntVar(&cfg.DebugLevel, "debug", 0, "diagnostic verbosity, 0-4")
	return cmd
}

func parseFormat(s string) (config.ObjectFormat, error) {
	switch s {
	case "binary":
		return config.FormatBinary, nil
	case "macro":
		return config.FormatMacro, nil
	case "archive":
		return config.FormatArchive, nil
	case "text":
		return config.FormatText, nil
	default:
		return 0, errors.Errorf("link: unknown format %q", s)
	}
}

func run(cfg config.Options, objPaths []string) error {
	logging.Configure(cfg.DebugLevel, false)

	var objs []*object.Object
	for _, p := range objPaths {
		obj, err := readObject(p)
		if err != nil {
			return &exitErr{code: 2, err: err}
		}
		objs = append(objs, obj)
	}

	var archives []*object.Archive
	for _, p := range cfg.Archives {
		f, err := os.Open(p)
		if err != nil {
			return &exitErr{code: 2, err: errors.Wrapf(err, "opening archive %s", p)}
		}
		ar, err := object.DecodeArchive(f)
		f.Close()
		if err != nil {
			return &exitErr{code: 2, err: errors.Wrapf(err, "decoding archive %s", p)}
		}
		archives = append(archives, ar)
	}

	img, err := linker.Link(linker.Input{Objects: objs, Archives: archives, Entry: cfg.Entry}, cfg)
	if err != nil {
		return &exitErr{code: 1, err: err}
	}

	if cfg.Out == "" {
		return writeImage(os.Stdout, img, cfg)
	}
	f, err := os.Create(cfg.Out)
	if err != nil {
		return &exitErr{code: 1, err: errors.Wrapf(err, "creating %s", cfg.Out)}
	}
	defer f.Close()
	return writeImage(f, img, cfg)
}

func readObject(path string) (*object.Object, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	return object.Decode(f)
}

func writeImage(w *os.File, img *object.Image, cfg config.Options) error {
	switch cfg.Format {
	case config.FormatBinary:
		return img.Encode(w)
	case config.FormatText, config.FormatMacro:
		_, err := w.WriteString(img.Listing())
		return err
	case config.FormatArchive:
		ar := object.NewArchive()
		ar.Add("image", &object.Object{Instructions: img.Instructions, Data: img.Data, Entry: fmt.Sprintf("%d", img.EntryAddress)})
		return ar.Encode(w)
	default:
		return errors.Errorf("link: unsupported format %v", cfg.Format)
	}
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
