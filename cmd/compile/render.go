package main

import (
	"fmt"
	"strings"

	"github.com/rvmtoolchain/rvmc/internal/codegen"
	"github.com/rvmtoolchain/rvmc/internal/disasm"
)

// renderProgram turns codegen's instruction stream back into the textual
// assembly internal/assembler.Assemble parses, so the compile/assemble
// split stays a real process boundary (spec §6: "compile ... produces
// textual assembly") rather than an in-memory shortcut.
func renderProgram(prog *codegen.Program) string {
	var b strings.Builder

	if len(prog.Globals) > 0 {
		fmt.Fprintln(&b, ".data")
		for _, g := range prog.Globals {
			fmt.Fprintf(&b, "%s:\n", g.Name)
			if g.IsCString {
				fmt.Fprintf(&b, "\t.asciiz %q\n", g.CString)
				continue
			}
			if len(g.Init) == 0 {
				fmt.Fprintf(&b, "\t.word %s\n", strings.TrimSuffix(strings.Repeat("0, ", g.Words), ", "))
				continue
			}
			words := make([]string, len(g.Init))
			for i, w := range g.Init {
				words[i] = fmt.Sprintf("%d", w)
			}
			fmt.Fprintf(&b, "\t.word %s\n", strings.Join(words, ", "))
		}
		fmt.Fprintln(&b, ".code")
	}

	for _, fn := range prog.Functions {
		fmt.Fprintf(&b, "%s:\n", fn.Name)
		for _, ln := range fn.Lines {
			for _, lbl := range ln.Labels {
				fmt.Fprintf(&b, "%s:\n", lbl)
			}
			fmt.Fprintf(&b, "\t%s\n", disasm.Instruction(ln.Inst))
		}
	}
	return b.String()
}
