package object

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rvmtoolchain/rvmc/internal/disasm"
)

// Listing renders o as a human-readable disassembly: the -f macro/text
// artifact forms spec §6 lists alongside the self-describing JSON object
// and the linked binary image.
func (o *Object) Listing() string {
	var b strings.Builder
	fmt.Fprintf(&b, "; object: %d instructions, %d data bytes\n", len(o.Instructions), len(o.Data))
	if o.Entry != "" {
		fmt.Fprintf(&b, "; entry: %s\n", o.Entry)
	}

	byAddr := map[int][]string{}
	for _, s := range o.Symbols {
		if !s.IsData {
			byAddr[s.Address] = append(byAddr[s.Address], s.Name)
		}
	}
	for i, inst := range o.Instructions {
		for _, name := range byAddr[i] {
			fmt.Fprintf(&b, "%s:\n", name)
		}
		fmt.Fprintf(&b, "\t%04d  %s\n", i, disasm.Instruction(inst))
	}

	if len(o.Symbols) > 0 {
		fmt.Fprintln(&b, "; symbols")
		names := make([]Symbol, len(o.Symbols))
		copy(names, o.Symbols)
		sort.Slice(names, func(i, j int) bool { return names[i].Name < names[j].Name })
		for _, s := range names {
			kind := "code"
			if s.IsData {
				kind = "data"
			}
			fmt.Fprintf(&b, ";   %-20s %-4s %d\n", s.Name, kind, s.Address)
		}
	}
	if len(o.Unresolved) > 0 {
		fmt.Fprintln(&b, "; unresolved")
		for _, u := range o.Unresolved {
			fmt.Fprintf(&b, ";   site %d -> %s (%s)\n", u.Site, u.Symbol, u.Kind)
		}
	}
	return b.String()
}

// Listing renders img as a human-readable disassembly of the final linked
// image, with no remaining symbol table or unresolved list — everything
// has already been patched.
func (img *Image) Listing() string {
	var b strings.Builder
	fmt.Fprintf(&b, "; image: entry=%d, %d instructions, %d data bytes\n", img.EntryAddress, len(img.Instructions), len(img.Data))
	for i, inst := range img.Instructions {
		fmt.Fprintf(&b, "\t%04d  %s\n", i, disasm.Instruction(inst))
	}
	return b.String()
}
