package linker

import (
	"github.com/rvmtoolchain/rvmc/internal/diag"
	"github.com/rvmtoolchain/rvmc/internal/object"
)

// assembleImage performs spec §4.5 steps 1-2 (concatenate) and 5-6 (patch,
// emit) now that every object's symbols have been rebased and the global
// symbol table (step 3-4) is known to be unambiguous.
func assembleImage(rs []rebased, global map[string][]rebasedSymbolRef, entry string, bankSizeCells int) (*object.Image, error) {
	combined := &object.Object{}
	for _, r := range rs {
		combined.Instructions = append(combined.Instructions, r.obj.Instructions...)
		combined.Data = append(combined.Data, r.obj.Data...)
	}

	resolve := func(name string) (int, bool) {
		refs, ok := global[name]
		if !ok || len(refs) == 0 {
			return 0, false
		}
		return refs[0].address, true
	}

	for _, r := range rs {
		for _, u := range r.unresolved {
			addr, ok := resolve(u.Symbol)
			if !ok {
				return nil, diag.New(diag.Resolution, diag.Span{}, "unresolved symbol %q", u.Symbol)
			}
			if err := object.ApplyReloc(combined, u, addr, bankSizeCells); err != nil {
				return nil, diag.Wrap(err, diag.Internal, diag.Span{}, "patching reference to %q", u.Symbol)
			}
		}
	}

	entryAddr, ok := resolve(entry)
	if !ok {
		return nil, diag.New(diag.Resolution, diag.Span{}, "entry symbol %q is not defined in any linked object", entry)
	}

	return &object.Image{
		EntryAddress: uint32(entryAddr),
		Instructions: combined.Instructions,
		Data:         combined.Data,
	}, nil
}
