// Package linker implements the multi-object linking pass of spec §4.5:
// concatenate each input object's instruction and data arrays, rebase its
// symbols by the resulting per-object base offsets, resolve every
// remaining unresolved reference against the combined symbol space
// (pulling archive members in lazily when a plain object list can't
// satisfy a reference), patch the reference sites, and emit a loadable
// image, grounded directly on the six-step algorithm below, built with the
// same "explicit state, no singletons" discipline as internal/assembler.
package linker

import (
	"sort"

	"github.com/rvmtoolchain/rvmc/internal/config"
	"github.com/rvmtoolchain/rvmc/internal/diag"
	"github.com/rvmtoolchain/rvmc/internal/object"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Input is one linker input: an ordered list of objects and the archives
// available for lazy symbol resolution (spec §6: "link <obj1> <obj2> ...
// [-l archive]* -o <image>").
type Input struct {
	Objects  []*object.Object
	Archives []*object.Archive
	Entry    string // Entry symbol name; defaults to "main".
}

// rebased is one object's symbols and unresolved references after step 3
// of spec §4.5 ("Rebase each object's symbols by its instruction-base
// offset (or data-base for data symbols)").
type rebased struct {
	obj        *object.Object
	codeBase   int
	dataBase   int
	symbols    map[string]object.Symbol // name -> rebased symbol (absolute address).
	unresolved []object.Reloc           // Site/operand rebased into the final instruction array.
}

// ---------------------
// ----- Functions -----
// ---------------------

// Link runs spec §4.5's six-step algorithm over in and returns the
// resulting image.
func Link(in Input, cfg config.Options) (*object.Image, error) {
	entry := in.Entry
	if entry == "" {
		entry = "main"
	}

	objs := make([]*object.Object, len(in.Objects))
	copy(objs, in.Objects)

	// Step 4's lazy archive pulling needs to keep re-scanning until a
	// fixed point: pulling in one member can introduce new unresolved
	// references that only another archive member satisfies.
	pulled := map[*object.Archive]map[string]bool{}
	for {
		rs := rebaseAll(objs)
		unresolvedNames := collectUnresolvedSymbols(rs)
		if len(unresolvedNames) == 0 {
			break
		}
		pulledAny := false
		for _, want := range unresolvedNames {
			if alreadyDefined(rs, want) {
				continue
			}
			for _, ar := range in.Archives {
				if pulled[ar] == nil {
					pulled[ar] = map[string]bool{}
				}
				name, member, ok := ar.Lookup(want)
				if !ok || pulled[ar][name] {
					continue
				}
				pulled[ar][name] = true
				objs = append(objs, member)
				pulledAny = true
			}
		}
		if !pulledAny {
			break
		}
	}

	rs := rebaseAll(objs)

	global := map[string][]rebasedSymbolRef{}
	for i, r := range rs {
		for name, sym := range r.symbols {
			global[name] = append(global[name], rebasedSymbolRef{objIndex: i, address: sym.Address})
		}
	}
	for name, refs := range global {
		if len(refs) > 1 {
			return nil, diag.New(diag.Resolution, diag.Span{}, "symbol %q is multiply defined across linked objects", name)
		}
	}

	bankSize := cfg.BankSize
	if bankSize == 0 {
		bankSize = config.BankSizeCells
	}
	image, err := assembleImage(rs, global, entry, bankSize)
	if err != nil {
		return nil, err
	}
	return image, nil
}

type rebasedSymbolRef struct {
	objIndex int
	address  int
}

// rebaseAll concatenates every object's sections, recording each one's base
// offsets (spec §4.5 steps 1-3), without yet patching anything.
func rebaseAll(objs []*object.Object) []rebased {
	out := make([]rebased, len(objs))
	codeBase, dataBase := 0, 0
	for i, o := range objs {
		symbols := make(map[string]object.Symbol, len(o.Symbols))
		for _, s := range o.Symbols {
			base := codeBase
			if s.IsData {
				base = dataBase
			}
			symbols[s.Name] = object.Symbol{Name: s.Name, Address: s.Address + base, IsData: s.IsData}
		}
		unresolved := make([]object.Reloc, len(o.Unresolved))
		for j, r := range o.Unresolved {
			r.Site += codeBase
			unresolved[j] = r
		}
		out[i] = rebased{obj: o, codeBase: codeBase, dataBase: dataBase, symbols: symbols, unresolved: unresolved}
		codeBase += len(o.Instructions)
		dataBase += len(o.Data) / 2
	}
	return out
}

func collectUnresolvedSymbols(rs []rebased) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range rs {
		for _, u := range r.unresolved {
			if !seen[u.Symbol] {
				seen[u.Symbol] = true
				out = append(out, u.Symbol)
			}
		}
	}
	sort.Strings(out)
	return out
}

func alreadyDefined(rs []rebased, name string) bool {
	for _, r := range rs {
		if _, ok := r.symbols[name]; ok {
			return true
		}
	}
	return false
}
