package ir

import (
	"fmt"

	"github.com/rvmtoolchain/rvmc/internal/ast"
	"github.com/rvmtoolchain/rvmc/internal/diag"
	"github.com/rvmtoolchain/rvmc/internal/ir/types"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// localVar is the builder's bookkeeping for one local or parameter: its
// fixed frame slot plus the provenance state that the provenance lattice
// (internal/ir/types, JoinBank) tracks as control flow merges. Splitting
// static shape (Index/Type) from mutable state (Bank/Sites) lets branch
// lowering snapshot and restore just the mutable half.
type localVar struct {
	Index     int
	Type      ast.Type
	IsPointer bool
}

// bankState is the mutable provenance half of a localVar: its current bank
// tag and the source positions that contributed to it. The builder keeps it
// up to date across assignments and merge points, but no lowering step reads
// it: a read of a pointer variable takes its bank from the bank word loaded
// out of the variable's slot (see loadThrough), and no diagnostic reports
// Sites.
type bankState struct {
	Bank  Bank
	Sites []ast.Position
}

// Builder lowers one ast.Program into an ir.Module. It is scoped to a
// single compilation (DESIGN NOTES §9: no module-level singletons); create
// a fresh Builder per compile.
type Builder struct {
	diags   *diag.Listener
	globals map[string]*ast.Global

	f         *Function
	cur       *Block
	locals    map[string]*localVar
	banks     map[string]bankState
	nextWord  int // Next unused FP-relative word offset; locals are packed by cumulative word size, not by count, since pointers/arrays/structs occupy more than one word (spec §3).
	loopExit  []*Block // break targets, innermost last.
	loopNext  []*Block // continue targets, innermost last.
	breakDone bool
}

// ---------------------
// ----- Functions -----
// ---------------------

// Build lowers prog to an ir.Module. Diagnostics accumulate in the returned
// Listener; per spec §7 the builder keeps lowering other functions after a
// function-local failure so the caller sees every error in one run.
func Build(prog *ast.Program) (*Module, *diag.Listener) {
	b := &Builder{
		diags:   diag.NewListener(),
		globals: make(map[string]*ast.Global, len(prog.Globals)),
	}
	mod := &Module{}
	for _, g := range prog.Globals {
		b.globals[g.Name] = g
		mod.Globals = append(mod.Globals, lowerGlobal(g))
	}
	for _, fn := range prog.Functions {
		irFn, err := b.buildFunction(fn)
		if err != nil {
			b.diags.Append(asDiag(err, fn.Pos))
			continue // spec §7: keep lowering other functions.
		}
		mod.Functions = append(mod.Functions, irFn)
	}
	return mod, b.diags
}

func asDiag(err error, pos ast.Position) *diag.Error {
	if d, ok := err.(*diag.Error); ok {
		return d
	}
	return diag.Wrap(err, diag.Syntax, diag.Span{File: pos.File, Line: pos.Line, Column: pos.Column}, "%s", err)
}

func lowerGlobal(g *ast.Global) Global {
	words := g.Type.WordSize()
	if sl, ok := g.Init.(*ast.StringLit); ok {
		return Global{Name: g.Name, Words: len(sl.Value) + 1, IsCString: true, CString: sl.Value}
	}
	return Global{Name: g.Name, Words: words}
}

// buildFunction lowers one function definition. It returns a *diag.Error on
// any unrecoverable failure (spec §4.1: "Malformed typed AST -> fatal
// compile error"; provenance failures on deref are also reported here).
func (b *Builder) buildFunction(fn *ast.Function) (*Function, error) {
	b.f = newFunction(fn.Name)
	b.locals = make(map[string]*localVar)
	b.banks = make(map[string]bankState)
	b.nextWord = 0
	b.loopExit = nil
	b.loopNext = nil

	for _, p := range fn.Params {
		kind := types.Scalar
		if p.Type.IsPointer() {
			kind = types.Pointer
		}
		b.f.Params = append(b.f.Params, Param{Name: p.Name, Kind: kind})
		b.f.ParamOffsets = append(b.f.ParamOffsets, b.allocLocal(p.Name, p.Type))
	}
	b.f.Returns = fn.Return.Kind != ast.Void
	if fn.Return.IsPointer() {
		b.f.ReturnKind = types.Pointer
	}

	b.cur = b.f.NewBlock("entry")
	// The copy of every parameter into its local slot is emitted by
	// codegen's prologue (copyParamsToLocals), not here. Pointer
	// parameters' bank words arrive concretely, so each gets its own
	// OpParamBankIn rather than a placeholder.
	for i, p := range fn.Params {
		lv := b.locals[p.Name]
		if p.Type.IsPointer() {
			bankIn := b.f.emit(b.cur, Inst{Op: OpParamBankIn, Kind: types.Scalar, ParamIndex: i})
			bank := RuntimeBank(bankIn.ID)
			b.banks[p.Name] = bankState{Bank: bank}
			continue
		}
		_ = lv
	}
	if err := b.lowerStmts(fn.Body); err != nil {
		return nil, err
	}
	if b.cur.Term == nil {
		// Fell off the end of a non-returning block: implicit `return;`.
		b.f.terminate(b.cur, Inst{Op: OpReturn, HasValue: false})
	}
	b.f.NumLocals = b.nextWord
	return b.f, nil
}

// allocLocal reserves a fresh frame slot for name and records its static
// shape, advancing the word cursor by the local's full word size (1 for a
// scalar, 2 for a pointer, more for an array/struct) so later locals never
// overlap it. Re-declaration within the same function (e.g. shadowing in a
// nested block) reuses the slot name; the frontend's semantic analysis is
// responsible for rejecting genuinely conflicting redeclarations before
// this stage, per spec §1's frontend contract.
func (b *Builder) allocLocal(name string, t ast.Type) int {
	if lv, ok := b.locals[name]; ok {
		return lv.Index
	}
	idx := b.nextWord
	b.nextWord += t.WordSize()
	b.locals[name] = &localVar{Index: idx, Type: t, IsPointer: t.IsPointer()}
	return idx
}

// ---------------------------------
// ----- Statement lowering --------
// ---------------------------------

func (b *Builder) lowerStmts(stmts []ast.Stmt) error {
	for _, s := range stmts {
		if b.cur.Term != nil {
			// Unreachable code after a terminator (e.g. after return);
			// stop emitting into this block.
			break
		}
		if err := b.lowerStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) lowerStmt(s ast.Stmt) error {
	switch n := s.(type) {
	case *ast.DeclStmt:
		idx := b.allocLocal(n.Name, n.Type)
		if n.Init == nil {
			if n.Type.IsPointer() {
				b.banks[n.Name] = bankState{Bank: UnknownBank}
			}
			return nil
		}
		val, bank, err := b.lowerExprValue(n.Init)
		if err != nil {
			return err
		}
		return b.storeLocal(idx, n.Name, n.Type, val, bank, n.Pos)

	case *ast.ExprStmt:
		_, _, err := b.lowerExprValue(n.X)
		return err

	case *ast.ReturnStmt:
		if n.X == nil {
			b.f.terminate(b.cur, Inst{Op: OpReturn, HasValue: false})
			return nil
		}
		val, bank, err := b.lowerExprValue(n.X)
		if err != nil {
			return err
		}
		b.f.terminate(b.cur, Inst{Op: OpReturn, HasValue: true, Kind: kindOf(n.X.ExprType()), A: val, PtrBank: bank})
		return nil

	case *ast.IfStmt:
		return b.lowerIf(n)

	case *ast.WhileStmt:
		return b.lowerWhile(n)

	case *ast.ForStmt:
		return b.lowerFor(n)

	case *ast.BreakStmt:
		if len(b.loopExit) == 0 {
			return diag.New(diag.Syntax, spanOf(n.Pos), "break outside loop")
		}
		b.f.terminate(b.cur, Inst{Op: OpBr, Target: b.loopExit[len(b.loopExit)-1]})
		return nil

	case *ast.ContinueStmt:
		if len(b.loopNext) == 0 {
			return diag.New(diag.Syntax, spanOf(n.Pos), "continue outside loop")
		}
		b.f.terminate(b.cur, Inst{Op: OpBr, Target: b.loopNext[len(b.loopNext)-1]})
		return nil

	default:
		return diag.New(diag.Syntax, diag.Span{}, "unsupported statement %T", s)
	}
}

func kindOf(t ast.Type) types.DataKind {
	if t.IsPointer() {
		return types.Pointer
	}
	return types.Scalar
}

func spanOf(p ast.Position) diag.Span {
	return diag.Span{File: p.File, Line: p.Line, Column: p.Column}
}

// snapshotBanks copies the current per-local bank state so a branch can be
// lowered speculatively and rolled back.
func (b *Builder) snapshotBanks() map[string]bankState {
	out := make(map[string]bankState, len(b.banks))
	for k, v := range b.banks {
		out[k] = v
	}
	return out
}

func (b *Builder) restoreBanks(snap map[string]bankState) {
	b.banks = make(map[string]bankState, len(snap))
	for k, v := range snap {
		b.banks[k] = v
	}
}

// joinBanks merges two post-branch bank maps per the provenance lattice,
// unioning contributing sites (the last two are kept).
func joinBanks(a, b map[string]bankState) map[string]bankState {
	out := make(map[string]bankState, len(a))
	for k, av := range a {
		bv := b[k]
		joined := JoinBank(av.Bank, bv.Bank)
		sites := append(append([]ast.Position{}, av.Sites...), bv.Sites...)
		if len(sites) > 2 {
			sites = sites[len(sites)-2:]
		}
		out[k] = bankState{Bank: joined, Sites: sites}
	}
	return out
}

func (b *Builder) lowerIf(n *ast.IfStmt) error {
	cond, err := b.lowerCond(n.Cond)
	if err != nil {
		return err
	}
	thenBlk := b.f.NewBlock(fmt.Sprintf("if.then.%d", len(b.f.Blocks)))
	elseBlk := b.f.NewBlock(fmt.Sprintf("if.else.%d", len(b.f.Blocks)))
	joinBlk := b.f.NewBlock(fmt.Sprintf("if.end.%d", len(b.f.Blocks)))
	b.f.terminate(b.cur, Inst{Op: OpCondBr, A: cond, Target: thenBlk, Else: elseBlk})

	entry := b.snapshotBanks()

	b.cur = thenBlk
	if err := b.lowerStmts(n.Then); err != nil {
		return err
	}
	thenFellThrough := b.cur.Term == nil
	if thenFellThrough {
		b.f.terminate(b.cur, Inst{Op: OpBr, Target: joinBlk})
	}
	thenBanks := b.snapshotBanks()

	b.restoreBanks(entry)
	b.cur = elseBlk
	if err := b.lowerStmts(n.Else); err != nil {
		return err
	}
	elseFellThrough := b.cur.Term == nil
	if elseFellThrough {
		b.f.terminate(b.cur, Inst{Op: OpBr, Target: joinBlk})
	}
	elseBanks := b.snapshotBanks()

	if thenFellThrough || elseFellThrough {
		b.banks = joinBanks(thenBanks, elseBanks)
		b.cur = joinBlk
	} else {
		// Both branches terminated (e.g. both return): joinBlk is
		// unreachable. Statements after the if are still lowered into it,
		// and codegen emits it like any other block.
		b.banks = joinBanks(thenBanks, elseBanks)
		b.cur = joinBlk
	}
	return nil
}

func (b *Builder) lowerWhile(n *ast.WhileStmt) error {
	headBlk := b.f.NewBlock(fmt.Sprintf("while.head.%d", len(b.f.Blocks)))
	bodyBlk := b.f.NewBlock(fmt.Sprintf("while.body.%d", len(b.f.Blocks)))
	endBlk := b.f.NewBlock(fmt.Sprintf("while.end.%d", len(b.f.Blocks)))

	b.f.terminate(b.cur, Inst{Op: OpBr, Target: headBlk})
	b.cur = headBlk
	cond, err := b.lowerCond(n.Cond)
	if err != nil {
		return err
	}
	b.f.terminate(b.cur, Inst{Op: OpCondBr, A: cond, Target: bodyBlk, Else: endBlk})

	entry := b.snapshotBanks()
	b.loopExit = append(b.loopExit, endBlk)
	b.loopNext = append(b.loopNext, headBlk)
	b.cur = bodyBlk
	if err := b.lowerStmts(n.Body); err != nil {
		return err
	}
	if b.cur.Term == nil {
		b.f.terminate(b.cur, Inst{Op: OpBr, Target: headBlk})
	}
	b.loopExit = b.loopExit[:len(b.loopExit)-1]
	b.loopNext = b.loopNext[:len(b.loopNext)-1]

	// Approximate fixed point: the loop body may execute zero or more
	// times, so the state after the loop is the join of "never entered"
	// and "ran the body once more". A single join is not a true fixed
	// point for loops whose body toggles provenance every iteration; this
	// is documented as an open design choice in DESIGN.md.
	bodyBanks := b.snapshotBanks()
	b.banks = joinBanks(entry, bodyBanks)
	b.cur = endBlk
	return nil
}

func (b *Builder) lowerFor(n *ast.ForStmt) error {
	if n.Init != nil {
		if err := b.lowerStmt(n.Init); err != nil {
			return err
		}
	}
	headBlk := b.f.NewBlock(fmt.Sprintf("for.head.%d", len(b.f.Blocks)))
	bodyBlk := b.f.NewBlock(fmt.Sprintf("for.body.%d", len(b.f.Blocks)))
	postBlk := b.f.NewBlock(fmt.Sprintf("for.post.%d", len(b.f.Blocks)))
	endBlk := b.f.NewBlock(fmt.Sprintf("for.end.%d", len(b.f.Blocks)))

	b.f.terminate(b.cur, Inst{Op: OpBr, Target: headBlk})
	b.cur = headBlk
	if n.Cond != nil {
		cond, err := b.lowerCond(n.Cond)
		if err != nil {
			return err
		}
		b.f.terminate(b.cur, Inst{Op: OpCondBr, A: cond, Target: bodyBlk, Else: endBlk})
	} else {
		b.f.terminate(b.cur, Inst{Op: OpBr, Target: bodyBlk})
	}

	entry := b.snapshotBanks()
	b.loopExit = append(b.loopExit, endBlk)
	b.loopNext = append(b.loopNext, postBlk)
	b.cur = bodyBlk
	if err := b.lowerStmts(n.Body); err != nil {
		return err
	}
	if b.cur.Term == nil {
		b.f.terminate(b.cur, Inst{Op: OpBr, Target: postBlk})
	}
	b.loopExit = b.loopExit[:len(b.loopExit)-1]
	b.loopNext = b.loopNext[:len(b.loopNext)-1]

	b.cur = postBlk
	if n.Post != nil {
		if _, _, err := b.lowerExprValue(n.Post); err != nil {
			return err
		}
	}
	b.f.terminate(b.cur, Inst{Op: OpBr, Target: headBlk})

	bodyBanks := b.snapshotBanks()
	b.banks = joinBanks(entry, bodyBanks)
	b.cur = endBlk
	return nil
}

// lowerCond lowers a condition expression to a scalar 0/1 operand,
// accepting either a genuine RelExpr or any other scalar expression (C's
// "any nonzero value is true").
func (b *Builder) lowerCond(e ast.Expr) (Operand, error) {
	val, _, err := b.lowerExprValue(e)
	return val, err
}
