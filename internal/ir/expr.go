package ir

import (
	"github.com/rvmtoolchain/rvmc/internal/ast"
	"github.com/rvmtoolchain/rvmc/internal/diag"
	"github.com/rvmtoolchain/rvmc/internal/ir/types"
)

// lowerExprValue lowers e to an Operand plus its Bank (meaningful only when
// e is pointer-typed). Every pointer arithmetic and indexing path routes
// through GEP per spec §4.1 ("Pointer arithmetic NEVER lowers to integer
// add; array indexing and struct field access NEVER bypass GEP").
func (b *Builder) lowerExprValue(e ast.Expr) (Operand, Bank, error) {
	switch n := e.(type) {
	case *ast.IntLit:
		return Const(int32(n.Value)), Bank{}, nil

	case *ast.StringLit:
		addr := b.f.emit(b.cur, Inst{Op: OpGlobalAddr, Kind: types.Pointer, Symbol: n.Label, PtrBank: GlobalBank})
		return Ref(addr.ID), GlobalBank, nil

	case *ast.Ident:
		return b.loadIdent(n)

	case *ast.BinaryExpr:
		return b.lowerBinary(n)

	case *ast.RelExpr:
		return b.lowerRel(n)

	case *ast.UnaryExpr:
		return b.lowerUnary(n)

	case *ast.IndexExpr:
		addr, bank, elemWords, elemKind, err := b.lowerGEPIndex(n)
		if err != nil {
			return Operand{}, Bank{}, err
		}
		return b.loadThrough(addr, bank, elemKind, elemWords, n.Pos)

	case *ast.FieldExpr:
		addr, bank, fieldType, err := b.lowerFieldAddr(n)
		if err != nil {
			return Operand{}, Bank{}, err
		}
		return b.loadThrough(addr, bank, kindOf(fieldType), fieldType.WordSize(), n.Pos)

	case *ast.AssignExpr:
		return b.lowerAssign(n)

	case *ast.CastExpr:
		return b.lowerCast(n)

	case *ast.CallExpr:
		return b.lowerCall(n)

	default:
		return Operand{}, Bank{}, diag.New(diag.Syntax, spanOf(e.At()), "unsupported expression %T", e)
	}
}

// loadIdent reads a local/parameter/global identifier. Locals and
// parameters round-trip through their frame slot (OpLocalAddr + OpLoad);
// globals read through OpGlobalAddr + OpLoad. This materializes spec §3's
// "temps never cross blocks" rule: every read re-derives its value from the
// variable's backing storage rather than reusing a stale cross-block ID.
func (b *Builder) loadIdent(n *ast.Ident) (Operand, Bank, error) {
	if lv, ok := b.locals[n.Name]; ok {
		addr := b.f.emit(b.cur, Inst{Op: OpLocalAddr, Kind: types.Pointer, Local: lv.Index, PtrBank: StackBank})
		return b.loadThrough(Ref(addr.ID), StackBank, kindOf(lv.Type), lv.Type.WordSize(), n.Pos)
	}
	if g, ok := b.globals[n.Name]; ok {
		addr := b.f.emit(b.cur, Inst{Op: OpGlobalAddr, Kind: types.Pointer, Symbol: g.Name, PtrBank: GlobalBank})
		return b.loadThrough(Ref(addr.ID), GlobalBank, kindOf(g.Type), g.Type.WordSize(), n.Pos)
	}
	return Operand{}, Bank{}, diag.New(diag.Resolution, spanOf(n.Pos), "unresolved identifier %q", n.Name)
}

// loadThrough emits the Load(s) needed to read a value of the given kind
// through a pointer operand. Scalars are one load; pointers are two
// (address word then bank word), and the loaded bank word becomes the
// result's dynamic provenance per spec §4.3.2 ("register the loaded bank
// value as the destination's BankInfo").
func (b *Builder) loadThrough(addr Operand, addrBank Bank, kind types.DataKind, words int, pos ast.Position) (Operand, Bank, error) {
	if !addrBank.Derefable() {
		return Operand{}, Bank{}, diag.New(diag.Provenance, spanOf(pos),
			"dereference of pointer with indeterminate bank (%s)", bankDesc(addrBank))
	}
	if kind == types.Pointer {
		lo := b.f.emit(b.cur, Inst{Op: OpLoad, Kind: types.Scalar, Base: addr, BaseBank: addrBank, Word: WordAddr})
		hi := b.f.emit(b.cur, Inst{Op: OpLoad, Kind: types.Scalar, Base: addr, BaseBank: addrBank, Word: WordBank})
		return Ref(lo.ID), RuntimeBank(hi.ID), nil
	}
	_ = words
	load := b.f.emit(b.cur, Inst{Op: OpLoad, Kind: types.Scalar, Base: addr, BaseBank: addrBank, Word: WordWhole})
	return Ref(load.ID), Bank{}, nil
}

func bankDesc(bk Bank) string {
	switch bk.Tag {
	case types.BankUnknown:
		return "unknown"
	case types.BankMixed:
		return "mixed: conflicting assignments"
	default:
		return "?"
	}
}

// storeThrough is the store-side counterpart of loadThrough.
func (b *Builder) storeThrough(addr Operand, addrBank Bank, val Operand, valBank Bank, kind types.DataKind) error {
	if !addrBank.Derefable() {
		return diag.New(diag.Provenance, diag.Span{}, "store through pointer with indeterminate bank (%s)", bankDesc(addrBank))
	}
	if kind == types.Pointer {
		b.f.emit(b.cur, Inst{Op: OpStore, Base: addr, BaseBank: addrBank, A: val, Word: WordAddr})
		b.f.emit(b.cur, Inst{Op: OpStore, Base: addr, BaseBank: addrBank, A: bankOperand(valBank), Word: WordBank})
		return nil
	}
	b.f.emit(b.cur, Inst{Op: OpStore, Base: addr, BaseBank: addrBank, A: val, Word: WordWhole})
	return nil
}

// bankOperand turns a compile-time Bank into the operand to store as the
// fat pointer's bank word: a literal index for the static tags, or a
// reference to the instruction holding the dynamic bank for BankRuntime.
func bankOperand(bk Bank) Operand {
	switch bk.Tag {
	case types.BankGlobal:
		return Const(types.GlobalBankIndex)
	case types.BankStack:
		return Const(types.StackBankIndex)
	case types.BankRuntime:
		return Ref(bk.BankVal)
	default:
		return Const(0)
	}
}

// storeLocal stores val/bank into local slot idx and updates the builder's
// compile-time provenance map for pointer locals.
func (b *Builder) storeLocal(idx int, name string, t ast.Type, val Operand, bank Bank, pos ast.Position) error {
	addr := b.f.emit(b.cur, Inst{Op: OpLocalAddr, Kind: types.Pointer, Local: idx, PtrBank: StackBank})
	if err := b.storeThrough(Ref(addr.ID), StackBank, val, bank, kindOf(t)); err != nil {
		return err
	}
	if t.IsPointer() {
		b.banks[name] = bankState{Bank: bank, Sites: []ast.Position{pos}}
	}
	return nil
}

func (b *Builder) lowerBinary(n *ast.BinaryExpr) (Operand, Bank, error) {
	xVal, xBank, err := b.lowerExprValue(n.X)
	if err != nil {
		return Operand{}, Bank{}, err
	}
	xIsPtr := n.X.ExprType().IsPointer()
	yIsPtr := n.Y.ExprType().IsPointer()

	if xIsPtr && !yIsPtr && (n.Op == "+" || n.Op == "-") {
		elem := n.X.ExprType().Elem
		words := 1
		if elem != nil {
			words = elem.WordSize()
		}
		yVal, _, err := b.lowerExprValue(n.Y)
		if err != nil {
			return Operand{}, Bank{}, err
		}
		idx := yVal
		if n.Op == "-" {
			neg := b.f.emit(b.cur, Inst{Op: OpBinary, Kind: types.Scalar, Arith: types.Sub, A: Const(0), B: yVal})
			idx = Ref(neg.ID)
		}
		return b.emitGEP(xVal, xBank, idx, words)
	}
	if xIsPtr && yIsPtr && n.Op == "-" {
		elem := n.X.ExprType().Elem
		words := 1
		if elem != nil {
			words = elem.WordSize()
		}
		yVal, _, err := b.lowerExprValue(n.Y)
		if err != nil {
			return Operand{}, Bank{}, err
		}
		diffInst := b.f.emit(b.cur, Inst{Op: OpPtrDiff, Kind: types.Scalar, Base: xVal, BaseBank: xBank, A: yVal, ElemWords: words})
		return Ref(diffInst.ID), Bank{}, nil
	}

	yVal, _, err := b.lowerExprValue(n.Y)
	if err != nil {
		return Operand{}, Bank{}, err
	}
	op, err := arithOpOf(n.Op)
	if err != nil {
		return Operand{}, Bank{}, diag.New(diag.Syntax, spanOf(n.Pos), "%s", err)
	}
	inst := b.f.emit(b.cur, Inst{Op: OpBinary, Kind: types.Scalar, Arith: op, A: xVal, B: yVal})
	return Ref(inst.ID), Bank{}, nil
}

func arithOpOf(op string) (types.ArithmeticOp, error) {
	switch op {
	case "+":
		return types.Add, nil
	case "-":
		return types.Sub, nil
	case "*":
		return types.Mul, nil
	case "/":
		return types.Div, nil
	case "%":
		return types.Mod, nil
	case "<<":
		return types.Shl, nil
	case ">>":
		return types.Shr, nil
	case "&":
		return types.And, nil
	case "^":
		return types.Xor, nil
	case "|":
		return types.Or, nil
	default:
		return 0, errUnknownOp(op)
	}
}

type errUnknownOp string

func (e errUnknownOp) Error() string { return "unknown binary operator " + string(e) }

// emitGEP lowers pointer arithmetic to a single GEP instruction; overflow
// handling across bank boundaries is entirely codegen's job (spec §4.3.3),
// so the IR only records base, unscaled index and element size.
func (b *Builder) emitGEP(base Operand, baseBank Bank, index Operand, elemWords int) (Operand, Bank, error) {
	inst := b.f.emit(b.cur, Inst{
		Op: OpGEP, Kind: types.Pointer,
		Base: base, BaseBank: baseBank, A: index, ElemWords: elemWords,
	})
	// A global's real address is only assigned at link time, and a stack
	// slot's real address depends on the call depth at runtime, so a
	// nonzero offset can carry into the next bank regardless of whether
	// the base's own bank is statically known; only a GEP that provably
	// adds nothing (a constant zero index) is guaranteed to keep the
	// base's exact bank. Every other GEP's result bank is tracked
	// dynamically, and codegen emits the runtime carry check for it (spec
	// §4.3.3).
	resultBank := baseBank
	if !(index.IsConst && index.Const == 0) {
		resultBank = RuntimeBank(inst.ID)
	}
	inst.PtrBank = resultBank
	return Ref(inst.ID), resultBank, nil
}

func (b *Builder) lowerRel(n *ast.RelExpr) (Operand, Bank, error) {
	xVal, xBank, err := b.lowerExprValue(n.X)
	if err != nil {
		return Operand{}, Bank{}, err
	}
	yVal, yBank, err := b.lowerExprValue(n.Y)
	if err != nil {
		return Operand{}, Bank{}, err
	}
	rel, err := relOpOf(n.Op, n.X.ExprType())
	if err != nil {
		return Operand{}, Bank{}, diag.New(diag.Syntax, spanOf(n.Pos), "%s", err)
	}
	// Pointer comparisons compare the address words only; the operands'
	// bank words are not compared, so pointers into different banks are
	// ordered by address alone.
	_ = xBank
	_ = yBank
	inst := b.f.emit(b.cur, Inst{Op: OpCompare, Kind: types.Scalar, Rel: rel, A: xVal, B: yVal})
	return Ref(inst.ID), Bank{}, nil
}

func relOpOf(op string, xt ast.Type) (types.RelationalOp, error) {
	signed := !xt.IsPointer() // this subset has no unsigned integer C type; pointers compare as unsigned addresses.
	switch op {
	case "==":
		return types.Eq, nil
	case "!=":
		return types.Neq, nil
	case "<":
		if signed {
			return types.LessThanSigned, nil
		}
		return types.LessThanUnsigned, nil
	case "<=":
		if signed {
			return types.LessEqualSigned, nil
		}
		return types.LessEqualUnsigned, nil
	case ">":
		if signed {
			return types.GreaterThanSigned, nil
		}
		return types.GreaterThanUnsigned, nil
	case ">=":
		if signed {
			return types.GreaterEqualSigned, nil
		}
		return types.GreaterEqualUnsigned, nil
	default:
		return 0, errUnknownOp(op)
	}
}

func (b *Builder) lowerUnary(n *ast.UnaryExpr) (Operand, Bank, error) {
	switch n.Op {
	case "&":
		return b.lowerAddrOf(n.X)
	case "*":
		addr, bank, err := b.lowerExprValue(n.X)
		if err != nil {
			return Operand{}, Bank{}, err
		}
		elemType := ast.Type{Kind: ast.Int}
		if n.X.ExprType().Elem != nil {
			elemType = *n.X.ExprType().Elem
		}
		return b.loadThrough(addr, bank, kindOf(elemType), elemType.WordSize(), n.Pos)
	case "-":
		xVal, _, err := b.lowerExprValue(n.X)
		if err != nil {
			return Operand{}, Bank{}, err
		}
		inst := b.f.emit(b.cur, Inst{Op: OpBinary, Kind: types.Scalar, Arith: types.Sub, A: Const(0), B: xVal})
		return Ref(inst.ID), Bank{}, nil
	case "~":
		xVal, _, err := b.lowerExprValue(n.X)
		if err != nil {
			return Operand{}, Bank{}, err
		}
		inst := b.f.emit(b.cur, Inst{Op: OpBinary, Kind: types.Scalar, Arith: types.Xor, A: xVal, B: Const(-1)})
		return Ref(inst.ID), Bank{}, nil
	case "!":
		xVal, _, err := b.lowerExprValue(n.X)
		if err != nil {
			return Operand{}, Bank{}, err
		}
		inst := b.f.emit(b.cur, Inst{Op: OpCompare, Kind: types.Scalar, Rel: types.Eq, A: xVal, B: Const(0)})
		return Ref(inst.ID), Bank{}, nil
	default:
		return Operand{}, Bank{}, diag.New(diag.Syntax, spanOf(n.Pos), "unsupported unary operator %q", n.Op)
	}
}

// lowerAddrOf computes &X for an lvalue X: an identifier, index, or field
// access. It never emits a Load; it returns the address GEP chain directly.
func (b *Builder) lowerAddrOf(x ast.Expr) (Operand, Bank, error) {
	switch n := x.(type) {
	case *ast.Ident:
		if lv, ok := b.locals[n.Name]; ok {
			addr := b.f.emit(b.cur, Inst{Op: OpLocalAddr, Kind: types.Pointer, Local: lv.Index, PtrBank: StackBank})
			return Ref(addr.ID), StackBank, nil
		}
		if g, ok := b.globals[n.Name]; ok {
			addr := b.f.emit(b.cur, Inst{Op: OpGlobalAddr, Kind: types.Pointer, Symbol: g.Name, PtrBank: GlobalBank})
			return Ref(addr.ID), GlobalBank, nil
		}
		return Operand{}, Bank{}, diag.New(diag.Resolution, spanOf(n.Pos), "unresolved identifier %q", n.Name)
	case *ast.IndexExpr:
		addr, bank, _, _, err := b.lowerGEPIndex(n)
		return addr, bank, err
	case *ast.FieldExpr:
		addr, bank, _, err := b.lowerFieldAddr(n)
		return addr, bank, err
	case *ast.UnaryExpr:
		if n.Op == "*" {
			return b.lowerExprValue(n.X)
		}
	}
	return Operand{}, Bank{}, diag.New(diag.Syntax, spanOf(x.At()), "operand of & is not an lvalue")
}

// lowerGEPIndex lowers arr[i] to its address, without the trailing load,
// so both read and address-of paths share the computation.
func (b *Builder) lowerGEPIndex(n *ast.IndexExpr) (Operand, Bank, int, types.DataKind, error) {
	baseAddr, baseBank, err := b.lowerAddrOf(n.Base)
	if err != nil {
		// Base may itself already be a pointer value (e.g. a parameter),
		// not an addressable array lvalue; fall back to its value.
		baseAddr, baseBank, err = b.lowerExprValue(n.Base)
		if err != nil {
			return Operand{}, Bank{}, 0, 0, err
		}
	}
	elemType := ast.Type{Kind: ast.Int}
	if n.Base.ExprType().Elem != nil {
		elemType = *n.Base.ExprType().Elem
	}
	idx, _, err := b.lowerExprValue(n.Index)
	if err != nil {
		return Operand{}, Bank{}, 0, 0, err
	}
	addr, bank, err := b.emitGEP(baseAddr, baseBank, idx, elemType.WordSize())
	return addr, bank, elemType.WordSize(), kindOf(elemType), err
}

// lowerFieldAddr lowers obj.field / ptr->field to the field's address.
func (b *Builder) lowerFieldAddr(n *ast.FieldExpr) (Operand, Bank, ast.Type, error) {
	var baseAddr Operand
	var baseBank Bank
	var err error
	structType := n.Base.ExprType()
	if n.Arrow {
		baseAddr, baseBank, err = b.lowerExprValue(n.Base)
		if structType.Elem != nil {
			structType = *structType.Elem
		}
	} else {
		baseAddr, baseBank, err = b.lowerAddrOf(n.Base)
	}
	if err != nil {
		return Operand{}, Bank{}, ast.Type{}, err
	}
	var field ast.Field
	found := false
	for _, f := range structType.Fields {
		if f.Name == n.Field {
			field = f
			found = true
			break
		}
	}
	if !found {
		return Operand{}, Bank{}, ast.Type{}, diag.New(diag.Resolution, spanOf(n.Pos), "unknown field %q", n.Field)
	}
	addr, bank, err := b.emitGEP(baseAddr, baseBank, Const(0), 1)
	if err != nil {
		return Operand{}, Bank{}, ast.Type{}, err
	}
	if field.OffsetWord != 0 {
		addr, bank, err = b.emitGEP(addr, bank, Const(int32(field.OffsetWord)), 1)
	}
	return addr, bank, field.Type, err
}

func (b *Builder) lowerAssign(n *ast.AssignExpr) (Operand, Bank, error) {
	rhs := n.Value
	if n.CompoundOp != "" {
		rhs = &ast.BinaryExpr{Op: n.CompoundOp, X: n.Target, Y: n.Value, Type: n.Type, Pos: n.Pos}
	}
	val, bank, err := b.lowerExprValue(rhs)
	if err != nil {
		return Operand{}, Bank{}, err
	}
	switch t := n.Target.(type) {
	case *ast.Ident:
		if lv, ok := b.locals[t.Name]; ok {
			if err := b.storeLocal(lv.Index, t.Name, lv.Type, val, bank, n.Pos); err != nil {
				return Operand{}, Bank{}, err
			}
			return val, bank, nil
		}
		if g, ok := b.globals[t.Name]; ok {
			addr := b.f.emit(b.cur, Inst{Op: OpGlobalAddr, Kind: types.Pointer, Symbol: g.Name, PtrBank: GlobalBank})
			if err := b.storeThrough(Ref(addr.ID), GlobalBank, val, bank, kindOf(g.Type)); err != nil {
				return Operand{}, Bank{}, err
			}
			return val, bank, nil
		}
		return Operand{}, Bank{}, diag.New(diag.Resolution, spanOf(t.Pos), "unresolved identifier %q", t.Name)
	case *ast.UnaryExpr:
		if t.Op != "*" {
			return Operand{}, Bank{}, diag.New(diag.Syntax, spanOf(t.Pos), "invalid assignment target")
		}
		addr, addrBank, err := b.lowerExprValue(t.X)
		if err != nil {
			return Operand{}, Bank{}, err
		}
		if err := b.storeThrough(addr, addrBank, val, bank, kindOf(n.Type)); err != nil {
			return Operand{}, Bank{}, err
		}
		return val, bank, nil
	case *ast.IndexExpr:
		addr, addrBank, _, _, err := b.lowerGEPIndex(t)
		if err != nil {
			return Operand{}, Bank{}, err
		}
		if err := b.storeThrough(addr, addrBank, val, bank, kindOf(n.Type)); err != nil {
			return Operand{}, Bank{}, err
		}
		return val, bank, nil
	case *ast.FieldExpr:
		addr, addrBank, fieldType, err := b.lowerFieldAddr(t)
		if err != nil {
			return Operand{}, Bank{}, err
		}
		if err := b.storeThrough(addr, addrBank, val, bank, kindOf(fieldType)); err != nil {
			return Operand{}, Bank{}, err
		}
		return val, bank, nil
	default:
		return Operand{}, Bank{}, diag.New(diag.Syntax, spanOf(n.Pos), "invalid assignment target %T", n.Target)
	}
}

// lowerCast implements spec §4.1's cast rules: pointer<->integer preserves
// the address word and sets BankUnknown; integer<->integer is a no-op at
// this width.
func (b *Builder) lowerCast(n *ast.CastExpr) (Operand, Bank, error) {
	val, bank, err := b.lowerExprValue(n.X)
	if err != nil {
		return Operand{}, Bank{}, err
	}
	fromPtr := n.X.ExprType().IsPointer()
	toPtr := n.Type.IsPointer()
	if fromPtr == toPtr {
		inst := b.f.emit(b.cur, Inst{Op: OpCast, Kind: kindOf(n.Type), A: val, CastTo: kindOf(n.Type)})
		return Ref(inst.ID), bank, nil
	}
	inst := b.f.emit(b.cur, Inst{Op: OpCast, Kind: kindOf(n.Type), A: val, CastTo: kindOf(n.Type)})
	resultBank := Bank{}
	if toPtr {
		resultBank = UnknownBank
	}
	return Ref(inst.ID), resultBank, nil
}

func (b *Builder) lowerCall(n *ast.CallExpr) (Operand, Bank, error) {
	args := make([]Operand, 0, len(n.Args)*2)
	for _, a := range n.Args {
		val, bank, err := b.lowerExprValue(a)
		if err != nil {
			return Operand{}, Bank{}, err
		}
		args = append(args, val)
		if a.ExprType().IsPointer() {
			args = append(args, bankOperand(bank))
		}
	}
	resultKind := types.Scalar
	if n.Type.IsPointer() {
		resultKind = types.Pointer
	}
	call := b.f.emit(b.cur, Inst{Op: OpCall, Kind: resultKind, Symbol: n.Callee, Args: args})
	if resultKind == types.Pointer {
		// The call's own ID carries the address word (RV0); the bank word
		// (RV1) is read by a lightweight companion instruction that emits
		// no call of its own (spec §4.4: "Fat pointer: address in RV0,
		// bank in RV1").
		bankInst := b.f.emit(b.cur, Inst{Op: OpCallBankResult, Kind: types.Scalar, A: Ref(call.ID)})
		return Ref(call.ID), RuntimeBank(bankInst.ID), nil
	}
	return Ref(call.ID), Bank{}, nil
}
