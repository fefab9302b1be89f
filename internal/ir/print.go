package ir

import (
	"fmt"
	"strings"
)

// Dump renders m as a textual listing for diagnostics. It follows the convention of one line per
// instruction, block labels as headers.
func (m *Module) Dump() string {
	sb := strings.Builder{}
	for _, g := range m.Globals {
		if g.IsCString {
			fmt.Fprintf(&sb, "global %s: %q\n", g.Name, g.CString)
		} else {
			fmt.Fprintf(&sb, "global %s: %d word(s)\n", g.Name, g.Words)
		}
	}
	for _, fn := range m.Functions {
		fn.dumpTo(&sb)
	}
	return sb.String()
}

func (f *Function) dumpTo(sb *strings.Builder) {
	fmt.Fprintf(sb, "func %s(", f.Name)
	for i, p := range f.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(sb, "%s:%s", p.Name, p.Kind)
	}
	fmt.Fprintf(sb, ") locals=%d {\n", f.NumLocals)
	for _, b := range f.Blocks {
		fmt.Fprintf(sb, "%s:\n", b.Name)
		for _, inst := range b.Insts {
			fmt.Fprintf(sb, "\t%s\n", inst.String())
		}
		if b.Term != nil {
			fmt.Fprintf(sb, "\t%s\n", b.Term.String())
		}
	}
	sb.WriteString("}\n")
}

// String renders a single instruction for diagnostics and --trace dumps.
func (i *Inst) String() string {
	prefix := ""
	if i.Op != OpBr && i.Op != OpCondBr && i.Op != OpStore && i.Op != OpReturn {
		prefix = fmt.Sprintf("%%%d = ", i.ID)
	}
	switch i.Op {
	case OpConst:
		return fmt.Sprintf("%sconst %d", prefix, i.Imm)
	case OpLocalAddr:
		return fmt.Sprintf("%slocal.addr %d", prefix, i.Local)
	case OpGlobalAddr:
		return fmt.Sprintf("%sglobal.addr %s", prefix, i.Symbol)
	case OpBinary:
		return fmt.Sprintf("%s%s %s, %s", prefix, i.Arith, i.A, i.B)
	case OpCompare:
		return fmt.Sprintf("%scmp.%s %s, %s", prefix, i.Rel, i.A, i.B)
	case OpGEP:
		return fmt.Sprintf("%sgep %s, %s * %d", prefix, i.Base, i.A, i.ElemWords)
	case OpPtrDiff:
		return fmt.Sprintf("%sptrdiff %s, %s / %d", prefix, i.Base, i.A, i.ElemWords)
	case OpLoad:
		return fmt.Sprintf("%sload.%s %s", prefix, i.Word, i.Base)
	case OpStore:
		return fmt.Sprintf("store.%s %s -> %s", i.Word, i.A, i.Base)
	case OpCall:
		return fmt.Sprintf("%scall %s(%v)", prefix, i.Symbol, i.Args)
	case OpCallBankResult:
		return fmt.Sprintf("%scall.bank %s", prefix, i.A)
	case OpParamBankIn:
		return fmt.Sprintf("%sparam.bank %d", prefix, i.ParamIndex)
	case OpCast:
		return fmt.Sprintf("%scast %s", prefix, i.A)
	case OpBr:
		return fmt.Sprintf("br %s", i.Target.Name)
	case OpCondBr:
		return fmt.Sprintf("br.cond %s, %s, %s", i.A, i.Target.Name, i.Else.Name)
	case OpReturn:
		if !i.HasValue {
			return "ret"
		}
		return fmt.Sprintf("ret %s", i.A)
	default:
		return fmt.Sprintf("%s?op(%d)", prefix, i.Op)
	}
}

func (o Operand) String() string {
	if o.IsConst {
		return fmt.Sprintf("%d", o.Const)
	}
	return fmt.Sprintf("%%%d", o.Value)
}

func (w LoadWord) String() string {
	switch w {
	case WordAddr:
		return "addr"
	case WordBank:
		return "bank"
	default:
		return "word"
	}
}
