package assembler

import (
	"github.com/rvmtoolchain/rvmc/internal/diag"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

type operandKind int

const (
	operandReg operandKind = iota
	operandImm
	operandLabel
	operandString
)

// operand is one parsed instruction/directive argument.
type operand struct {
	kind  operandKind
	reg   uint8 // valid iff kind == operandReg; stored as uint8(isa.Reg).
	imm   int32
	label string
	str   string
	line  int
	col   int
}

// statement is one parsed source line: zero or more label definitions,
// followed by either a directive or a mnemonic with its operands. Both
// directive and mnemonic are empty for a bare label line.
type statement struct {
	labels    []string
	directive string
	mnemonic  string
	operands  []operand
	line      int
}

// ---------------------------
// ----- Parser functions -----
// ---------------------------

// parseStatements groups file's tokens into one statement per source line.
func parseStatements(file string, toks []token) ([]statement, error) {
	var out []statement
	i := 0
	cur := statement{}
	flush := func(line int) {
		if len(cur.labels) > 0 || cur.mnemonic != "" || cur.directive != "" {
			cur.line = line
			out = append(out, cur)
		}
		cur = statement{}
	}
	for i < len(toks) {
		t := toks[i]
		switch t.typ {
		case tokEOF:
			flush(t.line)
			return out, nil
		case tokNewline:
			flush(t.line)
			i++
		case tokLabelDef:
			cur.labels = append(cur.labels, t.text)
			i++
		case tokDirective:
			cur.directive = t.text
			i++
			ops, next, err := parseOperandList(file, toks, i)
			if err != nil {
				return nil, err
			}
			cur.operands = ops
			i = next
		case tokIdent:
			cur.mnemonic = t.text
			i++
			ops, next, err := parseOperandList(file, toks, i)
			if err != nil {
				return nil, err
			}
			cur.operands = ops
			i = next
		default:
			return nil, diag.New(diag.Syntax, diag.Span{File: file, Line: t.line, Column: t.col}, "unexpected token %q", t.text)
		}
	}
	flush(0)
	return out, nil
}

// parseOperandList consumes a comma-separated operand list until the next
// newline or EOF, returning the index just past it.
func parseOperandList(file string, toks []token, i int) ([]operand, int, error) {
	var ops []operand
	expectOperand := true
	for i < len(toks) {
		t := toks[i]
		switch t.typ {
		case tokNewline, tokEOF:
			return ops, i, nil
		case tokComma:
			if expectOperand {
				return nil, 0, diag.New(diag.Syntax, diag.Span{File: file, Line: t.line, Column: t.col}, "unexpected ','")
			}
			expectOperand = true
			i++
		case tokIdent:
			if !expectOperand {
				return nil, 0, diag.New(diag.Syntax, diag.Span{File: file, Line: t.line, Column: t.col}, "expected ',' before %q", t.text)
			}
			if reg, ok := lookupRegister(t.text); ok {
				ops = append(ops, operand{kind: operandReg, reg: uint8(reg), line: t.line, col: t.col})
			} else {
				ops = append(ops, operand{kind: operandLabel, label: t.text, line: t.line, col: t.col})
			}
			expectOperand = false
			i++
		case tokNumber:
			if !expectOperand {
				return nil, 0, diag.New(diag.Syntax, diag.Span{File: file, Line: t.line, Column: t.col}, "expected ',' before %q", t.text)
			}
			ops = append(ops, operand{kind: operandImm, imm: int32(t.num), line: t.line, col: t.col})
			expectOperand = false
			i++
		case tokString:
			if !expectOperand {
				return nil, 0, diag.New(diag.Syntax, diag.Span{File: file, Line: t.line, Column: t.col}, "expected ',' before string literal")
			}
			ops = append(ops, operand{kind: operandString, str: t.text, line: t.line, col: t.col})
			expectOperand = false
			i++
		default:
			return nil, 0, diag.New(diag.Syntax, diag.Span{File: file, Line: t.line, Column: t.col}, "unexpected token %q in operand list", t.text)
		}
	}
	return ops, i, nil
}
