package codegen

import (
	"testing"

	"github.com/rvmtoolchain/rvmc/internal/ast"
	"github.com/rvmtoolchain/rvmc/internal/config"
	"github.com/rvmtoolchain/rvmc/internal/ir"
	"github.com/rvmtoolchain/rvmc/internal/isa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildModule(t *testing.T, prog *ast.Program) *ir.Module {
	t.Helper()
	mod, listener := ir.Build(prog)
	require.Equal(t, 0, listener.Len())
	return mod
}

func TestGenerateReturnConstantProducesAddiAndJalr(t *testing.T) {
	prog := &ast.Program{
		Functions: []*ast.Function{
			{
				Name:   "main",
				Return: ast.Type{Kind: ast.Int},
				Body: []ast.Stmt{
					&ast.ReturnStmt{X: &ast.IntLit{Value: 7, Type: ast.Type{Kind: ast.Int}}},
				},
			},
		},
	}
	mod := buildModule(t, prog)

	prog2, listener := Generate(mod, config.Default())
	require.Equal(t, 0, listener.Len())
	require.Len(t, prog2.Functions, 1)

	fn := prog2.Functions[0]
	assert.Equal(t, "main", fn.Name)

	var ops []isa.Op
	for _, ln := range fn.Lines {
		ops = append(ops, ln.Inst.Op)
	}
	require.NotEmpty(t, ops)
	assert.Contains(t, ops, isa.ADDI, "stack-bank init and materialized constants both lower to ADDI")
	assert.Contains(t, ops, isa.JALR, "epilogue returns via JALR")
}

func TestGenerateArithmeticFoldsConstantIntoImmediateOp(t *testing.T) {
	prog := &ast.Program{
		Functions: []*ast.Function{
			{
				Name:   "add5",
				Params: []ast.Param{{Name: "x", Type: ast.Type{Kind: ast.Int}}},
				Return: ast.Type{Kind: ast.Int},
				Body: []ast.Stmt{
					&ast.ReturnStmt{X: &ast.BinaryExpr{
						Op:   "+",
						X:    &ast.Ident{Name: "x", Type: ast.Type{Kind: ast.Int}},
						Y:    &ast.IntLit{Value: 5, Type: ast.Type{Kind: ast.Int}},
						Type: ast.Type{Kind: ast.Int},
					}},
				},
			},
		},
	}
	mod := buildModule(t, prog)

	prog2, listener := Generate(mod, config.Default())
	require.Equal(t, 0, listener.Len())

	var found bool
	for _, ln := range prog2.Functions[0].Lines {
		if ln.Inst.Op == isa.ADDI && ln.Inst.C == 5 {
			found = true
		}
	}
	assert.True(t, found, "x+5 should fold the constant into an ADDI immediate rather than materializing it")
}

func TestGenerateWhileLoopEmitsBranchToLabeledHead(t *testing.T) {
	prog := &ast.Program{
		Functions: []*ast.Function{
			{
				Name:   "loop",
				Return: ast.Type{Kind: ast.Void},
				Body: []ast.Stmt{
					&ast.WhileStmt{
						Cond: &ast.IntLit{Value: 1, Type: ast.Type{Kind: ast.Int}},
						Body: []ast.Stmt{&ast.BreakStmt{}},
					},
				},
			},
		},
	}
	mod := buildModule(t, prog)

	prog2, listener := Generate(mod, config.Default())
	require.Equal(t, 0, listener.Len())

	var labels []string
	for _, ln := range prog2.Functions[0].Lines {
		labels = append(labels, ln.Labels...)
	}
	assert.Contains(t, labels, "loop.while.head.1")
}

func TestGenerateFunctionPrologueAdjustsStackPointerFirstAndInitializesStackBank(t *testing.T) {
	prog := &ast.Program{
		Functions: []*ast.Function{
			{Name: "f", Return: ast.Type{Kind: ast.Void}, Body: nil},
		},
	}
	mod := buildModule(t, prog)

	prog2, listener := Generate(mod, config.Default())
	require.Equal(t, 0, listener.Len())

	lines := prog2.Functions[0].Lines
	require.NotEmpty(t, lines)
	first := lines[0].Inst
	assert.Equal(t, isa.ADDI, first.Op)
	assert.Equal(t, int32(isa.SP), first.A)
	assert.Equal(t, int32(isa.SP), first.B)

	sbInitIdx, firstStoreIdx := -1, -1
	for i, ln := range lines {
		if sbInitIdx < 0 && ln.Inst.Op == isa.ADDI && ln.Inst.A == int32(isa.SB) && ln.Inst.B == int32(isa.Zero) {
			sbInitIdx = i
		}
		if firstStoreIdx < 0 && ln.Inst.Op == isa.STORE {
			firstStoreIdx = i
		}
	}
	require.GreaterOrEqual(t, sbInitIdx, 0, "prologue must initialize SB")
	require.GreaterOrEqual(t, firstStoreIdx, 0, "prologue must save callee-saved registers")
	assert.Less(t, sbInitIdx, firstStoreIdx, "SB must be initialized before any frame STORE")
}

func TestGenerateConstantIndexGEPEmitsBankCarry(t *testing.T) {
	// arr[17000] = 1: a compile-time-constant index into a statically
	// global-banked array must still carry the overflow at runtime (DIV/MOD
	// against the bank size), not assume it stays in bank 0.
	elemT := ast.Type{Kind: ast.Int}
	full := ast.Type{Kind: ast.Array, ArrayLen: 20000, Elem: &elemT}
	prog := &ast.Program{
		Globals: []*ast.Global{{Name: "arr", Type: full}},
		Functions: []*ast.Function{
			{
				Name:   "f",
				Return: ast.Type{Kind: ast.Void},
				Body: []ast.Stmt{
					&ast.ExprStmt{X: &ast.AssignExpr{
						Target: &ast.IndexExpr{
							Base:  &ast.Ident{Name: "arr", Type: full},
							Index: &ast.IntLit{Value: 17000, Type: elemT},
							Type:  elemT,
						},
						Value: &ast.IntLit{Value: 1, Type: elemT},
						Type:  elemT,
					}},
				},
			},
		},
	}
	mod := buildModule(t, prog)

	prog2, listener := Generate(mod, config.Default())
	require.Equal(t, 0, listener.Len())

	var ops []isa.Op
	for _, ln := range prog2.Functions[0].Lines {
		ops = append(ops, ln.Inst.Op)
	}
	assert.Contains(t, ops, isa.DIVI, "the GEP's bank carry must divide by the bank size")
	assert.Contains(t, ops, isa.MODI, "the GEP's bank carry must wrap the address by the bank size")
}
