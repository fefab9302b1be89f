package ir

import (
	"testing"

	"github.com/rvmtoolchain/rvmc/internal/ast"
	"github.com/rvmtoolchain/rvmc/internal/diag"
	"github.com/rvmtoolchain/rvmc/internal/ir/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intType() ast.Type { return ast.Type{Kind: ast.Int} }

func ptrToInt() ast.Type { return ast.Type{Kind: ast.Pointer, Elem: &ast.Type{Kind: ast.Int}} }

func TestBuildSimpleReturnFunction(t *testing.T) {
	prog := &ast.Program{
		Functions: []*ast.Function{
			{
				Name:   "main",
				Return: intType(),
				Body: []ast.Stmt{
					&ast.ReturnStmt{X: &ast.IntLit{Value: 1, Type: intType()}},
				},
			},
		},
	}

	mod, listener := Build(prog)
	require.Equal(t, 0, listener.Len())
	require.Len(t, mod.Functions, 1)

	fn := mod.Functions[0]
	assert.True(t, fn.Returns)
	require.Len(t, fn.Blocks, 1)
	term := fn.Blocks[0].Term
	require.NotNil(t, term)
	assert.Equal(t, OpReturn, term.Op)
	assert.True(t, term.HasValue)
	assert.True(t, term.A.IsConst)
	assert.Equal(t, int32(1), term.A.Const)
}

func TestBuildKeepsLoweringAfterAFunctionLocalError(t *testing.T) {
	prog := &ast.Program{
		Functions: []*ast.Function{
			{
				Name:   "broken",
				Return: ast.Type{Kind: ast.Void},
				Body: []ast.Stmt{
					&ast.ExprStmt{X: &ast.Ident{Name: "nosuch", Type: intType()}},
				},
			},
			{
				Name:   "ok",
				Return: ast.Type{Kind: ast.Void},
				Body:   nil,
			},
		},
	}

	mod, listener := Build(prog)
	assert.Equal(t, 1, listener.Len())
	require.Len(t, mod.Functions, 1, "the second function still lowers despite the first's error")
	assert.Equal(t, "ok", mod.Functions[0].Name)
}

func TestBuildRejectsDereferenceOfCastProducedUnknownBank(t *testing.T) {
	// An int cast to a pointer carries no provenance; dereferencing the
	// cast result directly (without round-tripping through a variable)
	// surfaces the Unknown tag straight to the dereference check.
	prog := &ast.Program{
		Functions: []*ast.Function{
			{
				Name:   "deref",
				Params: []ast.Param{{Name: "x", Type: intType()}},
				Return: ast.Type{Kind: ast.Void},
				Body: []ast.Stmt{
					&ast.ExprStmt{X: &ast.UnaryExpr{
						Op: "*",
						X: &ast.CastExpr{
							X:    &ast.Ident{Name: "x", Type: intType()},
							Type: ptrToInt(),
						},
						Type: intType(),
					}},
				},
			},
		},
	}

	mod, listener := Build(prog)
	require.Equal(t, 1, listener.Len())
	assert.Len(t, mod.Functions, 0)
	assert.Equal(t, diag.Provenance, listener.Errors()[0].Kind)
}

func TestBuildConstantIndexGEPGetsDynamicBankUnlessIndexIsZero(t *testing.T) {
	// arr[17000]: the base is statically Global, but the offset is a
	// nonzero compile-time constant, so the result bank must be tracked
	// dynamically (codegen carries the overflow at runtime) rather than
	// inherited unchanged from the base.
	arrType := ast.Type{Kind: ast.Array, ArrayLen: 20000, Elem: &ast.Type{Kind: ast.Int}}
	prog := &ast.Program{
		Globals: []*ast.Global{{Name: "arr", Type: arrType}},
		Functions: []*ast.Function{
			{
				Name:   "f",
				Return: ast.Type{Kind: ast.Void},
				Body: []ast.Stmt{
					&ast.ExprStmt{X: &ast.AssignExpr{
						Target: &ast.IndexExpr{
							Base:  &ast.Ident{Name: "arr", Type: arrType},
							Index: &ast.IntLit{Value: 17000, Type: intType()},
							Type:  intType(),
						},
						Value: &ast.IntLit{Value: 1, Type: intType()},
						Type:  intType(),
					}},
				},
			},
		},
	}

	mod, listener := Build(prog)
	require.Equal(t, 0, listener.Len())
	require.Len(t, mod.Functions, 1)

	var gep *Inst
	for _, b := range mod.Functions[0].Blocks {
		for _, inst := range b.Insts {
			if inst.Op == OpGEP {
				gep = inst
			}
		}
	}
	require.NotNil(t, gep, "assigning to arr[17000] must lower through a GEP")
	assert.NotEqual(t, GlobalBank, gep.PtrBank, "a nonzero constant offset must not keep the base's static bank")
	assert.Equal(t, gep.ID, gep.PtrBank.BankVal, "the GEP's own id names its dynamically tracked bank")
}

func TestBuildZeroIndexGEPKeepsBaseBank(t *testing.T) {
	// arr[0]: the offset is a compile-time-provable zero, so the base's
	// static bank carries through unchanged with no runtime tracking.
	arrType := ast.Type{Kind: ast.Array, ArrayLen: 4, Elem: &ast.Type{Kind: ast.Int}}
	prog := &ast.Program{
		Globals: []*ast.Global{{Name: "arr", Type: arrType}},
		Functions: []*ast.Function{
			{
				Name:   "f",
				Return: ast.Type{Kind: ast.Void},
				Body: []ast.Stmt{
					&ast.ExprStmt{X: &ast.AssignExpr{
						Target: &ast.IndexExpr{
							Base:  &ast.Ident{Name: "arr", Type: arrType},
							Index: &ast.IntLit{Value: 0, Type: intType()},
							Type:  intType(),
						},
						Value: &ast.IntLit{Value: 1, Type: intType()},
						Type:  intType(),
					}},
				},
			},
		},
	}

	mod, listener := Build(prog)
	require.Equal(t, 0, listener.Len())

	var gep *Inst
	for _, b := range mod.Functions[0].Blocks {
		for _, inst := range b.Insts {
			if inst.Op == OpGEP {
				gep = inst
			}
		}
	}
	require.NotNil(t, gep)
	assert.Equal(t, GlobalBank, gep.PtrBank)
}

func TestJoinBankLattice(t *testing.T) {
	assert.Equal(t, StackBank, JoinBank(UnknownBank, StackBank))
	assert.Equal(t, GlobalBank, JoinBank(GlobalBank, UnknownBank))
	assert.Equal(t, StackBank, JoinBank(StackBank, StackBank))
	assert.Equal(t, MixedBank, JoinBank(StackBank, GlobalBank))

	r1 := RuntimeBank(1)
	r2 := RuntimeBank(2)
	assert.Equal(t, r1, JoinBank(r1, r1))
	assert.Equal(t, MixedBank, JoinBank(r1, r2))
}

func TestBankDerefable(t *testing.T) {
	assert.True(t, StackBank.Derefable())
	assert.True(t, GlobalBank.Derefable())
	assert.True(t, RuntimeBank(1).Derefable())
	assert.False(t, UnknownBank.Derefable())
	assert.False(t, MixedBank.Derefable())
}

func TestBuildBreakOutsideLoopFails(t *testing.T) {
	prog := &ast.Program{
		Functions: []*ast.Function{
			{
				Name:   "f",
				Return: ast.Type{Kind: ast.Void},
				Body:   []ast.Stmt{&ast.BreakStmt{}},
			},
		},
	}
	_, listener := Build(prog)
	require.Equal(t, 1, listener.Len())
	assert.Equal(t, diag.Syntax, listener.Errors()[0].Kind)
}

func TestBuildWhileLoopProducesHeadBodyEndBlocks(t *testing.T) {
	prog := &ast.Program{
		Functions: []*ast.Function{
			{
				Name:   "f",
				Return: ast.Type{Kind: ast.Void},
				Body: []ast.Stmt{
					&ast.WhileStmt{
						Cond: &ast.IntLit{Value: 1, Type: intType()},
						Body: []ast.Stmt{&ast.BreakStmt{}},
					},
				},
			},
		},
	}
	mod, listener := Build(prog)
	require.Equal(t, 0, listener.Len())
	require.Len(t, mod.Functions, 1)
	// entry, while.head, while.body, while.end
	assert.Len(t, mod.Functions[0].Blocks, 4)
}

func TestParamOffsetsPackScalarThenPointerByWordSize(t *testing.T) {
	prog := &ast.Program{
		Functions: []*ast.Function{
			{
				Name:   "f",
				Params: []ast.Param{{Name: "x", Type: intType()}, {Name: "p", Type: ptrToInt()}},
				Return: ast.Type{Kind: ast.Void},
				Body:   nil,
			},
		},
	}
	mod, listener := Build(prog)
	require.Equal(t, 0, listener.Len())
	fn := mod.Functions[0]
	require.Len(t, fn.Params, 2)
	assert.Equal(t, types.Scalar, fn.Params[0].Kind)
	assert.Equal(t, types.Pointer, fn.Params[1].Kind)
	require.Len(t, fn.ParamOffsets, 2)
	assert.Equal(t, 0, fn.ParamOffsets[0])
	assert.Equal(t, 1, fn.ParamOffsets[1], "scalar x occupies word 0, pointer p starts at word 1")
}
