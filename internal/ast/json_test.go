package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEncodeRoundTrip(t *testing.T) {
	prog := &Program{
		Globals: []*Global{
			{Name: "x", Type: Type{Kind: Int}, Pos: Position{File: "t.c", Line: 1}},
		},
		Functions: []*Function{
			{
				Name:   "main",
				Return: Type{Kind: Int},
				Body: []Stmt{
					&DeclStmt{Name: "y", Type: Type{Kind: Int}, Init: &IntLit{Value: 3, Type: Type{Kind: Int}}},
					&IfStmt{
						Cond: &RelExpr{Op: ">", X: &Ident{Name: "y", Type: Type{Kind: Int}}, Y: &IntLit{Value: 0, Type: Type{Kind: Int}}},
						Then: []Stmt{&ReturnStmt{X: &Ident{Name: "y", Type: Type{Kind: Int}}}},
						Else: []Stmt{&ReturnStmt{X: &IntLit{Value: 0, Type: Type{Kind: Int}}}},
					},
					&WhileStmt{
						Cond: &IntLit{Value: 1, Type: Type{Kind: Int}},
						Body: []Stmt{&BreakStmt{}},
					},
					&ForStmt{
						Init: &DeclStmt{Name: "i", Type: Type{Kind: Int}, Init: &IntLit{Value: 0, Type: Type{Kind: Int}}},
						Cond: &RelExpr{Op: "<", X: &Ident{Name: "i", Type: Type{Kind: Int}}, Y: &IntLit{Value: 10, Type: Type{Kind: Int}}},
						Post: &UnaryExpr{Op: "++", X: &Ident{Name: "i", Type: Type{Kind: Int}}, Type: Type{Kind: Int}},
						Body: []Stmt{&ContinueStmt{}},
					},
					&ExprStmt{X: &CallExpr{Callee: "puts", Args: []Expr{&StringLit{Label: "L0", Value: "hi"}}, Type: Type{Kind: Void}}},
				},
			},
		},
	}

	data, err := Encode(prog)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	require.Len(t, decoded.Globals, 1)
	assert.Equal(t, "x", decoded.Globals[0].Name)

	require.Len(t, decoded.Functions, 1)
	fn := decoded.Functions[0]
	require.Len(t, fn.Body, 5)

	decl, ok := fn.Body[0].(*DeclStmt)
	require.True(t, ok)
	assert.Equal(t, "y", decl.Name)
	lit, ok := decl.Init.(*IntLit)
	require.True(t, ok)
	assert.Equal(t, int64(3), lit.Value)

	ifs, ok := fn.Body[1].(*IfStmt)
	require.True(t, ok)
	require.Len(t, ifs.Then, 1)
	require.Len(t, ifs.Else, 1)

	whiles, ok := fn.Body[2].(*WhileStmt)
	require.True(t, ok)
	require.Len(t, whiles.Body, 1)
	_, ok = whiles.Body[0].(*BreakStmt)
	assert.True(t, ok)

	fors, ok := fn.Body[3].(*ForStmt)
	require.True(t, ok)
	require.NotNil(t, fors.Init)
	require.NotNil(t, fors.Post)
	require.Len(t, fors.Body, 1)

	exprStmt, ok := fn.Body[4].(*ExprStmt)
	require.True(t, ok)
	call, ok := exprStmt.X.(*CallExpr)
	require.True(t, ok)
	assert.Equal(t, "puts", call.Callee)
	require.Len(t, call.Args, 1)
	str, ok := call.Args[0].(*StringLit)
	require.True(t, ok)
	assert.Equal(t, "hi", str.Value)
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	_, err := decodeExpr([]byte(`{"Kind":"Bogus"}`))
	assert.Error(t, err)

	_, err = decodeStmt([]byte(`{"Kind":"Bogus"}`))
	assert.Error(t, err)
}
