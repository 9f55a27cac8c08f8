package odds

import (
	"go/ast"
	"go/parser"
	"go/token"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelTypesDocumented(t *testing.T) {
	f, err := parser.ParseFile(token.NewFileSet(), "odds.go", nil, parser.ParseComments)
	require.NoError(t, err)

	for _, decl := range f.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.TYPE {
			continue
		}
		for _, s := range gen.Specs {
			ts := s.(*ast.TypeSpec)
			if !ts.Name.IsExported() {
				continue
			}
			assert.True(t, gen.Doc != nil || ts.Doc != nil, "type %s has no doc comment", ts.Name.Name)
		}
	}
}
