package memindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saibing/cjlscore/internal/index"
	"github.com/saibing/cjlscore/internal/model"
)

func TestLookupReturnsAtMostOneSymbol(t *testing.T) {
	x := New()
	require.NoError(t, x.Publish(context.Background(), index.Shard{
		Package: "a",
		Symbols: []model.Symbol{{ID: 1, Name: "Foo", Decl: model.Location{File: "a.cj"}}},
		Refs:    map[model.SymbolID][]model.Reference{},
	}))

	var got []model.Symbol
	require.NoError(t, x.Lookup(context.Background(), []model.SymbolID{1, 999}, func(s model.Symbol) bool {
		got = append(got, s)
		return true
	}))
	require.Len(t, got, 1)
	assert.Equal(t, "Foo", got[0].Name)
}

func TestRefsFindReferenceSeparatesDefinitionFromUses(t *testing.T) {
	x := New()
	shard := index.Shard{
		Package: "a",
		Refs: map[model.SymbolID][]model.Reference{
			1: {
				{Symbol: 1, Kind: model.RefDefinition, Loc: model.Location{File: "a.cj"}},
				{Symbol: 1, Kind: model.RefReference, Loc: model.Location{File: "b.cj"}},
				{Symbol: 1, Kind: model.RefReference, Loc: model.Location{File: "c.cj"}},
			},
		},
	}
	require.NoError(t, x.Publish(context.Background(), shard))

	def, refs, err := x.RefsFindReference(context.Background(), []model.SymbolID{1}, index.RefFilter{})
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, "a.cj", def.Loc.File)
	assert.Len(t, refs, 2)
}

func TestRemoveDropsShardEntirely(t *testing.T) {
	x := New()
	require.NoError(t, x.Publish(context.Background(), index.Shard{
		Package: "a",
		Symbols: []model.Symbol{{ID: 1, Name: "Foo"}},
	}))
	require.NoError(t, x.Remove(context.Background(), "a"))

	var got []model.Symbol
	_ = x.Lookup(context.Background(), []model.SymbolID{1}, func(s model.Symbol) bool {
		got = append(got, s)
		return true
	})
	assert.Empty(t, got)
}

func TestFindImportSymsOnCompletionVisibilityMatrix(t *testing.T) {
	x := New()
	require.NoError(t, x.Publish(context.Background(), index.Shard{
		Package: "a.util",
		Symbols: []model.Symbol{
			{ID: 1, Name: "Pub", Visibility: model.Public, ForCompletion: true},
			{ID: 2, Name: "Int", Visibility: model.Internal, ForCompletion: true},
			{ID: 3, Name: "Priv", Visibility: model.Private, ForCompletion: true},
		},
	}))

	// "a.util" derives a ChildModule relation to module "a", which (like
	// SameModule) makes INTERNAL visible per the accessibility matrix.
	out, err := x.FindImportSymsOnCompletion(context.Background(), index.ImportFilterOpts{
		CurrentPackage: "a.main",
		CurrentModule:  "a",
	})
	require.NoError(t, err)

	names := map[string]bool{}
	for _, c := range out {
		names[c.Symbol.Name] = true
	}
	assert.True(t, names["Pub"])
	assert.True(t, names["Int"]) // CHILD_MODULE makes INTERNAL visible
	assert.False(t, names["Priv"])
}

func TestFuzzyFindPrefersPrefixMatch(t *testing.T) {
	x := New()
	require.NoError(t, x.Publish(context.Background(), index.Shard{
		Package: "a",
		Symbols: []model.Symbol{
			{ID: 1, Name: "listAppend", ForCompletion: true},
			{ID: 2, Name: "append", ForCompletion: true},
		},
	}))

	var got []string
	err := x.FuzzyFind(context.Background(), index.FuzzyFindRequest{Query: "append", AnyScope: true}, func(s model.Symbol) bool {
		got = append(got, s.Name)
		return true
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "append", got[0], "exact prefix match should outrank subsequence match")
}
