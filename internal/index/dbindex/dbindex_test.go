package dbindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saibing/cjlscore/internal/index"
	"github.com/saibing/cjlscore/internal/model"
)

func openTest(t *testing.T) *Index {
	t.Helper()
	x, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = x.Close() })
	return x
}

func TestLookupReturnsAtMostOneSymbol(t *testing.T) {
	x := openTest(t)
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
	x := openTest(t)
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
	x := openTest(t)
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

func TestPublishUpsertsExistingShard(t *testing.T) {
	x := openTest(t)
	require.NoError(t, x.Publish(context.Background(), index.Shard{
		Package: "a",
		Symbols: []model.Symbol{{ID: 1, Name: "Old"}},
	}))
	require.NoError(t, x.Publish(context.Background(), index.Shard{
		Package: "a",
		Symbols: []model.Symbol{{ID: 2, Name: "New"}},
	}))

	var got []string
	require.NoError(t, x.PackageSymbols(context.Background(), "a", func(s model.Symbol) bool {
		got = append(got, s.Name)
		return true
	}))
	assert.Equal(t, []string{"New"}, got, "a republish replaces the whole shard, not merges with it")
}

func TestFindImportSymsOnCompletionVisibilityMatrix(t *testing.T) {
	x := openTest(t)
	require.NoError(t, x.Publish(context.Background(), index.Shard{
		Package: "a.util",
		Symbols: []model.Symbol{
			{ID: 1, Name: "Pub", Visibility: model.Public, ForCompletion: true},
			{ID: 2, Name: "Int", Visibility: model.Internal, ForCompletion: true},
			{ID: 3, Name: "Priv", Visibility: model.Private, ForCompletion: true},
		},
	}))

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
	assert.True(t, names["Int"])
	assert.False(t, names["Priv"])
}

func TestFuzzyFindMatchesByPrefix(t *testing.T) {
	x := openTest(t)
	require.NoError(t, x.Publish(context.Background(), index.Shard{
		Package: "a",
		Symbols: []model.Symbol{
			{ID: 1, Name: "append", ForCompletion: true},
			{ID: 2, Name: "prepend", ForCompletion: true},
		},
	}))

	var got []string
	err := x.FuzzyFind(context.Background(), index.FuzzyFindRequest{Query: "app", AnyScope: true}, func(s model.Symbol) bool {
		got = append(got, s.Name)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"append"}, got)
}

func TestIsObsoleteDetectsChangedDigest(t *testing.T) {
	x := openTest(t)
	ctx := context.Background()

	obsolete, err := x.IsObsolete(ctx, "a", "a.cj", "digest-1")
	require.NoError(t, err)
	assert.True(t, obsolete, "a file never recorded is treated as obsolete")

	require.NoError(t, x.SetFileDigest(ctx, "a", "a.cj", "digest-1"))
	obsolete, err = x.IsObsolete(ctx, "a", "a.cj", "digest-1")
	require.NoError(t, err)
	assert.False(t, obsolete)

	obsolete, err = x.IsObsolete(ctx, "a", "a.cj", "digest-2")
	require.NoError(t, err)
	assert.True(t, obsolete)
}

func TestRemoveAlsoDropsFileDigests(t *testing.T) {
	x := openTest(t)
	ctx := context.Background()
	require.NoError(t, x.SetFileDigest(ctx, "a", "a.cj", "digest-1"))
	require.NoError(t, x.Remove(ctx, "a"))

	obsolete, err := x.IsObsolete(ctx, "a", "a.cj", "digest-1")
	require.NoError(t, err)
	assert.True(t, obsolete, "removing a package clears its file digests along with its shard")
}
