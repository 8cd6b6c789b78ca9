package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saibing/cjlscore/internal/config"
	"github.com/saibing/cjlscore/internal/frontend"
	"github.com/saibing/cjlscore/internal/frontend/fakefrontend"
	"github.com/saibing/cjlscore/internal/index"
	"github.com/saibing/cjlscore/internal/index/memindex"
	"github.com/saibing/cjlscore/internal/model"
)

func testOrchestrator() *Orchestrator {
	cfg := config.Config{Platform: config.PlatformFlags{Test: true}}
	return New(cfg, fakefrontend.New(), memindex.New(), nil, nil)
}

func input(pkg model.PackageID, file, content string) frontend.CompileInput {
	return frontend.CompileInput{
		Package: pkg,
		Files:   []frontend.FileInput{{Path: file, Content: []byte(content), State: model.Added}},
	}
}

func TestFullCompilePublishesIndexShard(t *testing.T) {
	o := testOrchestrator()
	o.RegisterPackage("pkg.a", input("pkg.a", "a.cj", "package pkg.a\ndecl Foo func"), "m", "/src/a")

	require.NoError(t, o.FullCompile(context.Background()))

	var found []string
	err := o.Index().FuzzyFind(context.Background(), index.FuzzyFindRequest{Query: "Foo", AnyScope: true}, func(s model.Symbol) bool {
		found = append(found, s.Name)
		return true
	})
	require.NoError(t, err)
	assert.Contains(t, found, "Foo")
}

func TestIncrementalCompilePropagatesStaleToDependent(t *testing.T) {
	o := testOrchestrator()
	o.RegisterPackage("pkg.a", input("pkg.a", "a.cj", "package pkg.a\ndecl Foo func"), "m", "/src/a")
	o.RegisterPackage("pkg.b", frontend.CompileInput{
		Package: "pkg.b",
		Files: []frontend.FileInput{{
			Path:    "b.cj",
			Content: []byte("package pkg.b\nimport pkg.a public\nuse Foo"),
			State:   model.Added,
		}},
	}, "m", "/src/b")

	require.NoError(t, o.FullCompile(context.Background()))
	require.Equal(t, model.Fresh, o.bi.GetStatus("pkg.a"))
	require.Equal(t, model.Fresh, o.bi.GetStatus("pkg.b"))

	err := o.IncrementalCompile(context.Background(), "a.cj", []byte("package pkg.a\ndecl Foo func\ndecl Bar func"), model.Changed)
	require.NoError(t, err)

	assert.Equal(t, model.Fresh, o.bi.GetStatus("pkg.a"))
	assert.Equal(t, model.Stale, o.bi.GetStatus("pkg.b"), "a BI change marks its direct dependent STALE; the dependent is recompiled lazily, on its own next touch")
}

func TestDeletePackageClearsIndexAndArtifact(t *testing.T) {
	o := testOrchestrator()
	o.RegisterPackage("pkg.a", input("pkg.a", "a.cj", "package pkg.a\ndecl Foo func"), "m", "/src/a")
	require.NoError(t, o.FullCompile(context.Background()))
	require.True(t, o.artifacts.Has("pkg.a"))

	require.NoError(t, o.DeletePackage(context.Background(), "pkg.a"))
	assert.False(t, o.artifacts.Has("pkg.a"))

	var found []string
	_ = o.Index().PackageSymbols(context.Background(), "pkg.a", func(s model.Symbol) bool {
		found = append(found, s.Name)
		return true
	})
	assert.Empty(t, found)
}

func TestFindAutoImportCandidatesFiltersByModuleDirectDeps(t *testing.T) {
	cfg := config.Config{
		Platform: config.PlatformFlags{Test: true},
		MultiModule: map[string]config.ModuleEntry{
			"m":     {Name: "m", Requires: []string{"dep"}},
			"dep":   {Name: "dep"},
			"stray": {Name: "stray"},
		},
	}
	o := New(cfg, fakefrontend.New(), memindex.New(), nil, nil)
	o.RegisterPackage("m.main", input("m.main", "main.cj", "package m.main"), "m", "/src/main")
	o.RegisterPackage("dep", input("dep", "util.cj", "package dep\ndecl Helper func"), "dep", "/src/dep")
	o.RegisterPackage("stray", input("stray", "stray.cj", "package stray\ndecl Other func"), "stray", "/src/stray")

	require.NoError(t, o.FullCompile(context.Background()))

	out, err := o.FindAutoImportCandidates(context.Background(), "m.main", nil, "")
	require.NoError(t, err)

	var names []string
	for _, c := range out {
		names = append(names, c.Symbol.Name)
	}
	assert.Contains(t, names, "Helper", "dep is a declared direct dependency of m")
	assert.NotContains(t, names, "Other", "stray is not a direct dependency of m")
}

func TestFindAutoImportCandidatesDisabledByPlatformFlag(t *testing.T) {
	cfg := config.Config{Platform: config.PlatformFlags{Test: true, DisableAutoImport: true}}
	o := New(cfg, fakefrontend.New(), memindex.New(), nil, nil)
	o.RegisterPackage("m.main", input("m.main", "main.cj", "package m.main"), "m", "/src/main")
	require.NoError(t, o.FullCompile(context.Background()))

	out, err := o.FindAutoImportCandidates(context.Background(), "m.main", nil, "")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCycleDetectionMarksBothPackagesDiagnostics(t *testing.T) {
	o := testOrchestrator()
	o.RegisterPackage("pkg.a", frontend.CompileInput{
		Package: "pkg.a",
		Files:   []frontend.FileInput{{Path: "a.cj", Content: []byte("package pkg.a\nimport pkg.b public"), State: model.Added}},
	}, "m", "/src/a")
	o.RegisterPackage("pkg.b", frontend.CompileInput{
		Package: "pkg.b",
		Files:   []frontend.FileInput{{Path: "b.cj", Content: []byte("package pkg.b\nimport pkg.a public"), State: model.Added}},
	}, "m", "/src/b")

	require.NoError(t, o.FullCompile(context.Background()))

	diagsA := o.diag.PackageDiagnostics("pkg.a")
	diagsB := o.diag.PackageDiagnostics("pkg.b")
	require.NotEmpty(t, diagsA)
	require.NotEmpty(t, diagsB)
	assert.Contains(t, diagsA[0].Message, "import cycle")
}
