package completion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saibing/cjlscore/internal/frontend/fakefrontend"
	"github.com/saibing/cjlscore/internal/graph"
	"github.com/saibing/cjlscore/internal/model"
)

func alwaysHasBI(pkg model.PackageID) ([]byte, bool) { return []byte("bi"), true }

func TestRunBuildsFreshInstanceOnFirstRequest(t *testing.T) {
	fe := fakefrontend.New()
	g := graph.New()
	g.UpdateDependencies("pkg.a", nil, nil)

	p := New(fe)
	art, err := p.Run(context.Background(), g, "pkg.a", "a.cj", []byte("package a\ndecl Foo public"), model.Position{Line: 1, Character: 3}, false, alwaysHasBI)
	require.NoError(t, err)
	assert.Equal(t, model.PackageID("pkg.a"), art.Package)
	assert.Contains(t, art.ByFile, "a.cj")
}

func TestRunReusesInstanceForSamePackageFollowUp(t *testing.T) {
	fe := fakefrontend.New()
	g := graph.New()
	g.UpdateDependencies("pkg.a", nil, nil)

	p := New(fe)
	_, err := p.Run(context.Background(), g, "pkg.a", "a.cj", []byte("package a\ndecl Foo public"), model.Position{Line: 1, Character: 3}, false, alwaysHasBI)
	require.NoError(t, err)

	// Second request against the same package should succeed without
	// needing the BI loader again (it only gets consulted when building a
	// fresh instance).
	called := false
	loader := func(pkg model.PackageID) ([]byte, bool) { called = true; return nil, false }
	_, err = p.Run(context.Background(), g, "pkg.a", "a.cj", []byte("package a\ndecl Foo public\ndecl Bar public"), model.Position{Line: 2, Character: 3}, false, loader)
	require.NoError(t, err)
	assert.False(t, called, "same-package follow-up must reuse the previous compiler instance")
}

func TestRunFailsWithErrNeedsFullCompileWhenUpstreamBIMissing(t *testing.T) {
	fe := fakefrontend.New()
	g := graph.New()
	g.UpdateDependencies("pkg.a", []model.PackageID{"pkg.b"}, map[model.PackageID]model.EdgeLabel{"pkg.b": model.Public})

	p := New(fe)
	missing := func(pkg model.PackageID) ([]byte, bool) { return nil, false }
	_, err := p.Run(context.Background(), g, "pkg.a", "a.cj", []byte("package a"), model.Position{}, false, missing)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNeedsFullCompile)
}
