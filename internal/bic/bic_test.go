package bic

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/saibing/cjlscore/internal/graph"
	"github.com/saibing/cjlscore/internal/model"
)

func TestCheckChangedUnknownPackageIsChanged(t *testing.T) {
	c := New()
	assert.True(t, c.CheckChanged("a", []byte("x")))
}

func TestCheckChangedByteCompare(t *testing.T) {
	c := New()
	c.SetData("a", []byte("same"))
	assert.False(t, c.CheckChanged("a", []byte("same")))
	assert.True(t, c.CheckChanged("a", []byte("different")))
}

func TestUpdateDownstreamPackagesDirectVsTransitive(t *testing.T) {
	g := graph.New()
	g.UpdateDependencies("b", []model.PackageID{"a"}, map[model.PackageID]model.EdgeLabel{"a": model.Public})
	g.UpdateDependencies("c", []model.PackageID{"b"}, map[model.PackageID]model.EdgeLabel{"b": model.Public})

	c := New()
	stale, weak := c.UpdateDownstreamPackages("a", g)

	assert.ElementsMatch(t, []model.PackageID{"b"}, stale)
	assert.ElementsMatch(t, []model.PackageID{"c"}, weak)
	assert.Equal(t, model.Stale, c.GetStatus("b"))
	assert.Equal(t, model.WeakStale, c.GetStatus("c"))
}

func TestUpdateDownstreamPackagesStopsAtPrivateEdge(t *testing.T) {
	g := graph.New()
	g.UpdateDependencies("b", []model.PackageID{"a"}, map[model.PackageID]model.EdgeLabel{"a": model.Private})
	g.UpdateDependencies("c", []model.PackageID{"b"}, map[model.PackageID]model.EdgeLabel{"b": model.Public})

	c := New()
	stale, weak := c.UpdateDownstreamPackages("a", g)

	assert.ElementsMatch(t, []model.PackageID{"b"}, stale)
	assert.Empty(t, weak)
}

func TestCheckStatusReturnsOnlyStale(t *testing.T) {
	c := New()
	c.SetStatus([]model.PackageID{"a", "b"}, model.Stale)
	c.SetStatus([]model.PackageID{"b"}, model.Fresh)

	stale := c.CheckStatus([]model.PackageID{"a", "b", "c"})
	assert.ElementsMatch(t, []model.PackageID{"a", "c"}, stale)
}
