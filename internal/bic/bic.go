// Package bic implements the binary-interface cache (C2): per-package
// freshness status plus the last serialized interface bytes, and the
// status-propagation rules that drive incremental recompilation.
//
// Grounded on spec.md §4.2 and, for the downstream-propagation walk, on
// internal/graph's MayDependents/Dependents (itself ported from
// original_source's DependencyGraph.h).
package bic

import (
	"bytes"
	"sync"

	"github.com/saibing/cjlscore/internal/graph"
	"github.com/saibing/cjlscore/internal/model"
)

// Cache holds BI status and bytes for every known package.
type Cache struct {
	mu     sync.RWMutex
	status map[model.PackageID]model.BIStatus
	data   map[model.PackageID][]byte
}

// New returns an empty binary-interface cache.
func New() *Cache {
	return &Cache{
		status: map[model.PackageID]model.BIStatus{},
		data:   map[model.PackageID][]byte{},
	}
}

// GetStatus returns pkg's status, defaulting to STALE for a package the
// cache has never seen (a package with no BI is never FRESH).
func (c *Cache) GetStatus(pkg model.PackageID) model.BIStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.status[pkg]; ok {
		return s
	}
	return model.Stale
}

// SetStatus sets the status of every package in pkgs.
func (c *Cache) SetStatus(pkgs []model.PackageID, status model.BIStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range pkgs {
		c.status[p] = status
	}
}

// CheckStatus returns the subset of pkgs currently STALE, counting a
// package the cache has never seen as STALE (as GetStatus does).
func (c *Cache) CheckStatus(pkgs []model.PackageID) []model.PackageID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var stale []model.PackageID
	for _, p := range pkgs {
		if s, ok := c.status[p]; !ok || s == model.Stale {
			stale = append(stale, p)
		}
	}
	return stale
}

// GetData returns the last serialized BI bytes for pkg, and whether any
// were recorded.
func (c *Cache) GetData(pkg model.PackageID) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.data[pkg]
	return b, ok
}

// SetData records the serialized BI bytes for pkg, replacing any prior
// value.
func (c *Cache) SetData(pkg model.PackageID, bi []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[pkg] = bi
}

// CheckChanged reports whether newBytes differ, byte-for-byte, from the
// previously recorded BI for pkg. Per the Open Question resolution in
// SPEC_FULL §9, this is always a byte compare, never a version compare.
func (c *Cache) CheckChanged(pkg model.PackageID, newBytes []byte) bool {
	c.mu.RLock()
	old, ok := c.data[pkg]
	c.mu.RUnlock()
	if !ok {
		return true
	}
	return !bytes.Equal(old, newBytes)
}

// Drop removes pkg's status and BI bytes entirely, e.g. when a package is
// retired or renamed (§4.6.4, §4.6.6) and its old identity must not leak
// stale BI bytes under a name nothing compiles to anymore.
func (c *Cache) Drop(pkg model.PackageID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.status, pkg)
	delete(c.data, pkg)
}

// UpdateDownstreamPackages marks pkg's direct dependents STALE (whatever
// the edge's visibility), and every other dependent reachable through
// MayDependents WEAKSTALE; the walk does not continue past a PRIVATE edge. It returns the two sets so the caller (the orchestrator) can
// schedule recompiles and publish diagnostics accordingly.
func (c *Cache) UpdateDownstreamPackages(pkg model.PackageID, g *graph.Graph) (stale, weak []model.PackageID) {
	direct := map[model.PackageID]struct{}{}
	for _, d := range g.Dependents(pkg) {
		direct[d] = struct{}{}
	}

	all := g.MayDependents(pkg)

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, d := range all {
		if _, isDirect := direct[d]; isDirect {
			c.status[d] = model.Stale
			stale = append(stale, d)
		} else {
			c.status[d] = model.WeakStale
			weak = append(weak, d)
		}
	}
	return stale, weak
}
