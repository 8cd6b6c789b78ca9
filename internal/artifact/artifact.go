// Package artifact implements the artifact cache (C3): an in-memory LRU
// of typed package handles with lease/borrow semantics, plus a pluggable
// on-disk shard store.
//
// Grounded on saibing-bingo's internal/caches.PackageCache (pool +
// capacity discipline) and internal/cache.GlobalCache (id/path/file
// indexing), generalized per spec.md §4.3 and the lease-based redesign
// in spec.md §9 ("raw pointers into the typed AST leaked outside the
// compile that produced them"). The LRU itself is
// github.com/hashicorp/golang-lru/v2, replacing the teacher's hand-rolled
// map+mutex pool.
package artifact

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/saibing/cjlscore/internal/model"
)

// DefaultCapacity is the production LRU size (spec.md §4.3).
const DefaultCapacity = 3

// TestCapacity is used under the `test` platform flag.
const TestCapacity = 8

// Artifact is a successful compile's full output, kept in the LRU.
type Artifact struct {
	Package     model.PackageID
	Diagnostics []DiagnosticEntry
	ShardDigest string
	BI          []byte
	// Decls/Refs are the flattened index-build inputs retained so the
	// index shard can be rebuilt without re-invoking the front-end.
	Decls []DeclEntry
	Refs  []RefEntry
}

type DiagnosticEntry struct {
	File    string
	Message string
}

type DeclEntry struct {
	Name string
	Loc  model.Location
}

type RefEntry struct {
	Target string
	Loc    model.Location
}

// Lease is a scoped, refcounted borrow of an Artifact. An entry with an
// outstanding lease can still be evicted: it leaves the LRU at once, the
// lease keeps its Artifact readable, and only the eviction callback waits
// for the last Release. Callers must call Release exactly once.
type Lease struct {
	entry *entry
}

func (l *Lease) Artifact() *Artifact {
	if l == nil || l.entry == nil {
		return nil
	}
	return l.entry.artifact
}

func (l *Lease) Release() {
	if l == nil || l.entry == nil {
		return
	}
	l.entry.release()
}

type entry struct {
	mu       sync.Mutex
	cond     *sync.Cond
	artifact *Artifact
	pins     int
	evicted  bool
	onFinal  func()
}

func newEntry(a *Artifact) *entry {
	e := &entry{artifact: a}
	e.cond = sync.NewCond(&e.mu)
	return e
}

func (e *entry) lease() *Lease {
	e.mu.Lock()
	e.pins++
	e.mu.Unlock()
	return &Lease{entry: e}
}

func (e *entry) release() {
	e.mu.Lock()
	e.pins--
	if e.pins == 0 && e.evicted {
		cb := e.onFinal
		e.mu.Unlock()
		if cb != nil {
			cb()
		}
		return
	}
	e.mu.Unlock()
}

// markEvicted defers the entry's teardown callback until its last lease
// releases; if no lease is outstanding the callback runs immediately.
func (e *entry) markEvicted(cb func()) {
	e.mu.Lock()
	e.evicted = true
	if e.pins == 0 {
		e.mu.Unlock()
		cb()
		return
	}
	e.onFinal = cb
	e.mu.Unlock()
}

// Cache is the in-memory LRU plus on-disk shard store.
type Cache struct {
	mu       sync.Mutex
	lru      *lru.Cache[model.PackageID, *entry]
	store    Store
	onEvict  func(model.PackageID)
	capacity int
}

// New builds a Cache with the given capacity. onEvict, if non-nil, is
// called whenever an entry is evicted or explicitly dropped, once its
// last lease has been released; when no lease is outstanding it runs
// inside Set or Drop with the cache's mutex held. The orchestrator's
// callback counts the eviction and logs it; no other per-package state
// is released through it.
func New(capacity int, store Store, onEvict func(model.PackageID)) *Cache {
	c := &Cache{store: store, onEvict: onEvict, capacity: capacity}
	l, _ := lru.NewWithEvict(capacity, func(pkg model.PackageID, e *entry) {
		e.markEvicted(func() {
			if c.onEvict != nil {
				c.onEvict(pkg)
			}
		})
	})
	c.lru = l
	return c
}

// Set inserts or replaces the artifact for pkg.
func (c *Cache) Set(pkg model.PackageID, a *Artifact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.lru.Peek(pkg); ok {
		old.markEvicted(func() {})
	}
	c.lru.Add(pkg, newEntry(a))
}

// SetIfExists replaces the artifact for pkg only if an entry already
// exists, leaving the LRU's recency order otherwise undisturbed for
// packages not currently cached.
func (c *Cache) SetIfExists(pkg model.PackageID, a *Artifact) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.lru.Peek(pkg); !ok {
		return false
	}
	old, _ := c.lru.Peek(pkg)
	old.markEvicted(func() {})
	c.lru.Add(pkg, newEntry(a))
	return true
}

// Get returns a leased handle to pkg's artifact, or nil if not cached.
// The caller must call Release on the returned lease.
func (c *Cache) Get(pkg model.PackageID) *Lease {
	c.mu.Lock()
	e, ok := c.lru.Get(pkg)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return e.lease()
}

// Has reports whether pkg currently has a cached artifact, without
// affecting LRU recency.
func (c *Cache) Has(pkg model.PackageID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Contains(pkg)
}

// Drop explicitly removes pkg from the LRU (package deletion, §4.6.6).
func (c *Cache) Drop(pkg model.PackageID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(pkg)
}

// Len returns the number of artifacts currently resident.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Store returns the on-disk shard store this cache was built with, and
// whether one was configured (disk persistence is optional — tests and
// in-memory-only configurations pass nil to New).
func (c *Cache) Store() (Store, bool) {
	return c.store, c.store != nil
}

// Store persists index shards and serialized BIs, keyed by package and a
// digest of its source root, per spec.md §6.
type Store interface {
	Save(pkg model.PackageID, digest string, bi []byte, shard []byte) error
	Load(pkg model.PackageID) (bi []byte, shard []byte, digest string, ok bool)
	IsStale(pkg model.PackageID, digest string) bool
}
