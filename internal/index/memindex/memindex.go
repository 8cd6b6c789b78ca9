// Package memindex is the process-resident symbol-index backend: a map
// per shard, guarded by a single RWMutex.
//
// Grounded on original_source/cangjie-language-server/.../index/MemIndex.cpp.
package memindex

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/saibing/cjlscore/internal/index"
	"github.com/saibing/cjlscore/internal/model"
)

type Index struct {
	mu     sync.RWMutex
	shards map[model.PackageID]index.Shard
	// symByID and fileSyms are derived indices rebuilt on every Publish
	// for O(1) lookup; the source code pays the equivalent cost by
	// walking per-package maps on every query.
	symByID  map[model.SymbolID]model.Symbol
	fileSyms map[string][]model.SymbolID
}

func New() *Index {
	return &Index{
		shards:   map[model.PackageID]index.Shard{},
		symByID:  map[model.SymbolID]model.Symbol{},
		fileSyms: map[string][]model.SymbolID{},
	}
}

func (x *Index) Publish(ctx context.Context, shard index.Shard) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.removeLocked(shard.Package)
	x.shards[shard.Package] = shard
	for _, sym := range shard.Symbols {
		x.symByID[sym.ID] = sym
		x.fileSyms[sym.Decl.File] = append(x.fileSyms[sym.Decl.File], sym.ID)
	}
	return nil
}

func (x *Index) Remove(ctx context.Context, pkg model.PackageID) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(pkg)
	return nil
}

func (x *Index) removeLocked(pkg model.PackageID) {
	old, ok := x.shards[pkg]
	if !ok {
		return
	}
	for _, sym := range old.Symbols {
		delete(x.symByID, sym.ID)
		remaining := x.fileSyms[sym.Decl.File][:0]
		for _, id := range x.fileSyms[sym.Decl.File] {
			if id != sym.ID {
				remaining = append(remaining, id)
			}
		}
		x.fileSyms[sym.Decl.File] = remaining
	}
	delete(x.shards, pkg)
}

func (x *Index) FuzzyFind(ctx context.Context, req index.FuzzyFindRequest, yield func(model.Symbol) bool) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	inScope := func(pkg model.PackageID) bool {
		if req.AnyScope || len(req.Scopes) == 0 {
			return true
		}
		for _, s := range req.Scopes {
			if s == pkg {
				return true
			}
		}
		return false
	}

	type scored struct {
		sym   model.Symbol
		score int
	}
	var results []scored
	for pkg, shard := range x.shards {
		if !inScope(pkg) {
			continue
		}
		for _, sym := range shard.Symbols {
			if req.RestrictForCompletion && !sym.ForCompletion {
				continue
			}
			score, ok := fuzzyScore(sym.Name, req.Query)
			if !ok {
				continue
			}
			results = append(results, scored{sym, score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })

	limit := req.Limit
	for i, r := range results {
		if limit > 0 && i >= limit {
			break
		}
		if !yield(r.sym) {
			break
		}
	}
	return nil
}

func (x *Index) Lookup(ctx context.Context, ids []model.SymbolID, yield func(model.Symbol) bool) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	for _, id := range ids {
		sym, ok := x.symByID[id]
		if !ok {
			continue
		}
		if !yield(sym) {
			break
		}
	}
	return nil
}

func (x *Index) Refs(ctx context.Context, ids []model.SymbolID, filter index.RefFilter, yield func(model.Reference) bool) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	for _, id := range ids {
		for _, shard := range x.shards {
			for _, ref := range shard.Refs[id] {
				if !filter.Matches(ref.Kind) {
					continue
				}
				if !yield(ref) {
					return nil
				}
			}
		}
	}
	return nil
}

func (x *Index) FileRefs(ctx context.Context, file string, filter index.RefFilter, yield func(model.Reference, model.SymbolID) bool) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	for _, shard := range x.shards {
		for symID, refs := range shard.Refs {
			for _, ref := range refs {
				if ref.Loc.File != file {
					continue
				}
				if !filter.Matches(ref.Kind) {
					continue
				}
				if !yield(ref, symID) {
					return nil
				}
			}
		}
	}
	return nil
}

func (x *Index) RefsFindReference(ctx context.Context, ids []model.SymbolID, filter index.RefFilter) (*model.Reference, []model.Reference, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var definition *model.Reference
	var refs []model.Reference
	for _, id := range ids {
		for _, shard := range x.shards {
			for _, ref := range shard.Refs[id] {
				if !filter.Matches(ref.Kind) {
					continue
				}
				r := ref
				if ref.Kind == model.RefDefinition && definition == nil {
					definition = &r
					continue
				}
				refs = append(refs, r)
			}
		}
	}
	return definition, refs, nil
}

func (x *Index) Relations(ctx context.Context, id model.SymbolID, predicate model.RelationPredicate, yield func(model.Relation) bool) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	for _, shard := range x.shards {
		for _, rel := range shard.Relations {
			if (rel.Subject != id && rel.Object != id) || rel.Predicate != predicate {
				continue
			}
			if !yield(rel) {
				return nil
			}
		}
	}
	return nil
}

func (x *Index) PackageSymbols(ctx context.Context, pkg model.PackageID, yield func(model.Symbol) bool) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	shard, ok := x.shards[pkg]
	if !ok {
		return nil
	}
	for _, sym := range shard.Symbols {
		if !yield(sym) {
			break
		}
	}
	return nil
}

func (x *Index) Callees(ctx context.Context, pkg model.PackageID, declID model.SymbolID, yield func(model.SymbolID, model.Reference) bool) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	shard, ok := x.shards[pkg]
	if !ok {
		return nil
	}
	for symID, refs := range shard.Refs {
		for _, ref := range refs {
			if ref.Container != declID {
				continue
			}
			if !yield(symID, ref) {
				return nil
			}
		}
	}
	return nil
}

func (x *Index) FindImportSymsOnCompletion(ctx context.Context, opts index.ImportFilterOpts) ([]index.ImportCandidate, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	var out []index.ImportCandidate
	for pkg, shard := range x.shards {
		if pkg == opts.CurrentPackage {
			continue
		}
		relation := index.ModuleRelation(opts.CurrentModule, string(pkg))
		if !index.ModuleReachable(relation, string(pkg), opts.ModuleDirectDeps) {
			continue
		}
		for _, sym := range shard.Symbols {
			if _, visible := opts.AlreadyVisible[sym.ID]; visible {
				continue
			}
			if !sym.ForCompletion {
				continue
			}
			if opts.Prefix != "" && !strings.HasPrefix(sym.Name, opts.Prefix) {
				continue
			}
			if !index.Accessible(relation, sym.Visibility) {
				continue
			}
			out = append(out, index.ImportCandidate{Package: pkg, Symbol: sym})
		}
	}
	return out, nil
}

func (x *Index) FindExtendSymsOnCompletion(ctx context.Context, opts index.ExtendFilterOpts) ([]index.ImportCandidate, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	var out []index.ImportCandidate
	for pkg, shard := range x.shards {
		relation := index.ModuleRelation(opts.CurrentModule, string(pkg))
		if !index.ModuleReachable(relation, string(pkg), opts.ModuleDirectDeps) {
			continue
		}
		for _, sym := range shard.Extensions[opts.ExtendedID] {
			if _, visible := opts.AlreadyVisible[sym.ID]; visible {
				continue
			}
			if !index.Accessible(relation, sym.Visibility) {
				continue
			}
			out = append(out, index.ImportCandidate{Package: pkg, Symbol: sym})
		}
	}
	return out, nil
}

func (x *Index) FindImportCandidates(ctx context.Context, identifier string, opts index.ImportFilterOpts) ([]index.ImportCandidate, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	var out []index.ImportCandidate
	for pkg, shard := range x.shards {
		if pkg == opts.CurrentPackage {
			continue
		}
		relation := index.ModuleRelation(opts.CurrentModule, string(pkg))
		if !index.ModuleReachable(relation, string(pkg), opts.ModuleDirectDeps) {
			continue
		}
		for _, sym := range shard.Symbols {
			if sym.Name != identifier {
				continue
			}
			if !index.Accessible(relation, sym.Visibility) {
				continue
			}
			out = append(out, index.ImportCandidate{Package: pkg, Symbol: sym})
		}
	}
	return out, nil
}

// fuzzyScore scores name against query: exact prefix match scores
// highest, subsequence match scores by compactness, anything else misses.
func fuzzyScore(name, query string) (int, bool) {
	if query == "" {
		return 1, true
	}
	lname, lquery := strings.ToLower(name), strings.ToLower(query)
	if strings.HasPrefix(lname, lquery) {
		return 1000 - len(name), true
	}
	// subsequence match
	qi := 0
	firstMatch, lastMatch := -1, -1
	for i := 0; i < len(lname) && qi < len(lquery); i++ {
		if lname[i] == lquery[qi] {
			if firstMatch == -1 {
				firstMatch = i
			}
			lastMatch = i
			qi++
		}
	}
	if qi != len(lquery) {
		return 0, false
	}
	span := lastMatch - firstMatch + 1
	return 500 - span, true
}
