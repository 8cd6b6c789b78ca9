// Package index defines the unified symbol-index query surface (C4) and
// the shard type every backend (memindex, dbindex) builds and serves.
//
// Grounded on original_source/cangjie-language-server/.../index/MemIndex.cpp
// and BackgroundIndexDB.cpp for the query surface and visibility matrix,
// and on spec.md §4.4 for the Go-level interface shape.
package index

import (
	"context"

	"github.com/saibing/cjlscore/internal/model"
)

// Shard is the append-only per-package bundle produced by an index build
// (§4.6.5): symbols, references keyed by symbol id, relation triples, and
// extension-method listings.
type Shard struct {
	Package    model.PackageID
	Symbols    []model.Symbol
	Refs       map[model.SymbolID][]model.Reference
	Relations  []model.Relation
	Extensions map[model.SymbolID][]model.Symbol // extended type id -> extension members
}

// RefFilter narrows a Refs/FileRefs/RefsFindReference query.
type RefFilter struct {
	Kinds []model.RefKind // empty means "all kinds"
}

// Matches reports whether k passes this filter (an empty filter passes
// everything).
func (f RefFilter) Matches(k model.RefKind) bool {
	if len(f.Kinds) == 0 {
		return true
	}
	for _, want := range f.Kinds {
		if want == k {
			return true
		}
	}
	return false
}

// FuzzyFindRequest parameterizes FuzzyFind.
type FuzzyFindRequest struct {
	Query                 string
	Scopes                []model.PackageID // empty searches every package, as AnyScope does
	AnyScope              bool
	Limit                 int
	RestrictForCompletion bool
}

// ImportFilterOpts parameterizes FindImportSymsOnCompletion and
// FindImportCandidates (quick-fix variant).
type ImportFilterOpts struct {
	AlreadyVisible   map[model.SymbolID]struct{}
	CurrentPackage   model.PackageID
	CurrentModule    string
	ModuleDirectDeps map[string]struct{} // module names reachable as a direct dependency
	Prefix           string
	CombinedModule   bool // carried for callers; neither backend reads it, so no symbols are suppressed by it
}

// ExtendFilterOpts parameterizes FindExtendSymsOnCompletion.
type ExtendFilterOpts struct {
	ExtendedID       model.SymbolID
	AlreadyVisible   map[model.SymbolID]struct{}
	CurrentPackage   model.PackageID
	CurrentModule    string
	ModuleDirectDeps map[string]struct{}
}

// ImportCandidate is one auto-import/quick-fix completion candidate drawn
// from a package other than the one being edited.
type ImportCandidate struct {
	Package model.PackageID
	Symbol  model.Symbol
}

// Index is the unified query surface both backends implement. The lookup
// methods stream through a callback rather than building a slice,
// matching the source's push-style iteration and letting a caller apply a
// limit without the backend needing to know about it; RefsFindReference
// and the Find* completion/quick-fix queries return slices.
type Index interface {
	// Publish installs or replaces the shard for shard.Package.
	Publish(ctx context.Context, shard Shard) error

	// Remove drops a package's shard entirely (package retirement, §4.6.6).
	Remove(ctx context.Context, pkg model.PackageID) error

	FuzzyFind(ctx context.Context, req FuzzyFindRequest, yield func(model.Symbol) bool) error
	Lookup(ctx context.Context, ids []model.SymbolID, yield func(model.Symbol) bool) error
	Refs(ctx context.Context, ids []model.SymbolID, filter RefFilter, yield func(model.Reference) bool) error
	FileRefs(ctx context.Context, file string, filter RefFilter, yield func(model.Reference, model.SymbolID) bool) error
	RefsFindReference(ctx context.Context, ids []model.SymbolID, filter RefFilter) (definition *model.Reference, refs []model.Reference, err error)
	Relations(ctx context.Context, id model.SymbolID, predicate model.RelationPredicate, yield func(model.Relation) bool) error
	PackageSymbols(ctx context.Context, pkg model.PackageID, yield func(model.Symbol) bool) error
	Callees(ctx context.Context, pkg model.PackageID, declID model.SymbolID, yield func(model.SymbolID, model.Reference) bool) error

	FindImportSymsOnCompletion(ctx context.Context, opts ImportFilterOpts) ([]ImportCandidate, error)
	FindExtendSymsOnCompletion(ctx context.Context, opts ExtendFilterOpts) ([]ImportCandidate, error)
	// FindImportCandidates is the quick-fix variant (SPEC_FULL §4.4,
	// supplemented): same visibility matrix, keyed by bare identifier
	// instead of a prefix.
	FindImportCandidates(ctx context.Context, identifier string, opts ImportFilterOpts) ([]ImportCandidate, error)
}

// Accessible implements the exact PUBLIC/PROTECTED/INTERNAL/NONE matrix
// from original_source's MemIndex::FindImportSymsOnCompletion /
// FindExtendSymsOnCompletion / FindImportSymsOnQuickFix.
func Accessible(relation model.PackageRelation, modifier model.EdgeLabel) bool {
	switch modifier {
	case model.Public:
		return true
	case model.Protected:
		return relation == model.ChildModule || relation == model.SameModule || relation == model.ParentModule
	case model.Internal:
		return relation == model.ChildModule || relation == model.SameModule
	default: // PRIVATE
		return false
	}
}

// ModuleRelation derives the PackageRelation between two module names
// using the same root-prefix comparison as
// original_source/.../MemIndex.cpp's GetPackageRelation.
func ModuleRelation(curModule, targetModule string) model.PackageRelation {
	switch {
	case curModule == targetModule:
		return model.SameModule
	case hasModulePrefix(targetModule, curModule):
		return model.ChildModule
	case hasModulePrefix(curModule, targetModule):
		return model.ParentModule
	default:
		return model.NoRelation
	}
}

// ModuleReachable implements the module direct-dependency half of the
// auto-import filter (§4.4, restated by S4): a candidate whose module has
// no structural relation to the current one (NoRelation — not the same
// module, nor a parent/child in the same multi-module project) is only
// offered if that module is declared in the current module's direct
// dependency set. Parent/child/same-module candidates are already part
// of the same project tree and need no explicit dependency declaration;
// the visibility matrix (Accessible) alone governs those.
func ModuleReachable(relation model.PackageRelation, targetModule string, directDeps map[string]struct{}) bool {
	if relation != model.NoRelation {
		return true
	}
	_, ok := directDeps[targetModule]
	return ok
}

func hasModulePrefix(full, prefix string) bool {
	if prefix == "" || full == prefix {
		return false
	}
	if len(full) <= len(prefix) {
		return false
	}
	return full[:len(prefix)] == prefix && full[len(prefix)] == '.'
}
