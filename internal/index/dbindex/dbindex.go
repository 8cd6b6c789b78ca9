// Package dbindex is the database-backed symbol-index backend: a SQLite
// file keyed by package, used when the orchestrator is configured to
// survive restarts without rebuilding the whole workspace's index from
// scratch.
//
// Grounded on original_source/cangjie-language-server/.../index/BackgroundIndexDB.cpp
// (per-package shard rows plus a file-table digest to detect obsolete
// shards) and, for the driver choice, github.com/mattn/go-sqlite3 as used
// by platinummonkey-spoke and theRebelliousNerd-codenerd.
package dbindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/saibing/cjlscore/internal/index"
	"github.com/saibing/cjlscore/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS shards (
	package TEXT PRIMARY KEY,
	digest  TEXT NOT NULL,
	symbols BLOB NOT NULL,
	refs    BLOB NOT NULL,
	relations BLOB NOT NULL,
	extensions BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS file_digests (
	package TEXT NOT NULL,
	file TEXT NOT NULL,
	digest TEXT NOT NULL,
	PRIMARY KEY (package, file)
);
`

// Index is a SQLite-backed Index. A process may hold any number of open
// Index handles against the same file; SQLite serializes writers.
type Index struct {
	db *sql.DB
}

// Open opens (creating if needed) a SQLite database at path and ensures
// its schema exists.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite index at %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite index schema: %w", err)
	}
	return &Index{db: db}, nil
}

func (x *Index) Close() error { return x.db.Close() }

// serializedShard is the JSON-on-disk encoding of an index.Shard; the
// production format in original_source is a custom binary layout, out of
// scope here (§1, "on-disk index serialization format").
type serializedShard struct {
	Symbols    []model.Symbol                      `json:"symbols"`
	Refs       map[model.SymbolID][]model.Reference `json:"refs"`
	Relations  []model.Relation                     `json:"relations"`
	Extensions map[model.SymbolID][]model.Symbol    `json:"extensions"`
}

func (x *Index) Publish(ctx context.Context, shard index.Shard) error {
	symBytes, err := json.Marshal(shard.Symbols)
	if err != nil {
		return err
	}
	refBytes, err := json.Marshal(shard.Refs)
	if err != nil {
		return err
	}
	relBytes, err := json.Marshal(shard.Relations)
	if err != nil {
		return err
	}
	extBytes, err := json.Marshal(shard.Extensions)
	if err != nil {
		return err
	}

	_, err = x.db.ExecContext(ctx, `
		INSERT INTO shards (package, digest, symbols, refs, relations, extensions)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(package) DO UPDATE SET
			digest=excluded.digest, symbols=excluded.symbols, refs=excluded.refs,
			relations=excluded.relations, extensions=excluded.extensions
	`, string(shard.Package), "", symBytes, refBytes, relBytes, extBytes)
	return err
}

func (x *Index) Remove(ctx context.Context, pkg model.PackageID) error {
	_, err := x.db.ExecContext(ctx, `DELETE FROM shards WHERE package = ?`, string(pkg))
	if err != nil {
		return err
	}
	_, err = x.db.ExecContext(ctx, `DELETE FROM file_digests WHERE package = ?`, string(pkg))
	return err
}

// SetFileDigest records the digest of one source file belonging to pkg,
// used by IsObsolete to detect shards whose sources moved underneath
// them between restarts (BackgroundIndexDB's file-table digest check).
func (x *Index) SetFileDigest(ctx context.Context, pkg model.PackageID, file, digest string) error {
	_, err := x.db.ExecContext(ctx, `
		INSERT INTO file_digests (package, file, digest) VALUES (?, ?, ?)
		ON CONFLICT(package, file) DO UPDATE SET digest=excluded.digest
	`, string(pkg), file, digest)
	return err
}

// IsObsolete reports whether pkg's stored file digest differs from the
// one supplied, meaning the shard must be rebuilt rather than trusted.
func (x *Index) IsObsolete(ctx context.Context, pkg model.PackageID, file, digest string) (bool, error) {
	var stored string
	err := x.db.QueryRowContext(ctx, `SELECT digest FROM file_digests WHERE package = ? AND file = ?`, string(pkg), file).Scan(&stored)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return stored != digest, nil
}

func (x *Index) loadShard(ctx context.Context, pkg model.PackageID) (serializedShard, bool, error) {
	var symBytes, refBytes, relBytes, extBytes []byte
	err := x.db.QueryRowContext(ctx, `SELECT symbols, refs, relations, extensions FROM shards WHERE package = ?`, string(pkg)).
		Scan(&symBytes, &refBytes, &relBytes, &extBytes)
	if err == sql.ErrNoRows {
		return serializedShard{}, false, nil
	}
	if err != nil {
		return serializedShard{}, false, err
	}
	var s serializedShard
	if err := json.Unmarshal(symBytes, &s.Symbols); err != nil {
		return serializedShard{}, false, err
	}
	if err := json.Unmarshal(refBytes, &s.Refs); err != nil {
		return serializedShard{}, false, err
	}
	if err := json.Unmarshal(relBytes, &s.Relations); err != nil {
		return serializedShard{}, false, err
	}
	if err := json.Unmarshal(extBytes, &s.Extensions); err != nil {
		return serializedShard{}, false, err
	}
	return s, true, nil
}

func (x *Index) allPackages(ctx context.Context) ([]model.PackageID, error) {
	rows, err := x.db.QueryContext(ctx, `SELECT package FROM shards`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.PackageID
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, model.PackageID(p))
	}
	return out, rows.Err()
}

func (x *Index) FuzzyFind(ctx context.Context, req index.FuzzyFindRequest, yield func(model.Symbol) bool) error {
	pkgs := req.Scopes
	if req.AnyScope || len(pkgs) == 0 {
		var err error
		pkgs, err = x.allPackages(ctx)
		if err != nil {
			return err
		}
	}
	count := 0
	for _, pkg := range pkgs {
		shard, ok, err := x.loadShard(ctx, pkg)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		for _, sym := range shard.Symbols {
			if req.RestrictForCompletion && !sym.ForCompletion {
				continue
			}
			if req.Query != "" && !containsFold(sym.Name, req.Query) {
				continue
			}
			if req.Limit > 0 && count >= req.Limit {
				return nil
			}
			count++
			if !yield(sym) {
				return nil
			}
		}
	}
	return nil
}

func (x *Index) Lookup(ctx context.Context, ids []model.SymbolID, yield func(model.Symbol) bool) error {
	want := toSet(ids)
	pkgs, err := x.allPackages(ctx)
	if err != nil {
		return err
	}
	found := map[model.SymbolID]bool{}
	for _, pkg := range pkgs {
		shard, ok, err := x.loadShard(ctx, pkg)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		for _, sym := range shard.Symbols {
			if _, wanted := want[sym.ID]; !wanted || found[sym.ID] {
				continue
			}
			found[sym.ID] = true
			if !yield(sym) {
				return nil
			}
		}
	}
	return nil
}

func (x *Index) Refs(ctx context.Context, ids []model.SymbolID, filter index.RefFilter, yield func(model.Reference) bool) error {
	pkgs, err := x.allPackages(ctx)
	if err != nil {
		return err
	}
	want := toSet(ids)
	for _, pkg := range pkgs {
		shard, ok, err := x.loadShard(ctx, pkg)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		for id, refs := range shard.Refs {
			if _, wanted := want[id]; !wanted {
				continue
			}
			for _, ref := range refs {
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
	pkgs, err := x.allPackages(ctx)
	if err != nil {
		return err
	}
	for _, pkg := range pkgs {
		shard, ok, err := x.loadShard(ctx, pkg)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		for id, refs := range shard.Refs {
			for _, ref := range refs {
				if ref.Loc.File != file || !filter.Matches(ref.Kind) {
					continue
				}
				if !yield(ref, id) {
					return nil
				}
			}
		}
	}
	return nil
}

func (x *Index) RefsFindReference(ctx context.Context, ids []model.SymbolID, filter index.RefFilter) (*model.Reference, []model.Reference, error) {
	var def *model.Reference
	var refs []model.Reference
	err := x.Refs(ctx, ids, filter, func(ref model.Reference) bool {
		r := ref
		if ref.Kind == model.RefDefinition && def == nil {
			def = &r
		} else {
			refs = append(refs, r)
		}
		return true
	})
	return def, refs, err
}

func (x *Index) Relations(ctx context.Context, id model.SymbolID, predicate model.RelationPredicate, yield func(model.Relation) bool) error {
	pkgs, err := x.allPackages(ctx)
	if err != nil {
		return err
	}
	for _, pkg := range pkgs {
		shard, ok, err := x.loadShard(ctx, pkg)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		for _, rel := range shard.Relations {
			if rel.Predicate != predicate || (rel.Subject != id && rel.Object != id) {
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
	shard, ok, err := x.loadShard(ctx, pkg)
	if err != nil || !ok {
		return err
	}
	for _, sym := range shard.Symbols {
		if !yield(sym) {
			break
		}
	}
	return nil
}

func (x *Index) Callees(ctx context.Context, pkg model.PackageID, declID model.SymbolID, yield func(model.SymbolID, model.Reference) bool) error {
	shard, ok, err := x.loadShard(ctx, pkg)
	if err != nil || !ok {
		return err
	}
	for id, refs := range shard.Refs {
		for _, ref := range refs {
			if ref.Container != declID {
				continue
			}
			if !yield(id, ref) {
				return nil
			}
		}
	}
	return nil
}

func (x *Index) FindImportSymsOnCompletion(ctx context.Context, opts index.ImportFilterOpts) ([]index.ImportCandidate, error) {
	pkgs, err := x.allPackages(ctx)
	if err != nil {
		return nil, err
	}
	var out []index.ImportCandidate
	for _, pkg := range pkgs {
		if pkg == opts.CurrentPackage {
			continue
		}
		shard, ok, err := x.loadShard(ctx, pkg)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		relation := index.ModuleRelation(opts.CurrentModule, string(pkg))
		if !index.ModuleReachable(relation, string(pkg), opts.ModuleDirectDeps) {
			continue
		}
		for _, sym := range shard.Symbols {
			if _, visible := opts.AlreadyVisible[sym.ID]; visible || !sym.ForCompletion {
				continue
			}
			if opts.Prefix != "" && !containsPrefix(sym.Name, opts.Prefix) {
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
	pkgs, err := x.allPackages(ctx)
	if err != nil {
		return nil, err
	}
	var out []index.ImportCandidate
	for _, pkg := range pkgs {
		shard, ok, err := x.loadShard(ctx, pkg)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
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
	pkgs, err := x.allPackages(ctx)
	if err != nil {
		return nil, err
	}
	var out []index.ImportCandidate
	for _, pkg := range pkgs {
		if pkg == opts.CurrentPackage {
			continue
		}
		shard, ok, err := x.loadShard(ctx, pkg)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		relation := index.ModuleRelation(opts.CurrentModule, string(pkg))
		if !index.ModuleReachable(relation, string(pkg), opts.ModuleDirectDeps) {
			continue
		}
		for _, sym := range shard.Symbols {
			if sym.Name != identifier || !index.Accessible(relation, sym.Visibility) {
				continue
			}
			out = append(out, index.ImportCandidate{Package: pkg, Symbol: sym})
		}
	}
	return out, nil
}

func toSet(ids []model.SymbolID) map[model.SymbolID]struct{} {
	m := make(map[model.SymbolID]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func containsFold(name, query string) bool {
	return containsPrefix(name, query) || len(query) == 0
}

func containsPrefix(name, prefix string) bool {
	if len(prefix) > len(name) {
		return false
	}
	return name[:len(prefix)] == prefix
}
