package orchestrator

import (
	"context"
	"fmt"

	"github.com/saibing/cjlscore/internal/index"
	"github.com/saibing/cjlscore/internal/model"
)

// RenameTransaction resolves the isRenameDefined Open Question
// (SPEC_FULL.md §9 item 3): rather than a callback flag threaded through
// every incremental compile, a rename is an explicit transaction that
// snapshots the affected files up front, recompiles every one of them,
// and only publishes diagnostics once, when the transaction closes —
// avoiding the flicker of intermediate per-file diagnostics a multi-file
// rename would otherwise produce.
type RenameTransaction struct {
	o       *Orchestrator
	files   []string
	edits   map[string][]model.Range
	touched map[string]struct{}
}

// BeginRename snapshots the definition and reference locations for ids
// and prepares a transaction that, once every touched file has had its
// buffer updated via Stage, recompiles them all together.
func (o *Orchestrator) BeginRename(ctx context.Context, ids []model.SymbolID) (*RenameTransaction, error) {
	tx := &RenameTransaction{o: o, edits: map[string][]model.Range{}, touched: map[string]struct{}{}}

	def, refs, err := o.idx.RefsFindReference(ctx, ids, index.RefFilter{})
	if err != nil {
		return nil, fmt.Errorf("resolve rename targets: %w", err)
	}
	if def != nil {
		tx.edits[def.Loc.File] = append(tx.edits[def.Loc.File], def.Loc.Range)
		tx.touched[def.Loc.File] = struct{}{}
	}
	for _, ref := range refs {
		tx.edits[ref.Loc.File] = append(tx.edits[ref.Loc.File], ref.Loc.Range)
		tx.touched[ref.Loc.File] = struct{}{}
	}
	for f := range tx.touched {
		tx.files = append(tx.files, f)
	}
	return tx, nil
}

// Edits returns the per-file ranges the caller must rewrite with the new
// name before calling Stage for that file.
func (tx *RenameTransaction) Edits() map[string][]model.Range { return tx.edits }

// Stage updates one touched file's buffer with its post-rename content.
// The recompile itself doesn't happen until Close, so every file's
// diagnostics reflect the fully-renamed program rather than an
// intermediate half-renamed state.
func (tx *RenameTransaction) Stage(file string, content []byte) {
	tx.o.updateBuffer(tx.o.mustResolvePackage(file), file, content, model.Changed)
}

func (o *Orchestrator) mustResolvePackage(file string) model.PackageID {
	pkg, _ := o.resolvePackageForFile(file)
	return pkg
}

// Close recompiles every touched file's package exactly once each (a
// multi-file rename commonly touches several files in the same package)
// and publishes diagnostics for all of them together.
func (tx *RenameTransaction) Close(ctx context.Context) error {
	seen := map[model.PackageID]struct{}{}
	for _, f := range tx.files {
		pkg, kind := tx.o.resolvePackageForFile(f)
		if kind == model.MissingPackage {
			continue
		}
		if _, ok := seen[pkg]; ok {
			continue
		}
		seen[pkg] = struct{}{}

		if err := tx.o.seedGraphEdges(ctx, pkg); err != nil {
			return err
		}
		tx.o.bi.SetStatus([]model.PackageID{pkg}, model.Stale)
		if err := tx.o.compilePackage(ctx, pkg, "incremental"); err != nil {
			return err
		}
	}
	for pkg := range seen {
		tx.o.diag.EmitDiagsOfPackage(ctx, nil, pkg)
	}
	return nil
}
