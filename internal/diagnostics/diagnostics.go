// Package diagnostics is the diagnostics observer (C9): per-package and
// per-file diagnostic sets, published to the LSP layer through a
// delivery callback.
//
// Grounded on spec.md §4.9 and the teacher's langserver/diagnostics.go
// for the "clear, then refill, always report every known file" delivery
// shape; the callback type's transport abstraction
// (github.com/sourcegraph/jsonrpc2.JSONRPC2) and wire diagnostic type
// (github.com/sourcegraph/go-lsp) are the teacher's own dependencies.
package diagnostics

import (
	"context"
	"sync"

	"github.com/sourcegraph/go-lsp"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/saibing/cjlscore/internal/frontend"
	"github.com/saibing/cjlscore/internal/model"
	"github.com/saibing/cjlscore/internal/protocol"
)

// Deliver is how a published diagnostic set reaches the client. Version
// is the document version the diagnostics were computed against, per
// LSP's "publishDiagnostics" versioning.
type Deliver func(ctx context.Context, conn jsonrpc2.JSONRPC2, uri lsp.DocumentURI, version int, diags []lsp.Diagnostic)

// Observer owns the current diagnostic set for every known package and
// file.
type Observer struct {
	mu        sync.Mutex
	byPackage map[model.PackageID][]frontend.Diagnostic
	byFile    map[string][]frontend.Diagnostic
	files     map[model.PackageID][]string // package -> its files, for EmitDiagsOfPackage's "report every file" fan-out
	versions  map[string]int
	deliver   Deliver
}

func New(deliver Deliver) *Observer {
	return &Observer{
		byPackage: map[model.PackageID][]frontend.Diagnostic{},
		byFile:    map[string][]frontend.Diagnostic{},
		files:     map[model.PackageID][]string{},
		versions:  map[string]int{},
		deliver:   deliver,
	}
}

// SetPackageDiagnostics clears pkg's previous diagnostic set and replaces
// it, re-deriving the per-file index. Called once per compile, after the
// front-end has pushed its diagnostic tokens for the result.
func (o *Observer) SetPackageDiagnostics(pkg model.PackageID, files []string, diags []frontend.Diagnostic) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, f := range o.files[pkg] {
		delete(o.byFile, f)
	}
	o.files[pkg] = files
	for _, f := range files {
		o.byFile[f] = nil
	}
	o.byPackage[pkg] = diags
	for _, d := range diags {
		o.byFile[d.File] = append(o.byFile[d.File], d)
	}
}

// SetFileVersion records the document version to stamp on the next
// emission for file, matching the LSP client's expectation that
// publishDiagnostics carries the version it was computed against.
func (o *Observer) SetFileVersion(file string, version int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.versions[file] = version
}

// EmitDiagsOfFile publishes file's current diagnostic set through the
// delivery callback, reporting an empty slice if the file is clean.
func (o *Observer) EmitDiagsOfFile(ctx context.Context, conn jsonrpc2.JSONRPC2, file string) {
	o.mu.Lock()
	diags := append([]frontend.Diagnostic(nil), o.byFile[file]...)
	version := o.versions[file]
	o.mu.Unlock()

	wire := make([]lsp.Diagnostic, 0, len(diags))
	for _, d := range diags {
		wire = append(wire, protocol.Diagnostic(d))
	}
	o.deliver(ctx, conn, lsp.DocumentURI("file://"+file), version, wire)
}

// EmitDiagsOfPackage publishes every file belonging to pkg, including
// files that have no diagnostics (an empty report clears stale ones).
func (o *Observer) EmitDiagsOfPackage(ctx context.Context, conn jsonrpc2.JSONRPC2, pkg model.PackageID) {
	o.mu.Lock()
	files := append([]string(nil), o.files[pkg]...)
	o.mu.Unlock()

	for _, f := range files {
		o.EmitDiagsOfFile(ctx, conn, f)
	}
}

// RemoveDocByFile drops file's entry, e.g. on file deletion, so the next
// package recompile can't resurrect a stale diagnostic for it.
func (o *Observer) RemoveDocByFile(file string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.byFile, file)
	delete(o.versions, file)
}

// RemovePackage drops pkg's diagnostics and file associations entirely,
// e.g. on package retirement (§4.6.6).
func (o *Observer) RemovePackage(pkg model.PackageID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, f := range o.files[pkg] {
		delete(o.byFile, f)
	}
	delete(o.files, pkg)
	delete(o.byPackage, pkg)
}

// PackageDiagnostics returns a copy of pkg's current diagnostic set, for
// callers that need to inspect compiler errors without going through the
// wire protocol (e.g. the cycle-error file-level surfacing of §7 item 2).
func (o *Observer) PackageDiagnostics(pkg model.PackageID) []frontend.Diagnostic {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]frontend.Diagnostic(nil), o.byPackage[pkg]...)
}
