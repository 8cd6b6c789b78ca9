// Package completion is the completion-specialized compile path (C8): a
// cheaper route than a full incremental compile for requests that are
// known to be "very local" — completion and signature-help at a cursor.
//
// Grounded on spec.md §4.8. It is a strictly read-only client of the
// graph, BI cache, and symbol index (Open Question resolution, §9 item
// 2 of SPEC_FULL.md): it never calls bic.SetStatus/bic.SetData, and its
// PartialArtifact is never written into the artifact cache.
package completion

import (
	"context"
	"fmt"
	"sync"

	"github.com/saibing/cjlscore/internal/frontend"
	"github.com/saibing/cjlscore/internal/graph"
	"github.com/saibing/cjlscore/internal/model"
)

// PartialArtifact is what a completion compile pass produces: a
// partially typed AST for the package under the cursor, scoped to a
// single request and discarded after it returns.
type PartialArtifact struct {
	Package model.PackageID
	// ByFile holds the per-file AST handle for every file touched by the
	// pass, keyed by file path, mirroring the spec's "PackageInstance plus
	// a per-file AST handle keyed by file path."
	ByFile           map[string]frontend.PartialResult
	InMacroExpansion bool
}

// Path runs the completion compilation path. The graph passed to Run is
// only read, to find the upstreams whose binary interfaces a fresh
// compiler instance imports; it is never mutated.
type Path struct {
	mu sync.Mutex

	fe frontend.Frontend

	// lastPackage/lastInput remember the previous request's target so a
	// same-package follow-up (e.g. typing within one function body) can
	// reuse the already-built compiler instance instead of importing
	// binary interfaces again.
	lastPackage model.PackageID
	lastInput   frontend.CompileInput
}

func New(fe frontend.Frontend) *Path {
	return &Path{fe: fe}
}

// biLoader resolves a package's previously exported binary interface,
// used to seed imports for a fresh compiler instance (step 2). The
// orchestrator supplies this from its BI cache; completion never reads
// the cache directly itself, keeping the read-only boundary in one
// place.
type biLoader func(pkg model.PackageID) ([]byte, bool)

// Run executes the completion path for a request at cursor in file,
// which belongs to pkg. For a fresh instance, g.AllDependencies(pkg)
// (pkg's transitive dependencies) lists the binary interfaces to load;
// a missing one yields ErrNeedsFullCompile.
func (p *Path) Run(ctx context.Context, g *graph.Graph, pkg model.PackageID, file string, buffer []byte, cursor model.Position, forSignatureHelp bool, loadBI biLoader) (PartialArtifact, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var in frontend.CompileInput
	if p.lastPackage == pkg {
		// Step 1: reuse the previous completion compiler's input, updating
		// only the buffer under the cursor.
		in = p.lastInput
		in = updateBuffer(in, file, buffer)
	} else {
		// Step 2: fresh lightweight instance. Import order follows the
		// dependency graph's topological order restricted to pkg's
		// transitive upstreams, so the BI loader sees each upstream before
		// anything that depends on it.
		upstreams := g.AllDependencies(pkg)
		order, err := g.PartialTopologicalSort(toSet(upstreams), false)
		if err != nil {
			return PartialArtifact{}, fmt.Errorf("order upstreams for completion compile of %s: %w", pkg, err)
		}
		for _, up := range order {
			if _, ok := loadBI(up); !ok {
				return PartialArtifact{}, fmt.Errorf("%w: missing binary interface for %s", model.ErrNeedsFullCompile, up)
			}
		}
		in = frontend.CompileInput{
			Package: pkg,
			Files: []frontend.FileInput{
				{Path: file, Content: buffer, State: model.Changed},
			},
			LoadFromCache: true,
		}
	}

	result, err := p.fe.CompileForComplete(ctx, in, cursor, file, forSignatureHelp)
	if err != nil {
		return PartialArtifact{}, err
	}

	p.lastPackage = pkg
	p.lastInput = in

	return PartialArtifact{
		Package:          pkg,
		ByFile:           map[string]frontend.PartialResult{file: result},
		InMacroExpansion: result.InMacroExpansion,
	}, nil
}

func updateBuffer(in frontend.CompileInput, file string, buffer []byte) frontend.CompileInput {
	out := in
	out.Files = append([]frontend.FileInput(nil), in.Files...)
	for i, f := range out.Files {
		if f.Path == file {
			out.Files[i] = frontend.FileInput{Path: file, Content: buffer, State: model.Changed}
			return out
		}
	}
	out.Files = append(out.Files, frontend.FileInput{Path: file, Content: buffer, State: model.Changed})
	return out
}

func toSet(ids []model.PackageID) map[model.PackageID]struct{} {
	m := make(map[model.PackageID]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}
