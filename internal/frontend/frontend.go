// Package frontend declares the boundary to the external compiler
// front-end (lexer, parser, type checker, macro expander, .cjo
// loader/emitter) that the orchestrator treats as a library. Per spec.md
// §1 the front-end itself is out of scope; this package only names the
// operations the orchestrator calls and the shapes it gets back.
package frontend

import (
	"context"

	"github.com/saibing/cjlscore/internal/model"
)

// FileInput is one file's contribution to a package compile: either the
// live editor buffer or the on-disk contents, plus its change state.
type FileInput struct {
	Path    string
	Content []byte
	State   model.ChangeState
}

// CompileInput is a package compilation input (§3): the package being
// compiled, its buffer cache, and any condition-compile options in force.
type CompileInput struct {
	Package       model.PackageID
	Files         []FileInput
	LoadFromCache bool
	Conditions    map[string]string
}

// Diagnostic is a user-visible compiler diagnostic, pre-conversion to the
// wire protocol.
type Diagnostic struct {
	File     string
	Range    model.Range
	Severity DiagnosticSeverity
	Message  string
	Source   string
}

type DiagnosticSeverity uint8

const (
	SeverityError DiagnosticSeverity = iota
	SeverityWarning
	SeverityInfo
	SeverityHint
)

// Decl is one declaration discovered while walking a compiled package's
// typed AST (§4.6.5 index build). It is intentionally flat: the front-end
// is responsible for resolving types; the orchestrator only needs enough
// shape to emit a Symbol/Reference/Relation per declaration.
type Decl struct {
	Name       string
	Kind       model.SymbolKind
	Loc        model.Location
	Container  string // name of the enclosing declaration, "" if top-level
	Visibility model.EdgeLabel
	Deprecated bool
	Doc        string
	// Overrides, when non-empty, names the parent declaration this decl
	// overrides (after generic parameter substitution), used to emit a
	// RIDDEN_BY relation (§4.6.5).
	Overrides string
	// Params lists parameter names for completion snippet rendering.
	Params []string
}

// RefUse is one name-resolution use site discovered while walking the
// typed AST.
type RefUse struct {
	TargetDecl string // matches a Decl.Name within the same compile unit
	Loc        model.Location
	Kind       model.RefKind
	Container  string
}

// Import is one resolved import of the compiled package, with the
// visibility modifier under which it was imported.
type Import struct {
	Package    model.PackageID
	Visibility model.EdgeLabel
}

// CompileResult is everything a successful package compile produces.
type CompileResult struct {
	Package     model.PackageID
	Decls       []Decl
	Refs        []RefUse
	Imports     []Import
	Diagnostics []Diagnostic
	BI          []byte
	// DeclaredName is the package name declared on the primary file's
	// header, used for package-identity reconciliation (§4.6.4).
	DeclaredName string
}

// PartialResult is what the completion-specialized compile path (§4.8)
// produces: a typed AST for the file under the cursor only, stopped as
// soon as the cursor's enclosing context has been typed.
type PartialResult struct {
	File        string
	Decls       []Decl
	Diagnostics []Diagnostic
	// InMacroExpansion is true when the cursor sits inside a macro
	// invocation whose expansion was not carried out in this pass.
	InMacroExpansion bool
}

// Frontend is the external collaborator interface. Implementations wrap
// the real lexer/parser/checker/macro-expander/.cjo loader; the
// orchestrator only ever calls these four methods.
type Frontend interface {
	// Parse parses in.Files without type-checking, returning just enough
	// to discover direct upstream packages and their import visibility
	// (used to seed the dependency graph before any compile runs).
	Parse(ctx context.Context, in CompileInput) ([]Import, []Diagnostic, error)

	// Compile runs parse -> condition-compile -> macro-expand ->
	// type-check -> export for an entire package.
	Compile(ctx context.Context, in CompileInput) (CompileResult, error)

	// CompileForComplete runs a cursor-scoped compile pass that stops as
	// soon as the cursor's enclosing context has been typed (§4.8).
	CompileForComplete(ctx context.Context, in CompileInput, cursor model.Position, file string, forSignatureHelp bool) (PartialResult, error)

	// LoadBI deserializes a previously exported binary interface, e.g.
	// for a standard-library or external module package that is never
	// itself compiled by this orchestrator.
	LoadBI(ctx context.Context, pkg model.PackageID, path string) ([]byte, error)
}
