// Package protocol converts the orchestrator's internal model types into
// LSP wire types. Besides this package, only the diagnostics observer and
// the orchestrator (for the delivery callback's signature) import
// github.com/sourcegraph/go-lsp; compile and index logic work in terms of
// internal/model and internal/frontend.
//
// Grounded on the teacher's langserver/diagnostics.go, completion.go,
// hover.go, and internal/protocol/language.go for field-by-field
// conversions and on the teacher's own dependency,
// github.com/sourcegraph/go-lsp, for the wire types themselves.
package protocol

import (
	"fmt"

	"github.com/sourcegraph/go-lsp"

	"github.com/saibing/cjlscore/internal/frontend"
	"github.com/saibing/cjlscore/internal/model"
)

func Position(p model.Position) lsp.Position {
	return lsp.Position{Line: p.Line, Character: p.Character}
}

func Range(r model.Range) lsp.Range {
	return lsp.Range{Start: Position(r.Start), End: Position(r.End)}
}

func Location(l model.Location) lsp.Location {
	return lsp.Location{
		URI:   lsp.DocumentURI("file://" + l.File),
		Range: Range(l.Range),
	}
}

func Severity(s frontend.DiagnosticSeverity) lsp.DiagnosticSeverity {
	switch s {
	case frontend.SeverityError:
		return lsp.Error
	case frontend.SeverityWarning:
		return lsp.Warning
	case frontend.SeverityInfo:
		return lsp.Info
	case frontend.SeverityHint:
		return lsp.Hint
	default:
		return lsp.Error
	}
}

// Diagnostic converts one compiler diagnostic to its wire shape.
func Diagnostic(d frontend.Diagnostic) lsp.Diagnostic {
	return lsp.Diagnostic{
		Range:    Range(d.Range),
		Severity: Severity(d.Severity),
		Source:   d.Source,
		Message:  d.Message,
	}
}

// DiagnosticsByFile groups a slice of diagnostics by file path for the
// per-file "publishDiagnostics" notification shape, filling in an empty
// slice for every file in allFiles even when it has no diagnostics — a
// clean report is how a client learns earlier diagnostics were cleared.
func DiagnosticsByFile(allFiles []string, diags []frontend.Diagnostic) map[string][]lsp.Diagnostic {
	out := make(map[string][]lsp.Diagnostic, len(allFiles))
	for _, f := range allFiles {
		out[f] = []lsp.Diagnostic{}
	}
	for _, d := range diags {
		out[d.File] = append(out[d.File], Diagnostic(d))
	}
	return out
}

func SymbolKind(k model.SymbolKind) lsp.SymbolKind {
	switch k {
	case model.SymbolPackage:
		return lsp.SKPackage
	case model.SymbolClass:
		return lsp.SKClass
	case model.SymbolInterface:
		return lsp.SKInterface
	case model.SymbolStruct:
		return lsp.SKStruct
	case model.SymbolEnum:
		return lsp.SKEnum
	case model.SymbolFunction:
		return lsp.SKFunction
	case model.SymbolMethod:
		return lsp.SKMethod
	case model.SymbolField:
		return lsp.SKField
	case model.SymbolVariable:
		return lsp.SKVariable
	case model.SymbolConstant:
		return lsp.SKConstant
	default:
		return lsp.SKVariable
	}
}

func completionItemKind(k model.SymbolKind) lsp.CompletionItemKind {
	switch k {
	case model.SymbolClass:
		return lsp.CIKClass
	case model.SymbolInterface:
		return lsp.CIKInterface
	case model.SymbolStruct:
		return lsp.CIKStruct
	case model.SymbolEnum:
		return lsp.CIKEnum
	case model.SymbolFunction:
		return lsp.CIKFunction
	case model.SymbolMethod:
		return lsp.CIKMethod
	case model.SymbolField:
		return lsp.CIKField
	case model.SymbolVariable:
		return lsp.CIKVariable
	case model.SymbolConstant:
		return lsp.CIKConstant
	case model.SymbolParameter:
		return lsp.CIKVariable
	default:
		return lsp.CIKText
	}
}

// CompletionItem converts one index-produced completion item, sorted to
// sortIndex, at the edit range implied by cursor and prefixLen.
func CompletionItem(sym model.Symbol, sortIndex int, cursor model.Position, prefixLen int, snippetsSupported bool) lsp.CompletionItem {
	format := lsp.ITFPlainText
	if snippetsSupported && sym.Completion.Snippet {
		format = lsp.ITFSnippet
	}
	rng := lsp.Range{
		Start: lsp.Position{Line: cursor.Line, Character: cursor.Character - prefixLen},
		End:   lsp.Position{Line: cursor.Line, Character: cursor.Character},
	}
	return lsp.CompletionItem{
		Label:            sym.Completion.Label,
		Detail:           sym.Completion.Detail,
		Kind:             completionItemKind(sym.Kind),
		InsertTextFormat: format,
		InsertText:       sym.Completion.InsertText,
		TextEdit: &lsp.TextEdit{
			NewText: sym.Completion.InsertText,
			Range:   rng,
		},
		// Sorts results by index-assigned rank rather than alphabetically,
		// same workaround the teacher uses pending microsoft/language-server-protocol#348.
		SortText: fmt.Sprintf("%05d", sortIndex),
	}
}

// AutoImportEdit builds the additional text edit that inserts an import
// statement at the top of the file, for a completion item whose symbol
// lives in a package not yet imported.
func AutoImportEdit(pkg model.PackageID, insertLine int) lsp.TextEdit {
	return lsp.TextEdit{
		Range: lsp.Range{
			Start: lsp.Position{Line: insertLine, Character: 0},
			End:   lsp.Position{Line: insertLine, Character: 0},
		},
		NewText: fmt.Sprintf("import %s\n", pkg),
	}
}

// Hover renders a symbol's doc comment and signature detail as a
// plain-text hover.
func Hover(sym model.Symbol, rng model.Range) lsp.Hover {
	contents := sym.Completion.Detail
	if sym.Doc != "" {
		contents = contents + "\n\n" + sym.Doc
	}
	r := Range(rng)
	return lsp.Hover{
		Contents: []lsp.MarkedString{{Language: "", Value: contents}},
		Range:    &r,
	}
}

// SymbolInformation converts one index symbol to a workspace-symbol
// search result.
func SymbolInformation(sym model.Symbol) lsp.SymbolInformation {
	return lsp.SymbolInformation{
		Name:          sym.Name,
		Kind:          SymbolKind(sym.Kind),
		Location:      Location(sym.Decl),
		ContainerName: string(sym.Package),
	}
}

// WorkspaceEdit groups per-file text edits for a rename response.
func WorkspaceEdit(edits map[string][]lsp.TextEdit) lsp.WorkspaceEdit {
	return lsp.WorkspaceEdit{Changes: edits}
}

// CompletionTipNotification is the custom "$/completionTip" params object
// sent when a nested-macro completion needs a full compile (§4.8, §6).
type CompletionTipNotification struct {
	Message string `json:"message"`
}

// WaitingMacroExpandTip is the fixed message text named in spec.md §6.
const WaitingMacroExpandTip = "waiting macro expand..."
