package protocol

import (
	"testing"

	"github.com/sourcegraph/go-lsp"
	"github.com/stretchr/testify/assert"

	"github.com/saibing/cjlscore/internal/frontend"
	"github.com/saibing/cjlscore/internal/model"
)

func TestDiagnosticsByFileFillsCleanFilesWithEmptySlice(t *testing.T) {
	diags := []frontend.Diagnostic{
		{File: "a.cj", Message: "boom", Severity: frontend.SeverityError},
	}
	out := DiagnosticsByFile([]string{"a.cj", "b.cj"}, diags)

	assert.Len(t, out["a.cj"], 1)
	assert.Equal(t, lsp.Error, out["a.cj"][0].Severity)
	assert.Empty(t, out["b.cj"], "clean files must still report an empty slice to clear stale diagnostics")
}

func TestCompletionItemUsesRankForSortText(t *testing.T) {
	sym := model.Symbol{
		Kind: model.SymbolFunction,
		Completion: model.CompletionItem{
			Label:      "append",
			InsertText: "append(${1:list}, ${2:item})",
			Snippet:    true,
		},
	}
	item := CompletionItem(sym, 3, model.Position{Line: 2, Character: 5}, 2, true)
	assert.Equal(t, "00003", item.SortText)
	assert.Equal(t, lsp.ITFSnippet, item.InsertTextFormat)
	assert.Equal(t, 3, item.TextEdit.Range.Start.Character)
}

func TestSeverityMapsAllFourLevels(t *testing.T) {
	assert.Equal(t, lsp.Error, Severity(frontend.SeverityError))
	assert.Equal(t, lsp.Warning, Severity(frontend.SeverityWarning))
	assert.Equal(t, lsp.Info, Severity(frontend.SeverityInfo))
	assert.Equal(t, lsp.Hint, Severity(frontend.SeverityHint))
}
