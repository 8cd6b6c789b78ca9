package diagnostics

import (
	"context"
	"testing"

	"github.com/sourcegraph/go-lsp"
	"github.com/sourcegraph/jsonrpc2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saibing/cjlscore/internal/frontend"
)

type delivery struct {
	uri     lsp.DocumentURI
	version int
	diags   []lsp.Diagnostic
}

func TestEmitDiagsOfPackageReportsEveryFileIncludingClean(t *testing.T) {
	var delivered []delivery
	o := New(func(ctx context.Context, conn jsonrpc2.JSONRPC2, uri lsp.DocumentURI, version int, diags []lsp.Diagnostic) {
		delivered = append(delivered, delivery{uri, version, diags})
	})

	o.SetPackageDiagnostics("pkg.a", []string{"a.cj", "b.cj"}, []frontend.Diagnostic{
		{File: "a.cj", Message: "boom", Severity: frontend.SeverityError},
	})

	o.EmitDiagsOfPackage(context.Background(), nil, "pkg.a")

	require.Len(t, delivered, 2)
	byFile := map[lsp.DocumentURI][]lsp.Diagnostic{}
	for _, d := range delivered {
		byFile[d.uri] = d.diags
	}
	assert.Len(t, byFile["file://a.cj"], 1)
	assert.Empty(t, byFile["file://b.cj"], "clean file must still be reported so stale diagnostics clear")
}

func TestRemoveDocByFileClearsItsDiagnostics(t *testing.T) {
	var delivered []delivery
	o := New(func(ctx context.Context, conn jsonrpc2.JSONRPC2, uri lsp.DocumentURI, version int, diags []lsp.Diagnostic) {
		delivered = append(delivered, delivery{uri, version, diags})
	})
	o.SetPackageDiagnostics("pkg.a", []string{"a.cj"}, []frontend.Diagnostic{
		{File: "a.cj", Message: "boom"},
	})
	o.RemoveDocByFile("a.cj")

	o.EmitDiagsOfFile(context.Background(), nil, "a.cj")
	require.Len(t, delivered, 1)
	assert.Empty(t, delivered[0].diags)
}

func TestSetPackageDiagnosticsReplacesPreviousSet(t *testing.T) {
	o := New(func(ctx context.Context, conn jsonrpc2.JSONRPC2, uri lsp.DocumentURI, version int, diags []lsp.Diagnostic) {
	})
	o.SetPackageDiagnostics("pkg.a", []string{"a.cj"}, []frontend.Diagnostic{
		{File: "a.cj", Message: "first"},
	})
	o.SetPackageDiagnostics("pkg.a", []string{"a.cj"}, []frontend.Diagnostic{
		{File: "a.cj", Message: "second"},
	})

	got := o.PackageDiagnostics("pkg.a")
	require.Len(t, got, 1)
	assert.Equal(t, "second", got[0].Message)
}

func TestRemovePackageDropsAllItsFiles(t *testing.T) {
	o := New(func(ctx context.Context, conn jsonrpc2.JSONRPC2, uri lsp.DocumentURI, version int, diags []lsp.Diagnostic) {
	})
	o.SetPackageDiagnostics("pkg.a", []string{"a.cj"}, []frontend.Diagnostic{{File: "a.cj", Message: "boom"}})
	o.RemovePackage("pkg.a")
	assert.Empty(t, o.PackageDiagnostics("pkg.a"))
}
