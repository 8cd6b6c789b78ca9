// Package fakefrontend is a deterministic, in-memory stand-in for the
// external compiler front-end, used by orchestrator tests (§8 scenarios
// S1-S6) in place of the real lexer/parser/checker.
//
// Its "compiler" is intentionally trivial: a package's source is a tiny
// DSL of newline-separated declarations, and its BI is just the sorted,
// concatenated text of every exported (capitalized) declaration name plus
// its kind/signature text -- enough to make byte-equality changes
// meaningful without needing a real type system.
package fakefrontend

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/saibing/cjlscore/internal/frontend"
	"github.com/saibing/cjlscore/internal/model"
)

// Line grammar (one per line in a file's content):
//
//	package <declared name>
//	decl <name> <kind> [over <parent>]
//	import <package> <visibility>
//	use <decl name>
//
// Any other line is ignored (so plain comments/blank lines are fine).

type Frontend struct{}

func New() *Frontend { return &Frontend{} }

func (f *Frontend) Parse(ctx context.Context, in frontend.CompileInput) ([]frontend.Import, []frontend.Diagnostic, error) {
	imports := parseImports(in)
	return imports, nil, nil
}

func (f *Frontend) Compile(ctx context.Context, in frontend.CompileInput) (frontend.CompileResult, error) {
	var decls []frontend.Decl
	var refs []frontend.RefUse
	var diags []frontend.Diagnostic
	declaredName := string(in.Package)

	for _, file := range in.Files {
		if file.State == model.Deleted {
			continue
		}
		for lineNo, line := range strings.Split(string(file.Content), "\n") {
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			switch fields[0] {
			case "package":
				if len(fields) >= 2 {
					declaredName = fields[1]
				}
			case "decl":
				if len(fields) < 3 {
					diags = append(diags, frontend.Diagnostic{
						File: file.Path, Severity: frontend.SeverityError,
						Message: "malformed decl", Range: lineRange(lineNo),
					})
					continue
				}
				d := frontend.Decl{
					Name: fields[1],
					Kind: kindFromString(fields[2]),
					Loc:  model.Location{File: file.Path, Range: lineRange(lineNo)},
				}
				if isExported(d.Name) {
					d.Visibility = model.Public
				} else {
					d.Visibility = model.Internal
				}
				if idx := indexOf(fields, "over"); idx >= 0 && idx+1 < len(fields) {
					d.Overrides = fields[idx+1]
				}
				decls = append(decls, d)
			case "use":
				if len(fields) < 2 {
					continue
				}
				refs = append(refs, frontend.RefUse{
					TargetDecl: fields[1],
					Loc:        model.Location{File: file.Path, Range: lineRange(lineNo)},
					Kind:       model.RefReference,
				})
			}
		}
	}

	imports, _, _ := f.Parse(ctx, in)

	return frontend.CompileResult{
		Package:      in.Package,
		Decls:        decls,
		Refs:         refs,
		Imports:      imports,
		Diagnostics:  diags,
		BI:           serializeBI(decls),
		DeclaredName: declaredName,
	}, nil
}

func (f *Frontend) CompileForComplete(ctx context.Context, in frontend.CompileInput, cursor model.Position, file string, forSignatureHelp bool) (frontend.PartialResult, error) {
	res, err := f.Compile(ctx, in)
	if err != nil {
		return frontend.PartialResult{}, err
	}
	var fileDecls []frontend.Decl
	for _, d := range res.Decls {
		if d.Loc.File == file {
			fileDecls = append(fileDecls, d)
		}
	}
	return frontend.PartialResult{File: file, Decls: fileDecls, Diagnostics: res.Diagnostics}, nil
}

func (f *Frontend) LoadBI(ctx context.Context, pkg model.PackageID, path string) ([]byte, error) {
	return []byte(fmt.Sprintf("bi:%s", pkg)), nil
}

func parseImports(in frontend.CompileInput) []frontend.Import {
	var imports []frontend.Import
	for _, file := range in.Files {
		for _, line := range strings.Split(string(file.Content), "\n") {
			fields := strings.Fields(line)
			if len(fields) >= 3 && fields[0] == "import" {
				imports = append(imports, frontend.Import{
					Package:    model.PackageID(fields[1]),
					Visibility: visibilityFromString(fields[2]),
				})
			}
		}
	}
	return imports
}

func serializeBI(decls []frontend.Decl) []byte {
	var exported []string
	for _, d := range decls {
		if d.Visibility == model.Public || d.Visibility == model.Protected {
			exported = append(exported, fmt.Sprintf("%s:%d:over=%s", d.Name, d.Kind, d.Overrides))
		}
	}
	sort.Strings(exported)
	return []byte(strings.Join(exported, "\n"))
}

func kindFromString(s string) model.SymbolKind {
	switch s {
	case "func":
		return model.SymbolFunction
	case "class":
		return model.SymbolClass
	case "struct":
		return model.SymbolStruct
	case "interface":
		return model.SymbolInterface
	case "var":
		return model.SymbolVariable
	case "const":
		return model.SymbolConstant
	default:
		return model.SymbolUnknown
	}
}

func visibilityFromString(s string) model.EdgeLabel {
	switch strings.ToUpper(s) {
	case "PUBLIC":
		return model.Public
	case "PROTECTED":
		return model.Protected
	case "INTERNAL":
		return model.Internal
	default:
		return model.Private
	}
}

func isExported(name string) bool {
	if name == "" {
		return false
	}
	return unicode.IsUpper([]rune(name)[0])
}

func indexOf(fields []string, target string) int {
	for i, f := range fields {
		if f == target {
			return i
		}
	}
	return -1
}

func lineRange(lineNo int) model.Range {
	return model.Range{
		Start: model.Position{Line: lineNo, Character: 0},
		End:   model.Position{Line: lineNo, Character: 1},
	}
}
