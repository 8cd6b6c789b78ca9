// Package model holds the data types shared by every component of the
// orchestrator: packages, dependency edges, binary-interface status,
// symbols, references, relations and the requests that flow through the
// document worker. Nothing in this package owns a lock or a goroutine; it
// is pure data plus the small pieces of logic (visibility ordering,
// status transition tables) that every component needs to agree on.
package model

import "fmt"

// PackageID is a full, dot-separated package name, optionally carrying a
// source-set prefix (e.g. "specific-foo.bar"). It is the stable key used
// by the graph, the BI cache, the artifact cache and the symbol index.
type PackageID string

// EdgeLabel is the weakest import visibility used by a downstream package's
// imports of an upstream package. Ordering matters: it is used both for
// comparison (weakest-of) and for gating WEAKSTALE propagation.
type EdgeLabel uint8

const (
	Private EdgeLabel = iota
	Internal
	Protected
	Public
)

func (e EdgeLabel) String() string {
	switch e {
	case Private:
		return "PRIVATE"
	case Internal:
		return "INTERNAL"
	case Protected:
		return "PROTECTED"
	case Public:
		return "PUBLIC"
	default:
		return "UNKNOWN"
	}
}

// Weakest returns whichever of a, b is closer to PRIVATE.
func Weakest(a, b EdgeLabel) EdgeLabel {
	if a < b {
		return a
	}
	return b
}

// BIStatus is the freshness state of a package's binary interface.
type BIStatus uint8

const (
	Fresh BIStatus = iota
	Stale
	WeakStale
)

func (s BIStatus) String() string {
	switch s {
	case Fresh:
		return "FRESH"
	case Stale:
		return "STALE"
	case WeakStale:
		return "WEAKSTALE"
	default:
		return "UNKNOWN"
	}
}

// ChangeState describes a file's state in a package's buffer cache.
type ChangeState uint8

const (
	Unchanged ChangeState = iota
	Added
	Changed
	Deleted
)

// PackageKind classifies where an edited file resolves to, per §4.6.3.
type PackageKind uint8

const (
	InOldPackage PackageKind = iota
	InNewPackage
	InProjectNotInSource
	MissingPackage
)

// PackageRelation is the module-level relationship between two packages,
// used to gate PROTECTED/INTERNAL visibility during auto-import and
// extension-method completion (§4.4).
type PackageRelation uint8

const (
	NoRelation PackageRelation = iota
	ChildModule
	ParentModule
	SameModule
)

// SymbolID is a stable identifier for a symbol: a hash of its fully
// qualified export path. Two symbols compare equal iff their export paths
// are identical, regardless of which edit produced them.
type SymbolID uint64

// SymbolKind loosely mirrors LSP's SymbolKind but also carries
// declaration-only kinds (parameter, extension) that the protocol layer
// maps down when producing wire responses.
type SymbolKind uint8

const (
	SymbolUnknown SymbolKind = iota
	SymbolPackage
	SymbolClass
	SymbolInterface
	SymbolStruct
	SymbolEnum
	SymbolFunction
	SymbolMethod
	SymbolField
	SymbolVariable
	SymbolConstant
	SymbolParameter
	SymbolExtension
	SymbolMacro
)

// Position is a zero-based line/column, matching LSP's convention.
type Position struct {
	Line      int
	Character int
}

// Range is a half-open [Start, End) span within a single file.
type Range struct {
	Start Position
	End   Position
}

// Location pins a Range to a file path.
type Location struct {
	File string
	Range
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Range.Start.Line+1, l.Range.Start.Character+1)
}

// Symbol is the unit stored and returned by the symbol index.
type Symbol struct {
	ID         SymbolID
	Name       string
	Kind       SymbolKind
	Package    PackageID
	Decl       Location
	Container  SymbolID // enclosing declaration, 0 if top-level
	Visibility EdgeLabel
	Deprecated bool
	Doc        string
	// Completion is a pre-rendered completion item built at index time so
	// that completion requests never have to re-derive insert text from
	// the declaration.
	Completion CompletionItem
	// ForCompletion is false for symbols that should never surface in
	// completion lists (e.g. synthetic symbols), honoring the
	// restrict_for_completion query flag.
	ForCompletion bool
}

// CompletionItem is the pre-rendered shape the index stores per symbol; the
// protocol layer turns it into the wire lsp.CompletionItem.
type CompletionItem struct {
	Label      string
	InsertText string
	Detail     string
	Snippet    bool
}

// RefKind classifies a Reference.
type RefKind uint8

const (
	RefDefinition RefKind = iota
	RefReference
	RefImport
)

// Reference ties a symbol to a use site.
type Reference struct {
	Symbol    SymbolID
	Loc       Location
	Kind      RefKind
	Container SymbolID
}

// RelationPredicate is the predicate of a (subject, predicate, object)
// relation triple.
type RelationPredicate uint8

const (
	BaseOf RelationPredicate = iota
	Extend
	ContainedBy
	RiddenBy // overridden by
)

// Relation is a derived fact about two symbols.
type Relation struct {
	Subject   SymbolID
	Predicate RelationPredicate
	Object    SymbolID
}

// UpdateTag controls whether a Request forces, suppresses, or lets the
// worker decide on publishing diagnostics after it runs.
type UpdateTag uint8

const (
	UpdateAuto UpdateTag = iota
	UpdateYes
	UpdateNo
)

// Request is a unit of work owned by the document worker (C7).
type Request struct {
	Name   string
	File   string
	Tag    UpdateTag
	Thunk  func() error
	ID     string // correlation id, typically a uuid
}

func (r Request) Key() string {
	return r.Name + "\x00" + r.File
}
