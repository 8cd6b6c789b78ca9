package model

import "errors"

// Sentinel errors surfaced across component boundaries. Per §7, none of
// these interrupt scheduling on their own; callers decide whether a
// sentinel becomes a diagnostic, a no-op, or a logged-and-ignored event.
var (
	// ErrCycle is returned by graph operations that require an acyclic
	// graph (topological_sort) when a cycle is present.
	ErrCycle = errors.New("dependency graph contains a cycle")

	// ErrNotFound is returned when a package, symbol, or artifact lookup
	// misses.
	ErrNotFound = errors.New("not found")

	// ErrShutDown names the shutting-down condition; no function of this
	// module returns it.
	ErrShutDown = errors.New("server is shutting down")

	// ErrRedefined marks a package whose declared name collides with an
	// already-registered package of the derived name (§4.6.4).
	ErrRedefined = errors.New("package redefined")

	// ErrNeedsFullCompile is returned by the completion path when an
	// upstream package's binary interface is not available yet, so a fresh
	// completion instance cannot be built without a full compile. Nested
	// macro invocations do not produce it.
	ErrNeedsFullCompile = errors.New("completion requires a full compile")
)
