// Package docstore defines the persistence boundary used by the runtime:
// JSON-shaped documents keyed by collection and id, with get, set and
// update-with-array-union semantics plus an optional optimistic version check.
//
// Implementations live in this package (in-memory) and in the sqlite and
// postgres subpackages. All of them share the Apply function so update
// semantics are identical across backends.
package docstore
