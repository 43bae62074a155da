// Package graph models the intra-workspace dependency graph.
//
// Packages are stored in an arena sorted by name and addressed through a
// name index, so cyclic structures need no linked ownership. Forward and
// reverse adjacency are precomputed at build time. Cycle detection uses
// Tarjan's strongly connected components with name-ordered traversal, which
// keeps every reported cycle stable across runs.
package graph
