// Package traverse iterates the hierarchical arrays of an embedded runtime.
//
// The engine keeps no state of its own. Every step is one or more native
// primitive calls (order, query, reverse query, data, get) issued through a
// Primitives implementation, usually Remote over a dispatch.Core.
//
// Sibling order follows the runtime's collation: the empty key first, then
// numbers by value, then strings by bytes. Node order is depth-first
// pre-order over the nodes that hold data, with an ancestor always ahead of
// its descendants. The unsubscripted root is not part of node order.
//
// # Reverse Fallback
//
// Runtimes without a native reverse query get PreviousNode by ascending from
// the start position one level at a time and asking for the previous
// sibling in reverse collation order. When a sibling is found the engine
// descends to its last child at every level; when none is found and the
// ancestor at that level holds data, the ancestor is the predecessor. This
// costs O(depth) calls for the ascent plus O(length of the rightmost path)
// for the descent. The whole step runs under one exclusive hold when the
// primitives support it, so no other caller can change the tree halfway.
package traverse
