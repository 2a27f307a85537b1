// Copyright (c) Roman Atachiants and contributors. All rights reserved.
// Licensed under the MIT license. See LICENSE file in the project root for details.

package dtable

import (
	"sort"
	"sync"
)

// treeNode is satisfied by both ColumnSegment and VersionChunk: anything
// that can be keyed by its starting row id inside a SegmentTree.
type treeNode interface {
	rowStart() row_t
	rowCount() uint32
}

// SegmentTree is an ordered, append-only collection of nodes keyed by
// row-id-space `start`, supporting O(log n) lookup by row id, append at the
// tail under node_lock (the "append latch" of §5), and root/tail access.
//
// Append is serialized by an explicit Lock/Unlock pair rather than baked
// into Append itself, because DataTable.Append needs to hold the latch
// across both the tree append *and* the tail VersionChunk's exclusive lock
// (§4.5 step 4).
type SegmentTree[T treeNode] struct {
	mu    sync.Mutex // node_lock: the append latch guarding tail allocation
	nodes []T
}

// Lock acquires the tree's node_lock (append latch).
func (t *SegmentTree[T]) Lock() { t.mu.Lock() }

// Unlock releases the tree's node_lock.
func (t *SegmentTree[T]) Unlock() { t.mu.Unlock() }

// Append adds a node to the tail of the tree. Callers are expected to already
// hold the append latch (DataTable serializes all Append callers on the tail
// chunk's exclusive lock plus the row-wise chunk tree's latch, which also
// covers appends to the per-column trees).
func (t *SegmentTree[T]) Append(n T) {
	t.nodes = append(t.nodes, n)
}

// Lookup returns the node whose [start, start+count) range contains rowID.
func (t *SegmentTree[T]) Lookup(rowID row_t) (T, bool) {
	var zero T
	i := sort.Search(len(t.nodes), func(i int) bool {
		return t.nodes[i].rowStart()+row_t(t.nodes[i].rowCount()) > rowID
	})
	if i < len(t.nodes) && t.nodes[i].rowStart() <= rowID {
		return t.nodes[i], true
	}
	return zero, false
}

// Root returns the first node in the tree, if any.
func (t *SegmentTree[T]) Root() (T, bool) {
	var zero T
	if len(t.nodes) == 0 {
		return zero, false
	}
	return t.nodes[0], true
}

// Tail returns the last node in the tree, if any.
func (t *SegmentTree[T]) Tail() (T, bool) {
	var zero T
	if len(t.nodes) == 0 {
		return zero, false
	}
	return t.nodes[len(t.nodes)-1], true
}

// Len returns the number of nodes currently in the tree.
func (t *SegmentTree[T]) Len() int {
	return len(t.nodes)
}

// All returns every node in row-id order; used by scans and invariant checks.
func (t *SegmentTree[T]) All() []T {
	return t.nodes
}
