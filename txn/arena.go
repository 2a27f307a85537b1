// Copyright (c) Roman Atachiants and contributors. All rights reserved.
// Licensed under the MIT license. See LICENSE file in the project root for details.

// Package txn models the transaction manager and undo-buffer contracts that
// DataTable consumes (§6), plus an arena-allocated version chain
// (Design Notes item 2: "model as arena-allocated version nodes with stable
// indices; the chunk slot holds an optional index; commit/rollback mutate
// the arena, not the chunk").
package txn

import "sync"

// ID identifies a transaction. Values >= IDStart are in-progress transaction
// ids; values below it are commit timestamps (§3, VersionInfo).
type ID = uint64

// IDStart is TRANSACTION_ID_START: the threshold above which a version
// number is an in-progress transaction id rather than a commit timestamp.
const IDStart ID = 1 << 62

// VersionRef is a stable index into an Arena. NoVersion marks "no version
// info" (the row is visible to everyone: committed before the chunk existed).
type VersionRef int64

// NoVersion is the sentinel (-1) meaning "no version chain entry".
const NoVersion VersionRef = -1

// VersionNode is one link in a row's version chain (newest-first once
// threaded through a VersionChunk slot). Tuple is an opaque pre-image
// payload owned and interpreted by the caller (DataTable); the arena itself
// never inspects it.
type VersionNode struct {
	VersionNumber ID
	IsDelete      bool
	Tuple         any
	Prev          VersionRef
}

// Arena is a table-wide, append-only store of VersionNodes addressed by
// stable VersionRef indices, replacing raw pointers from a VersionChunk into
// undo memory (Design Notes item 2). It never shrinks for the lifetime of
// the table, so a VersionRef handed out once never dangles.
type Arena struct {
	mu    sync.Mutex
	nodes []VersionNode
}

// NewArena creates an empty version arena.
func NewArena() *Arena {
	return &Arena{nodes: make([]VersionNode, 0, 1024)}
}

// Push appends a node and returns its stable reference.
func (a *Arena) Push(n VersionNode) VersionRef {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nodes = append(a.nodes, n)
	return VersionRef(len(a.nodes) - 1)
}

// Get returns a copy of the node at ref.
func (a *Arena) Get(ref VersionRef) VersionNode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nodes[ref]
}

// Commit rewrites the node's VersionNumber from a transaction id to a commit
// timestamp (§4.9 row-state machine: "on commit the head's version_number is
// rewritten from the transaction id to the commit timestamp").
func (a *Arena) Commit(ref VersionRef, commitTS ID) {
	a.mu.Lock()
	a.nodes[ref].VersionNumber = commitTS
	a.mu.Unlock()
}

// IsVisible reports whether a version number is visible to a transaction
// with the given id and snapshot start time: either it's a commit timestamp
// at or before the snapshot, or it was written by the reading transaction
// itself.
func IsVisible(versionNumber ID, txnID ID, startTime ID) bool {
	if versionNumber == txnID {
		return true
	}
	return versionNumber < IDStart && versionNumber <= startTime
}
