// Copyright (c) Roman Atachiants and contributors. All rights reserved.
// Licensed under the MIT license. See LICENSE file in the project root for details.

package txn

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// UndoEntry records one version-chain mutation so it can be undone on
// rollback or finalized on commit. Restore is called with the prior head
// reference during rollback; it is the caller's job to patch that back into
// whatever slot owns the chain (a VersionChunk row slot).
type UndoEntry struct {
	Ref       VersionRef
	PriorHead VersionRef
	Restore   func(priorHead VersionRef)
}

// UndoBuffer owns the pre-images produced by one transaction's writes
// (§3 Ownership) in the order they were produced. Rollback unwinds them
// LIFO; Commit finalizes every referenced arena node.
type UndoBuffer struct {
	mu      sync.Mutex
	entries []UndoEntry
}

// Record appends an undo entry.
func (b *UndoBuffer) Record(e UndoEntry) {
	b.mu.Lock()
	b.entries = append(b.entries, e)
	b.mu.Unlock()
}

// Rollback undoes every recorded entry in reverse order and empties the
// buffer so it can be reused for a partial/subsequent rollback.
func (b *UndoBuffer) Rollback() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.entries) - 1; i >= 0; i-- {
		if fn := b.entries[i].Restore; fn != nil {
			fn(b.entries[i].PriorHead)
		}
	}
	b.entries = b.entries[:0]
}

// Refs returns the arena references recorded by this buffer, for Commit to
// finalize.
func (b *UndoBuffer) Refs() []VersionRef {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]VersionRef, len(b.entries))
	for i, e := range b.entries {
		out[i] = e.Ref
	}
	return out
}

// Transaction carries everything a core entry point needs: its own id (used
// to recognize its own uncommitted writes), its snapshot start time, and its
// undo buffer (Design Notes item 4: "pass the transaction and undo buffer
// explicitly to every core entry point").
type Transaction struct {
	ID        ID
	StartTime ID
	Undo      *UndoBuffer
}

// TransactionManager is the contract DataTable consumes (§6): it yields
// transactions, rewrites version-chain heads on commit, and unlinks them on
// rollback.
type TransactionManager interface {
	Begin() *Transaction
	Commit(t *Transaction, arena *Arena) (commitTS ID, err error)
	Rollback(t *Transaction, arena *Arena)
}

// SimpleManager is a reference, in-memory TransactionManager with two atomic
// counters: transaction ids count up from IDStart+1 and commit timestamps
// count up from 2 (a fresh manager's snapshot horizon is 1), so the two
// number lines never collide.
type SimpleManager struct {
	nextTxnID atomic.Uint64
	nextTS    atomic.Uint64
	mu        sync.Mutex
	active    map[ID]*Transaction
}

// NewSimpleManager creates a ready-to-use in-memory transaction manager.
func NewSimpleManager() *SimpleManager {
	m := &SimpleManager{active: make(map[ID]*Transaction)}
	m.nextTxnID.Store(IDStart)
	m.nextTS.Store(1)
	return m
}

// Begin starts a new transaction, snapshotting the current commit timestamp
// as its visibility horizon.
func (m *SimpleManager) Begin() *Transaction {
	id := m.nextTxnID.Add(1)
	t := &Transaction{
		ID:        id,
		StartTime: m.nextTS.Load(),
		Undo:      &UndoBuffer{},
	}
	m.mu.Lock()
	m.active[id] = t
	m.mu.Unlock()
	return t
}

// Commit assigns the next commit timestamp and rewrites every version node
// this transaction produced from its transaction id to that timestamp.
func (m *SimpleManager) Commit(t *Transaction, arena *Arena) (ID, error) {
	if t == nil {
		return 0, fmt.Errorf("txn: commit of a nil transaction")
	}

	ts := m.nextTS.Add(1)
	for _, ref := range t.Undo.Refs() {
		arena.Commit(ref, ts)
	}

	m.mu.Lock()
	delete(m.active, t.ID)
	m.mu.Unlock()
	return ts, nil
}

// Rollback unwinds every version-chain mutation the transaction made.
func (m *SimpleManager) Rollback(t *Transaction, arena *Arena) {
	if t == nil {
		return
	}
	t.Undo.Rollback()

	m.mu.Lock()
	delete(m.active, t.ID)
	m.mu.Unlock()
}

var _ TransactionManager = (*SimpleManager)(nil)
