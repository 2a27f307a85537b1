// Copyright (c) Roman Atachiants and contributors. All rights reserved.
// Licensed under the MIT license. See LICENSE file in the project root for details.

package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUndoBufferRollbackIsLIFO(t *testing.T) {
	var order []int
	var buf UndoBuffer

	for i := 0; i < 3; i++ {
		i := i
		buf.Record(UndoEntry{Restore: func(VersionRef) { order = append(order, i) }})
	}
	buf.Rollback()

	assert.Equal(t, []int{2, 1, 0}, order)
}

func TestUndoBufferRollbackEmptiesBuffer(t *testing.T) {
	var buf UndoBuffer
	calls := 0
	buf.Record(UndoEntry{Restore: func(VersionRef) { calls++ }})

	buf.Rollback()
	buf.Rollback()

	assert.Equal(t, 1, calls)
}

func TestUndoBufferRefs(t *testing.T) {
	var buf UndoBuffer
	buf.Record(UndoEntry{Ref: 1})
	buf.Record(UndoEntry{Ref: 2})

	assert.Equal(t, []VersionRef{1, 2}, buf.Refs())
}

func TestSimpleManagerBeginAssignsIncreasingIDs(t *testing.T) {
	m := NewSimpleManager()
	a := m.Begin()
	b := m.Begin()

	assert.True(t, a.ID >= IDStart)
	assert.Greater(t, b.ID, a.ID)
}

func TestSimpleManagerCommitRewritesArenaNodes(t *testing.T) {
	m := NewSimpleManager()
	arena := NewArena()
	tx := m.Begin()

	ref := arena.Push(VersionNode{VersionNumber: tx.ID})
	tx.Undo.Record(UndoEntry{Ref: ref})

	ts, err := m.Commit(tx, arena)
	assert.NoError(t, err)
	assert.Equal(t, ts, arena.Get(ref).VersionNumber)
	assert.Less(t, ts, IDStart)
}

func TestSimpleManagerCommitNilTransaction(t *testing.T) {
	m := NewSimpleManager()
	_, err := m.Commit(nil, NewArena())
	assert.Error(t, err)
}

func TestSimpleManagerRollbackUnwindsUndo(t *testing.T) {
	m := NewSimpleManager()
	arena := NewArena()
	tx := m.Begin()

	restored := VersionRef(-99)
	tx.Undo.Record(UndoEntry{
		PriorHead: NoVersion,
		Restore:   func(prior VersionRef) { restored = prior },
	})

	m.Rollback(tx, arena)
	assert.Equal(t, NoVersion, restored)
}

func TestSimpleManagerRollbackNilTransaction(t *testing.T) {
	m := NewSimpleManager()
	assert.NotPanics(t, func() { m.Rollback(nil, NewArena()) })
}

var _ TransactionManager = (*SimpleManager)(nil)
