// Copyright (c) Roman Atachiants and contributors. All rights reserved.
// Licensed under the MIT license. See LICENSE file in the project root for details.

package dtable

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSegmentTreeAppendAndLookup(t *testing.T) {
	var tree SegmentTree[*ColumnSegment]

	a := newColumnSegment(0, sizeOf(BigInt))
	a.count = 10
	b := newColumnSegment(10, sizeOf(BigInt))
	b.count = 5

	tree.Append(a)
	tree.Append(b)

	found, ok := tree.Lookup(3)
	assert.True(t, ok)
	assert.Same(t, a, found)

	found, ok = tree.Lookup(12)
	assert.True(t, ok)
	assert.Same(t, b, found)

	_, ok = tree.Lookup(15)
	assert.False(t, ok)
}

func TestSegmentTreeRootTailEmpty(t *testing.T) {
	var tree SegmentTree[*ColumnSegment]

	_, ok := tree.Root()
	assert.False(t, ok)
	_, ok = tree.Tail()
	assert.False(t, ok)
	assert.Equal(t, 0, tree.Len())
}

func TestSegmentTreeRootTailNonEmpty(t *testing.T) {
	var tree SegmentTree[*ColumnSegment]
	a := newColumnSegment(0, sizeOf(BigInt))
	b := newColumnSegment(100, sizeOf(BigInt))
	tree.Append(a)
	tree.Append(b)

	root, ok := tree.Root()
	assert.True(t, ok)
	assert.Same(t, a, root)

	tail, ok := tree.Tail()
	assert.True(t, ok)
	assert.Same(t, b, tail)

	assert.Equal(t, 2, tree.Len())
	assert.Equal(t, []*ColumnSegment{a, b}, tree.All())
}

func TestSegmentTreeLockUnlock(t *testing.T) {
	var tree SegmentTree[*ColumnSegment]
	tree.Lock()
	done := make(chan struct{})
	go func() {
		tree.Lock()
		tree.Unlock()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("second lock acquired while first was held")
	default:
	}
	tree.Unlock()
	<-done
}
