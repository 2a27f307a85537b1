// Copyright (c) Roman Atachiants and contributors. All rights reserved.
// Licensed under the MIT license. See LICENSE file in the project root for details.

package dtable

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColumnSegmentAppendVector(t *testing.T) {
	seg := newColumnSegment(0, sizeOf(BigInt))
	v := NewVector(BigInt, 3)
	v.SetInt64(0, 10)
	v.SetInt64(1, 20)
	v.SetInt64(2, 30)

	n := seg.AppendVector(v, 0, 3, nil)
	assert.Equal(t, 3, n)
	assert.Equal(t, uint32(3), seg.count)
	assert.False(t, seg.full())
}

func TestColumnSegmentAppendVectorRespectsRemaining(t *testing.T) {
	seg := newColumnSegment(0, sizeOf(BigInt))
	capacity := int(seg.remaining())

	v := NewVector(BigInt, capacity+5)
	for i := 0; i < capacity+5; i++ {
		v.SetInt64(i, int64(i))
	}

	n := seg.AppendVector(v, 0, capacity+5, nil)
	assert.Equal(t, capacity, n)
	assert.True(t, seg.full())
}

func TestColumnSegmentReadWriteAt(t *testing.T) {
	seg := newColumnSegment(0, sizeOf(Integer))
	v := NewVector(Integer, 1)
	v.SetInt64(0, 123)
	seg.AppendVector(v, 0, 1, nil)

	raw := seg.ReadAt(0)
	assert.Len(t, raw, int(sizeOf(Integer)))

	replacement := NewVector(Integer, 1)
	replacement.SetInt64(0, 456)
	seg.WriteAt(0, replacement.Data[:sizeOf(Integer)])

	got := NewVector(Integer, 1)
	copy(got.Data, seg.ReadAt(0))
	got.Nulls.Remove(0)
	assert.Equal(t, int64(456), got.Int64(0))
}

func TestColumnSegmentVarcharRoundTrip(t *testing.T) {
	heap := &stringHeap{}
	seg := newColumnSegment(0, sizeOf(Varchar))

	v := NewVector(Varchar, 2)
	v.SetString(0, "hello")
	v.SetString(1, "world")
	n := seg.AppendVector(v, 0, 2, heap)
	assert.Equal(t, 2, n)

	raw0 := seg.ReadAt(0)
	ref := stringRef{Offset: getUint32(raw0[0:4]), Length: getUint32(raw0[4:8])}
	assert.Equal(t, "hello", heap.Get(ref))

	raw1 := seg.ReadAt(1)
	ref1 := stringRef{Offset: getUint32(raw1[0:4]), Length: getUint32(raw1[4:8])}
	assert.Equal(t, "world", heap.Get(ref1))
}
