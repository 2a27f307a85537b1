// Copyright (c) Roman Atachiants and contributors. All rights reserved.
// Licensed under the MIT license. See LICENSE file in the project root for details.

package dtable

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVectorSetGetInt64(t *testing.T) {
	v := NewVector(BigInt, 3)
	assert.True(t, v.IsNull(0))

	v.SetInt64(1, 42)
	assert.False(t, v.IsNull(1))
	assert.Equal(t, int64(42), v.Int64(1))
}

func TestVectorSetGetFloat64(t *testing.T) {
	v := NewVector(Double, 3)
	assert.True(t, v.IsNull(0))

	v.SetFloat64(1, 100)
	assert.False(t, v.IsNull(1))
	assert.Equal(t, float64(100), v.Float64(1))

	v.SetFloat64(2, -12.25)
	assert.Equal(t, -12.25, v.Float64(2))
}

func TestUniqueDouble(t *testing.T) {
	v := NewVector(Double, 3)
	v.SetFloat64(0, 1.5)
	v.SetFloat64(1, 2.5)
	v.SetFloat64(2, 1.5)

	assert.False(t, Unique(v, 3))
	assert.True(t, Unique(v, 2))
}

func TestVectorSetGetString(t *testing.T) {
	v := NewVector(Varchar, 2)
	v.SetString(0, "abc")
	assert.False(t, v.IsNull(0))
	assert.Equal(t, "abc", v.String(0))
	assert.True(t, v.IsNull(1))
}

func TestCopyToStorageFixedWidth(t *testing.T) {
	src := NewVector(Integer, 3)
	src.SetInt64(0, 1)
	src.SetInt64(1, 2)
	// position 2 left null

	dst := make([]byte, 3*int(sizeOf(Integer)))
	n := CopyToStorage(dst, 0, src, 0, 3, nil)
	assert.Equal(t, 3*int(sizeOf(Integer)), n)

	got := NewVector(Integer, 3)
	copy(got.Data, dst)
	got.Nulls.Remove(0)
	got.Nulls.Remove(1)
	assert.Equal(t, int64(1), got.Int64(0))
	assert.Equal(t, int64(2), got.Int64(1))

	nullBytes := dst[2*int(sizeOf(Integer)) : 3*int(sizeOf(Integer))]
	for _, b := range nullBytes {
		assert.Equal(t, byte(0), b)
	}
}

func TestCopyToStorageVarchar(t *testing.T) {
	src := NewVector(Varchar, 2)
	src.SetString(0, "hi")
	// position 1 left null

	heap := &stringHeap{}
	dst := make([]byte, 2*8)
	CopyToStorage(dst, 0, src, 0, 2, heap)

	var ref stringRef
	ref.Offset = getUint32(dst[0:4])
	ref.Length = getUint32(dst[4:8])
	assert.Equal(t, "hi", heap.Get(ref))

	for _, b := range dst[8:16] {
		assert.Equal(t, byte(0), b)
	}
}

func TestHasNull(t *testing.T) {
	v := NewVector(Integer, 3)
	v.SetInt64(0, 1)
	v.SetInt64(2, 3)

	assert.True(t, HasNull(v, 0, 3))
	assert.False(t, HasNull(v, 0, 1))
}

func TestUniqueInt(t *testing.T) {
	v := NewVector(BigInt, 3)
	v.SetInt64(0, 1)
	v.SetInt64(1, 2)
	v.SetInt64(2, 1)

	assert.False(t, Unique(v, 3))
	assert.True(t, Unique(v, 2))
}

func TestUniqueIgnoresNulls(t *testing.T) {
	v := NewVector(Integer, 3)
	// all null
	assert.True(t, Unique(v, 3))
}

func TestUniqueVarchar(t *testing.T) {
	v := NewVector(Varchar, 2)
	v.SetString(0, "a")
	v.SetString(1, "a")

	assert.False(t, Unique(v, 2))
}

func TestGenerateSequence(t *testing.T) {
	seq := GenerateSequence(5, 3)
	assert.Equal(t, []row_t{5, 6, 7}, seq)
}

func TestSortRowIDs(t *testing.T) {
	ids := []row_t{5, 1, 3}
	Sort(ids)
	assert.Equal(t, []row_t{1, 3, 5}, ids)
}

func TestExecIteratesSelection(t *testing.T) {
	var got []row_t
	Exec(10, []uint32{0, 2, 4}, func(i int, k row_t) {
		got = append(got, k)
	})
	assert.Equal(t, []row_t{10, 12, 14}, got)
}

func TestReferenceSharesUnderlyingStorage(t *testing.T) {
	v := NewVector(BigInt, 4)
	v.SetInt64(0, 1)
	v.SetInt64(1, 2)
	v.SetInt64(2, 3)
	v.SetInt64(3, 4)

	ref := Reference(v, 1, 2)
	assert.Equal(t, 2, ref.Count)
	assert.Equal(t, int64(2), ref.Int64(0))
	assert.Equal(t, int64(3), ref.Int64(1))
}

func TestReferenceVarchar(t *testing.T) {
	v := NewVector(Varchar, 2)
	v.SetString(0, "x")
	v.SetString(1, "y")

	ref := Reference(v, 1, 1)
	assert.Equal(t, "y", ref.String(0))
}
