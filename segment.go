// Copyright (c) Roman Atachiants and contributors. All rights reserved.
// Licensed under the MIT license. See LICENSE file in the project root for details.

package dtable

// ColumnSegment is a fixed-capacity, append-only byte buffer holding a
// contiguous run of one column's values (§3/§4.1). Invariants:
//
//	offset == count * sizeOf(type)
//	offset <= BlockSize
//	segment[k].start + segment[k].count == segment[k+1].start within a tree
type ColumnSegment struct {
	start  row_t  // row id of the first element stored in this segment
	count  uint32 // number of elements stored
	offset uint32 // byte offset of the first free byte
	elem   uint32 // sizeOf(column type), fixed for the lifetime of the segment
	data   []byte // capacity BlockSize bytes
}

// BlockSize is the fixed byte capacity of every ColumnSegment. Exposed for
// testing per §6.
const BlockSize = 256 * 1024

func newColumnSegment(start row_t, elemSize uint32) *ColumnSegment {
	return &ColumnSegment{start: start, elem: elemSize, data: make([]byte, BlockSize)}
}

func (s *ColumnSegment) rowStart() row_t   { return s.start }
func (s *ColumnSegment) rowCount() uint32  { return s.count }

// remaining returns how many more elements fit before the segment is full.
func (s *ColumnSegment) remaining() uint32 {
	return (BlockSize - s.offset) / s.elem
}

// full reports whether the segment has no more room for a single element.
func (s *ColumnSegment) full() bool {
	return s.remaining() == 0
}

// AppendVector writes up to min(remaining(), count) values from src (starting
// at srcOffset) into the tail of the segment via a bulk, null-aware copy
// (§4.1). Returns the number of elements actually written. Segment
// allocation is serialized by the caller, which already holds the table's
// row-wise chunk tree append latch.
func (s *ColumnSegment) AppendVector(src *Vector, srcOffset, count int, heap *stringHeap) int {
	n := int(s.remaining())
	if count < n {
		n = count
	}
	if n <= 0 {
		return 0
	}

	written := CopyToStorage(s.data, int(s.offset), src, srcOffset, n, heap)
	s.offset += uint32(written)
	s.count += uint32(n)
	return n
}

// WriteAt overwrites the bytes for a single element at the given local
// offset (used by Update, §4.7).
func (s *ColumnSegment) WriteAt(localOffset uint32, value []byte) {
	off := localOffset * s.elem
	copy(s.data[off:off+s.elem], value)
}

// ReadAt reads the raw bytes for a single element at the given local offset.
func (s *ColumnSegment) ReadAt(localOffset uint32) []byte {
	off := localOffset * s.elem
	return s.data[off : off+s.elem]
}
