// Copyright (c) Roman Atachiants and contributors. All rights reserved.
// Licensed under the MIT license. See LICENSE file in the project root for details.

package dtable

import (
	"sync"

	"github.com/kelindar/bitmap"

	"github.com/kelindar/dtable/txn"
)

// StorageChunkSize is STORAGE_CHUNK_SIZE: the maximum number of rows a single
// VersionChunk holds. Exposed for testing per §6.
const StorageChunkSize = 1024

// VectorSize bounds how many rows a single Scan call materializes.
const VectorSize = 2048

// columnPointer is a (segment_index, element_offset) handle into a column's
// SegmentTree marking where this chunk's rows begin for that column
// (Design Notes item 1: handles instead of raw pointers/iterators, so the
// relation survives the arena growing without cyclic ownership).
type columnPointer struct {
	segIdx  int
	elemOff uint32
}

// locate walks forward from the pointer's starting segment to find the
// segment and local element offset holding rowOffset rows past the chunk's
// start, accounting for a chunk's column data spilling across a segment
// boundary (rare: only when a segment fills exactly inside a chunk's span).
func (cp columnPointer) locate(tree *SegmentTree[*ColumnSegment], rowOffset uint32) (*ColumnSegment, uint32) {
	segs := tree.All()
	idx := cp.segIdx
	local := cp.elemOff + rowOffset
	for local >= segs[idx].count {
		local -= segs[idx].count
		idx++
	}
	return segs[idx], local
}

// tupleValue is one column's worth of a captured pre-image.
type tupleValue struct {
	Null bool
	I64  int64
	F64  float64
	Str  string
}

// tupleImage is the serialized, all-columns pre-image captured by PushTuple
// (§4.2, VersionInfo.tuple_image). Insert markers from PushDeletedEntries
// carry no tupleImage.
type tupleImage struct {
	Values []tupleValue
}

// VersionChunk is a horizontal slab of up to StorageChunkSize rows spanning
// all columns: it owns per-row version-info slots, a string heap, a deleted
// bitmap and a reader/writer lock, and holds back-references (never
// ownership, §3 Ownership) into the per-column SegmentTrees via cols.
type VersionChunk struct {
	lock sync.RWMutex

	start row_t
	count uint32

	cols     []columnPointer
	versions []txn.VersionRef // head of each row's version chain, or txn.NoVersion
	deleted  bitmap.Bitmap

	heap stringHeap
	next *VersionChunk
}

func newVersionChunk(start row_t, cols []columnPointer) *VersionChunk {
	return &VersionChunk{
		start:   start,
		cols:    cols,
		deleted: make(bitmap.Bitmap, 0, 4),
	}
}

func (c *VersionChunk) rowStart() row_t  { return c.start }
func (c *VersionChunk) rowCount() uint32 { return c.count }

// Lock / Unlock / RLock / RUnlock expose the chunk's single reader/writer
// lock (§4.2 State: "a single reader/writer lock; writers require
// exclusive, readers require shared").
func (c *VersionChunk) Lock()    { c.lock.Lock() }
func (c *VersionChunk) Unlock()  { c.lock.Unlock() }
func (c *VersionChunk) RLock()   { c.lock.RLock() }
func (c *VersionChunk) RUnlock() { c.lock.RUnlock() }

// full reports whether the chunk has reached StorageChunkSize rows. Callers
// must hold at least a read lock.
func (c *VersionChunk) full() bool {
	return c.count >= StorageChunkSize
}

// PushDeletedEntries reserves n version-info slots at the chunk tail marked
// "newly inserted" (no prior version), chained into the transaction's undo
// buffer so that rollback removes their visibility (§4.2). Caller must hold
// the chunk's exclusive lock.
func (c *VersionChunk) PushDeletedEntries(t *txn.Transaction, arena *txn.Arena, n int) uint32 {
	rowOffset := c.count
	for i := 0; i < n; i++ {
		slot := rowOffset + uint32(i)
		ref := arena.Push(txn.VersionNode{VersionNumber: t.ID, IsDelete: false, Prev: txn.NoVersion})
		c.versions = append(c.versions, ref)

		capturedSlot := slot
		t.Undo.Record(txn.UndoEntry{
			Ref:       ref,
			PriorHead: txn.NoVersion,
			Restore: func(txn.VersionRef) {
				c.deleted.Set(capturedSlot)
			},
		})
	}
	c.count += uint32(n)
	return rowOffset
}

// PushTuple copies the row's current pre-image into the undo buffer and
// prepends a new version-info node to the chain at rowOffset (§4.2). Caller
// must hold the chunk's exclusive lock.
func (c *VersionChunk) PushTuple(t *txn.Transaction, arena *txn.Arena, isDelete bool, rowOffset uint32, preImage *tupleImage) {
	prior := c.versions[rowOffset]
	ref := arena.Push(txn.VersionNode{VersionNumber: t.ID, IsDelete: isDelete, Tuple: preImage, Prev: prior})
	c.versions[rowOffset] = ref

	t.Undo.Record(txn.UndoEntry{
		Ref:       ref,
		PriorHead: prior,
		Restore: func(priorHead txn.VersionRef) {
			c.versions[rowOffset] = priorHead
		},
	})
}

// SetDeleted marks rowOffset as physically deleted in the chunk's fast-path
// bitmap (§4.2), registering an undo entry that clears the bit again on
// rollback — CreateIndexScan gates solely on this bitmap, so leaving the bit
// set after a rolled-back delete would hide an otherwise-live row from it
// forever.
func (c *VersionChunk) SetDeleted(t *txn.Transaction, rowOffset uint32) {
	c.deleted.Set(rowOffset)

	ref := c.versions[rowOffset]
	t.Undo.Record(txn.UndoEntry{
		Ref:       ref,
		PriorHead: ref,
		Restore: func(txn.VersionRef) {
			c.deleted.Remove(rowOffset)
		},
	})
}

// GetVersionInfo returns the head of the version chain for rowOffset, or
// txn.NoVersion if the row has never been touched since chunk creation.
func (c *VersionChunk) GetVersionInfo(rowOffset uint32) txn.VersionRef {
	if int(rowOffset) >= len(c.versions) {
		return txn.NoVersion
	}
	return c.versions[rowOffset]
}

// resolved is the outcome of walking a row's version chain for a reader.
type resolved struct {
	visible bool // false => row does not exist for this reader (deleted, or rolled back)
	useBase bool // true => materialize from the live column segments
	image   *tupleImage
}

// resolveVisibility walks the version chain for rowOffset, newest (head)
// first, applying txn.IsVisible at each node (§4.2 Scan doc): a row is
// visible to t iff its head is absent (committed before the chunk was born),
// or the first ancestor whose write is visible to t is found. That
// ancestor's own IsDelete flag determines whether the write it represents
// was a delete; if it was not a delete, the value it produced is either the
// live base data (when the ancestor is the head itself) or the pre-image
// captured by the node one step newer in the chain (its child), since a
// node's Tuple is always "the row as it was immediately before this node's
// own write" — which is exactly the state right after its parent's write.
func (c *VersionChunk) resolveVisibility(arena *txn.Arena, rowOffset uint32, t *txn.Transaction) resolved {
	head := c.GetVersionInfo(rowOffset)
	if head == txn.NoVersion {
		return resolved{visible: !c.deleted.Contains(rowOffset), useBase: true}
	}

	cur := head
	var child txn.VersionRef = txn.NoVersion
	for {
		node := arena.Get(cur)
		if txn.IsVisible(node.VersionNumber, t.ID, t.StartTime) {
			if node.IsDelete {
				return resolved{visible: false}
			}
			if cur == head {
				return resolved{visible: true, useBase: true}
			}
			childNode := arena.Get(child)
			return resolved{visible: true, image: childNode.Tuple.(*tupleImage)}
		}
		if node.Prev == txn.NoVersion {
			if node.Tuple == nil {
				// This is the row's original insert marker and it is not
				// visible to the reader: the row does not exist yet for it.
				return resolved{visible: false}
			}
			// No ancestor write is visible to this reader: fall back to the
			// oldest captured pre-image as a conservative best effort.
			return resolved{visible: true, image: node.Tuple.(*tupleImage)}
		}
		child = cur
		cur = node.Prev
	}
}

// captureRow materializes the current live values of rowOffset across every
// column, for use as a pre-image before an Update or Delete overwrites them.
func (c *VersionChunk) captureRow(cols []*SegmentTree[*ColumnSegment], types []LogicalType, rowOffset uint32) *tupleImage {
	values := make([]tupleValue, len(cols))
	for i, tree := range cols {
		seg, local := c.cols[i].locate(tree, rowOffset)
		values[i] = c.readColumnValue(seg, local, types[i])
	}
	return &tupleImage{Values: values}
}

func (c *VersionChunk) readColumnValue(seg *ColumnSegment, local uint32, t LogicalType) tupleValue {
	raw := seg.ReadAt(local)
	if t == Varchar {
		var ref stringRef
		ref.Offset = getUint32(raw[0:4])
		ref.Length = getUint32(raw[4:8])
		if ref.Length == 0 && ref.Offset == 0 {
			return tupleValue{Null: true}
		}
		return tupleValue{Str: c.heap.Get(ref)}
	}

	width := int(sizeOf(t))
	v := NewVector(t, 1)
	copy(v.Data[:width], raw[:width])
	v.Nulls.Remove(0)
	if t == Double {
		return tupleValue{F64: v.Float64(0)}
	}
	return tupleValue{I64: v.Int64(0)}
}

// Scan produces the next up-to-VectorSize block of rows visible to t into
// result, starting at sub-offset offset and projecting columnIDs, never
// reading past limit (the snapshot's captured row count for this chunk, so
// that appends past scan-begin stay invisible even inside the tail chunk).
// It returns how many rows were written and nextOffset, the row offset the
// caller should resume from on its next call — always the offset actually
// reached by the scan loop, not merely offset+written, since invisible rows
// (deleted, or not yet committed to this reader) are skipped without
// producing output but must still advance the cursor past them (§4.2, §4.8
// InitializeScan).
func (c *VersionChunk) Scan(arena *txn.Arena, t *txn.Transaction, colTrees []*SegmentTree[*ColumnSegment], types []LogicalType, columnIDs []int, offset, limit uint32, result *Chunk) (nextOffset uint32, written int) {
	rowOffset := offset
	for ; rowOffset < limit && written < VectorSize; rowOffset++ {
		res := c.resolveVisibility(arena, rowOffset, t)
		if !res.visible {
			continue
		}

		for outIdx, colID := range columnIDs {
			dst := result.Columns[outIdx]
			if res.useBase {
				seg, local := c.cols[colID].locate(colTrees[colID], rowOffset)
				setVectorFromColumn(dst, written, seg, local, types[colID], &c.heap)
			} else {
				setVectorFromTuple(dst, written, res.image.Values[colID])
			}
		}
		written++
	}
	result.Count = written
	return rowOffset, written
}

// RetrieveTupleData materializes a single row for t into result at
// position 0, applying the same visibility rule as Scan (§4.2). ok is false
// if the row is not visible (deleted, or never existed for this reader).
func (c *VersionChunk) RetrieveTupleData(arena *txn.Arena, t *txn.Transaction, colTrees []*SegmentTree[*ColumnSegment], types []LogicalType, columnIDs []int, rowOffset uint32, result *Chunk) (ok bool) {
	res := c.resolveVisibility(arena, rowOffset, t)
	if !res.visible {
		return false
	}

	for outIdx, colID := range columnIDs {
		dst := result.Columns[outIdx]
		if res.useBase {
			seg, local := c.cols[colID].locate(colTrees[colID], rowOffset)
			setVectorFromColumn(dst, 0, seg, local, types[colID], &c.heap)
		} else {
			setVectorFromTuple(dst, 0, res.image.Values[colID])
		}
	}
	result.Count = 1
	return true
}

// CreateIndexScan produces every row in the chunk visible to a snapshot that
// considers all committed AND in-progress insertions (i.e. ignores the
// uncommitted-ownership rule entirely and only skips rows whose deleted bit
// is set: rows deleted by any transaction, committed or not, and rows of a
// rolled-back Append), for index bootstrap (§4.2).
func (c *VersionChunk) CreateIndexScan(colTrees []*SegmentTree[*ColumnSegment], types []LogicalType, columnIDs []int, result *Chunk) int {
	written := 0
	for rowOffset := uint32(0); rowOffset < c.count; rowOffset++ {
		if c.deleted.Contains(rowOffset) {
			continue
		}
		for outIdx, colID := range columnIDs {
			dst := result.Columns[outIdx]
			seg, local := c.cols[colID].locate(colTrees[colID], rowOffset)
			setVectorFromColumn(dst, written, seg, local, types[colID], &c.heap)
		}
		written++
	}
	result.Count = written
	return written
}

func setVectorFromColumn(dst *Vector, pos int, seg *ColumnSegment, local uint32, t LogicalType, heap *stringHeap) {
	raw := seg.ReadAt(local)
	if t == Varchar {
		ref := stringRef{Offset: getUint32(raw[0:4]), Length: getUint32(raw[4:8])}
		if ref.Length == 0 && ref.Offset == 0 {
			dst.Nulls.Set(uint32(pos))
			return
		}
		dst.SetString(pos, heap.Get(ref))
		return
	}

	width := int(sizeOf(t))
	off := pos * width
	copy(dst.Data[off:off+width], raw[:width])
	dst.Nulls.Remove(uint32(pos))
}

func setVectorFromTuple(dst *Vector, pos int, v tupleValue) {
	if v.Null {
		dst.Nulls.Set(uint32(pos))
		return
	}
	if dst.Type == Varchar {
		dst.SetString(pos, v.Str)
		return
	}
	if dst.Type == Double {
		dst.SetFloat64(pos, v.F64)
		return
	}
	dst.SetInt64(pos, v.I64)
}

func getUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// patchPosition remembers where a Varchar value was written through a
// scratch heap, so mergeScratchHeap can rebase its stringRef once the
// scratch bytes are appended to the chunk's real heap.
type patchPosition struct {
	seg   *ColumnSegment
	local uint32
}

// mergeScratchHeap appends scratch's bytes to dst and rewrites every
// recorded position's stringRef offset to point into dst instead of scratch
// (§4.5 step 9 / §4.7 step 8: "merge the scratch string heap into the...
// chunk's heap"). Null sentinels (zero offset and length) are left alone.
func mergeScratchHeap(dst *stringHeap, scratch *stringHeap, positions []patchPosition) {
	base := uint32(len(dst.buf))
	dst.buf = append(dst.buf, scratch.buf...)
	for _, p := range positions {
		raw := p.seg.ReadAt(p.local)
		off := getUint32(raw[0:4])
		length := getUint32(raw[4:8])
		if length == 0 && off == 0 {
			continue
		}
		putUint32(raw[0:4], base+off)
	}
}
