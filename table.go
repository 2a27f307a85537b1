// Copyright (c) Roman Atachiants and contributors. All rights reserved.
// Licensed under the MIT license. See LICENSE file in the project root for details.

package dtable

import (
	"sort"

	"github.com/kelindar/dtable/expr"
	"github.com/kelindar/dtable/txn"
)

// DataTable is the top-level coordinator (§2, §4.5–§4.9): it owns the two
// segment trees (per-column and row-wise), the index list and statistics,
// and funnels every Append/Update/Delete/Scan/Fetch through them.
type DataTable struct {
	catalog *TableCatalogEntry
	types   []LogicalType

	arena *txn.Arena

	cols   []*SegmentTree[*ColumnSegment]
	chunks SegmentTree[*VersionChunk]

	stats   []*ColumnStatistics
	indexes []Index

	verifier *ConstraintVerifier
}

// NewDataTable creates an empty table bound to catalog, using arena for
// version-chain storage, indexes as its secondary indexes in declaration
// order, and executor to evaluate CHECK constraints.
func NewDataTable(catalog *TableCatalogEntry, arena *txn.Arena, indexes []Index, executor expr.ExpressionExecutor) *DataTable {
	types := catalog.GetTypes()
	t := &DataTable{
		catalog:  catalog,
		types:    types,
		arena:    arena,
		cols:     make([]*SegmentTree[*ColumnSegment], len(types)),
		stats:    make([]*ColumnStatistics, len(types)),
		indexes:  indexes,
		verifier: NewConstraintVerifier(executor),
	}
	for i, typ := range types {
		t.cols[i] = &SegmentTree[*ColumnSegment]{}
		t.stats[i] = newColumnStatistics(typ)
	}
	return t
}

// Cardinality returns the number of row ids ever allocated, live or deleted
// (row-id space is never reclaimed, §8 invariant 4).
func (t *DataTable) Cardinality() row_t {
	tail, ok := t.chunks.Tail()
	if !ok {
		return 0
	}
	return tail.rowStart() + row_t(tail.rowCount())
}

// Statistics returns the running per-column summary for col.
func (t *DataTable) Statistics(col int) *ColumnStatistics {
	return t.stats[col]
}

// --------------------------------------------------------------- Append ---

// Append verifies, indexes and stores a full-row chunk under a single
// transaction (§4.5).
func (t *DataTable) Append(tx *txn.Transaction, chunk *Chunk) error {
	if chunk.Count == 0 {
		return &CatalogError{Reason: "cannot append an empty chunk"}
	}
	if len(chunk.Columns) != len(t.types) {
		return &CatalogError{Reason: "column count does not match catalog"}
	}

	if err := t.verifier.VerifyAppendConstraints(t.catalog.Constraints, chunk); err != nil {
		return err
	}

	t.chunks.Lock()
	defer t.chunks.Unlock()

	tail := t.tailChunkLocked()
	defer func() { tail.Unlock() }()

	rowStart := tail.rowStart() + row_t(tail.rowCount())
	rowIDs := GenerateSequence(rowStart, chunk.Count)

	if !t.appendToIndexes(chunk, rowIDs) {
		return newConstraintError("PRIMARY KEY or UNIQUE constraint violated: duplicated key", nil)
	}

	for col, v := range chunk.Columns {
		t.stats[col].Update(v, 0, chunk.Count)
	}

	remaining := chunk.Count
	srcOffset := 0
	for remaining > 0 {
		if tail.full() {
			next := t.appendVersionChunk(tail.rowStart() + row_t(tail.rowCount()))
			tail.next = next
			tail.Unlock()
			tail = next
			tail.Lock()
		}

		n := int(StorageChunkSize - tail.count)
		if n > remaining {
			n = remaining
		}

		tail.PushDeletedEntries(tx, t.arena, n)
		for col, v := range chunk.Columns {
			var heap *stringHeap
			if t.types[col] == Varchar {
				heap = &stringHeap{}
			}
			_, positions := t.appendColumnVector(col, v, srcOffset, n, heap)
			if heap != nil {
				mergeScratchHeap(&tail.heap, heap, positions)
			}
		}

		srcOffset += n
		remaining -= n
	}

	return nil
}

// tailChunkLocked returns the table's tail VersionChunk, creating the first
// one if the table is empty, and locks it exclusively. Caller must already
// hold t.chunks' append latch.
func (t *DataTable) tailChunkLocked() *VersionChunk {
	tail, ok := t.chunks.Tail()
	if !ok {
		tail = t.appendVersionChunk(0)
	}
	tail.Lock()
	return tail
}

// appendVersionChunk allocates a new, empty VersionChunk starting at start,
// pinning each column's pointer to the current tail of its SegmentTree
// (allocating a first segment for any column tree that is still empty).
// Caller must hold t.chunks' append latch.
func (t *DataTable) appendVersionChunk(start row_t) *VersionChunk {
	cols := make([]columnPointer, len(t.cols))
	for i, tree := range t.cols {
		seg, ok := tree.Tail()
		if !ok {
			seg = newColumnSegment(0, sizeOf(t.types[i]))
			tree.Append(seg)
		}
		cols[i] = columnPointer{segIdx: tree.Len() - 1, elemOff: seg.count}
	}
	vc := newVersionChunk(start, cols)
	t.chunks.Append(vc)
	return vc
}

// appendColumnVector bulk-copies count values of v (from srcOffset) into
// column col's SegmentTree, allocating new segments as needed (§4.1: "if the
// tail segment is full, allocate a new segment ... and recurse").
func (t *DataTable) appendColumnVector(col int, v *Vector, srcOffset, count int, heap *stringHeap) (written int, positions []patchPosition) {
	tree := t.cols[col]
	for count > 0 {
		seg, ok := tree.Tail()
		if !ok {
			seg = newColumnSegment(0, sizeOf(t.types[col]))
			tree.Append(seg)
		} else if seg.full() {
			seg = newColumnSegment(seg.start+row_t(seg.count), sizeOf(t.types[col]))
			tree.Append(seg)
		}

		localStart := seg.count
		n := seg.AppendVector(v, srcOffset, count, heap)
		if n == 0 {
			break
		}
		if heap != nil {
			for i := 0; i < n; i++ {
				positions = append(positions, patchPosition{seg: seg, local: localStart + uint32(i)})
			}
		}

		written += n
		srcOffset += n
		count -= n
	}
	return written, positions
}

// appendToIndexes implements §4.4 AppendToIndexes: on the first index that
// refuses the batch, every index strictly before it is rolled back.
func (t *DataTable) appendToIndexes(chunk *Chunk, rowIDs []row_t) bool {
	failedAt := -1
	for i, idx := range t.indexes {
		if !idx.Append(chunk, rowIDs) {
			failedAt = i
			break
		}
	}
	if failedAt == -1 {
		return true
	}
	for i := 0; i < failedAt; i++ {
		t.indexes[i].Delete(chunk, rowIDs)
	}
	return false
}

// updateIndexes implements §4.4 UpdateIndexes: indexes that do not depend on
// any touched column are skipped entirely.
func (t *DataTable) updateIndexes(columnIDs []int, mock *Chunk, rowIDs []row_t) bool {
	touched := make([]int, 0, len(t.indexes))
	for i, idx := range t.indexes {
		if !idx.IndexIsUpdated(columnIDs) {
			continue
		}
		if !idx.Append(mock, rowIDs) {
			for _, j := range touched {
				t.indexes[j].Delete(mock, rowIDs)
			}
			return false
		}
		touched = append(touched, i)
	}
	return true
}

// --------------------------------------------------------------- Delete ---

// Delete removes a set of rows under tx (§4.6). Row ids may belong to
// different VersionChunks; the core partitions them internally (§9 open
// question 1, resolved: the caller is not required to pre-partition).
func (t *DataTable) Delete(tx *txn.Transaction, rowIDs []row_t) error {
	groups, err := t.groupByChunk(rowIDs)
	if err != nil {
		return err
	}

	for _, g := range groups {
		g.chunk.Lock()

		for _, id := range g.ids {
			offset := uint32(id - g.chunk.start)
			if conflict := t.conflicts(g.chunk, offset, tx); conflict {
				g.chunk.Unlock()
				return &TransactionConflictError{Row: uint64(id)}
			}
		}

		for _, id := range g.ids {
			offset := uint32(id - g.chunk.start)
			pre := g.chunk.captureRow(t.cols, t.types, offset)
			g.chunk.PushTuple(tx, t.arena, true, offset, pre)
			g.chunk.SetDeleted(tx, offset)
		}

		g.chunk.Unlock()
	}
	return nil
}

func (t *DataTable) conflicts(chunk *VersionChunk, offset uint32, tx *txn.Transaction) bool {
	head := chunk.GetVersionInfo(offset)
	if head == txn.NoVersion {
		return false
	}
	node := t.arena.Get(head)
	return node.VersionNumber >= txn.IDStart && node.VersionNumber != tx.ID
}

type chunkGroup struct {
	chunk *VersionChunk
	ids   []row_t
}

func (t *DataTable) groupByChunk(rowIDs []row_t) ([]chunkGroup, error) {
	byChunk := make(map[*VersionChunk][]row_t)
	var order []*VersionChunk
	for _, id := range rowIDs {
		chunk, ok := t.chunks.Lookup(id)
		if !ok {
			return nil, &InternalError{Reason: "row id out of range"}
		}
		if _, seen := byChunk[chunk]; !seen {
			order = append(order, chunk)
		}
		byChunk[chunk] = append(byChunk[chunk], id)
	}

	groups := make([]chunkGroup, len(order))
	for i, c := range order {
		groups[i] = chunkGroup{chunk: c, ids: byChunk[c]}
	}
	return groups, nil
}

// --------------------------------------------------------------- Update ---

// Update overwrites a subset of columns for a set of rows under tx (§4.7).
// All row ids must resolve to the same VersionChunk; a batch spanning more
// than one chunk is a caller bug and raises InternalError.
func (t *DataTable) Update(tx *txn.Transaction, rowIDs []row_t, columnIDs []int, chunk *Chunk) error {
	if len(rowIDs) == 0 {
		return nil
	}

	anchor, ok := t.chunks.Lookup(rowIDs[0])
	if !ok {
		return &InternalError{Reason: "update row id out of range"}
	}
	for _, id := range rowIDs {
		if id < anchor.start || id >= anchor.start+row_t(anchor.count) {
			return &InternalError{Reason: "update batch spans more than one version chunk"}
		}
	}

	anchor.Lock()
	defer anchor.Unlock()

	fetchBase := func(col int) *Vector { return t.fetchBaseVector(anchor, col, rowIDs) }
	if err := t.verifier.VerifyUpdateConstraints(t.catalog.Constraints, columnIDs, len(t.types), chunk, fetchBase); err != nil {
		return err
	}

	// Batch-first conflict pre-check (§4.7 step 4): no undo records are
	// produced before every row id in the batch is known conflict-free.
	for _, id := range rowIDs {
		offset := uint32(id - anchor.start)
		if t.conflicts(anchor, offset, tx) {
			return &TransactionConflictError{Row: uint64(id)}
		}
	}

	mock := t.verifier.buildMockChunk(len(t.types), columnIDs, chunk, fetchBase)
	if !t.updateIndexes(columnIDs, mock, rowIDs) {
		return newConstraintError("PRIMARY KEY or UNIQUE constraint violated: duplicated key", nil)
	}

	for _, id := range rowIDs {
		offset := uint32(id - anchor.start)
		pre := anchor.captureRow(t.cols, t.types, offset)
		anchor.PushTuple(tx, t.arena, false, offset, pre)
	}

	// Update's row set is scattered (not a contiguous run), so column writes
	// go straight through the chunk's real heap rather than a scratch one —
	// there is no further failure point past this, so nothing is lost by
	// skipping the scratch-then-merge indirection used by Append.
	for ci, col := range columnIDs {
		v := chunk.Columns[ci]
		for i, id := range rowIDs {
			offset := uint32(id - anchor.start)
			seg, local := anchor.cols[col].locate(t.cols[col], offset)
			writeColumnValueAt(seg, local, v, i, t.types[col], &anchor.heap)
		}
		t.stats[col].Update(v, 0, v.Count)
	}

	return nil
}

func (t *DataTable) fetchBaseVector(chunk *VersionChunk, col int, rowIDs []row_t) *Vector {
	v := NewVector(t.types[col], len(rowIDs))
	for i, id := range rowIDs {
		offset := uint32(id - chunk.start)
		seg, local := chunk.cols[col].locate(t.cols[col], offset)
		val := chunk.readColumnValue(seg, local, t.types[col])
		if val.Null {
			continue
		}
		switch t.types[col] {
		case Varchar:
			v.SetString(i, val.Str)
		case Double:
			v.SetFloat64(i, val.F64)
		default:
			v.SetInt64(i, val.I64)
		}
	}
	return v
}

// writeColumnValueAt overwrites a single element in place, appending to heap
// for a non-null Varchar value.
func writeColumnValueAt(seg *ColumnSegment, local uint32, v *Vector, i int, t LogicalType, heap *stringHeap) {
	width := int(sizeOf(t))
	dst := seg.ReadAt(local)
	if v.IsNull(i) {
		for b := 0; b < width; b++ {
			dst[b] = 0
		}
		return
	}
	if t == Varchar {
		ref := heap.Put(v.String(i))
		putUint32(dst[0:4], ref.Offset)
		putUint32(dst[4:8], ref.Length)
		return
	}

	tmp := NewVector(t, 1)
	if t == Double {
		tmp.SetFloat64(0, v.Float64(i))
	} else {
		tmp.SetInt64(0, v.Int64(i))
	}
	copy(dst[:width], tmp.Data[:width])
}

// ----------------------------------------------------------- Scan/Fetch ---

// InitializeScan captures a snapshot ceiling (§4.8): root, tail and the
// tail's row count at this instant, so appends after this call stay
// invisible to the returned state even within the tail chunk.
func (t *DataTable) InitializeScan() *TableScanState {
	t.chunks.Lock()
	defer t.chunks.Unlock()

	root, ok := t.chunks.Root()
	if !ok {
		return &TableScanState{done: true}
	}
	tail, _ := t.chunks.Tail()
	return &TableScanState{root: root, cur: root, lastChunk: tail, lastChunkCount: tail.count}
}

// Scan advances state by one VectorSize-bounded block and returns the
// visible rows for tx projected onto columnIDs (§4.8).
func (t *DataTable) Scan(tx *txn.Transaction, state *TableScanState, columnIDs []int) (*Chunk, error) {
	result := t.newResultChunk(columnIDs, VectorSize)
	if state.done || state.cur == nil {
		result.Count = 0
		return result, nil
	}

	for {
		limit := state.cur.count
		if state.cur == state.lastChunk {
			limit = state.lastChunkCount
		}

		state.cur.RLock()
		nextOffset, written := state.cur.Scan(t.arena, tx, t.cols, t.types, columnIDs, state.offset, limit, result)
		state.cur.RUnlock()

		state.offset = nextOffset
		if written > 0 {
			return result, nil
		}

		if state.cur == state.lastChunk {
			state.done = true
			return result, nil
		}
		state.cur = state.cur.next
		state.offset = 0
		if state.cur == nil {
			state.done = true
			return result, nil
		}
	}
}

// InitializeIndexScan starts an index-build scan over the whole table as it
// stands right now, including in-progress insertions (§4.2 CreateIndexScan).
func (t *DataTable) InitializeIndexScan() *IndexScanState {
	t.chunks.Lock()
	defer t.chunks.Unlock()

	root, ok := t.chunks.Root()
	if !ok {
		return &IndexScanState{done: true}
	}
	return &IndexScanState{cur: root}
}

// CreateIndexScan advances state by one chunk's worth of rows.
func (t *DataTable) CreateIndexScan(state *IndexScanState, columnIDs []int) (*Chunk, error) {
	result := t.newResultChunk(columnIDs, StorageChunkSize)
	if state.done || state.cur == nil {
		result.Count = 0
		return result, nil
	}

	state.cur.RLock()
	state.cur.CreateIndexScan(t.cols, t.types, columnIDs, result)
	state.cur.RUnlock()

	state.cur = state.cur.next
	if state.cur == nil {
		state.done = true
	}
	return result, nil
}

// Fetch materializes a set of arbitrary row ids for tx (§4.8): the row-id
// vector is sorted so ids belonging to the same chunk group together,
// minimizing lock churn.
func (t *DataTable) Fetch(tx *txn.Transaction, rowIDs []row_t, columnIDs []int) (*Chunk, error) {
	ordered := append([]row_t(nil), rowIDs...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	result := t.newResultChunk(columnIDs, len(ordered))
	result.Count = 0

	var cur *VersionChunk
	for _, id := range ordered {
		chunk, ok := t.chunks.Lookup(id)
		if !ok {
			continue
		}
		if chunk != cur {
			if cur != nil {
				cur.RUnlock()
			}
			chunk.RLock()
			cur = chunk
		}

		offset := uint32(id - chunk.start)
		single := t.newResultChunk(columnIDs, 1)
		if chunk.RetrieveTupleData(t.arena, tx, t.cols, t.types, columnIDs, offset, single) {
			for outIdx := range columnIDs {
				copyVectorRow(result.Columns[outIdx], result.Count, single.Columns[outIdx], 0)
			}
			result.Count++
		}
	}
	if cur != nil {
		cur.RUnlock()
	}
	return result, nil
}

func (t *DataTable) newResultChunk(columnIDs []int, capacity int) *Chunk {
	cols := make([]*Vector, len(columnIDs))
	for i, id := range columnIDs {
		cols[i] = NewVector(t.types[id], capacity)
	}
	return &Chunk{Columns: cols}
}

func copyVectorRow(dst *Vector, dstPos int, src *Vector, srcPos int) {
	if src.IsNull(srcPos) {
		dst.Nulls.Set(uint32(dstPos))
		return
	}
	if dst.Type == Varchar {
		dst.SetString(dstPos, src.String(srcPos))
		return
	}
	if dst.Type == Double {
		dst.SetFloat64(dstPos, src.Float64(srcPos))
		return
	}
	dst.SetInt64(dstPos, src.Int64(srcPos))
}
