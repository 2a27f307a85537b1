// Copyright (c) Roman Atachiants and contributors. All rights reserved.
// Licensed under the MIT license. See LICENSE file in the project root for details.

package dtable

import (
	"encoding/binary"
	"math"
	"sort"
	"sync"

	"github.com/zeebo/xxh3"
)

// Index is the secondary-index capability the core consumes (§3): Append
// reports whether the batch could be indexed without violating the index's
// own invariant (false on a duplicate key for a unique index); Delete
// removes entries; IndexIsUpdated reports whether a column-id set touches
// any column this index depends on.
type Index interface {
	Append(chunk *Chunk, rowIDs []row_t) bool
	Delete(chunk *Chunk, rowIDs []row_t)
	IndexIsUpdated(columnIDs []int) bool
}

// keyOf hashes the value at position i of v into a 64-bit index key. For
// fixed-width types the logical type tag is folded into the hashed bytes, so
// e.g. an Integer and a BigInt with the same value hash differently; Varchar
// values are hashed as the bare string.
func keyOf(v *Vector, i int) (key uint64, isNull bool) {
	if v.IsNull(i) {
		return 0, true
	}
	if v.Type == Varchar {
		return xxh3.HashString(v.String(i)), false
	}

	var buf [9]byte
	if v.Type == Double {
		binary.LittleEndian.PutUint64(buf[:8], math.Float64bits(v.Float64(i)))
	} else {
		binary.LittleEndian.PutUint64(buf[:8], uint64(v.Int64(i)))
	}
	buf[8] = byte(v.Type)
	return xxh3.Hash(buf[:]), false
}

// ---------------------------------------------------------------------------

// UniqueIndex enforces single-column uniqueness by hashing the indexed
// column's value with xxh3, one column feeding one index. Append is
// atomic: either every row in the batch is admitted, or none are and the
// index is left exactly as it was.
type UniqueIndex struct {
	mu     sync.Mutex
	column int
	seen   map[uint64]row_t
}

// NewUniqueIndex creates a unique index over the given catalog column.
func NewUniqueIndex(column int) *UniqueIndex {
	return &UniqueIndex{column: column, seen: make(map[uint64]row_t, 64)}
}

func (x *UniqueIndex) Append(chunk *Chunk, rowIDs []row_t) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	v := chunk.Columns[x.column]
	sel := chunk.selected()

	staged := make(map[uint64]row_t, len(sel))
	for pos, s := range sel {
		key, isNull := keyOf(v, int(s))
		if isNull {
			continue
		}
		if _, exists := x.seen[key]; exists {
			return false
		}
		if _, dup := staged[key]; dup {
			return false
		}
		staged[key] = rowIDs[pos]
	}

	for key, row := range staged {
		x.seen[key] = row
	}
	return true
}

func (x *UniqueIndex) Delete(chunk *Chunk, rowIDs []row_t) {
	x.mu.Lock()
	defer x.mu.Unlock()

	v := chunk.Columns[x.column]
	for pos, s := range chunk.selected() {
		key, isNull := keyOf(v, int(s))
		if isNull {
			continue
		}
		if x.seen[key] == rowIDs[pos] {
			delete(x.seen, key)
		}
	}
}

func (x *UniqueIndex) IndexIsUpdated(columnIDs []int) bool {
	for _, c := range columnIDs {
		if c == x.column {
			return true
		}
	}
	return false
}

var _ Index = (*UniqueIndex)(nil)

// ---------------------------------------------------------------------------

type valueEntry struct {
	key uint64
	row row_t
}

// ValueIndex is a non-unique secondary index over a sorted key list,
// supporting index-build scans (CreateIndexScan consumers walk it in key
// order). Unlike UniqueIndex it never rejects an Append.
type ValueIndex struct {
	mu      sync.Mutex
	column  int
	entries []valueEntry
}

// NewValueIndex creates a non-unique secondary index over the given column.
func NewValueIndex(column int) *ValueIndex {
	return &ValueIndex{column: column}
}

func (x *ValueIndex) Append(chunk *Chunk, rowIDs []row_t) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	v := chunk.Columns[x.column]
	for pos, s := range chunk.selected() {
		key, isNull := keyOf(v, int(s))
		if isNull {
			continue
		}
		x.insert(valueEntry{key: key, row: rowIDs[pos]})
	}
	return true
}

func (x *ValueIndex) insert(e valueEntry) {
	i := sort.Search(len(x.entries), func(i int) bool { return x.entries[i].key >= e.key })
	x.entries = append(x.entries, valueEntry{})
	copy(x.entries[i+1:], x.entries[i:])
	x.entries[i] = e
}

func (x *ValueIndex) Delete(chunk *Chunk, rowIDs []row_t) {
	x.mu.Lock()
	defer x.mu.Unlock()

	dead := make(map[row_t]struct{}, len(rowIDs))
	for _, r := range rowIDs {
		dead[r] = struct{}{}
	}

	kept := x.entries[:0]
	for _, e := range x.entries {
		if _, gone := dead[e.row]; !gone {
			kept = append(kept, e)
		}
	}
	x.entries = kept
}

func (x *ValueIndex) IndexIsUpdated(columnIDs []int) bool {
	for _, c := range columnIDs {
		if c == x.column {
			return true
		}
	}
	return false
}

// Rows returns every row id currently indexed, in key order.
func (x *ValueIndex) Rows() []row_t {
	x.mu.Lock()
	defer x.mu.Unlock()

	out := make([]row_t, len(x.entries))
	for i, e := range x.entries {
		out[i] = e.row
	}
	return out
}

var _ Index = (*ValueIndex)(nil)
