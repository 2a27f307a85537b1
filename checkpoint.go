// Copyright (c) Roman Atachiants and contributors. All rights reserved.
// Licensed under the MIT license. See LICENSE file in the project root for details.

package dtable

import (
	"io"
	"math"

	"github.com/kelindar/iostream"
	"github.com/klauspost/compress/s2"

	"github.com/kelindar/dtable/txn"
)

// WriteTo encodes every row currently visible to tx into w: a column-type
// header followed by one row block per scanned Chunk, s2-compressed through
// an iostream.Writer. This is a bonus, additive capability — the
// transactional read/write paths in Append/Update/Delete/Scan never call
// it, and a table that is never checkpointed behaves identically.
func (t *DataTable) WriteTo(dst io.Writer, tx *txn.Transaction) (n int64, err error) {
	w := iostream.NewWriter(s2.NewWriter(dst))

	if err = w.WriteUvarint(uint64(len(t.types))); err != nil {
		return w.Offset(), err
	}
	for _, typ := range t.types {
		if err = w.WriteString(typ.String()); err != nil {
			return w.Offset(), err
		}
	}

	state := t.InitializeScan()
	columnIDs := make([]int, len(t.types))
	for i := range columnIDs {
		columnIDs[i] = i
	}

	for {
		var chunk *Chunk
		chunk, err = t.Scan(tx, state, columnIDs)
		if err != nil {
			return w.Offset(), err
		}
		if chunk.Count == 0 {
			break
		}

		if err = w.WriteUvarint(uint64(chunk.Count)); err != nil {
			return w.Offset(), err
		}
		for _, v := range chunk.Columns {
			if err = writeVectorSection(w, v, chunk.Count); err != nil {
				return w.Offset(), err
			}
		}
	}

	if err = w.WriteUvarint(0); err != nil { // sentinel: no more row blocks
		return w.Offset(), err
	}
	err = w.Flush()
	return w.Offset(), err
}

func writeVectorSection(w *iostream.Writer, v *Vector, count int) error {
	for i := 0; i < count; i++ {
		if v.IsNull(i) {
			if _, err := w.Write(nullFlag[:]); err != nil {
				return err
			}
			continue
		}
		if _, err := w.Write(valueFlag[:]); err != nil {
			return err
		}
		if v.Type == Varchar {
			if err := w.WriteString(v.String(i)); err != nil {
				return err
			}
			continue
		}
		if v.Type == Double {
			if err := w.WriteInt64(int64(math.Float64bits(v.Float64(i)))); err != nil {
				return err
			}
			continue
		}
		if err := w.WriteInt64(v.Int64(i)); err != nil {
			return err
		}
	}
	return nil
}

var (
	nullFlag  = [1]byte{1}
	valueFlag = [1]byte{0}
)

// ReadFrom decodes a stream produced by WriteTo, calling fn once per row
// block with a Chunk laid out in catalog column order, ready to feed back
// into Append. It does not reconstruct a DataTable's internal segment
// layout — a checkpoint is a cold logical snapshot, not a binary image of
// the live structures.
func ReadFrom(src io.Reader, types []LogicalType, fn func(*Chunk) error) error {
	r := iostream.NewReader(s2.NewReader(src))

	n, err := r.ReadUvarint()
	if err != nil {
		return err
	}
	if int(n) != len(types) {
		return &CatalogError{Reason: "checkpoint column count does not match catalog"}
	}
	for range types {
		if _, err := r.ReadString(); err != nil {
			return err
		}
	}

	for {
		count, err := r.ReadUvarint()
		if err != nil {
			return err
		}
		if count == 0 {
			return nil
		}

		chunk := &Chunk{Columns: make([]*Vector, len(types)), Count: int(count)}
		for i, typ := range types {
			v := NewVector(typ, int(count))
			if err := readVectorSection(r, v, int(count)); err != nil {
				return err
			}
			chunk.Columns[i] = v
		}
		if err := fn(chunk); err != nil {
			return err
		}
	}
}

func readVectorSection(r *iostream.Reader, v *Vector, count int) error {
	var flag [1]byte
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(r, flag[:]); err != nil {
			return err
		}
		if flag[0] == 1 {
			continue
		}
		if v.Type == Varchar {
			s, err := r.ReadString()
			if err != nil {
				return err
			}
			v.SetString(i, s)
			continue
		}
		n, err := r.ReadInt64()
		if err != nil {
			return err
		}
		if v.Type == Double {
			v.SetFloat64(i, math.Float64frombits(uint64(n)))
			continue
		}
		v.SetInt64(i, n)
	}
	return nil
}
