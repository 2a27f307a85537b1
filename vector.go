// Copyright (c) Roman Atachiants and contributors. All rights reserved.
// Licensed under the MIT license. See LICENSE file in the project root for details.

package dtable

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/kelindar/bitmap"
)

// Vector is a columnar batch of values of a single LogicalType, together with
// a null bitmap. Fixed-width values are stored as raw little-endian bytes;
// Varchar values are stored in Strings, indexed in lockstep with the nulls
// bitmap (Data is unused for Varchar vectors).
type Vector struct {
	Type    LogicalType
	Data    []byte        // fixed-width payloads, Count*sizeOf(Type) bytes
	Strings []string      // used only when Type == Varchar
	Nulls   bitmap.Bitmap // bit set => value at that position is NULL
	Count   int
}

// NewVector allocates a vector of the given type and length, all-null.
func NewVector(t LogicalType, count int) *Vector {
	v := &Vector{Type: t, Count: count, Nulls: make(bitmap.Bitmap, 0, 4)}
	if t == Varchar {
		v.Strings = make([]string, count)
	} else {
		v.Data = make([]byte, count*int(sizeOf(t)))
	}
	for i := 0; i < count; i++ {
		v.Nulls.Set(uint32(i))
	}
	return v
}

// IsNull reports whether the value at position i is null.
func (v *Vector) IsNull(i int) bool {
	return v.Nulls.Contains(uint32(i))
}

// SetInt64 stores a non-null fixed-width integer value at position i,
// truncating to the vector's type width.
func (v *Vector) SetInt64(i int, value int64) {
	v.Nulls.Remove(uint32(i))
	width := int(sizeOf(v.Type))
	off := i * width
	switch width {
	case 1:
		v.Data[off] = byte(value)
	case 2:
		binary.LittleEndian.PutUint16(v.Data[off:], uint16(value))
	case 4:
		binary.LittleEndian.PutUint32(v.Data[off:], uint32(value))
	case 8:
		binary.LittleEndian.PutUint64(v.Data[off:], uint64(value))
	}
}

// Int64 reads a fixed-width integer value at position i. Type must be an
// integer logical type (not Double — use Float64 for that).
func (v *Vector) Int64(i int) int64 {
	width := int(sizeOf(v.Type))
	off := i * width
	switch width {
	case 1:
		return int64(int8(v.Data[off]))
	case 2:
		return int64(int16(binary.LittleEndian.Uint16(v.Data[off:])))
	case 4:
		return int64(int32(binary.LittleEndian.Uint32(v.Data[off:])))
	case 8:
		return int64(binary.LittleEndian.Uint64(v.Data[off:]))
	}
	return 0
}

// SetFloat64 stores a non-null floating-point value at position i (Type must
// be Double). Double occupies a 4-byte slot, so the value is narrowed to
// float32 on the way in; SetFloat64/Float64 round-trip consistently with
// each other, same as SetInt64/Int64 do for the integer types.
func (v *Vector) SetFloat64(i int, value float64) {
	v.Nulls.Remove(uint32(i))
	off := i * int(sizeOf(v.Type))
	binary.LittleEndian.PutUint32(v.Data[off:], math.Float32bits(float32(value)))
}

// Float64 reads a floating-point value at position i (Type must be Double).
func (v *Vector) Float64(i int) float64 {
	off := i * int(sizeOf(v.Type))
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(v.Data[off:])))
}

// SetString stores a non-null string value at position i (Type must be Varchar).
func (v *Vector) SetString(i int, s string) {
	v.Nulls.Remove(uint32(i))
	v.Strings[i] = s
}

// String reads a string value at position i.
func (v *Vector) String(i int) string {
	return v.Strings[i]
}

// Chunk is a columnar batch of named vectors sharing one logical row count,
// with an optional selection vector restricting which positions are live.
// This is what Append, Update and the expression evaluator exchange with the
// core (the "mock chunk" of §4.3/§4.4 is just a Chunk whose vectors are
// placed at catalog positions).
type Chunk struct {
	Columns []*Vector
	Count   int
	Sel     []uint32 // optional selection vector into [0, Count)
}

// selected returns the live row positions: the selection vector if set,
// otherwise every position in [0, Count).
func (c *Chunk) selected() []uint32 {
	if c.Sel != nil {
		return c.Sel
	}
	sel := make([]uint32, c.Count)
	for i := range sel {
		sel[i] = uint32(i)
	}
	return sel
}

// --------------------------- Vector primitives (§6) ----------------------------
//
// These mirror the "Vector primitives" consumed interface: CopyToStorage,
// HasNull, Unique, GenerateSequence, Sort, Exec, Reference. The executor
// that would normally own these lives outside this repository's scope; they
// are implemented here only to the extent the storage core itself needs them.

// CopyToStorage bulk-copies count values from v, starting at srcOffset, into
// dst starting at dstOffset, null-aware: null positions are materialized as
// zeroed sentinel bytes by this primitive, matching the "vector copy
// primitive" contract of §4.1. Returns the number of bytes written.
//
// Varchar values do not live in dst directly: each non-null string is
// appended to heap and a stringRef{offset,length} is written into dst in its
// place, mirroring how a fixed-width column stores its value inline. heap is
// ignored for every other type and may be nil.
func CopyToStorage(dst []byte, dstOffset int, v *Vector, srcOffset, count int, heap *stringHeap) int {
	width := int(sizeOf(v.Type))
	n := count * width
	if dstOffset+n > len(dst) {
		n = len(dst) - dstOffset
		count = n / width
	}

	if v.Type == Varchar {
		for i := 0; i < count; i++ {
			off := dstOffset + i*width
			if v.IsNull(srcOffset + i) {
				for b := 0; b < width; b++ {
					dst[off+b] = 0
				}
				continue
			}
			ref := heap.Put(v.Strings[srcOffset+i])
			putUint32(dst[off:off+4], ref.Offset)
			putUint32(dst[off+4:off+8], ref.Length)
		}
		return n
	}

	copy(dst[dstOffset:dstOffset+n], v.Data[srcOffset*width:srcOffset*width+n])
	for i := 0; i < count; i++ {
		if v.IsNull(srcOffset + i) {
			off := dstOffset + i*width
			for b := 0; b < width; b++ {
				dst[off+b] = 0
			}
		}
	}
	return n
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// HasNull reports whether any of the count values starting at offset are null.
func HasNull(v *Vector, offset, count int) bool {
	for i := 0; i < count; i++ {
		if v.IsNull(offset + i) {
			return true
		}
	}
	return false
}

// Unique reports whether the non-null values among the first count values of
// v are pairwise distinct (nulls never count as duplicates). Used by
// ConstraintVerifier for single-column UNIQUE.
func Unique(v *Vector, count int) bool {
	switch v.Type {
	case Varchar:
		seen := make(map[string]struct{}, count)
		for i := 0; i < count; i++ {
			if v.IsNull(i) {
				continue
			}
			if _, ok := seen[v.Strings[i]]; ok {
				return false
			}
			seen[v.Strings[i]] = struct{}{}
		}
	case Double:
		seen := make(map[float64]struct{}, count)
		for i := 0; i < count; i++ {
			if v.IsNull(i) {
				continue
			}
			if _, ok := seen[v.Float64(i)]; ok {
				return false
			}
			seen[v.Float64(i)] = struct{}{}
		}
	default:
		seen := make(map[int64]struct{}, count)
		for i := 0; i < count; i++ {
			if v.IsNull(i) {
				continue
			}
			if _, ok := seen[v.Int64(i)]; ok {
				return false
			}
			seen[v.Int64(i)] = struct{}{}
		}
	}
	return true
}

// GenerateSequence produces a dense row id vector [start, start+count).
func GenerateSequence(start row_t, count int) []row_t {
	out := make([]row_t, count)
	for i := range out {
		out[i] = start + row_t(i)
	}
	return out
}

// Sort sorts a row id vector in place, grouping row ids that belong to the
// same chunk together (used by Fetch to minimize lock churn, §4.8).
func Sort(rowIDs []row_t) {
	sort.Slice(rowIDs, func(i, j int) bool { return rowIDs[i] < rowIDs[j] })
}

// Exec iterates the selection vector sel, calling fn with the
// (positional index, row id) pair — positional index i is the index within
// sel, k is the caller-supplied base row id plus sel[i].
func Exec(base row_t, sel []uint32, fn func(i int, k row_t)) {
	for i, s := range sel {
		fn(i, base+row_t(s))
	}
}

// Reference returns a read-only view of v restricted to [offset, offset+count),
// sharing the underlying value storage (no copy); the null bitmap is rebuilt
// for the restricted range.
func Reference(v *Vector, offset, count int) *Vector {
	width := int(sizeOf(v.Type))
	ref := &Vector{Type: v.Type, Count: count}
	if v.Type == Varchar {
		ref.Strings = v.Strings[offset : offset+count]
	} else {
		ref.Data = v.Data[offset*width : (offset+count)*width]
	}
	ref.Nulls = make(bitmap.Bitmap, 0, 4)
	for i := 0; i < count; i++ {
		if v.IsNull(offset + i) {
			ref.Nulls.Set(uint32(i))
		}
	}
	return ref
}
