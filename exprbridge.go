// Copyright (c) Roman Atachiants and contributors. All rights reserved.
// Licensed under the MIT license. See LICENSE file in the project root for details.

package dtable

import "github.com/kelindar/dtable/expr"

// chunkRowSet adapts a Chunk laid out in catalog column order into an
// expr.RowSet, boxing each row on demand so the evaluator contract stays
// independent of this package's concrete types.
type chunkRowSet struct {
	chunk *Chunk
}

func (rs chunkRowSet) Len() int { return rs.chunk.Count }

func (rs chunkRowSet) Row(i int) []any {
	row := make([]any, len(rs.chunk.Columns))
	for c, v := range rs.chunk.Columns {
		if v == nil || v.IsNull(i) {
			row[c] = nil
			continue
		}
		switch v.Type {
		case Varchar:
			row[c] = v.String(i)
		case Double:
			row[c] = v.Float64(i)
		default:
			row[c] = v.Int64(i)
		}
	}
	return row
}

var _ expr.RowSet = chunkRowSet{}
