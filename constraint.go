// Copyright (c) Roman Atachiants and contributors. All rights reserved.
// Licensed under the MIT license. See LICENSE file in the project root for details.

package dtable

import "github.com/kelindar/dtable/expr"

// ConstraintKind tags a Constraint (Design Notes item 3: "model as a tagged
// sum {NotNull(col), Check(expr, cols), Unique(keys), ForeignKey} with
// exhaustive match" rather than dynamic dispatch on constraint kinds).
type ConstraintKind uint8

const (
	NotNullConstraint ConstraintKind = iota
	CheckConstraint
	UniqueConstraint
	ForeignKeyConstraint
)

// Constraint is one bound, table-level constraint. Which fields are
// meaningful depends on Kind:
//   - NotNullConstraint: Column
//   - CheckConstraint:   Expr, Columns (referenced catalog column ids)
//   - UniqueConstraint:  Columns (must have exactly one element, §4.3)
//   - ForeignKeyConstraint: none — always rejected (§9 open question 2:
//     rejected consistently on both Append and Update)
type Constraint struct {
	Kind    ConstraintKind
	Column  int
	Expr    expr.Expression
	Columns []int
}

// ConstraintVerifier evaluates a catalog entry's bound constraints against
// an input chunk on Append (full row) or Update (partial row), per §4.3.
type ConstraintVerifier struct {
	executor expr.ExpressionExecutor
}

// NewConstraintVerifier builds a verifier bound to the given expression
// evaluator (FuncExecutor in tests, a real evaluator in a host that wires
// one in).
func NewConstraintVerifier(executor expr.ExpressionExecutor) *ConstraintVerifier {
	return &ConstraintVerifier{executor: executor}
}

// VerifyAppendConstraints checks every bound constraint against a full-row
// chunk already laid out in catalog column order.
func (cv *ConstraintVerifier) VerifyAppendConstraints(constraints []Constraint, chunk *Chunk) error {
	for _, c := range constraints {
		switch c.Kind {
		case NotNullConstraint:
			if err := cv.checkNotNull(c, chunk.Columns[c.Column]); err != nil {
				return err
			}
		case CheckConstraint:
			if err := cv.checkExpression(c, chunk); err != nil {
				return err
			}
		case UniqueConstraint:
			if err := cv.checkUnique(c, chunk); err != nil {
				return err
			}
		case ForeignKeyConstraint:
			return newConstraintError("FOREIGN KEY", &NotImplementedError{Reason: "foreign key constraints are not supported"})
		}
	}
	return nil
}

// VerifyUpdateConstraints checks every bound constraint that is relevant to
// the touched column_ids. CHECK constraints referencing columns outside the
// update set fetch those columns from the base row via fetchBase, resolving
// §9 open question 3 instead of raising NotImplementedError for that case.
func (cv *ConstraintVerifier) VerifyUpdateConstraints(constraints []Constraint, columnIDs []int, catalogSize int, chunk *Chunk, fetchBase func(col int) *Vector) error {
	touched := make(map[int]bool, len(columnIDs))
	for _, c := range columnIDs {
		touched[c] = true
	}

	for _, c := range constraints {
		switch c.Kind {
		case NotNullConstraint:
			if !touched[c.Column] {
				continue
			}
			if err := cv.checkNotNull(c, chunk.Columns[indexOf(columnIDs, c.Column)]); err != nil {
				return err
			}
		case CheckConstraint:
			anyTouched := false
			for _, rc := range c.Columns {
				if touched[rc] {
					anyTouched = true
				}
			}
			if !anyTouched {
				continue
			}
			mock := cv.buildMockChunk(catalogSize, columnIDs, chunk, fetchBase)
			if err := cv.checkExpression(c, mock); err != nil {
				return err
			}
		case UniqueConstraint:
			anyTouched := false
			for _, rc := range c.Columns {
				if touched[rc] {
					anyTouched = true
				}
			}
			if !anyTouched {
				continue
			}
			mock := cv.buildMockChunk(catalogSize, columnIDs, chunk, fetchBase)
			if err := cv.checkUnique(Constraint{Columns: c.Columns}, mock); err != nil {
				return err
			}
		case ForeignKeyConstraint:
			return newConstraintError("FOREIGN KEY", &NotImplementedError{Reason: "foreign key constraints are not supported"})
		}
	}
	return nil
}

// buildMockChunk places the update chunk's vectors at their catalog
// positions, fetching any other referenced (un-updated) column from the
// base row via fetchBase (§GLOSSARY, "mock chunk").
func (cv *ConstraintVerifier) buildMockChunk(catalogSize int, columnIDs []int, chunk *Chunk, fetchBase func(col int) *Vector) *Chunk {
	mock := &Chunk{Columns: make([]*Vector, catalogSize), Count: chunk.Count, Sel: chunk.Sel}
	for i, colID := range columnIDs {
		mock.Columns[colID] = chunk.Columns[i]
	}
	for col := 0; col < catalogSize; col++ {
		if mock.Columns[col] == nil {
			mock.Columns[col] = fetchBase(col)
		}
	}
	return mock
}

func (cv *ConstraintVerifier) checkNotNull(c Constraint, v *Vector) error {
	if HasNull(v, 0, v.Count) {
		return newConstraintError("NOT NULL", nil)
	}
	return nil
}

func (cv *ConstraintVerifier) checkExpression(c Constraint, chunk *Chunk) error {
	result := make([]int8, chunk.Count)
	rows := chunkRowSet{chunk: chunk}
	if err := cv.executor.ExecuteExpression(c.Expr, rows, result); err != nil {
		return newConstraintError("CHECK", err)
	}
	for i := 0; i < chunk.Count; i++ {
		if result[i] == 0 && !rowIsNullAcrossReferenced(chunk, c.Columns, i) {
			return newConstraintError("CHECK", nil)
		}
	}
	return nil
}

// rowIsNullAcrossReferenced reports whether every referenced column is null
// at row i — such rows are exempt from CHECK per standard SQL semantics
// (unknown, not false).
func rowIsNullAcrossReferenced(chunk *Chunk, cols []int, i int) bool {
	for _, c := range cols {
		if !chunk.Columns[c].IsNull(i) {
			return false
		}
	}
	return len(cols) > 0
}

func (cv *ConstraintVerifier) checkUnique(c Constraint, chunk *Chunk) error {
	if len(c.Columns) != 1 {
		return newConstraintError("UNIQUE", &NotImplementedError{Reason: "multi-column UNIQUE is not supported"})
	}
	v := chunk.Columns[c.Columns[0]]
	if !Unique(v, chunk.Count) {
		return newConstraintError("UNIQUE", nil)
	}
	return nil
}

func indexOf(ids []int, id int) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
