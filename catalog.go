// Copyright (c) Roman Atachiants and contributors. All rights reserved.
// Licensed under the MIT license. See LICENSE file in the project root for details.

package dtable

// TableCatalogEntry is the minimal Catalog contract the core consumes (§6):
// the ordered column list and the bound constraints to verify on every
// write.
type TableCatalogEntry struct {
	Name        string
	Columns     []ColumnDefinition
	Constraints []Constraint
}

// GetTypes returns the ordered logical types of every catalog column.
func (e *TableCatalogEntry) GetTypes() []LogicalType {
	types := make([]LogicalType, len(e.Columns))
	for i, c := range e.Columns {
		types[i] = c.Type
	}
	return types
}
