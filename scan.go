// Copyright (c) Roman Atachiants and contributors. All rights reserved.
// Licensed under the MIT license. See LICENSE file in the project root for details.

package dtable

// TableScanState is the iterator state for a base-table scan (§4.8,
// ScanCursor): the snapshot's root/tail/last_chunk_count captured at
// InitializeScan time, and the cursor's current position within it.
type TableScanState struct {
	root           *VersionChunk
	lastChunk      *VersionChunk
	lastChunkCount uint32

	cur    *VersionChunk
	offset uint32
	done   bool
}

// IndexScanState is the iterator state for an index-build scan (§4.2
// CreateIndexScan): unlike TableScanState it has no snapshot ceiling, since
// it must observe committed and in-progress insertions alike.
type IndexScanState struct {
	cur  *VersionChunk
	done bool
}
