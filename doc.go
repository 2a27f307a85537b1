// Copyright (c) Roman Atachiants and contributors. All rights reserved.
// Licensed under the MIT license. See LICENSE file in the project root for details.

// Package dtable implements the core of a columnar, transactional table
// storage engine: per-column append-only segments grouped into fixed-size
// row-wise version chunks, constraint verification, secondary index
// coordination and snapshot-isolated scans under multi-version concurrency
// control.
package dtable
