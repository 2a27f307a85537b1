// Copyright (c) Roman Atachiants and contributors. All rights reserved.
// Licensed under the MIT license. See LICENSE file in the project root for details.

package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArenaPushGet(t *testing.T) {
	a := NewArena()
	ref := a.Push(VersionNode{VersionNumber: 42, IsDelete: false, Prev: NoVersion})
	assert.Equal(t, VersionRef(0), ref)

	node := a.Get(ref)
	assert.Equal(t, ID(42), node.VersionNumber)
	assert.False(t, node.IsDelete)
	assert.Equal(t, NoVersion, node.Prev)
}

func TestArenaRefsAreStable(t *testing.T) {
	a := NewArena()
	first := a.Push(VersionNode{VersionNumber: 1})
	for i := 0; i < 100; i++ {
		a.Push(VersionNode{VersionNumber: ID(i + 2)})
	}

	assert.Equal(t, ID(1), a.Get(first).VersionNumber)
}

func TestArenaCommitRewritesVersionNumber(t *testing.T) {
	a := NewArena()
	ref := a.Push(VersionNode{VersionNumber: IDStart + 7})
	a.Commit(ref, 99)

	assert.Equal(t, ID(99), a.Get(ref).VersionNumber)
}

func TestIsVisible(t *testing.T) {
	cases := []struct {
		name          string
		versionNumber ID
		txnID         ID
		startTime     ID
		want          bool
	}{
		{"own write is always visible", IDStart + 5, IDStart + 5, 10, true},
		{"committed before snapshot is visible", 5, IDStart + 1, 10, true},
		{"committed after snapshot is not visible", 11, IDStart + 1, 10, false},
		{"another transaction's uncommitted write is not visible", IDStart + 9, IDStart + 1, 10, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, IsVisible(c.versionNumber, c.txnID, c.startTime))
		})
	}
}

func TestNoVersionIsNegativeOne(t *testing.T) {
	assert.EqualValues(t, -1, NoVersion)
}
