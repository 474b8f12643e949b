// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package at2

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
)

// NodeID name of a node in the network's xor address space.
type NodeID [32]byte

// String implements stringer
func (n NodeID) String() string {
	return "0x" + hex.EncodeToString(n[:])
}

// AbbrevString returns abbrev string presentation.
func (n NodeID) AbbrevString() string {
	return fmt.Sprintf("0x%x…%x", n[:4], n[28:])
}

// Bytes returns byte slice form of NodeID.
func (n NodeID) Bytes() []byte {
	return n[:]
}

// BytesToNodeID converts bytes slice into NodeID (cropped/extended from the left).
func BytesToNodeID(b []byte) NodeID {
	return NodeID(BytesToBytes32(b))
}

// SortNodeIDs sorts ids in place by their canonical byte representation.
// Used wherever iteration order affects quorum counting or replay determinism.
func SortNodeIDs(ids []NodeID) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}
