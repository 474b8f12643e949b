// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package at2

import (
	"fmt"
	"strings"
)

// Prefix a section's slice of the xor address space: the leading BitCount bits of Name.
type Prefix struct {
	Name     NodeID
	BitCount uint8
}

// RootPrefix the prefix covering the whole address space, held by the genesis section.
func RootPrefix() Prefix {
	return Prefix{}
}

// Matches returns whether name falls under this prefix.
func (p Prefix) Matches(name NodeID) bool {
	bits := int(p.BitCount)
	for i := 0; i < bits/8; i++ {
		if p.Name[i] != name[i] {
			return false
		}
	}
	if rem := bits % 8; rem > 0 {
		mask := byte(0xff << (8 - rem))
		if p.Name[bits/8]&mask != name[bits/8]&mask {
			return false
		}
	}
	return true
}

// Extend returns the child prefix obtained by appending one bit.
// On a section split the two resulting sections take Extend(0) and Extend(1).
func (p Prefix) Extend(bit uint8) Prefix {
	child := p
	if bit != 0 {
		child.Name[p.BitCount/8] |= 1 << (7 - p.BitCount%8)
	} else {
		child.Name[p.BitCount/8] &^= 1 << (7 - p.BitCount%8)
	}
	child.BitCount++
	return child
}

// String implements stringer, the bit string form e.g. "10110".
func (p Prefix) String() string {
	var sb strings.Builder
	for i := uint8(0); i < p.BitCount; i++ {
		if p.Name[i/8]&(1<<(7-i%8)) != 0 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	if sb.Len() == 0 {
		return "(root)"
	}
	return sb.String()
}

// Elders describes a section's elder committee at a point in time.
type Elders struct {
	Prefix Prefix
	// Key the section public key the committee signs under.
	Key PublicKey
	// Names the node names of the committee members.
	Names []NodeID
}

// String implements stringer.
func (e *Elders) String() string {
	return fmt.Sprintf("elders{prefix: %v, key: %v, n: %d}", e.Prefix, e.Key.AbbrevString(), len(e.Names))
}
