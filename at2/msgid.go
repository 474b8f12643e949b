// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package at2

import "crypto/rand"

// MsgID the id of one network message. Minted randomly by the sender rather
// than derived from content, so retransmissions of the same payload remain
// distinguishable.
type MsgID Bytes32

// NewMsgID mints a random message id.
func NewMsgID() (id MsgID, err error) {
	_, err = rand.Read(id[:])
	return
}

// String implements stringer
func (m MsgID) String() string {
	return Bytes32(m).String()
}

// AbbrevString returns abbrev string presentation.
func (m MsgID) AbbrevString() string {
	return Bytes32(m).AbbrevString()
}

// IsZero returns if MsgID has all zero bytes.
func (m MsgID) IsZero() bool {
	return m == MsgID{}
}
