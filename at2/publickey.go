// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package at2

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
)

const (
	// PublicKeyLength length of a BLS public key in bytes.
	PublicKeyLength = 128
)

// PublicKey a BLS public key identifying a wallet; the unit of ownership.
// Section keys and wallet keys share this representation.
type PublicKey [PublicKeyLength]byte

// String implements the stringer interface
func (p PublicKey) String() string {
	return "0x" + hex.EncodeToString(p[:])
}

// AbbrevString returns abbrev string presentation.
func (p PublicKey) AbbrevString() string {
	return fmt.Sprintf("0x%x…%x", p[:4], p[PublicKeyLength-4:])
}

// Bytes returns byte slice form of the key.
func (p PublicKey) Bytes() []byte {
	return p[:]
}

// IsZero returns if the key has all zero bytes.
func (p PublicKey) IsZero() bool {
	return p == PublicKey{}
}

// Name returns the key's name in the xor address space,
// used to decide the section owning the wallet.
func (p PublicKey) Name() NodeID {
	return NodeID(Blake2b(p[:]))
}

// BytesToPublicKey converts a byte slice into a PublicKey.
func BytesToPublicKey(b []byte) (PublicKey, error) {
	if len(b) != PublicKeyLength {
		return PublicKey{}, errors.New("invalid public key length")
	}
	var p PublicKey
	copy(p[:], b)
	return p, nil
}

// SortPublicKeys sorts keys in place by their canonical byte representation.
func SortPublicKeys(keys []PublicKey) {
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i][:], keys[j][:]) < 0
	})
}
