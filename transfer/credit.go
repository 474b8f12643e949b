// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package transfer defines the data model of the section transfer protocol:
// credits, debits, signed transfers, agreement proofs and the replica event
// log they are committed through.
package transfer

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/at2net/at2/at2"
)

// Credit money entering an account. For a transfer the id is derived from the
// debit id, tying the pair together; for a genesis or simulated credit it is
// picked freely but must stay unique.
type Credit struct {
	ID     at2.Bytes32
	To     at2.PublicKey
	Amount at2.Token
}

// Hash returns the hash replicas sign to endorse the credit.
func (c *Credit) Hash() at2.Bytes32 {
	data, _ := rlp.EncodeToBytes(c)
	return at2.Blake2b(data)
}

// String implements stringer.
func (c *Credit) String() string {
	return fmt.Sprintf("credit{id: %v, to: %v, amount: %v}", c.ID.AbbrevString(), c.To.AbbrevString(), c.Amount)
}

// Debit money leaving an account, at the account's next sequence number.
// A debit never travels alone; it is one half of a Transfer.
type Debit struct {
	From   at2.PublicKey
	Seq    uint64
	Amount at2.Token
}

// ID returns the debit id, unique per (account, sequence number).
func (d *Debit) ID() at2.Bytes32 {
	data, _ := rlp.EncodeToBytes(d.From.Bytes())
	seq, _ := rlp.EncodeToBytes(d.Seq)
	return at2.Blake2b(data, seq)
}

// String implements stringer.
func (d *Debit) String() string {
	return fmt.Sprintf("debit{from: %v, seq: %d, amount: %v}", d.From.AbbrevString(), d.Seq, d.Amount)
}
