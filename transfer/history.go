// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package transfer

import (
	"github.com/pkg/errors"

	"github.com/at2net/at2/at2"
)

// HistoryEntry one agreement proof in a wallet's history.
// Exactly one of the fields is set.
type HistoryEntry struct {
	Debit  *TransferAgreementProof `rlp:"nil"`
	Credit *CreditAgreementProof   `rlp:"nil"`
}

// WalletHistory the ordered sequence of agreement proofs touching one
// account. Balance is a pure function of the sequence; there is no other
// account state.
type WalletHistory struct {
	Entries []HistoryEntry
}

// Len returns the history version, the number of proofs applied.
func (h *WalletHistory) Len() int {
	return len(h.Entries)
}

// NextSeq returns the sequence number the account's next debit must carry.
func (h *WalletHistory) NextSeq() uint64 {
	var n uint64
	for _, e := range h.Entries {
		if e.Debit != nil {
			n++
		}
	}
	return n
}

// Balance returns sum(credits) - sum(debits) over the history.
func (h *WalletHistory) Balance() (at2.Token, error) {
	var balance at2.Token
	var err error
	for _, e := range h.Entries {
		if e.Credit != nil {
			balance, err = balance.Add(e.Credit.Credit.Amount)
		} else {
			balance, err = balance.Sub(e.Debit.Transfer.Transfer.Debit.Amount)
		}
		if err != nil {
			return 0, errors.Wrap(err, "wallet history does not balance")
		}
	}
	return balance, nil
}

// ContainsCredit reports whether a credit with the given id was applied.
func (h *WalletHistory) ContainsCredit(id at2.Bytes32) bool {
	for _, e := range h.Entries {
		if e.Credit != nil && e.Credit.Credit.ID == id {
			return true
		}
	}
	return false
}

// DebitAt returns the debit proof occupying the given sequence number, if any.
func (h *WalletHistory) DebitAt(seq uint64) *TransferAgreementProof {
	var n uint64
	for _, e := range h.Entries {
		if e.Debit == nil {
			continue
		}
		if n == seq {
			return e.Debit
		}
		n++
	}
	return nil
}

// AppendDebit appends a debit proof.
func (h *WalletHistory) AppendDebit(p *TransferAgreementProof) {
	h.Entries = append(h.Entries, HistoryEntry{Debit: p})
}

// AppendCredit appends a credit proof.
func (h *WalletHistory) AppendCredit(p *CreditAgreementProof) {
	h.Entries = append(h.Entries, HistoryEntry{Credit: p})
}

// Since returns the suffix of entries from the given version on.
func (h *WalletHistory) Since(version int) []HistoryEntry {
	if version < 0 {
		version = 0
	}
	if version >= len(h.Entries) {
		return nil
	}
	return append([]HistoryEntry(nil), h.Entries[version:]...)
}

// Clone returns a deep-enough copy for handing to another owner.
// Proofs are immutable once agreed, so sharing them is safe.
func (h *WalletHistory) Clone() *WalletHistory {
	return &WalletHistory{Entries: append([]HistoryEntry(nil), h.Entries...)}
}
