// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package ledger holds the deterministic per-account balance and history
// state. It is a pure function of the ordered sequence of agreement proofs
// applied to it; no other state may influence balances.
package ledger

import (
	"sync"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/at2net/at2/at2"
	"github.com/at2net/at2/transfer"
)

var (
	errUnknownAccount      = errors.New("unknown account")
	errSequenceConflict    = errors.New("sequence conflict")
	errInsufficientBalance = errors.New("insufficient balance")
)

// IsUnknownAccount returns whether err indicates the account has no history.
func IsUnknownAccount(err error) bool {
	return errors.Cause(err) == errUnknownAccount
}

// IsSequenceConflict returns whether err indicates the debit's sequence slot
// is already occupied by a different proof.
func IsSequenceConflict(err error) bool {
	return errors.Cause(err) == errSequenceConflict
}

// IsInsufficientBalance returns whether err indicates the debit would push
// the balance negative.
func IsInsufficientBalance(err error) bool {
	return errors.Cause(err) == errInsufficientBalance
}

// ErrSequenceConflict returns the sequence conflict sentinel, for components
// that enforce the same admission rules ahead of the ledger.
func ErrSequenceConflict() error { return errSequenceConflict }

// ErrInsufficientBalance returns the insufficient balance sentinel, for
// components that enforce the same admission rules ahead of the ledger.
func ErrInsufficientBalance() error { return errInsufficientBalance }

// Ledger per-account wallet histories of one section, plus the store cost
// policy surface. Every replica of a section derives an identical copy;
// instances are never shared between replicas.
type Ledger struct {
	mu      sync.RWMutex
	wallets map[at2.PublicKey]*transfer.WalletHistory
	curve   CostCurve
	fill    float64
}

// New creates an empty ledger with the given store cost curve.
func New(curve CostCurve) *Ledger {
	return &Ledger{
		wallets: make(map[at2.PublicKey]*transfer.WalletHistory),
		curve:   curve,
	}
}

// Balance returns the account's current balance.
func (l *Ledger) Balance(key at2.PublicKey) (at2.Token, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	hist, ok := l.wallets[key]
	if !ok {
		return 0, errUnknownAccount
	}
	return hist.Balance()
}

// History returns the account's history entries from sinceVersion on.
func (l *Ledger) History(key at2.PublicKey, sinceVersion int) ([]transfer.HistoryEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	hist, ok := l.wallets[key]
	if !ok {
		return nil, errUnknownAccount
	}
	return hist.Since(sinceVersion), nil
}

// HistoryOf returns a copy of the account's full wallet history,
// used when syncing incoming elders during churn.
func (l *Ledger) HistoryOf(key at2.PublicKey) (*transfer.WalletHistory, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	hist, ok := l.wallets[key]
	if !ok {
		return nil, errUnknownAccount
	}
	return hist.Clone(), nil
}

// NextSeq returns the sequence number the account's next debit must carry.
// Zero for unknown accounts.
func (l *Ledger) NextSeq(key at2.PublicKey) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if hist, ok := l.wallets[key]; ok {
		return hist.NextSeq()
	}
	return 0
}

// DebitAt returns the debit proof occupying the account's sequence slot, if any.
func (l *Ledger) DebitAt(key at2.PublicKey, seq uint64) *transfer.TransferAgreementProof {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if hist, ok := l.wallets[key]; ok {
		return hist.DebitAt(seq)
	}
	return nil
}

// ContainsCredit reports whether a credit with the given id was applied
// to the account.
func (l *Ledger) ContainsCredit(key at2.PublicKey, id at2.Bytes32) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if hist, ok := l.wallets[key]; ok {
		return hist.ContainsCredit(id)
	}
	return false
}

// ApplyDebit appends a debit proof to the debited account's history.
// Re-applying the identical proof is a no-op. The sequence slot must be the
// account's next one, and the balance must cover the amount.
func (l *Ledger) ApplyDebit(p *transfer.TransferAgreementProof) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	hist, err := l.admitDebit(p)
	if err != nil || hist == nil {
		return err
	}
	hist.AppendDebit(p)
	return nil
}

// CheckDebit runs ApplyDebit's admission rules without mutating, so a caller
// can persist a log entry before applying.
func (l *Ledger) CheckDebit(p *transfer.TransferAgreementProof) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, err := l.admitDebit(p)
	return err
}

// admitDebit returns the history to debit, or nil when the identical proof
// is already applied. Caller holds the lock.
func (l *Ledger) admitDebit(p *transfer.TransferAgreementProof) (*transfer.WalletHistory, error) {
	debit := &p.Transfer.Transfer.Debit
	hist, ok := l.wallets[debit.From]
	if !ok {
		return nil, errors.WithMessage(errUnknownAccount, "debit from unknown account")
	}
	if occupied := hist.DebitAt(debit.Seq); occupied != nil {
		if occupied.ID() == p.ID() {
			return nil, nil
		}
		return nil, errSequenceConflict
	}
	if debit.Seq != hist.NextSeq() {
		return nil, errSequenceConflict
	}
	balance, err := hist.Balance()
	if err != nil {
		return nil, err
	}
	if balance < debit.Amount {
		return nil, errInsufficientBalance
	}
	return hist, nil
}

// ApplyCredit appends a credit proof to the credited account's history,
// creating the account on first credit. Idempotent per credit id.
func (l *Ledger) ApplyCredit(p *transfer.CreditAgreementProof) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	hist, ok := l.wallets[p.Credit.To]
	if !ok {
		hist = &transfer.WalletHistory{}
		l.wallets[p.Credit.To] = hist
	}
	if hist.ContainsCredit(p.Credit.ID) {
		return nil
	}
	hist.AppendCredit(p)
	return nil
}

// ApplyHistory installs a full wallet history received from a peer,
// replacing whatever is held locally for the account.
func (l *Ledger) ApplyHistory(key at2.PublicKey, hist *transfer.WalletHistory) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.wallets[key] = hist.Clone()
}

// Wallets returns all account keys in canonical order.
func (l *Ledger) Wallets() []at2.PublicKey {
	l.mu.RLock()
	defer l.mu.RUnlock()

	keys := make([]at2.PublicKey, 0, len(l.wallets))
	for k := range l.wallets {
		keys = append(keys, k)
	}
	at2.SortPublicKeys(keys)
	return keys
}

type walletState struct {
	Key     at2.PublicKey
	Entries []transfer.HistoryEntry
}

// StateHash computes a deterministic digest of the full ledger state.
// Two replicas that applied the same events always agree on it.
func (l *Ledger) StateHash() at2.Bytes32 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	keys := make([]at2.PublicKey, 0, len(l.wallets))
	for k := range l.wallets {
		keys = append(keys, k)
	}
	at2.SortPublicKeys(keys)

	states := make([]walletState, 0, len(keys))
	for _, k := range keys {
		states = append(states, walletState{Key: k, Entries: l.wallets[k].Entries})
	}
	data, _ := rlp.EncodeToBytes(states)
	return at2.Blake2b(data)
}

// PartitionBy returns a new ledger holding only the accounts whose names fall
// under the given prefix. Used on section splits; the union of the two child
// partitions is the parent, with no account duplicated.
func (l *Ledger) PartitionBy(prefix at2.Prefix) *Ledger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	part := New(l.curve)
	part.fill = l.fill
	for key, hist := range l.wallets {
		if prefix.Matches(key.Name()) {
			part.wallets[key] = hist.Clone()
		}
	}
	return part
}
