// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package replica implements one elder's transfer replica: it endorses
// proposed debits with signature shares, commits agreement proofs to the
// ledger, applies credits arriving from other sections, and keeps the
// append-only event log everything can be replayed from.
package replica

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/at2net/at2/at2"
	"github.com/at2net/at2/churn"
	"github.com/at2net/at2/kv"
	"github.com/at2net/at2/ledger"
	"github.com/at2net/at2/log"
	"github.com/at2net/at2/metrics"
	"github.com/at2net/at2/transfer"
	"github.com/at2net/at2/tsig"
)

var logger = log.WithContext("pkg", "replica")

var (
	metricEvents     = metrics.LazyLoadCounterVec("replica_event_count", []string{"type"})
	metricDivergence = metrics.LazyLoadCounter("replica_divergence_count")
)

var (
	errLedgerDivergence = errors.New("ledger divergence")
	errAlreadyInitiated = errors.New("replica already initiated")
	errWrongSection     = errors.New("recipient not under this section's prefix")
)

// IsLedgerDivergence returns whether err indicates this replica's state
// disagrees with its peers and a full resynchronization is required.
func IsLedgerDivergence(err error) bool {
	return errors.Cause(err) == errLedgerDivergence
}

// Replica one elder's replica of the section's transfer state. All state
// transitions are recorded in the event log before they take effect, so a
// fresh replica replaying the log arrives at the identical ledger.
type Replica struct {
	keys   *churn.KeyHandle
	prefix at2.Prefix

	ledger *ledger.Ledger
	store  *EventStore
	locks  accountLocks

	mu      sync.Mutex
	share   *tsig.SecretKeyShare
	pending map[at2.PublicKey]map[uint64]at2.Bytes32
}

// New opens a replica over the given backing store. Any events already
// persisted are replayed into the ledger, so restarting a node resumes
// exactly where it left off.
func New(share *tsig.SecretKeyShare, keys *churn.KeyHandle, lgr *ledger.Ledger, prefix at2.Prefix, src kv.GetPutter) (*Replica, error) {
	store, err := OpenEventStore(src)
	if err != nil {
		return nil, err
	}
	r := &Replica{
		keys:    keys,
		prefix:  prefix,
		ledger:  lgr,
		store:   store,
		share:   share,
		pending: make(map[at2.PublicKey]map[uint64]at2.Bytes32),
	}
	if store.Len() > 0 {
		events, err := store.All()
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			if err := r.applyEvent(ev); err != nil {
				return nil, errors.Wrap(err, "replay persisted events")
			}
		}
		logger.Info("resumed from persisted log", "events", store.Len())
	}
	return r, nil
}

// Ledger returns the replica's ledger, for balance and history queries.
func (r *Replica) Ledger() *ledger.Ledger {
	return r.ledger
}

// KeyHandle returns the section signing authority handle.
func (r *Replica) KeyHandle() *churn.KeyHandle {
	return r.keys
}

// Prefix returns the section prefix this replica serves.
func (r *Replica) Prefix() at2.Prefix {
	return r.prefix
}

// SetKeyShare installs the elder's share of a freshly rotated section key.
func (r *Replica) SetKeyShare(share *tsig.SecretKeyShare) {
	r.mu.Lock()
	r.share = share
	r.mu.Unlock()
}

func (r *Replica) keyShare() *tsig.SecretKeyShare {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.share
}

// Validate endorses a proposed owner transfer. On success the endorsement is
// logged and the signature shares are returned for the actor to aggregate.
// Re-validating a transfer this replica already endorsed returns fresh shares
// without logging again, so rebroadcasts converge.
func (r *Replica) Validate(st *transfer.SignedTransfer) (*transfer.TransferValidated, error) {
	if err := r.keys.ProposalsOpen(); err != nil {
		return nil, err
	}
	if err := st.Verify(); err != nil {
		return nil, err
	}
	defer r.locks.lock(st.Transfer.Debit.From).Unlock()
	return r.endorse(st)
}

// ValidateSectionPayout is the Validate variant for transfers debiting the
// section's own wallet, authorized by an elder key share instead of an owner
// signature.
func (r *Replica) ValidateSectionPayout(sts *transfer.SignedTransferShare) (*transfer.TransferValidated, error) {
	if err := r.keys.ProposalsOpen(); err != nil {
		return nil, err
	}
	if err := sts.Verify(r.keyShare().PublicKeySet()); err != nil {
		return nil, err
	}
	defer r.locks.lock(sts.Transfer.Debit.From).Unlock()
	return r.endorse(&transfer.SignedTransfer{Transfer: sts.Transfer})
}

// endorse runs the debit admission checks and signs both halves.
// Caller holds the account lock.
func (r *Replica) endorse(st *transfer.SignedTransfer) (*transfer.TransferValidated, error) {
	debit := &st.Transfer.Debit
	id := st.ID()

	registered := false
	if occupied := r.ledger.DebitAt(debit.From, debit.Seq); occupied != nil {
		if occupied.ID() != id {
			return nil, r.sequenceConflict(debit)
		}
		registered = true
	}

	r.mu.Lock()
	pendingID, isPending := r.pending[debit.From][debit.Seq]
	r.mu.Unlock()

	if isPending && pendingID != id {
		return nil, r.sequenceConflict(debit)
	}
	firstSight := !isPending && !registered
	if firstSight {
		if debit.Seq != r.ledger.NextSeq(debit.From) {
			return nil, r.sequenceConflict(debit)
		}
		balance, err := r.ledger.Balance(debit.From)
		if err != nil {
			return nil, err
		}
		if balance < debit.Amount {
			return nil, errors.WithMessagef(ledger.ErrInsufficientBalance(),
				"balance %v, debit %v", balance, debit.Amount)
		}
	}

	share := r.keyShare()
	hash := st.Transfer.SigningHash()
	debitShare, err := share.Sign(hash.Bytes())
	if err != nil {
		return nil, err
	}
	creditShare, err := share.Sign(st.Transfer.Credit.Hash().Bytes())
	if err != nil {
		return nil, err
	}
	tv := &transfer.TransferValidated{
		Transfer:    *st,
		SectionKey:  share.PublicKeySet().PublicKey(),
		DebitShare:  debitShare,
		CreditShare: creditShare,
	}

	if firstSight {
		if err := r.store.Append(transfer.NewValidatedEvent(tv)); err != nil {
			return nil, err
		}
		r.recordPending(debit.From, debit.Seq, id)
		metricEvents().AddWithLabel(1, map[string]string{"type": "validated"})
	}
	logger.Debug("endorsed transfer", "id", id.AbbrevString(), "seq", debit.Seq)
	return tv, nil
}

func (r *Replica) sequenceConflict(debit *transfer.Debit) error {
	return errors.WithMessagef(ledger.ErrSequenceConflict(),
		"account %v seq %d", debit.From.AbbrevString(), debit.Seq)
}

// Register commits an agreement proof: the debit is applied, and when the
// recipient lives under this section's prefix the credit too. Re-registering
// the identical proof is a no-op. Returns the logged event, nil for no-ops.
func (r *Replica) Register(p *transfer.TransferAgreementProof) (*transfer.ReplicaEvent, error) {
	if err := r.keys.AcceptsKey(p.SectionKey); err != nil {
		return nil, err
	}
	if len(p.Transfer.OwnerSig) == 0 {
		if err := p.VerifySectionPayout(); err != nil {
			return nil, err
		}
	} else if err := p.Verify(); err != nil {
		return nil, err
	}

	debit := &p.Transfer.Transfer.Debit
	defer r.locks.lock(debit.From).Unlock()

	if occupied := r.ledger.DebitAt(debit.From, debit.Seq); occupied != nil && occupied.ID() == p.ID() {
		return nil, nil
	}
	// admission is checked first so the event only hits the log once the
	// ledger is certain to accept it, and applied only once the event is
	// durably logged; the account lock keeps the admission verdict valid
	if err := r.ledger.CheckDebit(p); err != nil {
		return nil, err
	}
	ev := transfer.NewRegisteredEvent(p)
	if err := r.store.Append(ev); err != nil {
		return nil, err
	}
	if err := r.ledger.ApplyDebit(p); err != nil {
		return nil, err
	}
	if r.prefix.Matches(p.Transfer.Transfer.Credit.To.Name()) {
		if err := r.ledger.ApplyCredit(p.CreditProof()); err != nil {
			return nil, err
		}
	}
	r.clearPending(debit.From, debit.Seq)
	metricEvents().AddWithLabel(1, map[string]string{"type": "registered"})
	logger.Debug("registered transfer", "id", p.ID().AbbrevString())
	return ev, nil
}

// Propagate applies a credit proof produced by another section. The proof is
// self-contained; once its signature verifies the credit always lands.
// Duplicate propagation is a no-op. Returns the logged event, nil for no-ops.
func (r *Replica) Propagate(p *transfer.CreditAgreementProof) (*transfer.ReplicaEvent, error) {
	if err := p.Verify(); err != nil {
		return nil, err
	}
	if !r.prefix.Matches(p.Credit.To.Name()) {
		return nil, errors.WithMessagef(errWrongSection, "recipient %v", p.Credit.To.AbbrevString())
	}
	defer r.locks.lock(p.Credit.To).Unlock()

	if r.ledger.ContainsCredit(p.Credit.To, p.Credit.ID) {
		return nil, nil
	}
	ev := transfer.NewPropagatedEvent(p)
	if err := r.store.Append(ev); err != nil {
		return nil, err
	}
	if err := r.ledger.ApplyCredit(p); err != nil {
		return nil, err
	}
	metricEvents().AddWithLabel(1, map[string]string{"type": "propagated"})
	logger.Debug("propagated credit", "id", p.Credit.ID.AbbrevString())
	return ev, nil
}

// Replay initiates a fresh replica from a peer's full event log. Fails on a
// replica that already holds events.
func (r *Replica) Replay(events []*transfer.ReplicaEvent) error {
	if r.store.Len() > 0 {
		return errAlreadyInitiated
	}
	for i, ev := range events {
		if err := r.applyEvent(ev); err != nil {
			return errors.Wrapf(err, "replay event %d", i)
		}
		if err := r.store.Append(ev); err != nil {
			return err
		}
	}
	logger.Info("initiated from peer log", "events", len(events))
	return nil
}

// applyEvent folds one event into the in-memory state without logging it.
func (r *Replica) applyEvent(ev *transfer.ReplicaEvent) error {
	switch ev.Type() {
	case transfer.EventValidated:
		debit := &ev.Validated.Transfer.Transfer.Debit
		r.recordPending(debit.From, debit.Seq, ev.Validated.ID())
		return nil
	case transfer.EventRegistered:
		debit := &ev.Registered.Transfer.Transfer.Debit
		defer r.clearPending(debit.From, debit.Seq)
	}
	return applyToLedger(r.ledger, r.prefix, ev)
}

func applyToLedger(l *ledger.Ledger, prefix at2.Prefix, ev *transfer.ReplicaEvent) error {
	switch ev.Type() {
	case transfer.EventValidated:
		return nil
	case transfer.EventRegistered:
		p := ev.Registered
		if err := l.ApplyDebit(p); err != nil {
			return err
		}
		if prefix.Matches(p.Transfer.Transfer.Credit.To.Name()) {
			return l.ApplyCredit(p.CreditProof())
		}
		return nil
	default:
		return l.ApplyCredit(ev.Propagated)
	}
}

// Rebuild folds an ordered event log into l the way a replica serving prefix
// would have, without needing key material. Used by offline tooling.
func Rebuild(l *ledger.Ledger, prefix at2.Prefix, events []*transfer.ReplicaEvent) error {
	for i, ev := range events {
		if err := applyToLedger(l, prefix, ev); err != nil {
			return errors.Wrapf(err, "apply event %d", i)
		}
	}
	return nil
}

func (r *Replica) recordPending(from at2.PublicKey, seq uint64, id at2.Bytes32) {
	r.mu.Lock()
	slots, ok := r.pending[from]
	if !ok {
		slots = make(map[uint64]at2.Bytes32)
		r.pending[from] = slots
	}
	slots[seq] = id
	r.mu.Unlock()
}

func (r *Replica) clearPending(from at2.PublicKey, seq uint64) {
	r.mu.Lock()
	delete(r.pending[from], seq)
	r.mu.Unlock()
}

// Events returns the full ordered event log, for resyncing a diverged or
// freshly joined replica.
func (r *Replica) Events() ([]*transfer.ReplicaEvent, error) {
	return r.store.All()
}

// StateHash returns the deterministic digest of the replica's ledger state.
func (r *Replica) StateHash() at2.Bytes32 {
	return r.ledger.StateHash()
}

// CheckState compares the local state digest against a peer's. A mismatch
// means this replica must discard its state and resync from the event log.
func (r *Replica) CheckState(peer at2.Bytes32) error {
	local := r.StateHash()
	if local == peer {
		return nil
	}
	metricDivergence().Add(1)
	logger.Warn("ledger divergence detected", "local", local.AbbrevString(), "peer", peer.AbbrevString())
	return errors.WithMessagef(errLedgerDivergence, "local %v, peer %v", local.AbbrevString(), peer.AbbrevString())
}
