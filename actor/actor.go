// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package actor implements the section actor: the component that drives a
// proposed transfer through validation, collects replica signature shares,
// and combines a quorum of them into the section agreement proof.
package actor

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/at2net/at2/at2"
	"github.com/at2net/at2/churn"
	"github.com/at2net/at2/co"
	"github.com/at2net/at2/log"
	"github.com/at2net/at2/metrics"
	"github.com/at2net/at2/replica"
	"github.com/at2net/at2/transfer"
	"github.com/at2net/at2/tsig"
)

var logger = log.WithContext("pkg", "actor")

var (
	metricProposals = metrics.LazyLoadCounterVec("actor_proposal_count", []string{"kind"})
	metricAgreed    = metrics.LazyLoadCounter("actor_agreement_count")
	metricRejected  = metrics.LazyLoadCounter("actor_rejected_share_count")
	metricPending   = metrics.LazyLoadGauge("actor_pending_gauge")
)

const doneCacheLimit = 1024

// Handlers connect the actor to the node's messaging layer. Tests wire them
// straight to replicas; the node wires them to outgoing messages.
type Handlers struct {
	// Broadcast sends an owner transfer proposal to the section's replicas.
	Broadcast func(*transfer.SignedTransfer)
	// BroadcastPayout sends a section-wallet payout proposal to the replicas.
	BroadcastPayout func(*transfer.SignedTransferShare)
	// OnProof is called once per transfer when agreement is reached.
	OnProof func(*transfer.TransferAgreementProof)
	// ForwardCredit routes a credit proof whose recipient lives in
	// another section.
	ForwardCredit func(*transfer.CreditAgreementProof)
}

type phase byte

const (
	phaseCollecting phase = iota
	phaseAggregated
)

// proposal one in-flight transfer accumulating endorsements.
type proposal struct {
	signed *transfer.SignedTransfer
	payout *transfer.SignedTransferShare

	debit  map[int]tsig.SignatureShare
	credit map[int]tsig.SignatureShare
	phase  phase

	lastSent time.Time
}

func (p *proposal) transfer() *transfer.Transfer {
	if p.payout != nil {
		return &p.payout.Transfer
	}
	return &p.signed.Transfer
}

// signedTransfer returns the transfer in proof form. Payouts carry no owner
// signature.
func (p *proposal) signedTransfer() transfer.SignedTransfer {
	if p.payout != nil {
		return transfer.SignedTransfer{Transfer: p.payout.Transfer}
	}
	return *p.signed
}

// SectionActor aggregates replica endorsements into agreement proofs for one
// section. A node runs one instance while it is an elder.
type SectionActor struct {
	share    *tsig.SecretKeyShare
	keys     *churn.KeyHandle
	local    *replica.Replica
	handlers Handlers

	mu      sync.Mutex
	pending map[at2.Bytes32]*proposal
	done    *lru.Cache

	goes co.Goes
	stop chan struct{}
}

// New creates an actor over the elder's local replica and starts its
// rebroadcast loop. Close must be called to release it.
func New(share *tsig.SecretKeyShare, local *replica.Replica, handlers Handlers) *SectionActor {
	done, _ := lru.New(doneCacheLimit)
	a := &SectionActor{
		share:    share,
		keys:     local.KeyHandle(),
		local:    local,
		handlers: handlers,
		pending:  make(map[at2.Bytes32]*proposal),
		done:     done,
		stop:     make(chan struct{}),
	}
	a.goes.Go(a.rebroadcastLoop)
	return a
}

// Close stops the rebroadcast loop and waits for it.
func (a *SectionActor) Close() {
	close(a.stop)
	a.goes.Wait()
}

// SetKeyShare installs the elder's share of a freshly rotated section key.
func (a *SectionActor) SetKeyShare(share *tsig.SecretKeyShare) {
	a.mu.Lock()
	a.share = share
	a.mu.Unlock()
}

// Pending returns the number of proposals still collecting endorsements.
func (a *SectionActor) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Propose starts agreement on an owner transfer. Non-blocking: the proposal
// is broadcast and the actor returns; the proof lands later through
// ReceiveValidation. Re-proposing a known or completed transfer is a no-op.
func (a *SectionActor) Propose(st *transfer.SignedTransfer) error {
	if err := a.keys.ProposalsOpen(); err != nil {
		return err
	}
	if err := st.Verify(); err != nil {
		return err
	}
	if !a.admit(st.ID(), &proposal{signed: st}) {
		return nil
	}
	metricProposals().AddWithLabel(1, map[string]string{"kind": "owner"})
	logger.Debug("proposed transfer", "id", st.ID().AbbrevString())
	if a.handlers.Broadcast != nil {
		a.handlers.Broadcast(st)
	}
	return nil
}

// ProposePayout starts agreement on a payout from the section's own wallet.
// Satisfies the reward ledger's payer contract.
func (a *SectionActor) ProposePayout(wallet at2.PublicKey, amount at2.Token) error {
	if err := a.keys.ProposalsOpen(); err != nil {
		return err
	}
	a.mu.Lock()
	share := a.share
	a.mu.Unlock()

	sectionWallet := share.PublicKeySet().PublicKey()
	seq := a.local.Ledger().NextSeq(sectionWallet)
	tr := transfer.NewTransfer(sectionWallet, wallet, amount, seq)
	sts, err := transfer.SignShare(tr, share)
	if err != nil {
		return err
	}
	if !a.admit(sts.ID(), &proposal{payout: sts}) {
		return nil
	}
	metricProposals().AddWithLabel(1, map[string]string{"kind": "payout"})
	logger.Debug("proposed payout", "id", sts.ID().AbbrevString(), "amount", amount)
	if a.handlers.BroadcastPayout != nil {
		a.handlers.BroadcastPayout(sts)
	}
	return nil
}

// admit registers a new proposal unless the transfer is already in flight
// or already agreed.
func (a *SectionActor) admit(id at2.Bytes32, p *proposal) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.done.Contains(id) {
		return false
	}
	if _, inFlight := a.pending[id]; inFlight {
		return false
	}
	p.debit = make(map[int]tsig.SignatureShare)
	p.credit = make(map[int]tsig.SignatureShare)
	p.lastSent = time.Now()
	a.pending[id] = p
	metricPending().Set(int64(len(a.pending)))
	return true
}

// ReceiveValidation folds one replica endorsement into the matching pending
// proposal. When the quorum is reached the shares are combined, the proof is
// registered on the local replica and handed to the proof handlers, and the
// proof is returned. Until then (and for endorsements of unknown proposals)
// it returns nil.
func (a *SectionActor) ReceiveValidation(tv *transfer.TransferValidated) (*transfer.TransferAgreementProof, error) {
	cur := a.keys.Current()
	if tv.SectionKey != cur.PublicKey() {
		metricRejected().Add(1)
		return nil, errors.WithMessage(churn.ErrStaleSectionKey(), "endorsement under retired key")
	}
	if err := tv.Verify(cur); err != nil {
		metricRejected().Add(1)
		return nil, err
	}
	index, err := tv.SignerIndex()
	if err != nil {
		metricRejected().Add(1)
		return nil, err
	}

	id := tv.ID()
	a.mu.Lock()
	p, ok := a.pending[id]
	if !ok {
		a.mu.Unlock()
		if cached, hit := a.done.Get(id); hit {
			return cached.(*transfer.TransferAgreementProof), nil
		}
		logger.Debug("endorsement for unknown proposal", "id", id.AbbrevString())
		return nil, nil
	}
	if p.phase != phaseCollecting {
		a.mu.Unlock()
		return nil, nil
	}
	p.debit[index] = tv.DebitShare
	p.credit[index] = tv.CreditShare
	if len(p.debit) < cur.Threshold() {
		a.mu.Unlock()
		return nil, nil
	}
	p.phase = phaseAggregated
	a.mu.Unlock()

	proof, err := a.aggregate(cur, p)
	if err != nil {
		// combining can only fail on internal inconsistency; reopen
		// collection so later endorsements retry
		a.mu.Lock()
		p.phase = phaseCollecting
		a.mu.Unlock()
		return nil, err
	}

	a.mu.Lock()
	delete(a.pending, id)
	a.done.Add(id, proof)
	metricPending().Set(int64(len(a.pending)))
	a.mu.Unlock()
	metricAgreed().Add(1)

	a.submit(proof)
	return proof, nil
}

func (a *SectionActor) aggregate(cur *tsig.PublicKeySet, p *proposal) (*transfer.TransferAgreementProof, error) {
	tr := p.transfer()

	a.mu.Lock()
	debitShares := make([]tsig.SignatureShare, 0, len(p.debit))
	creditShares := make([]tsig.SignatureShare, 0, len(p.credit))
	for _, s := range p.debit {
		debitShares = append(debitShares, s)
	}
	for _, s := range p.credit {
		creditShares = append(creditShares, s)
	}
	a.mu.Unlock()

	hash := tr.SigningHash()
	debitSig, err := cur.Combine(hash.Bytes(), debitShares)
	if err != nil {
		return nil, err
	}
	creditSig, err := cur.Combine(tr.Credit.Hash().Bytes(), creditShares)
	if err != nil {
		return nil, err
	}
	return &transfer.TransferAgreementProof{
		Transfer:   p.signedTransfer(),
		SectionKey: cur.PublicKey(),
		DebitSig:   debitSig,
		CreditSig:  creditSig,
	}, nil
}

// submit commits the proof locally and routes it onward.
func (a *SectionActor) submit(proof *transfer.TransferAgreementProof) {
	if _, err := a.local.Register(proof); err != nil {
		logger.Warn("local register failed", "id", proof.ID().AbbrevString(), "err", err)
	}
	logger.Info("transfer agreed", "id", proof.ID().AbbrevString())

	if a.handlers.OnProof != nil {
		a.handlers.OnProof(proof)
	}
	credit := &proof.Transfer.Transfer.Credit
	if !a.local.Prefix().Matches(credit.To.Name()) && a.handlers.ForwardCredit != nil {
		a.handlers.ForwardCredit(proof.CreditProof())
	}
}

// rebroadcastLoop re-sends proposals that have been collecting longer than
// the proposal timeout, until agreement or Close.
func (a *SectionActor) rebroadcastLoop() {
	ticker := time.NewTicker(at2.ProposalTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			a.rebroadcastStale()
		}
	}
}

func (a *SectionActor) rebroadcastStale() {
	now := time.Now()

	a.mu.Lock()
	var owners []*transfer.SignedTransfer
	var payouts []*transfer.SignedTransferShare
	for _, p := range a.pending {
		if p.phase != phaseCollecting || now.Sub(p.lastSent) < at2.ProposalTimeout {
			continue
		}
		p.lastSent = now
		if p.payout != nil {
			payouts = append(payouts, p.payout)
		} else {
			owners = append(owners, p.signed)
		}
	}
	a.mu.Unlock()

	for _, st := range owners {
		logger.Debug("rebroadcasting proposal", "id", st.ID().AbbrevString())
		if a.handlers.Broadcast != nil {
			a.handlers.Broadcast(st)
		}
	}
	for _, sts := range payouts {
		logger.Debug("rebroadcasting payout", "id", sts.ID().AbbrevString())
		if a.handlers.BroadcastPayout != nil {
			a.handlers.BroadcastPayout(sts)
		}
	}
}
