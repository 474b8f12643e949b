// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package reward tracks each node's reward stage and wallet binding, and
// issues payout instructions that go through the section actor as ordinary
// transfers.
package reward

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/at2net/at2/at2"
	"github.com/at2net/at2/log"
)

var logger = log.WithContext("pkg", "reward")

var (
	errStageViolation = errors.New("reward stage violation")
	errUnknownNode    = errors.New("unknown node")
)

// IsStageViolation returns whether err indicates an operation not permitted
// in the node's current reward stage.
func IsStageViolation(err error) bool {
	return errors.Cause(err) == errStageViolation
}

// IsUnknownNode returns whether err indicates the node is not tracked.
func IsUnknownNode(err error) bool {
	return errors.Cause(err) == errUnknownNode
}

// Stage a node's reward lifecycle stage. The lifecycle only moves forward:
// AwaitingActivation -> Active -> Deactivated.
type Stage byte

// Reward stages.
const (
	AwaitingActivation Stage = iota
	Active
	Deactivated
)

// String implements stringer.
func (s Stage) String() string {
	switch s {
	case AwaitingActivation:
		return "awaiting-activation"
	case Active:
		return "active"
	default:
		return "deactivated"
	}
}

type nodeRecord struct {
	stage  Stage
	wallet at2.PublicKey
	age    uint8
}

// Payer submits a reward credit as a section-wallet transfer through the
// section actor. Implemented by the wiring layer; payouts and ordinary
// transfers share one code path and one set of invariants.
type Payer interface {
	ProposePayout(wallet at2.PublicKey, amount at2.Token) error
}

// Ledger the per-section reward ledger.
type Ledger struct {
	mu    sync.Mutex
	nodes map[at2.NodeID]*nodeRecord
	payer Payer
}

// New creates an empty reward ledger paying out through payer.
func New(payer Payer) *Ledger {
	return &Ledger{
		nodes: make(map[at2.NodeID]*nodeRecord),
		payer: payer,
	}
}

// AddNode starts tracking a newly joined node, awaiting wallet activation.
// Adding an already tracked node is a no-op.
func (l *Ledger) AddNode(id at2.NodeID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.nodes[id]; ok {
		return
	}
	l.nodes[id] = &nodeRecord{stage: AwaitingActivation}
	logger.Debug("node added to rewards", "node", id.AbbrevString())
}

// SetWallet binds the node's payout wallet, activating its rewards.
// Rotating an active node's wallet is allowed; a deactivated node stays
// deactivated.
func (l *Ledger) SetWallet(id at2.NodeID, wallet at2.PublicKey) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.nodes[id]
	if !ok {
		return errUnknownNode
	}
	if rec.stage == Deactivated {
		return errors.WithMessage(errStageViolation, "node is deactivated")
	}
	rec.wallet = wallet
	rec.stage = Active
	logger.Debug("node wallet set", "node", id.AbbrevString(), "wallet", wallet.AbbrevString())
	return nil
}

// Relocate moves reward eligibility from a node's previous id to its id in
// this section. The new id inherits the old id's stage and wallet when the
// old id is known here; otherwise the node starts awaiting activation.
// Nodes below the minimum age are not yet payout-eligible, so an inherited
// Active stage drops back to awaiting activation. Deactivated is terminal
// and survives relocation unchanged.
func (l *Ledger) Relocate(oldID, newID at2.NodeID, age uint8) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := &nodeRecord{stage: AwaitingActivation, age: age}
	if old, ok := l.nodes[oldID]; ok {
		rec.stage = old.stage
		rec.wallet = old.wallet
		delete(l.nodes, oldID)
	}
	if age < at2.MinRewardAge && rec.stage == Active {
		rec.stage = AwaitingActivation
		rec.wallet = at2.PublicKey{}
	}
	l.nodes[newID] = rec
	logger.Debug("node relocated", "old", oldID.AbbrevString(), "new", newID.AbbrevString(), "age", age)
}

// Activate binds the wallet id received from the node's previous section
// after a relocation, provided the node is old enough.
func (l *Ledger) Activate(id at2.NodeID, wallet at2.PublicKey) error {
	l.mu.Lock()
	rec, ok := l.nodes[id]
	if !ok {
		l.mu.Unlock()
		return errUnknownNode
	}
	age := rec.age
	l.mu.Unlock()

	if age < at2.MinRewardAge {
		return errors.WithMessage(errStageViolation, "node below minimum reward age")
	}
	return l.SetWallet(id, wallet)
}

// Deactivate terminally drops the node from future payout rounds.
func (l *Ledger) Deactivate(id at2.NodeID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.nodes[id]
	if !ok {
		return errUnknownNode
	}
	rec.stage = Deactivated
	logger.Debug("node deactivated", "node", id.AbbrevString())
	return nil
}

// Stage returns the node's current reward stage.
func (l *Ledger) Stage(id at2.NodeID) (Stage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.nodes[id]
	if !ok {
		return 0, errUnknownNode
	}
	return rec.stage, nil
}

// Wallet returns the node's bound wallet key. Queried by the next section
// when the node relocates away.
func (l *Ledger) Wallet(id at2.NodeID) (at2.PublicKey, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.nodes[id]
	if !ok {
		return at2.PublicKey{}, errUnknownNode
	}
	if rec.stage != Active {
		return at2.PublicKey{}, errors.WithMessage(errStageViolation, "node has no active wallet")
	}
	return rec.wallet, nil
}

// IssuePayout submits a reward payout to the node's wallet through the
// section actor. Only permitted for active nodes; no ledger change happens
// on rejection.
func (l *Ledger) IssuePayout(id at2.NodeID, amount at2.Token) error {
	l.mu.Lock()
	rec, ok := l.nodes[id]
	if !ok {
		l.mu.Unlock()
		return errUnknownNode
	}
	if rec.stage != Active {
		stage := rec.stage
		l.mu.Unlock()
		return errors.WithMessagef(errStageViolation, "payout to %v node", stage)
	}
	wallet := rec.wallet
	l.mu.Unlock()

	logger.Info("issuing payout", "node", id.AbbrevString(), "wallet", wallet.AbbrevString(), "amount", amount)
	return l.payer.ProposePayout(wallet, amount)
}

// Nodes returns the tracked node ids in canonical order.
func (l *Ledger) Nodes() []at2.NodeID {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]at2.NodeID, 0, len(l.nodes))
	for id := range l.nodes {
		ids = append(ids, id)
	}
	at2.SortNodeIDs(ids)
	return ids
}

// PartitionBy returns a new reward ledger holding only the nodes whose ids
// fall under the given prefix. Used on section splits, consistently with the
// transfer ledger partition.
func (l *Ledger) PartitionBy(prefix at2.Prefix, payer Payer) *Ledger {
	l.mu.Lock()
	defer l.mu.Unlock()

	part := New(payer)
	for id, rec := range l.nodes {
		if prefix.Matches(id) {
			cpy := *rec
			part.nodes[id] = &cpy
		}
	}
	return part
}
