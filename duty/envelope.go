// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package duty

import (
	"github.com/pkg/errors"

	"github.com/at2net/at2/at2"
)

// Branch names the elder duty branch an operation is routed on. Every Msg
// belongs to exactly one branch.
type Branch byte

const (
	BranchTransfer Branch = iota + 1
	BranchRewards
	BranchChurn
)

func (b Branch) String() string {
	switch b {
	case BranchTransfer:
		return "transfer"
	case BranchRewards:
		return "rewards"
	case BranchChurn:
		return "churn"
	}
	return "unknown"
}

// BranchOf classifies a message into its routing branch.
func BranchOf(msg Msg) Branch {
	switch msg.(type) {
	case InitiateReplica,
		ValidateTransfer,
		RegisterTransfer,
		PropagateTransfer,
		ValidateSectionPayout,
		RegisterSectionPayout,
		ReceiveValidation,
		ReceivePayoutValidation,
		GetReplicaKeys,
		GetBalance,
		GetHistory,
		GetReplicaEvents,
		GetStoreCost:
		return BranchTransfer
	case AddNewNode,
		SetNodeWallet,
		AddRelocatingNode,
		ActivateNodeRewards,
		DeactivateNode,
		GetNodeWallet:
		return BranchRewards
	case BeginElderChurn,
		SynchWalletHistory,
		ContinueWalletChurn:
		return BranchChurn
	}
	// Msg is sealed, so this is unreachable for decoded frames.
	panic(errors.Errorf("unclassified message %T", msg))
}

// Envelope the transport-level frame of one operation: the payload plus the
// id the sender minted and the node it came from. The messaging layer decodes
// a frame into an Envelope and hands it to Dispatcher.ProcessEnvelope.
type Envelope struct {
	ID     at2.MsgID
	Origin at2.NodeID
	Msg    Msg
}

// NewEnvelope mints an id and frames msg as sent by origin.
func NewEnvelope(msg Msg, origin at2.NodeID) (*Envelope, error) {
	id, err := at2.NewMsgID()
	if err != nil {
		return nil, errors.Wrap(err, "mint message id")
	}
	return &Envelope{ID: id, Origin: origin, Msg: msg}, nil
}

// WrapTransfer frames a transfer-branch operation. It refuses messages that
// route on another branch, so a caller cannot silently misroute an operation.
func WrapTransfer(msg Msg, origin at2.NodeID) (*Envelope, error) {
	return wrap(msg, origin, BranchTransfer)
}

// WrapRewards frames a rewards-branch operation.
func WrapRewards(msg Msg, origin at2.NodeID) (*Envelope, error) {
	return wrap(msg, origin, BranchRewards)
}

// WrapChurn frames a churn-branch operation.
func WrapChurn(msg Msg, origin at2.NodeID) (*Envelope, error) {
	return wrap(msg, origin, BranchChurn)
}

func wrap(msg Msg, origin at2.NodeID, branch Branch) (*Envelope, error) {
	if got := BranchOf(msg); got != branch {
		return nil, errors.Errorf("message %T routes on the %v branch, not %v", msg, got, branch)
	}
	return NewEnvelope(msg, origin)
}

// OutgoingMsg an outgoing artifact tied to the inbound message that caused
// it. CorrelationID is the inbound id, so the messaging layer can route the
// reply back to the originating exchange.
type OutgoingMsg struct {
	Outgoing
	CorrelationID at2.MsgID
}

// ProcessEnvelope executes one framed operation. Rejections are logged with
// the origin before being surfaced, since the caller on the wire only sees
// the error class.
func (d *Dispatcher) ProcessEnvelope(env *Envelope) (*OutgoingMsg, error) {
	out, err := d.Process(env.Msg)
	if err != nil {
		logger.Debug("operation rejected",
			"id", env.ID.AbbrevString(),
			"origin", env.Origin.AbbrevString(),
			"branch", BranchOf(env.Msg).String(),
			"err", err)
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	return &OutgoingMsg{Outgoing: *out, CorrelationID: env.ID}, nil
}
