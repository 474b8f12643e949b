// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package duty defines the typed operation surface of a transfer elder and
// routes each operation to the component responsible for it. The message
// set is closed; the messaging layer decodes into these types and hands
// them to a Dispatcher.
package duty

import (
	"github.com/at2net/at2/at2"
	"github.com/at2net/at2/transfer"
	"github.com/at2net/at2/tsig"
)

// Msg a single elder operation. Sealed: only this package's types satisfy it.
type Msg interface {
	isMsg()
}

// InitiateReplica bootstraps a fresh replica from a peer's full event log.
type InitiateReplica struct {
	Events []*transfer.ReplicaEvent
}

// ValidateTransfer asks the replica to endorse an owner transfer proposal.
// The endorsement is returned to the proposing actor.
type ValidateTransfer struct {
	Transfer *transfer.SignedTransfer
}

// RegisterTransfer commits an agreement proof to the replica's ledger.
type RegisterTransfer struct {
	Proof *transfer.TransferAgreementProof
}

// PropagateTransfer applies a credit proof produced by another section.
type PropagateTransfer struct {
	Credit *transfer.CreditAgreementProof
}

// ValidateSectionPayout asks the replica to endorse a payout debiting the
// section's own wallet.
type ValidateSectionPayout struct {
	Share *transfer.SignedTransferShare
}

// RegisterSectionPayout commits an agreed section-wallet payout.
type RegisterSectionPayout struct {
	Proof *transfer.TransferAgreementProof
}

// ReceiveValidation returns one replica's endorsement to the section actor.
type ReceiveValidation struct {
	Validated *transfer.TransferValidated
}

// GetReplicaKeys queries the section key and prefix the replica serves.
type GetReplicaKeys struct{}

// GetBalance queries an account balance.
type GetBalance struct {
	Wallet at2.PublicKey
}

// GetHistory queries an account's history entries from SinceVersion on.
type GetHistory struct {
	Wallet       at2.PublicKey
	SinceVersion int
}

// GetReplicaEvents queries the full replica event log.
type GetReplicaEvents struct{}

// GetStoreCost queries the current cost of storing Bytes bytes.
type GetStoreCost struct {
	Requester at2.PublicKey
	Bytes     uint64
}

// AddNewNode starts reward tracking for a node that joined the section.
type AddNewNode struct {
	ID at2.NodeID
}

// SetNodeWallet binds the payout wallet of a first-joined node.
type SetNodeWallet struct {
	ID     at2.NodeID
	Wallet at2.PublicKey
}

// AddRelocatingNode moves reward tracking to a node's id in this section
// after it relocated here.
type AddRelocatingNode struct {
	OldID at2.NodeID
	NewID at2.NodeID
	Age   uint8
}

// ActivateNodeRewards binds the wallet reported by the node's previous
// section, completing a relocation.
type ActivateNodeRewards struct {
	ID     at2.NodeID
	Wallet at2.PublicKey
}

// DeactivateNode terminally drops a node from payout rounds.
type DeactivateNode struct {
	ID at2.NodeID
}

// ReceivePayoutValidation returns one replica's endorsement of a section
// payout to the actor.
type ReceivePayoutValidation struct {
	Validated *transfer.TransferValidated
}

// GetNodeWallet queries the wallet bound to a node, asked by the section the
// node relocated to.
type GetNodeWallet struct {
	ID at2.NodeID
}

// BeginElderChurn freezes new proposals and starts migrating authority to a
// new elder constellation.
type BeginElderChurn struct {
	Elders  at2.Elders
	LevelUp bool
}

// SynchWalletHistory installs one account's wallet history received from an
// outgoing elder during churn.
type SynchWalletHistory struct {
	Wallet  at2.PublicKey
	History *transfer.WalletHistory
}

// ContinueWalletChurn publishes the new section key set, concluding a churn.
type ContinueWalletChurn struct {
	Previous at2.PublicKey
	NewSet   *tsig.PublicKeySet
}

func (InitiateReplica) isMsg()         {}
func (ValidateTransfer) isMsg()        {}
func (RegisterTransfer) isMsg()        {}
func (PropagateTransfer) isMsg()       {}
func (ValidateSectionPayout) isMsg()   {}
func (RegisterSectionPayout) isMsg()   {}
func (ReceiveValidation) isMsg()       {}
func (GetReplicaKeys) isMsg()          {}
func (GetBalance) isMsg()              {}
func (GetHistory) isMsg()              {}
func (GetReplicaEvents) isMsg()        {}
func (GetStoreCost) isMsg()            {}
func (AddNewNode) isMsg()              {}
func (SetNodeWallet) isMsg()           {}
func (AddRelocatingNode) isMsg()       {}
func (ActivateNodeRewards) isMsg()     {}
func (DeactivateNode) isMsg()          {}
func (ReceivePayoutValidation) isMsg() {}
func (GetNodeWallet) isMsg()           {}
func (BeginElderChurn) isMsg()         {}
func (SynchWalletHistory) isMsg()      {}
func (ContinueWalletChurn) isMsg()     {}

// ReplicaKeys the answer to GetReplicaKeys.
type ReplicaKeys struct {
	Prefix at2.Prefix
	Key    at2.PublicKey
}

// Response the answer to a query message. Exactly one field is set.
type Response struct {
	Keys       *ReplicaKeys
	Balance    *at2.Token
	History    []transfer.HistoryEntry
	Events     []*transfer.ReplicaEvent
	StoreCost  *at2.Token
	NodeWallet *at2.PublicKey
}

// Outgoing what processing a message hands back to the messaging layer:
// an endorsement for the proposing actor, an agreement proof for the
// section's replicas, or a query response for the asking client.
// At most one field is set.
type Outgoing struct {
	Validated *transfer.TransferValidated
	Proof     *transfer.TransferAgreementProof
	Response  *Response
}
