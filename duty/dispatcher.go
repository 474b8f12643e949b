// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package duty

import (
	"github.com/pkg/errors"

	"github.com/at2net/at2/actor"
	"github.com/at2net/at2/churn"
	"github.com/at2net/at2/log"
	"github.com/at2net/at2/replica"
	"github.com/at2net/at2/reward"
	"github.com/at2net/at2/transfer"
)

var logger = log.WithContext("pkg", "duty")

// Dispatcher routes elder operations to the node's transfer components.
// One per elder node; all fields are required.
type Dispatcher struct {
	Replica *replica.Replica
	Actor   *actor.SectionActor
	Rewards *reward.Ledger
	Churn   *churn.Coordinator
}

// Process executes one operation and returns at most one outgoing artifact.
// Errors carry the component's error taxonomy unchanged, so callers can
// classify them with the components' Is helpers.
func (d *Dispatcher) Process(msg Msg) (*Outgoing, error) {
	switch m := msg.(type) {
	case InitiateReplica:
		return nil, d.Replica.Replay(m.Events)

	case ValidateTransfer:
		tv, err := d.Replica.Validate(m.Transfer)
		if err != nil {
			return nil, err
		}
		return &Outgoing{Validated: tv}, nil

	case RegisterTransfer:
		_, err := d.Replica.Register(m.Proof)
		return nil, err

	case PropagateTransfer:
		_, err := d.Replica.Propagate(m.Credit)
		return nil, err

	case ValidateSectionPayout:
		tv, err := d.Replica.ValidateSectionPayout(m.Share)
		if err != nil {
			return nil, err
		}
		return &Outgoing{Validated: tv}, nil

	case RegisterSectionPayout:
		_, err := d.Replica.Register(m.Proof)
		return nil, err

	case ReceiveValidation:
		return d.receiveValidation(m.Validated)

	case ReceivePayoutValidation:
		return d.receiveValidation(m.Validated)

	case GetReplicaKeys:
		return respond(&Response{Keys: &ReplicaKeys{
			Prefix: d.Replica.Prefix(),
			Key:    d.Replica.KeyHandle().SectionKey(),
		}}), nil

	case GetBalance:
		balance, err := d.Replica.Ledger().Balance(m.Wallet)
		if err != nil {
			return nil, err
		}
		return respond(&Response{Balance: &balance}), nil

	case GetHistory:
		hist, err := d.Replica.Ledger().History(m.Wallet, m.SinceVersion)
		if err != nil {
			return nil, err
		}
		return respond(&Response{History: hist}), nil

	case GetReplicaEvents:
		events, err := d.Replica.Events()
		if err != nil {
			return nil, err
		}
		return respond(&Response{Events: events}), nil

	case GetStoreCost:
		cost := d.Replica.Ledger().StoreCost(m.Requester, m.Bytes)
		return respond(&Response{StoreCost: &cost}), nil

	case AddNewNode:
		d.Rewards.AddNode(m.ID)
		return nil, nil

	case SetNodeWallet:
		return nil, d.Rewards.SetWallet(m.ID, m.Wallet)

	case AddRelocatingNode:
		d.Rewards.Relocate(m.OldID, m.NewID, m.Age)
		return nil, nil

	case ActivateNodeRewards:
		return nil, d.Rewards.Activate(m.ID, m.Wallet)

	case DeactivateNode:
		return nil, d.Rewards.Deactivate(m.ID)

	case GetNodeWallet:
		wallet, err := d.Rewards.Wallet(m.ID)
		if err != nil {
			return nil, err
		}
		return respond(&Response{NodeWallet: &wallet}), nil

	case BeginElderChurn:
		return nil, d.Churn.BeginChurn(m.Elders, m.LevelUp)

	case SynchWalletHistory:
		return nil, d.Churn.SyncWalletHistory(m.Wallet, m.History)

	case ContinueWalletChurn:
		return nil, d.Churn.Complete(m.Previous, m.NewSet)

	default:
		return nil, errors.Errorf("unhandled message %T", msg)
	}
}

func (d *Dispatcher) receiveValidation(tv *transfer.TransferValidated) (*Outgoing, error) {
	proof, err := d.Actor.ReceiveValidation(tv)
	if err != nil {
		return nil, err
	}
	if proof == nil {
		return nil, nil
	}
	logger.Debug("agreement reached", "id", proof.ID().AbbrevString())
	return &Outgoing{Proof: proof}, nil
}

func respond(r *Response) *Outgoing {
	return &Outgoing{Response: r}
}
