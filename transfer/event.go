// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package transfer

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/at2net/at2/at2"
)

// EventType tag of a replica event.
type EventType byte

// Replica event types.
const (
	EventValidated EventType = iota + 1
	EventRegistered
	EventPropagated
)

// ReplicaEvent one entry of the append-only event log a replica's ledger
// state is deterministically replayed from. Exactly one of the fields is set.
type ReplicaEvent struct {
	Validated  *TransferValidated      `rlp:"nil"`
	Registered *TransferAgreementProof `rlp:"nil"`
	Propagated *CreditAgreementProof   `rlp:"nil"`
}

// NewValidatedEvent wraps a local endorsement.
func NewValidatedEvent(tv *TransferValidated) *ReplicaEvent {
	return &ReplicaEvent{Validated: tv}
}

// NewRegisteredEvent wraps a committed transfer agreement.
func NewRegisteredEvent(p *TransferAgreementProof) *ReplicaEvent {
	return &ReplicaEvent{Registered: p}
}

// NewPropagatedEvent wraps a credit applied from another section.
func NewPropagatedEvent(p *CreditAgreementProof) *ReplicaEvent {
	return &ReplicaEvent{Propagated: p}
}

// Type returns the event's tag.
func (e *ReplicaEvent) Type() EventType {
	switch {
	case e.Validated != nil:
		return EventValidated
	case e.Registered != nil:
		return EventRegistered
	default:
		return EventPropagated
	}
}

// WellFormed checks that exactly one variant is set.
func (e *ReplicaEvent) WellFormed() error {
	n := 0
	if e.Validated != nil {
		n++
	}
	if e.Registered != nil {
		n++
	}
	if e.Propagated != nil {
		n++
	}
	if n != 1 {
		return errors.WithMessage(errMalformed, "replica event must carry exactly one variant")
	}
	return nil
}

// Encode serializes the event for the persisted log.
func (e *ReplicaEvent) Encode() ([]byte, error) {
	if err := e.WellFormed(); err != nil {
		return nil, err
	}
	return rlp.EncodeToBytes(e)
}

// DecodeEvent deserializes one persisted log entry.
func DecodeEvent(data []byte) (*ReplicaEvent, error) {
	var e ReplicaEvent
	if err := rlp.DecodeBytes(data, &e); err != nil {
		return nil, errors.Wrap(err, "decode replica event")
	}
	if err := e.WellFormed(); err != nil {
		return nil, err
	}
	return &e, nil
}

// String implements stringer.
func (e *ReplicaEvent) String() string {
	switch e.Type() {
	case EventValidated:
		return fmt.Sprintf("event{validated %v}", e.Validated.ID().AbbrevString())
	case EventRegistered:
		return fmt.Sprintf("event{registered %v}", e.Registered.ID().AbbrevString())
	default:
		return fmt.Sprintf("event{propagated %v}", e.Propagated.ID().AbbrevString())
	}
}

// HashEvents computes a deterministic digest over an ordered event sequence,
// used to compare replica logs during resynchronization.
func HashEvents(events []*ReplicaEvent) (at2.Bytes32, error) {
	data, err := rlp.EncodeToBytes(events)
	if err != nil {
		return at2.Bytes32{}, err
	}
	return at2.Blake2b(data), nil
}
