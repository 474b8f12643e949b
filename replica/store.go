// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package replica

import (
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"

	"github.com/at2net/at2/kv"
	"github.com/at2net/at2/transfer"
)

const eventBucket = kv.Bucket("replica-events-")

// EventStore the append-only persisted replica event log, readable from
// genesis to support full replay. Appends may come from concurrent
// operations on different accounts, so index assignment is serialized here.
type EventStore struct {
	store kv.GetPutter

	mu    sync.Mutex
	count uint64
}

// OpenEventStore opens the log stored on src, counting existing entries.
func OpenEventStore(src kv.GetPutter) (*EventStore, error) {
	s := &EventStore{store: eventBucket.NewStore(src)}

	it := s.store.NewIterator(kv.Range{})
	defer it.Release()
	for it.Next() {
		s.count++
	}
	if err := it.Error(); err != nil {
		return nil, errors.Wrap(err, "open event store")
	}
	return s, nil
}

func eventKey(index uint64) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], index)
	return key[:]
}

// Append persists one event at the next log index.
func (s *EventStore) Append(ev *transfer.ReplicaEvent) error {
	data, err := ev.Encode()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Put(eventKey(s.count), data); err != nil {
		return errors.Wrap(err, "append event")
	}
	s.count++
	return nil
}

// Len returns the number of persisted events.
func (s *EventStore) Len() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// All returns the full ordered event log.
func (s *EventStore) All() ([]*transfer.ReplicaEvent, error) {
	events := make([]*transfer.ReplicaEvent, 0, s.Len())

	it := s.store.NewIterator(kv.Range{})
	defer it.Release()
	for it.Next() {
		ev, err := transfer.DecodeEvent(it.Value())
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := it.Error(); err != nil {
		return nil, errors.Wrap(err, "read event log")
	}
	return events, nil
}
