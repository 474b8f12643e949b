// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package replica

import (
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/at2net/at2/at2"
	"github.com/at2net/at2/kv"
	"github.com/at2net/at2/ledger"
	"github.com/at2net/at2/lvldb"
	"github.com/at2net/at2/transfer"
)

func testEvent(n byte) *transfer.ReplicaEvent {
	return transfer.NewPropagatedEvent(&transfer.CreditAgreementProof{
		Credit: transfer.Credit{ID: at2.Blake2b([]byte{n})},
	})
}

func TestConcurrentAppendsLoseNoEntry(t *testing.T) {
	db, err := lvldb.NewMem()
	require.Nil(t, err)
	s, err := OpenEventStore(db)
	require.Nil(t, err)

	const n = 64
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Append(testEvent(byte(i)))
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.Nil(t, err)
	}

	assert.Equal(t, uint64(n), s.Len())
	events, err := s.All()
	require.Nil(t, err)
	require.Len(t, events, n)

	seen := make(map[at2.Bytes32]bool)
	for _, ev := range events {
		seen[ev.Propagated.Credit.ID] = true
	}
	assert.Len(t, seen, n)
}

func TestAppendKeepsInsertionOrder(t *testing.T) {
	db, err := lvldb.NewMem()
	require.Nil(t, err)
	s, err := OpenEventStore(db)
	require.Nil(t, err)

	for i := byte(0); i < 3; i++ {
		require.Nil(t, s.Append(testEvent(i)))
	}
	events, err := s.All()
	require.Nil(t, err)
	require.Len(t, events, 3)
	for i := byte(0); i < 3; i++ {
		assert.Equal(t, at2.Blake2b([]byte{i}), events[i].Propagated.Credit.ID)
	}
}

// faultyStore injects Put failures to exercise append error paths.
type faultyStore struct {
	kv.GetPutter
	fail bool
}

func (f *faultyStore) Put(key, val []byte) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.GetPutter.Put(key, val)
}

func TestAppendFailureLeavesLedgerUntouched(t *testing.T) {
	s := newSection(t, 5, 3)
	db, err := lvldb.NewMem()
	require.Nil(t, err)
	faulty := &faultyStore{GetPutter: db}
	rep, err := New(s.shares[0], s.keys, ledger.New(ledger.DefaultCurve()), at2.RootPrefix(), faulty)
	require.Nil(t, err)

	k := newWallet(t)
	k2 := newWallet(t)
	_, err = rep.Propagate(s.grant(t, k.PublicKey(), at2.FromNano(100)))
	require.Nil(t, err)

	// a credit whose event cannot be logged never lands
	faulty.fail = true
	_, err = rep.Propagate(s.grant(t, k2.PublicKey(), at2.FromNano(50)))
	assert.NotNil(t, err)
	_, err = rep.Ledger().Balance(k2.PublicKey())
	assert.True(t, ledger.IsUnknownAccount(err))

	// same for a committed transfer: the debit stays unapplied
	s.fund(t, k.PublicKey(), at2.FromNano(100))
	proof := s.agree(t, signedTransfer(t, k, k2.PublicKey(), at2.FromNano(10), 0))
	_, err = rep.Register(proof)
	assert.NotNil(t, err)
	balance, err := rep.Ledger().Balance(k.PublicKey())
	require.Nil(t, err)
	assert.Equal(t, at2.FromNano(100), balance)

	// once the store heals the identical proof lands
	faulty.fail = false
	ev, err := rep.Register(proof)
	require.Nil(t, err)
	require.NotNil(t, ev)

	// and a restart replaying the persisted log agrees with live state
	reopened, err := New(s.shares[0], s.keys, ledger.New(ledger.DefaultCurve()), at2.RootPrefix(), faulty)
	require.Nil(t, err)
	assert.Equal(t, rep.StateHash(), reopened.StateHash())
}
