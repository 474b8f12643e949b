// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package churn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/at2net/at2/at2"
	"github.com/at2net/at2/ledger"
	"github.com/at2net/at2/reward"
	"github.com/at2net/at2/transfer"
	"github.com/at2net/at2/tsig"
)

type nopPayer struct{}

func (nopPayer) ProposePayout(at2.PublicKey, at2.Token) error { return nil }

func newKeySet(t *testing.T) *tsig.PublicKeySet {
	sks, err := tsig.NewSecretKeySet(3, 5)
	require.Nil(t, err)
	return sks.PublicKeySet()
}

func newCoordinator(t *testing.T) (*Coordinator, *time.Time) {
	now := time.Now()
	handle := NewKeyHandle(newKeySet(t))
	handle.now = func() time.Time { return now }

	co := NewCoordinator(handle, ledger.New(ledger.DefaultCurve()), reward.New(nopPayer{}), at2.Elders{})
	return co, &now
}

func TestKeyHandleGraceWindow(t *testing.T) {
	co, now := newCoordinator(t)
	handle := co.Handle()
	oldKey := handle.SectionKey()

	assert.Nil(t, handle.AcceptsKey(oldKey))
	assert.True(t, IsStaleSectionKey(handle.AcceptsKey(at2.PublicKey{9})))

	require.Nil(t, co.BeginChurn(at2.Elders{}, false))
	newSet := newKeySet(t)
	require.Nil(t, co.Complete(oldKey, newSet))

	// inside the grace window both keys verify
	assert.Nil(t, handle.AcceptsKey(newSet.PublicKey()))
	assert.Nil(t, handle.AcceptsKey(oldKey))

	// past the deadline the retired key is permanently rejected
	*now = now.Add(at2.ChurnGraceWindow + time.Second)
	assert.Nil(t, handle.AcceptsKey(newSet.PublicKey()))
	assert.True(t, IsStaleSectionKey(handle.AcceptsKey(oldKey)))
}

func TestProposalsFrozenDuringChurn(t *testing.T) {
	co, _ := newCoordinator(t)
	handle := co.Handle()
	oldKey := handle.SectionKey()

	assert.Nil(t, handle.ProposalsOpen())

	require.Nil(t, co.BeginChurn(at2.Elders{}, true))
	assert.True(t, IsChurnInProgress(handle.ProposalsOpen()))

	require.Nil(t, co.SyncWalletHistory(at2.PublicKey{1}, &transfer.WalletHistory{}))
	assert.Equal(t, AwaitingWalletSync, co.State())

	require.Nil(t, co.Complete(oldKey, newKeySet(t)))
	assert.Nil(t, handle.ProposalsOpen())
	assert.Equal(t, Stable, co.State())
}

func TestTransitionOrderEnforced(t *testing.T) {
	co, _ := newCoordinator(t)
	oldKey := co.Handle().SectionKey()

	assert.True(t, IsBadTransition(co.Complete(oldKey, newKeySet(t))))
	assert.True(t, IsBadTransition(co.SyncWalletHistory(at2.PublicKey{1}, &transfer.WalletHistory{})))

	require.Nil(t, co.BeginChurn(at2.Elders{}, true))
	assert.True(t, IsBadTransition(co.BeginChurn(at2.Elders{}, true)))

	// completing with a mismatched previous key is refused
	assert.True(t, IsBadTransition(co.Complete(at2.PublicKey{9}, newKeySet(t))))
}

func TestSplitPartitionsState(t *testing.T) {
	co, _ := newCoordinator(t)
	oldKey := co.Handle().SectionKey()

	lowNode := at2.NodeID{0x00, 1}
	highNode := at2.NodeID{0x80, 1}
	co.Rewards().AddNode(lowNode)
	co.Rewards().AddNode(highNode)

	// find wallet keys landing on distinct sides of the split
	var lowKey, highKey at2.PublicKey
	for i := byte(1); lowKey.IsZero() || highKey.IsZero(); i++ {
		key := at2.PublicKey{i}
		if key.Name()[0]&0x80 == 0 {
			lowKey = key
		} else {
			highKey = key
		}
	}
	require.Nil(t, co.Ledger().ApplyCredit(&transfer.CreditAgreementProof{
		Credit: transfer.Credit{ID: at2.Bytes32{1}, To: lowKey, Amount: at2.FromNano(10)},
	}))
	require.Nil(t, co.Ledger().ApplyCredit(&transfer.CreditAgreementProof{
		Credit: transfer.Credit{ID: at2.Bytes32{2}, To: highKey, Amount: at2.FromNano(20)},
	}))

	require.Nil(t, co.BeginChurn(at2.Elders{}, true))

	leftElders := at2.Elders{Prefix: at2.RootPrefix().Extend(0)}
	rightElders := at2.Elders{Prefix: at2.RootPrefix().Extend(1)}
	left, right, err := co.Split(leftElders, rightElders, newKeySet(t), newKeySet(t), nopPayer{}, nopPayer{})
	require.Nil(t, err)

	// accounts and nodes land on exactly one side
	balance, err := left.Ledger().Balance(lowKey)
	require.Nil(t, err)
	assert.Equal(t, at2.FromNano(10), balance)
	_, err = left.Ledger().Balance(highKey)
	assert.True(t, ledger.IsUnknownAccount(err))

	balance, err = right.Ledger().Balance(highKey)
	require.Nil(t, err)
	assert.Equal(t, at2.FromNano(20), balance)

	assert.Equal(t, []at2.NodeID{lowNode}, left.Rewards().Nodes())
	assert.Equal(t, []at2.NodeID{highNode}, right.Rewards().Nodes())

	// both children honor the pre-split key within grace
	assert.Nil(t, left.Handle().AcceptsKey(oldKey))
	assert.Nil(t, right.Handle().AcceptsKey(oldKey))
	assert.Equal(t, Stable, left.State())
}
