// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package reward

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/at2net/at2/at2"
)

type recordingPayer struct {
	payouts []struct {
		wallet at2.PublicKey
		amount at2.Token
	}
}

func (p *recordingPayer) ProposePayout(wallet at2.PublicKey, amount at2.Token) error {
	p.payouts = append(p.payouts, struct {
		wallet at2.PublicKey
		amount at2.Token
	}{wallet, amount})
	return nil
}

func TestStageLifecycle(t *testing.T) {
	payer := &recordingPayer{}
	l := New(payer)
	node := at2.BytesToNodeID([]byte("n1"))
	wallet := at2.PublicKey{1}

	l.AddNode(node)
	stage, err := l.Stage(node)
	require.Nil(t, err)
	assert.Equal(t, AwaitingActivation, stage)

	require.Nil(t, l.SetWallet(node, wallet))
	stage, _ = l.Stage(node)
	assert.Equal(t, Active, stage)

	// wallet rotation is allowed while active
	require.Nil(t, l.SetWallet(node, at2.PublicKey{2}))

	require.Nil(t, l.Deactivate(node))
	stage, _ = l.Stage(node)
	assert.Equal(t, Deactivated, stage)

	// deactivation never reverses
	err = l.SetWallet(node, wallet)
	assert.True(t, IsStageViolation(err))
	stage, _ = l.Stage(node)
	assert.Equal(t, Deactivated, stage)
}

func TestIssuePayout(t *testing.T) {
	payer := &recordingPayer{}
	l := New(payer)
	node := at2.BytesToNodeID([]byte("n1"))
	wallet := at2.PublicKey{1}

	err := l.IssuePayout(node, at2.FromNano(10))
	assert.True(t, IsUnknownNode(err))

	l.AddNode(node)
	err = l.IssuePayout(node, at2.FromNano(10))
	assert.True(t, IsStageViolation(err))

	require.Nil(t, l.SetWallet(node, wallet))
	require.Nil(t, l.IssuePayout(node, at2.FromNano(10)))
	require.Len(t, payer.payouts, 1)
	assert.Equal(t, wallet, payer.payouts[0].wallet)
	assert.Equal(t, at2.FromNano(10), payer.payouts[0].amount)

	// a deactivated node never gets paid, and nothing reaches the payer
	require.Nil(t, l.Deactivate(node))
	err = l.IssuePayout(node, at2.FromNano(10))
	assert.True(t, IsStageViolation(err))
	assert.Len(t, payer.payouts, 1)
}

func TestRelocateInheritsEligibility(t *testing.T) {
	payer := &recordingPayer{}
	l := New(payer)
	oldID := at2.BytesToNodeID([]byte("old"))
	newID := at2.BytesToNodeID([]byte("new"))
	wallet := at2.PublicKey{1}

	l.AddNode(oldID)
	require.Nil(t, l.SetWallet(oldID, wallet))

	l.Relocate(oldID, newID, at2.MinRewardAge)

	_, err := l.Stage(oldID)
	assert.True(t, IsUnknownNode(err))

	stage, err := l.Stage(newID)
	require.Nil(t, err)
	assert.Equal(t, Active, stage)

	got, err := l.Wallet(newID)
	require.Nil(t, err)
	assert.Equal(t, wallet, got)
}

func TestRelocateBelowMinAge(t *testing.T) {
	l := New(&recordingPayer{})
	oldID := at2.BytesToNodeID([]byte("old"))
	newID := at2.BytesToNodeID([]byte("new"))

	l.AddNode(oldID)
	require.Nil(t, l.SetWallet(oldID, at2.PublicKey{1}))

	l.Relocate(oldID, newID, at2.MinRewardAge-1)

	stage, err := l.Stage(newID)
	require.Nil(t, err)
	assert.Equal(t, AwaitingActivation, stage)

	// too young to activate even with a wallet id from the previous section
	err = l.Activate(newID, at2.PublicKey{2})
	assert.True(t, IsStageViolation(err))
}

func TestRelocateKeepsDeactivatedTerminal(t *testing.T) {
	l := New(&recordingPayer{})
	oldID := at2.BytesToNodeID([]byte("old"))
	newID := at2.BytesToNodeID([]byte("new"))

	l.AddNode(oldID)
	require.Nil(t, l.SetWallet(oldID, at2.PublicKey{1}))
	require.Nil(t, l.Deactivate(oldID))

	// the age reset must not revive a terminally dropped node
	l.Relocate(oldID, newID, at2.MinRewardAge-1)

	stage, err := l.Stage(newID)
	require.Nil(t, err)
	assert.Equal(t, Deactivated, stage)

	err = l.SetWallet(newID, at2.PublicKey{2})
	assert.True(t, IsStageViolation(err))
	err = l.IssuePayout(newID, at2.FromNano(1))
	assert.True(t, IsStageViolation(err))
}

func TestPartitionBy(t *testing.T) {
	l := New(&recordingPayer{})

	low := at2.NodeID{0x00, 1}
	high := at2.NodeID{0x80, 1}
	l.AddNode(low)
	l.AddNode(high)

	left := l.PartitionBy(at2.RootPrefix().Extend(0), &recordingPayer{})
	right := l.PartitionBy(at2.RootPrefix().Extend(1), &recordingPayer{})

	assert.Equal(t, []at2.NodeID{low}, left.Nodes())
	assert.Equal(t, []at2.NodeID{high}, right.Nodes())
}
