// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package duty

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/at2net/at2/at2"
	"github.com/at2net/at2/ledger"
)

func TestBranchOf(t *testing.T) {
	assert.Equal(t, BranchTransfer, BranchOf(GetBalance{}))
	assert.Equal(t, BranchTransfer, BranchOf(ReceivePayoutValidation{}))
	assert.Equal(t, BranchRewards, BranchOf(AddNewNode{}))
	assert.Equal(t, BranchChurn, BranchOf(BeginElderChurn{}))
}

func TestWrapRefusesWrongBranch(t *testing.T) {
	origin := at2.NodeID{7}

	env, err := WrapRewards(AddNewNode{ID: at2.NodeID{1}}, origin)
	require.Nil(t, err)
	assert.False(t, env.ID.IsZero())
	assert.Equal(t, origin, env.Origin)

	_, err = WrapRewards(GetBalance{}, origin)
	assert.Error(t, err)
	_, err = WrapTransfer(BeginElderChurn{}, origin)
	assert.Error(t, err)
	_, err = WrapChurn(AddNewNode{}, origin)
	assert.Error(t, err)
}

func TestProcessEnvelopeCorrelation(t *testing.T) {
	nw := newNetwork(t, 5, 3)
	k := newWallet(t)
	nw.fund(k.PublicKey(), at2.FromNano(50))
	origin := at2.NodeID{9}

	env, err := WrapTransfer(GetBalance{Wallet: k.PublicKey()}, origin)
	require.Nil(t, err)
	out, err := nw.elders[0].ProcessEnvelope(env)
	require.Nil(t, err)
	assert.Equal(t, env.ID, out.CorrelationID)
	assert.Equal(t, at2.FromNano(50), *out.Response.Balance)

	// rejections pass through with the component's error class intact
	env, err = WrapTransfer(GetBalance{Wallet: newWallet(t).PublicKey()}, origin)
	require.Nil(t, err)
	_, err = nw.elders[0].ProcessEnvelope(env)
	assert.True(t, ledger.IsUnknownAccount(err))

	// commands with no artifact return nothing
	env, err = WrapRewards(AddNewNode{ID: at2.NodeID{3}}, origin)
	require.Nil(t, err)
	out, err = nw.elders[0].ProcessEnvelope(env)
	require.Nil(t, err)
	assert.Nil(t, out)
}
