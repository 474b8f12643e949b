// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package at2

import "time"

// Constants of the section ledger protocol.
const (
	// MinRewardAge minimum node age to be eligible for reward payouts.
	MinRewardAge uint8 = 5

	// ChurnGraceWindow how long agreement proofs signed under the retired
	// section key keep being honored after an elder change completes.
	ChurnGraceWindow = 30 * time.Second

	// ProposalTimeout how long the section actor waits for a quorum of
	// signature shares before re-broadcasting a proposal.
	ProposalTimeout = 10 * time.Second
)

// GenesisAmount the credit minted into the genesis section wallet.
var GenesisAmount = Token(4_525_524_120 * NanoPerToken)
