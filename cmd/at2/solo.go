// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"fmt"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/at2net/at2/actor"
	"github.com/at2net/at2/at2"
	"github.com/at2net/at2/churn"
	"github.com/at2net/at2/duty"
	"github.com/at2net/at2/genesis"
	"github.com/at2net/at2/ledger"
	"github.com/at2net/at2/lvldb"
	"github.com/at2net/at2/replica"
	"github.com/at2net/at2/reward"
	"github.com/at2net/at2/transfer"
	"github.com/at2net/at2/tsig"
)

// soloSection an in-process section with synchronous message delivery,
// for demonstrating the full proposal/validation/agreement round locally.
type soloSection struct {
	set    *tsig.SecretKeySet
	elders []*duty.Dispatcher
}

func newSoloSection(n, threshold int, curve ledger.CostCurve) (*soloSection, func(), error) {
	set, proof, err := genesis.Bootstrap(threshold, n)
	if err != nil {
		return nil, nil, err
	}

	s := &soloSection{set: set}
	keys := churn.NewKeyHandle(set.PublicKeySet())
	elders := at2.Elders{Prefix: at2.RootPrefix(), Key: set.PublicKeySet().PublicKey()}
	var closers []func()

	for i, share := range set.KeyShares() {
		db, err := lvldb.NewMem()
		if err != nil {
			return nil, nil, err
		}
		rep, err := replica.New(share, keys, ledger.New(curve), at2.RootPrefix(), db)
		if err != nil {
			return nil, nil, err
		}

		proposer := i
		act := actor.New(share, rep, actor.Handlers{
			Broadcast: func(st *transfer.SignedTransfer) {
				s.deliver(proposer, duty.ValidateTransfer{Transfer: st})
			},
			BroadcastPayout: func(sts *transfer.SignedTransferShare) {
				s.deliver(proposer, duty.ValidateSectionPayout{Share: sts})
			},
		})
		closers = append(closers, act.Close)

		s.elders = append(s.elders, &duty.Dispatcher{
			Replica: rep,
			Actor:   act,
			Rewards: reward.New(act),
			Churn:   churn.NewCoordinator(keys, rep.Ledger(), reward.New(act), elders),
		})
	}

	for _, elder := range s.elders {
		if _, err := elder.Process(duty.PropagateTransfer{Credit: proof}); err != nil {
			return nil, nil, err
		}
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	return s, closeAll, nil
}

// deliver validates on every elder and routes endorsements and the
// resulting proof the way the messaging layer would.
func (s *soloSection) deliver(proposer int, validate duty.Msg) {
	for _, elder := range s.elders {
		out, err := elder.Process(validate)
		if err != nil {
			logger.Warn("validation rejected", "err", err)
			continue
		}
		back, err := s.elders[proposer].Process(duty.ReceiveValidation{Validated: out.Validated})
		if err != nil {
			logger.Warn("endorsement rejected", "err", err)
			continue
		}
		if back != nil && back.Proof != nil {
			for _, e := range s.elders {
				if _, err := e.Process(duty.RegisterTransfer{Proof: back.Proof}); err != nil {
					logger.Warn("register rejected", "err", err)
				}
			}
		}
	}
}

func (s *soloSection) balance(wallet at2.PublicKey) (at2.Token, error) {
	out, err := s.elders[0].Process(duty.GetBalance{Wallet: wallet})
	if err != nil {
		return 0, err
	}
	return *out.Response.Balance, nil
}

func soloAction(ctx *cli.Context) error {
	initLogger(ctx)
	initMetrics(ctx)

	curve, err := loadCurve(ctx)
	if err != nil {
		return err
	}
	s, closeAll, err := newSoloSection(ctx.Int(eldersFlag.Name), ctx.Int(thresholdFlag.Name), curve)
	if err != nil {
		return err
	}
	defer closeAll()

	alice, err := tsig.GenerateKeyPair()
	if err != nil {
		return err
	}
	bob, err := tsig.GenerateKeyPair()
	if err != nil {
		return err
	}

	// pay out from the section wallet, then move tokens between owners
	if err := s.elders[0].Actor.ProposePayout(alice.PublicKey(), at2.FromNano(1_000_000)); err != nil {
		return err
	}
	st, err := transfer.Sign(transfer.NewTransfer(alice.PublicKey(), bob.PublicKey(), at2.FromNano(300_000), 0), alice)
	if err != nil {
		return err
	}
	if err := s.elders[0].Actor.Propose(st); err != nil {
		return err
	}

	for name, wallet := range map[string]at2.PublicKey{
		"section": s.set.PublicKeySet().PublicKey(),
		"alice":   alice.PublicKey(),
		"bob":     bob.PublicKey(),
	} {
		balance, err := s.balance(wallet)
		if err != nil {
			return err
		}
		fmt.Printf("%-8s %v  %v\n", name, wallet.AbbrevString(), balance)
	}
	fmt.Printf("state hash: %v\n", s.elders[0].Replica.StateHash())
	return nil
}
