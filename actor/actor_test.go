// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package actor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/at2net/at2/at2"
	"github.com/at2net/at2/churn"
	"github.com/at2net/at2/ledger"
	"github.com/at2net/at2/lvldb"
	"github.com/at2net/at2/replica"
	"github.com/at2net/at2/transfer"
	"github.com/at2net/at2/tsig"
)

type section struct {
	set    *tsig.SecretKeySet
	shares []*tsig.SecretKeyShare
	keys   *churn.KeyHandle
	reps   []*replica.Replica

	creditSeq byte
}

func newSection(t *testing.T, n, threshold int, prefix at2.Prefix) *section {
	set, err := tsig.NewSecretKeySet(threshold, n)
	require.Nil(t, err)

	s := &section{
		set:    set,
		shares: set.KeyShares(),
		keys:   churn.NewKeyHandle(set.PublicKeySet()),
	}
	for i := 0; i < n; i++ {
		db, err := lvldb.NewMem()
		require.Nil(t, err)
		rep, err := replica.New(s.shares[i], s.keys, ledger.New(ledger.DefaultCurve()), prefix, db)
		require.Nil(t, err)
		s.reps = append(s.reps, rep)
	}
	return s
}

func (s *section) fund(t *testing.T, to at2.PublicKey, amount at2.Token) {
	s.creditSeq++
	credit := transfer.Credit{ID: at2.Blake2b([]byte{s.creditSeq}), To: to, Amount: amount}

	hash := credit.Hash()
	threshold := s.set.PublicKeySet().Threshold()
	shares := make([]tsig.SignatureShare, 0, threshold)
	for _, keyShare := range s.shares[:threshold] {
		sig, err := keyShare.Sign(hash.Bytes())
		require.Nil(t, err)
		shares = append(shares, sig)
	}
	sig, err := s.set.PublicKeySet().Combine(hash.Bytes(), shares)
	require.Nil(t, err)

	p := &transfer.CreditAgreementProof{Credit: credit, SectionKey: s.set.PublicKeySet().PublicKey(), Sig: sig}
	for _, rep := range s.reps {
		_, err := rep.Propagate(p)
		require.Nil(t, err)
	}
}

// newActor wires the actor's broadcasts straight into the section's replicas
// and the resulting endorsements back into the actor, standing in for the
// messaging layer.
func (s *section) newActor(t *testing.T, extra Handlers) *SectionActor {
	var a *SectionActor
	handlers := Handlers{
		Broadcast: func(st *transfer.SignedTransfer) {
			if extra.Broadcast != nil {
				extra.Broadcast(st)
			}
			for _, rep := range s.reps {
				tv, err := rep.Validate(st)
				require.Nil(t, err)
				_, err = a.ReceiveValidation(tv)
				require.Nil(t, err)
			}
		},
		BroadcastPayout: func(sts *transfer.SignedTransferShare) {
			if extra.BroadcastPayout != nil {
				extra.BroadcastPayout(sts)
			}
			for _, rep := range s.reps {
				tv, err := rep.ValidateSectionPayout(sts)
				require.Nil(t, err)
				_, err = a.ReceiveValidation(tv)
				require.Nil(t, err)
			}
		},
		OnProof:       extra.OnProof,
		ForwardCredit: extra.ForwardCredit,
	}
	a = New(s.shares[0], s.reps[0], handlers)
	return a
}

func newWallet(t *testing.T) *tsig.KeyPair {
	kp, err := tsig.GenerateKeyPair()
	require.Nil(t, err)
	return kp
}

func signedTransfer(t *testing.T, from *tsig.KeyPair, to at2.PublicKey, amount at2.Token, seq uint64) *transfer.SignedTransfer {
	st, err := transfer.Sign(transfer.NewTransfer(from.PublicKey(), to, amount, seq), from)
	require.Nil(t, err)
	return st
}

func TestProposeToAgreement(t *testing.T) {
	s := newSection(t, 5, 3, at2.RootPrefix())
	k := newWallet(t)
	k2 := newWallet(t)
	s.fund(t, k.PublicKey(), at2.FromNano(1000))

	var proofs []*transfer.TransferAgreementProof
	a := s.newActor(t, Handlers{
		OnProof: func(p *transfer.TransferAgreementProof) { proofs = append(proofs, p) },
	})
	defer a.Close()

	require.Nil(t, a.Propose(signedTransfer(t, k, k2.PublicKey(), at2.FromNano(300), 0)))

	require.Len(t, proofs, 1)
	require.Nil(t, proofs[0].Verify())
	assert.Equal(t, 0, a.Pending())

	balance, err := a.local.Ledger().Balance(k.PublicKey())
	require.Nil(t, err)
	assert.Equal(t, at2.FromNano(700), balance)
	balance, err = a.local.Ledger().Balance(k2.PublicKey())
	require.Nil(t, err)
	assert.Equal(t, at2.FromNano(300), balance)

	hist, err := a.local.Ledger().History(k.PublicKey(), 0)
	require.Nil(t, err)
	assert.Len(t, hist, 2)
}

func TestProposeDedup(t *testing.T) {
	s := newSection(t, 5, 3, at2.RootPrefix())
	k := newWallet(t)
	k2 := newWallet(t)
	s.fund(t, k.PublicKey(), at2.FromNano(100))

	broadcasts := 0
	a := s.newActor(t, Handlers{
		Broadcast: func(*transfer.SignedTransfer) { broadcasts++ },
	})
	defer a.Close()

	st := signedTransfer(t, k, k2.PublicKey(), at2.FromNano(10), 0)
	require.Nil(t, a.Propose(st))
	assert.Equal(t, 1, broadcasts)

	// the transfer is already agreed, so re-proposing does nothing
	require.Nil(t, a.Propose(st))
	assert.Equal(t, 1, broadcasts)
}

func TestQuorumNeedsDistinctSigners(t *testing.T) {
	s := newSection(t, 5, 3, at2.RootPrefix())
	k := newWallet(t)
	k2 := newWallet(t)
	s.fund(t, k.PublicKey(), at2.FromNano(100))

	// swallow the broadcast so endorsements can be fed by hand
	a := New(s.shares[0], s.reps[0], Handlers{Broadcast: func(*transfer.SignedTransfer) {}})
	defer a.Close()

	st := signedTransfer(t, k, k2.PublicKey(), at2.FromNano(10), 0)
	require.Nil(t, a.Propose(st))

	tv, err := s.reps[1].Validate(st)
	require.Nil(t, err)

	// the same endorsement repeated never reaches quorum
	for i := 0; i < 5; i++ {
		proof, err := a.ReceiveValidation(tv)
		require.Nil(t, err)
		assert.Nil(t, proof)
	}
	assert.Equal(t, 1, a.Pending())

	// two more distinct signers complete it
	for _, rep := range []*replica.Replica{s.reps[2], s.reps[3]} {
		tv, err := rep.Validate(st)
		require.Nil(t, err)
		_, err = a.ReceiveValidation(tv)
		require.Nil(t, err)
	}
	assert.Equal(t, 0, a.Pending())

	// a late endorsement returns the cached proof
	late, err := s.reps[4].Validate(st)
	require.Nil(t, err)
	proof, err := a.ReceiveValidation(late)
	require.Nil(t, err)
	require.NotNil(t, proof)
	require.Nil(t, proof.Verify())
}

func TestStaleKeyEndorsementRejected(t *testing.T) {
	s := newSection(t, 5, 3, at2.RootPrefix())
	k := newWallet(t)
	k2 := newWallet(t)
	s.fund(t, k.PublicKey(), at2.FromNano(100))

	a := New(s.shares[0], s.reps[0], Handlers{Broadcast: func(*transfer.SignedTransfer) {}})
	defer a.Close()

	other := newSection(t, 5, 3, at2.RootPrefix())
	other.fund(t, k.PublicKey(), at2.FromNano(100))

	st := signedTransfer(t, k, k2.PublicKey(), at2.FromNano(10), 0)
	require.Nil(t, a.Propose(st))

	tv, err := other.reps[0].Validate(st)
	require.Nil(t, err)
	_, err = a.ReceiveValidation(tv)
	assert.True(t, churn.IsStaleSectionKey(err))
}

func TestCrossSectionCreditForwarded(t *testing.T) {
	k := newWallet(t)
	name := k.PublicKey().Name()
	home := at2.RootPrefix().Extend(name[0] >> 7)

	s := newSection(t, 5, 3, home)
	s.fund(t, k.PublicKey(), at2.FromNano(100))

	// a recipient on the other side of the split
	var outsider *tsig.KeyPair
	for {
		outsider = newWallet(t)
		if !home.Matches(outsider.PublicKey().Name()) {
			break
		}
	}

	var forwarded []*transfer.CreditAgreementProof
	a := s.newActor(t, Handlers{
		ForwardCredit: func(p *transfer.CreditAgreementProof) { forwarded = append(forwarded, p) },
	})
	defer a.Close()

	require.Nil(t, a.Propose(signedTransfer(t, k, outsider.PublicKey(), at2.FromNano(40), 0)))

	require.Len(t, forwarded, 1)
	require.Nil(t, forwarded[0].Verify())
	assert.Equal(t, outsider.PublicKey(), forwarded[0].Credit.To)

	// debit applied locally, credit not (it belongs to the other section)
	balance, err := a.local.Ledger().Balance(k.PublicKey())
	require.Nil(t, err)
	assert.Equal(t, at2.FromNano(60), balance)
	_, err = a.local.Ledger().Balance(outsider.PublicKey())
	assert.True(t, ledger.IsUnknownAccount(err))
}

func TestPayoutFromSectionWallet(t *testing.T) {
	s := newSection(t, 5, 3, at2.RootPrefix())
	sectionWallet := s.set.PublicKeySet().PublicKey()
	node := newWallet(t)
	s.fund(t, sectionWallet, at2.FromNano(1000))

	var proofs []*transfer.TransferAgreementProof
	a := s.newActor(t, Handlers{
		OnProof: func(p *transfer.TransferAgreementProof) { proofs = append(proofs, p) },
	})
	defer a.Close()

	require.Nil(t, a.ProposePayout(node.PublicKey(), at2.FromNano(100)))

	require.Len(t, proofs, 1)
	require.Nil(t, proofs[0].VerifySectionPayout())

	balance, err := a.local.Ledger().Balance(node.PublicKey())
	require.Nil(t, err)
	assert.Equal(t, at2.FromNano(100), balance)
	balance, err = a.local.Ledger().Balance(sectionWallet)
	require.Nil(t, err)
	assert.Equal(t, at2.FromNano(900), balance)
}
