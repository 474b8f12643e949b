// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package genesis builds the first credit of the network: the supply minted
// into the genesis section's own wallet, agreed by the genesis elders the
// same way every later transfer is.
package genesis

import (
	"github.com/pkg/errors"

	"github.com/at2net/at2/at2"
	"github.com/at2net/at2/log"
	"github.com/at2net/at2/transfer"
	"github.com/at2net/at2/tsig"
)

var logger = log.WithContext("pkg", "genesis")

var errInsufficientQuorum = errors.New("insufficient quorum")

// IsInsufficientQuorum returns whether err indicates the proposal is still
// short of the signing threshold.
func IsInsufficientQuorum(err error) bool {
	return errors.Cause(err) == errInsufficientQuorum
}

// Credit returns the deterministic genesis credit for a section wallet:
// the full supply, with an id derived from the wallet key so every elder
// proposes the identical credit.
func Credit(sectionWallet at2.PublicKey) transfer.Credit {
	return transfer.Credit{
		ID:     at2.Blake2b(sectionWallet.Bytes()),
		To:     sectionWallet,
		Amount: at2.GenesisAmount,
	}
}

// Proposal accumulates elder signature shares over the genesis credit until
// a quorum is reached.
type Proposal struct {
	credit transfer.Credit
	keySet *tsig.PublicKeySet
	shares map[int]tsig.SignatureShare
}

// NewProposal creates the genesis proposal for the given section key set.
func NewProposal(keySet *tsig.PublicKeySet) *Proposal {
	return &Proposal{
		credit: Credit(keySet.PublicKey()),
		keySet: keySet,
		shares: make(map[int]tsig.SignatureShare),
	}
}

// Credit returns the credit being proposed.
func (p *Proposal) Credit() transfer.Credit {
	return p.credit
}

// SignShare produces one elder's share over the proposed credit.
func (p *Proposal) SignShare(elder *tsig.SecretKeyShare) (tsig.SignatureShare, error) {
	hash := p.credit.Hash()
	return elder.Sign(hash.Bytes())
}

// AddShare folds one elder's share in. Duplicate shares from one signer are
// ignored. Returns the agreement proof once the quorum is reached, before
// that an insufficient quorum error.
func (p *Proposal) AddShare(s tsig.SignatureShare) (*transfer.CreditAgreementProof, error) {
	hash := p.credit.Hash()
	if err := p.keySet.VerifyShare(hash.Bytes(), s); err != nil {
		return nil, errors.Wrap(err, "genesis share")
	}
	index, err := s.Index()
	if err != nil {
		return nil, err
	}
	p.shares[index] = s
	if len(p.shares) < p.keySet.Threshold() {
		return nil, errors.WithMessagef(errInsufficientQuorum, "%d of %d shares", len(p.shares), p.keySet.Threshold())
	}

	shares := make([]tsig.SignatureShare, 0, len(p.shares))
	for _, sh := range p.shares {
		shares = append(shares, sh)
	}
	sig, err := p.keySet.Combine(hash.Bytes(), shares)
	if err != nil {
		return nil, err
	}
	logger.Info("genesis credit agreed", "wallet", p.credit.To.AbbrevString(), "amount", p.credit.Amount)
	return &transfer.CreditAgreementProof{
		Credit:     p.credit,
		SectionKey: p.keySet.PublicKey(),
		Sig:        sig,
	}, nil
}

// Bootstrap generates a fresh section key set and runs the genesis round
// among its own shares. Used to stand up a brand new network, and by
// tooling that needs a self-contained section.
func Bootstrap(threshold, n int) (*tsig.SecretKeySet, *transfer.CreditAgreementProof, error) {
	set, err := tsig.NewSecretKeySet(threshold, n)
	if err != nil {
		return nil, nil, err
	}
	proposal := NewProposal(set.PublicKeySet())
	for _, share := range set.KeyShares() {
		s, err := proposal.SignShare(share)
		if err != nil {
			return nil, nil, err
		}
		proof, err := proposal.AddShare(s)
		if err == nil {
			return set, proof, nil
		}
		if !IsInsufficientQuorum(err) {
			return nil, nil, err
		}
	}
	return nil, nil, errInsufficientQuorum
}
