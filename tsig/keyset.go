// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package tsig

import (
	"github.com/pkg/errors"
	"go.dedis.ch/kyber/v3/share"
	"go.dedis.ch/kyber/v3/sign/tbls"

	"github.com/at2net/at2/at2"
)

// SignatureShare one elder's signature share, tagged with the signer's index.
type SignatureShare []byte

// Index returns the index of the elder that produced the share.
func (s SignatureShare) Index() (int, error) {
	return tbls.SigShare(s).Index()
}

// SecretKeySet the secret polynomial of a section key. Only ever materialized
// at key generation (genesis, or a distributed key generation round during
// churn); afterwards elders hold shares only.
type SecretKeySet struct {
	poly *share.PriPoly
	pub  *PublicKeySet
	n    int
}

// NewSecretKeySet generates a random key set for n elders where
// threshold shares are needed to produce a valid signature.
func NewSecretKeySet(threshold, n int) (*SecretKeySet, error) {
	if threshold < 1 || threshold > n {
		return nil, errors.New("invalid threshold")
	}
	poly := share.NewPriPoly(suite.G2(), threshold, nil, suite.RandomStream())
	pubPoly := poly.Commit(suite.G2().Point().Base())

	key, err := pointToKey(pubPoly.Commit())
	if err != nil {
		return nil, err
	}
	return &SecretKeySet{
		poly: poly,
		pub:  &PublicKeySet{poly: pubPoly, key: key, threshold: threshold, n: n},
		n:    n,
	}, nil
}

// PublicKeySet returns the public counterpart.
func (s *SecretKeySet) PublicKeySet() *PublicKeySet {
	return s.pub
}

// KeyShares returns all n secret key shares, index i for elder i.
func (s *SecretKeySet) KeyShares() []*SecretKeyShare {
	priShares := s.poly.Shares(s.n)
	shares := make([]*SecretKeyShare, 0, s.n)
	for _, ps := range priShares {
		shares = append(shares, &SecretKeyShare{pri: ps, pub: s.pub})
	}
	return shares
}

// SecretKeyShare one elder's share of the section secret key.
type SecretKeyShare struct {
	pri *share.PriShare
	pub *PublicKeySet
}

// Index returns the elder index of the share.
func (s *SecretKeyShare) Index() int {
	return s.pri.I
}

// PublicKeySet returns the public key set the share belongs to.
func (s *SecretKeyShare) PublicKeySet() *PublicKeySet {
	return s.pub
}

// Sign produces an index-tagged signature share over msg.
func (s *SecretKeyShare) Sign(msg []byte) (SignatureShare, error) {
	sig, err := tbls.Sign(suite, s.pri, msg)
	if err != nil {
		return nil, errors.Wrap(err, "sign share")
	}
	return SignatureShare(sig), nil
}

// PublicKeySet the public commitments of a section key set. Shared by all
// replicas of the section; what the rest of the network knows the section by.
type PublicKeySet struct {
	poly      *share.PubPoly
	key       at2.PublicKey
	threshold int
	n         int
}

// PublicKey returns the section public key.
func (p *PublicKeySet) PublicKey() at2.PublicKey {
	return p.key
}

// Threshold returns the number of shares needed to combine a signature.
func (p *PublicKeySet) Threshold() int {
	return p.threshold
}

// Size returns the number of elders holding shares.
func (p *PublicKeySet) Size() int {
	return p.n
}

// VerifyShare checks one signature share over msg.
func (p *PublicKeySet) VerifyShare(msg []byte, sig SignatureShare) error {
	return tbls.Verify(suite, p.poly, msg, sig)
}

// Combine recovers the section signature from a quorum of shares.
// Fails if fewer than Threshold() valid shares are supplied.
func (p *PublicKeySet) Combine(msg []byte, shares []SignatureShare) ([]byte, error) {
	sigs := make([][]byte, 0, len(shares))
	for _, s := range shares {
		sigs = append(sigs, s)
	}
	sig, err := tbls.Recover(suite, p.poly, msg, sigs, p.threshold, p.n)
	if err != nil {
		return nil, errors.Wrap(err, "combine signature shares")
	}
	return sig, nil
}
