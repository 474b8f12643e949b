// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package tsig wraps the BLS threshold signature scheme used for section
// authority. A section's elders each hold a SecretKeyShare of the section's
// SecretKeySet; any quorum of signature shares combines into one signature
// verifiable against the section public key alone.
package tsig

import (
	"github.com/pkg/errors"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/pairing/bn256"
	"go.dedis.ch/kyber/v3/sign/bls"
	"go.dedis.ch/kyber/v3/util/random"

	"github.com/at2net/at2/at2"
)

var suite = bn256.NewSuite()

// KeyPair a plain (non-threshold) BLS keypair, used by wallet owners
// to authorize their own debits.
type KeyPair struct {
	private kyber.Scalar
	public  at2.PublicKey
}

// GenerateKeyPair creates a fresh wallet keypair.
func GenerateKeyPair() (*KeyPair, error) {
	private, public := bls.NewKeyPair(suite, random.New())
	pk, err := pointToKey(public)
	if err != nil {
		return nil, err
	}
	return &KeyPair{private: private, public: pk}, nil
}

// PublicKey returns the public half.
func (kp *KeyPair) PublicKey() at2.PublicKey {
	return kp.public
}

// Sign signs msg with the private half.
func (kp *KeyPair) Sign(msg []byte) ([]byte, error) {
	return bls.Sign(suite, kp.private, msg)
}

// Verify checks sig over msg against pub.
// Works for both wallet keys and combined section signatures.
func Verify(pub at2.PublicKey, msg, sig []byte) error {
	point, err := keyToPoint(pub)
	if err != nil {
		return err
	}
	return bls.Verify(suite, point, msg, sig)
}

func pointToKey(p kyber.Point) (at2.PublicKey, error) {
	b, err := p.MarshalBinary()
	if err != nil {
		return at2.PublicKey{}, errors.Wrap(err, "marshal public key point")
	}
	return at2.BytesToPublicKey(b)
}

func keyToPoint(pub at2.PublicKey) (kyber.Point, error) {
	point := suite.G2().Point()
	if err := point.UnmarshalBinary(pub.Bytes()); err != nil {
		return nil, errors.Wrap(err, "unmarshal public key point")
	}
	return point, nil
}
