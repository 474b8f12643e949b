// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package tsig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyPairSignVerify(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.Nil(t, err)

	msg := []byte("debit 300 from k")
	sig, err := kp.Sign(msg)
	require.Nil(t, err)

	assert.Nil(t, Verify(kp.PublicKey(), msg, sig))
	assert.NotNil(t, Verify(kp.PublicKey(), []byte("another msg"), sig))

	other, err := GenerateKeyPair()
	require.Nil(t, err)
	assert.NotNil(t, Verify(other.PublicKey(), msg, sig))
}

func TestThresholdCombine(t *testing.T) {
	const threshold, n = 5, 7

	sks, err := NewSecretKeySet(threshold, n)
	require.Nil(t, err)
	pks := sks.PublicKeySet()
	shares := sks.KeyShares()
	require.Len(t, shares, n)

	msg := []byte("agreement over transfer id")

	var sigShares []SignatureShare
	for _, s := range shares[:threshold] {
		sig, err := s.Sign(msg)
		require.Nil(t, err)
		assert.Nil(t, pks.VerifyShare(msg, sig))
		sigShares = append(sigShares, sig)
	}

	combined, err := pks.Combine(msg, sigShares)
	require.Nil(t, err)
	assert.Nil(t, Verify(pks.PublicKey(), msg, combined))
}

func TestThresholdInsufficientShares(t *testing.T) {
	const threshold, n = 5, 7

	sks, err := NewSecretKeySet(threshold, n)
	require.Nil(t, err)
	pks := sks.PublicKeySet()

	msg := []byte("agreement over transfer id")

	var sigShares []SignatureShare
	for _, s := range sks.KeyShares()[:threshold-1] {
		sig, err := s.Sign(msg)
		require.Nil(t, err)
		sigShares = append(sigShares, sig)
	}

	_, err = pks.Combine(msg, sigShares)
	assert.NotNil(t, err)
}

func TestCombinedSignatureIsDeterministicAcrossQuorums(t *testing.T) {
	const threshold, n = 3, 5

	sks, err := NewSecretKeySet(threshold, n)
	require.Nil(t, err)
	pks := sks.PublicKeySet()
	shares := sks.KeyShares()

	msg := []byte("same agreement")

	sign := func(idx []int) []byte {
		var sigShares []SignatureShare
		for _, i := range idx {
			sig, err := shares[i].Sign(msg)
			require.Nil(t, err)
			sigShares = append(sigShares, sig)
		}
		combined, err := pks.Combine(msg, sigShares)
		require.Nil(t, err)
		return combined
	}

	// any quorum recovers the same section signature
	assert.Equal(t, sign([]int{0, 1, 2}), sign([]int{2, 3, 4}))
}
