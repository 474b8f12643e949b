// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/at2net/at2/at2"
	"github.com/at2net/at2/tsig"
)

func newWallet(t *testing.T) *tsig.KeyPair {
	kp, err := tsig.GenerateKeyPair()
	require.Nil(t, err)
	return kp
}

func TestTransferLinkage(t *testing.T) {
	from := newWallet(t)
	to := newWallet(t)

	tr := NewTransfer(from.PublicKey(), to.PublicKey(), at2.FromNano(300), 0)
	assert.Nil(t, tr.WellFormed())
	assert.Equal(t, tr.Debit.ID(), tr.ID())

	// tampering with either half breaks the linkage
	bad := *tr
	bad.Credit.Amount = at2.FromNano(301)
	assert.NotNil(t, bad.WellFormed())

	bad = *tr
	bad.Debit.Seq = 7
	assert.NotNil(t, bad.WellFormed())
}

func TestSignedTransferVerify(t *testing.T) {
	from := newWallet(t)
	to := newWallet(t)

	tr := NewTransfer(from.PublicKey(), to.PublicKey(), at2.FromNano(300), 0)

	st, err := Sign(tr, from)
	require.Nil(t, err)
	assert.Nil(t, st.Verify())

	// signing someone else's debit is refused outright
	_, err = Sign(tr, to)
	assert.NotNil(t, err)

	// a forged signature fails verification
	forged := *st
	forged.OwnerSig = append([]byte(nil), st.OwnerSig...)
	forged.OwnerSig[0] ^= 1
	err = forged.Verify()
	assert.True(t, IsInvalidSignature(err))
}

func TestAgreementProofVerify(t *testing.T) {
	const threshold, n = 3, 5

	sks, err := tsig.NewSecretKeySet(threshold, n)
	require.Nil(t, err)
	pks := sks.PublicKeySet()

	from := newWallet(t)
	to := newWallet(t)
	tr := NewTransfer(from.PublicKey(), to.PublicKey(), at2.FromNano(300), 0)
	st, err := Sign(tr, from)
	require.Nil(t, err)

	hash := tr.SigningHash()
	creditHash := tr.Credit.Hash()

	var debitShares, creditShares []tsig.SignatureShare
	for _, ks := range sks.KeyShares()[:threshold] {
		ds, err := ks.Sign(hash.Bytes())
		require.Nil(t, err)
		cs, err := ks.Sign(creditHash.Bytes())
		require.Nil(t, err)
		debitShares = append(debitShares, ds)
		creditShares = append(creditShares, cs)
	}

	debitSig, err := pks.Combine(hash.Bytes(), debitShares)
	require.Nil(t, err)
	creditSig, err := pks.Combine(creditHash.Bytes(), creditShares)
	require.Nil(t, err)

	proof := &TransferAgreementProof{
		Transfer:   *st,
		SectionKey: pks.PublicKey(),
		DebitSig:   debitSig,
		CreditSig:  creditSig,
	}
	assert.Nil(t, proof.Verify())

	// the derived credit proof stands alone
	creditProof := proof.CreditProof()
	assert.Nil(t, creditProof.Verify())
	assert.Equal(t, tr.Credit.ID, creditProof.ID())

	// a proof under a different section key is not verifiable
	otherSet, err := tsig.NewSecretKeySet(threshold, n)
	require.Nil(t, err)
	wrongKey := *proof
	wrongKey.SectionKey = otherSet.PublicKeySet().PublicKey()
	assert.True(t, IsInvalidSignature(wrongKey.Verify()))
}

func TestEventRoundTrip(t *testing.T) {
	from := newWallet(t)
	to := newWallet(t)
	tr := NewTransfer(from.PublicKey(), to.PublicKey(), at2.FromNano(42), 3)
	st, err := Sign(tr, from)
	require.Nil(t, err)

	proof := &TransferAgreementProof{
		Transfer:   *st,
		SectionKey: at2.PublicKey{1},
		DebitSig:   []byte{1, 2},
		CreditSig:  []byte{3, 4},
	}

	ev := NewRegisteredEvent(proof)
	data, err := ev.Encode()
	require.Nil(t, err)

	decoded, err := DecodeEvent(data)
	require.Nil(t, err)
	assert.Equal(t, EventRegistered, decoded.Type())
	assert.Equal(t, proof.ID(), decoded.Registered.ID())
	assert.Equal(t, proof.DebitSig, decoded.Registered.DebitSig)

	// digests of equal logs agree, of different logs differ
	h1, err := HashEvents([]*ReplicaEvent{ev})
	require.Nil(t, err)
	h2, err := HashEvents([]*ReplicaEvent{decoded})
	require.Nil(t, err)
	assert.Equal(t, h1, h2)
	h3, err := HashEvents(nil)
	require.Nil(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestWalletHistory(t *testing.T) {
	from := newWallet(t)
	to := newWallet(t)

	var h WalletHistory
	assert.Equal(t, uint64(0), h.NextSeq())

	h.AppendCredit(&CreditAgreementProof{
		Credit: Credit{ID: at2.Bytes32{1}, To: from.PublicKey(), Amount: at2.FromNano(1000)},
	})

	tr := NewTransfer(from.PublicKey(), to.PublicKey(), at2.FromNano(300), 0)
	st, err := Sign(tr, from)
	require.Nil(t, err)
	h.AppendDebit(&TransferAgreementProof{Transfer: *st})

	balance, err := h.Balance()
	require.Nil(t, err)
	assert.Equal(t, at2.FromNano(700), balance)
	assert.Equal(t, uint64(1), h.NextSeq())
	assert.NotNil(t, h.DebitAt(0))
	assert.Nil(t, h.DebitAt(1))
	assert.True(t, h.ContainsCredit(at2.Bytes32{1}))

	assert.Len(t, h.Since(0), 2)
	assert.Len(t, h.Since(1), 1)
	assert.Len(t, h.Since(2), 0)
}
