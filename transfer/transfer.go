// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package transfer

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/at2net/at2/at2"
	"github.com/at2net/at2/tsig"
)

var (
	errMalformed        = errors.New("malformed transfer")
	errInvalidSignature = errors.New("invalid signature")
)

// IsInvalidSignature returns whether err indicates a bad owner or share signature.
func IsInvalidSignature(err error) bool {
	return errors.Cause(err) == errInvalidSignature
}

// Transfer a linked (debit-from, credit-to) pair. The credit id is derived
// from the debit id so the two halves cannot be recombined with other halves.
type Transfer struct {
	Debit  Debit
	Credit Credit
}

// NewTransfer builds a transfer of amount from -> to at the given sender
// sequence number.
func NewTransfer(from, to at2.PublicKey, amount at2.Token, seq uint64) *Transfer {
	debit := Debit{From: from, Seq: seq, Amount: amount}
	return &Transfer{
		Debit: debit,
		Credit: Credit{
			ID:     creditID(debit.ID()),
			To:     to,
			Amount: amount,
		},
	}
}

func creditID(debitID at2.Bytes32) at2.Bytes32 {
	return at2.Blake2b(debitID.Bytes())
}

// ID returns the transfer id, which is the debit id.
func (t *Transfer) ID() at2.Bytes32 {
	return t.Debit.ID()
}

// SigningHash returns the hash owners and replicas sign.
func (t *Transfer) SigningHash() at2.Bytes32 {
	data, _ := rlp.EncodeToBytes(t)
	return at2.Blake2b(data)
}

// WellFormed checks the structural invariants of the pair.
func (t *Transfer) WellFormed() error {
	if t.Debit.Amount == 0 {
		return errors.WithMessage(errMalformed, "zero amount")
	}
	if t.Debit.Amount != t.Credit.Amount {
		return errors.WithMessage(errMalformed, "debit and credit amounts differ")
	}
	if t.Credit.ID != creditID(t.Debit.ID()) {
		return errors.WithMessage(errMalformed, "credit id not derived from debit id")
	}
	if t.Debit.From == t.Credit.To {
		return errors.WithMessage(errMalformed, "transfer to self")
	}
	return nil
}

// String implements stringer.
func (t *Transfer) String() string {
	return fmt.Sprintf("transfer{id: %v, %v -> %v, amount: %v, seq: %d}",
		t.ID().AbbrevString(), t.Debit.From.AbbrevString(), t.Credit.To.AbbrevString(), t.Debit.Amount, t.Debit.Seq)
}

// SignedTransfer a debit authorized by the sending wallet owner's signature.
// Not yet agreed by the section.
type SignedTransfer struct {
	Transfer Transfer
	OwnerSig []byte
}

// Sign authorizes the transfer with the owner keypair.
func Sign(t *Transfer, owner *tsig.KeyPair) (*SignedTransfer, error) {
	if owner.PublicKey() != t.Debit.From {
		return nil, errors.WithMessage(errMalformed, "signer is not the debited account")
	}
	hash := t.SigningHash()
	sig, err := owner.Sign(hash.Bytes())
	if err != nil {
		return nil, err
	}
	return &SignedTransfer{Transfer: *t, OwnerSig: sig}, nil
}

// ID returns the transfer id.
func (st *SignedTransfer) ID() at2.Bytes32 {
	return st.Transfer.ID()
}

// Verify checks structure and the owner signature.
func (st *SignedTransfer) Verify() error {
	if err := st.Transfer.WellFormed(); err != nil {
		return err
	}
	hash := st.Transfer.SigningHash()
	if err := tsig.Verify(st.Transfer.Debit.From, hash.Bytes(), st.OwnerSig); err != nil {
		return errors.WithMessage(errInvalidSignature, "owner signature")
	}
	return nil
}

// SignedTransferShare a transfer debiting the section's own wallet, authorized
// by one elder's key share instead of an owner signature. Used for reward
// payouts from the section account.
type SignedTransferShare struct {
	Transfer   Transfer
	ActorShare tsig.SignatureShare
}

// SignShare authorizes a section-wallet transfer with an elder key share.
func SignShare(t *Transfer, elder *tsig.SecretKeyShare) (*SignedTransferShare, error) {
	if elder.PublicKeySet().PublicKey() != t.Debit.From {
		return nil, errors.WithMessage(errMalformed, "debited account is not the section wallet")
	}
	hash := t.SigningHash()
	sig, err := elder.Sign(hash.Bytes())
	if err != nil {
		return nil, err
	}
	return &SignedTransferShare{Transfer: *t, ActorShare: sig}, nil
}

// ID returns the transfer id.
func (sts *SignedTransferShare) ID() at2.Bytes32 {
	return sts.Transfer.ID()
}

// Verify checks structure and that the share belongs to the given section key set.
func (sts *SignedTransferShare) Verify(keySet *tsig.PublicKeySet) error {
	if err := sts.Transfer.WellFormed(); err != nil {
		return err
	}
	if keySet.PublicKey() != sts.Transfer.Debit.From {
		return errors.WithMessage(errMalformed, "debited account is not the section wallet")
	}
	hash := sts.Transfer.SigningHash()
	if err := keySet.VerifyShare(hash.Bytes(), sts.ActorShare); err != nil {
		return errors.WithMessage(errInvalidSignature, "actor share")
	}
	return nil
}
