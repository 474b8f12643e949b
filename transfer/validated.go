// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package transfer

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/at2net/at2/at2"
	"github.com/at2net/at2/tsig"
)

// TransferValidated one replica's endorsement of a proposed transfer: a
// signature share over the transfer and one over its credit half, so that the
// credit proof can later stand alone when propagated to the crediting section.
type TransferValidated struct {
	Transfer    SignedTransfer
	SectionKey  at2.PublicKey
	DebitShare  tsig.SignatureShare
	CreditShare tsig.SignatureShare
}

// ID returns the endorsed transfer's id.
func (tv *TransferValidated) ID() at2.Bytes32 {
	return tv.Transfer.ID()
}

// SignerIndex returns the index of the replica that produced the endorsement.
func (tv *TransferValidated) SignerIndex() (int, error) {
	debitIdx, err := tv.DebitShare.Index()
	if err != nil {
		return 0, errors.Wrap(err, "debit share index")
	}
	creditIdx, err := tv.CreditShare.Index()
	if err != nil {
		return 0, errors.Wrap(err, "credit share index")
	}
	if debitIdx != creditIdx {
		return 0, errors.WithMessage(errMalformed, "share indices differ")
	}
	return debitIdx, nil
}

// Verify checks both shares against the given section key set.
func (tv *TransferValidated) Verify(keySet *tsig.PublicKeySet) error {
	hash := tv.Transfer.Transfer.SigningHash()
	if err := keySet.VerifyShare(hash.Bytes(), tv.DebitShare); err != nil {
		return errors.WithMessage(errInvalidSignature, "debit share")
	}
	creditHash := tv.Transfer.Transfer.Credit.Hash()
	if err := keySet.VerifyShare(creditHash.Bytes(), tv.CreditShare); err != nil {
		return errors.WithMessage(errInvalidSignature, "credit share")
	}
	return nil
}

// String implements stringer.
func (tv *TransferValidated) String() string {
	return fmt.Sprintf("validated{id: %v, key: %v}", tv.ID().AbbrevString(), tv.SectionKey.AbbrevString())
}
