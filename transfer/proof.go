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

// TransferAgreementProof a transfer bundled with the section threshold
// signature over both halves. The only debit artifact the ledger accepts
// as authoritative.
type TransferAgreementProof struct {
	Transfer   SignedTransfer
	SectionKey at2.PublicKey
	DebitSig   []byte
	CreditSig  []byte
}

// ID returns the agreed transfer's id.
func (p *TransferAgreementProof) ID() at2.Bytes32 {
	return p.Transfer.ID()
}

// Verify checks the owner signature and the combined section signatures.
// The caller decides which section key is acceptable at acceptance time.
func (p *TransferAgreementProof) Verify() error {
	if err := p.Transfer.Verify(); err != nil {
		return err
	}
	return p.verifySectionSigs()
}

// VerifySectionPayout is the Verify variant for proofs debiting the section
// wallet, where there is no owner signature to check.
func (p *TransferAgreementProof) VerifySectionPayout() error {
	if err := p.Transfer.Transfer.WellFormed(); err != nil {
		return err
	}
	return p.verifySectionSigs()
}

func (p *TransferAgreementProof) verifySectionSigs() error {
	hash := p.Transfer.Transfer.SigningHash()
	if err := tsig.Verify(p.SectionKey, hash.Bytes(), p.DebitSig); err != nil {
		return errors.WithMessage(errInvalidSignature, "section debit signature")
	}
	creditHash := p.Transfer.Transfer.Credit.Hash()
	if err := tsig.Verify(p.SectionKey, creditHash.Bytes(), p.CreditSig); err != nil {
		return errors.WithMessage(errInvalidSignature, "section credit signature")
	}
	return nil
}

// CreditProof derives the stand-alone credit proof forwarded to the
// crediting section.
func (p *TransferAgreementProof) CreditProof() *CreditAgreementProof {
	return &CreditAgreementProof{
		Credit:     p.Transfer.Transfer.Credit,
		SectionKey: p.SectionKey,
		Sig:        append([]byte(nil), p.CreditSig...),
	}
}

// String implements stringer.
func (p *TransferAgreementProof) String() string {
	return fmt.Sprintf("transferProof{id: %v, key: %v}", p.ID().AbbrevString(), p.SectionKey.AbbrevString())
}

// CreditAgreementProof a credit bundled with the debiting section's threshold
// signature; applied at the crediting section without balance checks.
type CreditAgreementProof struct {
	Credit     Credit
	SectionKey at2.PublicKey
	Sig        []byte
}

// ID returns the credit id.
func (p *CreditAgreementProof) ID() at2.Bytes32 {
	return p.Credit.ID
}

// Verify checks the combined section signature over the credit.
func (p *CreditAgreementProof) Verify() error {
	hash := p.Credit.Hash()
	if err := tsig.Verify(p.SectionKey, hash.Bytes(), p.Sig); err != nil {
		return errors.WithMessage(errInvalidSignature, "section credit signature")
	}
	return nil
}

// String implements stringer.
func (p *CreditAgreementProof) String() string {
	return fmt.Sprintf("creditProof{id: %v, to: %v, amount: %v}",
		p.Credit.ID.AbbrevString(), p.Credit.To.AbbrevString(), p.Credit.Amount)
}
