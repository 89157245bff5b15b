package transaction

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

var ErrBadSignature = errors.New("bad signature")

// Verifier handles transaction signature verification
type Verifier struct {
	eip712Signer *crypto.EIP712Signer
}

func NewVerifier(domain crypto.EIP712Domain) *Verifier {
	return &Verifier{eip712Signer: crypto.NewEIP712Signer(domain)}
}

func (v *Verifier) Domain() crypto.EIP712Domain { return v.eip712Signer.Domain() }

// Recover returns the signer of tx. The signer must be tx.From.
func (v *Verifier) Recover(tx *SignedTransaction) (common.Address, error) {
	signer, err := v.eip712Signer.RecoverActionSigner(tx.Action(), tx.Signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if signer != tx.From {
		return common.Address{}, fmt.Errorf("%w: signed by %s, from %s", ErrBadSignature, signer.Hex(), tx.From.Hex())
	}
	return signer, nil
}
