package crypto

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/holiman/uint256"
)

const (
	DomainName    = "HyperSwap"
	DomainVersion = "1"
)

// EIP712Domain binds signatures to one chain and one exchange
type EIP712Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address // exchange address
}

// NewDomain returns the exchange's signing domain
func NewDomain(chainID *big.Int, exchange common.Address) EIP712Domain {
	return EIP712Domain{
		Name:              DomainName,
		Version:           DomainVersion,
		ChainID:           new(big.Int).Set(chainID),
		VerifyingContract: exchange,
	}
}

// ActionEIP712 is the typed struct every exchange transaction signs.
// Fields a transaction type does not use are zero. Assets use the zero
// address for the native currency.
type ActionEIP712 struct {
	Type          string
	From          common.Address
	Nonce         uint64
	Asset         common.Address
	Amount        *uint256.Int
	CounterAsset  common.Address
	CounterAmount *uint256.Int
	OrderID       uint64
	Target        common.Address
	Value         *uint256.Int
}

var domainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

var actionType = []apitypes.Type{
	{Name: "type", Type: "string"},
	{Name: "from", Type: "address"},
	{Name: "nonce", Type: "uint256"},
	{Name: "asset", Type: "address"},
	{Name: "amount", Type: "uint256"},
	{Name: "counterAsset", Type: "address"},
	{Name: "counterAmount", Type: "uint256"},
	{Name: "orderId", Type: "uint256"},
	{Name: "target", Type: "address"},
	{Name: "value", Type: "uint256"},
}

// EIP712Signer hashes and signs actions for one domain
type EIP712Signer struct {
	domain EIP712Domain
}

func NewEIP712Signer(domain EIP712Domain) *EIP712Signer {
	return &EIP712Signer{domain: domain}
}

func (e *EIP712Signer) Domain() EIP712Domain { return e.domain }

func dec(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func (e *EIP712Signer) typedData(a *ActionEIP712) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainType,
			"Action":       actionType,
		},
		PrimaryType: "Action",
		Domain: apitypes.TypedDataDomain{
			Name:              e.domain.Name,
			Version:           e.domain.Version,
			ChainId:           (*math.HexOrDecimal256)(e.domain.ChainID),
			VerifyingContract: e.domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"type":          a.Type,
			"from":          a.From.Hex(),
			"nonce":         fmt.Sprintf("%d", a.Nonce),
			"asset":         a.Asset.Hex(),
			"amount":        dec(a.Amount),
			"counterAsset":  a.CounterAsset.Hex(),
			"counterAmount": dec(a.CounterAmount),
			"orderId":       fmt.Sprintf("%d", a.OrderID),
			"target":        a.Target.Hex(),
			"value":         dec(a.Value),
		},
	}
}

// HashAction returns the EIP-712 digest of a:
// keccak256("\x19\x01" || domainSeparator || hashStruct(action))
func (e *EIP712Signer) HashAction(a *ActionEIP712) (common.Hash, error) {
	typedData := e.typedData(a)

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash domain: %w", err)
	}
	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash action: %w", err)
	}

	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(typedDataHash)))
	return crypto.Keccak256Hash(rawData), nil
}

func (e *EIP712Signer) SignAction(signer *Signer, a *ActionEIP712) ([]byte, error) {
	hash, err := e.HashAction(a)
	if err != nil {
		return nil, err
	}
	signature, err := signer.Sign(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign action: %w", err)
	}
	return signature, nil
}

// RecoverActionSigner returns the address that signed a
func (e *EIP712Signer) RecoverActionSigner(a *ActionEIP712, signature []byte) (common.Address, error) {
	hash, err := e.HashAction(a)
	if err != nil {
		return common.Address{}, err
	}
	return RecoverAddress(hash, signature)
}

// ActionToJSON renders a as eth_signTypedData_v4 input for wallets
func (e *EIP712Signer) ActionToJSON(a *ActionEIP712) (string, error) {
	jsonBytes, err := json.MarshalIndent(e.typedData(a), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(jsonBytes), nil
}
