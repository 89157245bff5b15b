package crypto

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	eth_crypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

func TestGenerateKey(t *testing.T) {
	signer, err := GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	if signer.Address() == (common.Address{}) {
		t.Error("generated zero address")
	}

	// 32 bytes
	if privHex := signer.PrivateKeyHex(); len(privHex) != 64 {
		t.Errorf("private key hex length = %d, want 64", len(privHex))
	}
}

func TestFromPrivateKeyHex(t *testing.T) {
	signer1, _ := GenerateKey()
	privHex := signer1.PrivateKeyHex()

	for _, in := range []string{privHex, "0x" + privHex} {
		signer2, err := FromPrivateKeyHex(in)
		if err != nil {
			t.Fatalf("failed to load key %q: %v", in, err)
		}
		if signer2.Address() != signer1.Address() {
			t.Errorf("address = %s, want %s", signer2.Address().Hex(), signer1.Address().Hex())
		}
	}

	if _, err := FromPrivateKeyHex("not-a-key"); err == nil {
		t.Error("expected error for malformed key")
	}
}

func TestSignAndRecover(t *testing.T) {
	signer, _ := GenerateKey()
	hash := eth_crypto.Keccak256Hash([]byte("Hello, HyperSwap!"))

	signature, err := signer.Sign(hash)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	if len(signature) != 65 {
		t.Errorf("signature length = %d, want 65", len(signature))
	}

	recovered, err := RecoverAddress(hash, signature)
	if err != nil {
		t.Fatalf("failed to recover address: %v", err)
	}
	if recovered != signer.Address() {
		t.Errorf("recovered address = %s, want %s", recovered.Hex(), signer.Address().Hex())
	}

	// wallets report V as 27/28
	walletSig := append([]byte(nil), signature...)
	walletSig[64] += 27
	recovered, err = RecoverAddress(hash, walletSig)
	if err != nil {
		t.Fatalf("failed to recover from wallet signature: %v", err)
	}
	if recovered != signer.Address() {
		t.Error("wallet-style signature recovered wrong address")
	}
}

func TestInvalidSignature(t *testing.T) {
	hash := common.BytesToHash([]byte("test"))
	if _, err := RecoverAddress(hash, []byte{1, 2, 3}); err == nil {
		t.Error("short signature should not recover")
	}
}

func testAction(from common.Address) *ActionEIP712 {
	return &ActionEIP712{
		Type:          "make_order",
		From:          from,
		Nonce:         1,
		Asset:         common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		Amount:        uint256.NewInt(1e18),
		CounterAsset:  common.Address{},
		CounterAmount: uint256.NewInt(1e18),
	}
}

func TestActionSignatureRoundTrip(t *testing.T) {
	signer, _ := GenerateKey()
	exchange := common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
	e := NewEIP712Signer(NewDomain(big.NewInt(1337), exchange))

	action := testAction(signer.Address())
	signature, err := e.SignAction(signer, action)
	if err != nil {
		t.Fatalf("failed to sign action: %v", err)
	}

	recovered, err := e.RecoverActionSigner(action, signature)
	if err != nil {
		t.Fatalf("failed to recover signer: %v", err)
	}
	if recovered != signer.Address() {
		t.Errorf("recovered = %s, want %s", recovered.Hex(), signer.Address().Hex())
	}

	// any field change invalidates the signature
	tampered := *action
	tampered.Amount = uint256.NewInt(2e18)
	recovered, err = e.RecoverActionSigner(&tampered, signature)
	if err == nil && recovered == signer.Address() {
		t.Error("tampered action still recovers the signer")
	}
}

func TestDomainSeparatesChains(t *testing.T) {
	exchange := common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
	action := testAction(common.HexToAddress("0x22d491Bde2303f2f43325b2108D26f1eAbA1e32b"))

	h1, err := NewEIP712Signer(NewDomain(big.NewInt(1337), exchange)).HashAction(action)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := NewEIP712Signer(NewDomain(big.NewInt(1), exchange)).HashAction(action)
	if err != nil {
		t.Fatal(err)
	}
	h3, err := NewEIP712Signer(NewDomain(big.NewInt(1337), common.Address{1})).HashAction(action)
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 || h1 == h3 {
		t.Error("digest does not depend on the domain")
	}
}

func TestActionToJSON(t *testing.T) {
	e := NewEIP712Signer(NewDomain(big.NewInt(1337), common.Address{}))
	out, err := e.ActionToJSON(testAction(common.Address{}))
	if err != nil {
		t.Fatalf("failed to render: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if doc["primaryType"] != "Action" {
		t.Errorf("primaryType = %v, want Action", doc["primaryType"])
	}
}
