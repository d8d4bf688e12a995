package hyperliquid

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const testKey = "4f3edf983ac636a65a842ce7c78d9aa706d3b113bce036f81af8f9b72d3d80b2"

func recoverSigner(t *testing.T, sig Signature, digest []byte) common.Address {
	t.Helper()
	r, err := hexutil.Decode(sig.R)
	if err != nil {
		t.Fatalf("decode r: %v", err)
	}
	s, err := hexutil.Decode(sig.S)
	if err != nil {
		t.Fatalf("decode s: %v", err)
	}
	if sig.V != 27 && sig.V != 28 {
		t.Fatalf("unexpected v %d", sig.V)
	}
	raw := append(append(append([]byte{}, r...), s...), byte(sig.V-27))
	pub, err := crypto.SigToPub(digest, raw)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	return crypto.PubkeyToAddress(*pub)
}

func TestSignActionRecoversSigner(t *testing.T) {
	signer, err := NewSigner("0x"+testKey, true)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	action := newOrderAction(orderWire{Asset: 10107, IsBuy: true, Price: "1000", Size: "0.01", Type: orderType{Limit: limitTIF{Tif: tifGtc}}})
	nonce := uint64(1700000000000)
	sig, err := signer.SignAction(action, nonce, nil)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	packed, err := encodeAction(action)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	digest, err := agentDigest(connectionID(packed, nonce, nil), true)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if got := recoverSigner(t, sig, digest); got != signer.Address() {
		t.Fatalf("expected %s, got %s", signer.Address().Hex(), got.Hex())
	}
}

func TestConnectionIDDependsOnVaultAndNonce(t *testing.T) {
	packed := []byte{0x81, 0xa1, 0x61}
	vault := common.HexToAddress("0x1111111111111111111111111111111111111111")
	base := connectionID(packed, 1, nil)
	if bytes.Equal(base, connectionID(packed, 2, nil)) {
		t.Fatalf("nonce must change the connection id")
	}
	if bytes.Equal(base, connectionID(packed, 1, &vault)) {
		t.Fatalf("vault must change the connection id")
	}
	if !bytes.Equal(base, connectionID(packed, 1, nil)) {
		t.Fatalf("connection id must be deterministic")
	}
}

func TestAgentDigestSourceDiffersByNetwork(t *testing.T) {
	connID := crypto.Keccak256([]byte("probe"))
	mainnet, err := agentDigest(connID, true)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	testnet, err := agentDigest(connID, false)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if bytes.Equal(mainnet, testnet) {
		t.Fatalf("mainnet and testnet digests must differ")
	}
}

func TestNewSignerRejectsEmptyKey(t *testing.T) {
	if _, err := NewSigner("  ", true); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if _, err := NewSigner("zz", true); err == nil {
		t.Fatalf("expected error for invalid key")
	}
}
