package hyperliquid

import (
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

type Signature struct {
	R string `json:"r"`
	S string `json:"s"`
	V int    `json:"v"`
}

// Signer produces L1 action signatures: an EIP-712 "Agent" message whose
// connectionId is the keccak hash of the packed action.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	mainnet bool
}

func NewSigner(hexKey string, mainnet bool) (*Signer, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if clean == "" {
		return nil, errors.New("hyperliquid private key is required")
	}
	key, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, fmt.Errorf("parse hyperliquid private key: %w", err)
	}
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey), mainnet: mainnet}, nil
}

func (s *Signer) Address() common.Address {
	return s.address
}

func (s *Signer) SignAction(action any, nonce uint64, vault *common.Address) (Signature, error) {
	packed, err := encodeAction(action)
	if err != nil {
		return Signature{}, err
	}
	digest, err := agentDigest(connectionID(packed, nonce, vault), s.mainnet)
	if err != nil {
		return Signature{}, err
	}
	raw, err := crypto.Sign(digest, s.key)
	if err != nil {
		return Signature{}, err
	}
	if len(raw) != crypto.SignatureLength {
		return Signature{}, fmt.Errorf("unexpected signature length %d", len(raw))
	}
	return Signature{
		R: hexutil.Encode(raw[:32]),
		S: hexutil.Encode(raw[32:64]),
		V: int(raw[64]) + 27,
	}, nil
}

// connectionID hashes packed || nonce (big endian) || vault flag [|| vault].
func connectionID(packed []byte, nonce uint64, vault *common.Address) []byte {
	data := make([]byte, 0, len(packed)+8+1+common.AddressLength)
	data = append(data, packed...)
	data = binary.BigEndian.AppendUint64(data, nonce)
	if vault == nil {
		data = append(data, 0)
	} else {
		data = append(data, 1)
		data = append(data, vault.Bytes()...)
	}
	return crypto.Keccak256(data)
}

func agentDigest(connID []byte, mainnet bool) ([]byte, error) {
	source := "b"
	if mainnet {
		source = "a"
	}
	typed := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Agent": {
				{Name: "source", Type: "string"},
				{Name: "connectionId", Type: "bytes32"},
			},
		},
		PrimaryType: "Agent",
		Domain: apitypes.TypedDataDomain{
			Name:              "Exchange",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(1337),
			VerifyingContract: common.Address{}.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"source":       source,
			"connectionId": hexutil.Encode(connID),
		},
	}
	digest, _, err := apitypes.TypedDataAndHash(typed)
	return digest, err
}
