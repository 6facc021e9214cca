package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	// EIP712Domain(string name,string version,uint256 chainId)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)

	// Challenge(address wallet,string token)
	challengeTypeHash = ethcrypto.Keccak256(
		[]byte("Challenge(address wallet,string token)"),
	)
)

// Signer signs clearnode RPC payloads with a secp256k1 key. Every request
// crossing the settlement connection carries a signature over its keccak256
// digest; the auth handshake additionally signs an EIP-712 challenge.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	domainSep  []byte // cached auth domain separator
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key and
// the chain ID the clearnode settles against.
func NewSigner(privateKeyHex string, chainID int) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	s := &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}
	s.domainSep = buildDomainSeparator("clearnode", "1", chainID)
	return s, nil
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// Sign signs keccak256(payload) and returns the hex-encoded 65-byte
// signature (r || s || v).
func (s *Signer) Sign(payload []byte) (string, error) {
	return s.signDigest(ethcrypto.Keccak256(payload))
}

// SignChallenge signs the EIP-712 auth challenge issued by the clearnode
// during the connection handshake.
func (s *Signer) SignChallenge(token string) (string, error) {
	structHash := ethcrypto.Keccak256(
		concatBytes(
			challengeTypeHash,
			common.LeftPadBytes(s.address.Bytes(), 32),
			ethcrypto.Keccak256([]byte(token)),
		),
	)
	return s.signDigest(eip712Hash(s.domainSep, structHash))
}

// buildDomainSeparator returns keccak256(abi.encode(typeHash, nameHash, versionHash, chainId)).
func buildDomainSeparator(name, version string, chainID int) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(name)),
			ethcrypto.Keccak256([]byte(version)),
			bigIntTo32Bytes(big.NewInt(int64(chainID))),
		),
	)
}

// eip712Hash computes the final EIP-712 digest:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			domainSep,
			structHash,
		),
	)
}

// signDigest signs a 32-byte digest using secp256k1 and returns the
// hex-encoded signature (r || s || v, 65 bytes).
func (s *Signer) signDigest(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}

	// go-ethereum returns v in {0,1}; the clearnode expects v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}

	return "0x" + hex.EncodeToString(sig), nil
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
