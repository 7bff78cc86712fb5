package eth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const SignatureLength = crypto.SignatureLength

var ErrMalformedSignature = errors.New("malformed signature")

// Signer produces r||s||v signatures over 32 bytes hashes.
type Signer interface {
	Address() common.Address
	SignHash(hash []byte) ([]byte, error)
}

// KeySigner is a Signer backed by an in-memory secp256k1 key.
type KeySigner struct {
	key *ecdsa.PrivateKey
}

func NewKeySigner(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{key: key}
}

func (s *KeySigner) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

// SignHash returns a signature with v in {27, 28}.
func (s *KeySigner) SignHash(hash []byte) ([]byte, error) {
	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// SignPrefixed signs the EIP-191 personal message digest of an hex encoded hash.
func SignPrefixed(s Signer, messageHash string) (string, error) {
	sig, err := s.SignHash(accounts.TextHash(HexToBytes(messageHash)))
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

// RecoverAddress recovers the signer of a 32 bytes hash.
// The recovery id may be encoded as 0/1 or 27/28.
func RecoverAddress(hash, sig []byte) (common.Address, error) {
	if len(hash) != common.HashLength {
		return common.Address{}, fmt.Errorf("hash must be %d bytes: %w", common.HashLength, ErrMalformedSignature)
	}
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes: %w", SignatureLength, ErrMalformedSignature)
	}
	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	if normalized[64] > 1 {
		return common.Address{}, fmt.Errorf("invalid recovery id: %w", ErrMalformedSignature)
	}
	pub, err := crypto.SigToPub(hash, normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("recovering public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// IsSignedPrefixedBy reports whether signature is an EIP-191 personal signature
// of messageHash produced by address. Address comparison is case-insensitive.
func IsSignedPrefixedBy(messageHash, signature, address string) bool {
	hash := HexToBytes(messageHash)
	if hash == nil {
		return false
	}
	if !common.IsHexAddress(address) {
		return false
	}
	signer, err := RecoverAddress(accounts.TextHash(hash), HexToBytes(signature))
	if err != nil {
		return false
	}
	return strings.EqualFold(signer.Hex(), common.HexToAddress(address).Hex())
}
