package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/core"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/internal/eth"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/ports"
	"github.com/rs/zerolog/log"
)

// ChallengeTTL is measured from challenge creation
const ChallengeTTL = 60 * time.Minute

// minSignatureHexLength is 65 bytes hex encoded without prefix
const minSignatureHexLength = 130

// ChallengeService issues EIP-712 login challenges and checks their signatures
type ChallengeService struct {
	store  ports.ChallengeStore
	ttl    time.Duration
	random io.Reader
}

func NewChallengeService(store ports.ChallengeStore) *ChallengeService {
	return &ChallengeService{
		store:  store,
		ttl:    ChallengeTTL,
		random: rand.Reader,
	}
}

// CreateChallenge generates a random challenge for chainID and remembers its hash
func (s *ChallengeService) CreateChallenge(ctx context.Context, chainID int64) (apitypes.TypedData, error) {
	raw := make([]byte, 32)
	if _, err := io.ReadFull(s.random, raw); err != nil {
		return apitypes.TypedData{}, fmt.Errorf("failed to generate challenge: %w", err)
	}
	value := base64.RawURLEncoding.EncodeToString(raw)

	typedData := eth.ChallengeTypedData(eth.ChallengeDomain(chainID), value)
	hash, err := eth.TypedDataHash(typedData)
	if err != nil {
		return apitypes.TypedData{}, err
	}

	if err := s.store.Save(ctx, hash.Hex(), s.ttl); err != nil {
		return apitypes.TypedData{}, fmt.Errorf("failed to store challenge: %w", err)
	}
	return typedData, nil
}

func (s *ChallengeService) ContainsChallenge(ctx context.Context, hash string) (bool, error) {
	return s.store.Contains(ctx, challengeKey(hash))
}

func (s *ChallengeService) InvalidateChallenge(ctx context.Context, hash string) error {
	return s.store.Invalidate(ctx, challengeKey(hash))
}

// challengeKey matches the 0x prefixed lower case form of common.Hash.Hex
func challengeKey(hash string) string {
	hash = strings.ToLower(hash)
	if !strings.HasPrefix(hash, "0x") {
		hash = "0x" + hash
	}
	return hash
}

// TokenToSignedChallenge splits a hash_signature_address login token
func TokenToSignedChallenge(token string) (*core.SignedChallenge, error) {
	parts := strings.Split(strings.TrimSpace(token), "_")
	if len(parts) != 3 {
		return nil, fmt.Errorf("login token must have 3 parts, got %d: %w", len(parts), core.ErrInvalidChallenge)
	}
	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("login token has an empty part: %w", core.ErrInvalidChallenge)
		}
	}
	return &core.SignedChallenge{
		ChallengeHash: parts[0],
		Signature:     parts[1],
		WalletAddress: parts[2],
	}, nil
}

// IsSignedChallengeValid checks that the challenge is outstanding and was signed by the claimed wallet
func (s *ChallengeService) IsSignedChallengeValid(ctx context.Context, signed *core.SignedChallenge) bool {
	if signed == nil {
		return false
	}
	logger := log.Ctx(ctx).With().Str("walletAddress", signed.WalletAddress).Logger()

	if len(strings.TrimPrefix(signed.Signature, "0x")) < minSignatureHexLength {
		logger.Warn().Msg("Login signature too short")
		return false
	}

	found, err := s.ContainsChallenge(ctx, signed.ChallengeHash)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to look up challenge")
		return false
	}
	if !found {
		logger.Warn().Str("challengeHash", signed.ChallengeHash).Msg("Unknown or expired challenge")
		return false
	}

	// only r, s and v are read, trailing bytes are ignored
	sig := eth.HexToBytes(signed.Signature)
	if len(sig) > eth.SignatureLength {
		sig = sig[:eth.SignatureLength]
	}
	signer, err := eth.RecoverAddress(eth.HexToBytes(signed.ChallengeHash), sig)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to recover challenge signer")
		return false
	}
	if !strings.EqualFold(signer.Hex(), signed.WalletAddress) {
		logger.Warn().Str("signer", signer.Hex()).Msg("Challenge not signed by claimed wallet")
		return false
	}
	return true
}
