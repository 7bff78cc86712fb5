package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/iExecBlockchainComputing/iexec-result-proxy/core"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/ports"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// JwtService hands out one access token per wallet
type JwtService struct {
	tokenizer ports.Tokenizer
	repo      ports.TokenRepository
	eventPub  ports.EventPublisher
	issuing   singleflight.Group
}

func NewJwtService(tokenizer ports.Tokenizer, repo ports.TokenRepository, eventPub ports.EventPublisher) *JwtService {
	return &JwtService{
		tokenizer: tokenizer,
		repo:      repo,
		eventPub:  eventPub,
	}
}

// GetOrCreateJwt returns the stored token of the wallet, minting it on first use.
// Concurrent calls for one wallet share a single issuance, which outlives the
// cancellation of the caller that started it.
func (s *JwtService) GetOrCreateJwt(ctx context.Context, walletAddress string) (string, error) {
	if walletAddress == "" {
		return "", errors.New("empty wallet address")
	}
	shared := context.WithoutCancel(ctx)
	token, err, _ := s.issuing.Do(walletAddress, func() (interface{}, error) {
		return s.getOrCreate(shared, walletAddress)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (s *JwtService) getOrCreate(ctx context.Context, walletAddress string) (string, error) {
	stored, err := s.repo.FindByWalletAddress(ctx, walletAddress)
	switch {
	case err == nil:
		if _, err := s.tokenizer.WalletAddress(stored.Token); err == nil {
			return stored.Token, nil
		}
		return s.replace(ctx, stored)
	case errors.Is(err, core.ErrTokenNotFound):
		return s.create(ctx, walletAddress)
	default:
		return "", fmt.Errorf("failed to look up token: %w", err)
	}
}

func (s *JwtService) create(ctx context.Context, walletAddress string) (string, error) {
	token, err := s.tokenizer.Mint(walletAddress)
	if err != nil {
		return "", err
	}

	err = s.repo.Create(ctx, core.Jwt{WalletAddress: walletAddress, Token: token})
	if errors.Is(err, core.ErrTokenExists) {
		// another instance issued it first
		return s.reload(ctx, walletAddress)
	}
	if err != nil {
		return "", fmt.Errorf("failed to store token: %w", err)
	}

	log.Ctx(ctx).Info().Str("walletAddress", walletAddress).Msg("Issued access token")
	if err := s.eventPub.PublishTokenIssued(ctx, walletAddress); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("walletAddress", walletAddress).Msg("Failed to publish token issued event")
	}
	return token, nil
}

// replace swaps a token signed with a previous key
func (s *JwtService) replace(ctx context.Context, stored core.Jwt) (string, error) {
	log.Ctx(ctx).Warn().Str("walletAddress", stored.WalletAddress).Msg("Stored token not signed with current key, replacing it")

	token, err := s.tokenizer.Mint(stored.WalletAddress)
	if err != nil {
		return "", err
	}
	replaced, err := s.repo.Replace(ctx, stored, token)
	if errors.Is(err, core.ErrVersionConflict) {
		return s.reload(ctx, stored.WalletAddress)
	}
	if err != nil {
		return "", fmt.Errorf("failed to replace token: %w", err)
	}
	return replaced.Token, nil
}

func (s *JwtService) reload(ctx context.Context, walletAddress string) (string, error) {
	stored, err := s.repo.FindByWalletAddress(ctx, walletAddress)
	if err != nil {
		return "", fmt.Errorf("failed to reload token: %w", err)
	}
	return stored.Token, nil
}

// IsValidJwt reports whether the token is well signed and is the one stored for its wallet
func (s *JwtService) IsValidJwt(ctx context.Context, token string) bool {
	walletAddress, err := s.tokenizer.WalletAddress(token)
	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Msg("Rejected malformed token")
		return false
	}
	stored, err := s.repo.FindByWalletAddress(ctx, walletAddress)
	if err != nil {
		if !errors.Is(err, core.ErrTokenNotFound) {
			log.Ctx(ctx).Error().Err(err).Str("walletAddress", walletAddress).Msg("Failed to look up token")
		}
		return false
	}
	return stored.Token == core.BearerToken(token)
}

// WalletAddressFromJwt parses the token without checking the repository
func (s *JwtService) WalletAddressFromJwt(token string) (string, error) {
	return s.tokenizer.WalletAddress(token)
}
