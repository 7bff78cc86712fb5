package service

import (
	"context"
	"fmt"

	"github.com/iExecBlockchainComputing/iexec-result-proxy/core"
	"github.com/rs/zerolog/log"
)

// AuthService handles the two ways of obtaining an access token:
// a signed EIP-712 challenge or a workerpool authorization.
type AuthService struct {
	challenges     *ChallengeService
	jwts           *JwtService
	authorizations *AuthorizationService
}

// NewAuthService creates a new authentication service
func NewAuthService(challenges *ChallengeService, jwts *JwtService, authorizations *AuthorizationService) *AuthService {
	return &AuthService{
		challenges:     challenges,
		jwts:           jwts,
		authorizations: authorizations,
	}
}

// Login redeems a hash_signature_address token. It fails with
// core.ErrInvalidChallenge when the token or its signature is not acceptable.
func (s *AuthService) Login(ctx context.Context, loginToken string) (string, error) {
	signed, err := TokenToSignedChallenge(loginToken)
	if err != nil {
		return "", err
	}
	if !s.challenges.IsSignedChallengeValid(ctx, signed) {
		return "", core.ErrInvalidChallenge
	}

	token, err := s.jwts.GetOrCreateJwt(ctx, signed.WalletAddress)
	if err != nil {
		return "", fmt.Errorf("failed to create token: %w", err)
	}

	if err := s.challenges.InvalidateChallenge(ctx, signed.ChallengeHash); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("challengeHash", signed.ChallengeHash).Msg("Failed to invalidate challenge")
	}
	return token, nil
}

// AuthorizeWorker issues a token to a worker holding a valid workerpool authorization.
// workerSignature is the worker's personal signature of GetChallengeForWorker(auth).
// It fails with core.ErrInvalidSignature or a core.AuthorizationError.
func (s *AuthService) AuthorizeWorker(ctx context.Context, workerSignature string, auth core.WorkerpoolAuthorization) (string, error) {
	challenge := s.authorizations.GetChallengeForWorker(auth)
	if !s.authorizations.IsSignedByHimself(challenge, workerSignature, auth.WorkerWallet) {
		log.Ctx(ctx).Warn().Str("chainTaskId", auth.ChainTaskID).Str("walletAddress", auth.WorkerWallet).
			Msg("Token request not signed by worker")
		return "", core.ErrInvalidSignature
	}
	if err := s.authorizations.IsAuthorizedOnExecution(ctx, &auth); err != nil {
		return "", err
	}

	s.authorizations.PutIfAbsent(ctx, auth)

	token, err := s.jwts.GetOrCreateJwt(ctx, auth.WorkerWallet)
	if err != nil {
		return "", fmt.Errorf("failed to create token: %w", err)
	}
	return token, nil
}
