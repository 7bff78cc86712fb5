package service

import (
	"context"
	"errors"
	"time"

	"github.com/iExecBlockchainComputing/iexec-result-proxy/core"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/internal/eth"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/ports"
	"github.com/rs/zerolog/log"
)

// DefaultAuthorizationTTL bounds how long a pending workerpool authorization is kept
const DefaultAuthorizationTTL = 24 * time.Hour

// AuthorizationService checks workerpool authorizations against on-chain state
// and keeps them until the enclave signed result of the worker arrives.
type AuthorizationService struct {
	chain ports.ChainReader
	cache ports.AuthorizationCache
	ttl   time.Duration
	now   func() time.Time
}

func NewAuthorizationService(chain ports.ChainReader, cache ports.AuthorizationCache, ttl time.Duration) *AuthorizationService {
	if ttl <= 0 {
		ttl = DefaultAuthorizationTTL
	}
	return &AuthorizationService{
		chain: chain,
		cache: cache,
		ttl:   ttl,
		now:   time.Now,
	}
}

// IsAuthorizedOnExecution returns nil when the execution is authorized,
// otherwise the core.AuthorizationError of the first failed check.
func (s *AuthorizationService) IsAuthorizedOnExecution(ctx context.Context, auth *core.WorkerpoolAuthorization) error {
	if auth == nil || auth.ChainTaskID == "" {
		log.Ctx(ctx).Error().Msg("Not authorized with empty params")
		return core.EmptyParamsUnauthorized
	}
	logger := log.Ctx(ctx).With().Str("chainTaskId", auth.ChainTaskID).Logger()

	task, err := s.chain.GetChainTask(ctx, auth.ChainTaskID)
	if err != nil {
		logger.Error().Err(err).Msg("Could not get chain task")
		return core.GetChainTaskFailed
	}

	if task.Status != core.TaskActive {
		logger.Error().Stringer("status", task.Status).Msg("Task not active on chain")
		return core.TaskNotActive
	}
	if task.IsFinalDeadlineReached(s.now()) {
		logger.Error().Time("finalDeadline", task.FinalDeadline).Msg("Task final deadline reached")
		return core.TaskFinalDeadlineReached
	}

	deal, err := s.chain.GetChainDeal(ctx, task.DealID)
	if err != nil {
		logger.Error().Err(err).Msg("Could not get chain deal")
		return core.GetChainDealFailed
	}

	if auth.IsTee() != deal.IsTee() {
		logger.Error().Bool("isTeeTask", auth.IsTee()).Bool("isTeeTaskOnchain", deal.IsTee()).
			Str("walletAddress", auth.WorkerWallet).Msg("Could not match on-chain task type")
		return core.NoMatchOnchainType
	}

	if !s.IsSignedByHimself(auth.Hash(), auth.Signature.Value, deal.PoolOwner) {
		logger.Error().Str("poolOwner", deal.PoolOwner).Msg("Authorization not signed by workerpool owner")
		return core.InvalidSignature
	}

	return nil
}

// IsSignedByHimself reports whether signature is the personal signature of messageHash by address
func (s *AuthorizationService) IsSignedByHimself(messageHash, signature, address string) bool {
	return eth.IsSignedPrefixedBy(messageHash, signature, address)
}

// GetChallengeForWorker returns the hash a worker signs to request a token
func (s *AuthorizationService) GetChallengeForWorker(auth core.WorkerpoolAuthorization) string {
	return eth.ConcatenateAndHash(auth.WorkerWallet, auth.ChainTaskID, auth.EnclaveChallenge)
}

// PutIfAbsent caches the authorization until the worker uploads its result.
// Failures are only logged.
func (s *AuthorizationService) PutIfAbsent(ctx context.Context, auth core.WorkerpoolAuthorization) {
	key := core.AuthorizationKey(auth.ChainTaskID, auth.WorkerWallet)
	stored, err := s.cache.PutIfAbsent(ctx, key, auth, s.ttl)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("chainTaskId", auth.ChainTaskID).
			Str("walletAddress", auth.WorkerWallet).Msg("Failed to cache workerpool authorization")
		return
	}
	if !stored {
		log.Ctx(ctx).Debug().Str("chainTaskId", auth.ChainTaskID).
			Str("walletAddress", auth.WorkerWallet).Msg("Workerpool authorization already cached")
	}
}

// CheckEnclaveSignature verifies the enclave signature of a TEE result against the
// enclave challenge of the cached authorization. A valid signature consumes the entry.
func (s *AuthorizationService) CheckEnclaveSignature(ctx context.Context, model core.ResultModel, walletAddress string) bool {
	logger := log.Ctx(ctx).With().Str("chainTaskId", model.ChainTaskID).Str("walletAddress", walletAddress).Logger()

	if !model.HasEnclaveSignature() {
		logger.Warn().Msg("Empty enclave signature")
		return false
	}

	key := core.AuthorizationKey(model.ChainTaskID, walletAddress)
	auth, err := s.cache.Get(ctx, key)
	if errors.Is(err, core.ErrAuthorizationAbsent) {
		logger.Warn().Msg("No workerpool authorization was found")
		return false
	}
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read workerpool authorization")
		return false
	}

	resultHash := eth.ConcatenateAndHash(model.ChainTaskID, model.DeterministHash)
	resultSeal := eth.ConcatenateAndHash(walletAddress, model.ChainTaskID, model.DeterministHash)
	messageHash := eth.ConcatenateAndHash(resultHash, resultSeal)

	if !s.IsSignedByHimself(messageHash, model.EnclaveSignature, auth.EnclaveChallenge) {
		logger.Warn().Msg("Invalid enclave signature")
		return false
	}

	consumed, err := s.cache.CompareAndDelete(ctx, key, auth)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to consume workerpool authorization")
		return false
	}
	if !consumed {
		logger.Warn().Msg("Workerpool authorization already consumed")
		return false
	}
	logger.Info().Msg("Valid enclave signature received, allowed to push result")
	return true
}
