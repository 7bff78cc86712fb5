package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/iExecBlockchainComputing/iexec-result-proxy/core"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/ports"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ProxyService decides whether a wallet may upload a task result and stores it
type ProxyService struct {
	chain    ports.ChainReader
	enclave  ports.EnclaveSignatureChecker
	storage  ports.ResultStorage
	eventPub ports.EventPublisher

	scratchDir       string
	maxExtractedSize int64
}

// DefaultMaxExtractedSize bounds the bytes written to disk while unzipping one result
const DefaultMaxExtractedSize int64 = 512 << 20

type ProxyOption func(*ProxyService)

// WithMaxExtractedSize caps the decompressed size of an archive checked by IsResultValid
func WithMaxExtractedSize(n int64) ProxyOption {
	return func(s *ProxyService) {
		if n > 0 {
			s.maxExtractedSize = n
		}
	}
}

// NewProxyService creates the upload service. Archives are unzipped below
// scratchDir, the system temporary directory when empty.
func NewProxyService(
	chain ports.ChainReader,
	enclave ports.EnclaveSignatureChecker,
	storage ports.ResultStorage,
	eventPub ports.EventPublisher,
	scratchDir string,
	opts ...ProxyOption,
) *ProxyService {
	s := &ProxyService{
		chain:            chain,
		enclave:          enclave,
		storage:          storage,
		eventPub:         eventPub,
		scratchDir:       scratchDir,
		maxExtractedSize: DefaultMaxExtractedSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CanUploadResult reports whether walletAddress may upload model
func (s *ProxyService) CanUploadResult(ctx context.Context, model core.ResultModel, walletAddress string) bool {
	chainTaskID := model.ChainTaskID
	logger := log.Ctx(ctx).With().Str("chainTaskId", chainTaskID).Str("walletAddress", walletAddress).Logger()

	found, err := s.IsResultFound(ctx, chainTaskID)
	if err != nil {
		logger.Error().Err(err).Msg("Could not check result existence")
		return false
	}
	if found {
		logger.Error().Msg("Trying to upload result twice")
		return false
	}

	task, err := s.chain.GetChainTask(ctx, chainTaskID)
	if err != nil {
		logger.Error().Err(err).Msg("Could not get chain task")
		return false
	}
	deal, err := s.chain.GetChainDeal(ctx, task.DealID)
	if err != nil {
		logger.Error().Err(err).Msg("Could not get chain deal")
		return false
	}

	if !deal.IsTee() {
		return s.IsResultValid(ctx, chainTaskID, walletAddress, model.Zip)
	}

	// the requester may push the result of its own TEE task while it runs
	if strings.EqualFold(deal.Requester, walletAddress) {
		if task.Status != core.TaskActive {
			logger.Error().Stringer("status", task.Status).Msg("Requester upload refused, task not active")
			return false
		}
		return true
	}

	return s.enclave.CheckEnclaveSignature(ctx, model, walletAddress)
}

// IsResultValid checks the archive of a standard task against the revealed contribution of the worker
func (s *ProxyService) IsResultValid(ctx context.Context, chainTaskID, walletAddress string, zip []byte) bool {
	logger := log.Ctx(ctx).With().Str("chainTaskId", chainTaskID).Str("walletAddress", walletAddress).Logger()

	contribution, err := s.chain.GetChainContribution(ctx, chainTaskID, walletAddress)
	if err != nil {
		logger.Error().Err(err).Msg("Could not get chain contribution")
		return false
	}
	if contribution.Status != core.ContributionRevealed {
		logger.Error().Stringer("status", contribution.Status).Msg("Contribution not revealed")
		return false
	}

	scratch, err := os.MkdirTemp(s.scratchDir, chainTaskID+"-*")
	if err != nil {
		logger.Error().Err(err).Msg("Could not create scratch directory")
		return false
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			logger.Warn().Err(err).Str("path", scratch).Msg("Could not remove scratch directory")
		}
	}()

	resultHash, err := computeResultHash(chainTaskID, zip, scratch, s.maxExtractedSize)
	if err != nil {
		logger.Error().Err(err).Msg("Could not compute result hash")
		return false
	}
	if !strings.EqualFold(resultHash, contribution.ResultHash) {
		logger.Error().Str("resultHash", resultHash).Str("onchainResultHash", contribution.ResultHash).
			Msg("Result hash does not match contribution")
		return false
	}
	return true
}

// AddResult stores the archive of model and returns its link. The first write
// wins: when the task already has a result nothing is stored and the link is empty.
func (s *ProxyService) AddResult(ctx context.Context, model core.ResultModel, uploader string) (string, error) {
	if len(model.Zip) == 0 {
		return "", errors.New("empty result archive")
	}
	logger := log.Ctx(ctx).With().Str("chainTaskId", model.ChainTaskID).Logger()

	link, err := s.storage.AddResult(ctx, model.ChainTaskID, model.Zip)
	if errors.Is(err, core.ErrResultAlreadyStored) {
		logger.Warn().Str("uploader", uploader).Msg("Result already stored, ignoring upload")
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to store result of %s: %w", model.ChainTaskID, err)
	}

	uploaded := core.UploadedResult{
		ChainTaskID:     model.ChainTaskID,
		Uploader:        uploader,
		Link:            link,
		WorkerpoolPrice: s.workerpoolPrice(ctx, model.ChainTaskID),
	}
	if err := s.eventPub.PublishResultUploaded(ctx, uploaded); err != nil {
		logger.Warn().Err(err).Msg("Failed to publish result uploaded event")
	}
	return link, nil
}

// workerpoolPrice reads the price of the deal of a task, zero when unavailable
func (s *ProxyService) workerpoolPrice(ctx context.Context, chainTaskID string) decimal.Decimal {
	task, err := s.chain.GetChainTask(ctx, chainTaskID)
	if err == nil {
		var deal core.ChainDeal
		if deal, err = s.chain.GetChainDeal(ctx, task.DealID); err == nil {
			return deal.WorkerpoolPrice
		}
	}
	log.Ctx(ctx).Debug().Err(err).Str("chainTaskId", chainTaskID).Msg("Workerpool price unavailable")
	return decimal.Zero
}

func (s *ProxyService) GetResult(ctx context.Context, chainTaskID string) ([]byte, error) {
	return s.storage.GetResult(ctx, chainTaskID)
}

func (s *ProxyService) IsResultFound(ctx context.Context, chainTaskID string) (bool, error) {
	return s.storage.DoesResultExist(ctx, chainTaskID)
}

func (s *ProxyService) GetResultHandle(ctx context.Context, chainTaskID string) (string, error) {
	return s.storage.GetResultHandle(ctx, chainTaskID)
}
