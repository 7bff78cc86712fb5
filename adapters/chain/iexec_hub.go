package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/core"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/ports"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const iexecHubABI = `[
{"name":"viewTask","type":"function","stateMutability":"view",
 "inputs":[{"name":"_taskid","type":"bytes32"}],
 "outputs":[{"name":"","type":"tuple","components":[
  {"name":"status","type":"uint8"},
  {"name":"dealid","type":"bytes32"},
  {"name":"idx","type":"uint256"},
  {"name":"timeref","type":"uint256"},
  {"name":"contributionDeadline","type":"uint256"},
  {"name":"revealDeadline","type":"uint256"},
  {"name":"finalDeadline","type":"uint256"},
  {"name":"consensusValue","type":"bytes32"},
  {"name":"revealCounter","type":"uint256"},
  {"name":"winnerCounter","type":"uint256"},
  {"name":"contributors","type":"address[]"},
  {"name":"resultDigest","type":"bytes32"},
  {"name":"results","type":"bytes"},
  {"name":"resultsTimestamp","type":"uint256"},
  {"name":"resultsCallback","type":"bytes"}]}]},
{"name":"viewDeal","type":"function","stateMutability":"view",
 "inputs":[{"name":"_id","type":"bytes32"}],
 "outputs":[{"name":"","type":"tuple","components":[
  {"name":"app","type":"tuple","components":[{"name":"pointer","type":"address"},{"name":"owner","type":"address"},{"name":"price","type":"uint256"}]},
  {"name":"dataset","type":"tuple","components":[{"name":"pointer","type":"address"},{"name":"owner","type":"address"},{"name":"price","type":"uint256"}]},
  {"name":"workerpool","type":"tuple","components":[{"name":"pointer","type":"address"},{"name":"owner","type":"address"},{"name":"price","type":"uint256"}]},
  {"name":"trust","type":"uint256"},
  {"name":"category","type":"uint256"},
  {"name":"tag","type":"bytes32"},
  {"name":"requester","type":"address"},
  {"name":"beneficiary","type":"address"},
  {"name":"callback","type":"address"},
  {"name":"params","type":"string"},
  {"name":"startTime","type":"uint256"},
  {"name":"botFirst","type":"uint256"},
  {"name":"botSize","type":"uint256"},
  {"name":"workerStake","type":"uint256"},
  {"name":"schedulerRewardRatio","type":"uint256"},
  {"name":"sponsor","type":"address"}]}]},
{"name":"viewContribution","type":"function","stateMutability":"view",
 "inputs":[{"name":"_taskid","type":"bytes32"},{"name":"_worker","type":"address"}],
 "outputs":[{"name":"","type":"tuple","components":[
  {"name":"status","type":"uint8"},
  {"name":"resultHash","type":"bytes32"},
  {"name":"resultSeal","type":"bytes32"},
  {"name":"enclaveChallenge","type":"address"},
  {"name":"weight","type":"uint256"}]}]}
]`

type taskTuple struct {
	Status               uint8
	Dealid               [32]byte
	Idx                  *big.Int
	Timeref              *big.Int
	ContributionDeadline *big.Int
	RevealDeadline       *big.Int
	FinalDeadline        *big.Int
	ConsensusValue       [32]byte
	RevealCounter        *big.Int
	WinnerCounter        *big.Int
	Contributors         []common.Address
	ResultDigest         [32]byte
	Results              []byte
	ResultsTimestamp     *big.Int
	ResultsCallback      []byte
}

type resourceTuple struct {
	Pointer common.Address
	Owner   common.Address
	Price   *big.Int
}

type dealTuple struct {
	App                  resourceTuple
	Dataset              resourceTuple
	Workerpool           resourceTuple
	Trust                *big.Int
	Category             *big.Int
	Tag                  [32]byte
	Requester            common.Address
	Beneficiary          common.Address
	Callback             common.Address
	Params               string
	StartTime            *big.Int
	BotFirst             *big.Int
	BotSize              *big.Int
	WorkerStake          *big.Int
	SchedulerRewardRatio *big.Int
	Sponsor              common.Address
}

type contributionTuple struct {
	Status           uint8
	ResultHash       [32]byte
	ResultSeal       [32]byte
	EnclaveChallenge common.Address
	Weight           *big.Int
}

// on-chain contribution status PROVED is what workers call revealed
var contributionStatuses = map[uint8]core.ChainContributionStatus{
	0: core.ContributionUnset,
	1: core.ContributionContributed,
	2: core.ContributionRevealed,
	3: core.ContributionRejected,
}

// Config of the IexecHub reader
type Config struct {
	NodeAddress string
	HubAddress  string
	MaxAttempts int
	Backoff     time.Duration
}

// IexecHubReader reads tasks, deals and contributions from the IexecHub contract
type IexecHubReader struct {
	contract    *bind.BoundContract
	client      *ethclient.Client
	maxAttempts int
	backoff     time.Duration
}

// Dial connects to the blockchain node
func Dial(ctx context.Context, cfg Config) (*IexecHubReader, error) {
	if !common.IsHexAddress(cfg.HubAddress) {
		return nil, fmt.Errorf("invalid hub address %q", cfg.HubAddress)
	}
	client, err := ethclient.DialContext(ctx, cfg.NodeAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to dial blockchain node %s: %w", cfg.NodeAddress, err)
	}
	reader, err := NewIexecHubReader(client, common.HexToAddress(cfg.HubAddress), cfg.MaxAttempts, cfg.Backoff)
	if err != nil {
		client.Close()
		return nil, err
	}
	reader.client = client
	return reader, nil
}

// NewIexecHubReader binds the hub contract with the given caller
func NewIexecHubReader(caller bind.ContractCaller, hub common.Address, maxAttempts int, backoff time.Duration) (*IexecHubReader, error) {
	parsed, err := abi.JSON(strings.NewReader(iexecHubABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse IexecHub ABI: %w", err)
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &IexecHubReader{
		contract:    bind.NewBoundContract(hub, parsed, caller, nil, nil),
		maxAttempts: maxAttempts,
		backoff:     backoff,
	}, nil
}

var _ ports.ChainReader = (*IexecHubReader)(nil)

func (r *IexecHubReader) Close() {
	if r.client != nil {
		r.client.Close()
	}
}

func (r *IexecHubReader) GetChainTask(ctx context.Context, chainTaskID string) (core.ChainTask, error) {
	id, err := toBytes32(chainTaskID)
	if err != nil {
		return core.ChainTask{}, err
	}
	var task taskTuple
	if err := r.call(ctx, &task, "viewTask", id); err != nil {
		return core.ChainTask{}, err
	}
	if task.Dealid == ([32]byte{}) {
		return core.ChainTask{}, fmt.Errorf("task %s: %w", chainTaskID, core.ErrChainTaskNotFound)
	}

	result := core.ChainTask{
		ChainTaskID: chainTaskID,
		DealID:      hexutil.Encode(task.Dealid[:]),
		Status:      core.ChainTaskStatus(task.Status),
	}
	if deadline := bigToInt64(task.FinalDeadline); deadline > 0 {
		result.FinalDeadline = time.Unix(deadline, 0)
	}
	return result, nil
}

func (r *IexecHubReader) GetChainDeal(ctx context.Context, chainDealID string) (core.ChainDeal, error) {
	id, err := toBytes32(chainDealID)
	if err != nil {
		return core.ChainDeal{}, err
	}
	var deal dealTuple
	if err := r.call(ctx, &deal, "viewDeal", id); err != nil {
		return core.ChainDeal{}, err
	}
	if deal.App.Pointer == (common.Address{}) {
		return core.ChainDeal{}, fmt.Errorf("deal %s: %w", chainDealID, core.ErrChainDealNotFound)
	}

	price := deal.Workerpool.Price
	if price == nil {
		price = new(big.Int)
	}
	return core.ChainDeal{
		ChainDealID:     chainDealID,
		Tag:             hexutil.Encode(deal.Tag[:]),
		Requester:       deal.Requester.Hex(),
		PoolOwner:       deal.Workerpool.Owner.Hex(),
		WorkerpoolPrice: decimal.NewFromBigInt(price, -9),
	}, nil
}

func (r *IexecHubReader) GetChainContribution(ctx context.Context, chainTaskID, walletAddress string) (core.ChainContribution, error) {
	id, err := toBytes32(chainTaskID)
	if err != nil {
		return core.ChainContribution{}, err
	}
	if !common.IsHexAddress(walletAddress) {
		return core.ChainContribution{}, fmt.Errorf("invalid wallet address %q", walletAddress)
	}
	var contribution contributionTuple
	if err := r.call(ctx, &contribution, "viewContribution", id, common.HexToAddress(walletAddress)); err != nil {
		return core.ChainContribution{}, err
	}
	status, ok := contributionStatuses[contribution.Status]
	if !ok || status == core.ContributionUnset {
		return core.ChainContribution{}, fmt.Errorf("contribution of %s on %s: %w", walletAddress, chainTaskID, core.ErrChainContributionNotFound)
	}
	return core.ChainContribution{
		Status:     status,
		ResultHash: hexutil.Encode(contribution.ResultHash[:]),
	}, nil
}

// call invokes a view method and decodes its single tuple output into out.
// Transport failures are retried with an exponential backoff.
func (r *IexecHubReader) call(ctx context.Context, out interface{}, method string, params ...interface{}) error {
	delay := r.backoff
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		var results []interface{}
		err := r.contract.Call(&bind.CallOpts{Context: ctx}, &results, method, params...)
		if err == nil {
			if len(results) != 1 {
				return fmt.Errorf("%s returned %d values", method, len(results))
			}
			abi.ConvertType(results[0], out)
			return nil
		}
		lastErr = err
		log.Warn().Err(err).Str("method", method).Int("attempt", attempt).Msg("Blockchain call failed")

		if attempt == r.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("%s failed after %d attempts: %w", method, r.maxAttempts, lastErr)
}

func toBytes32(id string) ([32]byte, error) {
	var out [32]byte
	raw, err := hexutil.Decode(id)
	if err != nil || len(raw) != 32 {
		return out, fmt.Errorf("invalid bytes32 identifier %q", id)
	}
	copy(out[:], raw)
	return out, nil
}

func bigToInt64(v *big.Int) int64 {
	if v == nil || !v.IsInt64() {
		return 0
	}
	return v.Int64()
}
