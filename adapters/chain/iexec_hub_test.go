package chain

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/core"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	chainTaskID = "0x877210dbec7b8461e396751e311b574d6b6909e3618dd0622f7182eaffdc6901"
	chainDealID = "0x8012c1515a23e0d7ef07b7de780343df2fd18034ca55eea7202cab814603d288"
	poolOwner   = "0xc911f9345717ba7c8ec862ce002af3e058df84e4"
	worker      = "0x1a69b2eb604db8eba185df03ea4f5288dcbbd248"
)

// fakeCaller answers eth_call with canned tuples, failing the first calls if asked to
type fakeCaller struct {
	parsed   abi.ABI
	outputs  map[string]interface{}
	failures int
	calls    int
}

func (f *fakeCaller) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x1}, nil
}

func (f *fakeCaller) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("connection refused")
	}
	method, err := f.parsed.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(f.outputs[method.Name])
}

func newReader(t *testing.T, outputs map[string]interface{}, failures int) (*IexecHubReader, *fakeCaller) {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(iexecHubABI))
	require.NoError(t, err)
	caller := &fakeCaller{parsed: parsed, outputs: outputs, failures: failures}
	reader, err := NewIexecHubReader(caller, common.HexToAddress("0x3eca1B216A7DF1C7689aEb259fFB83ADFB894E7f"), 3, time.Millisecond)
	require.NoError(t, err)
	return reader, caller
}

func bytes32(hex string) [32]byte {
	var out [32]byte
	copy(out[:], common.FromHex(hex))
	return out
}

func emptyTask() taskTuple {
	return taskTuple{
		Idx: new(big.Int), Timeref: new(big.Int), ContributionDeadline: new(big.Int),
		RevealDeadline: new(big.Int), FinalDeadline: new(big.Int), RevealCounter: new(big.Int),
		WinnerCounter: new(big.Int), ResultsTimestamp: new(big.Int),
		Contributors: []common.Address{}, Results: []byte{}, ResultsCallback: []byte{},
	}
}

func emptyResource() resourceTuple {
	return resourceTuple{Price: new(big.Int)}
}

func emptyDeal() dealTuple {
	return dealTuple{
		App: emptyResource(), Dataset: emptyResource(), Workerpool: emptyResource(),
		Trust: new(big.Int), Category: new(big.Int), StartTime: new(big.Int), BotFirst: new(big.Int),
		BotSize: new(big.Int), WorkerStake: new(big.Int), SchedulerRewardRatio: new(big.Int),
	}
}

func TestGetChainTask(t *testing.T) {
	task := emptyTask()
	task.Status = 1
	task.Dealid = bytes32(chainDealID)
	task.Idx = big.NewInt(3)
	task.FinalDeadline = big.NewInt(1700000000)

	reader, caller := newReader(t, map[string]interface{}{"viewTask": task}, 2)
	got, err := reader.GetChainTask(context.Background(), chainTaskID)
	require.NoError(t, err)
	assert.Equal(t, 3, caller.calls)
	assert.Equal(t, core.TaskActive, got.Status)
	assert.Equal(t, chainDealID, got.DealID)
	assert.Equal(t, time.Unix(1700000000, 0), got.FinalDeadline)
}

func TestGetChainTaskNotFound(t *testing.T) {
	reader, _ := newReader(t, map[string]interface{}{"viewTask": emptyTask()}, 0)
	_, err := reader.GetChainTask(context.Background(), chainTaskID)
	assert.ErrorIs(t, err, core.ErrChainTaskNotFound)
}

func TestGetChainTaskGivesUp(t *testing.T) {
	reader, caller := newReader(t, map[string]interface{}{"viewTask": emptyTask()}, 5)
	_, err := reader.GetChainTask(context.Background(), chainTaskID)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrChainTaskNotFound)
	assert.Equal(t, 3, caller.calls)
}

func TestGetChainTaskRejectsBadID(t *testing.T) {
	reader, caller := newReader(t, nil, 0)
	_, err := reader.GetChainTask(context.Background(), "0x1234")
	assert.Error(t, err)
	assert.Zero(t, caller.calls)
}

func TestGetChainDeal(t *testing.T) {
	deal := emptyDeal()
	deal.App.Pointer = common.HexToAddress("0x63C8De22025a7A463acd6c89C50b27013eCa6472")
	deal.Workerpool.Owner = common.HexToAddress(poolOwner)
	deal.Workerpool.Price = big.NewInt(1500000000)
	deal.Requester = common.HexToAddress(worker)
	deal.Tag = bytes32("0x0000000000000000000000000000000000000000000000000000000000000003")

	reader, _ := newReader(t, map[string]interface{}{"viewDeal": deal}, 0)
	got, err := reader.GetChainDeal(context.Background(), chainDealID)
	require.NoError(t, err)
	assert.True(t, strings.EqualFold(poolOwner, got.PoolOwner))
	assert.True(t, strings.EqualFold(worker, got.Requester))
	assert.True(t, got.IsTee())
	assert.True(t, decimal.RequireFromString("1.5").Equal(got.WorkerpoolPrice))

	reader, _ = newReader(t, map[string]interface{}{"viewDeal": emptyDeal()}, 0)
	_, err = reader.GetChainDeal(context.Background(), chainDealID)
	assert.ErrorIs(t, err, core.ErrChainDealNotFound)
}

func TestGetChainContribution(t *testing.T) {
	contribution := contributionTuple{
		Status:     2,
		ResultHash: bytes32("0x97f68778e2fa9d60e58ceb64de2c0e72e309400c3168c69499db2140fad28039"),
		Weight:     new(big.Int),
	}
	reader, _ := newReader(t, map[string]interface{}{"viewContribution": contribution}, 0)
	got, err := reader.GetChainContribution(context.Background(), chainTaskID, worker)
	require.NoError(t, err)
	assert.Equal(t, core.ContributionRevealed, got.Status)
	assert.Equal(t, "0x97f68778e2fa9d60e58ceb64de2c0e72e309400c3168c69499db2140fad28039", got.ResultHash)

	reader, _ = newReader(t, map[string]interface{}{"viewContribution": contributionTuple{Weight: new(big.Int)}}, 0)
	_, err = reader.GetChainContribution(context.Background(), chainTaskID, worker)
	assert.ErrorIs(t, err, core.ErrChainContributionNotFound)

	_, err = reader.GetChainContribution(context.Background(), chainTaskID, "not-an-address")
	assert.Error(t, err)
}
