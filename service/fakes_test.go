package service

import (
	"context"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/adapters/tokenizer"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/core"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/internal/eth"
	"github.com/stretchr/testify/require"
)

const (
	chainTaskID   = "0x877210dbec7b8461e396751e311b574d6b6909e3618dd0622f7182eaffdc6901"
	chainDealID   = "0x8012c1515a23e0d7ef07b7de780343df2fd18034ca55eea7202cab814603d288"
	poolPrivate   = "e2a973b083fae8043543f15313955aecee9de809a318656c1cfb22d3a6d52de1"
	teeSconeTag   = "0x0000000000000000000000000000000000000000000000000000000000000003"
	standardTag   = "0x0000000000000000000000000000000000000000000000000000000000000000"
	noEnclave     = "0x0000000000000000000000000000000000000000"
	resultHashHex = "0x97f68778e2fa9d60e58ceb64de2c0e72e309400c3168c69499db2140fad28039"
)

type fakeChain struct {
	tasks         map[string]core.ChainTask
	deals         map[string]core.ChainDeal
	contributions map[string]core.ChainContribution
	err           error
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		tasks:         map[string]core.ChainTask{},
		deals:         map[string]core.ChainDeal{},
		contributions: map[string]core.ChainContribution{},
	}
}

func (f *fakeChain) GetChainTask(ctx context.Context, id string) (core.ChainTask, error) {
	if f.err != nil {
		return core.ChainTask{}, f.err
	}
	task, ok := f.tasks[id]
	if !ok {
		return core.ChainTask{}, core.ErrChainTaskNotFound
	}
	return task, nil
}

func (f *fakeChain) GetChainDeal(ctx context.Context, id string) (core.ChainDeal, error) {
	deal, ok := f.deals[id]
	if !ok {
		return core.ChainDeal{}, core.ErrChainDealNotFound
	}
	return deal, nil
}

func (f *fakeChain) GetChainContribution(ctx context.Context, taskID, wallet string) (core.ChainContribution, error) {
	c, ok := f.contributions[core.AuthorizationKey(taskID, wallet)]
	if !ok {
		return core.ChainContribution{}, core.ErrChainContributionNotFound
	}
	return c, nil
}

type memoryTokens struct {
	mu      sync.Mutex
	records map[string]core.Jwt
	creates int
}

func newMemoryTokens() *memoryTokens {
	return &memoryTokens{records: map[string]core.Jwt{}}
}

func (m *memoryTokens) FindByWalletAddress(ctx context.Context, wallet string) (core.Jwt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	jwt, ok := m.records[wallet]
	if !ok {
		return core.Jwt{}, core.ErrTokenNotFound
	}
	return jwt, nil
}

func (m *memoryTokens) Create(ctx context.Context, jwt core.Jwt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[jwt.WalletAddress]; ok {
		return core.ErrTokenExists
	}
	m.creates++
	m.records[jwt.WalletAddress] = jwt
	return nil
}

func (m *memoryTokens) Replace(ctx context.Context, previous core.Jwt, token string) (core.Jwt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.records[previous.WalletAddress]
	if !ok || current.Version != previous.Version {
		return core.Jwt{}, core.ErrVersionConflict
	}
	next := core.Jwt{WalletAddress: previous.WalletAddress, Token: token, Version: previous.Version + 1}
	m.records[previous.WalletAddress] = next
	return next, nil
}

type fakeEvents struct {
	mu      sync.Mutex
	issued  []string
	uploads []core.UploadedResult
}

func (f *fakeEvents) PublishTokenIssued(ctx context.Context, wallet string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issued = append(f.issued, wallet)
	return nil
}

func (f *fakeEvents) PublishResultUploaded(ctx context.Context, result core.UploadedResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, result)
	return nil
}

type memoryStorage struct {
	mu      sync.Mutex
	results map[string][]byte
	writes  int
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{results: map[string][]byte{}}
}

func (m *memoryStorage) AddResult(ctx context.Context, id string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.results[id]; ok {
		return "", core.ErrResultAlreadyStored
	}
	m.writes++
	m.results[id] = data
	return "/results/" + id, nil
}

func (m *memoryStorage) GetResult(ctx context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.results[id]
	if !ok {
		return nil, core.ErrResultNotFound
	}
	return data, nil
}

func (m *memoryStorage) DoesResultExist(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.results[id]
	return ok, nil
}

func (m *memoryStorage) GetResultHandle(ctx context.Context, id string) (string, error) {
	if ok, _ := m.DoesResultExist(ctx, id); !ok {
		return "", core.ErrResultNotFound
	}
	return "/results/" + id, nil
}

type fakeEnclaveChecker struct {
	valid bool
	calls int
}

func (f *fakeEnclaveChecker) CheckEnclaveSignature(ctx context.Context, model core.ResultModel, wallet string) bool {
	f.calls++
	return f.valid
}

func newTestTokenizer(t *testing.T) *tokenizer.JWTTokenizer {
	t.Helper()
	key, err := tokenizer.LoadOrCreateKey("")
	require.NoError(t, err)
	tk, err := tokenizer.NewJWTTokenizer(key)
	require.NoError(t, err)
	return tk
}

func newSigner(t *testing.T) *eth.KeySigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return eth.NewKeySigner(key)
}

func poolSigner(t *testing.T) *eth.KeySigner {
	t.Helper()
	key, err := crypto.HexToECDSA(poolPrivate)
	require.NoError(t, err)
	return eth.NewKeySigner(key)
}

func signerAddress(s *eth.KeySigner) string {
	return s.Address().Hex()
}
