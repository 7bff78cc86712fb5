package ports

import (
	"context"

	"github.com/iExecBlockchainComputing/iexec-result-proxy/core"
)

// ChainReader reads PoCo state from the blockchain
type ChainReader interface {
	GetChainTask(ctx context.Context, chainTaskID string) (core.ChainTask, error)
	GetChainDeal(ctx context.Context, chainDealID string) (core.ChainDeal, error)
	GetChainContribution(ctx context.Context, chainTaskID, walletAddress string) (core.ChainContribution, error)
}
