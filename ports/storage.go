package ports

import (
	"context"

	"github.com/iExecBlockchainComputing/iexec-result-proxy/core"
)

// ResultStorage stores at most one result archive per task
type ResultStorage interface {
	// AddResult returns the result link, or core.ErrResultAlreadyStored
	AddResult(ctx context.Context, chainTaskID string, data []byte) (string, error)
	// GetResult returns core.ErrResultNotFound when nothing is stored for the task
	GetResult(ctx context.Context, chainTaskID string) ([]byte, error)
	DoesResultExist(ctx context.Context, chainTaskID string) (bool, error)
	// GetResultHandle returns the content-addressed handle of the task result
	GetResultHandle(ctx context.Context, chainTaskID string) (string, error)
}

// EnclaveSignatureChecker verifies enclave signed results of TEE tasks
type EnclaveSignatureChecker interface {
	CheckEnclaveSignature(ctx context.Context, model core.ResultModel, walletAddress string) bool
}
