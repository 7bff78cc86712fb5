package ports

import (
	"context"

	"github.com/iExecBlockchainComputing/iexec-result-proxy/core"
)

// EventPublisher notifies other components about issued tokens and stored results
type EventPublisher interface {
	PublishTokenIssued(ctx context.Context, walletAddress string) error
	PublishResultUploaded(ctx context.Context, result core.UploadedResult) error
}
