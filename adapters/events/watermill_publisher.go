package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/core"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/ports"
	"github.com/shopspring/decimal"
)

const (
	TopicTokenIssued    = "resultproxy.token.issued"
	TopicResultUploaded = "resultproxy.result.uploaded"
)

// TokenIssuedEvent is published when a wallet receives its first access token
type TokenIssuedEvent struct {
	WalletAddress string    `json:"wallet_address"`
	IssuedAt      time.Time `json:"issued_at"`
}

// ResultUploadedEvent is published once a task result is stored
type ResultUploadedEvent struct {
	ChainTaskID     string          `json:"chain_task_id"`
	Uploader        string          `json:"uploader"`
	Link            string          `json:"link"`
	WorkerpoolPrice decimal.Decimal `json:"workerpool_price"`
	UploadedAt      time.Time       `json:"uploaded_at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	now       func() time.Time
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		now:       time.Now,
	}
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

func (p *WatermillPublisher) PublishTokenIssued(ctx context.Context, walletAddress string) error {
	return p.publish(ctx, TopicTokenIssued, TokenIssuedEvent{
		WalletAddress: walletAddress,
		IssuedAt:      p.now().UTC(),
	})
}

func (p *WatermillPublisher) PublishResultUploaded(ctx context.Context, result core.UploadedResult) error {
	return p.publish(ctx, TopicResultUploaded, ResultUploadedEvent{
		ChainTaskID:     result.ChainTaskID,
		Uploader:        result.Uploader,
		Link:            result.Link,
		WorkerpoolPrice: result.WorkerpoolPrice,
		UploadedAt:      p.now().UTC(),
	})
}

func (p *WatermillPublisher) publish(ctx context.Context, topic string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", topic, err)
	}

	return nil
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) PublishTokenIssued(context.Context, string) error { return nil }

func (NopPublisher) PublishResultUploaded(context.Context, core.UploadedResult) error { return nil }
