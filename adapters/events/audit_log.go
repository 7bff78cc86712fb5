package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
)

// AuditLog writes every published event to a logger
type AuditLog struct {
	subscriber message.Subscriber
	logger     zerolog.Logger
	wg         sync.WaitGroup
}

func NewAuditLog(subscriber message.Subscriber, logger zerolog.Logger) *AuditLog {
	return &AuditLog{
		subscriber: subscriber,
		logger:     logger.With().Str("component", "audit").Logger(),
	}
}

// Start subscribes to both event topics and consumes them in the background
// until ctx is done. Events published after Start returns are never missed.
func (a *AuditLog) Start(ctx context.Context) error {
	tokens, err := a.subscriber.Subscribe(ctx, TopicTokenIssued)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", TopicTokenIssued, err)
	}
	uploads, err := a.subscriber.Subscribe(ctx, TopicResultUploaded)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", TopicResultUploaded, err)
	}

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.consume(tokens, a.logTokenIssued)
	}()
	go func() {
		defer a.wg.Done()
		a.consume(uploads, a.logResultUploaded)
	}()
	return nil
}

// Wait blocks until both consumers stopped
func (a *AuditLog) Wait() {
	a.wg.Wait()
}

func (a *AuditLog) consume(messages <-chan *message.Message, handle func([]byte) error) {
	for msg := range messages {
		if err := handle(msg.Payload); err != nil {
			a.logger.Warn().Err(err).Str("uuid", msg.UUID).Msg("Dropping malformed event")
		}
		msg.Ack()
	}
}

func (a *AuditLog) logTokenIssued(payload []byte) error {
	var event TokenIssuedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return err
	}
	a.logger.Info().
		Str("walletAddress", event.WalletAddress).
		Time("issuedAt", event.IssuedAt).
		Msg("Token issued")
	return nil
}

func (a *AuditLog) logResultUploaded(payload []byte) error {
	var event ResultUploadedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return err
	}
	a.logger.Info().
		Str("chainTaskId", event.ChainTaskID).
		Str("uploader", event.Uploader).
		Str("resultLink", event.Link).
		Stringer("workerpoolPrice", event.WorkerpoolPrice).
		Time("uploadedAt", event.UploadedAt).
		Msg("Result uploaded")
	return nil
}
