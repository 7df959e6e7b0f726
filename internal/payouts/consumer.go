// Package payouts settles redemption requests from payout provider results.
package payouts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/watchpoints/points-engine/pkg/db/models"
	pkgerrors "github.com/watchpoints/points-engine/pkg/errors"
	"github.com/watchpoints/points-engine/pkg/logger"
	"github.com/watchpoints/points-engine/pkg/outbox/payloads"
)

const consumerName = "payout-results"

type settler interface {
	MarkProcessing(ctx context.Context, id uuid.UUID) (*models.RedemptionRequest, error)
	Complete(ctx context.Context, id uuid.UUID, providerReference string) (*models.RedemptionRequest, error)
	Fail(ctx context.Context, id uuid.UUID, reason string) (*models.RedemptionRequest, error)
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, messageID string) (bool, error)
	Delete(ctx context.Context, consumer, messageID string) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

// Consumer applies accepted, succeeded and failed payout results to redemption
// requests. Redeliveries are dropped through the idempotency manager.
type Consumer struct {
	subscription receiver
	settler      settler
	manager      idempotencyChecker
	logg         *logger.Logger
}

func NewConsumer(subscription *gcppubsub.Subscriber, settler settler, manager idempotencyChecker, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, errors.New("payout results subscription is required")
	}
	if settler == nil {
		return nil, errors.New("redemption settler is required")
	}
	if manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{
		subscription: subscription,
		settler:      settler,
		manager:      manager,
		logg:         logg,
	}, nil
}

type processResult struct {
	nack bool
}

// Run consumes payout results until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if c.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (c *Consumer) process(ctx context.Context, msg *gcppubsub.Message) processResult {
	fields := map[string]any{"message_id": msg.ID}

	result, err := decode(msg)
	if err != nil {
		fields["error"] = err.Error()
		c.logg.Warn(c.logg.WithFields(ctx, fields), "invalid payout result")
		return processResult{}
	}
	fields["redemption_id"] = result.RedemptionID.String()
	fields["outcome"] = result.Outcome()
	logCtx := c.logg.WithFields(ctx, fields)

	deliveryID := messageKey(msg)
	already, err := c.manager.CheckAndMarkProcessed(logCtx, consumerName, deliveryID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "payout result already processed")
		return processResult{}
	}

	if err := c.settle(logCtx, result); err != nil {
		if !retryable(err) {
			c.logg.Warn(c.logg.WithField(logCtx, "reason", err.Error()), "payout result rejected")
			return processResult{}
		}
		c.logg.Error(logCtx, "payout settlement failed", err)
		_ = c.manager.Delete(logCtx, consumerName, deliveryID)
		return processResult{nack: true}
	}

	c.logg.Info(logCtx, "payout result applied")
	return processResult{}
}

func (c *Consumer) settle(ctx context.Context, result payloads.PayoutResultMessage) error {
	var err error
	switch result.Outcome() {
	case payloads.PayoutStatusAccepted:
		_, err = c.settler.MarkProcessing(ctx, result.RedemptionID)
	case payloads.PayoutStatusSucceeded:
		_, err = c.settler.Complete(ctx, result.RedemptionID, result.ProviderReference)
	case payloads.PayoutStatusFailed:
		reason := strings.TrimSpace(result.FailureReason)
		if reason == "" {
			reason = "payout provider reported failure"
		}
		_, err = c.settler.Fail(ctx, result.RedemptionID, reason)
	}
	return err
}

func decode(msg *gcppubsub.Message) (payloads.PayoutResultMessage, error) {
	var result payloads.PayoutResultMessage
	if err := json.Unmarshal(msg.Data, &result); err != nil {
		return result, fmt.Errorf("decode payout result: %w", err)
	}
	if result.RedemptionID == uuid.Nil {
		return result, errors.New("redemption_id missing")
	}
	if result.Outcome() == "" {
		return result, fmt.Errorf("unknown payout status %q", result.Status)
	}
	return result, nil
}

// messageKey prefers the provider's result id so a result republished under
// a new Pub/Sub message id still dedupes.
func messageKey(msg *gcppubsub.Message) string {
	if id := strings.TrimSpace(msg.Attributes["result_id"]); id != "" {
		return id
	}
	return msg.ID
}

// retryable keeps store outages on the redelivery path. Missing requests and
// conflicting terminal states will never succeed, so they are acked.
func retryable(err error) bool {
	typed := pkgerrors.As(err)
	if typed == nil {
		return true
	}
	switch typed.Code() {
	case pkgerrors.CodeNotFound, pkgerrors.CodeStateConflict, pkgerrors.CodeValidation:
		return false
	}
	return true
}
