package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/watchpoints/points-engine/pkg/config"
	"github.com/watchpoints/points-engine/pkg/db/models"
	"github.com/watchpoints/points-engine/pkg/enums"
	"github.com/watchpoints/points-engine/pkg/outbox"
	"github.com/watchpoints/points-engine/pkg/outbox/payloads"
)

// EventDescriptor routes an event type to its topic.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry maps each supported event type to its descriptor and the
// decoders for its payload versions.
type EventRegistry struct {
	entries  map[enums.OutboxEventType]EventDescriptor
	decoders *DecoderRegistry
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewEventRegistry builds the registry with the configured topic names.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.PayoutsTopic == "" {
		return nil, fmt.Errorf("payouts topic is required")
	}
	if cfg.LedgerEventsTopic == "" {
		return nil, fmt.Errorf("ledger events topic is required")
	}

	reg := &EventRegistry{
		entries:  make(map[enums.OutboxEventType]EventDescriptor),
		decoders: NewDecoderRegistry(),
	}
	reg.register(EventDescriptor{
		EventType:     enums.EventRedemptionRequested,
		AggregateType: enums.AggregateRedemption,
		Topic:         cfg.PayoutsTopic,
	}, JSON[payloads.RedemptionRequestedEvent]())
	ledgerEvents := map[enums.OutboxEventType]struct {
		aggregate enums.OutboxAggregateType
		decoder   Decoder
	}{
		enums.EventRedemptionCompleted: {enums.AggregateRedemption, JSON[payloads.RedemptionCompletedEvent]()},
		enums.EventRedemptionReversed:  {enums.AggregateRedemption, JSON[payloads.RedemptionReversedEvent]()},
		enums.EventWalletDriftDetected: {enums.AggregateWallet, JSON[payloads.WalletDriftDetectedEvent]()},
		enums.EventBonusGranted:        {enums.AggregateLedger, JSON[payloads.BonusGrantedEvent]()},
	}
	for eventType, def := range ledgerEvents {
		reg.register(EventDescriptor{
			EventType:     eventType,
			AggregateType: def.aggregate,
			Topic:         cfg.LedgerEventsTopic,
		}, def.decoder)
	}

	return reg, nil
}

// Topics lists every topic an event can be routed to.
func (r *EventRegistry) Topics() []string {
	seen := map[string]struct{}{}
	var topics []string
	for _, desc := range r.entries {
		if _, ok := seen[desc.Topic]; ok {
			continue
		}
		seen[desc.Topic] = struct{}{}
		topics = append(topics, desc.Topic)
	}
	sort.Strings(topics)
	return topics
}

// register adds desc with its v1 decoder. Later payload versions are added
// with RegisterDecoder.
func (r *EventRegistry) register(desc EventDescriptor, v1 Decoder) {
	r.entries[desc.EventType] = desc
	r.decoders.Register(desc.EventType, 1, v1)
}

// RegisterDecoder adds a decoder for another payload version of a known event.
func (r *EventRegistry) RegisterDecoder(eventType enums.OutboxEventType, version int, decoder Decoder) error {
	if _, ok := r.entries[eventType]; !ok {
		return fmt.Errorf("unknown event type %s", eventType)
	}
	r.decoders.Register(eventType, version, decoder)
	return nil
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload, err := r.decoders.Decode(event.EventType, envelope.Version, envelope.Data)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}
