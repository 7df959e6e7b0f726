package registry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/watchpoints/points-engine/pkg/enums"
)

// Decoder turns an envelope's data into a typed payload.
type Decoder func(data json.RawMessage) (any, error)

// JSON decodes data into a fresh *T.
func JSON[T any]() Decoder {
	return func(data json.RawMessage) (any, error) {
		payload := new(T)
		if err := json.Unmarshal(data, payload); err != nil {
			return nil, err
		}
		return payload, nil
	}
}

type schemaKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry holds one decoder per event type and payload version, so
// rows written under an older schema stay readable after a payload changes.
type DecoderRegistry struct {
	mu       sync.RWMutex
	decoders map[schemaKey]Decoder
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: make(map[schemaKey]Decoder)}
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[schemaKey{eventType: eventType, version: normalizeVersion(version)}] = decoder
}

// Has reports whether any version of eventType is registered.
func (r *DecoderRegistry) Has(eventType enums.OutboxEventType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for key := range r.decoders {
		if key.eventType == eventType {
			return true
		}
	}
	return false
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, data json.RawMessage) (any, error) {
	r.mu.RLock()
	decoder, ok := r.decoders[schemaKey{eventType: eventType, version: normalizeVersion(version)}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no decoder for %s@v%d", eventType, normalizeVersion(version))
	}
	return decoder(data)
}

// normalizeVersion reads envelopes written before versioning as v1.
func normalizeVersion(version int) int {
	if version <= 0 {
		return 1
	}
	return version
}
