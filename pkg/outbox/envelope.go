package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/watchpoints/points-engine/pkg/enums"
)

// PayloadVersion is written on events that do not set their own version.
const PayloadVersion = 1

// ActorRef is the caller whose request produced the event. System jobs leave
// it nil.
type ActorRef struct {
	UserID uuid.UUID  `json:"userId"`
	Role   enums.Role `json:"role,omitempty"`
}

// PayloadEnvelope wraps every outbox payload. EventID doubles as the
// consumer-side dedupe key.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
