package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/foodbridge/foodbridge-backend/pkg/enums"
)

// ActorRef identifies who caused a change. Nil on an envelope means the
// system did, for example an expiry sweep.
type ActorRef struct {
	UserID uuid.UUID      `json:"user_id"`
	Role   enums.UserRole `json:"role,omitempty"`
}

// Actor is shorthand for &ActorRef{...}.
func Actor(userID uuid.UUID, role enums.UserRole) *ActorRef {
	return &ActorRef{UserID: userID, Role: role}
}

// PayloadEnvelope is stored in outbox_events.payload and relayed unchanged as
// the Pub/Sub message body. EventID equals the outbox row id.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"event_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
