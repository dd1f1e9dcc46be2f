package types

import (
	"time"

	"github.com/foodbridge/foodbridge-backend/pkg/enums"
	"github.com/foodbridge/foodbridge-backend/pkg/outbox"
	"github.com/foodbridge/foodbridge-backend/pkg/outbox/payloads"
)

// Envelope is a decoded change feed message ready for routing.
type Envelope struct {
	EventID    string
	EventType  enums.OutboxEventType
	OccurredAt time.Time
	Actor      *outbox.ActorRef
	Change     payloads.ChangeEvent
}

// ActorID returns the acting user id, or an empty string for system writes.
func (e Envelope) ActorID() string {
	if e.Actor == nil {
		return ""
	}
	return e.Actor.UserID.String()
}
