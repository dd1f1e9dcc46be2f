package enums

// MatchStatus maps to the match_status enum in Postgres.
type MatchStatus string

const (
	MatchStatusPending   MatchStatus = "pending"
	MatchStatusConfirmed MatchStatus = "confirmed"
	MatchStatusInTransit MatchStatus = "in_transit"
	MatchStatusCompleted MatchStatus = "completed"
	MatchStatusCancelled MatchStatus = "cancelled"
)

var matchStatuses = enumOf("match status",
	MatchStatusPending, MatchStatusConfirmed, MatchStatusInTransit, MatchStatusCompleted, MatchStatusCancelled)

func (s MatchStatus) String() string { return string(s) }

func (s MatchStatus) IsValid() bool { return matchStatuses.has(s) }

// IsActive reports whether the match still holds its donation.
func (s MatchStatus) IsActive() bool {
	return s.IsValid() && s != MatchStatusCancelled
}

// IsTerminal reports whether no further transition can leave this status.
// Cancelled matches are terminal for the match itself; reorder creates a new one.
func (s MatchStatus) IsTerminal() bool {
	return s == MatchStatusCompleted || s == MatchStatusCancelled
}

func ParseMatchStatus(value string) (MatchStatus, error) { return matchStatuses.parse(value) }

// MatchAction names a step of the match lifecycle.
type MatchAction string

const (
	MatchActionClaim    MatchAction = "claim"
	MatchActionConfirm  MatchAction = "confirm"
	MatchActionPickup   MatchAction = "pickup"
	MatchActionComplete MatchAction = "complete"
	MatchActionCancel   MatchAction = "cancel"
	MatchActionReorder  MatchAction = "reorder"
)

func (a MatchAction) String() string { return string(a) }
