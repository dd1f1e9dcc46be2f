package enums

// OutboxAggregateType maps to the aggregate_type enum in Postgres. Each
// aggregate is one change-feed table.
type OutboxAggregateType string

const (
	AggregateDonation     OutboxAggregateType = "food_donations"
	AggregateMatch        OutboxAggregateType = "donation_matches"
	AggregateNotification OutboxAggregateType = "notifications"
)

var aggregateTypes = enumOf("aggregate type", AggregateDonation, AggregateMatch, AggregateNotification)

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse(value)
}

// SyncedTables lists every table on the change feed.
func SyncedTables() []OutboxAggregateType { return aggregateTypes.all() }

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventDonationChanged     OutboxEventType = "donation_changed"
	EventMatchChanged        OutboxEventType = "match_changed"
	EventNotificationChanged OutboxEventType = "notification_changed"
)

var eventTypes = enumOf("event type", EventDonationChanged, EventMatchChanged, EventNotificationChanged)

func (e OutboxEventType) IsValid() bool { return eventTypes.has(e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) { return eventTypes.parse(value) }

// ChangeOp is the kind of row mutation carried on the change feed.
type ChangeOp string

const (
	ChangeOpInsert ChangeOp = "insert"
	ChangeOpUpdate ChangeOp = "update"
)

func (o ChangeOp) IsValid() bool {
	return o == ChangeOpInsert || o == ChangeOpUpdate
}
