package types

import (
	"math/big"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// DonationEventRow mirrors the donation_events BigQuery schema. Donation and
// match changes share the table; columns of the other kind stay null.
type DonationEventRow struct {
	EventID    string    `bigquery:"event_id"`
	EventType  string    `bigquery:"event_type"`
	OccurredAt time.Time `bigquery:"occurred_at"`
	TableName  string    `bigquery:"table_name"`
	RowID      string    `bigquery:"row_id"`
	Op         string    `bigquery:"op"`
	RowVersion int64     `bigquery:"row_version"`
	Status     *string   `bigquery:"status"`

	DonationID     *string    `bigquery:"donation_id"`
	DonorID        *string    `bigquery:"donor_id"`
	FoodType       *string    `bigquery:"food_type"`
	Quantity       *big.Rat   `bigquery:"quantity"`
	Unit           *string    `bigquery:"unit"`
	ExpirationDate *time.Time `bigquery:"expiration_date"`

	MatchID     *string `bigquery:"match_id"`
	RecipientID *string `bigquery:"recipient_id"`
	VolunteerID *string `bigquery:"volunteer_id"`
	FromStatus  *string `bigquery:"from_status"`
	Action      *string `bigquery:"action"`

	ActorID   *string            `bigquery:"actor_id"`
	ActorRole *string            `bigquery:"actor_role"`
	Payload   cbigquery.NullJSON `bigquery:"payload"`
}
