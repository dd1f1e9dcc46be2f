package router

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/foodbridge/foodbridge-backend/internal/analytics/types"
	analyticswriter "github.com/foodbridge/foodbridge-backend/internal/analytics/writer"
)

// commonRow fills the columns every change kind shares.
func commonRow(envelope types.Envelope) (types.DonationEventRow, error) {
	change := envelope.Change
	payload, err := analyticswriter.EncodeJSON(change)
	if err != nil {
		return types.DonationEventRow{}, fmt.Errorf("encode payload json: %w", err)
	}
	row := types.DonationEventRow{
		EventID:    envelope.EventID,
		EventType:  string(envelope.EventType),
		OccurredAt: envelope.OccurredAt,
		TableName:  string(change.Table),
		RowID:      change.RowID.String(),
		Op:         string(change.Op),
		RowVersion: change.RowVersion,
		Status:     nullable(change.Status),
		ActorID:    nullable(envelope.ActorID()),
		Payload:    payload,
	}
	if envelope.Actor != nil {
		row.ActorRole = nullable(string(envelope.Actor.Role))
	}
	return row, nil
}

func donationRow(envelope types.Envelope) (types.DonationEventRow, error) {
	facts := envelope.Change.Donation
	if facts == nil {
		return types.DonationEventRow{}, fmt.Errorf("donation change %s carries no donation facts", envelope.Change.RowID)
	}
	row, err := commonRow(envelope)
	if err != nil {
		return row, err
	}
	row.DonationID = nullableID(envelope.Change.RowID)
	row.DonorID = nullableID(facts.DonorID)
	row.FoodType = nullable(string(facts.FoodType))
	row.Unit = nullable(string(facts.Unit))
	if !facts.Quantity.IsZero() {
		row.Quantity = facts.Quantity.Rat()
	}
	if !facts.ExpirationDate.IsZero() {
		expires := facts.ExpirationDate.UTC()
		row.ExpirationDate = &expires
	}
	return row, nil
}

func matchRow(envelope types.Envelope) (types.DonationEventRow, error) {
	facts := envelope.Change.Match
	if facts == nil {
		return types.DonationEventRow{}, fmt.Errorf("match change %s carries no match facts", envelope.Change.RowID)
	}
	row, err := commonRow(envelope)
	if err != nil {
		return row, err
	}
	row.MatchID = nullableID(envelope.Change.RowID)
	row.DonationID = nullableID(facts.DonationID)
	row.RecipientID = nullableID(facts.RecipientID)
	if facts.VolunteerID != nil {
		row.VolunteerID = nullableID(*facts.VolunteerID)
	}
	row.FromStatus = nullable(facts.FromStatus)
	row.Action = nullable(facts.Action)
	return row, nil
}

// nullable maps blank strings to NULL.
func nullable(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func nullableID(id uuid.UUID) *string {
	if id == uuid.Nil {
		return nil
	}
	return nullable(id.String())
}
