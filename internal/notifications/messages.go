package notifications

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/foodbridge/foodbridge-backend/pkg/db/models"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
)

// Transition describes one committed step of the match lifecycle.
type Transition struct {
	Action    enums.MatchAction
	Match     models.Match
	Donation  models.Donation
	ActorID   uuid.UUID
	ActorRole enums.UserRole
	From      enums.MatchStatus
	To        enums.MatchStatus
}

type template struct {
	Type    enums.NotificationType
	Title   string
	Message string
}

// Parties resolves who must hear about a transition: the counterparts of the
// actor, each exactly once, never the actor.
func Parties(t Transition) []uuid.UUID {
	donor := t.Donation.DonorID
	recipient := t.Match.RecipientID

	var candidates []uuid.UUID
	switch t.Action {
	case enums.MatchActionClaim, enums.MatchActionReorder, enums.MatchActionConfirm:
		candidates = []uuid.UUID{donor}
	case enums.MatchActionPickup:
		candidates = []uuid.UUID{recipient, donor}
	case enums.MatchActionComplete:
		candidates = []uuid.UUID{donor, recipient}
		if t.Match.VolunteerID != nil {
			candidates = append(candidates, *t.Match.VolunteerID)
		}
	case enums.MatchActionCancel:
		if t.ActorID == donor {
			candidates = []uuid.UUID{recipient}
		} else {
			candidates = []uuid.UUID{donor}
		}
		if t.Match.VolunteerID != nil {
			candidates = append(candidates, *t.Match.VolunteerID)
		}
	}

	seen := map[uuid.UUID]struct{}{t.ActorID: {}}
	parties := make([]uuid.UUID, 0, len(candidates))
	for _, id := range candidates {
		if id == uuid.Nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		parties = append(parties, id)
	}
	return parties
}

func templateFor(t Transition) template {
	title := t.Donation.Title
	switch t.Action {
	case enums.MatchActionClaim:
		return template{
			Type:    enums.NotificationTypeMatch,
			Title:   "Food Donation Claimed",
			Message: fmt.Sprintf("Your %q donation has been claimed by a recipient.", title),
		}
	case enums.MatchActionReorder:
		return template{
			Type:    enums.NotificationTypeMatch,
			Title:   "Food Donation Claimed Again",
			Message: fmt.Sprintf("Your %q donation has been claimed again by a recipient.", title),
		}
	case enums.MatchActionConfirm:
		return template{
			Type:    enums.NotificationTypeMatch,
			Title:   "Match Confirmed",
			Message: fmt.Sprintf("The recipient confirmed the pickup of %q. A volunteer can now accept the delivery.", title),
		}
	case enums.MatchActionPickup:
		return template{
			Type:    enums.NotificationTypePickup,
			Title:   "Pickup In Progress",
			Message: fmt.Sprintf("A volunteer picked up %q and is on the way.", title),
		}
	case enums.MatchActionComplete:
		return template{
			Type:    enums.NotificationTypePickup,
			Title:   "Delivery Completed",
			Message: fmt.Sprintf("%q has been delivered. You can now rate this match.", title),
		}
	case enums.MatchActionCancel:
		return template{
			Type:    enums.NotificationTypeMatch,
			Title:   "Match Cancelled",
			Message: fmt.Sprintf("The match for %q was cancelled by the %s.", title, t.ActorRole),
		}
	default:
		return template{
			Type:    enums.NotificationTypeMatch,
			Title:   "Match Updated",
			Message: fmt.Sprintf("The match for %q is now %s.", title, t.To),
		}
	}
}

func expiredTemplate(donation models.Donation) template {
	return template{
		Type:    enums.NotificationTypeDonation,
		Title:   "Donation Expired",
		Message: fmt.Sprintf("Your %q donation expired before anyone claimed it.", donation.Title),
	}
}
