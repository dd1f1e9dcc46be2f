package matches

import (
	"slices"

	"github.com/google/uuid"

	"github.com/foodbridge/foodbridge-backend/pkg/db/models"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
	pkgerrors "github.com/foodbridge/foodbridge-backend/pkg/errors"
)

// noState stands in for the source of a claim, which has no prior match.
const noState enums.MatchStatus = "none"

// rule is one row of the match lifecycle table.
type rule struct {
	From   enums.MatchStatus
	To     enums.MatchStatus
	Action enums.MatchAction
	Roles  []enums.UserRole
}

func (r rule) allows(role enums.UserRole) bool {
	return slices.Contains(r.Roles, role)
}

var transitionTable = []rule{
	{From: noState, To: enums.MatchStatusPending, Action: enums.MatchActionClaim, Roles: []enums.UserRole{enums.UserRoleRecipient}},
	{From: enums.MatchStatusPending, To: enums.MatchStatusConfirmed, Action: enums.MatchActionConfirm, Roles: []enums.UserRole{enums.UserRoleRecipient}},
	{From: enums.MatchStatusConfirmed, To: enums.MatchStatusInTransit, Action: enums.MatchActionPickup, Roles: []enums.UserRole{enums.UserRoleVolunteer}},
	{From: enums.MatchStatusInTransit, To: enums.MatchStatusCompleted, Action: enums.MatchActionComplete, Roles: []enums.UserRole{enums.UserRoleVolunteer, enums.UserRoleRecipient}},
	{From: enums.MatchStatusPending, To: enums.MatchStatusCancelled, Action: enums.MatchActionCancel, Roles: []enums.UserRole{enums.UserRoleRecipient, enums.UserRoleDonor}},
	{From: enums.MatchStatusConfirmed, To: enums.MatchStatusCancelled, Action: enums.MatchActionCancel, Roles: []enums.UserRole{enums.UserRoleRecipient, enums.UserRoleDonor}},
	{From: enums.MatchStatusCancelled, To: enums.MatchStatusPending, Action: enums.MatchActionReorder, Roles: []enums.UserRole{enums.UserRoleRecipient}},
}

// transitionFor returns the table row for from -> to.
func transitionFor(from, to enums.MatchStatus) (rule, bool) {
	for _, r := range transitionTable {
		if r.From == from && r.To == to {
			return r, true
		}
	}
	return rule{}, false
}

// progress orders the forward states of a match.
var progress = map[enums.MatchStatus]int{
	enums.MatchStatusPending:   0,
	enums.MatchStatusConfirmed: 1,
	enums.MatchStatusInTransit: 2,
	enums.MatchStatusCompleted: 3,
}

// alreadyPast reports whether observed shows that a concurrent writer already
// moved the match to or beyond target.
func alreadyPast(observed, target enums.MatchStatus) bool {
	if target == enums.MatchStatusCancelled {
		return observed == enums.MatchStatusCancelled
	}
	if target == enums.MatchStatusPending {
		return false
	}
	if observed == enums.MatchStatusCancelled {
		return true
	}
	o, okObserved := progress[observed]
	t, okTarget := progress[target]
	return okObserved && okTarget && o >= t
}

// resolve picks the rule that moves a match in state observed to target on
// behalf of role. A lost race yields Conflict; anything outside the table or
// the role's permissions yields InvalidTransition.
func resolve(observed, target enums.MatchStatus, role enums.UserRole) (rule, error) {
	invalid := pkgerrors.InvalidTransition(string(observed), string(target), string(role))

	var candidates []rule
	for _, r := range transitionTable {
		if r.To == target && r.From != noState {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return rule{}, invalid
	}
	permitted := slices.ContainsFunc(candidates, func(r rule) bool { return r.allows(role) })
	if !permitted {
		return rule{}, invalid
	}
	for _, r := range candidates {
		if r.From == observed {
			return r, nil
		}
	}
	if alreadyPast(observed, target) {
		return rule{}, pkgerrors.Conflict("already_past", "match is already "+string(observed)).
			With("status", observed).With("target", target)
	}
	return rule{}, invalid
}

// isParty checks that the actor holds the match-specific seat the rule needs.
func isParty(r rule, match models.Match, donation models.Donation, actorID uuid.UUID, role enums.UserRole) bool {
	switch r.Action {
	case enums.MatchActionConfirm, enums.MatchActionReorder:
		return match.RecipientID == actorID
	case enums.MatchActionPickup:
		return true
	case enums.MatchActionComplete:
		if role == enums.UserRoleVolunteer {
			return match.VolunteerID != nil && *match.VolunteerID == actorID
		}
		return match.RecipientID == actorID
	case enums.MatchActionCancel:
		if role == enums.UserRoleDonor {
			return donation.DonorID == actorID
		}
		return match.RecipientID == actorID
	default:
		return false
	}
}

// visibleTo reports whether the actor may read the match.
func visibleTo(match models.Match, donation models.Donation, actorID uuid.UUID, role enums.UserRole) bool {
	switch role {
	case enums.UserRoleDonor:
		return donation.DonorID == actorID
	case enums.UserRoleRecipient:
		return match.RecipientID == actorID
	case enums.UserRoleVolunteer:
		if match.VolunteerID != nil {
			return *match.VolunteerID == actorID
		}
		return match.Status == enums.MatchStatusConfirmed
	default:
		return false
	}
}

// canAct widens visibility for pickups so a volunteer who lost the race to
// accept a queued match learns about the conflict.
func canAct(match models.Match, donation models.Donation, actorID uuid.UUID, role enums.UserRole, target enums.MatchStatus) bool {
	if role == enums.UserRoleVolunteer && target == enums.MatchStatusInTransit && match.VolunteerID != nil {
		return true
	}
	return visibleTo(match, donation, actorID, role)
}

// Capability is a lifecycle move a role may attempt, subject to holding the
// right seat on the match.
type Capability struct {
	From   enums.MatchStatus `json:"from"`
	To     enums.MatchStatus `json:"to"`
	Action enums.MatchAction `json:"action"`
}

// CapabilitiesFor lists the moves role may attempt, in lifecycle order.
func CapabilitiesFor(role enums.UserRole) []Capability {
	var out []Capability
	for _, r := range transitionTable {
		if r.allows(role) {
			out = append(out, Capability{From: r.From, To: r.To, Action: r.Action})
		}
	}
	return out
}
