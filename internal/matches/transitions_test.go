package matches

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodbridge/foodbridge-backend/pkg/db/models"
	"github.com/foodbridge/foodbridge-backend/pkg/enums"
	pkgerrors "github.com/foodbridge/foodbridge-backend/pkg/errors"
)

var (
	allStatuses = []enums.MatchStatus{
		enums.MatchStatusPending,
		enums.MatchStatusConfirmed,
		enums.MatchStatusInTransit,
		enums.MatchStatusCompleted,
		enums.MatchStatusCancelled,
	}
	allRoles = []enums.UserRole{enums.UserRoleDonor, enums.UserRoleRecipient, enums.UserRoleVolunteer}
)

type triple struct {
	from enums.MatchStatus
	to   enums.MatchStatus
	role enums.UserRole
}

func TestResolveCoversEveryTriple(t *testing.T) {
	allowed := map[triple]enums.MatchAction{
		{enums.MatchStatusPending, enums.MatchStatusConfirmed, enums.UserRoleRecipient}:   enums.MatchActionConfirm,
		{enums.MatchStatusConfirmed, enums.MatchStatusInTransit, enums.UserRoleVolunteer}: enums.MatchActionPickup,
		{enums.MatchStatusInTransit, enums.MatchStatusCompleted, enums.UserRoleVolunteer}: enums.MatchActionComplete,
		{enums.MatchStatusInTransit, enums.MatchStatusCompleted, enums.UserRoleRecipient}: enums.MatchActionComplete,
		{enums.MatchStatusPending, enums.MatchStatusCancelled, enums.UserRoleRecipient}:   enums.MatchActionCancel,
		{enums.MatchStatusPending, enums.MatchStatusCancelled, enums.UserRoleDonor}:       enums.MatchActionCancel,
		{enums.MatchStatusConfirmed, enums.MatchStatusCancelled, enums.UserRoleRecipient}: enums.MatchActionCancel,
		{enums.MatchStatusConfirmed, enums.MatchStatusCancelled, enums.UserRoleDonor}:     enums.MatchActionCancel,
		{enums.MatchStatusCancelled, enums.MatchStatusPending, enums.UserRoleRecipient}:   enums.MatchActionReorder,
	}
	conflicts := map[triple]bool{
		{enums.MatchStatusConfirmed, enums.MatchStatusConfirmed, enums.UserRoleRecipient}: true,
		{enums.MatchStatusInTransit, enums.MatchStatusConfirmed, enums.UserRoleRecipient}: true,
		{enums.MatchStatusCompleted, enums.MatchStatusConfirmed, enums.UserRoleRecipient}: true,
		{enums.MatchStatusCancelled, enums.MatchStatusConfirmed, enums.UserRoleRecipient}: true,
		{enums.MatchStatusInTransit, enums.MatchStatusInTransit, enums.UserRoleVolunteer}: true,
		{enums.MatchStatusCompleted, enums.MatchStatusInTransit, enums.UserRoleVolunteer}: true,
		{enums.MatchStatusCancelled, enums.MatchStatusInTransit, enums.UserRoleVolunteer}: true,
		{enums.MatchStatusCompleted, enums.MatchStatusCompleted, enums.UserRoleVolunteer}: true,
		{enums.MatchStatusCompleted, enums.MatchStatusCompleted, enums.UserRoleRecipient}: true,
		{enums.MatchStatusCancelled, enums.MatchStatusCompleted, enums.UserRoleVolunteer}: true,
		{enums.MatchStatusCancelled, enums.MatchStatusCompleted, enums.UserRoleRecipient}: true,
		{enums.MatchStatusCancelled, enums.MatchStatusCancelled, enums.UserRoleRecipient}: true,
		{enums.MatchStatusCancelled, enums.MatchStatusCancelled, enums.UserRoleDonor}:     true,
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			for _, role := range allRoles {
				key := triple{from, to, role}
				t.Run(string(from)+"->"+string(to)+"/"+string(role), func(t *testing.T) {
					r, err := resolve(from, to, role)
					if action, ok := allowed[key]; ok {
						require.NoError(t, err)
						assert.Equal(t, action, r.Action)
						assert.Equal(t, from, r.From)
						assert.Equal(t, to, r.To)
						return
					}
					require.Error(t, err)
					if conflicts[key] {
						assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "want conflict, got %v", err)
						return
					}
					typed := pkgerrors.As(err)
					require.NotNil(t, typed)
					assert.Equal(t, pkgerrors.CodeInvalidTransition, typed.Code())
					assert.Equal(t, map[string]any{"from": string(from), "to": string(to), "role": string(role)}, typed.Details())
				})
			}
		}
	}
}

func TestTransitionForClaimRow(t *testing.T) {
	r, ok := transitionFor(noState, enums.MatchStatusPending)
	require.True(t, ok)
	assert.True(t, r.allows(enums.UserRoleRecipient))
	assert.False(t, r.allows(enums.UserRoleDonor))
	assert.False(t, r.allows(enums.UserRoleVolunteer))

	_, ok = transitionFor(enums.MatchStatusCompleted, enums.MatchStatusCancelled)
	assert.False(t, ok)
}

func TestTerminalStatesHaveNoForwardRows(t *testing.T) {
	for _, r := range transitionTable {
		if r.From == enums.MatchStatusCompleted {
			t.Fatalf("completed must be terminal, found %s -> %s", r.From, r.To)
		}
		if r.From == enums.MatchStatusCancelled {
			assert.Equal(t, enums.MatchActionReorder, r.Action, "cancelled only leaves through reorder")
		}
	}
}

func TestPartyChecks(t *testing.T) {
	donor, recipient, volunteer, stranger := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	donation := models.Donation{ID: uuid.New(), DonorID: donor}
	match := models.Match{ID: uuid.New(), DonationID: donation.ID, RecipientID: recipient, VolunteerID: &volunteer}

	lookup := func(from, to enums.MatchStatus) rule {
		r, ok := transitionFor(from, to)
		require.True(t, ok)
		return r
	}
	confirm := lookup(enums.MatchStatusPending, enums.MatchStatusConfirmed)
	complete := lookup(enums.MatchStatusInTransit, enums.MatchStatusCompleted)
	cancel := lookup(enums.MatchStatusPending, enums.MatchStatusCancelled)

	assert.True(t, isParty(confirm, match, donation, recipient, enums.UserRoleRecipient))
	assert.False(t, isParty(confirm, match, donation, stranger, enums.UserRoleRecipient))
	assert.True(t, isParty(complete, match, donation, volunteer, enums.UserRoleVolunteer))
	assert.False(t, isParty(complete, match, donation, stranger, enums.UserRoleVolunteer))
	assert.True(t, isParty(complete, match, donation, recipient, enums.UserRoleRecipient))
	assert.True(t, isParty(cancel, match, donation, donor, enums.UserRoleDonor))
	assert.False(t, isParty(cancel, match, donation, stranger, enums.UserRoleDonor))
}

func TestVisibility(t *testing.T) {
	donor, recipient, volunteer := uuid.New(), uuid.New(), uuid.New()
	donation := models.Donation{ID: uuid.New(), DonorID: donor}
	queued := models.Match{RecipientID: recipient, Status: enums.MatchStatusConfirmed}
	pending := models.Match{RecipientID: recipient, Status: enums.MatchStatusPending}
	assigned := models.Match{RecipientID: recipient, Status: enums.MatchStatusInTransit, VolunteerID: &volunteer}

	assert.True(t, visibleTo(pending, donation, donor, enums.UserRoleDonor))
	assert.False(t, visibleTo(pending, donation, uuid.New(), enums.UserRoleDonor))
	assert.True(t, visibleTo(pending, donation, recipient, enums.UserRoleRecipient))
	assert.False(t, visibleTo(pending, donation, uuid.New(), enums.UserRoleRecipient))
	assert.True(t, visibleTo(queued, donation, uuid.New(), enums.UserRoleVolunteer))
	assert.False(t, visibleTo(pending, donation, volunteer, enums.UserRoleVolunteer))
	assert.True(t, visibleTo(assigned, donation, volunteer, enums.UserRoleVolunteer))
	assert.False(t, visibleTo(assigned, donation, uuid.New(), enums.UserRoleVolunteer))

	assert.True(t, canAct(assigned, donation, uuid.New(), enums.UserRoleVolunteer, enums.MatchStatusInTransit))
	assert.False(t, canAct(assigned, donation, uuid.New(), enums.UserRoleVolunteer, enums.MatchStatusCompleted))
	assert.True(t, canAct(queued, donation, volunteer, enums.UserRoleVolunteer, enums.MatchStatusInTransit))
	assert.False(t, canAct(pending, donation, volunteer, enums.UserRoleVolunteer, enums.MatchStatusInTransit))
	assert.False(t, canAct(pending, donation, volunteer, enums.UserRoleVolunteer, enums.MatchStatusCancelled))
}

func TestCapabilitiesFor(t *testing.T) {
	volunteer := CapabilitiesFor(enums.UserRoleVolunteer)
	require.Len(t, volunteer, 2)
	assert.Equal(t, enums.MatchActionPickup, volunteer[0].Action)
	assert.Equal(t, enums.MatchStatusCompleted, volunteer[1].To)

	donor := CapabilitiesFor(enums.UserRoleDonor)
	require.Len(t, donor, 2)
	for _, c := range donor {
		assert.Equal(t, enums.MatchActionCancel, c.Action)
	}

	assert.Nil(t, CapabilitiesFor("admin"))
}
