package controllers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodbridge/foodbridge-backend/pkg/enums"
)

func TestSessionListsRoleMoves(t *testing.T) {
	userID := uuid.New()
	rec, env := serve(t, Session(), newRequest(http.MethodGet, "/api/v1/me/session", requestOpts{userID: userID, role: enums.UserRoleRecipient}))
	require.Equal(t, http.StatusOK, rec.Code)

	var view sessionView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, userID.String(), view.UserID)
	assert.Equal(t, enums.UserRoleRecipient, view.Role)

	actions := map[enums.MatchAction]bool{}
	for _, move := range view.Transitions {
		actions[move.Action] = true
	}
	assert.True(t, actions[enums.MatchActionClaim])
	assert.True(t, actions[enums.MatchActionReorder])
	assert.False(t, actions[enums.MatchActionPickup])
}

func TestSessionWithoutIdentity(t *testing.T) {
	rec, env := serve(t, Session(), newRequest(http.MethodGet, "/api/v1/me/session", requestOpts{}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, env.Error)
}

func TestPublicPing(t *testing.T) {
	rec, env := serve(t, PublicPing(), newRequest(http.MethodGet, "/api/public/ping", requestOpts{}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"status":"ok"`)
}
