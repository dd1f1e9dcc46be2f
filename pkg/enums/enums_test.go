package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFoodType(t *testing.T) {
	got, err := ParseFoodType("dryfruits")
	require.NoError(t, err)
	assert.Equal(t, FoodTypeDryFruits, got)

	_, err = ParseFoodType("Fruits")
	require.Error(t, err)
}

func TestMatchStatusActive(t *testing.T) {
	for _, status := range []MatchStatus{MatchStatusPending, MatchStatusConfirmed, MatchStatusInTransit, MatchStatusCompleted} {
		assert.True(t, status.IsActive(), status)
	}
	assert.False(t, MatchStatusCancelled.IsActive())
	assert.False(t, MatchStatus("lost").IsActive())
}

func TestParseBusinessTypeDefaultsToRestaurant(t *testing.T) {
	got, err := ParseBusinessType("")
	require.NoError(t, err)
	assert.Equal(t, BusinessTypeRestaurant, got)

	_, err = ParseBusinessType("food_truck")
	require.Error(t, err)
}

func TestParseUserRole(t *testing.T) {
	role, err := ParseUserRole("volunteer")
	require.NoError(t, err)
	assert.Equal(t, UserRoleVolunteer, role)

	_, err = ParseUserRole("admin")
	require.Error(t, err)
}

func TestParseErrorsNameTheEnum(t *testing.T) {
	_, err := ParseMatchStatus("lost")
	assert.EqualError(t, err, `invalid match status "lost"`)
	_, err = ParseOutboxEventType("")
	assert.EqualError(t, err, `invalid event type ""`)
}

func TestListsAreCopies(t *testing.T) {
	tables := SyncedTables()
	require.Len(t, tables, 3)
	tables[0] = "orders"
	assert.Equal(t, AggregateDonation, SyncedTables()[0])

	assert.Len(t, FoodTypes(), 17)
	assert.Equal(t, FoodTypeFruits, FoodTypes()[0])
}
