package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vlikhobabin/kaiten-to-bitrix/internal/kaiten"
)

// mapLookup is a UserLookup backed by a plain map.
type mapLookup map[string]string

func (m mapLookup) Lookup(sourceID string) (string, bool) {
	target, ok := m[sourceID]
	return target, ok
}

func TestCardOwnerResolution(t *testing.T) {
	users := mapLookup{"10": "100"}

	_, err := Card(&kaiten.Card{ID: 1, Title: "no owner"}, "5", users)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no owner")

	_, err = Card(&kaiten.Card{ID: 2, Title: "unmapped owner", Owner: &kaiten.User{ID: 99}}, "5", users)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in the user mapping")

	fields, err := Card(&kaiten.Card{ID: 3, Title: "ok", Owner: &kaiten.User{ID: 10}}, "5", users)
	require.NoError(t, err)
	assert.Equal(t, "100", fields.CreatedBy)
	assert.Equal(t, "5", fields.GroupID)
}

func TestCardMemberRoles(t *testing.T) {
	users := mapLookup{"10": "100", "11": "101", "12": "102"}
	card := &kaiten.Card{
		ID:    1,
		Title: "roles",
		Owner: &kaiten.User{ID: 10},
		Members: []kaiten.Member{
			{User: kaiten.User{ID: 11}, Type: kaiten.MemberRoleCoworker},
			{User: kaiten.User{ID: 12}, Type: kaiten.MemberRoleResponsible},
			{User: kaiten.User{ID: 99}, Type: kaiten.MemberRoleCoworker}, // unmapped, skipped
		},
	}

	fields, err := Card(card, "5", users)
	require.NoError(t, err)
	assert.Equal(t, "102", fields.ResponsibleID)
	assert.Equal(t, []string{"101"}, fields.Accomplices)
}

func TestCardResponsibleFallsBackToOwner(t *testing.T) {
	users := mapLookup{"10": "100", "11": "101"}
	card := &kaiten.Card{
		ID:    1,
		Title: "no responsible",
		Owner: &kaiten.User{ID: 10},
		Members: []kaiten.Member{
			{User: kaiten.User{ID: 11}, Type: kaiten.MemberRoleCoworker},
		},
	}

	fields, err := Card(card, "5", users)
	require.NoError(t, err)
	assert.Equal(t, "100", fields.ResponsibleID)
}

func TestCardTagsAndDeadline(t *testing.T) {
	users := mapLookup{"10": "100"}
	due := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	card := &kaiten.Card{
		ID:      1,
		Title:   "tags",
		Owner:   &kaiten.User{ID: 10},
		DueDate: &due,
		Tags:    []kaiten.Tag{{Name: "срочно"}},
		Board:   &kaiten.Board{Title: "Разработка"},
		Column:  &kaiten.Column{Title: "В работе"},
	}

	fields, err := Card(card, "5", users)
	require.NoError(t, err)
	assert.Equal(t, []string{"срочно", "Разработка", "В работе"}, fields.Tags)
	assert.Equal(t, "2024-03-15T12:00:00Z", fields.Deadline)
}

func TestCardEmptyDescriptionBecomesSpace(t *testing.T) {
	users := mapLookup{"10": "100"}

	fields, err := Card(&kaiten.Card{ID: 1, Title: "t", Owner: &kaiten.User{ID: 10}}, "5", users)
	require.NoError(t, err)
	assert.Equal(t, " ", fields.Description)
}
