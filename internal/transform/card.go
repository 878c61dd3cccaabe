package transform

import (
	"fmt"
	"strconv"
	"time"

	"github.com/vlikhobabin/kaiten-to-bitrix/internal/bitrix"
	"github.com/vlikhobabin/kaiten-to-bitrix/internal/kaiten"
)

// UserLookup resolves a Kaiten user ID to a Bitrix24 user ID. Satisfied by
// *mapping.Store.
type UserLookup interface {
	Lookup(sourceID string) (string, bool)
}

// Card converts a Kaiten card into a Bitrix24 task payload bound to the
// given workgroup. The card owner becomes CREATED_BY and must resolve
// through the user mapping; a card whose owner has no target counterpart
// fails as a whole rather than being assigned to an arbitrary user. The
// member with the responsible role becomes RESPONSIBLE_ID (falling back to
// the owner), remaining resolvable members become ACCOMPLICES. Board and
// column titles are appended to the tag list so the origin stays visible
// after migration.
func Card(card *kaiten.Card, groupID string, users UserLookup) (bitrix.TaskFields, error) {
	if card.Owner == nil {
		return bitrix.TaskFields{}, fmt.Errorf("card %d (%s) has no owner", card.ID, card.Title)
	}
	createdBy, ok := users.Lookup(strconv.Itoa(card.Owner.ID))
	if !ok {
		return bitrix.TaskFields{}, fmt.Errorf("card %d (%s): owner %s (Kaiten ID %d) is not in the user mapping",
			card.ID, card.Title, card.Owner.FullName, card.Owner.ID)
	}

	responsible := ""
	var accomplices []string
	for _, m := range card.Members {
		memberID, ok := users.Lookup(strconv.Itoa(m.ID))
		if !ok {
			continue
		}
		if m.Type == kaiten.MemberRoleResponsible && responsible == "" {
			responsible = memberID
			continue
		}
		accomplices = append(accomplices, memberID)
	}
	if responsible == "" {
		responsible = createdBy
	}

	description := card.Description
	if description == "" {
		// The task API rejects an empty description.
		description = " "
	}

	tags := make([]string, 0, len(card.Tags)+2)
	for _, t := range card.Tags {
		tags = append(tags, t.Name)
	}
	if card.Board != nil && card.Board.Title != "" {
		tags = append(tags, card.Board.Title)
	}
	if card.Column != nil && card.Column.Title != "" {
		tags = append(tags, card.Column.Title)
	}

	fields := bitrix.TaskFields{
		Title:         card.Title,
		Description:   description,
		CreatedBy:     createdBy,
		ResponsibleID: responsible,
		GroupID:       groupID,
		Tags:          tags,
		Accomplices:   accomplices,
	}
	if card.DueDate != nil {
		fields.Deadline = card.DueDate.Format(time.RFC3339)
	}

	return fields, nil
}
