// Package transform holds the pure record conversions between Kaiten
// response shapes and Bitrix24 request payloads. Nothing here performs
// I/O; unresolved references are reported as errors for the migrators to
// count.
package transform

import (
	"fmt"
	"strings"

	"github.com/vlikhobabin/kaiten-to-bitrix/internal/bitrix"
	"github.com/vlikhobabin/kaiten-to-bitrix/internal/kaiten"
)

// Fixed organizational attributes assigned to every migrated user: the
// intranet department and the employee access group of the target portal.
const (
	DefaultDepartmentID  = 1
	DefaultAccessGroupID = 12
)

// DefaultLastName is the placeholder used when the display name has no
// separable last name.
const DefaultLastName = "Kaiten"

// User converts a Kaiten user into a Bitrix24 user payload. The first
// whitespace-delimited token of the display name becomes NAME and the rest
// LAST_NAME; a user without a display name falls back to the username or
// the local part of the email. The email is the idempotency join key on
// the target side, so a user without one cannot be migrated.
func User(u kaiten.User) (bitrix.UserFields, error) {
	email := strings.TrimSpace(u.Email)
	if email == "" {
		return bitrix.UserFields{}, fmt.Errorf("user %d (%s) has no email", u.ID, u.FullName)
	}

	var first, last string
	parts := strings.Fields(u.FullName)
	switch {
	case len(parts) == 0:
		first = u.Username
		if first == "" {
			first, _, _ = strings.Cut(email, "@")
		}
		last = DefaultLastName
	case len(parts) == 1:
		first = parts[0]
		last = DefaultLastName
	default:
		first = parts[0]
		last = strings.Join(parts[1:], " ")
	}

	return bitrix.UserFields{
		Email:      email,
		Name:       first,
		LastName:   last,
		Department: []int{DefaultDepartmentID},
		GroupID:    []int{DefaultAccessGroupID},
	}, nil
}
