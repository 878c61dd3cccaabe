package kaiten

import (
	"encoding/json"
	"time"
)

// User represents a Kaiten user. Only the fields the migration reads are
// decoded; the API returns many more.
type User struct {
	ID       int    `json:"id"`
	UID      string `json:"uid"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// Member is a card participant. Type distinguishes the member role:
// 2 is the responsible person, 1 is a co-worker.
type Member struct {
	User
	Type int `json:"type"`
}

// Member role values on a card.
const (
	MemberRoleCoworker    = 1
	MemberRoleResponsible = 2
)

// Tag is a card label.
type Tag struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Space is a Kaiten space. Spaces form a hierarchy through ParentUID.
type Space struct {
	ID        int    `json:"id"`
	UID       string `json:"uid"`
	Title     string `json:"title"`
	ParentUID string `json:"parent_entity_uid"`
	Archived  bool   `json:"archived"`
}

// Column is a board column. Type classifies the workflow position:
// 1 is the initial column, 3 is the terminal one.
type Column struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	Type    int    `json:"type"`
	BoardID int    `json:"board_id"`
}

// Column type values.
const (
	ColumnTypeInitial  = 1
	ColumnTypeTerminal = 3
)

// Board is a Kaiten board inside a space.
type Board struct {
	ID      int      `json:"id"`
	Title   string   `json:"title"`
	SpaceID int      `json:"space_id"`
	Columns []Column `json:"columns,omitempty"`
}

// Card is a Kaiten card. Board and Column are embedded summaries the API
// attaches to the full card representation. Properties holds the custom
// property values keyed by "id_<propertyID>"; a value is a scalar or an
// array depending on the property type.
type Card struct {
	ID          int                        `json:"id"`
	Title       string                     `json:"title"`
	Description string                     `json:"description,omitempty"`
	Archived    bool                       `json:"archived"`
	DueDate     *time.Time                 `json:"due_date,omitempty"`
	BoardID     int                        `json:"board_id"`
	ColumnID    int                        `json:"column_id"`
	Owner       *User                      `json:"owner,omitempty"`
	Board       *Board                     `json:"board,omitempty"`
	Column      *Column                    `json:"column,omitempty"`
	Tags        []Tag                      `json:"tags,omitempty"`
	Members     []Member                   `json:"members,omitempty"`
	Properties  map[string]json.RawMessage `json:"properties,omitempty"`
}

// Comment is a card comment. Author IDs below zero belong to service bots.
type Comment struct {
	ID      int       `json:"id"`
	Text    string    `json:"text"`
	Created time.Time `json:"created"`
	Author  *User     `json:"author,omitempty"`
}

// ChecklistItem is one line of a card checklist.
type ChecklistItem struct {
	ID        int     `json:"id"`
	Text      string  `json:"text"`
	Checked   bool    `json:"checked"`
	SortOrder float64 `json:"sort_order"`
}

// Checklist is a named group of checklist items on a card.
type Checklist struct {
	ID    int             `json:"id"`
	Name  string          `json:"name"`
	Items []ChecklistItem `json:"items,omitempty"`
}

// CustomProperty is a company-wide custom field definition.
type CustomProperty struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Archived bool   `json:"archived"`
}

// Custom property types that carry a list of selectable values.
const (
	PropertyTypeSelect      = "select"
	PropertyTypeMultiSelect = "multi_select"
)

// PropertyValue is one selectable value of a select-type custom property.
type PropertyValue struct {
	ID    int    `json:"id"`
	Value string `json:"value"`
}
