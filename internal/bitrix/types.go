package bitrix

import "encoding/json"

// envelope is the response wrapper every webhook method returns. An Error
// set inside a 200 response is still a failure.
type envelope struct {
	Result           json.RawMessage `json:"result"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
	Next             *int            `json:"next"`
	Total            int             `json:"total"`
}

// User is a Bitrix24 user as returned by user.get. The API serializes IDs
// as strings.
type User struct {
	ID       string `json:"ID"`
	Email    string `json:"EMAIL"`
	Name     string `json:"NAME"`
	LastName string `json:"LAST_NAME"`
	Active   bool   `json:"ACTIVE"`
}

// UserFields is the payload for user.add and user.update.
type UserFields struct {
	Email      string `json:"EMAIL"`
	Name       string `json:"NAME"`
	LastName   string `json:"LAST_NAME"`
	Department []int  `json:"UF_DEPARTMENT,omitempty"`
	GroupID    []int  `json:"GROUP_ID,omitempty"`
}

// Workgroup is a Bitrix24 sonet group (project).
type Workgroup struct {
	ID   string `json:"ID"`
	Name string `json:"NAME"`
}

// WorkgroupFields is the payload for sonet_group.create.
type WorkgroupFields struct {
	Name        string `json:"NAME"`
	Description string `json:"DESCRIPTION,omitempty"`
	Visible     string `json:"VISIBLE,omitempty"`
	Opened      string `json:"OPENED,omitempty"`
	Project     string `json:"PROJECT,omitempty"`
}

// TaskFields is the payload for tasks.task.add and tasks.task.update.
// Unset optional fields must be omitted entirely; the API rejects nulls.
type TaskFields struct {
	Title         string   `json:"TITLE,omitempty"`
	Description   string   `json:"DESCRIPTION,omitempty"`
	CreatedBy     string   `json:"CREATED_BY,omitempty"`
	ResponsibleID string   `json:"RESPONSIBLE_ID,omitempty"`
	GroupID       string   `json:"GROUP_ID,omitempty"`
	StageID       string   `json:"STAGE_ID,omitempty"`
	Status        string   `json:"STATUS,omitempty"`
	Deadline      string   `json:"DEADLINE,omitempty"`
	Tags          []string `json:"TAGS,omitempty"`
	Accomplices   []string `json:"ACCOMPLICES,omitempty"`
}

// Task completion status value for tasks migrated into the Done stage.
const StatusCompleted = "5"

// TaskStage is one kanban stage of a workgroup.
type TaskStage struct {
	ID    string `json:"ID"`
	Title string `json:"TITLE"`
}

// TaskComment is a task comment as returned by task.commentitem.getlist.
type TaskComment struct {
	ID          string `json:"ID"`
	AuthorID    string `json:"AUTHOR_ID"`
	PostMessage string `json:"POST_MESSAGE"`
	PostDate    string `json:"POST_DATE"`
}

// ChecklistItem is a task checklist entry. Items with ParentID "0" are
// group headers.
type ChecklistItem struct {
	ID         string `json:"ID"`
	Title      string `json:"TITLE"`
	ParentID   string `json:"PARENT_ID"`
	IsComplete string `json:"IS_COMPLETE"`
}
