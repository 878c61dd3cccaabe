package bitrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vlikhobabin/kaiten-to-bitrix/internal/config"
)

// Client is a Bitrix24 webhook REST client. The webhook URL carries the
// authentication token; the method name is appended to the URL path.
type Client struct {
	webhookURL string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a Bitrix24 client from the given config.
func NewClient(cfg config.Config, log zerolog.Logger) *Client {
	return &Client{
		webhookURL: strings.TrimRight(cfg.BitrixWebhookURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        log.With().Str("client", "bitrix").Logger(),
	}
}

// call posts params as JSON to the given API method and decodes the result
// field of the envelope into out. out may be nil when the caller only needs
// success or failure.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	env, err := c.callRaw(ctx, method, params)
	if err != nil {
		return err
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decoding %s result: %w", method, err)
	}
	return nil
}

func (c *Client) callRaw(ctx context.Context, method string, params any) (*envelope, error) {
	var body io.Reader
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshalling %s params: %w", method, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL+"/"+method, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.do(req, method)
}

// callForm posts params form-encoded. Array-valued user-field updates are
// only accepted by the API in this encoding, with indexed keys
// (FIELDS[UF_X][0]=..), never as JSON.
func (c *Client) callForm(ctx context.Context, method string, values url.Values) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL+"/"+method,
		strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	return c.do(req, method)
}

func (c *Client) do(req *http.Request, method string) (*envelope, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Bitrix24 API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if env.Error != "" {
		return nil, fmt.Errorf("Bitrix24 API error %s: %s", env.Error, env.ErrorDescription)
	}

	return &env, nil
}

// Users fetches all users regardless of active status, following the
// envelope's next cursor.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	var all []User
	start := 0
	for {
		env, err := c.callRaw(ctx, "user.get", map[string]any{
			"ADMIN_MODE": "True",
			"start":      start,
		})
		if err != nil {
			return nil, fmt.Errorf("fetching users: %w", err)
		}

		var page []User
		if err := json.Unmarshal(env.Result, &page); err != nil {
			return nil, fmt.Errorf("decoding user.get result: %w", err)
		}
		all = append(all, page...)

		if env.Next == nil {
			break
		}
		start = *env.Next
	}
	c.log.Debug().Int("count", len(all)).Msg("fetched users")
	return all, nil
}

// CreateUser creates a user and returns its new ID.
func (c *Client) CreateUser(ctx context.Context, fields UserFields) (int, error) {
	var id json.Number
	if err := c.call(ctx, "user.add", fields, &id); err != nil {
		return 0, fmt.Errorf("creating user %s: %w", fields.Email, err)
	}
	n, err := strconv.Atoi(id.String())
	if err != nil {
		return 0, fmt.Errorf("unexpected user.add result %q", id.String())
	}
	return n, nil
}

type userUpdateParams struct {
	ID string `json:"ID"`
	UserFields
}

// UpdateUser updates an existing user.
func (c *Client) UpdateUser(ctx context.Context, id string, fields UserFields) error {
	params := userUpdateParams{ID: id, UserFields: fields}
	if err := c.call(ctx, "user.update", params, nil); err != nil {
		return fmt.Errorf("updating user %s: %w", id, err)
	}
	return nil
}

// Workgroups fetches all sonet groups, following the next cursor.
func (c *Client) Workgroups(ctx context.Context) ([]Workgroup, error) {
	var all []Workgroup
	start := 0
	for {
		env, err := c.callRaw(ctx, "sonet_group.get", map[string]any{"start": start})
		if err != nil {
			return nil, fmt.Errorf("fetching workgroups: %w", err)
		}

		var page []Workgroup
		if err := json.Unmarshal(env.Result, &page); err != nil {
			return nil, fmt.Errorf("decoding sonet_group.get result: %w", err)
		}
		all = append(all, page...)

		if env.Next == nil {
			break
		}
		start = *env.Next
	}
	return all, nil
}

// CreateWorkgroup creates a sonet group and returns its new ID. The API
// answers with a bare scalar.
func (c *Client) CreateWorkgroup(ctx context.Context, fields WorkgroupFields) (int, error) {
	var id json.Number
	if err := c.call(ctx, "sonet_group.create", fields, &id); err != nil {
		return 0, fmt.Errorf("creating workgroup %q: %w", fields.Name, err)
	}
	n, err := strconv.Atoi(id.String())
	if err != nil {
		return 0, fmt.Errorf("unexpected sonet_group.create result %q", id.String())
	}
	return n, nil
}

// AddWorkgroupMember adds a user to a sonet group.
func (c *Client) AddWorkgroupMember(ctx context.Context, groupID, userID int) error {
	params := map[string]any{"GROUP_ID": groupID, "USER_ID": userID}
	if err := c.call(ctx, "sonet_group.user.add", params, nil); err != nil {
		return fmt.Errorf("adding user %d to workgroup %d: %w", userID, groupID, err)
	}
	return nil
}

// TaskStages fetches the kanban stages of a workgroup, keyed by stage ID.
func (c *Client) TaskStages(ctx context.Context, groupID int) (map[string]TaskStage, error) {
	stages := map[string]TaskStage{}
	params := map[string]any{"entityId": groupID}
	if err := c.call(ctx, "task.stages.get", params, &stages); err != nil {
		return nil, fmt.Errorf("fetching stages of workgroup %d: %w", groupID, err)
	}
	return stages, nil
}

type taskResult struct {
	Task struct {
		ID json.Number `json:"id"`
	} `json:"task"`
}

// CreateTask creates a task and returns its new ID.
func (c *Client) CreateTask(ctx context.Context, fields TaskFields) (int, error) {
	var result taskResult
	params := map[string]any{"fields": fields}
	if err := c.call(ctx, "tasks.task.add", params, &result); err != nil {
		return 0, fmt.Errorf("creating task %q: %w", fields.Title, err)
	}
	id, err := strconv.Atoi(result.Task.ID.String())
	if err != nil {
		return 0, fmt.Errorf("unexpected tasks.task.add result %q", result.Task.ID.String())
	}
	return id, nil
}

// UpdateTask updates an existing task.
func (c *Client) UpdateTask(ctx context.Context, taskID int, fields TaskFields) error {
	params := map[string]any{"taskId": taskID, "fields": fields}
	if err := c.call(ctx, "tasks.task.update", params, nil); err != nil {
		return fmt.Errorf("updating task %d: %w", taskID, err)
	}
	return nil
}

// TaskComments fetches the comments of a task.
func (c *Client) TaskComments(ctx context.Context, taskID int) ([]TaskComment, error) {
	var comments []TaskComment
	params := map[string]any{"TASKID": taskID}
	if err := c.call(ctx, "task.commentitem.getlist", params, &comments); err != nil {
		return nil, fmt.Errorf("fetching comments of task %d: %w", taskID, err)
	}
	return comments, nil
}

// AddTaskComment adds a comment to a task on behalf of the given author and
// returns the new comment ID. The API ignores any creation date supplied
// here; timestamps are backfilled through the remote channel.
func (c *Client) AddTaskComment(ctx context.Context, taskID int, text string, authorID int) (int, error) {
	var id json.Number
	params := map[string]any{
		"TASKID": taskID,
		"FIELDS": map[string]any{
			"POST_MESSAGE": text,
			"AUTHOR_ID":    authorID,
		},
	}
	if err := c.call(ctx, "task.commentitem.add", params, &id); err != nil {
		return 0, fmt.Errorf("adding comment to task %d: %w", taskID, err)
	}
	n, err := strconv.Atoi(id.String())
	if err != nil {
		return 0, fmt.Errorf("unexpected task.commentitem.add result %q", id.String())
	}
	return n, nil
}

// TaskChecklist fetches all checklist entries of a task, groups included.
func (c *Client) TaskChecklist(ctx context.Context, taskID int) ([]ChecklistItem, error) {
	var items []ChecklistItem
	params := map[string]any{"TASKID": taskID}
	if err := c.call(ctx, "task.checklistitem.getlist", params, &items); err != nil {
		return nil, fmt.Errorf("fetching checklist of task %d: %w", taskID, err)
	}
	return items, nil
}

// AddChecklistItem adds a checklist entry to a task. parentID zero creates
// a top-level entry (a group header when items are attached to it later).
func (c *Client) AddChecklistItem(ctx context.Context, taskID int, title string, complete bool, parentID int) (int, error) {
	fields := map[string]any{"TITLE": title}
	if complete {
		fields["IS_COMPLETE"] = "Y"
	}
	if parentID > 0 {
		fields["PARENT_ID"] = parentID
	}

	var id json.Number
	params := map[string]any{"TASKID": taskID, "FIELDS": fields}
	if err := c.call(ctx, "task.checklistitem.add", params, &id); err != nil {
		return 0, fmt.Errorf("adding checklist item to task %d: %w", taskID, err)
	}
	n, err := strconv.Atoi(id.String())
	if err != nil {
		return 0, fmt.Errorf("unexpected task.checklistitem.add result %q", id.String())
	}
	return n, nil
}

// UpdateTaskCustomFields sets array-valued user fields on a task using the
// form encoding the API requires for them.
func (c *Client) UpdateTaskCustomFields(ctx context.Context, taskID int, fields map[string][]string) error {
	values := url.Values{}
	values.Set("taskId", strconv.Itoa(taskID))
	for name, items := range fields {
		for i, item := range items {
			values.Set(fmt.Sprintf("fields[%s][%d]", name, i), item)
		}
	}

	if _, err := c.callForm(ctx, "tasks.task.update", values); err != nil {
		return fmt.Errorf("updating custom fields of task %d: %w", taskID, err)
	}
	return nil
}
