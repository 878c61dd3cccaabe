package bitrix

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vlikhobabin/kaiten-to-bitrix/internal/config"
)

func decodeJSONBody(r *http.Request, out any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.Config{BitrixWebhookURL: srv.URL}, zerolog.Nop())
}

func TestAPIErrorInsideOKResponse(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error":"QUERY_LIMIT_EXCEEDED","error_description":"Too many requests"}`))
	})

	_, err := client.CreateUser(context.Background(), UserFields{Email: "a@b.c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUERY_LIMIT_EXCEEDED")
	assert.Contains(t, err.Error(), "Too many requests")
}

func TestNonOKStatusIsError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway timeout", http.StatusGatewayTimeout)
	})

	err := client.UpdateUser(context.Background(), "1", UserFields{Email: "a@b.c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "504")
}

func TestUsersFollowsNextCursor(t *testing.T) {
	var starts []float64
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var params map[string]any
		require.NoError(t, decodeJSONBody(r, &params))
		start := params["start"].(float64)
		starts = append(starts, start)

		w.Header().Set("Content-Type", "application/json")
		if start == 0 {
			w.Write([]byte(`{"result":[{"ID":"1","EMAIL":"a@b.c"}],"next":50,"total":2}`))
			return
		}
		w.Write([]byte(`{"result":[{"ID":"2","EMAIL":"d@e.f"}],"total":2}`))
	})

	users, err := client.Users(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, []float64{0, 50}, starts)
	assert.Equal(t, "1", users[0].ID)
	assert.Equal(t, "2", users[1].ID)
}

func TestCreateTaskDecodesNestedID(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tasks.task.add", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":{"task":{"id":"731"}}}`))
	})

	id, err := client.CreateTask(context.Background(), TaskFields{Title: "t"})
	require.NoError(t, err)
	assert.Equal(t, 731, id)
}

func TestCreateWorkgroupDecodesBareScalar(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":15}`))
	})

	id, err := client.CreateWorkgroup(context.Background(), WorkgroupFields{Name: "g"})
	require.NoError(t, err)
	assert.Equal(t, 15, id)
}

func TestUpdateTaskCustomFieldsFormEncoding(t *testing.T) {
	var form map[string][]string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		form = r.PostForm

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":true}`))
	})

	err := client.UpdateTaskCustomFields(context.Background(), 7, map[string][]string{
		"UF_KAITEN_19": {"12", "14"},
	})
	require.NoError(t, err)

	// Array values must arrive as indexed keys, never as JSON.
	assert.Equal(t, []string{"7"}, form["taskId"])
	assert.Equal(t, []string{"12"}, form["fields[UF_KAITEN_19][0]"])
	assert.Equal(t, []string{"14"}, form["fields[UF_KAITEN_19][1]"])
}

func TestTaskStagesKeyedByID(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":{"101":{"ID":"101","TITLE":"Новые"},"102":{"ID":"102","TITLE":"Выполняются"}}}`))
	})

	stages, err := client.TaskStages(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, stages, 2)
	assert.Equal(t, "Новые", stages["101"].Title)
}
