package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vlikhobabin/kaiten-to-bitrix/internal/bitrix"
	"github.com/vlikhobabin/kaiten-to-bitrix/internal/config"
	"github.com/vlikhobabin/kaiten-to-bitrix/internal/kaiten"
	"github.com/vlikhobabin/kaiten-to-bitrix/internal/mapping"
)

// fakeTaskPortal fakes the task-related webhook methods.
type fakeTaskPortal struct {
	mu       sync.Mutex
	nextID   int
	added    []bitrix.TaskFields
	updated  []int
	comments []string
}

func (p *fakeTaskPortal) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")

		switch {
		case strings.HasSuffix(r.URL.Path, "/task.stages.get"):
			w.Write([]byte(`{"result":{
				"101":{"ID":"101","TITLE":"Новые"},
				"102":{"ID":"102","TITLE":"Выполняются"},
				"103":{"ID":"103","TITLE":"Выполнены"}}}`))
		case strings.HasSuffix(r.URL.Path, "/tasks.task.add"):
			var params struct {
				Fields bitrix.TaskFields `json:"fields"`
			}
			json.NewDecoder(r.Body).Decode(&params)
			p.nextID++
			p.added = append(p.added, params.Fields)
			fmt.Fprintf(w, `{"result":{"task":{"id":"%d"}}}`, 700+p.nextID)
		case strings.HasSuffix(r.URL.Path, "/tasks.task.update"):
			var params struct {
				TaskID int `json:"taskId"`
			}
			json.NewDecoder(r.Body).Decode(&params)
			p.updated = append(p.updated, params.TaskID)
			w.Write([]byte(`{"result":true}`))
		case strings.HasSuffix(r.URL.Path, "/task.commentitem.getlist"),
			strings.HasSuffix(r.URL.Path, "/task.checklistitem.getlist"):
			w.Write([]byte(`{"result":[]}`))
		case strings.HasSuffix(r.URL.Path, "/task.commentitem.add"):
			var params struct {
				Fields struct {
					PostMessage string `json:"POST_MESSAGE"`
				} `json:"FIELDS"`
			}
			json.NewDecoder(r.Body).Decode(&params)
			p.comments = append(p.comments, params.Fields.PostMessage)
			w.Write([]byte(`{"result":1}`))
		case strings.HasSuffix(r.URL.Path, "/task.checklistitem.add"):
			w.Write([]byte(`{"result":1}`))
		default:
			w.Write([]byte(`{"error":"UNKNOWN_METHOD","error_description":"` + r.URL.Path + `"}`))
		}
	}
}

func cardsTestSetup(t *testing.T, cards []kaiten.Card, comments map[int][]kaiten.Comment, portal *fakeTaskPortal) (*Cards, config.Config) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/spaces/5/boards", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]kaiten.Board{{ID: 1, Title: "Доска", SpaceID: 5}})
	})
	mux.HandleFunc("/api/v1/cards", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(cards)
	})
	mux.HandleFunc("/api/v1/cards/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/v1/cards/")
		parts := strings.Split(rest, "/")
		var id int
		fmt.Sscanf(parts[0], "%d", &id)

		if len(parts) == 1 {
			for _, c := range cards {
				if c.ID == id {
					json.NewEncoder(w).Encode(c)
					return
				}
			}
			http.NotFound(w, r)
			return
		}
		switch parts[1] {
		case "comments":
			json.NewEncoder(w).Encode(comments[id])
		case "checklists":
			json.NewEncoder(w).Encode([]kaiten.Checklist{})
		default:
			http.NotFound(w, r)
		}
	})
	kaitenSrv := httptest.NewServer(mux)
	t.Cleanup(kaitenSrv.Close)

	portalSrv := httptest.NewServer(portal.handler())
	t.Cleanup(portalSrv.Close)

	cfg := config.Config{
		KaitenURL:        kaitenSrv.URL,
		KaitenToken:      "tok",
		BitrixWebhookURL: portalSrv.URL,
		MappingsDir:      t.TempDir(),
	}

	// The card pass requires the user and space mappings.
	users := mapping.Load(cfg.MappingsDir, mapping.KindUsers, zerolog.Nop())
	users.Record("10", "100")
	users.Record("11", "101")
	require.NoError(t, users.Save(cfg.MappingsDir))

	spaces := mapping.Load(cfg.MappingsDir, mapping.KindSpaces, zerolog.Nop())
	spaces.Record("5", "77")
	require.NoError(t, spaces.Save(cfg.MappingsDir))

	m := NewCards(cfg,
		kaiten.NewClient(cfg, zerolog.Nop()),
		bitrix.NewClient(cfg, zerolog.Nop()),
		nil,
		zerolog.Nop())
	return m, cfg
}

func testCards() []kaiten.Card {
	return []kaiten.Card{
		{
			ID: 201, Title: "Новая задача", BoardID: 1,
			Owner:  &kaiten.User{ID: 10},
			Column: &kaiten.Column{Title: "Новые", Type: 1},
			Board:  &kaiten.Board{Title: "Доска"},
		},
		{
			ID: 202, Title: "Завершённая задача", BoardID: 1,
			Owner:  &kaiten.User{ID: 10},
			Column: &kaiten.Column{Title: "Готово", Type: 3},
			Board:  &kaiten.Board{Title: "Доска"},
		},
	}
}

func TestCardsTerminalColumnFilteredByDefault(t *testing.T) {
	portal := &fakeTaskPortal{}
	m, cfg := cardsTestSetup(t, testCards(), nil, portal)

	stats, err := m.Run(context.Background(), CardsOptions{SpaceID: 5})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 1, stats.Filtered)

	require.Len(t, portal.added, 1)
	assert.Equal(t, "Новая задача", portal.added[0].Title)
	assert.Equal(t, "77", portal.added[0].GroupID)
	assert.Equal(t, "101", portal.added[0].StageID)
	assert.Empty(t, portal.added[0].Status)

	store := mapping.Load(cfg.MappingsDir, mapping.KindCards, zerolog.Nop())
	assert.Equal(t, 1, store.Len())
}

func TestCardsIncludeDoneMarksCompleted(t *testing.T) {
	portal := &fakeTaskPortal{}
	m, _ := cardsTestSetup(t, testCards(), nil, portal)

	stats, err := m.Run(context.Background(), CardsOptions{SpaceID: 5, IncludeDone: true})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Created)
	assert.Equal(t, 0, stats.Filtered)

	require.Len(t, portal.added, 2)
	var done *bitrix.TaskFields
	for i := range portal.added {
		if portal.added[i].Title == "Завершённая задача" {
			done = &portal.added[i]
		}
	}
	require.NotNil(t, done)
	assert.Equal(t, "103", done.StageID)
	assert.Equal(t, bitrix.StatusCompleted, done.Status)
}

func TestCardsSecondRunUpdates(t *testing.T) {
	portal := &fakeTaskPortal{}
	m, _ := cardsTestSetup(t, testCards(), nil, portal)

	_, err := m.Run(context.Background(), CardsOptions{SpaceID: 5})
	require.NoError(t, err)

	stats, err := m.Run(context.Background(), CardsOptions{SpaceID: 5})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Created, "a re-run must not duplicate tasks")
	assert.Equal(t, 1, stats.Updated)
	assert.Len(t, portal.updated, 1)
}

func TestCardsCommentsChronologicalAndFiltered(t *testing.T) {
	cards := testCards()[:1]
	comments := map[int][]kaiten.Comment{
		201: {
			{ID: 3, Text: "второй", Created: mustTime("2024-01-02T10:00:00Z"), Author: &kaiten.User{ID: 11}},
			{ID: 1, Text: "первый", Created: mustTime("2024-01-01T10:00:00Z"), Author: &kaiten.User{ID: 10}},
			{ID: 2, Text: "от бота", Created: mustTime("2024-01-01T12:00:00Z"), Author: &kaiten.User{ID: -5}},
			{ID: 4, Text: "не в маппинге", Created: mustTime("2024-01-03T10:00:00Z"), Author: &kaiten.User{ID: 99}},
		},
	}
	portal := &fakeTaskPortal{}
	m, _ := cardsTestSetup(t, cards, comments, portal)

	stats, err := m.Run(context.Background(), CardsOptions{SpaceID: 5})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Comments)
	assert.Equal(t, 2, stats.CommentsSkipped)
	assert.Equal(t, []string{"первый", "второй"}, portal.comments)
}

func mustTime(s string) time.Time {
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return ts
}

func TestCardsRequiresSpaceMapping(t *testing.T) {
	portal := &fakeTaskPortal{}
	m, _ := cardsTestSetup(t, testCards(), nil, portal)

	_, err := m.Run(context.Background(), CardsOptions{SpaceID: 999})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run the 'spaces' migration first")
}
