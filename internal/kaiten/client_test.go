package kaiten

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vlikhobabin/kaiten-to-bitrix/internal/config"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.Config{KaitenURL: srv.URL, KaitenToken: "tok"}, zerolog.Nop())
}

func TestUsersPagination(t *testing.T) {
	// First page full, second page short: the client must stop after two.
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/v1/users", r.URL.Path)

		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		require.Equal(t, pageSize, limit)

		var page []User
		if offset == 0 {
			for i := 0; i < pageSize; i++ {
				page = append(page, User{ID: i + 1, Email: fmt.Sprintf("u%d@example.com", i+1)})
			}
		} else {
			page = []User{{ID: pageSize + 1, Email: "last@example.com"}}
		}
		json.NewEncoder(w).Encode(page)
	})

	users, err := client.Users(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, pageSize+1)
	assert.Equal(t, "last@example.com", users[pageSize].Email)
}

func TestBoardCardsQuery(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/cards", r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("board_id"))
		assert.Equal(t, "false", r.URL.Query().Get("archived"))
		json.NewEncoder(w).Encode([]Card{{ID: 1, Title: "c"}})
	})

	cards, err := client.BoardCards(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "c", cards[0].Title)
}

func TestNonOKStatusIsError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
	})

	_, err := client.Spaces(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestCardDecodesProperties(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/cards/7", r.URL.Path)
		w.Write([]byte(`{"id":7,"title":"t","properties":{"id_19":42,"id_20":[1,2]}}`))
	})

	card, err := client.Card(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, card.Properties, 2)
	assert.JSONEq(t, `42`, string(card.Properties["id_19"]))
}
