package kaiten

import (
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

// pageSize is the offset/limit window used for paginated list endpoints.
const pageSize = 100

// Client is a read-only Kaiten REST API v1 client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a Kaiten client from the given config.
func NewClient(cfg config.Config, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.KaitenURL, "/"),
		token:      cfg.KaitenToken,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        log.With().Str("client", "kaiten").Logger(),
	}
}

// get issues a GET request against the given endpoint and decodes the JSON
// response into out.
func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	u := c.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("Kaiten API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}

// Users fetches all users, paging through the offset/limit windows until a
// short page is returned.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	var all []User
	for offset := 0; ; offset += pageSize {
		q := url.Values{}
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(pageSize))

		var page []User
		if err := c.get(ctx, "/api/v1/users", q, &page); err != nil {
			return nil, fmt.Errorf("fetching users: %w", err)
		}
		all = append(all, page...)
		if len(page) < pageSize {
			break
		}
	}
	c.log.Debug().Int("count", len(all)).Msg("fetched users")
	return all, nil
}

// Spaces fetches all spaces, including archived ones.
func (c *Client) Spaces(ctx context.Context) ([]Space, error) {
	var spaces []Space
	if err := c.get(ctx, "/api/v1/spaces", nil, &spaces); err != nil {
		return nil, fmt.Errorf("fetching spaces: %w", err)
	}
	c.log.Debug().Int("count", len(spaces)).Msg("fetched spaces")
	return spaces, nil
}

// SpaceMembers fetches the users of one space.
func (c *Client) SpaceMembers(ctx context.Context, spaceID int) ([]User, error) {
	var members []User
	endpoint := fmt.Sprintf("/api/v1/spaces/%d/members", spaceID)
	if err := c.get(ctx, endpoint, nil, &members); err != nil {
		return nil, fmt.Errorf("fetching members of space %d: %w", spaceID, err)
	}
	return members, nil
}

// Boards fetches the boards of one space.
func (c *Client) Boards(ctx context.Context, spaceID int) ([]Board, error) {
	var boards []Board
	endpoint := fmt.Sprintf("/api/v1/spaces/%d/boards", spaceID)
	if err := c.get(ctx, endpoint, nil, &boards); err != nil {
		return nil, fmt.Errorf("fetching boards of space %d: %w", spaceID, err)
	}
	return boards, nil
}

// BoardCards fetches the non-archived cards of one board in summary form.
// Use Card to load the full representation with description and members.
func (c *Client) BoardCards(ctx context.Context, boardID int) ([]Card, error) {
	var all []Card
	for offset := 0; ; offset += pageSize {
		q := url.Values{}
		q.Set("board_id", strconv.Itoa(boardID))
		q.Set("archived", "false")
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(pageSize))

		var page []Card
		if err := c.get(ctx, "/api/v1/cards", q, &page); err != nil {
			return nil, fmt.Errorf("fetching cards of board %d: %w", boardID, err)
		}
		all = append(all, page...)
		if len(page) < pageSize {
			break
		}
	}
	return all, nil
}

// Card fetches the full representation of a single card.
func (c *Client) Card(ctx context.Context, cardID int) (*Card, error) {
	var card Card
	endpoint := fmt.Sprintf("/api/v1/cards/%d", cardID)
	if err := c.get(ctx, endpoint, nil, &card); err != nil {
		return nil, fmt.Errorf("fetching card %d: %w", cardID, err)
	}
	return &card, nil
}

// CardComments fetches the comments of one card. The API does not guarantee
// any particular order.
func (c *Client) CardComments(ctx context.Context, cardID int) ([]Comment, error) {
	var comments []Comment
	endpoint := fmt.Sprintf("/api/v1/cards/%d/comments", cardID)
	if err := c.get(ctx, endpoint, nil, &comments); err != nil {
		return nil, fmt.Errorf("fetching comments of card %d: %w", cardID, err)
	}
	return comments, nil
}

// CardChecklists fetches the checklists of one card with their items.
func (c *Client) CardChecklists(ctx context.Context, cardID int) ([]Checklist, error) {
	var checklists []Checklist
	endpoint := fmt.Sprintf("/api/v1/cards/%d/checklists", cardID)
	if err := c.get(ctx, endpoint, nil, &checklists); err != nil {
		return nil, fmt.Errorf("fetching checklists of card %d: %w", cardID, err)
	}
	return checklists, nil
}

// CustomProperties fetches the company-wide custom field definitions.
func (c *Client) CustomProperties(ctx context.Context) ([]CustomProperty, error) {
	var props []CustomProperty
	if err := c.get(ctx, "/api/v1/company/custom-properties", nil, &props); err != nil {
		return nil, fmt.Errorf("fetching custom properties: %w", err)
	}
	return props, nil
}

// CustomPropertyValues fetches the selectable values of a select-type
// custom property.
func (c *Client) CustomPropertyValues(ctx context.Context, propertyID int) ([]PropertyValue, error) {
	var values []PropertyValue
	endpoint := fmt.Sprintf("/api/v1/company/custom-properties/%d/select-values", propertyID)
	if err := c.get(ctx, endpoint, nil, &values); err != nil {
		return nil, fmt.Errorf("fetching values of property %d: %w", propertyID, err)
	}
	return values, nil
}
