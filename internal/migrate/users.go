package migrate

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vlikhobabin/kaiten-to-bitrix/internal/bitrix"
	"github.com/vlikhobabin/kaiten-to-bitrix/internal/config"
	"github.com/vlikhobabin/kaiten-to-bitrix/internal/kaiten"
	"github.com/vlikhobabin/kaiten-to-bitrix/internal/mapping"
	"github.com/vlikhobabin/kaiten-to-bitrix/internal/transform"
)

// Users migrates Kaiten users into Bitrix24 users. Users without an email
// are filtered out: the email is the join key that keeps re-runs from
// duplicating accounts.
type Users struct {
	kaiten *kaiten.Client
	bitrix *bitrix.Client
	dir    string
	log    zerolog.Logger
}

// NewUsers creates the user migrator.
func NewUsers(cfg config.Config, k *kaiten.Client, b *bitrix.Client, log zerolog.Logger) *Users {
	return &Users{kaiten: k, bitrix: b, dir: cfg.MappingsDir, log: log}
}

// Run migrates all source users. Limit caps the number of processed
// records when positive.
func (m *Users) Run(ctx context.Context, limit int) (Stats, error) {
	var stats Stats

	store := mapping.Load(m.dir, mapping.KindUsers, m.log)

	sourceUsers, err := m.kaiten.Users(ctx)
	if err != nil {
		return stats, fmt.Errorf("fetching Kaiten users: %w", err)
	}

	total := len(sourceUsers)
	withEmail := sourceUsers[:0]
	for _, u := range sourceUsers {
		if strings.TrimSpace(u.Email) == "" {
			stats.Filtered++
			continue
		}
		withEmail = append(withEmail, u)
	}
	m.log.Info().
		Int("total", total).
		Int("with_email", len(withEmail)).
		Msg("fetched Kaiten users")

	targetUsers, err := m.bitrix.Users(ctx)
	if err != nil {
		return stats, fmt.Errorf("fetching Bitrix24 users: %w", err)
	}
	byEmail := make(map[string]bitrix.User, len(targetUsers))
	for _, u := range targetUsers {
		if u.Email != "" {
			byEmail[strings.ToLower(u.Email)] = u
		}
	}

	if limit > 0 && len(withEmail) > limit {
		withEmail = withEmail[:limit]
	}

	for _, u := range withEmail {
		stats.Processed++
		m.processUser(ctx, u, byEmail, store, &stats)
	}

	if err := store.Save(m.dir); err != nil {
		return stats, fmt.Errorf("saving user mapping: %w", err)
	}

	stats.Log(m.log, "user")
	return stats, nil
}

func (m *Users) processUser(ctx context.Context, u kaiten.User, byEmail map[string]bitrix.User, store *mapping.Store, stats *Stats) {
	fields, err := transform.User(u)
	if err != nil {
		m.log.Warn().Err(err).Msg("skipping user")
		stats.Failed++
		store.AddError()
		return
	}

	sourceID := strconv.Itoa(u.ID)

	// Mapped on a previous run, or already present on the target with the
	// same email: both are update paths.
	targetID, mapped := store.Lookup(sourceID)
	if !mapped {
		if existing, ok := byEmail[strings.ToLower(fields.Email)]; ok {
			targetID = existing.ID
		}
	}

	if targetID != "" {
		if err := m.bitrix.UpdateUser(ctx, targetID, fields); err != nil {
			m.log.Warn().Err(err).Str("email", fields.Email).Msg("updating user failed")
			stats.Failed++
			store.AddError()
			return
		}
		store.Record(sourceID, targetID)
		stats.Updated++
		store.AddUpdated()
		m.log.Debug().Str("email", fields.Email).Str("bitrix_id", targetID).Msg("updated user")
		return
	}

	newID, err := m.bitrix.CreateUser(ctx, fields)
	if err != nil {
		m.log.Warn().Err(err).Str("email", fields.Email).Msg("creating user failed")
		stats.Failed++
		store.AddError()
		return
	}
	store.Record(sourceID, strconv.Itoa(newID))
	stats.Created++
	store.AddCreated()
	m.log.Debug().Str("email", fields.Email).Int("bitrix_id", newID).Msg("created user")
}
