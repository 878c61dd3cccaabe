package migrate

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/vlikhobabin/kaiten-to-bitrix/internal/bitrix"
	"github.com/vlikhobabin/kaiten-to-bitrix/internal/config"
	"github.com/vlikhobabin/kaiten-to-bitrix/internal/kaiten"
	"github.com/vlikhobabin/kaiten-to-bitrix/internal/mapping"
	"github.com/vlikhobabin/kaiten-to-bitrix/internal/transform"
)

// Spaces migrates Kaiten spaces into Bitrix24 workgroups. Boards are not
// migrated as containers; the space itself becomes the workgroup and its
// hierarchical path becomes the group name. Leaf root spaces and all
// second-level spaces qualify; excluded subtrees are configured.
type Spaces struct {
	kaiten   *kaiten.Client
	bitrix   *bitrix.Client
	dir      string
	excluded []string
	log      zerolog.Logger
}

// SpacesOptions narrows a space migration run.
type SpacesOptions struct {
	Limit    int  // cap on processed spaces, 0 for all
	SpaceID  int  // migrate exactly this space, 0 for selection rules
	ListOnly bool // print candidates without touching the target
}

// NewSpaces creates the space migrator.
func NewSpaces(cfg config.Config, k *kaiten.Client, b *bitrix.Client, log zerolog.Logger) *Spaces {
	return &Spaces{kaiten: k, bitrix: b, dir: cfg.MappingsDir, excluded: cfg.ExcludedSpaces, log: log}
}

// Run migrates the selected spaces. The user mapping must already exist:
// group membership resolves through it.
func (m *Spaces) Run(ctx context.Context, opts SpacesOptions) (Stats, error) {
	var stats Stats

	users, err := mapping.LoadRequired(m.dir, mapping.KindUsers, m.log)
	if err != nil {
		return stats, err
	}
	store := mapping.Load(m.dir, mapping.KindSpaces, m.log)

	spaces, err := m.kaiten.Spaces(ctx)
	if err != nil {
		return stats, fmt.Errorf("fetching Kaiten spaces: %w", err)
	}
	idx := transform.BuildSpaceIndex(spaces)

	candidates, err := m.selectSpaces(spaces, idx, opts)
	if err != nil {
		return stats, err
	}
	if opts.Limit > 0 && len(candidates) > opts.Limit {
		candidates = candidates[:opts.Limit]
	}
	m.log.Info().Int("count", len(candidates)).Msg("spaces selected for migration")

	if opts.ListOnly {
		for i, s := range candidates {
			m.log.Info().Msgf("%3d. %8d %s", i+1, s.ID, idx.Path(s))
		}
		return stats, nil
	}

	groups, err := m.bitrix.Workgroups(ctx)
	if err != nil {
		return stats, fmt.Errorf("fetching Bitrix24 workgroups: %w", err)
	}
	byName := make(map[string]bitrix.Workgroup, len(groups))
	for _, g := range groups {
		byName[g.Name] = g
	}

	for _, space := range candidates {
		stats.Processed++
		m.processSpace(ctx, space, idx, byName, users, store, &stats)
	}

	if err := store.Save(m.dir); err != nil {
		return stats, fmt.Errorf("saving space mapping: %w", err)
	}

	stats.Log(m.log, "space")
	return stats, nil
}

func (m *Spaces) selectSpaces(spaces []kaiten.Space, idx transform.SpaceIndex, opts SpacesOptions) ([]kaiten.Space, error) {
	if opts.SpaceID > 0 {
		for _, s := range spaces {
			if s.ID == opts.SpaceID {
				return []kaiten.Space{s}, nil
			}
		}
		return nil, fmt.Errorf("space %d not found in Kaiten", opts.SpaceID)
	}

	var selected []kaiten.Space
	for _, s := range spaces {
		if idx.ShouldMigrateSpace(s, m.excluded) {
			selected = append(selected, s)
		}
	}
	sort.Slice(selected, func(i, j int) bool {
		return idx.Path(selected[i]) < idx.Path(selected[j])
	})
	return selected, nil
}

func (m *Spaces) processSpace(ctx context.Context, space kaiten.Space, idx transform.SpaceIndex,
	byName map[string]bitrix.Workgroup, users *mapping.Store, store *mapping.Store, stats *Stats) {

	sourceID := strconv.Itoa(space.ID)
	name := idx.Path(space)
	log := m.log.With().Str("space", name).Logger()

	groupID, mapped := store.Lookup(sourceID)
	if !mapped {
		if g, ok := byName[name]; ok {
			groupID = g.ID
		}
	}

	if groupID != "" {
		log.Info().Str("group_id", groupID).Msg("workgroup exists, refreshing members")
		store.Record(sourceID, groupID)
		stats.Updated++
		store.AddUpdated()
	} else {
		fields := bitrix.WorkgroupFields{
			Name:        name,
			Description: fmt.Sprintf("Migrated from Kaiten space %d (%s)", space.ID, space.Title),
			Visible:     "Y",
			Opened:      "Y",
			Project:     "Y",
		}
		newID, err := m.bitrix.CreateWorkgroup(ctx, fields)
		if err != nil {
			log.Warn().Err(err).Msg("creating workgroup failed")
			stats.Failed++
			store.AddError()
			return
		}
		groupID = strconv.Itoa(newID)
		log.Info().Str("group_id", groupID).Msg("created workgroup")
		store.Record(sourceID, groupID)
		byName[name] = bitrix.Workgroup{ID: groupID, Name: name}
		stats.Created++
		store.AddCreated()
	}

	m.addMembers(ctx, space, groupID, users, stats, log)
}

// addMembers resolves the space members through the user mapping and adds
// them to the workgroup. A failing member is counted, not fatal.
func (m *Spaces) addMembers(ctx context.Context, space kaiten.Space, groupID string,
	users *mapping.Store, stats *Stats, log zerolog.Logger) {

	gid, err := strconv.Atoi(groupID)
	if err != nil {
		log.Warn().Str("group_id", groupID).Msg("non-numeric workgroup ID, skipping members")
		stats.MemberErrors++
		return
	}

	members, err := m.kaiten.SpaceMembers(ctx, space.ID)
	if err != nil {
		log.Warn().Err(err).Msg("fetching space members failed")
		stats.MemberErrors++
		return
	}

	for _, member := range members {
		targetID, ok := users.Lookup(strconv.Itoa(member.ID))
		if !ok {
			log.Debug().Str("member", member.FullName).Msg("member not in user mapping, skipping")
			stats.MemberErrors++
			continue
		}
		uid, err := strconv.Atoi(targetID)
		if err != nil {
			stats.MemberErrors++
			continue
		}
		if err := m.bitrix.AddWorkgroupMember(ctx, gid, uid); err != nil {
			log.Warn().Err(err).Str("member", member.FullName).Msg("adding member failed")
			stats.MemberErrors++
			continue
		}
		stats.MembersAdded++
	}
}
