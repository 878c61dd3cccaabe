package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vlikhobabin/kaiten-to-bitrix/internal/bitrix"
	"github.com/vlikhobabin/kaiten-to-bitrix/internal/config"
	"github.com/vlikhobabin/kaiten-to-bitrix/internal/kaiten"
	"github.com/vlikhobabin/kaiten-to-bitrix/internal/mapping"
	"github.com/vlikhobabin/kaiten-to-bitrix/internal/remote"
	"github.com/vlikhobabin/kaiten-to-bitrix/internal/transform"
)

// Cards migrates the cards of one Kaiten space into tasks of the mapped
// Bitrix24 workgroup, including checklists and comments. The card mapping
// is persisted after every successful create so a mid-run crash loses no
// progress.
type Cards struct {
	kaiten  *kaiten.Client
	bitrix  *bitrix.Client
	channel *remote.Channel // nil when SSH is not configured
	cfg     config.Config
	log     zerolog.Logger
}

// CardsOptions narrows a card migration run.
type CardsOptions struct {
	SpaceID     int  // required: the source space whose cards migrate
	Limit       int  // cap on processed cards, 0 for all
	CardID      int  // migrate exactly this card, 0 for all
	ListOnly    bool // print classification without touching the target
	IncludeDone bool // also migrate cards in terminal columns, as completed
}

// NewCards creates the card migrator. channel may be nil; comment
// timestamps are then left at migration time instead of being backfilled.
func NewCards(cfg config.Config, k *kaiten.Client, b *bitrix.Client, ch *remote.Channel, log zerolog.Logger) *Cards {
	return &Cards{kaiten: k, bitrix: b, channel: ch, cfg: cfg, log: log}
}

// cardRun carries the per-run state shared by the card processing steps.
type cardRun struct {
	opts     CardsOptions
	groupID  string
	stageIDs map[transform.Stage]string
	users    *mapping.Store
	fields   *mapping.Store // empty when the fields migration has not run
	store    *mapping.Store
	stats    *Stats
}

// Run migrates the cards of the space named in opts. The user and space
// mappings must already exist.
func (m *Cards) Run(ctx context.Context, opts CardsOptions) (Stats, error) {
	var stats Stats

	if opts.SpaceID == 0 {
		return stats, fmt.Errorf("a source space ID is required")
	}

	users, err := mapping.LoadRequired(m.cfg.MappingsDir, mapping.KindUsers, m.log)
	if err != nil {
		return stats, err
	}
	spaces, err := mapping.LoadRequired(m.cfg.MappingsDir, mapping.KindSpaces, m.log)
	if err != nil {
		return stats, err
	}
	groupID, ok := spaces.Lookup(strconv.Itoa(opts.SpaceID))
	if !ok {
		return stats, fmt.Errorf("space %d has no workgroup mapping: run the 'spaces' migration first", opts.SpaceID)
	}

	run := &cardRun{
		opts:    opts,
		groupID: groupID,
		users:   users,
		fields:  mapping.Load(m.cfg.MappingsDir, mapping.KindFields, m.log),
		store:   mapping.Load(m.cfg.MappingsDir, mapping.KindCards, m.log),
		stats:   &stats,
	}

	if !opts.ListOnly {
		run.stageIDs, err = m.resolveStages(ctx, groupID, opts.IncludeDone)
		if err != nil {
			return stats, err
		}
	}

	if opts.CardID > 0 {
		card, err := m.kaiten.Card(ctx, opts.CardID)
		if err != nil {
			return stats, fmt.Errorf("fetching card %d: %w", opts.CardID, err)
		}
		stats.Processed++
		m.processCard(ctx, card, run)
	} else if err := m.processSpaceBoards(ctx, run); err != nil {
		return stats, err
	}

	if err := run.store.Save(m.cfg.MappingsDir); err != nil {
		return stats, fmt.Errorf("saving card mapping: %w", err)
	}

	stats.Log(m.log, "card")
	return stats, nil
}

// resolveStages maps the destination stage names to stage IDs of the
// workgroup's kanban. Missing required stages are fatal: cards cannot be
// placed without them.
func (m *Cards) resolveStages(ctx context.Context, groupID string, includeDone bool) (map[transform.Stage]string, error) {
	gid, err := strconv.Atoi(groupID)
	if err != nil {
		return nil, fmt.Errorf("non-numeric workgroup ID %q in space mapping", groupID)
	}

	stages, err := m.bitrix.TaskStages(ctx, gid)
	if err != nil {
		return nil, err
	}

	byTitle := map[transform.Stage]string{}
	for id, stage := range stages {
		byTitle[transform.Stage(stage.Title)] = id
	}

	required := []transform.Stage{transform.StageNew, transform.StageInProgress}
	if includeDone {
		required = append(required, transform.StageDone)
	}
	resolved := map[transform.Stage]string{}
	for _, name := range required {
		id, ok := byTitle[name]
		if !ok {
			return nil, fmt.Errorf("workgroup %s has no %q stage", groupID, name)
		}
		resolved[name] = id
	}
	return resolved, nil
}

func (m *Cards) processSpaceBoards(ctx context.Context, run *cardRun) error {
	boards, err := m.kaiten.Boards(ctx, run.opts.SpaceID)
	if err != nil {
		return fmt.Errorf("fetching boards of space %d: %w", run.opts.SpaceID, err)
	}
	m.log.Info().Int("count", len(boards)).Msg("fetched boards")

	for _, board := range boards {
		run.stats.Boards++
		cards, err := m.kaiten.BoardCards(ctx, board.ID)
		if err != nil {
			m.log.Warn().Err(err).Str("board", board.Title).Msg("fetching board cards failed")
			run.stats.Failed++
			continue
		}
		m.log.Info().Str("board", board.Title).Int("cards", len(cards)).Msg("processing board")

		for i := range cards {
			if run.opts.Limit > 0 && run.stats.Processed >= run.opts.Limit {
				m.log.Info().Int("limit", run.opts.Limit).Msg("card limit reached")
				return nil
			}
			run.stats.Processed++

			// The list endpoint returns summaries; the full card carries
			// the description and member roles.
			card := &cards[i]
			if full, err := m.kaiten.Card(ctx, card.ID); err == nil {
				card = full
			} else {
				m.log.Debug().Err(err).Int("card", card.ID).Msg("full card fetch failed, using summary")
			}
			m.processCard(ctx, card, run)
		}
	}
	return nil
}

func (m *Cards) processCard(ctx context.Context, card *kaiten.Card, run *cardRun) {
	log := m.log.With().Int("card", card.ID).Str("title", card.Title).Logger()

	columnType := 0
	if card.Column != nil {
		columnType = card.Column.Type
	}
	stage, ok := transform.StageFor(columnType, run.opts.IncludeDone)
	if !ok || (card.Archived && !run.opts.IncludeDone) {
		run.stats.Filtered++
		log.Debug().Msg("card filtered out")
		return
	}

	sourceID := strconv.Itoa(card.ID)
	taskID, migrated := run.store.Lookup(sourceID)

	if run.opts.ListOnly {
		if migrated {
			log.Info().Str("task_id", taskID).Msg("already migrated")
		} else {
			log.Info().Str("stage", string(stage)).Msg("would migrate")
		}
		return
	}

	fields, err := transform.Card(card, run.groupID, run.users)
	if err != nil {
		log.Warn().Err(err).Msg("card transform failed")
		run.stats.Failed++
		run.store.AddError()
		return
	}
	fields.StageID = run.stageIDs[stage]
	if stage == transform.StageDone {
		fields.Status = bitrix.StatusCompleted
	}

	if migrated {
		m.updateCard(ctx, card, taskID, fields, run, log)
		return
	}
	m.createCard(ctx, card, fields, run, log)
}

func (m *Cards) createCard(ctx context.Context, card *kaiten.Card, fields bitrix.TaskFields, run *cardRun, log zerolog.Logger) {
	taskID, err := m.bitrix.CreateTask(ctx, fields)
	if err != nil {
		log.Warn().Err(err).Msg("creating task failed")
		run.stats.Failed++
		run.store.AddError()
		return
	}
	log.Info().Int("task_id", taskID).Msg("created task")

	// Persist immediately: a crash after this point must not lose the
	// correspondence and duplicate the task on the next run.
	run.store.Record(strconv.Itoa(card.ID), strconv.Itoa(taskID))
	run.store.AddCreated()
	if err := run.store.Save(m.cfg.MappingsDir); err != nil {
		log.Error().Err(err).Msg("saving card mapping failed")
	}
	run.stats.Created++

	m.applyCustomFields(ctx, card, taskID, run, log)
	m.migrateChecklists(ctx, card, taskID, false, run, log)
	m.migrateComments(ctx, card, taskID, false, run, log)
}

func (m *Cards) updateCard(ctx context.Context, card *kaiten.Card, taskIDStr string, fields bitrix.TaskFields, run *cardRun, log zerolog.Logger) {
	taskID, err := strconv.Atoi(taskIDStr)
	if err != nil {
		log.Warn().Str("task_id", taskIDStr).Msg("non-numeric task ID in card mapping")
		run.stats.Failed++
		run.store.AddError()
		return
	}

	// A mapping row whose task was deleted on the target fails here and is
	// counted; it is not re-created without operator cleanup of the row.
	if err := m.bitrix.UpdateTask(ctx, taskID, fields); err != nil {
		log.Warn().Err(err).Int("task_id", taskID).Msg("updating task failed")
		run.stats.Failed++
		run.store.AddError()
		return
	}
	log.Info().Int("task_id", taskID).Msg("updated task")
	run.stats.Updated++
	run.store.AddUpdated()

	m.applyCustomFields(ctx, card, taskID, run, log)
	m.migrateChecklists(ctx, card, taskID, true, run, log)
	m.migrateComments(ctx, card, taskID, true, run, log)
}

// applyCustomFields pushes the card's select-property values onto the
// task through the field mapping. Best-effort: a card is migrated even
// when its custom field values are not.
func (m *Cards) applyCustomFields(ctx context.Context, card *kaiten.Card, taskID int, run *cardRun, log zerolog.Logger) {
	if run.fields.Len() == 0 {
		return
	}
	properties := transform.CardProperties(card.Properties)
	if err := ApplyCardValues(ctx, m.bitrix, run.fields, properties, taskID, log); err != nil {
		log.Warn().Err(err).Msg("applying custom field values failed")
	}
}

// migrateChecklists replays the card's checklists as task checklist
// groups. On update, groups whose title already exists on the task are
// left alone instead of being duplicated.
func (m *Cards) migrateChecklists(ctx context.Context, card *kaiten.Card, taskID int, isUpdate bool, run *cardRun, log zerolog.Logger) {
	existing := map[string]bool{}
	if isUpdate {
		items, err := m.bitrix.TaskChecklist(ctx, taskID)
		if err != nil {
			log.Warn().Err(err).Msg("fetching existing checklist failed")
		}
		for _, item := range items {
			if item.ParentID == "" || item.ParentID == "0" {
				existing[item.Title] = true
			}
		}
	}

	checklists, err := m.kaiten.CardChecklists(ctx, card.ID)
	if err != nil {
		log.Warn().Err(err).Msg("fetching card checklists failed")
		return
	}

	for _, checklist := range checklists {
		if isUpdate && existing[checklist.Name] {
			log.Debug().Str("checklist", checklist.Name).Msg("checklist already present, skipping")
			continue
		}

		groupID, err := m.bitrix.AddChecklistItem(ctx, taskID, checklist.Name, false, 0)
		if err != nil {
			log.Warn().Err(err).Str("checklist", checklist.Name).Msg("creating checklist group failed")
			continue
		}
		run.stats.Checklists++

		items := checklist.Items
		sort.Slice(items, func(i, j int) bool { return items[i].SortOrder < items[j].SortOrder })
		for _, item := range items {
			if strings.TrimSpace(item.Text) == "" {
				continue
			}
			if _, err := m.bitrix.AddChecklistItem(ctx, taskID, item.Text, item.Checked, groupID); err != nil {
				log.Warn().Err(err).Str("item", item.Text).Msg("adding checklist item failed")
				continue
			}
			run.stats.ChecklistItems++
		}
	}
}

// migrateComments replays the card's comments in creation order. Service
// bots (negative author IDs) and authors outside the user mapping are
// skipped; on update, comments whose text already exists on the task are
// not repeated. Original timestamps are backfilled through the remote
// channel when it is configured, since the comment API ignores supplied
// dates.
func (m *Cards) migrateComments(ctx context.Context, card *kaiten.Card, taskID int, isUpdate bool, run *cardRun, log zerolog.Logger) {
	existing := map[string]bool{}
	if isUpdate {
		comments, err := m.bitrix.TaskComments(ctx, taskID)
		if err != nil {
			log.Warn().Err(err).Msg("fetching existing comments failed")
		}
		for _, c := range comments {
			if text := strings.TrimSpace(c.PostMessage); text != "" {
				existing[text] = true
			}
		}
	}

	comments, err := m.kaiten.CardComments(ctx, card.ID)
	if err != nil {
		log.Warn().Err(err).Msg("fetching card comments failed")
		return
	}

	// The source API does not guarantee listing order; replay oldest
	// first so the thread reads chronologically at the destination.
	sort.Slice(comments, func(i, j int) bool { return comments[i].Created.Before(comments[j].Created) })

	dates := map[string]string{}
	for _, comment := range comments {
		text := strings.TrimSpace(comment.Text)
		if text == "" {
			continue
		}
		if comment.Author == nil || comment.Author.ID < 0 {
			run.stats.CommentsSkipped++
			continue
		}
		authorID, ok := run.users.Lookup(strconv.Itoa(comment.Author.ID))
		if !ok {
			log.Debug().Str("author", comment.Author.FullName).Msg("comment author not in user mapping, skipping")
			run.stats.CommentsSkipped++
			continue
		}
		if isUpdate && existing[text] {
			continue
		}

		aid, err := strconv.Atoi(authorID)
		if err != nil {
			run.stats.CommentsSkipped++
			continue
		}
		commentID, err := m.bitrix.AddTaskComment(ctx, taskID, text, aid)
		if err != nil {
			log.Warn().Err(err).Msg("adding comment failed")
			continue
		}
		run.stats.Comments++

		if !comment.Created.IsZero() {
			dates[strconv.Itoa(commentID)] = comment.Created.UTC().Format("2006-01-02 15:04:05")
		}
	}

	m.backfillCommentDates(ctx, dates, log)
}

// backfillCommentDates hands the new comment IDs and their original
// timestamps to the remote channel. Best-effort: the comments exist either
// way, only their displayed dates differ.
func (m *Cards) backfillCommentDates(ctx context.Context, dates map[string]string, log zerolog.Logger) {
	if len(dates) == 0 {
		return
	}
	if m.channel == nil || m.cfg.SSH.DatesCmd == "" {
		log.Debug().Int("count", len(dates)).Msg("remote channel not configured, comment dates keep migration time")
		return
	}

	payload, err := json.Marshal(dates)
	if err != nil {
		log.Warn().Err(err).Msg("marshalling comment dates failed")
		return
	}

	remotePath := m.cfg.SSH.WorkDir + "/comment_dates.json"

	if err := m.channel.Put(ctx, payload, remotePath); err != nil {
		log.Warn().Err(err).Msg("uploading comment dates failed")
		return
	}
	if _, err := m.channel.Run(ctx, m.cfg.SSH.DatesCmd+" "+remotePath); err != nil {
		log.Warn().Err(err).Msg("backfilling comment dates failed")
		return
	}
	log.Debug().Int("count", len(dates)).Msg("comment dates backfilled")
}
