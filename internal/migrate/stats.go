// Package migrate drives the per-entity migration passes: fetch every
// source record, consult the mapping store, transform, create-or-update on
// the target, record the mapping. A failing record is logged and counted,
// never fatal; only missing cross-entity preconditions abort a run.
package migrate

import "github.com/rs/zerolog"

// Stats are the counters of one migration run. They are merged into the
// mapping store's cumulative counters on save; the run-local values feed
// the end-of-run summary and the process exit code.
type Stats struct {
	Processed int
	Created   int
	Updated   int
	Filtered  int
	Failed    int

	// Entity-specific extras.
	Boards          int
	MembersAdded    int
	MemberErrors    int
	Checklists      int
	ChecklistItems  int
	Comments        int
	CommentsSkipped int
}

// HasErrors reports whether the run should map to a non-zero exit code.
func (s Stats) HasErrors() bool {
	return s.Failed > 0
}

// Log writes the end-of-run summary.
func (s Stats) Log(log zerolog.Logger, what string) {
	ev := log.Info().
		Int("processed", s.Processed).
		Int("created", s.Created).
		Int("updated", s.Updated).
		Int("filtered", s.Filtered).
		Int("failed", s.Failed)
	if s.Boards > 0 {
		ev = ev.Int("boards", s.Boards)
	}
	if s.MembersAdded > 0 || s.MemberErrors > 0 {
		ev = ev.Int("members_added", s.MembersAdded).Int("member_errors", s.MemberErrors)
	}
	if s.Checklists > 0 || s.ChecklistItems > 0 {
		ev = ev.Int("checklists", s.Checklists).Int("checklist_items", s.ChecklistItems)
	}
	if s.Comments > 0 || s.CommentsSkipped > 0 {
		ev = ev.Int("comments", s.Comments).Int("comments_skipped", s.CommentsSkipped)
	}
	ev.Msgf("%s migration finished", what)
}
