package transform

import "github.com/vlikhobabin/kaiten-to-bitrix/internal/kaiten"

// Stage is a destination kanban stage name in the target workgroup.
type Stage string

// Stage names expected to exist in every migrated workgroup.
const (
	StageNew        Stage = "Новые"
	StageInProgress Stage = "Выполняются"
	StageDone       Stage = "Выполнены"
)

// StageFor classifies a card by its column type. Cards in the initial
// column land in the New stage and cards in any middle column in the
// In Progress stage. Cards in the terminal column are excluded from
// migration unless includeDone is set, in which case they land in the
// Done stage (the caller marks the task completed).
func StageFor(columnType int, includeDone bool) (Stage, bool) {
	switch columnType {
	case kaiten.ColumnTypeInitial:
		return StageNew, true
	case kaiten.ColumnTypeTerminal:
		if includeDone {
			return StageDone, true
		}
		return "", false
	default:
		return StageInProgress, true
	}
}
