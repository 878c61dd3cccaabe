package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vlikhobabin/kaiten-to-bitrix/internal/kaiten"
)

func TestStageFor(t *testing.T) {
	tests := []struct {
		name        string
		columnType  int
		includeDone bool
		wantStage   Stage
		wantOK      bool
	}{
		{"initial column", kaiten.ColumnTypeInitial, false, StageNew, true},
		{"middle column", 2, false, StageInProgress, true},
		{"unknown column type", 99, false, StageInProgress, true},
		{"terminal column excluded by default", kaiten.ColumnTypeTerminal, false, "", false},
		{"terminal column included on request", kaiten.ColumnTypeTerminal, true, StageDone, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage, ok := StageFor(tt.columnType, tt.includeDone)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantStage, stage)
		})
	}
}
