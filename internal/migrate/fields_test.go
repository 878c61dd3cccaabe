package migrate

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vlikhobabin/kaiten-to-bitrix/internal/mapping"
)

type recordingUpdater struct {
	taskID int
	fields map[string][]string
	calls  int
}

func (u *recordingUpdater) UpdateTaskCustomFields(_ context.Context, taskID int, fields map[string][]string) error {
	u.calls++
	u.taskID = taskID
	u.fields = fields
	return nil
}

func TestApplyCardValuesResolvesThroughMapping(t *testing.T) {
	dir := t.TempDir()
	fields := mapping.Load(dir, mapping.KindFields, zerolog.Nop())
	fields.Record("19", "UF_KAITEN_19")

	updater := &recordingUpdater{}
	err := ApplyCardValues(context.Background(), updater, fields, map[string][]string{
		"19": {"12", "14"},
		"21": {"7"}, // not in the mapping, dropped
	}, 700, zerolog.Nop())

	require.NoError(t, err)
	assert.Equal(t, 1, updater.calls)
	assert.Equal(t, 700, updater.taskID)
	assert.Equal(t, map[string][]string{"UF_KAITEN_19": {"12", "14"}}, updater.fields)
}

func TestApplyCardValuesNoopWhenNothingResolves(t *testing.T) {
	dir := t.TempDir()
	fields := mapping.Load(dir, mapping.KindFields, zerolog.Nop())

	updater := &recordingUpdater{}
	err := ApplyCardValues(context.Background(), updater, fields, map[string][]string{"19": {"1"}}, 700, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 0, updater.calls)

	err = ApplyCardValues(context.Background(), updater, fields, nil, 700, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 0, updater.calls)
}
