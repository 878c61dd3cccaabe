package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/vlikhobabin/kaiten-to-bitrix/internal/config"
	"github.com/vlikhobabin/kaiten-to-bitrix/internal/kaiten"
	"github.com/vlikhobabin/kaiten-to-bitrix/internal/mapping"
	"github.com/vlikhobabin/kaiten-to-bitrix/internal/remote"
)

// Fields migrates Kaiten custom property definitions into Bitrix24 task
// user fields. The REST API cannot create user fields, so the definitions
// are handed to a script on the portal host through the remote channel:
// upload the payload, start the job, poll for the completion marker,
// download the resulting field mapping.
type Fields struct {
	kaiten  *kaiten.Client
	channel *remote.Channel
	cfg     config.Config
	log     zerolog.Logger
}

// NewFields creates the fields migrator. The remote channel is required
// here, unlike in the card migrator.
func NewFields(cfg config.Config, k *kaiten.Client, ch *remote.Channel, log zerolog.Logger) *Fields {
	return &Fields{kaiten: k, channel: ch, cfg: cfg, log: log}
}

// fieldsPayload is the job input consumed by the remote script.
type fieldsPayload struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Properties  []fieldProperty `json:"properties"`
}

type fieldProperty struct {
	ID     int      `json:"id"`
	Name   string   `json:"name"`
	Type   string   `json:"type"`
	Values []string `json:"values,omitempty"`
}

// fieldsResult is the job output: Kaiten property ID to the created
// Bitrix24 user field name.
type fieldsResult struct {
	Fields map[string]string `json:"fields"`
}

const (
	payloadFilename = "custom_fields_data.json"
	resultFilename  = "custom_fields_result.json"
	doneFilename    = "custom_fields_done"

	markerPollInterval = 5 * time.Second
	markerPollAttempts = 60
)

// Run executes the full field migration round-trip.
func (m *Fields) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	store := mapping.Load(m.cfg.MappingsDir, mapping.KindFields, m.log)

	payload, count, err := m.buildPayload(ctx)
	if err != nil {
		return stats, err
	}
	stats.Processed = count
	if count == 0 {
		m.log.Info().Msg("no select-type custom properties to migrate")
		return stats, nil
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return stats, fmt.Errorf("marshalling field payload: %w", err)
	}

	// A local copy stays next to the mapping files so the run can be
	// audited without access to the portal host.
	localPath := filepath.Join(m.cfg.MappingsDir, payloadFilename)
	if err := os.MkdirAll(m.cfg.MappingsDir, 0o755); err != nil {
		return stats, fmt.Errorf("creating mappings directory: %w", err)
	}
	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		return stats, fmt.Errorf("writing %s: %w", localPath, err)
	}

	result, err := m.submit(ctx, data)
	if err != nil {
		stats.Failed = count
		return stats, err
	}

	for sourceID, fieldName := range result.Fields {
		store.Record(sourceID, fieldName)
		store.AddCreated()
		stats.Created++
	}
	if stats.Created < count {
		failed := count - stats.Created
		stats.Failed = failed
		for i := 0; i < failed; i++ {
			store.AddError()
		}
		m.log.Warn().Int("missing", failed).Msg("remote job returned fewer fields than submitted")
	}

	if err := store.Save(m.cfg.MappingsDir); err != nil {
		return stats, fmt.Errorf("saving field mapping: %w", err)
	}

	stats.Log(m.log, "field")
	return stats, nil
}

// buildPayload fetches the property definitions and the value lists of
// select-type properties. Archived and non-select properties are skipped:
// only list fields translate into portal user fields.
func (m *Fields) buildPayload(ctx context.Context) (fieldsPayload, int, error) {
	payload := fieldsPayload{GeneratedAt: time.Now().UTC()}

	props, err := m.kaiten.CustomProperties(ctx)
	if err != nil {
		return payload, 0, fmt.Errorf("fetching custom properties: %w", err)
	}

	for _, prop := range props {
		if prop.Archived {
			continue
		}
		if prop.Type != kaiten.PropertyTypeSelect && prop.Type != kaiten.PropertyTypeMultiSelect {
			m.log.Debug().Str("property", prop.Name).Str("type", prop.Type).Msg("skipping non-select property")
			continue
		}

		values, err := m.kaiten.CustomPropertyValues(ctx, prop.ID)
		if err != nil {
			return payload, 0, fmt.Errorf("fetching values of property %d (%s): %w", prop.ID, prop.Name, err)
		}
		entry := fieldProperty{ID: prop.ID, Name: prop.Name, Type: prop.Type}
		for _, v := range values {
			entry.Values = append(entry.Values, v.Value)
		}
		payload.Properties = append(payload.Properties, entry)
	}

	m.log.Info().Int("count", len(payload.Properties)).Msg("collected select-type custom properties")
	return payload, len(payload.Properties), nil
}

// submit runs the remote job and returns its result. The job writes the
// result file first and the completion marker last, so an existing marker
// guarantees a complete result.
func (m *Fields) submit(ctx context.Context, data []byte) (fieldsResult, error) {
	var result fieldsResult

	workDir := m.cfg.SSH.WorkDir
	remotePayload := workDir + "/" + payloadFilename
	remoteResult := workDir + "/" + resultFilename
	remoteDone := workDir + "/" + doneFilename

	// Stale artifacts of a previous run would satisfy the poll below.
	if err := m.channel.Remove(ctx, remoteResult, remoteDone); err != nil {
		return result, fmt.Errorf("cleaning up remote work dir: %w", err)
	}
	if err := m.channel.Put(ctx, data, remotePayload); err != nil {
		return result, err
	}

	command := m.cfg.SSH.FieldsCmd + " " + remotePayload
	m.log.Info().Str("command", command).Msg("starting remote field creation job")
	if _, err := m.channel.Run(ctx, command); err != nil {
		return result, fmt.Errorf("running remote field job: %w", err)
	}

	if err := m.channel.WaitForFile(ctx, remoteDone, markerPollInterval, markerPollAttempts); err != nil {
		return result, err
	}

	raw, err := m.channel.Fetch(ctx, remoteResult)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("decoding remote field result: %w", err)
	}
	m.log.Info().Int("fields", len(result.Fields)).Msg("remote field creation finished")

	if err := m.channel.Remove(ctx, remotePayload, remoteResult, remoteDone); err != nil {
		m.log.Warn().Err(err).Msg("cleaning up remote artifacts failed")
	}
	return result, nil
}

// ApplyCardValues pushes the select-property values of one card onto its
// task using the field mapping. Array-valued user fields only go through
// the form-encoded update.
func ApplyCardValues(ctx context.Context, b taskFieldUpdater, fields *mapping.Store,
	properties map[string][]string, taskID int, log zerolog.Logger) error {

	if len(properties) == 0 {
		return nil
	}
	resolved := map[string][]string{}
	for propID, values := range properties {
		fieldName, ok := fields.Lookup(propID)
		if !ok {
			log.Debug().Str("property", propID).Msg("property not in field mapping, skipping")
			continue
		}
		resolved[fieldName] = values
	}
	if len(resolved) == 0 {
		return nil
	}
	if err := b.UpdateTaskCustomFields(ctx, taskID, resolved); err != nil {
		return fmt.Errorf("applying custom fields to task %d: %w", taskID, err)
	}
	log.Debug().Int("task_id", taskID).Int("fields", len(resolved)).Msg("custom field values applied")
	return nil
}

// taskFieldUpdater is the slice of the Bitrix24 client the value push
// needs; tests substitute it.
type taskFieldUpdater interface {
	UpdateTaskCustomFields(ctx context.Context, taskID int, fields map[string][]string) error
}
