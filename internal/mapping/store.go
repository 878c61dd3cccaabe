// Package mapping persists source-ID to target-ID correspondence tables,
// one JSON file per entity kind. The files are the only local state and
// the contract between separate migration runs: a populated store turns a
// re-run's create into an update instead of a duplicate.
package mapping

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Kind identifies the entity type a store belongs to.
type Kind string

// Entity kinds with persisted mapping files.
const (
	KindUsers  Kind = "user"
	KindSpaces Kind = "space"
	KindCards  Kind = "card"
	KindFields Kind = "custom_fields"
)

// Kinds lists every entity kind in migration order.
var Kinds = []Kind{KindUsers, KindSpaces, KindCards, KindFields}

// Filename returns the mapping file name for the kind.
func (k Kind) Filename() string {
	return string(k) + "_mapping.json"
}

// command returns the CLI command that produces this kind's mapping file.
func (k Kind) command() string {
	switch k {
	case KindUsers:
		return "users"
	case KindSpaces:
		return "spaces"
	case KindCards:
		return "cards"
	case KindFields:
		return "fields"
	}
	return string(k)
}

func (k Kind) description() string {
	switch k {
	case KindUsers:
		return "Kaiten user ID -> Bitrix24 user ID"
	case KindSpaces:
		return "Kaiten space ID -> Bitrix24 workgroup ID"
	case KindCards:
		return "Kaiten card ID -> Bitrix24 task ID"
	case KindFields:
		return "Kaiten custom property ID -> Bitrix24 user field name"
	}
	return string(k)
}

// Stats are the cumulative counters stored alongside the mapping. They are
// additive across runs: save folds this run's deltas into the on-disk
// totals instead of replacing them.
type Stats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Errors  int `json:"errors"`
}

func (s Stats) add(d Stats) Stats {
	return Stats{
		Created: s.Created + d.Created,
		Updated: s.Updated + d.Updated,
		Errors:  s.Errors + d.Errors,
	}
}

// fileDoc is the on-disk shape of a mapping file.
type fileDoc struct {
	CreatedAt   string            `json:"created_at"`
	Description string            `json:"description"`
	Stats       Stats             `json:"stats"`
	Mapping     map[string]string `json:"mapping"`
}

// Store is the in-memory mapping table for one entity kind. It assumes a
// single writer per kind; concurrent runs against the same kind race on
// save and must be serialized by the operator.
type Store struct {
	kind       Kind
	rows       map[string]string
	pending    Stats
	cumulative Stats
	log        zerolog.Logger
}

// Load reads the persisted mapping for the kind from dir. A missing file
// yields an empty store. A malformed file is preserved as <file>.corrupt,
// logged, and treated as empty.
func Load(dir string, kind Kind, log zerolog.Logger) *Store {
	s := &Store{
		kind: kind,
		rows: map[string]string{},
		log:  log.With().Str("mapping", string(kind)).Logger(),
	}

	path := filepath.Join(dir, kind.Filename())
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("file", path).Msg("cannot read mapping file, starting empty")
		}
		return s
	}

	var doc fileDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		// Keep the damaged file so prior progress stays recoverable.
		if renameErr := os.Rename(path, path+".corrupt"); renameErr == nil {
			s.log.Warn().Err(err).Str("file", path).
				Msg("malformed mapping file preserved as .corrupt, starting empty")
		} else {
			s.log.Warn().Err(err).Str("file", path).Msg("malformed mapping file, starting empty")
		}
		return s
	}

	if doc.Mapping != nil {
		s.rows = doc.Mapping
	}
	s.cumulative = doc.Stats
	s.log.Debug().Int("rows", len(s.rows)).Msg("loaded mapping")
	return s
}

// LoadRequired is Load for cross-entity dependencies: a missing or empty
// mapping file is an error naming the command that must run first.
func LoadRequired(dir string, kind Kind, log zerolog.Logger) (*Store, error) {
	path := filepath.Join(dir, kind.Filename())
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("mapping file %s not found: run the '%s' migration first", path, kind.command())
	}
	s := Load(dir, kind, log)
	if s.Len() == 0 {
		return nil, fmt.Errorf("mapping file %s is empty: run the '%s' migration first", path, kind.command())
	}
	return s, nil
}

// Kind returns the entity kind of the store.
func (s *Store) Kind() Kind { return s.kind }

// Len returns the number of mapping rows.
func (s *Store) Len() int { return len(s.rows) }

// Lookup returns the target ID recorded for sourceID. Absence means the
// record has not been migrated yet.
func (s *Store) Lookup(sourceID string) (string, bool) {
	targetID, ok := s.rows[sourceID]
	return targetID, ok
}

// Record inserts or overwrites the mapping row for sourceID. It does not
// persist; the caller decides durability granularity via Save.
func (s *Store) Record(sourceID, targetID string) {
	s.rows[sourceID] = targetID
}

// AddCreated, AddUpdated and AddError accumulate this run's counter deltas.
// Save folds them into the on-disk totals.
func (s *Store) AddCreated() { s.pending.Created++ }
func (s *Store) AddUpdated() { s.pending.Updated++ }
func (s *Store) AddError()   { s.pending.Errors++ }

// CumulativeStats returns the totals as of the last load or save.
func (s *Store) CumulativeStats() Stats { return s.cumulative }

// Save persists the store to dir. It re-reads the file first and merges:
// rows recorded by other runs that this run never touched are kept, and
// counters are summed rather than replaced. The merged document is written
// to a temp file and renamed into place so a crash mid-write never leaves
// a truncated mapping. Resets the pending counter deltas on success, so
// incremental per-record saves do not double-count.
func (s *Store) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating mappings directory: %w", err)
	}

	path := filepath.Join(dir, s.kind.Filename())

	// Read-before-write: merge with whatever a previous run left on disk.
	onDisk := fileDoc{Mapping: map[string]string{}}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &onDisk); err != nil {
			s.log.Warn().Err(err).Msg("existing mapping file unreadable, overwriting")
			onDisk = fileDoc{Mapping: map[string]string{}}
		}
	}

	merged := onDisk.Mapping
	if merged == nil {
		merged = map[string]string{}
	}
	for src, tgt := range s.rows {
		merged[src] = tgt
	}
	s.rows = merged
	s.cumulative = onDisk.Stats.add(s.pending)

	doc := fileDoc{
		CreatedAt:   time.Now().Format(time.RFC3339),
		Description: s.kind.description(),
		Stats:       s.cumulative,
		Mapping:     merged,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling mapping: %w", err)
	}

	tmp, err := os.CreateTemp(dir, s.kind.Filename()+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp mapping file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp mapping file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp mapping file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming mapping file into place: %w", err)
	}

	s.pending = Stats{}
	s.log.Debug().Int("rows", len(merged)).Msg("saved mapping")
	return nil
}
