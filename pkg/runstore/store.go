// Package runstore persists run records as one JSON document per run under
// a results root, keyed by strict `<base>-NNN` identifiers.
package runstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/snow-ghost/llmbench/core"
	"github.com/snow-ghost/llmbench/pkg/observability"
)

var (
	// StrictIDPattern matches identifiers accepted for reads and writes.
	StrictIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+-\d{3}$`)
	legacyIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,120}$`)

	baseStrip      = regexp.MustCompile(`[^a-z0-9-]`)
	sequenceSuffix = regexp.MustCompile(`-\d{3}$`)
)

const (
	// MaxClaimAttempts bounds the conflicts of one allocation after which a
	// rescan of the root shows no newer claim.
	MaxClaimAttempts = 16
	maxSequence      = 999

	legacyRecordName = "run.json"
)

// Store is a filesystem run store. The root is fixed at construction.
type Store struct {
	root string
	obs  *observability.Manager

	// serialises read-modify-write of existing records
	mu sync.Mutex

	// removes a migrated legacy record
	removeRecord func(path string) error
}

var _ core.RunStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithObservability routes logs and metrics through obs.
func WithObservability(obs *observability.Manager) Option {
	return func(s *Store) { s.obs = obs }
}

// New opens a store rooted at root, creating the directory if needed.
func New(root string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, core.Wrap(core.EStorage, "failed to create results directory", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, core.Wrap(core.EStorage, "failed to resolve results directory", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, core.Wrap(core.EStorage, "failed to resolve results directory", err)
	}

	s := &Store{root: resolved, obs: observability.NewNop(), removeRecord: os.Remove}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the resolved storage root.
func (s *Store) Root() string {
	return s.root
}

// SanitizeBase derives the identifier base from a model name: lowercased,
// restricted to [a-z0-9-], without a trailing -NNN. Empty results become
// "run".
func SanitizeBase(name string) string {
	base := baseStrip.ReplaceAllString(strings.ToLower(name), "")
	base = sequenceSuffix.ReplaceAllString(base, "")
	if base == "" {
		return "run"
	}
	return base
}

// Create allocates a fresh identifier for rec, sets rec.RunID and writes
// the record. The identifier is claimed with a create-if-absent open so
// concurrent creators never share one.
func (s *Store) Create(ctx context.Context, rec *core.RunRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if rec == nil {
		return "", core.New(core.EStorage, "nil run record")
	}

	id, err := s.claim(SanitizeBase(rec.ModelName))
	if err != nil {
		return "", err
	}
	rec.RunID = id

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		s.release(id)
		return "", core.Wrap(core.EStorage, "failed to encode run record", err)
	}
	if err := s.writeAtomic(s.flatPath(id), data); err != nil {
		s.release(id)
		return "", err
	}
	return id, nil
}

// Get reads the record stored under runID.
func (s *Store) Get(ctx context.Context, runID string) (*core.RunRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.locate(runID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.Wrap(core.EStorage, "failed to read run "+runID, err)
	}

	var stored struct {
		core.RunRecord
		CapabilityID string `json:"capabilityId"`
	}
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, core.Wrap(core.EStorage, "failed to decode run "+runID, err)
	}
	rec := stored.RunRecord
	if rec.RunID == "" {
		rec.RunID = runID
	}
	if rec.ScenarioID == "" {
		rec.ScenarioID = stored.CapabilityID
	}
	return &rec, nil
}

// List returns metadata of every stored run with a strict identifier,
// newest first. A flat file wins over a legacy directory with the same id.
func (s *Store) List(ctx context.Context) ([]core.RunMeta, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, core.Wrap(core.EStorage, "failed to list results directory", err)
	}

	byID := make(map[string]core.RunMeta)
	flat := make(map[string]bool)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path, stem, ok := s.recordPath(entry)
		if !ok {
			continue
		}

		meta, ok := readMeta(path, stem)
		if !ok {
			s.obs.GetLogger().Debug("Skipping unreadable run file", "path", path)
			continue
		}
		if !StrictIDPattern.MatchString(meta.RunID) {
			continue
		}

		isFlat := !entry.IsDir() && entry.Name() == meta.RunID+".json"
		if _, exists := byID[meta.RunID]; exists && (flat[meta.RunID] || !isFlat) {
			continue
		}
		byID[meta.RunID] = meta
		flat[meta.RunID] = isFlat
	}

	runs := make([]core.RunMeta, 0, len(byID))
	for _, meta := range byID {
		runs = append(runs, meta)
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].Timestamp.Equal(runs[j].Timestamp) {
			return runs[i].Timestamp.After(runs[j].Timestamp)
		}
		return runs[i].RunID < runs[j].RunID
	})
	return runs, nil
}

// AppendInsight appends an opaque JSON document to the run's insights,
// leaving every other field byte-for-byte intact.
func (s *Store) AppendInsight(ctx context.Context, runID string, insight json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !json.Valid(insight) {
		return core.New(core.EValidation, "insight must be valid JSON")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.locate(runID)
	if err != nil {
		return err
	}
	doc, err := readDocument(path)
	if err != nil {
		return core.Wrap(core.EStorage, "failed to read run "+runID, err)
	}

	var insights []json.RawMessage
	if raw, ok := doc["insights"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &insights); err != nil {
			return core.Wrap(core.EStorage, "run "+runID+" has malformed insights", err)
		}
	}
	insights = append(insights, insight)

	encoded, err := json.Marshal(insights)
	if err != nil {
		return core.Wrap(core.EStorage, "failed to encode insights", err)
	}
	doc["insights"] = encoded

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return core.Wrap(core.EStorage, "failed to encode run record", err)
	}
	return s.writeAtomic(path, data)
}

// claim reserves the next free identifier for base.
func (s *Store) claim(base string) (string, error) {
	return s.claimFrom(base, s.maxSequence(base)+1)
}

// claimFrom claims the first free sequence number from next. A lost race
// rescans the root so the retry starts past every claim already on disk;
// only rescans that find nothing new count against MaxClaimAttempts.
func (s *Store) claimFrom(base string, next int) (string, error) {
	stalls := 0
	for next <= maxSequence && stalls < MaxClaimAttempts {
		id := fmt.Sprintf("%s-%03d", base, next)
		f, err := os.OpenFile(s.flatPath(id), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			if err := f.Close(); err != nil {
				s.release(id)
				return "", core.Wrap(core.EStorage, "failed to claim run id", err)
			}
			return id, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", core.Wrap(core.EStorage, "failed to claim run id", err)
		}
		s.obs.GetMetrics().RecordAllocationConflict()

		if rescanned := s.maxSequence(base) + 1; rescanned > next {
			next = rescanned
		} else {
			stalls++
			next++
		}
	}
	return "", core.Newf(core.EAllocationExhausted, "could not allocate a run id for %q", base)
}

func (s *Store) release(id string) {
	_ = os.Remove(s.flatPath(id))
}

// maxSequence scans flat files and legacy directories for the highest
// suffix used with base.
func (s *Store) maxSequence(base string) int {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0
	}
	prefix := base + "-"
	highest := 0
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() {
			if !strings.HasSuffix(name, ".json") {
				continue
			}
			name = strings.TrimSuffix(name, ".json")
		}
		if !strings.HasPrefix(name, prefix) || len(name) != len(prefix)+3 {
			continue
		}
		n, err := strconv.Atoi(name[len(prefix):])
		if err == nil && n > highest {
			highest = n
		}
	}
	return highest
}

// locate validates runID and returns the file holding its record: the flat
// file, or the legacy <id>/run.json.
func (s *Store) locate(runID string) (string, error) {
	if !StrictIDPattern.MatchString(runID) {
		return "", core.Newf(core.EInvalidRunID, "invalid run id %q", runID)
	}

	for _, path := range []string{s.flatPath(runID), filepath.Join(s.root, runID, legacyRecordName)} {
		if err := s.contained(path); err != nil {
			return "", err
		}
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return "", core.Wrap(core.EStorage, "failed to stat run "+runID, err)
		}
		if info.IsDir() {
			continue
		}
		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			return "", core.Wrap(core.EStorage, "failed to resolve run "+runID, err)
		}
		if err := s.contained(resolved); err != nil {
			return "", err
		}
		return path, nil
	}
	return "", core.Newf(core.ERunNotFound, "run %s not found", runID)
}

// contained rejects paths that leave the storage root.
func (s *Store) contained(path string) error {
	rel, err := filepath.Rel(s.root, filepath.Clean(path))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return core.New(core.EPathEscape, "run path escapes the results directory")
	}
	return nil
}

func (s *Store) flatPath(id string) string {
	return filepath.Join(s.root, id+".json")
}

// recordPath returns the record file of a directory entry and the id the
// entry implies.
func (s *Store) recordPath(entry fs.DirEntry) (string, string, bool) {
	name := entry.Name()
	if strings.HasPrefix(name, ".") {
		return "", "", false
	}
	if entry.IsDir() {
		path := filepath.Join(s.root, name, legacyRecordName)
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			return "", "", false
		}
		return path, name, true
	}
	if !entry.Type().IsRegular() || filepath.Ext(name) != ".json" {
		return "", "", false
	}
	return filepath.Join(s.root, name), strings.TrimSuffix(name, ".json"), true
}

// writeAtomic replaces path with data through a synced temp file.
func (s *Store) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return core.Wrap(core.EStorage, "failed to create temp file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return core.Wrap(core.EStorage, "failed to write run record", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return core.Wrap(core.EStorage, "failed to sync run record", err)
	}
	if err := tmp.Close(); err != nil {
		return core.Wrap(core.EStorage, "failed to close run record", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return core.Wrap(core.EStorage, "failed to move run record into place", err)
	}
	return nil
}

func readDocument(path string) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.New("run record is not a JSON object")
	}
	return doc, nil
}

type storedMeta struct {
	RunID          *string           `json:"runId"`
	Timestamp      *string           `json:"timestamp"`
	ModelName      string            `json:"modelName"`
	ScenarioID     string            `json:"scenarioId"`
	CapabilityID   string            `json:"capabilityId"`
	ScenarioType   core.ScenarioType `json:"scenarioType"`
	IterationCount int               `json:"iterationCount"`
}

// readMeta decodes the listing fields of a record. Documents carrying
// neither runId nor timestamp are not run records.
func readMeta(path, stem string) (core.RunMeta, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.RunMeta{}, false
	}
	var m storedMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return core.RunMeta{}, false
	}
	if m.RunID == nil && m.Timestamp == nil {
		return core.RunMeta{}, false
	}

	meta := core.RunMeta{
		RunID:          stem,
		ModelName:      m.ModelName,
		ScenarioID:     m.ScenarioID,
		ScenarioType:   m.ScenarioType,
		IterationCount: m.IterationCount,
	}
	if m.RunID != nil {
		meta.RunID = *m.RunID
	}
	if m.Timestamp != nil {
		meta.Timestamp = parseTimestamp(*m.Timestamp)
	}
	if meta.ScenarioID == "" {
		meta.ScenarioID = m.CapabilityID
	}
	if meta.ModelName == "" {
		meta.ModelName = "Unknown"
	}
	if meta.ScenarioID == "" {
		meta.ScenarioID = "Unknown"
	}
	return meta, true
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// parseTimestamp accepts RFC 3339 and zone-less ISO timestamps, the latter
// as UTC. Unparseable values sort last.
func parseTimestamp(ts string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
