package runstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/snow-ghost/llmbench/core"
)

// MigrateLegacy moves records stored under non-strict identifiers to freshly
// allocated strict ones, rewriting their runId field. It returns the
// legacy -> strict mapping of this pass. Records already under strict ids
// are left alone, so a second pass migrates nothing.
func (s *Store) MigrateLegacy(ctx context.Context) (map[string]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, core.Wrap(core.EStorage, "failed to list results directory", err)
	}

	logger := s.obs.GetLogger()
	migrated := make(map[string]string)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return migrated, err
		}

		path, legacyID, ok := s.recordPath(entry)
		if !ok || StrictIDPattern.MatchString(legacyID) || !legacyIDPattern.MatchString(legacyID) {
			continue
		}

		runID, err := s.migrateOne(path, legacyID)
		if err != nil {
			logger.Warn("Skipping legacy run migration", "legacy_id", legacyID, "error", err)
			continue
		}
		// a strict copy is kept only once its legacy source is gone
		if err := s.removeRecord(path); err != nil {
			s.release(runID)
			logger.Warn("Failed to remove legacy run, migration rolled back", "legacy_id", legacyID, "error", err)
			continue
		}
		if entry.IsDir() {
			if err := removeEmptyDir(filepath.Dir(path)); err != nil {
				logger.Warn("Failed to remove legacy run directory", "legacy_id", legacyID, "error", err)
			}
		}

		migrated[legacyID] = runID
		s.obs.GetMetrics().RecordMigration()
		logger.LogMigration(ctx, legacyID, runID)
	}
	return migrated, nil
}

func (s *Store) migrateOne(path, legacyID string) (string, error) {
	doc, err := readDocument(path)
	if err != nil {
		return "", core.Wrap(core.EStorage, "failed to read legacy run", err)
	}

	runID, err := s.claim(SanitizeBase(legacyID))
	if err != nil {
		return "", err
	}

	encodedID, err := json.Marshal(runID)
	if err != nil {
		s.release(runID)
		return "", core.Wrap(core.EStorage, "failed to encode run id", err)
	}
	doc["runId"] = encodedID
	if _, ok := doc["scenarioId"]; !ok {
		if capability, ok := doc["capabilityId"]; ok {
			doc["scenarioId"] = capability
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		s.release(runID)
		return "", core.Wrap(core.EStorage, "failed to encode run record", err)
	}
	if err := s.writeAtomic(s.flatPath(runID), data); err != nil {
		s.release(runID)
		return "", err
	}
	return runID, nil
}

// removeEmptyDir removes a legacy run directory once nothing else remains
// in it.
func removeEmptyDir(dir string) error {
	rest, err := os.ReadDir(dir)
	if err != nil || len(rest) > 0 {
		return err
	}
	return os.Remove(dir)
}
