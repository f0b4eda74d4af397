// Package resume implements the resume/force/invalidation controller:
// the per-stage force/skip-done decision table, the sqlite-backed
// input-hash cache that guards against stale-input skips, and
// downstream invalidation when a run is restarted from an earlier
// stage.
package resume

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite"
)

const (
	pragmaJournalModeWAL = `PRAGMA journal_mode = WAL;`

	hashCacheSchema = `CREATE TABLE IF NOT EXISTS input_hashes (
		run_id TEXT NOT NULL,
		stage_id TEXT NOT NULL,
		combined_hash TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (run_id, stage_id)
	);`

	upsertHashSQL = `INSERT INTO input_hashes (run_id, stage_id, combined_hash, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, stage_id) DO UPDATE SET combined_hash = excluded.combined_hash, updated_at = excluded.updated_at;`

	getHashSQL = `SELECT combined_hash FROM input_hashes WHERE run_id = ? AND stage_id = ?;`

	deleteStageHashSQL = `DELETE FROM input_hashes WHERE run_id = ? AND stage_id = ?;`
)

// HashCache is a thin sqlite wrapper, schema owned by this package,
// over the input-hash table the stale-input guard consults before
// honoring --skip-done.
type HashCache struct {
	db *sql.DB
}

// OpenHashCache opens (creating if necessary) the sqlite database at
// path and ensures its schema.
func OpenHashCache(path string) (*HashCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("resume: open hash cache %s: %w", path, err)
	}
	if _, err := db.ExecContext(context.Background(), pragmaJournalModeWAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("resume: set journal mode WAL: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), hashCacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("resume: create input_hashes table: %w", err)
	}
	return &HashCache{db: db}, nil
}

// Close releases the underlying database handle.
func (c *HashCache) Close() error {
	return c.db.Close()
}

// HashInputs computes a single SHA-256 digest over the concatenation
// of every input artifact's bytes, in the order given — the combined
// hash the stale-input guard compares against the last recorded one.
func HashInputs(paths []string) (string, error) {
	h := sha256.New()
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return "", fmt.Errorf("resume: hash input %s: %w", p, err)
		}
		h.Write(data)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Matches reports whether the current inputs' combined hash matches
// the one last recorded for (runID, stageID). A stage with no
// recorded hash never matches, forcing a first run.
func (c *HashCache) Matches(ctx context.Context, runID, stageID string, inputPaths []string) (bool, error) {
	current, err := HashInputs(inputPaths)
	if err != nil {
		return false, err
	}

	var stored string
	err = c.db.QueryRowContext(ctx, getHashSQL, runID, stageID).Scan(&stored)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("resume: read input hash for %s/%s: %w", runID, stageID, err)
	}
	return stored == current, nil
}

// Record stores the current combined input hash for (runID, stageID)
// after a stage successfully runs.
func (c *HashCache) Record(ctx context.Context, runID, stageID string, inputPaths []string) error {
	digest, err := HashInputs(inputPaths)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, upsertHashSQL, runID, stageID, digest, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("resume: record input hash for %s/%s: %w", runID, stageID, err)
	}
	return nil
}

// Forget removes a recorded hash, used when invalidating a stage
// downstream of a restarted run.
func (c *HashCache) Forget(ctx context.Context, runID, stageID string) error {
	if _, err := c.db.ExecContext(ctx, deleteStageHashSQL, runID, stageID); err != nil {
		return fmt.Errorf("resume: forget input hash for %s/%s: %w", runID, stageID, err)
	}
	return nil
}
