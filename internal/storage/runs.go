package storage

import (
	"context"
	"database/sql"
	"fmt"

	"visionaid/internal/models"
)

const defaultRecentLimit = 50

// RunStore persists the stage run audit log.
type RunStore struct {
	db *sql.DB
}

// NewRunStore wraps an already migrated database.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// Record appends one run.
func (s *RunStore) Record(ctx context.Context, run models.StageRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stage_runs (stage, image_id, status, error, duration_ms, text_chars, audio_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(run.Stage), run.ImageID, run.Status, run.Error, run.DurationMS, run.TextChars, run.AudioBytes, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record stage run: %w", err)
	}
	return nil
}

// Recent returns the newest runs first. A non-positive limit uses the default.
func (s *RunStore) Recent(ctx context.Context, limit int) ([]models.StageRun, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, stage, image_id, status, error, duration_ms, text_chars, audio_bytes, created_at
		FROM stage_runs ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list stage runs: %w", err)
	}
	defer rows.Close()

	runs := make([]models.StageRun, 0, limit)
	for rows.Next() {
		var r models.StageRun
		var stage string
		if err := rows.Scan(&r.ID, &stage, &r.ImageID, &r.Status, &r.Error, &r.DurationMS, &r.TextChars, &r.AudioBytes, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stage run: %w", err)
		}
		r.Stage = models.Stage(stage)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
