package catalog

import (
	"context"
	"database/sql"
	"time"
)

type Repository interface {
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	ListRunsByVideo(ctx context.Context, videoID string, limit int) ([]*Run, error)
	UpdateRun(ctx context.Context, run *Run) error
	CountRuns(ctx context.Context, status string) (int, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const runColumns = `id, kind, video_id, source, status, stage, cached, error, created_at, updated_at`

func (r *SQLiteRepository) CreateRun(ctx context.Context, run *Run) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Kind, run.VideoID, nullString(run.Source), run.Status, nullString(run.Stage),
		boolToInt(run.Cached), nullString(run.Error),
		run.CreatedAt.Format(time.RFC3339), run.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

func (r *SQLiteRepository) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRuns(rows)
}

func (r *SQLiteRepository) ListRunsByVideo(ctx context.Context, videoID string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs WHERE video_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, videoID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRuns(rows)
}

func (r *SQLiteRepository) UpdateRun(ctx context.Context, run *Run) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, stage = ?, cached = ?, error = ?, updated_at = ? WHERE id = ?
	`, run.Status, nullString(run.Stage), boolToInt(run.Cached), nullString(run.Error),
		run.UpdatedAt.Format(time.RFC3339), run.ID)
	return err
}

// CountRuns counts runs with the given status, or all runs when status is empty.
func (r *SQLiteRepository) CountRuns(ctx context.Context, status string) (int, error) {
	var count int
	var err error
	if status == "" {
		err = r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&count)
	} else {
		err = r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs WHERE status = ?", status).Scan(&count)
	}
	return count, err
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var run Run
	var source, stage, errMsg sql.NullString
	var cached int
	var createdAt, updatedAt string

	if err := s.Scan(&run.ID, &run.Kind, &run.VideoID, &source, &run.Status, &stage, &cached, &errMsg, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	run.Source = source.String
	run.Stage = stage.String
	run.Cached = cached == 1
	run.Error = errMsg.String
	run.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	run.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &run, nil
}

func scanRuns(rows *sql.Rows) ([]*Run, error) {
	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
