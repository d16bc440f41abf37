package jobs

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/shortreel/shortreel/internal/types"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteRegistry persists jobs across restarts for the serve mode. The
// structured fields (assets, style, degradations) are stored as JSON since
// nothing queries into them.
type SQLiteRegistry struct {
	conn   *sql.DB
	logger *slog.Logger
}

func OpenSQLite(dbPath string, logger *slog.Logger) (*SQLiteRegistry, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	r := &SQLiteRegistry{conn: conn, logger: logger}

	if err := r.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := r.markInterruptedJobs(); err != nil && logger != nil {
		logger.Warn("failed to mark interrupted jobs", "error", err)
	}

	return r, nil
}

func (r *SQLiteRegistry) Close() error {
	return r.conn.Close()
}

func (r *SQLiteRegistry) migrate() error {
	migrations, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	for _, m := range migrations {
		if m.IsDir() {
			continue
		}

		name := m.Name()

		if r.isMigrationApplied(name) {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		if _, err := r.conn.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}

		if _, err := r.conn.Exec("INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", name, err)
		}

		if r.logger != nil {
			r.logger.Info("applied migration", "name", name)
		}
	}

	return nil
}

func (r *SQLiteRegistry) isMigrationApplied(name string) bool {
	var exists int
	err := r.conn.QueryRow("SELECT 1 FROM sqlite_master WHERE type='table' AND name='_migrations'").Scan(&exists)
	if err != nil {
		return false
	}

	var applied int
	err = r.conn.QueryRow("SELECT 1 FROM _migrations WHERE name = ?", name).Scan(&applied)
	return err == nil && applied == 1
}

// markInterruptedJobs fails jobs that were mid-flight when the process died.
func (r *SQLiteRegistry) markInterruptedJobs() error {
	_, err := r.conn.ExecContext(context.Background(), `
		UPDATE jobs SET stage = ?, error_kind = ?, error_message = 'interrupted by restart',
			error_stage = stage, updated_at = ?
		WHERE stage NOT IN (?, ?)
	`, StageFailed, ErrKindCanceled, time.Now().UTC().Format(time.RFC3339), StageCompleted, StageFailed)
	return err
}

func (r *SQLiteRegistry) Create(ctx context.Context, job Job) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	job.UpdatedAt = job.CreatedAt

	assets, style, degradations, err := encodeJob(job)
	if err != nil {
		return err
	}

	_, err = r.conn.ExecContext(ctx, `
		INSERT INTO jobs (id, assets, style, stage, stage_index, assets_total, assets_done,
			degradations, best_effort, artifact_path, error_kind, error_message, error_stage,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, assets, style, job.Stage, job.Progress.StageIndex, job.Progress.AssetsTotal,
		job.Progress.AssetsDone, degradations, boolToInt(job.BestEffort), job.ArtifactPath,
		job.ErrKind, job.ErrMessage, job.ErrStage,
		job.CreatedAt.Format(time.RFC3339), job.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRegistry) Update(ctx context.Context, job Job) error {
	assets, style, degradations, err := encodeJob(job)
	if err != nil {
		return err
	}

	res, err := r.conn.ExecContext(ctx, `
		UPDATE jobs SET assets = ?, style = ?, stage = ?, stage_index = ?, assets_total = ?,
			assets_done = ?, degradations = ?, best_effort = ?, artifact_path = ?,
			error_kind = ?, error_message = ?, error_stage = ?, updated_at = ?
		WHERE id = ?
	`, assets, style, job.Stage, job.Progress.StageIndex, job.Progress.AssetsTotal,
		job.Progress.AssetsDone, degradations, boolToInt(job.BestEffort), job.ArtifactPath,
		job.ErrKind, job.ErrMessage, job.ErrStage,
		time.Now().UTC().Format(time.RFC3339), job.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRegistry) Get(ctx context.Context, id string) (Job, error) {
	row := r.conn.QueryRowContext(ctx, `
		SELECT id, assets, style, stage, stage_index, assets_total, assets_done,
			degradations, best_effort, artifact_path, error_kind, error_message, error_stage,
			created_at, updated_at
		FROM jobs WHERE id = ?
	`, id)
	return scanJob(row)
}

func (r *SQLiteRegistry) List(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.conn.QueryContext(ctx, `
		SELECT id, assets, style, stage, stage_index, assets_total, assets_done,
			degradations, best_effort, artifact_path, error_kind, error_message, error_stage,
			created_at, updated_at
		FROM jobs ORDER BY created_at DESC, id ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (Job, error) {
	var job Job
	var assets, style, degradations string
	var bestEffort int
	var createdAt, updatedAt string

	err := row.Scan(&job.ID, &assets, &style, &job.Stage, &job.Progress.StageIndex,
		&job.Progress.AssetsTotal, &job.Progress.AssetsDone, &degradations, &bestEffort,
		&job.ArtifactPath, &job.ErrKind, &job.ErrMessage, &job.ErrStage, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, err
	}

	if err := json.Unmarshal([]byte(assets), &job.Assets); err != nil {
		return Job{}, fmt.Errorf("decode assets for job %s: %w", job.ID, err)
	}
	if err := json.Unmarshal([]byte(style), &job.Style); err != nil {
		return Job{}, fmt.Errorf("decode style for job %s: %w", job.ID, err)
	}
	if degradations != "" && degradations != "null" {
		if err := json.Unmarshal([]byte(degradations), &job.Degradations); err != nil {
			return Job{}, fmt.Errorf("decode degradations for job %s: %w", job.ID, err)
		}
	}
	job.BestEffort = bestEffort == 1
	job.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	job.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return job, nil
}

func encodeJob(job Job) (assets, style, degradations string, err error) {
	if job.Assets == nil {
		job.Assets = []types.Asset{}
	}
	a, err := json.Marshal(job.Assets)
	if err != nil {
		return "", "", "", err
	}
	s, err := json.Marshal(job.Style)
	if err != nil {
		return "", "", "", err
	}
	d, err := json.Marshal(job.Degradations)
	if err != nil {
		return "", "", "", err
	}
	return string(a), string(s), string(d), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
