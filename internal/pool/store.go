package pool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"murmur/internal/fileutil"
)

// ErrResultNotFound is returned when no stored result exists for a task id.
var ErrResultNotFound = errors.New("pool: result not found")

const resultSchema = `
CREATE TABLE IF NOT EXISTS results (
    task_id     TEXT PRIMARY KEY,
    created_at  TEXT NOT NULL,
    stored_path TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_created_at ON results (created_at);
`

// ResultStore persists the result index in SQLite with subtitle text on disk
// beside it. The index survives daemon restarts; subtitle files are named
// {task_id}.srt under the result directory.
type ResultStore struct {
	db  *sql.DB
	dir string
}

// OpenResultStore initializes or connects to the result database under dir.
func OpenResultStore(dir string) (*ResultStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure result directory: %w", err)
	}

	dbPath := filepath.Join(dir, "results.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(resultSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply result schema: %w", err)
	}

	return &ResultStore{db: db, dir: dir}, nil
}

// Close closes the underlying database connection.
func (s *ResultStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Dir returns the directory holding result files and the index.
func (s *ResultStore) Dir() string {
	return s.dir
}

// Save writes the subtitle text to disk and records it in the index.
// Replaces any previous result for the same task id.
func (s *ResultStore) Save(ctx context.Context, taskID, content string) (Result, error) {
	result := Result{
		TaskID:     taskID,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
		Length:     len(content),
		StoredPath: filepath.Join(s.dir, taskID+".srt"),
	}

	if err := fileutil.WriteFileAtomic(result.StoredPath, []byte(content), 0o644); err != nil {
		return Result{}, fmt.Errorf("write result file: %w", err)
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO results (task_id, created_at, stored_path) VALUES (?, ?, ?)
         ON CONFLICT(task_id) DO UPDATE SET created_at = excluded.created_at, stored_path = excluded.stored_path`,
		taskID,
		result.CreatedAt.Format(time.RFC3339Nano),
		result.StoredPath,
	)
	if err != nil {
		_ = fileutil.RemoveIfExists(result.StoredPath)
		return Result{}, fmt.Errorf("index result: %w", err)
	}
	return result, nil
}

// Get loads a stored result, including its subtitle content.
func (s *ResultStore) Get(ctx context.Context, taskID string) (Result, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT task_id, created_at, stored_path FROM results WHERE task_id = ?`,
		taskID,
	)
	result, err := scanResult(row)
	if err != nil {
		return Result{}, err
	}

	content, err := os.ReadFile(result.StoredPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, ErrResultNotFound
		}
		return Result{}, fmt.Errorf("read result file: %w", err)
	}
	result.Content = string(content)
	result.Length = len(content)
	return result, nil
}

// Delete removes the index row and the result file. Reports whether a row existed.
func (s *ResultStore) Delete(ctx context.Context, taskID string) (bool, error) {
	var storedPath string
	err := s.db.QueryRowContext(ctx, `SELECT stored_path FROM results WHERE task_id = ?`, taskID).Scan(&storedPath)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup result: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE task_id = ?`, taskID); err != nil {
		return false, fmt.Errorf("delete result row: %w", err)
	}
	if err := fileutil.RemoveIfExists(storedPath); err != nil {
		return true, fmt.Errorf("delete result file: %w", err)
	}
	return true, nil
}

// List returns all indexed results, newest first, without subtitle content.
func (s *ResultStore) List(ctx context.Context) ([]Result, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT task_id, created_at, stored_path FROM results ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		if info, statErr := os.Stat(result.StoredPath); statErr == nil {
			result.Length = int(info.Size())
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// ListExpired returns the task ids of results created before cutoff.
func (s *ResultStore) ListExpired(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT task_id FROM results WHERE created_at < ?`,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("list expired results: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (Result, error) {
	var (
		result    Result
		createdAt string
	)
	if err := row.Scan(&result.TaskID, &createdAt, &result.StoredPath); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Result{}, ErrResultNotFound
		}
		return Result{}, fmt.Errorf("scan result: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Result{}, fmt.Errorf("parse result timestamp: %w", err)
	}
	result.CreatedAt = parsed
	return result, nil
}
