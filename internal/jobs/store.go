package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"benchcheck/internal/config"
)

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the job database and ensures the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "jobs.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// NewJob inserts a PENDING job for the given input video.
func (s *Store) NewJob(ctx context.Context, inputPath string) (*Job, error) {
	if inputPath == "" {
		return nil, errors.New("input path required")
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (status, input_path, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		StatusPending,
		inputPath,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier. Returns (nil, nil) when absent.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs filtered by status set (or all jobs when no status is provided).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var result []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	return result, rows.Err()
}

// NextPending returns the oldest PENDING job, or nil when the queue is drained.
func (s *Store) NextPending(ctx context.Context) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at LIMIT 1`,
		StatusPending,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next pending: %w", err)
	}
	return job, nil
}

// ClaimProcessing atomically moves a job from PENDING to PROCESSING and
// records the derived output path. Returns false when the job was not in
// PENDING, which makes startAnalysis idempotent: a job already claimed (or
// terminal) is never claimed twice.
func (s *Store) ClaimProcessing(ctx context.Context, id int64, outputPath string) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, output_path = ?, error_message = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusProcessing,
		outputPath,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("claim processing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkCompleted finalizes a PROCESSING job with its result fields. The guard
// on the current status keeps terminal states immutable.
func (s *Store) MarkCompleted(ctx context.Context, id int64, result CompletionResult) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, overall_status = ?, hip_lift_detected = ?, hip_lift_status = ?,
             shallow_rep_detected = ?, shallow_rep_status = ?, total_frames = ?,
             fps = ?, duration_seconds = ?, error_message = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusCompleted,
		result.OverallStatus,
		boolToInt(result.HipLiftDetected),
		result.HipLiftStatus,
		boolToInt(result.ShallowRepDetected),
		result.ShallowRepStatus,
		result.TotalFrames,
		result.FPS,
		result.DurationSeconds,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("mark completed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkFailed moves a job to FAILED with the given message. Result fields stay
// empty; a failed job never surfaces partial results. Jobs already terminal
// are left untouched.
func (s *Store) MarkFailed(ctx context.Context, id int64, message string) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, error_message = ?,
             overall_status = NULL, hip_lift_detected = NULL, hip_lift_status = NULL,
             shallow_rep_detected = NULL, shallow_rep_status = NULL,
             total_frames = NULL, fps = NULL, duration_seconds = NULL,
             updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		StatusFailed,
		message,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusPending,
		StatusProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("mark failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// RetryFailed moves failed jobs back to PENDING for reprocessing.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE jobs SET status = ?, error_message = NULL, updated_at = ? WHERE status = ?`,
			StatusPending, timestamp, StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed jobs: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+2)
	args = append(args, StatusPending, timestamp)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE jobs SET status = ?, error_message = NULL, updated_at = ?
        WHERE id IN (` + placeholders + `) AND status = '` + string(StatusFailed) + `'`
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected jobs: %w", err)
	}
	return res.RowsAffected()
}

// Remove deletes a job (and, via cascade, its time series) by identifier.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearTerminal removes completed and failed jobs.
func (s *Store) ClearTerminal(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM jobs WHERE status IN (?, ?)`,
		StatusCompleted, StatusFailed,
	)
	if err != nil {
		return 0, fmt.Errorf("clear terminal jobs: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all jobs.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs`)
	if err != nil {
		return 0, fmt.Errorf("clear jobs: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// CompletionResult carries the verdict fields persisted on COMPLETED.
type CompletionResult struct {
	OverallStatus      string
	HipLiftDetected    bool
	HipLiftStatus      string
	ShallowRepDetected bool
	ShallowRepStatus   string
	TotalFrames        int64
	FPS                float64
	DurationSeconds    float64
}

const jobColumns = "id, status, input_path, output_path, overall_status, hip_lift_detected, hip_lift_status, shallow_rep_detected, shallow_rep_status, total_frames, fps, duration_seconds, error_message, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id                 int64
		statusStr          string
		inputPath          string
		outputPath         sql.NullString
		overallStatus      sql.NullString
		hipLiftDetected    sql.NullInt64
		hipLiftStatus      sql.NullString
		shallowRepDetected sql.NullInt64
		shallowRepStatus   sql.NullString
		totalFrames        sql.NullInt64
		fps                sql.NullFloat64
		durationSeconds    sql.NullFloat64
		errorMessage       sql.NullString
		createdRaw         string
		updatedRaw         string
	)

	if err := scanner.Scan(
		&id,
		&statusStr,
		&inputPath,
		&outputPath,
		&overallStatus,
		&hipLiftDetected,
		&hipLiftStatus,
		&shallowRepDetected,
		&shallowRepStatus,
		&totalFrames,
		&fps,
		&durationSeconds,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:                 id,
		Status:             Status(statusStr),
		InputPath:          inputPath,
		OutputPath:         outputPath.String,
		OverallStatus:      overallStatus.String,
		HipLiftDetected:    hipLiftDetected.Int64 != 0,
		HipLiftStatus:      hipLiftStatus.String,
		ShallowRepDetected: shallowRepDetected.Int64 != 0,
		ShallowRepStatus:   shallowRepStatus.String,
		TotalFrames:        totalFrames.Int64,
		FPS:                fps.Float64,
		DurationSeconds:    durationSeconds.Float64,
		ErrorMessage:       errorMessage.String,
	}

	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
