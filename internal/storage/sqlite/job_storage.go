package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/trawler/internal/interfaces"
	"github.com/ternarybob/trawler/internal/models"
)

// unixToTime converts Unix timestamp to time.Time
func unixToTime(unix int64) time.Time {
	return time.Unix(unix, 0)
}

// JobStorage implements SQLite storage for crawl jobs
type JobStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewJobStorage creates a new job storage instance
func NewJobStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

const jobColumns = `id, status, config_json, progress_json, error, created_at, started_at, completed_at`

// SaveJob creates or updates a job in the database
func (s *JobStorage) SaveJob(ctx context.Context, job *models.CrawlJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Serialize config and progress to JSON
	configJSON, err := job.Config.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	progressJSON, err := job.Progress.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize progress: %w", err)
	}

	// Convert timestamps to Unix (SQLite integer)
	createdAt := job.CreatedAt.Unix()
	var startedAt, completedAt sql.NullInt64

	if !job.StartedAt.IsZero() {
		startedAt.Valid = true
		startedAt.Int64 = job.StartedAt.Unix()
	}

	if !job.CompletedAt.IsZero() {
		completedAt.Valid = true
		completedAt.Int64 = job.CompletedAt.Unix()
	}

	query := `
		INSERT INTO crawl_jobs (
			id, status, config_json, progress_json, error, created_at, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			progress_json = excluded.progress_json,
			error = excluded.error,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`

	_, err = s.db.db.ExecContext(ctx, query,
		job.ID,
		string(job.Status),
		configJSON,
		progressJSON,
		job.Error,
		createdAt,
		startedAt,
		completedAt,
	)

	if err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to save job")
		return fmt.Errorf("failed to save job: %w", err)
	}

	s.logger.Debug().Str("job_id", job.ID).Str("status", string(job.Status)).Msg("Job saved")
	return nil
}

// GetJob retrieves a job by ID
func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.CrawlJob, error) {
	query := `SELECT ` + jobColumns + ` FROM crawl_jobs WHERE id = ?`

	row := s.db.db.QueryRowContext(ctx, query, jobID)
	job, err := scanJobRow(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	return job, nil
}

// ListJobs lists jobs newest first
func (s *JobStorage) ListJobs(ctx context.Context) ([]*models.CrawlJob, error) {
	query := `SELECT ` + jobColumns + ` FROM crawl_jobs ORDER BY created_at DESC`

	rows, err := s.db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.CrawlJob
	for rows.Next() {
		job, err := scanJobRow(rows.Scan)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to scan job row, skipping")
			continue
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// UpdateStatus updates job status and error message. Terminal statuses
// stamp completed_at; running stamps started_at on first transition.
// Jobs already in a terminal status are never updated: a completion check
// racing a cancel gets ErrStateConflict instead of flipping the job back.
func (s *JobStorage) UpdateStatus(ctx context.Context, jobID string, status models.JobStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	guard := " AND status NOT IN (?, ?, ?)"
	guardArgs := []interface{}{
		string(models.JobStatusCompleted),
		string(models.JobStatusFailed),
		string(models.JobStatusCancelled),
	}

	var query string
	switch {
	case status.IsTerminal():
		query = `
			UPDATE crawl_jobs
			SET status = ?, error = ?, completed_at = strftime('%s', 'now')
			WHERE id = ?
		` + guard
	case status == models.JobStatusRunning:
		query = `
			UPDATE crawl_jobs
			SET status = ?, error = ?, started_at = COALESCE(started_at, strftime('%s', 'now'))
			WHERE id = ?
		` + guard
	default:
		query = `
			UPDATE crawl_jobs
			SET status = ?, error = ?
			WHERE id = ?
		` + guard
	}

	args := append([]interface{}{string(status), errMsg, jobID}, guardArgs...)
	result, err := s.db.db.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to update job status")
		return fmt.Errorf("failed to update job status: %w", err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		var exists int
		if err := s.db.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM crawl_jobs WHERE id = ?", jobID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check job existence: %w", err)
		}
		if exists == 0 {
			return interfaces.ErrNotFound
		}
		return interfaces.ErrStateConflict
	}

	s.logger.Debug().Str("job_id", jobID).Str("status", string(status)).Msg("Job status updated")
	return nil
}

// UpdateProgress applies mutate to the stored progress bundle. The
// read-modify-write runs under the storage mutex so concurrent counter
// bumps from webhook goroutines never lose updates.
func (s *JobStorage) UpdateProgress(ctx context.Context, jobID string, mutate func(*models.CrawlProgress)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var progressJSON string
	err := s.db.db.QueryRowContext(ctx,
		"SELECT progress_json FROM crawl_jobs WHERE id = ?", jobID).Scan(&progressJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return interfaces.ErrNotFound
		}
		return fmt.Errorf("failed to load progress: %w", err)
	}

	progress, err := models.FromJSONCrawlProgress(progressJSON)
	if err != nil {
		return fmt.Errorf("failed to deserialize progress: %w", err)
	}

	mutate(&progress)

	updated, err := progress.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize progress: %w", err)
	}

	_, err = s.db.db.ExecContext(ctx,
		"UPDATE crawl_jobs SET progress_json = ? WHERE id = ?", updated, jobID)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}

	return nil
}

// DeleteJob deletes a job by ID
func (s *JobStorage) DeleteJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := "DELETE FROM crawl_jobs WHERE id = ?"
	_, err := s.db.db.ExecContext(ctx, query, jobID)
	return err
}

// CountJobs returns total job count
func (s *JobStorage) CountJobs(ctx context.Context) (int, error) {
	query := "SELECT COUNT(*) FROM crawl_jobs"
	var count int
	err := s.db.db.QueryRowContext(ctx, query).Scan(&count)
	return count, err
}

// scanJobRow scans one crawl_jobs row through the given scan function
func scanJobRow(scan func(dest ...interface{}) error) (*models.CrawlJob, error) {
	var (
		id, status, configJSON, progressJSON string
		errorMsg                             sql.NullString
		createdAt                            int64
		startedAt, completedAt               sql.NullInt64
	)

	err := scan(&id, &status, &configJSON, &progressJSON, &errorMsg, &createdAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	config, err := models.FromJSONCrawlConfig(configJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize config: %w", err)
	}

	progress, err := models.FromJSONCrawlProgress(progressJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize progress: %w", err)
	}

	job := &models.CrawlJob{
		ID:       id,
		Status:   models.JobStatus(status),
		Config:   config,
		Progress: progress,
	}

	job.CreatedAt = unixToTime(createdAt)
	if startedAt.Valid {
		job.StartedAt = unixToTime(startedAt.Int64)
	}
	if completedAt.Valid {
		job.CompletedAt = unixToTime(completedAt.Int64)
	}
	if errorMsg.Valid {
		job.Error = errorMsg.String
	}

	return job, nil
}
