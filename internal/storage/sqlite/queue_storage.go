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

// QueueStorage implements SQLite storage for crawl queue items.
// All status transitions are guarded by the expected current status so a
// raced caller gets ErrStateConflict instead of silently rewinding an item.
type QueueStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewQueueStorage creates a new queue storage instance
func NewQueueStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.QueueStorage {
	return &QueueStorage{
		db:     db,
		logger: logger,
	}
}

const queueColumns = `id, job_id, url, url_type, keyword, priority, status, retry_count, next_attempt_at, created_at, submitted_at, completed_at, error_message`

// Enqueue inserts the item. Duplicate (job_id, url) pairs are dropped
// silently and reported as false.
func (s *QueueStorage) Enqueue(ctx context.Context, item *models.QueueItem) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	if item.Status == "" {
		item.Status = models.QueueStatusPending
	}

	var nextAttempt sql.NullInt64
	if item.NextAttemptAt != nil {
		nextAttempt.Valid = true
		nextAttempt.Int64 = item.NextAttemptAt.Unix()
	}

	query := `
		INSERT INTO crawl_queue (
			id, job_id, url, url_type, keyword, priority, status, retry_count, next_attempt_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id, url) DO NOTHING
	`

	result, err := s.db.db.ExecContext(ctx, query,
		item.ID,
		item.JobID,
		item.URL,
		string(item.URLType),
		item.Keyword,
		item.Priority,
		string(item.Status),
		item.RetryCount,
		nextAttempt,
		item.CreatedAt.Unix(),
	)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", item.JobID).Str("url", item.URL).Msg("Failed to enqueue item")
		return false, fmt.Errorf("failed to enqueue item: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read enqueue result: %w", err)
	}

	return affected > 0, nil
}

// ClaimNextReady selects one ready pending item and moves it to submitted
// in a single transaction. Lowest priority number wins; ties break with
// SQLite's own randomness so the submission stream is shuffled rather than
// insertion-ordered. Items with priority above maxPriority stay pending.
// Returns nil when nothing is ready.
func (s *QueueStorage) ClaimNextReady(ctx context.Context, jobID string, now time.Time, maxPriority int) (*models.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		SELECT ` + queueColumns + `
		FROM crawl_queue
		WHERE job_id = ? AND status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?) AND priority <= ?
		ORDER BY priority ASC, RANDOM()
		LIMIT 1
	`

	row := tx.QueryRowContext(ctx, query, jobID, string(models.QueueStatusPending), now.Unix(), maxPriority)
	item, err := scanQueueRow(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to select ready item: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE crawl_queue SET status = ?, submitted_at = ? WHERE id = ?",
		string(models.QueueStatusSubmitted), now.Unix(), item.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim item %s: %w", item.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	item.Status = models.QueueStatusSubmitted
	submittedAt := now
	item.SubmittedAt = &submittedAt

	return item, nil
}

// MarkCompleted transitions submitted → completed and stamps completed_at
func (s *QueueStorage) MarkCompleted(ctx context.Context, itemID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.guardedUpdate(ctx, itemID,
		"UPDATE crawl_queue SET status = ?, completed_at = ? WHERE id = ? AND status = ?",
		string(models.QueueStatusCompleted), at.Unix(), itemID, string(models.QueueStatusSubmitted))
}

// ScheduleRetry transitions submitted → pending, increments retry_count and
// stamps the next attempt time. The submitted_at stamp is cleared because
// the outstanding correlation is dead.
func (s *QueueStorage) ScheduleRetry(ctx context.Context, itemID string, nextAttempt time.Time, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.guardedUpdate(ctx, itemID,
		`UPDATE crawl_queue
		 SET status = ?, retry_count = retry_count + 1, next_attempt_at = ?, submitted_at = NULL, error_message = ?
		 WHERE id = ? AND status = ?`,
		string(models.QueueStatusPending), nextAttempt.Unix(), errMsg, itemID, string(models.QueueStatusSubmitted))
}

// MarkFailed transitions submitted → failed, terminal for this item
func (s *QueueStorage) MarkFailed(ctx context.Context, itemID string, at time.Time, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.guardedUpdate(ctx, itemID,
		"UPDATE crawl_queue SET status = ?, completed_at = ?, error_message = ? WHERE id = ? AND status = ?",
		string(models.QueueStatusFailed), at.Unix(), errMsg, itemID, string(models.QueueStatusSubmitted))
}

// guardedUpdate runs a status-guarded UPDATE and maps a zero-row result to
// ErrNotFound or ErrStateConflict depending on whether the item exists.
func (s *QueueStorage) guardedUpdate(ctx context.Context, itemID string, query string, args ...interface{}) error {
	result, err := s.db.db.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.Error().Err(err).Str("item_id", itemID).Msg("Queue transition failed")
		return fmt.Errorf("queue transition failed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read transition result: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists int
	if err := s.db.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM crawl_queue WHERE id = ?", itemID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check item existence: %w", err)
	}
	if exists == 0 {
		return interfaces.ErrNotFound
	}
	return interfaces.ErrStateConflict
}

// GetItem retrieves a queue item by ID
func (s *QueueStorage) GetItem(ctx context.Context, itemID string) (*models.QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM crawl_queue WHERE id = ?`

	row := s.db.db.QueryRowContext(ctx, query, itemID)
	item, err := scanQueueRow(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan queue item: %w", err)
	}
	return item, nil
}

// GetItemsByJob returns items for a job, optionally filtered by status
func (s *QueueStorage) GetItemsByJob(ctx context.Context, jobID string, status models.QueueStatus, limit int) ([]*models.QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM crawl_queue WHERE job_id = ?`
	args := []interface{}{jobID}

	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue items: %w", err)
	}
	defer rows.Close()

	return scanQueueRows(rows)
}

// CountByStatus returns item counts per status for one job
func (s *QueueStorage) CountByStatus(ctx context.Context, jobID string) (map[models.QueueStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM crawl_queue WHERE job_id = ? GROUP BY status`

	rows, err := s.db.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to count queue items: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.QueueStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[models.QueueStatus(status)] = count
	}

	return counts, rows.Err()
}

// CountReady returns the number of immediately claimable items for a job
func (s *QueueStorage) CountReady(ctx context.Context, jobID string, now time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM crawl_queue
		WHERE job_id = ? AND status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
	`
	var count int
	err := s.db.db.QueryRowContext(ctx, query, jobID, string(models.QueueStatusPending), now.Unix()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count ready items: %w", err)
	}
	return count, nil
}

// StaleSubmitted returns submitted items older than the cutoff. The sweeper
// recycles these after fetcher callbacks are presumed lost.
func (s *QueueStorage) StaleSubmitted(ctx context.Context, olderThan time.Time) ([]*models.QueueItem, error) {
	query := `
		SELECT ` + queueColumns + `
		FROM crawl_queue
		WHERE status = ? AND submitted_at IS NOT NULL AND submitted_at <= ?
		ORDER BY submitted_at ASC
	`

	rows, err := s.db.db.QueryContext(ctx, query, string(models.QueueStatusSubmitted), olderThan.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to list stale submitted items: %w", err)
	}
	defer rows.Close()

	return scanQueueRows(rows)
}

// JobsWithReadyItems returns distinct job IDs having at least one claimable
// item, used to re-arm schedulers after a restart.
func (s *QueueStorage) JobsWithReadyItems(ctx context.Context, now time.Time) ([]string, error) {
	query := `
		SELECT DISTINCT job_id FROM crawl_queue
		WHERE status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
	`

	rows, err := s.db.db.QueryContext(ctx, query, string(models.QueueStatusPending), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs with ready items: %w", err)
	}
	defer rows.Close()

	var jobIDs []string
	for rows.Next() {
		var jobID string
		if err := rows.Scan(&jobID); err != nil {
			return nil, fmt.Errorf("failed to scan job id: %w", err)
		}
		jobIDs = append(jobIDs, jobID)
	}

	return jobIDs, rows.Err()
}

// DeleteByJob removes all queue items owned by a job
func (s *QueueStorage) DeleteByJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.db.ExecContext(ctx, "DELETE FROM crawl_queue WHERE job_id = ?", jobID)
	if err != nil {
		return fmt.Errorf("failed to delete queue items: %w", err)
	}
	return nil
}

// scanQueueRow scans one crawl_queue row through the given scan function
func scanQueueRow(scan func(dest ...interface{}) error) (*models.QueueItem, error) {
	var (
		id, jobID, url, urlType, status       string
		keyword, errorMessage                 sql.NullString
		priority, retryCount                  int
		nextAttemptAt, submittedAt, completed sql.NullInt64
		createdAt                             int64
	)

	err := scan(&id, &jobID, &url, &urlType, &keyword, &priority, &status, &retryCount,
		&nextAttemptAt, &createdAt, &submittedAt, &completed, &errorMessage)
	if err != nil {
		return nil, err
	}

	item := &models.QueueItem{
		ID:         id,
		JobID:      jobID,
		URL:        url,
		URLType:    models.URLType(urlType),
		Priority:   priority,
		Status:     models.QueueStatus(status),
		RetryCount: retryCount,
		CreatedAt:  unixToTime(createdAt),
	}

	if keyword.Valid {
		item.Keyword = keyword.String
	}
	if errorMessage.Valid {
		item.ErrorMessage = errorMessage.String
	}
	if nextAttemptAt.Valid {
		t := unixToTime(nextAttemptAt.Int64)
		item.NextAttemptAt = &t
	}
	if submittedAt.Valid {
		t := unixToTime(submittedAt.Int64)
		item.SubmittedAt = &t
	}
	if completed.Valid {
		t := unixToTime(completed.Int64)
		item.CompletedAt = &t
	}

	return item, nil
}

// scanQueueRows scans all rows into a slice
func scanQueueRows(rows *sql.Rows) ([]*models.QueueItem, error) {
	var items []*models.QueueItem
	for rows.Next() {
		item, err := scanQueueRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
