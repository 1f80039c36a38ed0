package logs

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/trawler/internal/interfaces"
	"github.com/ternarybob/trawler/internal/models"
)

const (
	flushInterval  = 500 * time.Millisecond
	flushBatchSize = 64
	writeBufferCap = 1024
)

type logWrite struct {
	jobID string
	entry models.JobLogEntry
}

// Service implements LogService. Appends are buffered and flushed to storage
// in the background; the write path never blocks on storage IO. A full buffer
// drops the entry with a warning rather than stalling the caller.
type Service struct {
	storage interfaces.JobLogStorage
	logger  arbor.ILogger
	writes  chan logWrite
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewService creates a new log service
func NewService(storage interfaces.JobLogStorage, logger arbor.ILogger) interfaces.LogService {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		storage: storage,
		logger:  logger,
		writes:  make(chan logWrite, writeBufferCap),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the background flusher
func (s *Service) Start() error {
	s.wg.Add(1)
	go s.flusher()
	return nil
}

// Stop flushes pending entries and shuts the flusher down
func (s *Service) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return nil
}

func (s *Service) flusher() {
	defer s.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	pending := make([]logWrite, 0, flushBatchSize)

	flush := func() {
		if len(pending) == 0 {
			return
		}
		byJob := make(map[string][]models.JobLogEntry)
		for _, w := range pending {
			byJob[w.jobID] = append(byJob[w.jobID], w.entry)
		}
		for jobID, entries := range byJob {
			if err := s.storage.AppendLogs(context.Background(), jobID, entries); err != nil {
				s.logger.Warn().
					Err(err).
					Str("job_id", jobID).
					Int("log_count", len(entries)).
					Msg("Failed to flush job logs")
			}
		}
		pending = pending[:0]
	}

	for {
		select {
		case w := <-s.writes:
			pending = append(pending, w)
			if len(pending) >= flushBatchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-s.ctx.Done():
			// Drain whatever is still buffered before exiting
			for {
				select {
				case w := <-s.writes:
					pending = append(pending, w)
				default:
					flush()
					return
				}
			}
		}
	}
}

// AppendLog buffers a single entry for background persistence
func (s *Service) AppendLog(ctx context.Context, jobID string, entry models.JobLogEntry) {
	if entry.FullTimestamp == "" {
		now := time.Now()
		entry.Timestamp = now.Format("15:04:05")
		entry.FullTimestamp = now.Format(time.RFC3339Nano)
	}
	if entry.Level == "" {
		entry.Level = "INF"
	}

	select {
	case s.writes <- logWrite{jobID: jobID, entry: entry}:
	default:
		s.logger.Warn().Str("job_id", jobID).Msg("Log buffer full, entry dropped")
	}
}

// AppendLogs buffers multiple entries for background persistence
func (s *Service) AppendLogs(ctx context.Context, jobID string, entries []models.JobLogEntry) {
	for _, entry := range entries {
		s.AppendLog(ctx, jobID, entry)
	}
}

// GetLogs retrieves log entries for a job, newest first
func (s *Service) GetLogs(ctx context.Context, jobID string, limit int) ([]models.JobLogEntry, error) {
	return s.storage.GetLogs(ctx, jobID, limit)
}

// GetLogsSince retrieves log entries in write order starting at offset
func (s *Service) GetLogsSince(ctx context.Context, jobID string, offset int, limit int) ([]models.JobLogEntry, error) {
	return s.storage.GetLogsSince(ctx, jobID, offset, limit)
}

// GetLogsByLevel retrieves log entries filtered by level
func (s *Service) GetLogsByLevel(ctx context.Context, jobID string, level string, limit int) ([]models.JobLogEntry, error) {
	return s.storage.GetLogsByLevel(ctx, jobID, convertTo3Letter(level), limit)
}

// CountLogs returns the number of log entries for a job
func (s *Service) CountLogs(ctx context.Context, jobID string) (int, error) {
	return s.storage.CountLogs(ctx, jobID)
}

// DeleteLogs deletes all log entries for a job
func (s *Service) DeleteLogs(ctx context.Context, jobID string) error {
	return s.storage.DeleteLogs(ctx, jobID)
}
