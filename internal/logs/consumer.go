package logs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/phuslu/log"
	"github.com/ternarybob/arbor"
	arborlevels "github.com/ternarybob/arbor/levels"
	arbormodels "github.com/ternarybob/arbor/models"
	"github.com/ternarybob/trawler/internal/interfaces"
	"github.com/ternarybob/trawler/internal/models"
)

// StreamFunc receives a persisted log entry for live delivery. Implementations
// must not block; dropped frames are acceptable.
type StreamFunc func(jobID string, entry models.JobLogEntry)

// Consumer consumes log batches from arbor's context channel, groups them by
// correlation id and persists them as per-job log entries. Entries without a
// correlation id only go to the console and file writers.
type Consumer struct {
	storage        interfaces.JobLogStorage
	logger         arbor.ILogger
	channel        chan []arbormodels.LogEvent
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	stream         StreamFunc
	minStreamLevel arbor.LogLevel
	mu             sync.RWMutex
}

// NewConsumer creates a new log consumer
func NewConsumer(storage interfaces.JobLogStorage, logger arbor.ILogger, minStreamLevel string) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		storage:        storage,
		logger:         logger,
		channel:        make(chan []arbormodels.LogEvent, 10),
		ctx:            ctx,
		cancel:         cancel,
		minStreamLevel: parseLogLevel(minStreamLevel),
	}
}

// SetStream registers a live delivery tap. Entries at or above the configured
// minimum level are forwarded after the storage write is dispatched.
func (c *Consumer) SetStream(fn StreamFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stream = fn
}

// GetChannel returns the channel for arbor to send log batches to
func (c *Consumer) GetChannel() chan []arbormodels.LogEvent {
	return c.channel
}

// Start launches the consumer goroutine
func (c *Consumer) Start() error {
	c.wg.Add(1)
	go c.consume()
	return nil
}

// Stop gracefully shuts down the consumer
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.logger.Info().Msg("Log consumer stopped")
	return nil
}

func (c *Consumer) consume() {
	defer c.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			// Log without a correlation id so the panic report is not fed
			// back through this channel
			c.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Log consumer panic recovered")
		}
	}()

	for {
		select {
		case batch, ok := <-c.channel:
			if !ok {
				return
			}
			c.processBatch(batch)

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Consumer) processBatch(batch []arbormodels.LogEvent) {
	entriesByJob := make(map[string][]models.JobLogEntry)

	for _, event := range batch {
		// Request tracing logs carry correlation ids too but are not job logs
		if event.Message == "HTTP request" ||
			strings.Contains(event.Message, "WebSocket client") {
			continue
		}

		jobID := event.CorrelationID
		if jobID == "" {
			continue
		}

		entry := transformEvent(event)
		entriesByJob[jobID] = append(entriesByJob[jobID], entry)

		if c.shouldStream(event.Level) {
			c.mu.RLock()
			stream := c.stream
			c.mu.RUnlock()
			if stream != nil {
				stream(jobID, entry)
			}
		}
	}

	var wg sync.WaitGroup
	for jobID, entries := range entriesByJob {
		wg.Add(1)
		go func(jid string, logs []models.JobLogEntry) {
			defer wg.Done()
			if err := c.storage.AppendLogs(c.ctx, jid, logs); err != nil {
				// Warn without correlation id to avoid recursive persistence
				c.logger.Warn().
					Err(err).
					Str("job_id", jid).
					Int("log_count", len(logs)).
					Msg("Failed to write batch logs to storage")
			}
		}(jobID, entries)
	}
	wg.Wait()
}

func (c *Consumer) shouldStream(level log.Level) bool {
	return arborlevels.FromLogLevel(level) >= c.minStreamLevel
}

// transformEvent converts an arbor LogEvent to a JobLogEntry. Structured
// fields are flattened into the message as key=value pairs.
func transformEvent(event arbormodels.LogEvent) models.JobLogEntry {
	message := event.Message
	if len(event.Fields) > 0 {
		for key, value := range event.Fields {
			message += fmt.Sprintf(" %s=%v", key, value)
		}
	}

	return models.JobLogEntry{
		JobID:         event.CorrelationID,
		Timestamp:     event.Timestamp.Format("15:04:05"),
		FullTimestamp: event.Timestamp.Format(time.RFC3339Nano),
		Level:         convertTo3Letter(event.Level.String()),
		Message:       message,
	}
}
