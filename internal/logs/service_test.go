package logs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/phuslu/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	arbormodels "github.com/ternarybob/arbor/models"
	"github.com/ternarybob/trawler/internal/common"
	"github.com/ternarybob/trawler/internal/models"
)

// memoryLogStorage collects writes in memory for assertions
type memoryLogStorage struct {
	mu      sync.Mutex
	entries map[string][]models.JobLogEntry
}

func newMemoryLogStorage() *memoryLogStorage {
	return &memoryLogStorage{entries: make(map[string][]models.JobLogEntry)}
}

func (m *memoryLogStorage) AppendLog(ctx context.Context, jobID string, entry models.JobLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[jobID] = append(m.entries[jobID], entry)
	return nil
}

func (m *memoryLogStorage) AppendLogs(ctx context.Context, jobID string, entries []models.JobLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[jobID] = append(m.entries[jobID], entries...)
	return nil
}

func (m *memoryLogStorage) GetLogs(ctx context.Context, jobID string, limit int) ([]models.JobLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.JobLogEntry(nil), m.entries[jobID]...), nil
}

func (m *memoryLogStorage) GetLogsSince(ctx context.Context, jobID string, offset int, limit int) ([]models.JobLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	logs := m.entries[jobID]
	if offset >= len(logs) {
		return nil, nil
	}
	logs = logs[offset:]
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return append([]models.JobLogEntry(nil), logs...), nil
}

func (m *memoryLogStorage) GetLogsByLevel(ctx context.Context, jobID string, level string, limit int) ([]models.JobLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.JobLogEntry
	for _, e := range m.entries[jobID] {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryLogStorage) CountLogs(ctx context.Context, jobID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries[jobID]), nil
}

func (m *memoryLogStorage) DeleteLogs(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, jobID)
	return nil
}

func (m *memoryLogStorage) count(jobID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries[jobID])
}

func TestService_AppendLog_FlushedOnStop(t *testing.T) {
	storage := newMemoryLogStorage()
	svc := NewService(storage, common.GetLogger())
	require.NoError(t, svc.Start())

	svc.AppendLog(context.Background(), "job1", models.JobLogEntry{Message: "first"})
	svc.AppendLog(context.Background(), "job1", models.JobLogEntry{Message: "second"})
	svc.AppendLog(context.Background(), "job2", models.JobLogEntry{Message: "other job"})

	require.NoError(t, svc.Stop())

	assert.Equal(t, 2, storage.count("job1"))
	assert.Equal(t, 1, storage.count("job2"))
}

func TestService_AppendLog_DefaultsLevelAndTimestamps(t *testing.T) {
	storage := newMemoryLogStorage()
	svc := NewService(storage, common.GetLogger())
	require.NoError(t, svc.Start())

	svc.AppendLog(context.Background(), "job1", models.JobLogEntry{Message: "bare entry"})
	require.NoError(t, svc.Stop())

	logs, err := storage.GetLogs(context.Background(), "job1", 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "INF", logs[0].Level)
	assert.NotEmpty(t, logs[0].Timestamp)
	assert.NotEmpty(t, logs[0].FullTimestamp)
}

func TestService_GetLogsByLevel_NormalizesLevelName(t *testing.T) {
	storage := newMemoryLogStorage()
	storage.AppendLog(context.Background(), "job1", models.JobLogEntry{Level: "WRN", Message: "warned"})
	storage.AppendLog(context.Background(), "job1", models.JobLogEntry{Level: "INF", Message: "informed"})

	svc := NewService(storage, common.GetLogger())

	logs, err := svc.GetLogsByLevel(context.Background(), "job1", "warn", 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "warned", logs[0].Message)
}

func TestConsumer_ProcessBatch_GroupsByCorrelationID(t *testing.T) {
	storage := newMemoryLogStorage()
	consumer := NewConsumer(storage, common.GetLogger(), "info")
	require.NoError(t, consumer.Start())
	defer consumer.Stop()

	now := time.Now()
	consumer.GetChannel() <- []arbormodels.LogEvent{
		{Timestamp: now, Level: log.InfoLevel, Message: "job a line", CorrelationID: "jobA"},
		{Timestamp: now, Level: log.WarnLevel, Message: "job b line", CorrelationID: "jobB"},
		{Timestamp: now, Level: log.InfoLevel, Message: "no correlation"},
		{Timestamp: now, Level: log.InfoLevel, Message: "HTTP request", CorrelationID: "jobA"},
	}

	require.Eventually(t, func() bool {
		return storage.count("jobA") == 1 && storage.count("jobB") == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, storage.count(""))

	logs, err := storage.GetLogs(context.Background(), "jobA", 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "job a line", logs[0].Message)
	assert.Equal(t, "INF", logs[0].Level)
}

func TestConsumer_Stream_ForwardsAboveThreshold(t *testing.T) {
	storage := newMemoryLogStorage()
	consumer := NewConsumer(storage, common.GetLogger(), "warn")

	var mu sync.Mutex
	var streamed []models.JobLogEntry
	consumer.SetStream(func(jobID string, entry models.JobLogEntry) {
		mu.Lock()
		defer mu.Unlock()
		streamed = append(streamed, entry)
	})

	require.NoError(t, consumer.Start())
	defer consumer.Stop()

	now := time.Now()
	consumer.GetChannel() <- []arbormodels.LogEvent{
		{Timestamp: now, Level: log.DebugLevel, Message: "too quiet", CorrelationID: "jobA"},
		{Timestamp: now, Level: log.ErrorLevel, Message: "loud enough", CorrelationID: "jobA"},
	}

	require.Eventually(t, func() bool {
		return storage.count("jobA") == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, streamed, 1)
	assert.Equal(t, "loud enough", streamed[0].Message)
	assert.Equal(t, "ERR", streamed[0].Level)
}

func TestConvertTo3Letter(t *testing.T) {
	assert.Equal(t, "INF", convertTo3Letter("info"))
	assert.Equal(t, "WRN", convertTo3Letter("WARNING"))
	assert.Equal(t, "ERR", convertTo3Letter("error"))
	assert.Equal(t, "DBG", convertTo3Letter("debug"))
	assert.Equal(t, "TRC", convertTo3Letter("trc"))
	assert.Equal(t, "INF", convertTo3Letter("unknown"))
}
