package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/trawler/internal/models"
)

func testLogEntry(at time.Time, level, msg string) models.JobLogEntry {
	return models.JobLogEntry{
		Timestamp:     at.Format("15:04:05.000"),
		FullTimestamp: at.Format(time.RFC3339Nano),
		Level:         level,
		Message:       msg,
	}
}

func TestJobLogStorage_AppendAndGet(t *testing.T) {
	db, cleanup := setupBadgerTest(t)
	defer cleanup()

	storage := NewJobLogStorage(db, arbor.NewLogger())
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	entries := []models.JobLogEntry{
		testLogEntry(base, "INF", "Queued search: toaster"),
		testLogEntry(base.Add(time.Second), "INF", "Submitted search: toaster"),
		testLogEntry(base.Add(2*time.Second), "INF", "Received: https://catalog.test/search?q=toaster"),
	}
	require.NoError(t, storage.AppendLogs(ctx, "job-a", entries))

	count, err := storage.CountLogs(ctx, "job-a")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Newest first with a limit
	logs, err := storage.GetLogs(ctx, "job-a", 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Contains(t, logs[0].Message, "Received")
	assert.Contains(t, logs[1].Message, "Submitted")

	// Incremental polling picks up from the offset in write order
	logs, err = storage.GetLogsSince(ctx, "job-a", 1, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Contains(t, logs[0].Message, "Submitted")
	assert.Contains(t, logs[1].Message, "Received")

	// Other jobs never bleed through
	count, err = storage.CountLogs(ctx, "job-b")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestJobLogStorage_FilterByLevel(t *testing.T) {
	db, cleanup := setupBadgerTest(t)
	defer cleanup()

	storage := NewJobLogStorage(db, arbor.NewLogger())
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	require.NoError(t, storage.AppendLog(ctx, "job-a", testLogEntry(base, "INF", "Queued search: toaster")))
	require.NoError(t, storage.AppendLog(ctx, "job-a", testLogEntry(base.Add(time.Second), "WRN", "Retry 1/3 for https://catalog.test/p/1 in 15m0s: fetch returned no content")))
	require.NoError(t, storage.AppendLog(ctx, "job-a", testLogEntry(base.Add(2*time.Second), "ERR", "Giving up on https://catalog.test/p/2 after 3 retries: no content")))

	logs, err := storage.GetLogsByLevel(ctx, "job-a", "WRN", 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0].Message, "Retry 1/3")
}

func TestJobLogStorage_DeleteLogs(t *testing.T) {
	db, cleanup := setupBadgerTest(t)
	defer cleanup()

	storage := NewJobLogStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.AppendLog(ctx, "job-a", testLogEntry(time.Now(), "INF", "Crawl completed: 4 URLs processed, 0 failed")))
	require.NoError(t, storage.DeleteLogs(ctx, "job-a"))

	count, err := storage.CountLogs(ctx, "job-a")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
