package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/trawler/internal/interfaces"
	"github.com/ternarybob/trawler/internal/models"
)

func testJob(id string, status models.JobStatus) *models.CrawlJob {
	return &models.CrawlJob{
		ID:     id,
		Status: status,
		Config: models.CrawlConfig{
			Keywords: []string{"wireless dog fence"},
			PriceMin: 10,
			PriceMax: 80,
		},
		CreatedAt: time.Now(),
	}
}

func TestJobStorage_SaveAndGet(t *testing.T) {
	db, cleanup := setupStoreTest(t)
	defer cleanup()

	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	job := testJob("job-a", models.JobStatusPending)
	require.NoError(t, storage.SaveJob(ctx, job))

	got, err := storage.GetJob(ctx, "job-a")
	require.NoError(t, err)
	assert.Equal(t, "job-a", got.ID)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.Equal(t, []string{"wireless dog fence"}, got.Config.Keywords)
	assert.Equal(t, 10.0, got.Config.PriceMin)
	assert.Equal(t, 80.0, got.Config.PriceMax)
	assert.Equal(t, models.CrawlProgress{}, got.Progress)
	assert.True(t, got.StartedAt.IsZero())
	assert.True(t, got.CompletedAt.IsZero())

	_, err = storage.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestJobStorage_SaveJobUpsertsKeepingCreatedAt(t *testing.T) {
	db, cleanup := setupStoreTest(t)
	defer cleanup()

	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	job := testJob("job-a", models.JobStatusPending)
	created := job.CreatedAt
	require.NoError(t, storage.SaveJob(ctx, job))

	// A second save updates status and progress but never the creation stamp
	job.Status = models.JobStatusRunning
	job.Progress.SearchURLsSubmitted = 3
	job.CreatedAt = created.Add(time.Hour)
	require.NoError(t, storage.SaveJob(ctx, job))

	got, err := storage.GetJob(ctx, "job-a")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, got.Status)
	assert.Equal(t, 3, got.Progress.SearchURLsSubmitted)
	assert.Equal(t, created.Unix(), got.CreatedAt.Unix())
}

func TestJobStorage_UpdateStatusStampsTimestamps(t *testing.T) {
	db, cleanup := setupStoreTest(t)
	defer cleanup()

	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.SaveJob(ctx, testJob("job-a", models.JobStatusPending)))

	require.NoError(t, storage.UpdateStatus(ctx, "job-a", models.JobStatusRunning, ""))
	got, err := storage.GetJob(ctx, "job-a")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, got.Status)
	assert.False(t, got.StartedAt.IsZero())
	assert.True(t, got.CompletedAt.IsZero())

	require.NoError(t, storage.UpdateStatus(ctx, "job-a", models.JobStatusCompleted, ""))
	got, err = storage.GetJob(ctx, "job-a")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.False(t, got.CompletedAt.IsZero())
}

func TestJobStorage_UpdateStatusTerminalGuard(t *testing.T) {
	db, cleanup := setupStoreTest(t)
	defer cleanup()

	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.SaveJob(ctx, testJob("job-a", models.JobStatusRunning)))
	require.NoError(t, storage.UpdateStatus(ctx, "job-a", models.JobStatusCancelled, ""))

	// A completion check racing the cancel must not flip the job back
	err := storage.UpdateStatus(ctx, "job-a", models.JobStatusCompleted, "")
	assert.ErrorIs(t, err, interfaces.ErrStateConflict)

	got, err := storage.GetJob(ctx, "job-a")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, got.Status)

	err = storage.UpdateStatus(ctx, "missing", models.JobStatusRunning, "")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestJobStorage_UpdateProgressAccumulates(t *testing.T) {
	db, cleanup := setupStoreTest(t)
	defer cleanup()

	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.SaveJob(ctx, testJob("job-a", models.JobStatusRunning)))

	err := storage.UpdateProgress(ctx, "job-a", func(p *models.CrawlProgress) {
		p.ProductsScored++
		p.ProductsPassedScoring++
	})
	require.NoError(t, err)

	err = storage.UpdateProgress(ctx, "job-a", func(p *models.CrawlProgress) {
		p.ProductsScored++
		p.Errors++
	})
	require.NoError(t, err)

	got, err := storage.GetJob(ctx, "job-a")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Progress.ProductsScored)
	assert.Equal(t, 1, got.Progress.ProductsPassedScoring)
	assert.Equal(t, 1, got.Progress.Errors)

	err = storage.UpdateProgress(ctx, "missing", func(p *models.CrawlProgress) { p.Errors++ })
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestJobStorage_ListJobsNewestFirst(t *testing.T) {
	db, cleanup := setupStoreTest(t)
	defer cleanup()

	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	older := testJob("job-old", models.JobStatusCompleted)
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := testJob("job-new", models.JobStatusRunning)

	require.NoError(t, storage.SaveJob(ctx, older))
	require.NoError(t, storage.SaveJob(ctx, newer))

	jobs, err := storage.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-new", jobs[0].ID)
	assert.Equal(t, "job-old", jobs[1].ID)
}

func TestJobStorage_DeleteAndCount(t *testing.T) {
	db, cleanup := setupStoreTest(t)
	defer cleanup()

	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	count, err := storage.CountJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.NoError(t, storage.SaveJob(ctx, testJob("job-a", models.JobStatusPending)))

	count, err = storage.CountJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, storage.DeleteJob(ctx, "job-a"))

	count, err = storage.CountJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
