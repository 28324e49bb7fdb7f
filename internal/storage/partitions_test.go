package storage_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubikal7/ski-jumping-management/internal/model"
	"github.com/kubikal7/ski-jumping-management/internal/storage"
)

func TestPartitionName(t *testing.T) {
	assert.Equal(t, "results_2024_2025", storage.PartitionName(storage.TableResults, "2024/2025"))
	assert.Equal(t, "event_participants_1999_2000", storage.PartitionName(storage.TableParticipants, "1999/2000"))
}

func TestEnsurePartitionIdempotent(t *testing.T) {
	ctx := context.Background()

	exists, err := testDB.PartitionExists(ctx, storage.TableResults, "2001/2002")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, testDB.EnsurePartition(ctx, storage.TableResults, "2001/2002"))
	require.NoError(t, testDB.EnsurePartition(ctx, storage.TableResults, "2001/2002"))

	exists, err = testDB.PartitionExists(ctx, storage.TableResults, "2001/2002")
	require.NoError(t, err)
	assert.True(t, exists)

	seasons, err := testDB.ListPartitions(ctx, storage.TableResults)
	require.NoError(t, err)
	assert.Contains(t, seasons, "2001/2002")
}

func TestEnsurePartitionConcurrent(t *testing.T) {
	ctx := context.Background()
	const workers = 8

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = testDB.EnsurePartition(ctx, storage.TableParticipants, "2002/2003")
		}()
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "worker %d", i)
	}
	exists, err := testDB.PartitionExists(ctx, storage.TableParticipants, "2002/2003")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestEnsurePartitionRejectsBadInput(t *testing.T) {
	ctx := context.Background()

	assert.Error(t, testDB.EnsurePartition(ctx, storage.TableResults, "2024/2026"))
	assert.Error(t, testDB.EnsurePartition(ctx, storage.TableResults, "2024/2025'); DROP TABLE results; --"))
	assert.Error(t, testDB.EnsurePartition(ctx, "users", "2024/2025"))
}

func TestWriteWithoutPartitionFails(t *testing.T) {
	ctx := context.Background()
	hill := createHill(t, 100)
	athlete := createAthlete(t)
	e := createEvent(t, hill.ID, time.Date(1990, time.June, 1, 10, 0, 0, 0, time.UTC), 1)

	_, err := testDB.CreateResult(ctx, model.Result{
		EventID: e.ID, AthleteID: athlete.ID, Season: "1990/1991", JumpLength: ptr(90.0),
	})
	require.Error(t, err)
	assert.True(t, storage.IsNoPartition(err), "expected no-partition error, got %v", err)
}

func TestRowsLandInSeasonPartition(t *testing.T) {
	ctx := context.Background()
	hill := createHill(t, 120)
	athlete := createAthlete(t)
	e := createEvent(t, hill.ID, time.Date(2003, time.December, 20, 12, 0, 0, 0, time.UTC), 2)

	r := recordJump(t, e, athlete.ID, 110)
	assert.Equal(t, "2003/2004", r.Season)

	var n int
	err := testDB.Pool().QueryRow(ctx, `SELECT count(*) FROM results_2003_2004 WHERE id = $1`, r.ID).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
