package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubikal7/ski-jumping-management/internal/model"
	"github.com/kubikal7/ski-jumping-management/internal/storage"
)

func TestFetchPerformanceRecordsInWindow(t *testing.T) {
	ctx := context.Background()
	hill := createHill(t, 134)
	a := createAthlete(t)
	b := createAthlete(t)

	inside := createEvent(t, hill.ID, time.Date(2011, time.February, 10, 12, 0, 0, 0, time.UTC), 4)
	before := createEvent(t, hill.ID, time.Date(2010, time.December, 1, 12, 0, 0, 0, time.UTC), 4)
	recordJump(t, inside, a.ID, 130)
	recordJump(t, inside, b.ID, 125)
	recordJump(t, before, a.ID, 140)

	// A result without a jump length is not a performance record.
	_, err := testDB.CreateResult(ctx, model.Result{EventID: inside.ID, AthleteID: b.ID, Season: "2010/2011"})
	require.NoError(t, err)

	start := time.Date(2011, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2011, time.March, 1, 0, 0, 0, 0, time.UTC)
	recs, err := testDB.FetchPerformanceRecordsInWindow(ctx, start, end)
	require.NoError(t, err)

	mine := filterRecords(recs, inside.ID, before.ID)
	require.Len(t, mine, 2)
	for _, r := range mine {
		assert.Equal(t, inside.ID, r.EventID)
		assert.Equal(t, 134.0, r.HillSize)
		assert.Equal(t, 4, r.Level)
		assert.Equal(t, "2010/2011", r.Season)
	}
}

func TestFetchPerformanceRecordsSpansSeasons(t *testing.T) {
	ctx := context.Background()
	hill := createHill(t, 95)
	a := createAthlete(t)

	spring := createEvent(t, hill.ID, time.Date(2015, time.April, 20, 12, 0, 0, 0, time.UTC), 1)
	summer := createEvent(t, hill.ID, time.Date(2015, time.July, 20, 12, 0, 0, 0, time.UTC), 1)
	recordJump(t, spring, a.ID, 90)
	recordJump(t, summer, a.ID, 93)

	recs, err := testDB.FetchPerformanceRecordsInWindow(ctx,
		time.Date(2015, time.April, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2015, time.August, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, filterRecords(recs, spring.ID, summer.ID), 2)
}

func TestListResultsRequiresEventOrAthlete(t *testing.T) {
	ctx := context.Background()
	got, total, err := testDB.ListResults(ctx, model.ResultFilter{MinJumpLength: ptr(0.0)}, model.Page{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, total)
}

func TestListResultsFilters(t *testing.T) {
	ctx := context.Background()
	hill := createHill(t, 140)
	a := createAthlete(t)
	e := createEvent(t, hill.ID, time.Date(2016, time.January, 5, 12, 0, 0, 0, time.UTC), 3)
	recordJump(t, e, a.ID, 120)
	recordJump(t, e, a.ID, 139.5)

	got, total, err := testDB.ListResults(ctx, model.ResultFilter{
		EventID:       &e.ID,
		MinJumpLength: ptr(130.0),
	}, model.Page{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, got, 1)
	assert.Equal(t, 139.5, *got[0].JumpLength)
}

func TestUpdateResultMovesPartition(t *testing.T) {
	ctx := context.Background()
	hill := createHill(t, 100)
	a := createAthlete(t)
	e := createEvent(t, hill.ID, time.Date(2017, time.June, 5, 12, 0, 0, 0, time.UTC), 1)
	r := recordJump(t, e, a.ID, 99)

	require.NoError(t, testDB.EnsurePartition(ctx, storage.TableResults, "2018/2019"))
	r.Season = "2018/2019"
	_, err := testDB.UpdateResult(ctx, r)
	require.NoError(t, err)

	var n int
	require.NoError(t, testDB.Pool().QueryRow(ctx, `SELECT count(*) FROM results_2018_2019 WHERE id = $1`, r.ID).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestDeleteResultNotFound(t *testing.T) {
	err := testDB.DeleteResult(context.Background(), -1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func filterRecords(recs []model.PerformanceRecord, events ...int64) []model.PerformanceRecord {
	var out []model.PerformanceRecord
	for _, r := range recs {
		for _, id := range events {
			if r.EventID == id {
				out = append(out, r)
			}
		}
	}
	return out
}
