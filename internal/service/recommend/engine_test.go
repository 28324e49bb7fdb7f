package recommend_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubikal7/ski-jumping-management/internal/model"
	"github.com/kubikal7/ski-jumping-management/internal/service/recommend"
	"github.com/kubikal7/ski-jumping-management/internal/storage"
)

type fakeReader struct {
	events  map[int64]model.Event
	hills   map[int64]model.Hill
	records []model.PerformanceRecord
	err     error

	gotStart, gotEnd time.Time
	fetches          int
}

func (f *fakeReader) GetEventWithHill(_ context.Context, id int64) (model.Event, model.Hill, error) {
	e, ok := f.events[id]
	if !ok {
		return model.Event{}, model.Hill{}, fmt.Errorf("storage: event %d: %w", id, storage.ErrNotFound)
	}
	return e, f.hills[e.HillID], nil
}

func (f *fakeReader) FetchPerformanceRecordsInWindow(_ context.Context, start, end time.Time) ([]model.PerformanceRecord, error) {
	f.fetches++
	f.gotStart, f.gotEnd = start, end
	if f.err != nil {
		return nil, f.err
	}
	var out []model.PerformanceRecord
	for _, r := range f.records {
		if !r.EventStartDate.Before(start) && !r.EventStartDate.After(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

var now = time.Date(2025, time.February, 1, 9, 0, 0, 0, time.UTC)

func newReader() *fakeReader {
	return &fakeReader{
		events: map[int64]model.Event{
			10: {ID: 10, HillID: 1, StartDate: now.AddDate(0, 0, 5), EndDate: now.AddDate(0, 0, 6), Level: 3},
			11: {ID: 11, HillID: 1, StartDate: now.AddDate(0, 0, -10), EndDate: now.AddDate(0, 0, -9), Level: 3},
			12: {ID: 12, HillID: 1, StartDate: now.Add(-2 * time.Hour), EndDate: now.Add(2 * time.Hour), Level: 3},
		},
		hills: map[int64]model.Hill{1: {ID: 1, HillSize: 120}},
	}
}

func engine(r recommend.Reader) *recommend.Engine {
	return recommend.New(r, recommend.WithClock(func() time.Time { return now }))
}

func daysAgo(n int) *time.Time {
	t := now.AddDate(0, 0, -n)
	return &t
}

func TestRecommendValidationOrder(t *testing.T) {
	ctx := context.Background()
	e := engine(newReader())

	_, err := e.Recommend(ctx, recommend.Query{EventID: 999, Limit: 0})
	require.ErrorIs(t, err, model.ErrInvalidRequest)
	assert.Contains(t, err.Error(), "limit must be > 0")

	_, err = e.Recommend(ctx, recommend.Query{EventID: 999, Limit: -1, FromDate: daysAgo(5)})
	require.ErrorIs(t, err, model.ErrInvalidRequest)

	_, err = e.Recommend(ctx, recommend.Query{EventID: 999, Limit: 3})
	require.ErrorIs(t, err, model.ErrInvalidRequest)
	assert.Contains(t, err.Error(), "from_date")

	_, err = e.Recommend(ctx, recommend.Query{EventID: 999, Limit: 3, FromDate: daysAgo(5)})
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = e.Recommend(ctx, recommend.Query{EventID: 11, Limit: 3, FromDate: daysAgo(30)})
	require.ErrorIs(t, err, model.ErrInvalidRequest)
	assert.Contains(t, err.Error(), "cannot recommend for a past event")
}

func TestRecommendTopK(t *testing.T) {
	r := newReader()
	// Five athletes, identical except for jump length.
	for i, jump := range []float64{100, 118, 90, 125, 110} {
		r.records = append(r.records, model.PerformanceRecord{
			AthleteID: int64(i + 1), EventStartDate: now.AddDate(0, 0, -10), HillSize: 120, JumpLength: jump, Level: 2,
		})
	}

	got, err := engine(r).Recommend(context.Background(), recommend.Query{EventID: 10, Limit: 3, FromDate: daysAgo(30)})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{4, 2, 5}, []int64{got[0].AthleteID, got[1].AthleteID, got[2].AthleteID})
	assert.Greater(t, got[0].Score, got[1].Score)
	assert.Greater(t, got[1].Score, got[2].Score)
}

func TestRecommendEndToEndScore(t *testing.T) {
	r := newReader()
	r.records = []model.PerformanceRecord{
		{AthleteID: 7, EventStartDate: now.AddDate(0, 0, -10), HillSize: 120, JumpLength: 118, Level: 3},
	}
	got, err := engine(r).Recommend(context.Background(), recommend.Query{EventID: 10, Limit: 5, FromDate: daysAgo(30)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(7), got[0].AthleteID)
	assert.InDelta(t, 1.967, got[0].Score, 0.001)
	assert.Equal(t, 1, got[0].Records)
}

func TestRecommendWindow(t *testing.T) {
	r := newReader()
	from := time.Date(2025, time.January, 2, 17, 45, 0, 0, time.UTC)

	_, err := engine(r).Recommend(context.Background(), recommend.Query{EventID: 10, Limit: 1, FromDate: &from})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.January, 2, 0, 0, 0, 0, time.UTC), r.gotStart, "window starts at start of day")
	assert.Equal(t, now, r.gotEnd, "upcoming event clamps the window to now")
}

func TestRecommendInProgressEvent(t *testing.T) {
	r := newReader()
	got, err := engine(r).Recommend(context.Background(), recommend.Query{EventID: 12, Limit: 1, FromDate: daysAgo(3)})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, now, r.gotEnd)
}

func TestRecommendFromDateAfterWindow(t *testing.T) {
	r := newReader()
	future := now.AddDate(0, 0, 3)
	got, err := engine(r).Recommend(context.Background(), recommend.Query{EventID: 10, Limit: 1, FromDate: &future})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, r.fetches)
}

func TestRecommendTiesOrderedByAthleteID(t *testing.T) {
	r := newReader()
	for _, id := range []int64{9, 3, 5} {
		r.records = append(r.records, model.PerformanceRecord{
			AthleteID: id, EventStartDate: now.AddDate(0, 0, -1), HillSize: 120, JumpLength: 120, Level: 1,
		})
	}
	got, err := engine(r).Recommend(context.Background(), recommend.Query{EventID: 10, Limit: 3, FromDate: daysAgo(20)})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 5, 9}, []int64{got[0].AthleteID, got[1].AthleteID, got[2].AthleteID})
}

func TestRecommendStorageFault(t *testing.T) {
	r := newReader()
	r.err = errors.New("connection reset")
	_, err := engine(r).Recommend(context.Background(), recommend.Query{EventID: 10, Limit: 1, FromDate: daysAgo(20)})
	assert.ErrorIs(t, err, model.ErrStorageFault)
}

func TestRecommendCustomScorer(t *testing.T) {
	r := newReader()
	r.records = []model.PerformanceRecord{
		{AthleteID: 1, EventStartDate: now.AddDate(0, 0, -1), HillSize: 120, JumpLength: 130, Level: 1},
		{AthleteID: 2, EventStartDate: now.AddDate(0, 0, -1), HillSize: 120, JumpLength: 10, Level: 1},
	}
	inverse := recommend.ScorerFunc(func(recs []model.PerformanceRecord, _ float64, _, _ time.Time) float64 {
		return -recs[0].JumpLength
	})
	e := recommend.New(r, recommend.WithClock(func() time.Time { return now }), recommend.WithScorer(inverse))
	got, err := e.Recommend(context.Background(), recommend.Query{EventID: 10, Limit: 1, FromDate: daysAgo(5)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].AthleteID)
}

type fakeProfiles map[int64]model.User

func (f fakeProfiles) GetUsersByIDs(_ context.Context, ids []int64) (map[int64]model.User, error) {
	out := map[int64]model.User{}
	for _, id := range ids {
		if u, ok := f[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func TestHydrate(t *testing.T) {
	profiles := fakeProfiles{1: {ID: 1, Login: "a"}, 3: {ID: 3, Login: "c"}}
	got, err := recommend.Hydrate(context.Background(), profiles, []recommend.Ranked{
		{AthleteID: 3, Score: 2}, {AthleteID: 2, Score: 1.5}, {AthleteID: 1, Score: 1},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Rank)
	assert.Equal(t, "c", got[0].Athlete.Login)
	assert.Equal(t, 2, got[1].Rank)
	assert.Equal(t, "a", got[1].Athlete.Login)
}
