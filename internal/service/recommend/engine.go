// Package recommend proposes the athletes best suited to an upcoming event
// from their recent jumping history.
package recommend

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kubikal7/ski-jumping-management/internal/model"
	"github.com/kubikal7/ski-jumping-management/internal/storage"
	"github.com/kubikal7/ski-jumping-management/internal/telemetry"
)

// Reader is the read-only storage the engine consumes.
type Reader interface {
	GetEventWithHill(ctx context.Context, id int64) (model.Event, model.Hill, error)
	FetchPerformanceRecordsInWindow(ctx context.Context, start, end time.Time) ([]model.PerformanceRecord, error)
}

// Query asks for at most Limit athletes for EventID, looking back to FromDate.
type Query struct {
	EventID  int64
	Limit    int
	FromDate *time.Time
}

// Ranked is one recommended athlete.
type Ranked struct {
	AthleteID int64
	Score     float64
	Records   int
}

// Engine ranks athletes for an event. It holds no state between calls.
type Engine struct {
	reader Reader
	scorer Scorer
	now    func() time.Time
	logger *slog.Logger

	duration   metric.Float64Histogram
	candidates metric.Int64Histogram
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithScorer replaces DefaultScorer.
func WithScorer(s Scorer) Option {
	return func(e *Engine) { e.scorer = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine over reader.
func New(reader Reader, opts ...Option) *Engine {
	e := &Engine{
		reader: reader,
		scorer: DefaultScorer,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	meter := telemetry.Meter("skijump/recommend")
	e.duration, _ = meter.Float64Histogram("skijump.recommend.duration",
		metric.WithDescription("Time to compute a recommendation (ms)"),
		metric.WithUnit("ms"),
	)
	e.candidates, _ = meter.Int64Histogram("skijump.recommend.candidates",
		metric.WithDescription("Distinct athletes scored per recommendation"),
	)
	return e
}

// Recommend validates q, scores every athlete with history in the lookback
// window and returns the best q.Limit, highest score first. Equal scores are
// ordered by athlete ID.
//
// Validation order: limit, from date, event existence, event not concluded.
func (e *Engine) Recommend(ctx context.Context, q Query) ([]Ranked, error) {
	if q.Limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be > 0", model.ErrInvalidRequest)
	}
	if q.FromDate == nil {
		return nil, fmt.Errorf("%w: from_date is required", model.ErrInvalidRequest)
	}

	start := time.Now()
	event, hill, err := e.reader.GetEventWithHill(ctx, q.EventID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: event %d", model.ErrNotFound, q.EventID)
		}
		return nil, fmt.Errorf("%w: load event: %w", model.ErrStorageFault, err)
	}

	now := e.now()
	if event.Concluded(now) {
		return nil, fmt.Errorf("%w: cannot recommend for a past event", model.ErrInvalidRequest)
	}

	from := q.FromDate.UTC()
	windowStart := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	windowEnd := event.EndDate
	if now.Before(windowEnd) {
		windowEnd = now
	}
	if windowEnd.Before(windowStart) {
		return []Ranked{}, nil
	}

	records, err := e.reader.FetchPerformanceRecordsInWindow(ctx, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch performance records: %w", model.ErrStorageFault, err)
	}

	byAthlete := make(map[int64][]model.PerformanceRecord)
	for _, r := range records {
		byAthlete[r.AthleteID] = append(byAthlete[r.AthleteID], r)
	}

	ranked := make([]Ranked, 0, len(byAthlete))
	for id, recs := range byAthlete {
		ranked = append(ranked, Ranked{
			AthleteID: id,
			Score:     e.scorer.Score(recs, hill.HillSize, windowEnd, windowStart),
			Records:   len(recs),
		})
	}
	slices.SortFunc(ranked, func(a, b Ranked) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.AthleteID, b.AthleteID)
	})
	if len(ranked) > q.Limit {
		ranked = ranked[:q.Limit]
	}

	attrs := metric.WithAttributes(attribute.Int64("skijump.event_id", q.EventID))
	e.duration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	e.candidates.Record(ctx, int64(len(byAthlete)), attrs)
	e.logger.Debug("recommend: ranked athletes",
		"event_id", q.EventID, "window_start", windowStart, "window_end", windowEnd,
		"records", len(records), "candidates", len(byAthlete), "returned", len(ranked))
	return ranked, nil
}

// Profiles is the user lookup used by Hydrate.
type Profiles interface {
	GetUsersByIDs(ctx context.Context, ids []int64) (map[int64]model.User, error)
}

// Hydrate attaches user profiles to a ranking. Athletes deleted since the
// ranking was computed are skipped.
func Hydrate(ctx context.Context, profiles Profiles, ranked []Ranked) ([]model.RecommendedAthlete, error) {
	ids := make([]int64, len(ranked))
	for i, r := range ranked {
		ids[i] = r.AthleteID
	}
	users, err := profiles.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: load athletes: %w", model.ErrStorageFault, err)
	}
	out := make([]model.RecommendedAthlete, 0, len(ranked))
	for _, r := range ranked {
		u, ok := users[r.AthleteID]
		if !ok {
			continue
		}
		out = append(out, model.RecommendedAthlete{Rank: len(out) + 1, Athlete: u, Score: r.Score, Records: r.Records})
	}
	return out, nil
}
