package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kubikal7/ski-jumping-management/internal/model"
	"github.com/kubikal7/ski-jumping-management/internal/season"
)

const resultColumns = `r.id, r.event_id, r.athlete_id, r.season, r.attempt_number, r.jump_length, r.style_points,
	r.wind_compensation, r.gate, r.total_points, r.coach_comment, r.video_url, r.speed_takeoff,
	r.flight_time, r.created_at`

func scanResult(row pgx.Row) (model.Result, error) {
	var (
		r             model.Result
		attempt, gate *int16
	)
	err := row.Scan(
		&r.ID, &r.EventID, &r.AthleteID, &r.Season, &attempt, &r.JumpLength, &r.StylePoints,
		&r.WindCompensation, &gate, &r.TotalPoints, &r.CoachComment, &r.VideoURL, &r.SpeedTakeoff,
		&r.FlightTime, &r.CreatedAt,
	)
	r.AttemptNumber = widen(attempt)
	r.Gate = widen(gate)
	return r, err
}

func widen(v *int16) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

// CreateResult inserts a result. The season partition must already exist:
// without it Postgres rejects the row (see IsNoPartition).
func (db *DB) CreateResult(ctx context.Context, r model.Result) (model.Result, error) {
	err := db.pool.QueryRow(ctx,
		`INSERT INTO results (event_id, athlete_id, season, attempt_number, jump_length, style_points,
			wind_compensation, gate, total_points, coach_comment, video_url, speed_takeoff, flight_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING id, created_at`,
		r.EventID, r.AthleteID, r.Season, r.AttemptNumber, r.JumpLength, r.StylePoints,
		r.WindCompensation, r.Gate, r.TotalPoints, r.CoachComment, r.VideoURL, r.SpeedTakeoff, r.FlightTime,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return model.Result{}, fmt.Errorf("storage: create result: %w", err)
	}
	return r, nil
}

// UpdateResult overwrites a result. A changed season moves the row to the
// matching partition, which must already exist.
func (db *DB) UpdateResult(ctx context.Context, r model.Result) (model.Result, error) {
	err := db.pool.QueryRow(ctx,
		`UPDATE results SET event_id = $2, athlete_id = $3, season = $4, attempt_number = $5,
			jump_length = $6, style_points = $7, wind_compensation = $8, gate = $9, total_points = $10,
			coach_comment = $11, video_url = $12, speed_takeoff = $13, flight_time = $14
		 WHERE id = $1
		 RETURNING created_at`,
		r.ID, r.EventID, r.AthleteID, r.Season, r.AttemptNumber, r.JumpLength, r.StylePoints,
		r.WindCompensation, r.Gate, r.TotalPoints, r.CoachComment, r.VideoURL, r.SpeedTakeoff, r.FlightTime,
	).Scan(&r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Result{}, fmt.Errorf("storage: result %d: %w", r.ID, ErrNotFound)
		}
		return model.Result{}, fmt.Errorf("storage: update result: %w", err)
	}
	return r, nil
}

// GetResult returns a result by ID.
func (db *DB) GetResult(ctx context.Context, id int64) (model.Result, error) {
	r, err := scanResult(db.pool.QueryRow(ctx, `SELECT `+resultColumns+` FROM results r WHERE r.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Result{}, fmt.Errorf("storage: result %d: %w", id, ErrNotFound)
		}
		return model.Result{}, fmt.Errorf("storage: get result: %w", err)
	}
	return r, nil
}

// DeleteResult removes a result.
func (db *DB) DeleteResult(ctx context.Context, id int64) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM results WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storage: delete result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: result %d: %w", id, ErrNotFound)
	}
	return nil
}

func buildResultWhereClause(f model.ResultFilter) *whereBuilder {
	w := &whereBuilder{}
	w.addIf(f.EventID != nil, "r.event_id = $%d", f.EventID)
	w.addIf(len(f.AthleteIDs) > 0, "r.athlete_id = ANY($%d)", f.AthleteIDs)
	w.addIf(len(f.Seasons) > 0, "r.season = ANY($%d)", f.Seasons)
	w.addIf(f.AttemptNumber != nil, "r.attempt_number = $%d", f.AttemptNumber)
	w.addIf(f.MinJumpLength != nil, "r.jump_length >= $%d", f.MinJumpLength)
	w.addIf(f.MaxJumpLength != nil, "r.jump_length <= $%d", f.MaxJumpLength)
	w.addIf(f.MinStylePoints != nil, "r.style_points >= $%d", f.MinStylePoints)
	w.addIf(f.MaxStylePoints != nil, "r.style_points <= $%d", f.MaxStylePoints)
	w.addIf(f.MinWind != nil, "r.wind_compensation >= $%d", f.MinWind)
	w.addIf(f.MaxWind != nil, "r.wind_compensation <= $%d", f.MaxWind)
	w.addIf(f.Gate != nil, "r.gate = $%d", f.Gate)
	w.addIf(f.MinTotalPoints != nil, "r.total_points >= $%d", f.MinTotalPoints)
	w.addIf(f.MaxTotalPoints != nil, "r.total_points <= $%d", f.MaxTotalPoints)
	w.addIf(f.MinSpeedTakeoff != nil, "r.speed_takeoff >= $%d", f.MinSpeedTakeoff)
	w.addIf(f.MaxSpeedTakeoff != nil, "r.speed_takeoff <= $%d", f.MaxSpeedTakeoff)
	w.addIf(f.MinFlightTime != nil, "r.flight_time >= $%d", f.MinFlightTime)
	w.addIf(f.MaxFlightTime != nil, "r.flight_time <= $%d", f.MaxFlightTime)
	w.addIf(f.EventStartFrom != nil, "e.start_date >= $%d", f.EventStartFrom)
	w.addIf(f.EventStartTo != nil, "e.start_date <= $%d", f.EventStartTo)
	return w
}

// ListResults returns a page of results matching f. A filter naming neither
// an event nor athletes matches nothing.
func (db *DB) ListResults(ctx context.Context, f model.ResultFilter, p model.Page) ([]model.Result, int, error) {
	if f.Empty() {
		return []model.Result{}, 0, nil
	}
	w := buildResultWhereClause(f)
	from := ` FROM results r JOIN events e ON e.id = r.event_id`

	var total int
	if err := db.pool.QueryRow(ctx, `SELECT count(*)`+from+w.clause(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count results: %w", err)
	}
	query := `SELECT ` + resultColumns + from + w.clause() +
		` ORDER BY e.start_date DESC, r.event_id, r.attempt_number NULLS LAST, r.id` + w.page(p)
	rows, err := db.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list results: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (model.Result, error) { return scanResult(r) })
	if err != nil {
		return nil, 0, fmt.Errorf("storage: scan results: %w", err)
	}
	return results, total, nil
}

// FetchPerformanceRecordsInWindow returns every result with a jump length
// whose event started within [start, end], joined with the event level and
// hill size. No athlete or event filter is applied. The season predicate lets
// the planner skip partitions outside the window.
func (db *DB) FetchPerformanceRecordsInWindow(ctx context.Context, start, end time.Time) ([]model.PerformanceRecord, error) {
	seasons := season.Span(start.UTC(), end.UTC())
	if len(seasons) == 0 {
		return nil, nil
	}
	rows, err := db.pool.Query(ctx,
		`SELECT r.athlete_id, r.event_id, e.start_date, h.hill_size, r.jump_length, e.level, r.season
		 FROM results r
		 JOIN events e ON e.id = r.event_id
		 JOIN hills h ON h.id = e.hill_id
		 WHERE r.season = ANY($3)
		   AND e.start_date >= $1 AND e.start_date <= $2
		   AND r.jump_length IS NOT NULL
		 ORDER BY r.athlete_id, e.start_date`,
		start, end, seasons)
	if err != nil {
		return nil, fmt.Errorf("storage: fetch performance records: %w", err)
	}
	defer rows.Close()

	var records []model.PerformanceRecord
	for rows.Next() {
		var (
			rec   model.PerformanceRecord
			level int16
		)
		if err := rows.Scan(&rec.AthleteID, &rec.EventID, &rec.EventStartDate, &rec.HillSize,
			&rec.JumpLength, &level, &rec.Season); err != nil {
			return nil, fmt.Errorf("storage: scan performance record: %w", err)
		}
		rec.Level = int(level)
		records = append(records, rec)
	}
	return records, rows.Err()
}
