package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kubikal7/ski-jumping-management/internal/model"
	"github.com/kubikal7/ski-jumping-management/internal/season"
)

const eventColumns = `e.id, e.name, e.type, e.hill_id, e.start_date, e.end_date, e.description, e.level,
	COALESCE((SELECT array_agg(a.team_id ORDER BY a.team_id) FROM event_allowed_teams a WHERE a.event_id = e.id), '{}')`

func scanEvent(row pgx.Row) (model.Event, error) {
	var (
		e     model.Event
		typ   string
		level int16
	)
	err := row.Scan(&e.ID, &e.Name, &typ, &e.HillID, &e.StartDate, &e.EndDate, &e.Description, &level, &e.AllowedTeamIDs)
	e.Type = model.EventType(typ)
	e.Level = int(level)
	return e, err
}

// CreateEvent inserts an event and its allowed teams.
func (db *DB) CreateEvent(ctx context.Context, e model.Event) (model.Event, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.Event{}, fmt.Errorf("storage: begin create event tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`INSERT INTO events (name, type, hill_id, start_date, end_date, description, level)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		e.Name, string(e.Type), e.HillID, e.StartDate, e.EndDate, e.Description, e.Level,
	).Scan(&e.ID)
	if err != nil {
		return model.Event{}, fmt.Errorf("storage: create event: %w", err)
	}
	if err := replaceEventTeams(ctx, tx, e.ID, e.AllowedTeamIDs); err != nil {
		return model.Event{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Event{}, fmt.Errorf("storage: commit create event tx: %w", err)
	}
	if e.AllowedTeamIDs == nil {
		e.AllowedTeamIDs = []int64{}
	}
	return e, nil
}

// UpdateEvent overwrites an event and its allowed teams. When the new start
// date falls in another season, the event's participants and results move to
// that season's partitions in the same transaction; those partitions must
// already exist.
func (db *DB) UpdateEvent(ctx context.Context, e model.Event) (model.Event, error) {
	err := db.retryTx(ctx, "update event", func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE events SET name = $2, type = $3, hill_id = $4, start_date = $5, end_date = $6,
				description = $7, level = $8
			 WHERE id = $1`,
			e.ID, e.Name, string(e.Type), e.HillID, e.StartDate, e.EndDate, e.Description, e.Level,
		)
		if err != nil {
			return fmt.Errorf("storage: update event: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("storage: event %d: %w", e.ID, ErrNotFound)
		}
		if err := replaceEventTeams(ctx, tx, e.ID, e.AllowedTeamIDs); err != nil {
			return err
		}
		return moveEventSeason(ctx, tx, e.ID, season.Key(e.StartDate.UTC()))
	})
	if err != nil {
		return model.Event{}, err
	}
	return db.GetEvent(ctx, e.ID)
}

func replaceEventTeams(ctx context.Context, tx pgx.Tx, eventID int64, teamIDs []int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM event_allowed_teams WHERE event_id = $1`, eventID); err != nil {
		return fmt.Errorf("storage: clear event teams: %w", err)
	}
	if len(teamIDs) == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO event_allowed_teams (event_id, team_id)
		 SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING`,
		eventID, teamIDs,
	); err != nil {
		return fmt.Errorf("storage: set event teams: %w", err)
	}
	return nil
}

// GetEvent returns an event by ID.
func (db *DB) GetEvent(ctx context.Context, id int64) (model.Event, error) {
	e, err := scanEvent(db.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events e WHERE e.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Event{}, fmt.Errorf("storage: event %d: %w", id, ErrNotFound)
		}
		return model.Event{}, fmt.Errorf("storage: get event: %w", err)
	}
	return e, nil
}

// GetEventWithHill returns an event together with the hill it is held on.
func (db *DB) GetEventWithHill(ctx context.Context, id int64) (model.Event, model.Hill, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+eventColumns+`, `+hillColumns+`
		 FROM events e JOIN hills h ON h.id = e.hill_id
		 WHERE e.id = $1`, id)
	var (
		e     model.Event
		h     model.Hill
		typ   string
		level int16
	)
	err := row.Scan(
		&e.ID, &e.Name, &typ, &e.HillID, &e.StartDate, &e.EndDate, &e.Description, &level, &e.AllowedTeamIDs,
		&h.ID, &h.Name, &h.City, &h.Country, &h.HillSize, &h.ConstructionPoint, &h.Latitude, &h.Longitude,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Event{}, model.Hill{}, fmt.Errorf("storage: event %d: %w", id, ErrNotFound)
		}
		return model.Event{}, model.Hill{}, fmt.Errorf("storage: get event with hill: %w", err)
	}
	e.Type = model.EventType(typ)
	e.Level = int(level)
	return e, h, nil
}

func buildEventWhereClause(f model.EventFilter) *whereBuilder {
	w := &whereBuilder{}
	w.like("e.name", f.Name)
	w.like("e.description", f.Description)
	w.addIf(f.Type != "", "e.type = $%d", string(f.Type))
	w.addIf(len(f.HillIDs) > 0, "e.hill_id = ANY($%d)", f.HillIDs)
	w.addIf(len(f.TeamIDs) > 0,
		"EXISTS (SELECT 1 FROM event_allowed_teams a WHERE a.event_id = e.id AND a.team_id = ANY($%d))", f.TeamIDs)
	w.addIf(len(f.AthleteIDs) > 0,
		"EXISTS (SELECT 1 FROM event_participants p WHERE p.event_id = e.id AND p.athlete_id = ANY($%d))", f.AthleteIDs)
	w.addIf(f.StartFrom != nil, "e.start_date >= $%d", f.StartFrom)
	w.addIf(f.StartTo != nil, "e.start_date <= $%d", f.StartTo)
	w.addIf(f.EndFrom != nil, "e.end_date >= $%d", f.EndFrom)
	w.addIf(f.EndTo != nil, "e.end_date <= $%d", f.EndTo)
	w.addIf(f.MinLevel != nil, "e.level >= $%d", f.MinLevel)
	w.addIf(f.MaxLevel != nil, "e.level <= $%d", f.MaxLevel)
	return w
}

// ListEvents returns a page of events matching f, most recent first unless
// f.Ascending is set.
func (db *DB) ListEvents(ctx context.Context, f model.EventFilter, p model.Page) ([]model.Event, int, error) {
	w := buildEventWhereClause(f)
	var total int
	if err := db.pool.QueryRow(ctx, `SELECT count(*) FROM events e`+w.clause(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count events: %w", err)
	}
	order := ` ORDER BY e.start_date DESC, e.id`
	if f.Ascending {
		order = ` ORDER BY e.start_date, e.id`
	}
	query := `SELECT ` + eventColumns + ` FROM events e` + w.clause() + order + w.page(p)
	rows, err := db.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list events: %w", err)
	}
	events, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (model.Event, error) { return scanEvent(r) })
	if err != nil {
		return nil, 0, fmt.Errorf("storage: scan events: %w", err)
	}
	return events, total, nil
}

// DeleteEvent removes an event with its participants and results.
func (db *DB) DeleteEvent(ctx context.Context, id int64) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storage: delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: event %d: %w", id, ErrNotFound)
	}
	return nil
}
