package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kubikal7/ski-jumping-management/internal/model"
)

const participantColumns = `p.id, p.event_id, p.athlete_id, p.season, p.created_at`

func scanParticipant(row pgx.Row) (model.Participant, error) {
	var p model.Participant
	err := row.Scan(&p.ID, &p.EventID, &p.AthleteID, &p.Season, &p.CreatedAt)
	return p, err
}

func collectParticipants(rows pgx.Rows) ([]model.Participant, error) {
	ps, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (model.Participant, error) { return scanParticipant(r) })
	if err != nil {
		return nil, fmt.Errorf("storage: scan participants: %w", err)
	}
	return ps, nil
}

// CreateParticipant registers an athlete at an event. The season partition
// must already exist. A repeated (event, athlete) pair surfaces as a unique
// violation.
func (db *DB) CreateParticipant(ctx context.Context, p model.Participant) (model.Participant, error) {
	err := db.pool.QueryRow(ctx,
		`INSERT INTO event_participants (event_id, athlete_id, season)
		 VALUES ($1, $2, $3) RETURNING id, created_at`,
		p.EventID, p.AthleteID, p.Season,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return model.Participant{}, fmt.Errorf("storage: create participant: %w", err)
	}
	return p, nil
}

// GetParticipant returns a registration by ID.
func (db *DB) GetParticipant(ctx context.Context, id int64) (model.Participant, error) {
	p, err := scanParticipant(db.pool.QueryRow(ctx,
		`SELECT `+participantColumns+` FROM event_participants p WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Participant{}, fmt.Errorf("storage: participant %d: %w", id, ErrNotFound)
		}
		return model.Participant{}, fmt.Errorf("storage: get participant: %w", err)
	}
	return p, nil
}

// IsParticipant reports whether the athlete is registered at the event.
func (db *DB) IsParticipant(ctx context.Context, eventID, athleteID int64) (bool, error) {
	var ok bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM event_participants WHERE event_id = $1 AND athlete_id = $2)`,
		eventID, athleteID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("storage: check participant: %w", err)
	}
	return ok, nil
}

// ListEventParticipants returns every registration for an event.
func (db *DB) ListEventParticipants(ctx context.Context, eventID int64) ([]model.Participant, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+participantColumns+` FROM event_participants p WHERE p.event_id = $1 ORDER BY p.id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("storage: list event participants: %w", err)
	}
	return collectParticipants(rows)
}

// ListAthleteParticipations returns every registration of an athlete, newest
// event first.
func (db *DB) ListAthleteParticipations(ctx context.Context, athleteID int64) ([]model.Participant, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+participantColumns+` FROM event_participants p
		 JOIN events e ON e.id = p.event_id
		 WHERE p.athlete_id = $1 ORDER BY e.start_date DESC, p.id`, athleteID)
	if err != nil {
		return nil, fmt.Errorf("storage: list athlete participations: %w", err)
	}
	return collectParticipants(rows)
}

// DeleteParticipant withdraws a registration. Results already recorded for
// the pair are kept.
func (db *DB) DeleteParticipant(ctx context.Context, id int64) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM event_participants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storage: delete participant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: participant %d: %w", id, ErrNotFound)
	}
	return nil
}

// moveEventSeason rewrites the season of every participant and result row
// of an event, moving them across partitions. The target partitions must
// exist. Rows already in seasonKey are untouched.
func moveEventSeason(ctx context.Context, tx pgx.Tx, eventID int64, seasonKey string) error {
	for _, table := range partitionedTables {
		q := fmt.Sprintf(`UPDATE %s SET season = $2 WHERE event_id = $1 AND season <> $2`, pgx.Identifier{table}.Sanitize())
		if _, err := tx.Exec(ctx, q, eventID, seasonKey); err != nil {
			return fmt.Errorf("storage: move %s season: %w", table, err)
		}
	}
	return nil
}
