package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kubikal7/ski-jumping-management/internal/model"
)

const injuryColumns = `i.id, i.athlete_id, i.injury_date, i.recovery_date, i.severity, i.description`

func scanInjury(row pgx.Row) (model.Injury, error) {
	var (
		in  model.Injury
		sev string
	)
	err := row.Scan(&in.ID, &in.AthleteID, &in.InjuryDate, &in.RecoveryDate, &sev, &in.Description)
	in.Severity = model.Severity(sev)
	return in, err
}

// CreateInjury inserts an injury.
func (db *DB) CreateInjury(ctx context.Context, in model.Injury) (model.Injury, error) {
	err := db.pool.QueryRow(ctx,
		`INSERT INTO injuries (athlete_id, injury_date, recovery_date, severity, description)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		in.AthleteID, in.InjuryDate, in.RecoveryDate, string(in.Severity), in.Description,
	).Scan(&in.ID)
	if err != nil {
		return model.Injury{}, fmt.Errorf("storage: create injury: %w", err)
	}
	return in, nil
}

// GetInjury returns an injury by ID.
func (db *DB) GetInjury(ctx context.Context, id int64) (model.Injury, error) {
	in, err := scanInjury(db.pool.QueryRow(ctx, `SELECT `+injuryColumns+` FROM injuries i WHERE i.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Injury{}, fmt.Errorf("storage: injury %d: %w", id, ErrNotFound)
		}
		return model.Injury{}, fmt.Errorf("storage: get injury: %w", err)
	}
	return in, nil
}

// UpdateInjury overwrites an injury.
func (db *DB) UpdateInjury(ctx context.Context, in model.Injury) (model.Injury, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE injuries SET athlete_id = $2, injury_date = $3, recovery_date = $4, severity = $5, description = $6
		 WHERE id = $1`,
		in.ID, in.AthleteID, in.InjuryDate, in.RecoveryDate, string(in.Severity), in.Description,
	)
	if err != nil {
		return model.Injury{}, fmt.Errorf("storage: update injury: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.Injury{}, fmt.Errorf("storage: injury %d: %w", in.ID, ErrNotFound)
	}
	return in, nil
}

// DeleteInjury removes an injury.
func (db *DB) DeleteInjury(ctx context.Context, id int64) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM injuries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storage: delete injury: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: injury %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListInjuries returns a page of injuries matching f, most recent first.
func (db *DB) ListInjuries(ctx context.Context, f model.InjuryFilter, p model.Page) ([]model.Injury, int, error) {
	w := &whereBuilder{}
	w.addIf(len(f.AthleteIDs) > 0, "i.athlete_id = ANY($%d)", f.AthleteIDs)
	w.addIf(len(f.TeamIDs) > 0,
		"EXISTS (SELECT 1 FROM user_teams ut WHERE ut.user_id = i.athlete_id AND ut.team_id = ANY($%d))", f.TeamIDs)
	w.addIf(f.Severity != "", "i.severity = $%d", string(f.Severity))
	w.addIf(f.InjuryFrom != nil, "i.injury_date >= $%d", f.InjuryFrom)
	w.addIf(f.InjuryTo != nil, "i.injury_date <= $%d", f.InjuryTo)
	w.addIf(f.RecoveryFrom != nil, "i.recovery_date >= $%d", f.RecoveryFrom)
	w.addIf(f.RecoveryTo != nil, "i.recovery_date <= $%d", f.RecoveryTo)
	w.like("i.description", f.Description)

	var total int
	if err := db.pool.QueryRow(ctx, `SELECT count(*) FROM injuries i`+w.clause(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count injuries: %w", err)
	}
	query := `SELECT ` + injuryColumns + ` FROM injuries i` + w.clause() + ` ORDER BY i.injury_date DESC, i.id` + w.page(p)
	rows, err := db.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list injuries: %w", err)
	}
	injuries, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (model.Injury, error) { return scanInjury(r) })
	if err != nil {
		return nil, 0, fmt.Errorf("storage: scan injuries: %w", err)
	}
	return injuries, total, nil
}
