package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kubikal7/ski-jumping-management/internal/model"
)

const teamColumns = `t.id, t.name, t.description, t.created_at`

func scanTeam(row pgx.Row) (model.Team, error) {
	var t model.Team
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt)
	return t, err
}

// CreateTeam inserts a team. A case-insensitive name collision surfaces as a
// unique violation (see IsUniqueViolation).
func (db *DB) CreateTeam(ctx context.Context, t model.Team) (model.Team, error) {
	err := db.pool.QueryRow(ctx,
		`INSERT INTO teams (name, description) VALUES ($1, $2) RETURNING id, created_at`,
		t.Name, t.Description,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return model.Team{}, fmt.Errorf("storage: create team: %w", err)
	}
	return t, nil
}

// GetTeam returns a team by ID.
func (db *DB) GetTeam(ctx context.Context, id int64) (model.Team, error) {
	t, err := scanTeam(db.pool.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams t WHERE t.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Team{}, fmt.Errorf("storage: team %d: %w", id, ErrNotFound)
		}
		return model.Team{}, fmt.Errorf("storage: get team: %w", err)
	}
	return t, nil
}

// ListTeams returns a page of teams whose name contains name (if given).
func (db *DB) ListTeams(ctx context.Context, name string, p model.Page) ([]model.Team, int, error) {
	w := &whereBuilder{}
	w.like("t.name", name)

	var total int
	if err := db.pool.QueryRow(ctx, `SELECT count(*) FROM teams t`+w.clause(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count teams: %w", err)
	}
	query := `SELECT ` + teamColumns + ` FROM teams t` + w.clause() + ` ORDER BY t.name, t.id` + w.page(p)
	rows, err := db.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list teams: %w", err)
	}
	teams, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (model.Team, error) { return scanTeam(r) })
	if err != nil {
		return nil, 0, fmt.Errorf("storage: scan teams: %w", err)
	}
	return teams, total, nil
}

// UpdateTeam overwrites a team's name and description.
func (db *DB) UpdateTeam(ctx context.Context, t model.Team) (model.Team, error) {
	err := db.pool.QueryRow(ctx,
		`UPDATE teams SET name = $2, description = $3 WHERE id = $1 RETURNING created_at`,
		t.ID, t.Name, t.Description,
	).Scan(&t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Team{}, fmt.Errorf("storage: team %d: %w", t.ID, ErrNotFound)
		}
		return model.Team{}, fmt.Errorf("storage: update team: %w", err)
	}
	return t, nil
}

// DeleteTeam removes a team along with its memberships and event admissions.
func (db *DB) DeleteTeam(ctx context.Context, id int64) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM teams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storage: delete team: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: team %d: %w", id, ErrNotFound)
	}
	return nil
}

// TeamAthletes returns the athletes of a team ordered by last name.
func (db *DB) TeamAthletes(ctx context.Context, teamID int64) ([]model.User, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users u
		 JOIN user_teams m ON m.user_id = u.id
		 WHERE m.team_id = $1 AND 'ATHLETE' = ANY(u.capabilities)
		 ORDER BY u.last_name, u.first_name, u.id`, teamID)
	if err != nil {
		return nil, fmt.Errorf("storage: team athletes: %w", err)
	}
	return collectUsers(rows)
}

// MissingTeams returns the IDs in ids that do not name an existing team.
func (db *DB) MissingTeams(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := db.pool.Query(ctx,
		`SELECT want.id FROM unnest($1::bigint[]) AS want(id)
		 WHERE NOT EXISTS (SELECT 1 FROM teams t WHERE t.id = want.id)
		 ORDER BY want.id`, ids)
	if err != nil {
		return nil, fmt.Errorf("storage: check teams: %w", err)
	}
	missing, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("storage: scan missing teams: %w", err)
	}
	return missing, nil
}
