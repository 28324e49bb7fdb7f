package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kubikal7/ski-jumping-management/internal/model"
)

const userColumns = `u.id, u.first_name, u.last_name, u.login, u.password_hash, u.capabilities,
	COALESCE((SELECT array_agg(ut.team_id ORDER BY ut.team_id) FROM user_teams ut WHERE ut.user_id = u.id), '{}'),
	u.birth_date, u.nationality, u.photo_url, u.weight, u.height, u.active, u.last_login,
	u.must_change_password, u.created_at, u.updated_at`

func scanUser(row pgx.Row) (model.User, error) {
	var (
		u    model.User
		caps []string
	)
	err := row.Scan(
		&u.ID, &u.FirstName, &u.LastName, &u.Login, &u.PasswordHash, &caps,
		&u.TeamIDs, &u.BirthDate, &u.Nationality, &u.PhotoURL, &u.Weight, &u.Height,
		&u.Active, &u.LastLogin, &u.MustChangePassword, &u.CreatedAt, &u.UpdatedAt,
	)
	u.Capabilities = model.CapabilitiesFromStrings(caps)
	return u, err
}

func collectUsers(rows pgx.Rows) ([]model.User, error) {
	defer rows.Close()
	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateUser inserts a user together with its team memberships.
func (db *DB) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.User{}, fmt.Errorf("storage: begin create user tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`INSERT INTO users (first_name, last_name, login, password_hash, capabilities, birth_date,
			nationality, photo_url, weight, height, active, must_change_password)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id, created_at, updated_at`,
		u.FirstName, u.LastName, u.Login, u.PasswordHash, u.Capabilities.Strings(), u.BirthDate,
		u.Nationality, u.PhotoURL, u.Weight, u.Height, u.Active, u.MustChangePassword,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, fmt.Errorf("storage: create user: %w", err)
	}
	if err := replaceUserTeams(ctx, tx, u.ID, u.TeamIDs); err != nil {
		return model.User{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.User{}, fmt.Errorf("storage: commit create user tx: %w", err)
	}
	if u.TeamIDs == nil {
		u.TeamIDs = []int64{}
	}
	return u, nil
}

// UpdateUser overwrites the profile fields, capabilities and team memberships
// of an existing user. The password hash and login bookkeeping are untouched.
func (db *DB) UpdateUser(ctx context.Context, u model.User) (model.User, error) {
	err := db.retryTx(ctx, "update user", func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE users SET first_name = $2, last_name = $3, login = $4, capabilities = $5,
				birth_date = $6, nationality = $7, photo_url = $8, weight = $9, height = $10,
				active = $11, updated_at = now()
			 WHERE id = $1`,
			u.ID, u.FirstName, u.LastName, u.Login, u.Capabilities.Strings(),
			u.BirthDate, u.Nationality, u.PhotoURL, u.Weight, u.Height, u.Active,
		)
		if err != nil {
			return fmt.Errorf("storage: update user: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return replaceUserTeams(ctx, tx, u.ID, u.TeamIDs)
	})
	if err != nil {
		return model.User{}, err
	}
	return db.GetUser(ctx, u.ID)
}

func replaceUserTeams(ctx context.Context, tx pgx.Tx, userID int64, teamIDs []int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM user_teams WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("storage: clear user teams: %w", err)
	}
	if len(teamIDs) == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO user_teams (user_id, team_id)
		 SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING`,
		userID, teamIDs,
	); err != nil {
		return fmt.Errorf("storage: set user teams: %w", err)
	}
	return nil
}

// GetUser returns a user by ID.
func (db *DB) GetUser(ctx context.Context, id int64) (model.User, error) {
	u, err := scanUser(db.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, fmt.Errorf("storage: user %d: %w", id, ErrNotFound)
		}
		return model.User{}, fmt.Errorf("storage: get user: %w", err)
	}
	return u, nil
}

// GetUserByLogin looks a user up by login, case-insensitively.
func (db *DB) GetUserByLogin(ctx context.Context, login string) (model.User, error) {
	u, err := scanUser(db.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users u WHERE lower(u.login) = lower($1)`, login))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, fmt.Errorf("storage: user %q: %w", login, ErrNotFound)
		}
		return model.User{}, fmt.Errorf("storage: get user by login: %w", err)
	}
	return u, nil
}

// GetUsersByIDs returns the users with the given IDs, keyed by ID.
func (db *DB) GetUsersByIDs(ctx context.Context, ids []int64) (map[int64]model.User, error) {
	out := make(map[int64]model.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := db.pool.Query(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("storage: get users by ids: %w", err)
	}
	users, err := collectUsers(rows)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

func buildUserWhereClause(f model.UserFilter) *whereBuilder {
	w := &whereBuilder{}
	if s := f.Search; s != "" {
		w.add(`(u.first_name || ' ' || u.last_name ILIKE $%[1]d OR u.login ILIKE $%[1]d)`, "%"+escapeLike(s)+"%")
	}
	if len(f.Capabilities) > 0 {
		w.add(`u.capabilities && $%d`, model.Capabilities(f.Capabilities).Strings())
	}
	if len(f.TeamIDs) > 0 {
		w.add(`EXISTS (SELECT 1 FROM user_teams ut WHERE ut.user_id = u.id AND ut.team_id = ANY($%d))`, f.TeamIDs)
	}
	w.like("u.nationality", f.Nationality)
	if f.ActiveOnly {
		w.conditions = append(w.conditions, "u.active")
	}
	return w
}

// ListUsers returns a page of users matching f, ordered by last name, and the
// total number of matches.
func (db *DB) ListUsers(ctx context.Context, f model.UserFilter, p model.Page) ([]model.User, int, error) {
	w := buildUserWhereClause(f)
	var total int
	if err := db.pool.QueryRow(ctx, `SELECT count(*) FROM users u`+w.clause(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count users: %w", err)
	}
	query := `SELECT ` + userColumns + ` FROM users u` + w.clause() +
		` ORDER BY u.last_name, u.first_name, u.id` + w.page(p)
	rows, err := db.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list users: %w", err)
	}
	users, err := collectUsers(rows)
	return users, total, err
}

// DeleteUser removes a user. Memberships, participations, results and
// injuries of the user are removed by cascade.
func (db *DB) DeleteUser(ctx context.Context, id int64) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storage: delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: user %d: %w", id, ErrNotFound)
	}
	return nil
}

// SetPassword stores a new password hash.
func (db *DB) SetPassword(ctx context.Context, id int64, hash string, mustChange bool) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, must_change_password = $3, updated_at = now() WHERE id = $1`,
		id, hash, mustChange)
	if err != nil {
		return fmt.Errorf("storage: set password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: user %d: %w", id, ErrNotFound)
	}
	return nil
}

// TouchLastLogin records a successful login.
func (db *DB) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	if _, err := db.pool.Exec(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("storage: touch last login: %w", err)
	}
	return nil
}

// CountUsers returns the number of users.
func (db *DB) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := db.pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count users: %w", err)
	}
	return n, nil
}

// UserTeamIDs returns the teams a user belongs to.
func (db *DB) UserTeamIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := db.pool.Query(ctx, `SELECT team_id FROM user_teams WHERE user_id = $1 ORDER BY team_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("storage: user teams: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("storage: scan user teams: %w", err)
	}
	return ids, nil
}

// AddUserToTeam adds a membership. It reports false when the user was already
// a member.
func (db *DB) AddUserToTeam(ctx context.Context, userID, teamID int64) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`INSERT INTO user_teams (user_id, team_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, teamID)
	if err != nil {
		return false, fmt.Errorf("storage: add user to team: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RemoveUserFromTeam removes a membership. It reports false when the user was
// not a member.
func (db *DB) RemoveUserFromTeam(ctx context.Context, userID, teamID int64) (bool, error) {
	tag, err := db.pool.Exec(ctx, `DELETE FROM user_teams WHERE user_id = $1 AND team_id = $2`, userID, teamID)
	if err != nil {
		return false, fmt.Errorf("storage: remove user from team: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
