package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kubikal7/ski-jumping-management/internal/model"
)

const hillColumns = `h.id, h.name, h.city, h.country, h.hill_size, h.construction_point, h.latitude, h.longitude`

func scanHill(row pgx.Row) (model.Hill, error) {
	var h model.Hill
	err := row.Scan(&h.ID, &h.Name, &h.City, &h.Country, &h.HillSize, &h.ConstructionPoint, &h.Latitude, &h.Longitude)
	return h, err
}

// CreateHill inserts a hill.
func (db *DB) CreateHill(ctx context.Context, h model.Hill) (model.Hill, error) {
	err := db.pool.QueryRow(ctx,
		`INSERT INTO hills (name, city, country, hill_size, construction_point, latitude, longitude)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		h.Name, h.City, h.Country, h.HillSize, h.ConstructionPoint, h.Latitude, h.Longitude,
	).Scan(&h.ID)
	if err != nil {
		return model.Hill{}, fmt.Errorf("storage: create hill: %w", err)
	}
	return h, nil
}

// GetHill returns a hill by ID.
func (db *DB) GetHill(ctx context.Context, id int64) (model.Hill, error) {
	h, err := scanHill(db.pool.QueryRow(ctx, `SELECT `+hillColumns+` FROM hills h WHERE h.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Hill{}, fmt.Errorf("storage: hill %d: %w", id, ErrNotFound)
		}
		return model.Hill{}, fmt.Errorf("storage: get hill: %w", err)
	}
	return h, nil
}

// ListHills returns a page of hills matching f, ordered by name.
func (db *DB) ListHills(ctx context.Context, f model.HillFilter, p model.Page) ([]model.Hill, int, error) {
	w := &whereBuilder{}
	w.like("h.name", f.Name)
	w.like("h.city", f.City)
	w.like("h.country", f.Country)
	w.addIf(f.MinHillSize != nil, "h.hill_size >= $%d", f.MinHillSize)
	w.addIf(f.MaxHillSize != nil, "h.hill_size <= $%d", f.MaxHillSize)

	var total int
	if err := db.pool.QueryRow(ctx, `SELECT count(*) FROM hills h`+w.clause(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count hills: %w", err)
	}
	query := `SELECT ` + hillColumns + ` FROM hills h` + w.clause() + ` ORDER BY h.name, h.id` + w.page(p)
	rows, err := db.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list hills: %w", err)
	}
	hills, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (model.Hill, error) { return scanHill(r) })
	if err != nil {
		return nil, 0, fmt.Errorf("storage: scan hills: %w", err)
	}
	return hills, total, nil
}

// UpdateHill overwrites every field of a hill.
func (db *DB) UpdateHill(ctx context.Context, h model.Hill) (model.Hill, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE hills SET name = $2, city = $3, country = $4, hill_size = $5,
			construction_point = $6, latitude = $7, longitude = $8
		 WHERE id = $1`,
		h.ID, h.Name, h.City, h.Country, h.HillSize, h.ConstructionPoint, h.Latitude, h.Longitude,
	)
	if err != nil {
		return model.Hill{}, fmt.Errorf("storage: update hill: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.Hill{}, fmt.Errorf("storage: hill %d: %w", h.ID, ErrNotFound)
	}
	return h, nil
}

// DeleteHill removes a hill. Events still held on the hill make this fail
// with a foreign key violation (see IsForeignKeyViolation).
func (db *DB) DeleteHill(ctx context.Context, id int64) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM hills WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storage: delete hill: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: hill %d: %w", id, ErrNotFound)
	}
	return nil
}
