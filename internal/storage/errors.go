package storage

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kubikal7/ski-jumping-management/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// Postgres SQLSTATE codes the service layer branches on.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeDuplicateTable      = "42P07"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool { return pgCode(err) == codeUniqueViolation }

// IsForeignKeyViolation reports whether err is a foreign key violation, such
// as deleting a hill that events still reference.
func IsForeignKeyViolation(err error) bool { return pgCode(err) == codeForeignKeyViolation }

// IsNoPartition reports whether err came from routing a row to a season with
// no provisioned partition.
func IsNoPartition(err error) bool { return pgCode(err) == codeCheckViolation }

// Classify maps a storage error onto the service error kinds: missing rows
// become model.ErrNotFound, unique violations model.ErrConflict and
// everything else model.ErrStorageFault. what names the entity for the
// message. A nil err stays nil.
func Classify(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return fmt.Errorf("%w: %s", model.ErrNotFound, what)
	case IsUniqueViolation(err):
		return fmt.Errorf("%w: %s already exists", model.ErrConflict, what)
	default:
		return fmt.Errorf("%w: %s: %w", model.ErrStorageFault, what, err)
	}
}
