package storage

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/workgate/agenda/services/scheduling-service/internal/model"
)

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsInvalidID reports a malformed uuid parameter, which callers treat as not found.
func IsInvalidID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// lookupErr maps driver errors of single-row lookups onto model.ErrNotFound.
func lookupErr(err error) error {
	if IsNotFound(err) || IsInvalidID(err) {
		return model.ErrNotFound
	}
	return err
}
