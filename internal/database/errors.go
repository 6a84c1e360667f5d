package database

import (
	"errors"
	"fmt"

	"taskcal/internal/apperr"

	"github.com/mattn/go-sqlite3"
)

// wrapErr turns driver failures into typed errors so callers never need to
// inspect sqlite codes.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return apperr.NewConflict("resource already exists", fmt.Errorf("%s: %w", op, err))
	}

	return apperr.NewDatabase("", fmt.Errorf("%s: %w", op, err))
}
