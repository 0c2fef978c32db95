package store

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a row is absent or filtered out by ownership.
	ErrNotFound = sql.ErrNoRows
	// ErrConflict is returned when an insert hits a uniqueness constraint the caller must see.
	ErrConflict = errors.New("conflict")
	// ErrInvalidReference is returned when a foreign key points at a missing row.
	ErrInvalidReference = errors.New("invalid reference")
)

const (
	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"
	sqlStateInvalidText         = "22P02"
)

func pgState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.SQLState()
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgState(err) == sqlStateUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	return pgState(err) == sqlStateForeignKeyViolation
}

// IsInvalidText reports malformed literals such as a non-UUID id.
func IsInvalidText(err error) bool {
	return pgState(err) == sqlStateInvalidText
}

func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}
