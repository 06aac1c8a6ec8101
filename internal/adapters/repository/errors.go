package repository

import "errors"

// Sentinel kinds for store errors. Lookups and conflicts wrap the shared
// model.ErrNotFound and model.ErrConflict instead.
var (
	ErrUnsupportedDriver = errors.New("unsupported store driver")
	ErrMigration         = errors.New("migration failed")
	ErrNoRowsAffected    = errors.New("no rows affected")
)
