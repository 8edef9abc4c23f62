package database

import "errors"

// Database configuration errors
var (
	ErrInvalidDatabasePath = errors.New("invalid database path")
)

// Catalog errors
var (
	ErrStationNotFound  = errors.New("station not found")
	ErrDuplicateStation = errors.New("station already exists")
	ErrInvalidStation   = errors.New("invalid station")
)
