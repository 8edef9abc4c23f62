package database

import "context"

// StationCatalog stores the stations users can play by name.
type StationCatalog interface {
	AddStation(ctx context.Context, label, url, addedBy string) (Station, error)
	ListStations(ctx context.Context) ([]Station, error)
	FindStation(ctx context.Context, label string) (Station, error)
	RemoveStation(ctx context.Context, label string) error
	Close() error
}
