package station

import (
	"context"
	"time"
)

// Database is the persistence interface the service layer depends on.
// Implementations must make every multi-record method transactional: the
// collection table and the stats row are updated together or not at all.
type Database interface {
	// Catalog operations. The catalog is replaced wholesale on import and
	// never mutated row by row.
	ReplaceCatalog(ctx context.Context, stations []Station) (int, error)
	AllStations(ctx context.Context) ([]Station, error)
	FindStationByID(ctx context.Context, id string) (*Station, error)
	CountStations(ctx context.Context) (int, error)

	// Collection operations.
	//
	// AddToCollection inserts the entry and adjusts the stats totals in a
	// single transaction. It returns false (and no error) when an entry for
	// the same station id already exists.
	AddToCollection(ctx context.Context, entry CollectionEntry) (bool, error)

	// RemoveFromCollection deletes the entry and adjusts the stats totals in
	// a single transaction, decrementing by the snapshot's point value. It
	// returns nil (and no error) when no entry exists for the id.
	RemoveFromCollection(ctx context.Context, stationID string, now time.Time) (*CollectionEntry, error)

	Collection(ctx context.Context) ([]CollectionEntry, error)
	SortedCollection(ctx context.Context) ([]CollectionEntry, error)
	HasEntry(ctx context.Context, stationID string) (bool, error)

	// RestoreCollection replaces the collection with the given entries and
	// recomputes the cached totals, all in one transaction.
	RestoreCollection(ctx context.Context, entries []CollectionEntry, now time.Time) (int, error)

	// Stats row operations.
	EnsureStats(ctx context.Context, now time.Time) (*Stats, error)
	Stats(ctx context.Context) (*Stats, error)
	SaveStats(ctx context.Context, stats *Stats) error
	CompleteFirstLaunch(ctx context.Context) error

	Close() error
}
