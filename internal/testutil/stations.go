package testutil

import (
	"context"
	"sync"
	"testing"

	"bahnhofjaeger/internal/database"
	"bahnhofjaeger/internal/station"
)

// NewStation builds a minimal valid catalog station for tests.
func NewStation(id, name string, priceClass int) station.Station {
	return station.Station{
		ID:         id,
		Name:       name,
		PriceClass: priceClass,
		PointValue: station.PointsForPriceClass(priceClass),
		State:      "Berlin",
	}
}

// SampleCatalog returns a small catalog spanning several price classes with
// one main station.
func SampleCatalog() []station.Station {
	hbf := NewStation("st-1", "Berlin Hbf", 1)
	hbf.IsMainStation = true

	return []station.Station{
		hbf,
		NewStation("st-2", "Berlin Ostbahnhof", 2),
		NewStation("st-3", "Potsdam Park Sanssouci", 4),
		NewStation("st-4", "Wannsee", 5),
		NewStation("st-5", "Griebnitzsee", 7),
	}
}

// SeedCatalog loads the sample catalog into the database.
func SeedCatalog(t *testing.T, db *database.SQLiteDatabase) []station.Station {
	t.Helper()

	stations := SampleCatalog()
	if _, err := db.ReplaceCatalog(context.Background(), stations); err != nil {
		t.Fatalf("ReplaceCatalog() error = %v", err)
	}
	return stations
}

// StubAcknowledger records acknowledged station ids and can be told to fail.
type StubAcknowledger struct {
	mu  sync.Mutex
	IDs []string
	Err error
}

func (a *StubAcknowledger) AcknowledgeAdd(_ context.Context, stationID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return a.Err
	}
	a.IDs = append(a.IDs, stationID)
	return nil
}
