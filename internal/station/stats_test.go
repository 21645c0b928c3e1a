package station_test

import (
	"context"
	"testing"
	"time"

	"bahnhofjaeger/internal/search"
	"bahnhofjaeger/internal/station"
	"bahnhofjaeger/internal/testutil"
)

func entryAt(st station.Station, ts time.Time) station.CollectionEntry {
	return station.CollectionEntry{StationID: st.ID, Timestamp: ts, Station: st}
}

func TestPriceClassStats(t *testing.T) {
	stations := []station.Station{
		testutil.NewStation("st-1", "Berlin Hbf", 1),
		testutil.NewStation("st-2", "Berlin Ostbahnhof", 1),
		testutil.NewStation("st-3", "Wannsee", 5),
	}
	collection := []station.CollectionEntry{
		entryAt(stations[0], time.Now()),
	}

	stats := station.PriceClassStats(stations, collection)

	if got := stats[1]; got.Collected != 1 || got.Total != 2 {
		t.Errorf("stats[1] = %+v, want {Collected:1 Total:2}", got)
	}
	if got := stats[5]; got.Collected != 0 || got.Total != 1 {
		t.Errorf("stats[5] = %+v, want {Collected:0 Total:1}", got)
	}

	t.Run("all seven tiers are present even when empty", func(t *testing.T) {
		for tier := 1; tier <= 7; tier++ {
			if _, ok := stats[tier]; !ok {
				t.Errorf("tier %d missing from stats", tier)
			}
		}
	})

	t.Run("out-of-range price classes are excluded", func(t *testing.T) {
		weird := []station.Station{{ID: "x", Name: "X", PriceClass: 9}}
		stats := station.PriceClassStats(weird, nil)
		for tier, s := range stats {
			if s.Total != 0 {
				t.Errorf("tier %d Total = %d, want 0", tier, s.Total)
			}
		}
		if _, ok := stats[9]; ok {
			t.Error("tier 9 present in stats, want excluded")
		}
	})
}

func TestMainStationStats(t *testing.T) {
	hbf := testutil.NewStation("st-1", "Berlin Hbf", 1)
	hbf.IsMainStation = true
	other := testutil.NewStation("st-2", "Wannsee", 5)

	stations := []station.Station{hbf, other}

	t.Run("counts main stations in catalog and collection", func(t *testing.T) {
		collection := []station.CollectionEntry{entryAt(hbf, time.Now())}
		got := station.MainStationStats(stations, collection)
		if got.Collected != 1 || got.Total != 1 {
			t.Errorf("MainStationStats() = %+v, want {Collected:1 Total:1}", got)
		}
	})

	t.Run("collected side reads the snapshot flag", func(t *testing.T) {
		// Snapshot says main station even though the catalog no longer does.
		snapshot := testutil.NewStation("st-3", "Ehemals Hbf", 2)
		snapshot.IsMainStation = true
		collection := []station.CollectionEntry{entryAt(snapshot, time.Now())}

		got := station.MainStationStats(stations, collection)
		if got.Collected != 1 {
			t.Errorf("Collected = %d, want 1 (from snapshot)", got.Collected)
		}
		if got.Total != 1 {
			t.Errorf("Total = %d, want 1 (from catalog)", got.Total)
		}
	})
}

func TestCountThisMonth(t *testing.T) {
	now := time.Date(2024, 4, 15, 12, 0, 0, 0, time.UTC)
	st := testutil.NewStation("st-1", "Berlin Hbf", 1)

	collection := []station.CollectionEntry{
		entryAt(st, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)),   // first instant of month
		entryAt(st, time.Date(2024, 4, 30, 23, 59, 59, 0, time.UTC)), // last moment of month
		entryAt(st, time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC)), // previous month
		entryAt(st, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)),   // next month
	}

	if got := station.CountThisMonth(collection, now); got != 2 {
		t.Errorf("CountThisMonth() = %d, want 2", got)
	}
}

func TestMonthStreak(t *testing.T) {
	st := testutil.NewStation("st-1", "Berlin Hbf", 1)
	now := time.Date(2024, 4, 15, 12, 0, 0, 0, time.UTC)

	at := func(year int, month time.Month) station.CollectionEntry {
		return entryAt(st, time.Date(year, month, 10, 9, 0, 0, 0, time.UTC))
	}

	t.Run("empty collection yields zero", func(t *testing.T) {
		if got := station.MonthStreak(nil, now); got != 0 {
			t.Errorf("MonthStreak() = %d, want 0", got)
		}
	})

	t.Run("no entry in the current month yields zero", func(t *testing.T) {
		collection := []station.CollectionEntry{at(2024, time.February), at(2024, time.March)}
		if got := station.MonthStreak(collection, now); got != 0 {
			t.Errorf("MonthStreak() = %d, want 0", got)
		}
	})

	t.Run("consecutive months count back from the current one", func(t *testing.T) {
		collection := []station.CollectionEntry{at(2024, time.February), at(2024, time.March), at(2024, time.April)}
		if got := station.MonthStreak(collection, now); got != 3 {
			t.Errorf("MonthStreak() = %d, want 3", got)
		}
	})

	t.Run("a gap breaks the streak", func(t *testing.T) {
		collection := []station.CollectionEntry{at(2024, time.January), at(2024, time.February), at(2024, time.April)}
		if got := station.MonthStreak(collection, now); got != 1 {
			t.Errorf("MonthStreak() = %d, want 1", got)
		}
	})

	t.Run("streak crosses a year boundary", func(t *testing.T) {
		jan := time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)
		collection := []station.CollectionEntry{at(2023, time.November), at(2023, time.December), at(2024, time.January)}
		if got := station.MonthStreak(collection, jan); got != 3 {
			t.Errorf("MonthStreak() = %d, want 3", got)
		}
	})
}

func TestService_CollectionStats(t *testing.T) {
	ctx := context.Background()
	clock := testutil.FixedClock()

	db := testutil.NewTestDatabase(t)
	stations := testutil.SeedCatalog(t, db)
	svc := station.NewService(db, search.NewNameRanker(), nil, station.NopLogger{}, clock)

	// Collect the main station (class 1, 70 pts) and one class 5 station (30 pts).
	if _, err := svc.Add(ctx, stations[0]); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, err := svc.Add(ctx, stations[3]); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	stats, err := svc.CollectionStats(ctx)
	if err != nil {
		t.Fatalf("CollectionStats() error = %v", err)
	}

	if stats.TotalStations != 2 {
		t.Errorf("TotalStations = %d, want 2", stats.TotalStations)
	}
	if stats.TotalPoints != 100 {
		t.Errorf("TotalPoints = %d, want 100", stats.TotalPoints)
	}
	if stats.Level != "Eisen I" {
		t.Errorf("Level = %q, want %q", stats.Level, "Eisen I")
	}
	if stats.StationsThisMonth != 2 {
		t.Errorf("StationsThisMonth = %d, want 2", stats.StationsThisMonth)
	}
	if stats.MonthStreak != 1 {
		t.Errorf("MonthStreak = %d, want 1", stats.MonthStreak)
	}
	if got := stats.PriceClassStats[1]; got.Collected != 1 || got.Total != 1 {
		t.Errorf("PriceClassStats[1] = %+v, want {Collected:1 Total:1}", got)
	}
	if got := stats.MainStationStats; got.Collected != 1 || got.Total != 1 {
		t.Errorf("MainStationStats = %+v, want {Collected:1 Total:1}", got)
	}

	t.Run("derived fields are written back to the stats row", func(t *testing.T) {
		row, err := db.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats() error = %v", err)
		}
		if row.Level != "Eisen I" {
			t.Errorf("cached Level = %q, want %q", row.Level, "Eisen I")
		}
		if row.StationsThisMonth != 2 {
			t.Errorf("cached StationsThisMonth = %d, want 2", row.StationsThisMonth)
		}
	})

	t.Run("stats stay consistent after a removal", func(t *testing.T) {
		if _, err := svc.Remove(ctx, stations[3].ID); err != nil {
			t.Fatalf("Remove() error = %v", err)
		}

		stats, err := svc.CollectionStats(ctx)
		if err != nil {
			t.Fatalf("CollectionStats() error = %v", err)
		}
		if stats.TotalStations != 1 {
			t.Errorf("TotalStations = %d, want 1", stats.TotalStations)
		}
		if stats.TotalPoints != 70 {
			t.Errorf("TotalPoints = %d, want 70", stats.TotalPoints)
		}
	})
}
