package database

import (
	"context"
	"testing"
	"time"

	"bahnhofjaeger/internal/station"
)

// newTestDB creates a new in-memory database with schema applied.
func newTestDB(t *testing.T) *SQLiteDatabase {
	t.Helper()

	sqlDB, err := OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if _, err := sqlDB.Exec(Schema); err != nil {
		sqlDB.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}

	db := NewSQLiteDatabaseFromDB(sqlDB)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func testStation(id, name string, priceClass int) station.Station {
	return station.Station{
		ID:         id,
		Name:       name,
		PriceClass: priceClass,
		PointValue: station.PointsForPriceClass(priceClass),
		State:      "Berlin",
	}
}

func testEntry(st station.Station, ts time.Time) station.CollectionEntry {
	return station.CollectionEntry{
		StationID: st.ID,
		Timestamp: ts,
		Station:   st,
	}
}

func TestSQLiteDatabase_ReplaceCatalog(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts all stations", func(t *testing.T) {
		db := newTestDB(t)

		count, err := db.ReplaceCatalog(ctx, []station.Station{
			testStation("st-1", "Berlin Hbf", 1),
			testStation("st-2", "Wannsee", 5),
		})
		if err != nil {
			t.Fatalf("ReplaceCatalog() error = %v", err)
		}
		if count != 2 {
			t.Errorf("ReplaceCatalog() count = %d, want 2", count)
		}

		got, err := db.CountStations(ctx)
		if err != nil {
			t.Fatalf("CountStations() error = %v", err)
		}
		if got != 2 {
			t.Errorf("CountStations() = %d, want 2", got)
		}
	})

	t.Run("replaces an existing catalog entirely", func(t *testing.T) {
		db := newTestDB(t)

		if _, err := db.ReplaceCatalog(ctx, []station.Station{
			testStation("old-1", "Alt", 3),
			testStation("old-2", "Alt Zwei", 3),
			testStation("old-3", "Alt Drei", 3),
		}); err != nil {
			t.Fatalf("first ReplaceCatalog() error = %v", err)
		}

		if _, err := db.ReplaceCatalog(ctx, []station.Station{
			testStation("new-1", "Neu", 2),
		}); err != nil {
			t.Fatalf("second ReplaceCatalog() error = %v", err)
		}

		count, err := db.CountStations(ctx)
		if err != nil {
			t.Fatalf("CountStations() error = %v", err)
		}
		if count != 1 {
			t.Errorf("CountStations() = %d, want 1", count)
		}

		old, err := db.FindStationByID(ctx, "old-1")
		if err != nil {
			t.Fatalf("FindStationByID() error = %v", err)
		}
		if old != nil {
			t.Errorf("FindStationByID(old-1) = %v, want nil", old)
		}
	})

	t.Run("keeps the old catalog when the batch fails", func(t *testing.T) {
		db := newTestDB(t)

		if _, err := db.ReplaceCatalog(ctx, []station.Station{
			testStation("st-1", "Berlin Hbf", 1),
		}); err != nil {
			t.Fatalf("first ReplaceCatalog() error = %v", err)
		}

		// Duplicate primary key aborts the transaction mid-batch.
		_, err := db.ReplaceCatalog(ctx, []station.Station{
			testStation("dup", "Eins", 2),
			testStation("dup", "Zwei", 2),
		})
		if err == nil {
			t.Fatal("ReplaceCatalog() with duplicate ids expected error")
		}

		st, err := db.FindStationByID(ctx, "st-1")
		if err != nil {
			t.Fatalf("FindStationByID() error = %v", err)
		}
		if st == nil {
			t.Fatal("old catalog lost after failed replacement")
		}
	})
}

func TestSQLiteDatabase_FindStationByID(t *testing.T) {
	ctx := context.Background()

	t.Run("returns nil when station not found", func(t *testing.T) {
		db := newTestDB(t)

		st, err := db.FindStationByID(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("FindStationByID() error = %v", err)
		}
		if st != nil {
			t.Errorf("FindStationByID() = %v, want nil", st)
		}
	})

	t.Run("finds an imported station", func(t *testing.T) {
		db := newTestDB(t)

		want := testStation("st-1", "Berlin Hbf", 1)
		want.IsMainStation = true
		want.City = "Berlin"
		if _, err := db.ReplaceCatalog(ctx, []station.Station{want}); err != nil {
			t.Fatalf("ReplaceCatalog() error = %v", err)
		}

		got, err := db.FindStationByID(ctx, "st-1")
		if err != nil {
			t.Fatalf("FindStationByID() error = %v", err)
		}
		if got == nil {
			t.Fatal("FindStationByID() returned nil, want station")
		}
		if got.Name != "Berlin Hbf" {
			t.Errorf("Name = %q, want %q", got.Name, "Berlin Hbf")
		}
		if got.PointValue != 70 {
			t.Errorf("PointValue = %d, want 70", got.PointValue)
		}
		if !got.IsMainStation {
			t.Error("IsMainStation = false, want true")
		}
		if got.City != "Berlin" {
			t.Errorf("City = %q, want %q", got.City, "Berlin")
		}
	})
}

func TestSQLiteDatabase_AddToCollection(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	t.Run("adds an entry and updates stats", func(t *testing.T) {
		db := newTestDB(t)

		st := testStation("st-1", "Berlin Hbf", 1)
		added, err := db.AddToCollection(ctx, testEntry(st, now))
		if err != nil {
			t.Fatalf("AddToCollection() error = %v", err)
		}
		if !added {
			t.Error("AddToCollection() = false, want true")
		}

		has, err := db.HasEntry(ctx, "st-1")
		if err != nil {
			t.Fatalf("HasEntry() error = %v", err)
		}
		if !has {
			t.Error("HasEntry() = false, want true")
		}

		stats, err := db.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats() error = %v", err)
		}
		if stats == nil {
			t.Fatal("Stats() returned nil, want stats row")
		}
		if stats.TotalStations != 1 {
			t.Errorf("TotalStations = %d, want 1", stats.TotalStations)
		}
		if stats.TotalPoints != 70 {
			t.Errorf("TotalPoints = %d, want 70", stats.TotalPoints)
		}
	})

	t.Run("second add of same station is a soft no-op", func(t *testing.T) {
		db := newTestDB(t)

		st := testStation("st-1", "Berlin Hbf", 1)
		if _, err := db.AddToCollection(ctx, testEntry(st, now)); err != nil {
			t.Fatalf("first AddToCollection() error = %v", err)
		}

		added, err := db.AddToCollection(ctx, testEntry(st, now.Add(time.Hour)))
		if err != nil {
			t.Fatalf("second AddToCollection() error = %v", err)
		}
		if added {
			t.Error("second AddToCollection() = true, want false")
		}

		stats, err := db.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats() error = %v", err)
		}
		if stats.TotalStations != 1 {
			t.Errorf("TotalStations = %d, want 1", stats.TotalStations)
		}
		if stats.TotalPoints != 70 {
			t.Errorf("TotalPoints = %d, want 70", stats.TotalPoints)
		}
	})

	t.Run("rolls back the entry when the stats update fails", func(t *testing.T) {
		db := newTestDB(t)

		if _, err := db.EnsureStats(ctx, now); err != nil {
			t.Fatalf("EnsureStats() error = %v", err)
		}

		// Reject any stats update mid-transaction.
		if _, err := db.db.Exec(`
			CREATE TRIGGER stats_abort BEFORE UPDATE ON stats
			BEGIN SELECT RAISE(ABORT, 'stats update rejected'); END`); err != nil {
			t.Fatalf("creating trigger: %v", err)
		}

		st := testStation("st-1", "Berlin Hbf", 1)
		if _, err := db.AddToCollection(ctx, testEntry(st, now)); err == nil {
			t.Fatal("AddToCollection() expected error from rejected stats update")
		}

		has, err := db.HasEntry(ctx, "st-1")
		if err != nil {
			t.Fatalf("HasEntry() error = %v", err)
		}
		if has {
			t.Error("HasEntry() = true after rollback, want false")
		}

		stats, err := db.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats() error = %v", err)
		}
		if stats.TotalPoints != 0 || stats.TotalStations != 0 {
			t.Errorf("totals = %d/%d after rollback, want 0/0", stats.TotalPoints, stats.TotalStations)
		}
	})

	t.Run("maps a lost insert race to the soft outcome", func(t *testing.T) {
		db := newTestDB(t)

		// Simulate a concurrent add landing between the existence check and
		// the insert: the trigger fills the row first, so the add's own
		// insert hits the primary-key constraint.
		if _, err := db.db.Exec(`
			CREATE TRIGGER collection_race BEFORE INSERT ON collection
			BEGIN
				INSERT INTO collection (station_id, timestamp, station)
				VALUES (NEW.station_id, NEW.timestamp, NEW.station);
			END`); err != nil {
			t.Fatalf("creating trigger: %v", err)
		}

		st := testStation("st-1", "Berlin Hbf", 1)
		added, err := db.AddToCollection(ctx, testEntry(st, now))
		if err != nil {
			t.Fatalf("AddToCollection() error = %v", err)
		}
		if added {
			t.Error("AddToCollection() = true, want false for the race loser")
		}
	})

	t.Run("preserves the entry timestamp and snapshot", func(t *testing.T) {
		db := newTestDB(t)

		st := testStation("st-1", "Berlin Hbf", 1)
		if _, err := db.AddToCollection(ctx, testEntry(st, now)); err != nil {
			t.Fatalf("AddToCollection() error = %v", err)
		}

		entries, err := db.Collection(ctx)
		if err != nil {
			t.Fatalf("Collection() error = %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("Collection() len = %d, want 1", len(entries))
		}
		if !entries[0].Timestamp.Equal(now) {
			t.Errorf("Timestamp = %v, want %v", entries[0].Timestamp, now)
		}
		if entries[0].Station.Name != "Berlin Hbf" {
			t.Errorf("snapshot Name = %q, want %q", entries[0].Station.Name, "Berlin Hbf")
		}
	})
}

func TestSQLiteDatabase_RemoveFromCollection(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	t.Run("returns nil for a station never collected", func(t *testing.T) {
		db := newTestDB(t)

		entry, err := db.RemoveFromCollection(ctx, "nonexistent", now)
		if err != nil {
			t.Fatalf("RemoveFromCollection() error = %v", err)
		}
		if entry != nil {
			t.Errorf("RemoveFromCollection() = %v, want nil", entry)
		}
	})

	t.Run("removes the entry and reverts stats", func(t *testing.T) {
		db := newTestDB(t)

		st := testStation("st-1", "Berlin Hbf", 1)
		if _, err := db.AddToCollection(ctx, testEntry(st, now)); err != nil {
			t.Fatalf("AddToCollection() error = %v", err)
		}

		entry, err := db.RemoveFromCollection(ctx, "st-1", now.Add(time.Hour))
		if err != nil {
			t.Fatalf("RemoveFromCollection() error = %v", err)
		}
		if entry == nil {
			t.Fatal("RemoveFromCollection() returned nil, want removed entry")
		}

		has, err := db.HasEntry(ctx, "st-1")
		if err != nil {
			t.Fatalf("HasEntry() error = %v", err)
		}
		if has {
			t.Error("HasEntry() = true after removal, want false")
		}

		stats, err := db.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats() error = %v", err)
		}
		if stats.TotalStations != 0 {
			t.Errorf("TotalStations = %d, want 0", stats.TotalStations)
		}
		if stats.TotalPoints != 0 {
			t.Errorf("TotalPoints = %d, want 0", stats.TotalPoints)
		}
	})

	t.Run("decrements by the snapshot value after a catalog change", func(t *testing.T) {
		db := newTestDB(t)

		// Collected while the station was price class 1 (70 points).
		st := testStation("st-1", "Berlin Hbf", 1)
		if _, err := db.AddToCollection(ctx, testEntry(st, now)); err != nil {
			t.Fatalf("AddToCollection() error = %v", err)
		}

		// A re-import downgrades the station to price class 3 (50 points).
		downgraded := testStation("st-1", "Berlin Hbf", 3)
		if _, err := db.ReplaceCatalog(ctx, []station.Station{downgraded}); err != nil {
			t.Fatalf("ReplaceCatalog() error = %v", err)
		}

		if _, err := db.RemoveFromCollection(ctx, "st-1", now.Add(time.Hour)); err != nil {
			t.Fatalf("RemoveFromCollection() error = %v", err)
		}

		stats, err := db.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats() error = %v", err)
		}
		if stats.TotalPoints != 0 {
			t.Errorf("TotalPoints = %d, want 0", stats.TotalPoints)
		}
	})
}

func TestSQLiteDatabase_SortedCollection(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	db := newTestDB(t)

	older := testStation("st-1", "Wannsee", 5)
	newer := testStation("st-2", "Berlin Hbf", 1)

	if _, err := db.AddToCollection(ctx, testEntry(older, base)); err != nil {
		t.Fatalf("AddToCollection() error = %v", err)
	}
	if _, err := db.AddToCollection(ctx, testEntry(newer, base.Add(time.Hour))); err != nil {
		t.Fatalf("AddToCollection() error = %v", err)
	}

	entries, err := db.SortedCollection(ctx)
	if err != nil {
		t.Fatalf("SortedCollection() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("SortedCollection() len = %d, want 2", len(entries))
	}
	if entries[0].StationID != "st-2" {
		t.Errorf("entries[0] = %s, want st-2 (most recent first)", entries[0].StationID)
	}
	if entries[1].StationID != "st-1" {
		t.Errorf("entries[1] = %s, want st-1", entries[1].StationID)
	}
}

func TestSQLiteDatabase_RestoreCollection(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	db := newTestDB(t)

	// Existing entry that the restore must replace.
	if _, err := db.AddToCollection(ctx, testEntry(testStation("old", "Alt", 7), now)); err != nil {
		t.Fatalf("AddToCollection() error = %v", err)
	}

	restored, err := db.RestoreCollection(ctx, []station.CollectionEntry{
		testEntry(testStation("st-1", "Berlin Hbf", 1), now.Add(-time.Hour)),
		testEntry(testStation("st-2", "Wannsee", 5), now.Add(-2*time.Hour)),
	}, now)
	if err != nil {
		t.Fatalf("RestoreCollection() error = %v", err)
	}
	if restored != 2 {
		t.Errorf("RestoreCollection() = %d, want 2", restored)
	}

	has, err := db.HasEntry(ctx, "old")
	if err != nil {
		t.Fatalf("HasEntry() error = %v", err)
	}
	if has {
		t.Error("HasEntry(old) = true after restore, want false")
	}

	stats, err := db.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalStations != 2 {
		t.Errorf("TotalStations = %d, want 2", stats.TotalStations)
	}
	if want := 70 + 30; stats.TotalPoints != want {
		t.Errorf("TotalPoints = %d, want %d", stats.TotalPoints, want)
	}
}

func TestSQLiteDatabase_Stats(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	t.Run("returns nil before any stats row exists", func(t *testing.T) {
		db := newTestDB(t)

		stats, err := db.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats() error = %v", err)
		}
		if stats != nil {
			t.Errorf("Stats() = %v, want nil", stats)
		}
	})

	t.Run("EnsureStats creates a first-launch row once", func(t *testing.T) {
		db := newTestDB(t)

		stats, err := db.EnsureStats(ctx, now)
		if err != nil {
			t.Fatalf("EnsureStats() error = %v", err)
		}
		if !stats.FirstLaunch {
			t.Error("FirstLaunch = false, want true")
		}
		if stats.TotalPoints != 0 || stats.TotalStations != 0 {
			t.Errorf("totals = %d/%d, want 0/0", stats.TotalPoints, stats.TotalStations)
		}

		// A second call must not reset anything.
		if _, err := db.AddToCollection(ctx, testEntry(testStation("st-1", "Berlin Hbf", 1), now)); err != nil {
			t.Fatalf("AddToCollection() error = %v", err)
		}
		again, err := db.EnsureStats(ctx, now.Add(time.Hour))
		if err != nil {
			t.Fatalf("second EnsureStats() error = %v", err)
		}
		if again.TotalPoints != 70 {
			t.Errorf("TotalPoints = %d, want 70", again.TotalPoints)
		}
	})

	t.Run("SaveStats round-trips derived fields", func(t *testing.T) {
		db := newTestDB(t)

		stats, err := db.EnsureStats(ctx, now)
		if err != nil {
			t.Fatalf("EnsureStats() error = %v", err)
		}

		stats.Level = "Bronze I"
		stats.MonthStreak = 3
		stats.StationsThisMonth = 5
		stats.PriceClassStats = map[int]station.TierStat{
			1: {Collected: 2, Total: 10},
		}
		stats.MainStationStats = station.TierStat{Collected: 1, Total: 4}

		if err := db.SaveStats(ctx, stats); err != nil {
			t.Fatalf("SaveStats() error = %v", err)
		}

		got, err := db.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats() error = %v", err)
		}
		if got.Level != "Bronze I" {
			t.Errorf("Level = %q, want %q", got.Level, "Bronze I")
		}
		if got.MonthStreak != 3 {
			t.Errorf("MonthStreak = %d, want 3", got.MonthStreak)
		}
		if got.StationsThisMonth != 5 {
			t.Errorf("StationsThisMonth = %d, want 5", got.StationsThisMonth)
		}
		if got.PriceClassStats[1].Collected != 2 {
			t.Errorf("PriceClassStats[1].Collected = %d, want 2", got.PriceClassStats[1].Collected)
		}
		if got.MainStationStats.Total != 4 {
			t.Errorf("MainStationStats.Total = %d, want 4", got.MainStationStats.Total)
		}
	})

	t.Run("CompleteFirstLaunch clears the flag", func(t *testing.T) {
		db := newTestDB(t)

		if _, err := db.EnsureStats(ctx, now); err != nil {
			t.Fatalf("EnsureStats() error = %v", err)
		}
		if err := db.CompleteFirstLaunch(ctx); err != nil {
			t.Fatalf("CompleteFirstLaunch() error = %v", err)
		}

		stats, err := db.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats() error = %v", err)
		}
		if stats.FirstLaunch {
			t.Error("FirstLaunch = true after CompleteFirstLaunch, want false")
		}
	})
}
