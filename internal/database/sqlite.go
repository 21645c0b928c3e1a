package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"bahnhofjaeger/internal/station"
)

// statsKey is the fixed key of the single stats row.
const statsKey = "collection-stats"

// SQLiteDatabase implements the station.Database interface using SQLite.
type SQLiteDatabase struct {
	db   *sqlx.DB
	path string
}

// NewSQLiteDatabase creates a new SQLite database connection.
// path can be a file path or ":memory:" for in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sqlx.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db, path: ""}
}

// OpenConnection opens and configures a SQLite database connection with
// appropriate PRAGMAs. path can be a file path or ":memory:".
func OpenConnection(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Wait for locks instead of failing immediately; a stray second caller
	// must never corrupt data.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// withTx runs fn inside a transaction. The transaction commits only when fn
// returns nil; any error rolls back every write.
func (s *SQLiteDatabase) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Catalog operations

// ReplaceCatalog clears the stations table and inserts the new set, all in
// one transaction. A failure leaves the previous catalog in place.
func (s *SQLiteDatabase) ReplaceCatalog(ctx context.Context, stations []station.Station) (int, error) {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM stations"); err != nil {
			return fmt.Errorf("clearing catalog: %w", err)
		}

		stmt, err := tx.PrepareNamedContext(ctx, `
			INSERT INTO stations (
				id, name, price_class, point_value, state,
				station_number, eva_number, price_small, price_large,
				longitude, latitude, city, zipcode, street, verbund,
				operator_short, operator_name, product_line, segment,
				has_parking, has_wifi, has_db_lounge, is_main_station
			) VALUES (
				:id, :name, :price_class, :point_value, :state,
				:station_number, :eva_number, :price_small, :price_large,
				:longitude, :latitude, :city, :zipcode, :street, :verbund,
				:operator_short, :operator_name, :product_line, :segment,
				:has_parking, :has_wifi, :has_db_lounge, :is_main_station
			)`)
		if err != nil {
			return fmt.Errorf("preparing catalog insert: %w", err)
		}
		defer stmt.Close()

		for i := range stations {
			if _, err := stmt.ExecContext(ctx, &stations[i]); err != nil {
				return fmt.Errorf("inserting station %s: %w", stations[i].ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(stations), nil
}

func (s *SQLiteDatabase) AllStations(ctx context.Context) ([]station.Station, error) {
	var stations []station.Station
	if err := s.db.SelectContext(ctx, &stations, "SELECT * FROM stations"); err != nil {
		return nil, fmt.Errorf("listing stations: %w", err)
	}
	return stations, nil
}

func (s *SQLiteDatabase) FindStationByID(ctx context.Context, id string) (*station.Station, error) {
	var st station.Station
	err := s.db.GetContext(ctx, &st, "SELECT * FROM stations WHERE id = ?", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding station by id: %w", err)
	}
	return &st, nil
}

func (s *SQLiteDatabase) CountStations(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM stations"); err != nil {
		return 0, fmt.Errorf("counting stations: %w", err)
	}
	return count, nil
}

// Collection operations

// AddToCollection inserts the entry and bumps the stats totals in a single
// transaction. Returns false when an entry for the station already exists.
func (s *SQLiteDatabase) AddToCollection(ctx context.Context, entry station.CollectionEntry) (bool, error) {
	added := false
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var exists int
		err := tx.GetContext(ctx, &exists,
			"SELECT COUNT(*) FROM collection WHERE station_id = ?", entry.StationID)
		if err != nil {
			return fmt.Errorf("checking for existing entry: %w", err)
		}
		if exists > 0 {
			return nil // already collected; soft outcome
		}

		snapshot, err := json.Marshal(entry.Station)
		if err != nil {
			return fmt.Errorf("encoding station snapshot: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO collection (station_id, timestamp, station) VALUES (?, ?, ?)",
			entry.StationID, entry.Timestamp.UnixMilli(), string(snapshot))
		if err != nil {
			// A concurrent add can commit between the existence check and
			// this insert; the loser reports the same soft outcome.
			if isUniqueConstraint(err) {
				return nil
			}
			return fmt.Errorf("inserting entry: %w", err)
		}

		if err := ensureStatsRow(ctx, tx, entry.Timestamp); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE stats
			SET total_stations = total_stations + 1,
			    total_points = total_points + ?,
			    last_updated = ?
			WHERE key = ?`,
			entry.Station.PointValue, entry.Timestamp.UnixMilli(), statsKey)
		if err != nil {
			return fmt.Errorf("updating stats totals: %w", err)
		}

		added = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return added, nil
}

// isUniqueConstraint reports whether err is a SQLite primary-key or unique
// constraint violation.
func isUniqueConstraint(err error) bool {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		serr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// RemoveFromCollection deletes the entry and decrements the stats totals by
// the snapshot's point value in a single transaction. Returns nil when no
// entry exists for the id.
func (s *SQLiteDatabase) RemoveFromCollection(ctx context.Context, stationID string, now time.Time) (*station.CollectionEntry, error) {
	var removed *station.CollectionEntry
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var row collectionRow
		err := tx.GetContext(ctx, &row,
			"SELECT station_id, timestamp, station FROM collection WHERE station_id = ?", stationID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil // not collected; soft outcome
		}
		if err != nil {
			return fmt.Errorf("loading entry: %w", err)
		}

		entry, err := row.toEntry()
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM collection WHERE station_id = ?", stationID); err != nil {
			return fmt.Errorf("deleting entry: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE stats
			SET total_stations = total_stations - 1,
			    total_points = total_points - ?,
			    last_updated = ?
			WHERE key = ?`,
			entry.Station.PointValue, now.UnixMilli(), statsKey)
		if err != nil {
			return fmt.Errorf("updating stats totals: %w", err)
		}

		removed = &entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (s *SQLiteDatabase) Collection(ctx context.Context) ([]station.CollectionEntry, error) {
	return s.selectEntries(ctx, "SELECT station_id, timestamp, station FROM collection")
}

// SortedCollection returns entries ordered by timestamp descending, with the
// station id as a deterministic tie-break.
func (s *SQLiteDatabase) SortedCollection(ctx context.Context) ([]station.CollectionEntry, error) {
	return s.selectEntries(ctx,
		"SELECT station_id, timestamp, station FROM collection ORDER BY timestamp DESC, station_id ASC")
}

func (s *SQLiteDatabase) selectEntries(ctx context.Context, query string) ([]station.CollectionEntry, error) {
	var rows []collectionRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("listing collection: %w", err)
	}

	entries := make([]station.CollectionEntry, 0, len(rows))
	for i := range rows {
		entry, err := rows[i].toEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *SQLiteDatabase) HasEntry(ctx context.Context, stationID string) (bool, error) {
	var exists int
	err := s.db.GetContext(ctx, &exists,
		"SELECT COUNT(*) FROM collection WHERE station_id = ?", stationID)
	if err != nil {
		return false, fmt.Errorf("checking entry: %w", err)
	}
	return exists > 0, nil
}

// RestoreCollection replaces the whole collection and recomputes the cached
// totals from the restored entries, all in one transaction.
func (s *SQLiteDatabase) RestoreCollection(ctx context.Context, entries []station.CollectionEntry, now time.Time) (int, error) {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM collection"); err != nil {
			return fmt.Errorf("clearing collection: %w", err)
		}

		totalPoints := 0
		for _, entry := range entries {
			snapshot, err := json.Marshal(entry.Station)
			if err != nil {
				return fmt.Errorf("encoding station snapshot: %w", err)
			}
			_, err = tx.ExecContext(ctx,
				"INSERT INTO collection (station_id, timestamp, station) VALUES (?, ?, ?)",
				entry.StationID, entry.Timestamp.UnixMilli(), string(snapshot))
			if err != nil {
				return fmt.Errorf("restoring entry %s: %w", entry.StationID, err)
			}
			totalPoints += entry.Station.PointValue
		}

		if err := ensureStatsRow(ctx, tx, now); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			UPDATE stats
			SET total_stations = ?, total_points = ?, last_updated = ?
			WHERE key = ?`,
			len(entries), totalPoints, now.UnixMilli(), statsKey)
		if err != nil {
			return fmt.Errorf("updating stats totals: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Stats row operations

// EnsureStats creates the default stats row if it does not exist yet and
// returns the current row.
func (s *SQLiteDatabase) EnsureStats(ctx context.Context, now time.Time) (*station.Stats, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO stats (key, total_points, total_stations, last_updated, first_launch, derived)
		VALUES (?, 0, 0, ?, 1, '{}')`,
		statsKey, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("initializing stats row: %w", err)
	}
	return s.Stats(ctx)
}

// Stats returns the cached stats row, or nil when none exists yet.
func (s *SQLiteDatabase) Stats(ctx context.Context) (*station.Stats, error) {
	var row statsRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM stats WHERE key = ?", statsKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("loading stats: %w", err)
	}
	return row.toStats()
}

// SaveStats writes the full record back, including the derived snapshot.
func (s *SQLiteDatabase) SaveStats(ctx context.Context, stats *station.Stats) error {
	derived, err := json.Marshal(derivedStats{
		PriceClassStats:   stats.PriceClassStats,
		MainStationStats:  stats.MainStationStats,
		StationsThisMonth: stats.StationsThisMonth,
		Level:             stats.Level,
		MonthStreak:       stats.MonthStreak,
	})
	if err != nil {
		return fmt.Errorf("encoding derived stats: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO stats (key, total_points, total_stations, last_updated, first_launch, derived)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			total_points = excluded.total_points,
			total_stations = excluded.total_stations,
			last_updated = excluded.last_updated,
			first_launch = excluded.first_launch,
			derived = excluded.derived`,
		statsKey, stats.TotalPoints, stats.TotalStations,
		stats.LastUpdated.UnixMilli(), stats.FirstLaunch, string(derived))
	if err != nil {
		return fmt.Errorf("saving stats: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) CompleteFirstLaunch(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE stats SET first_launch = 0 WHERE key = ?", statsKey)
	if err != nil {
		return fmt.Errorf("clearing first-launch flag: %w", err)
	}
	return nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ensureStatsRow makes sure the stats row exists inside a mutation
// transaction, so increments never silently update zero rows.
func ensureStatsRow(ctx context.Context, tx *sqlx.Tx, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO stats (key, total_points, total_stations, last_updated, first_launch, derived)
		VALUES (?, 0, 0, ?, 1, '{}')`,
		statsKey, now.UnixMilli())
	if err != nil {
		return fmt.Errorf("initializing stats row: %w", err)
	}
	return nil
}

// collectionRow is the raw collection table shape; the station snapshot is
// stored as JSON.
type collectionRow struct {
	StationID string `db:"station_id"`
	Timestamp int64  `db:"timestamp"`
	Station   string `db:"station"`
}

func (r *collectionRow) toEntry() (station.CollectionEntry, error) {
	var st station.Station
	if err := json.Unmarshal([]byte(r.Station), &st); err != nil {
		return station.CollectionEntry{}, fmt.Errorf("decoding station snapshot for %s: %w", r.StationID, err)
	}
	return station.CollectionEntry{
		StationID: r.StationID,
		Timestamp: time.UnixMilli(r.Timestamp),
		Station:   st,
	}, nil
}

// statsRow is the raw stats table shape.
type statsRow struct {
	Key           string `db:"key"`
	TotalPoints   int    `db:"total_points"`
	TotalStations int    `db:"total_stations"`
	LastUpdated   int64  `db:"last_updated"`
	FirstLaunch   bool   `db:"first_launch"`
	Derived       string `db:"derived"`
}

// derivedStats is the read-time aggregation snapshot cached alongside the
// transactional totals.
type derivedStats struct {
	PriceClassStats   map[int]station.TierStat `json:"priceClassStats,omitempty"`
	MainStationStats  station.TierStat         `json:"mainStationStats"`
	StationsThisMonth int                      `json:"stationsThisMonth"`
	Level             string                   `json:"level,omitempty"`
	MonthStreak       int                      `json:"monthStreak"`
}

func (r *statsRow) toStats() (*station.Stats, error) {
	var derived derivedStats
	if r.Derived != "" {
		if err := json.Unmarshal([]byte(r.Derived), &derived); err != nil {
			return nil, fmt.Errorf("decoding derived stats: %w", err)
		}
	}
	return &station.Stats{
		TotalPoints:       r.TotalPoints,
		TotalStations:     r.TotalStations,
		LastUpdated:       time.UnixMilli(r.LastUpdated),
		FirstLaunch:       r.FirstLaunch,
		PriceClassStats:   derived.PriceClassStats,
		MainStationStats:  derived.MainStationStats,
		StationsThisMonth: derived.StationsThisMonth,
		Level:             derived.Level,
		MonthStreak:       derived.MonthStreak,
	}, nil
}

// Destroy deletes the database files for the given path, including WAL
// sidecars. Used by the destructive reset flow.
func Destroy(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", p, err)
		}
	}
	return nil
}

// Compile-time check that SQLiteDatabase implements station.Database
var _ station.Database = (*SQLiteDatabase)(nil)
