package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"bahnhofjaeger/internal/catalog"
	"bahnhofjaeger/internal/config"
	"bahnhofjaeger/internal/database"
	"bahnhofjaeger/internal/export"
	"bahnhofjaeger/internal/search"
	"bahnhofjaeger/internal/station"
	"bahnhofjaeger/internal/telemetry"
)

// App is the application layer between the CLI and the station service.
// It constructs all dependencies from config, exposes high-level operations,
// and manages the DB lifecycle on Close.
type App struct {
	cfg      *config.Config
	opener   *database.Opener
	db       *database.SQLiteDatabase
	service  *station.Service
	importer *catalog.Importer
	exporter *export.Exporter
	logger   station.Logger
	logFile  *os.File
}

// NewApp creates a fully wired App from the given config.
// The caller must call Close when done.
func NewApp(cfg *config.Config) (*App, error) {
	runID := time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, runID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	opener := database.NewOpener(cfg.Database.Path)
	db, err := opener.Open()
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}

	var ack station.Acknowledger
	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint != "" {
		ack = telemetry.NewClient(cfg.Telemetry.Endpoint, cfg.DeviceID)
	}

	clock := station.RealClock{}
	svc := station.NewService(db, search.NewNameRanker(), ack, logger, clock)

	return &App{
		cfg:      cfg,
		opener:   opener,
		db:       db,
		service:  svc,
		importer: catalog.NewImporter(db, logger),
		exporter: export.NewExporter(db, logger, clock),
		logger:   logger,
		logFile:  logFile,
	}, nil
}

// Service returns the wired collection service.
func (a *App) Service() *station.Service { return a.service }

// Logger returns the application logger.
func (a *App) Logger() station.Logger { return a.logger }

// Search ranks the catalog against the query using the configured result limit.
func (a *App) Search(ctx context.Context, query string, limit int) ([]station.SearchResult, error) {
	if limit <= 0 {
		limit = a.cfg.Search.Limit
	}
	return a.service.Search(ctx, query, limit)
}

// Add collects a station by catalog id. The outcome is only meaningful when
// the returned error is nil.
func (a *App) Add(ctx context.Context, stationID string) (station.AddOutcome, *station.Station, error) {
	st, err := a.service.StationByID(ctx, stationID)
	if err != nil {
		return 0, nil, err
	}
	if st == nil {
		return 0, nil, fmt.Errorf("unknown station %s", stationID)
	}

	outcome, err := a.service.Add(ctx, *st)
	return outcome, st, err
}

// Remove uncollects a station by catalog id.
func (a *App) Remove(ctx context.Context, stationID string) (station.RemoveOutcome, error) {
	return a.service.Remove(ctx, stationID)
}

// Collection returns the collection ordered most recent first.
func (a *App) Collection(ctx context.Context) ([]station.CollectionEntry, error) {
	return a.service.SortedCollection(ctx)
}

// Stats returns the full derived stats record.
func (a *App) Stats(ctx context.Context) (*station.Stats, error) {
	return a.service.CollectionStats(ctx)
}

// Export writes a passphrase-encrypted backup of the collection to path.
func (a *App) Export(ctx context.Context, path, passphrase string) error {
	return a.exporter.ExportFile(ctx, path, passphrase)
}

// RestoreBackup replaces the collection with the contents of an encrypted
// backup file. Returns the number of restored entries.
func (a *App) RestoreBackup(ctx context.Context, path, passphrase string) (int, error) {
	return a.exporter.RestoreFile(ctx, path, passphrase)
}

// Close releases the database and the log file.
func (a *App) Close() error {
	var firstErr error

	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
