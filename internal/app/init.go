package app

import (
	"context"
	"fmt"
	"time"

	"bahnhofjaeger/internal/database"
)

// InitState describes where app initialization currently stands.
type InitState int

const (
	// Uninitialized: the catalog has never been imported.
	Uninitialized InitState = iota
	// Importing: the dataset import is in flight.
	Importing
	// Ready: the catalog is populated and the app is usable.
	Ready
	// InitError: the last initialization attempt failed. Any previously
	// imported catalog is untouched and remains usable.
	InitError
)

func (s InitState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Importing:
		return "importing"
	case Ready:
		return "ready"
	case InitError:
		return "error"
	default:
		return fmt.Sprintf("InitState(%d)", int(s))
	}
}

// InitResult reports the outcome of Initialize.
type InitResult struct {
	State    InitState
	Imported int  // stations imported in this run, 0 when skipped
	FirstRun bool // true when this run performed the first-launch import
	Err      error
}

// State returns the current initialization state without changing anything.
func (a *App) State(ctx context.Context) (InitState, error) {
	count, err := a.db.CountStations(ctx)
	if err != nil {
		return InitError, fmt.Errorf("checking catalog: %w", err)
	}
	if count == 0 {
		return Uninitialized, nil
	}
	return Ready, nil
}

// Initialize drives the startup sequence: when the catalog is empty (first
// launch, or a reset), the dataset is imported from the configured path or
// URL and the first-launch flag cleared. A populated catalog short-circuits
// to Ready. Import failure leaves any existing catalog untouched.
func (a *App) Initialize(ctx context.Context) InitResult {
	state, err := a.State(ctx)
	if err != nil {
		return InitResult{State: InitError, Err: err}
	}
	if state == Ready {
		return InitResult{State: Ready}
	}

	a.logger.Info("initialization started", "state", Importing.String())

	count, err := a.importDataset(ctx)
	if err != nil {
		a.logger.Error("initialization failed", "error", err)
		return InitResult{State: InitError, Err: err}
	}

	if _, err := a.db.EnsureStats(ctx, time.Now()); err != nil {
		return InitResult{State: InitError, Err: fmt.Errorf("initializing stats: %w", err)}
	}
	if err := a.db.CompleteFirstLaunch(ctx); err != nil {
		return InitResult{State: InitError, Err: fmt.Errorf("clearing first-launch flag: %w", err)}
	}

	a.logger.Info("initialization complete", "stations", count)
	return InitResult{State: Ready, Imported: count, FirstRun: true}
}

// Reimport refreshes the catalog from the configured dataset regardless of
// current state. Collection entries are untouched; their snapshots keep the
// station data from collection time.
func (a *App) Reimport(ctx context.Context) (int, error) {
	return a.importDataset(ctx)
}

func (a *App) importDataset(ctx context.Context) (int, error) {
	if path := a.cfg.Dataset.Path; path != "" {
		if count, err := a.importer.ImportFile(ctx, path); err == nil {
			return count, nil
		} else if a.cfg.Dataset.URL == "" {
			return 0, err
		} else {
			a.logger.Warn("dataset file import failed, falling back to url", "path", path, "error", err)
		}
	}

	if url := a.cfg.Dataset.URL; url != "" {
		return a.importer.ImportURL(ctx, url)
	}

	return 0, fmt.Errorf("no dataset source configured")
}

// ResetDatabase closes the database and deletes its files. The next App
// start recreates an empty database and runs the first-launch import again.
func (a *App) ResetDatabase() error {
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("closing database before reset: %w", err)
	}
	if err := database.Destroy(a.opener.Path()); err != nil {
		return fmt.Errorf("deleting database: %w", err)
	}
	a.logger.Info("database reset", "path", a.opener.Path())
	return nil
}
