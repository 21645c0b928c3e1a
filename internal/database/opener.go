package database

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"bahnhofjaeger/internal/database/migrations"
)

// Opener owns the lazily initialized database handle. Concurrent first
// callers converge on a single open + migrate; afterwards everyone shares the
// same connection. It replaces any notion of a package-global connection.
type Opener struct {
	path string

	once sync.Once
	db   *SQLiteDatabase
	err  error
}

func NewOpener(path string) *Opener {
	return &Opener{path: path}
}

// Open returns the shared database handle, opening the connection and
// bringing the schema up to date exactly once.
func (o *Opener) Open() (*SQLiteDatabase, error) {
	o.once.Do(func() {
		if o.path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(o.path), 0755); err != nil {
				o.err = fmt.Errorf("creating database directory: %w", err)
				return
			}
		}

		db, err := NewSQLiteDatabase(o.path)
		if err != nil {
			o.err = err
			return
		}

		if err := migrations.MigrateUp(db.db.DB); err != nil {
			db.Close()
			o.err = fmt.Errorf("migrating database: %w", err)
			return
		}

		o.db = db
	})
	return o.db, o.err
}

// Path returns the configured database file path.
func (o *Opener) Path() string { return o.path }
