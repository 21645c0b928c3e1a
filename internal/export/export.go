// Package export implements passphrase-encrypted collection backups. The
// backup payload is a JSON envelope of collection entries, encrypted with
// age's scrypt-based passphrase encryption so a single passphrase is the only
// thing the user has to keep.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"filippo.io/age"

	"bahnhofjaeger/internal/station"
)

// envelopeVersion guards against future format changes.
const envelopeVersion = 1

// Envelope is the plaintext backup payload.
type Envelope struct {
	Version    int                       `json:"version"`
	ExportedAt int64                     `json:"exportedAt"` // unix millis
	Entries    []station.CollectionEntry `json:"entries"`
}

// Exporter writes and restores encrypted collection backups.
type Exporter struct {
	db     station.Database
	logger station.Logger
	clock  station.Clock
}

func NewExporter(db station.Database, logger station.Logger, clock station.Clock) *Exporter {
	if logger == nil {
		logger = station.NopLogger{}
	}
	return &Exporter{db: db, logger: logger, clock: clock}
}

// Export writes the encrypted collection to w.
func (e *Exporter) Export(ctx context.Context, w io.Writer, passphrase string) error {
	entries, err := e.db.SortedCollection(ctx)
	if err != nil {
		return fmt.Errorf("loading collection for export: %w", err)
	}

	env := Envelope{
		Version:    envelopeVersion,
		ExportedAt: e.clock.Now().UnixMilli(),
		Entries:    entries,
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}

	encWriter, err := age.Encrypt(w, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}

	if err := json.NewEncoder(encWriter).Encode(env); err != nil {
		return fmt.Errorf("writing backup payload: %w", err)
	}

	if err := encWriter.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}

	e.logger.Info("collection exported", "entries", len(env.Entries))
	return nil
}

// ExportFile writes the encrypted collection to the given path.
func (e *Exporter) ExportFile(ctx context.Context, path, passphrase string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating backup file: %w", err)
	}
	defer f.Close()

	if err := e.Export(ctx, f, passphrase); err != nil {
		return err
	}
	return f.Close()
}

// Restore decrypts a backup from r and replaces the collection with its
// entries. The cached stats totals are recomputed from the restored entries.
func (e *Exporter) Restore(ctx context.Context, r io.Reader, passphrase string) (int, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return 0, fmt.Errorf("creating scrypt identity: %w", err)
	}

	decReader, err := age.Decrypt(r, identity)
	if err != nil {
		return 0, fmt.Errorf("decrypting backup: %w", err)
	}

	var env Envelope
	if err := json.NewDecoder(decReader).Decode(&env); err != nil {
		return 0, fmt.Errorf("reading backup payload: %w", err)
	}
	if env.Version != envelopeVersion {
		return 0, fmt.Errorf("unsupported backup version %d", env.Version)
	}

	restored, err := e.db.RestoreCollection(ctx, env.Entries, e.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("restoring collection: %w", err)
	}

	e.logger.Info("collection restored", "entries", restored)
	return restored, nil
}

// RestoreFile decrypts a backup file and replaces the collection.
func (e *Exporter) RestoreFile(ctx context.Context, path, passphrase string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening backup file: %w", err)
	}
	defer f.Close()

	return e.Restore(ctx, f, passphrase)
}
