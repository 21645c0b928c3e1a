package database

import _ "embed"

// Schema is the full up-to-date schema, taken from the initial migration.
// Tests apply it directly to in-memory databases instead of running the
// migration machinery.
//
//go:embed migrations/files/000001_initial.up.sql
var Schema string
