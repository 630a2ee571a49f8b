// Package sqlite provides the registration persistence adapter backed by
// SQLite. It owns the schema, the idempotent column migrations, and the
// one-time legacy flat-file import.
package sqlite
