// Package history persists finished-job records to a local SQLite
// database so the CLI and the UI can show what ran before.
package history
