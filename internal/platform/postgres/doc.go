// Package postgres archives finished tasks in PostgreSQL. Live task state stays
// in memory; this package only records a summary row per task that reached a
// terminal status, for later inspection. The schema is managed with goose
// migrations embedded in the binary.
package postgres
