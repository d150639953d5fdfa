//go:build integration

// Package testdb provides utilities specifically for database testing.
//
// Tests open the database named by FIRMGEN_TEST_DATABASE_URL and run each case
// inside a transaction that is rolled back afterwards, so cases stay isolated
// and can run in parallel:
//
//	db := testdb.Open(t)
//	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
//		archive := postgres.NewTaskArchive(tx, logger)
//		...
//	})
package testdb

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	// registers the "pgx" database/sql driver
	_ "github.com/jackc/pgx/v5/stdlib"
)

// EnvDatabaseURL names the variable holding the integration database URL.
const EnvDatabaseURL = "FIRMGEN_TEST_DATABASE_URL"

// URL returns the integration database URL, or "" when none is configured.
func URL() string {
	return os.Getenv(EnvDatabaseURL)
}

// isCIEnvironment returns true if running in any type of CI environment.
func isCIEnvironment() bool {
	for _, envVar := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "CIRCLECI"} {
		if os.Getenv(envVar) != "" {
			return true
		}
	}
	return false
}

// Open connects to the integration database. Without a configured URL the
// test is skipped locally and fails in CI, where a database is expected.
// The pool is closed when the test finishes.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := URL()
	if dbURL == "" {
		if isCIEnvironment() {
			t.Fatalf("%s must be set in CI", EnvDatabaseURL)
		}
		t.Skipf("%s not set", EnvDatabaseURL)
	}

	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("test database unreachable: %v", err)
	}
	return db
}

// WithTx runs fn inside a transaction that is always rolled back, even when
// fn panics.
func WithTx(t *testing.T, db *sql.DB, fn func(t *testing.T, tx *sql.Tx)) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("failed to begin transaction: %v", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			t.Logf("failed to roll back test transaction: %v", err)
		}
	}()

	fn(t, tx)
}
