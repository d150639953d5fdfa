package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	// registers the "pgx" database/sql driver
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/phrazzld/firmgen/internal/platform/logger"
	"github.com/phrazzld/firmgen/internal/task"
)

// DBTX is implemented by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Record is the archived summary of one finished task.
type Record struct {
	TaskID       string            `json:"task_id"`
	Status       task.TaskStatus   `json:"status"`
	Instruction  string            `json:"instruction"`
	SpecDoc      string            `json:"spec_doc,omitempty"`
	DiagramDoc   string            `json:"diagram_doc,omitempty"`
	OutputPath   string            `json:"output_path"`
	CodeLines    int               `json:"code_lines"`
	CodeSize     int               `json:"code_size"`
	ErrorKind    string            `json:"error_kind,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	FailedStep   int               `json:"failed_step,omitempty"`
	Attempts     int               `json:"attempts,omitempty"`
	StepTimings  []task.StepTiming `json:"step_timings"`
	ClientIP     string            `json:"client_ip,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	DurationMS   int64             `json:"duration_ms"`
}

// RecordFromTask summarizes a terminal task. It fails for tasks still pending or
// processing.
func RecordFromTask(t task.Task) (Record, error) {
	if !t.Status.IsTerminal() {
		return Record{}, fmt.Errorf("%w: task %s is %s", ErrInvalidRecord, t.ID, t.Status)
	}

	r := Record{
		TaskID:      t.ID,
		Status:      t.Status,
		Instruction: t.Params.Instruction,
		SpecDoc:     t.Params.SpecDoc,
		DiagramDoc:  t.Params.DiagramDoc,
		OutputPath:  t.Params.OutputPath,
		ClientIP:    t.Params.Client.IP,
		CreatedAt:   t.CreatedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
		DurationMS:  t.Duration().Milliseconds(),
		StepTimings: []task.StepTiming{},
	}
	if t.Result != nil {
		r.CodeLines = t.Result.CodeLines
		r.CodeSize = t.Result.CodeSize
		r.StepTimings = append(r.StepTimings, t.Result.StepTimings...)
	}
	if t.Error != nil {
		r.ErrorKind = t.Error.Kind
		r.ErrorMessage = t.Error.Message
		r.FailedStep = t.Error.Step
		r.Attempts = t.Error.Attempts
		r.StepTimings = append(r.StepTimings, t.Error.StepTimings...)
	}
	return r, nil
}

// TaskArchive implements task.Archiver on PostgreSQL.
type TaskArchive struct {
	db     DBTX
	closer func() error
	logger *slog.Logger
}

var _ task.Archiver = (*TaskArchive)(nil)

// NewTaskArchive creates an archive over an existing connection. The schema must
// already be migrated.
func NewTaskArchive(db DBTX, logger *slog.Logger) *TaskArchive {
	return &TaskArchive{db: db, closer: func() error { return nil }, logger: logger}
}

// Open connects to databaseURL, verifies the connection and applies migrations.
//
// Parameters:
//   - ctx: Bounds the ping and the migration run
//   - databaseURL: A postgres:// connection URL
//   - logger: Logger for archive and migration events
//
// Returns:
//   - An archive owning the connection pool; call Close when done
//   - An error if the database is unreachable or migrations fail
func Open(ctx context.Context, databaseURL string, logger *slog.Logger) (*TaskArchive, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := Migrate(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("task archive connected")
	return &TaskArchive{db: db, closer: db.Close, logger: logger}, nil
}

// Close releases the connection pool opened by Open.
func (a *TaskArchive) Close() error {
	return a.closer()
}

// Archive writes or replaces the summary row for a terminal task.
func (a *TaskArchive) Archive(ctx context.Context, t task.Task) error {
	log := logger.FromContextOrDefault(ctx, a.logger)

	r, err := RecordFromTask(t)
	if err != nil {
		return err
	}
	timings, err := json.Marshal(r.StepTimings)
	if err != nil {
		return fmt.Errorf("failed to encode step timings: %w", err)
	}

	query := `
		INSERT INTO task_archive (
			task_id, status, instruction, spec_doc, diagram_doc, output_path,
			code_lines, code_size, error_kind, error_message, failed_step, attempts,
			step_timings, client_ip, created_at, started_at, completed_at, duration_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (task_id) DO UPDATE SET
			status = EXCLUDED.status,
			code_lines = EXCLUDED.code_lines,
			code_size = EXCLUDED.code_size,
			error_kind = EXCLUDED.error_kind,
			error_message = EXCLUDED.error_message,
			failed_step = EXCLUDED.failed_step,
			attempts = EXCLUDED.attempts,
			step_timings = EXCLUDED.step_timings,
			completed_at = EXCLUDED.completed_at,
			duration_ms = EXCLUDED.duration_ms,
			archived_at = NOW()
	`

	_, err = a.db.ExecContext(ctx, query,
		r.TaskID, string(r.Status), r.Instruction, r.SpecDoc, r.DiagramDoc, r.OutputPath,
		r.CodeLines, r.CodeSize, r.ErrorKind, r.ErrorMessage, r.FailedStep, r.Attempts,
		string(timings), r.ClientIP, r.CreatedAt, r.StartedAt, r.CompletedAt, r.DurationMS,
	)
	if err != nil {
		log.Error("failed to archive task",
			"task_id", r.TaskID,
			"status", r.Status,
			"error", err)
		return fmt.Errorf("failed to archive task: %w", MapError(err))
	}

	log.Debug("task archived", "task_id", r.TaskID, "status", r.Status)
	return nil
}

const selectRecord = `
	SELECT task_id, status, instruction, spec_doc, diagram_doc, output_path,
		code_lines, code_size, error_kind, error_message, failed_step, attempts,
		step_timings, client_ip, created_at, started_at, completed_at, duration_ms
	FROM task_archive
`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		r       Record
		status  string
		timings []byte
	)
	err := row.Scan(
		&r.TaskID, &status, &r.Instruction, &r.SpecDoc, &r.DiagramDoc, &r.OutputPath,
		&r.CodeLines, &r.CodeSize, &r.ErrorKind, &r.ErrorMessage, &r.FailedStep, &r.Attempts,
		&timings, &r.ClientIP, &r.CreatedAt, &r.StartedAt, &r.CompletedAt, &r.DurationMS,
	)
	if err != nil {
		return Record{}, err
	}
	r.Status = task.TaskStatus(status)
	if err := json.Unmarshal(timings, &r.StepTimings); err != nil {
		return Record{}, fmt.Errorf("failed to decode step timings: %w", err)
	}
	return r, nil
}

// Get returns the archived record for id, or ErrNotFound.
func (a *TaskArchive) Get(ctx context.Context, id string) (Record, error) {
	r, err := scanRecord(a.db.QueryRowContext(ctx, selectRecord+` WHERE task_id = $1`, id))
	if err != nil {
		return Record{}, MapError(err)
	}
	return r, nil
}

// Recent returns up to limit records, most recently completed first. An empty
// status returns both completed and failed tasks.
func (a *TaskArchive) Recent(ctx context.Context, status task.TaskStatus, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := a.db.QueryContext(ctx,
		selectRecord+` WHERE ($1 = '' OR status = $1) ORDER BY completed_at DESC NULLS LAST LIMIT $2`,
		string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive: %w", MapError(err))
	}
	defer func() {
		if err := rows.Close(); err != nil {
			a.logger.Error("failed to close rows", "error", err)
		}
	}()

	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read archive rows: %w", err)
	}
	return records, nil
}
