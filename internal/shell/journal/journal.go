// Package journal records deployment runs in a SQLite database.
// This is part of the Imperative Shell - it persists run history for the
// history command and never influences a run.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// Types
// =============================================================================

// RunStatus is the outcome of a run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
)

// Run is one invocation of the deploy command.
type Run struct {
	ID           string
	Functions    []string
	Environments []string
	StartedAt    time.Time
	FinishedAt   *time.Time
	Status       RunStatus
	Error        string
}

// Deployment is one function deployed to one environment during a run.
type Deployment struct {
	RunID        string
	Environment  string
	FunctionName string
	RemoteName   string
	ZipSize      int64
	FunctionArn  string
	DeployedAt   time.Time
}

// =============================================================================
// Journal
// =============================================================================

// Journal stores runs and deployments in SQLite.
type Journal struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// Open opens the journal at dsn and runs migrations. Use ":memory:" for an
// ephemeral journal.
func Open(dsn string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sqlx.Open("sqlite3", withForeignKeys(dsn))
	if err != nil {
		return nil, NewJournalError("Open", "", "", fmt.Errorf("%w: %w", ErrConnectionFailed, err))
	}
	// A single connection keeps ":memory:" databases shared across calls and
	// serializes writers from concurrent deployments.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewJournalError("Open", "", "ping", fmt.Errorf("%w: %w", ErrConnectionFailed, err))
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewJournalError("Open", "", "", fmt.Errorf("%w: %w", ErrMigrationFailed, err))
	}

	return &Journal{db: db, logger: logger.With("component", "journal")}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// =============================================================================
// Run Operations
// =============================================================================

// runRow represents a run row in the database.
type runRow struct {
	ID           string  `db:"id"`
	Functions    string  `db:"functions"`
	Environments string  `db:"environments"`
	StartedAt    string  `db:"started_at"`
	FinishedAt   *string `db:"finished_at"`
	Status       string  `db:"status"`
	Error        string  `db:"error"`
}

// BeginRun records the start of a run with status running.
func (j *Journal) BeginRun(ctx context.Context, run *Run) error {
	functionsJSON, err := json.Marshal(nonNil(run.Functions))
	if err != nil {
		return NewJournalError("BeginRun", run.ID, "encode functions", fmt.Errorf("%w: %w", ErrInvalidData, err))
	}
	environmentsJSON, err := json.Marshal(nonNil(run.Environments))
	if err != nil {
		return NewJournalError("BeginRun", run.ID, "encode environments", fmt.Errorf("%w: %w", ErrInvalidData, err))
	}

	if run.Status == "" {
		run.Status = StatusRunning
	}

	query := `
		INSERT INTO runs (id, functions, environments, started_at, status, error)
		VALUES (:id, :functions, :environments, :started_at, :status, :error)`

	row := map[string]any{
		"id":           run.ID,
		"functions":    string(functionsJSON),
		"environments": string(environmentsJSON),
		"started_at":   run.StartedAt.UTC().Format(time.RFC3339Nano),
		"status":       string(run.Status),
		"error":        run.Error,
	}

	if _, err := j.db.NamedExecContext(ctx, query, row); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: runs.id") {
			return NewJournalError("BeginRun", run.ID, "", ErrDuplicateID)
		}
		return NewJournalError("BeginRun", run.ID, "", err)
	}

	j.logger.Debug("run recorded", "run_id", run.ID)
	return nil
}

// FinishRun marks a run succeeded, or failed with runErr's message.
func (j *Journal) FinishRun(ctx context.Context, id string, finishedAt time.Time, runErr error) error {
	status, message := StatusSucceeded, ""
	if runErr != nil {
		status, message = StatusFailed, runErr.Error()
	}

	query := `UPDATE runs SET finished_at = ?, status = ?, error = ? WHERE id = ?`
	result, err := j.db.ExecContext(ctx, query, finishedAt.UTC().Format(time.RFC3339Nano), string(status), message, id)
	if err != nil {
		return NewJournalError("FinishRun", id, "", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return NewJournalError("FinishRun", id, "", err)
	}
	if rows == 0 {
		return NewJournalError("FinishRun", id, "", ErrNotFound)
	}

	return nil
}

// GetRun returns one run.
func (j *Journal) GetRun(ctx context.Context, id string) (*Run, error) {
	var row runRow
	if err := j.db.GetContext(ctx, &row, `SELECT * FROM runs WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewJournalError("GetRun", id, "", ErrNotFound)
		}
		return nil, NewJournalError("GetRun", id, "", err)
	}
	return rowToRun(&row)
}

// ListRuns returns the most recent runs first. A limit below one returns
// every run.
func (j *Journal) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit < 1 {
		limit = -1
	}

	var rows []runRow
	query := `SELECT * FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`
	if err := j.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, NewJournalError("ListRuns", "", "", err)
	}

	runs := make([]Run, 0, len(rows))
	for i := range rows {
		run, err := rowToRun(&rows[i])
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

func rowToRun(row *runRow) (*Run, error) {
	run := &Run{
		ID:     row.ID,
		Status: RunStatus(row.Status),
		Error:  row.Error,
	}

	if err := json.Unmarshal([]byte(row.Functions), &run.Functions); err != nil {
		return nil, NewJournalError("ReadRun", row.ID, "decode functions", fmt.Errorf("%w: %w", ErrInvalidData, err))
	}
	if err := json.Unmarshal([]byte(row.Environments), &run.Environments); err != nil {
		return nil, NewJournalError("ReadRun", row.ID, "decode environments", fmt.Errorf("%w: %w", ErrInvalidData, err))
	}

	startedAt, err := time.Parse(time.RFC3339Nano, row.StartedAt)
	if err != nil {
		return nil, NewJournalError("ReadRun", row.ID, "decode started_at", fmt.Errorf("%w: %w", ErrInvalidData, err))
	}
	run.StartedAt = startedAt

	if row.FinishedAt != nil {
		finishedAt, err := time.Parse(time.RFC3339Nano, *row.FinishedAt)
		if err != nil {
			return nil, NewJournalError("ReadRun", row.ID, "decode finished_at", fmt.Errorf("%w: %w", ErrInvalidData, err))
		}
		run.FinishedAt = &finishedAt
	}

	return run, nil
}

// =============================================================================
// Deployment Operations
// =============================================================================

// deploymentRow represents a deployment row in the database.
type deploymentRow struct {
	ID           int64  `db:"id"`
	RunID        string `db:"run_id"`
	Environment  string `db:"environment"`
	FunctionName string `db:"function_name"`
	RemoteName   string `db:"remote_name"`
	ZipSize      int64  `db:"zip_size"`
	FunctionArn  string `db:"function_arn"`
	DeployedAt   string `db:"deployed_at"`
}

// RecordDeployment appends a deployment to its run.
func (j *Journal) RecordDeployment(ctx context.Context, d *Deployment) error {
	query := `
		INSERT INTO deployments (
			run_id, environment, function_name, remote_name, zip_size, function_arn, deployed_at
		) VALUES (
			:run_id, :environment, :function_name, :remote_name, :zip_size, :function_arn, :deployed_at
		)`

	row := map[string]any{
		"run_id":        d.RunID,
		"environment":   d.Environment,
		"function_name": d.FunctionName,
		"remote_name":   d.RemoteName,
		"zip_size":      d.ZipSize,
		"function_arn":  d.FunctionArn,
		"deployed_at":   d.DeployedAt.UTC().Format(time.RFC3339Nano),
	}

	if _, err := j.db.NamedExecContext(ctx, query, row); err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return NewJournalError("RecordDeployment", d.RunID, "deployment "+d.RemoteName, ErrNotFound)
		}
		return NewJournalError("RecordDeployment", d.RunID, "deployment "+d.RemoteName, err)
	}
	return nil
}

// ListDeployments returns the deployments of a run in the order they
// completed.
func (j *Journal) ListDeployments(ctx context.Context, runID string) ([]Deployment, error) {
	var rows []deploymentRow
	query := `SELECT * FROM deployments WHERE run_id = ? ORDER BY id ASC`
	if err := j.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, NewJournalError("ListDeployments", runID, "", err)
	}

	deployments := make([]Deployment, 0, len(rows))
	for _, row := range rows {
		deployedAt, err := time.Parse(time.RFC3339Nano, row.DeployedAt)
		if err != nil {
			return nil, NewJournalError("ListDeployments", runID, "decode deployed_at", fmt.Errorf("%w: %w", ErrInvalidData, err))
		}
		deployments = append(deployments, Deployment{
			RunID:        row.RunID,
			Environment:  row.Environment,
			FunctionName: row.FunctionName,
			RemoteName:   row.RemoteName,
			ZipSize:      row.ZipSize,
			FunctionArn:  row.FunctionArn,
			DeployedAt:   deployedAt,
		})
	}
	return deployments, nil
}

// withForeignKeys adds the pragma that enforces deployments.run_id to dsn,
// keeping any query the caller already set.
func withForeignKeys(dsn string) string {
	const pragma = "_foreign_keys=on"
	if strings.Contains(dsn, "?") {
		return dsn + "&" + pragma
	}
	return dsn + "?" + pragma
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
