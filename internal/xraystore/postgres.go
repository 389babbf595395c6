// Package xraystore implements internal/ingest.Store against PostgreSQL:
// one transaction per operation, a compile-time interface assertion, and a
// background-cleanup-free lifecycle since X-Ray's store has no derived
// views to maintain.
package xraystore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/xray-observability/xray/internal/ingest"
)

// PostgresStore implements ingest.Store against a Postgres schema of
// runs, steps, and payloads tables.
type PostgresStore struct {
	conn   *Connection
	logger *slog.Logger
}

// Ensure PostgresStore implements ingest.Store at compile time.
var _ ingest.Store = (*PostgresStore)(nil)

// NewPostgresStore wraps conn as an ingest.Store.
func NewPostgresStore(conn *Connection, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresStore{conn: conn, logger: logger}
}

// Close closes the underlying database connection pool.
func (s *PostgresStore) Close() error {
	return s.conn.Close()
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error

	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

// CreateRun inserts a new row into runs.
func (s *PostgresStore) CreateRun(ctx context.Context, fields ingest.CreateRunFields) error {
	summaryJSON, err := json.Marshal(fields.InputSummary)
	if err != nil {
		return fmt.Errorf("xraystore: marshal input_summary: %w", err)
	}

	metadataJSON, err := json.Marshal(fields.Metadata)
	if err != nil {
		return fmt.Errorf("xraystore: marshal metadata: %w", err)
	}

	const query = `
		INSERT INTO runs (id, pipeline_name, status, started_at, input_summary, metadata, request_id, user_id, environment)
		VALUES ($1, $2, 'running', $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''))`

	_, err = s.conn.ExecContext(ctx, query,
		fields.ID, fields.PipelineName, fields.StartedAt, summaryJSON, metadataJSON,
		fields.RequestID, fields.UserID, fields.Environment,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ingest.ErrRunAlreadyExists
		}

		return fmt.Errorf("xraystore: create run: %w", err)
	}

	return nil
}

// EndRun updates an existing run row and returns its record.
func (s *PostgresStore) EndRun(
	ctx context.Context,
	id, status string,
	endedAt time.Time,
	outputSummary map[string]any,
	errMsg string,
) (*ingest.RunRecord, error) {
	summaryJSON, err := json.Marshal(outputSummary)
	if err != nil {
		return nil, fmt.Errorf("xraystore: marshal output_summary: %w", err)
	}

	const query = `
		UPDATE runs
		SET status = $2, ended_at = $3, output_summary = $4, error_message = NULLIF($5, '')
		WHERE id = $1
		RETURNING id, status`

	record := &ingest.RunRecord{}

	err = s.conn.QueryRowContext(ctx, query, id, status, endedAt, summaryJSON, errMsg).
		Scan(&record.ID, &record.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ingest.ErrRunNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("xraystore: end run: %w", err)
	}

	return record, nil
}

// CreateStep inserts a new row into steps.
func (s *PostgresStore) CreateStep(
	ctx context.Context,
	id, runID, stepName, stepType string,
	index int,
	startedAt time.Time,
	inputSummary map[string]any,
	inputCount *int,
	metadata map[string]any,
) error {
	summaryJSON, err := json.Marshal(inputSummary)
	if err != nil {
		return fmt.Errorf("xraystore: marshal input_summary: %w", err)
	}

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("xraystore: marshal metadata: %w", err)
	}

	const query = `
		INSERT INTO steps (id, run_id, step_name, step_type, index, status, started_at, input_summary, input_count, metadata)
		VALUES ($1, $2, $3, $4, $5, 'running', $6, $7, $8, $9)`

	_, err = s.conn.ExecContext(ctx, query, id, runID, stepName, stepType, index, startedAt, summaryJSON, inputCount, metadataJSON)
	if err != nil {
		if isUniqueViolation(err) {
			return ingest.ErrStepAlreadyExists
		}

		return fmt.Errorf("xraystore: create step: %w", err)
	}

	return nil
}

// EndStep updates an existing step row and returns its record, with RunID
// read back from the row rather than trusted from the caller.
func (s *PostgresStore) EndStep(
	ctx context.Context,
	id, status string,
	endedAt time.Time,
	durationMS *int64,
	outputSummary map[string]any,
	outputCount *int,
	reasoning map[string]any,
	errMsg string,
) (*ingest.StepRecord, error) {
	summaryJSON, err := json.Marshal(outputSummary)
	if err != nil {
		return nil, fmt.Errorf("xraystore: marshal output_summary: %w", err)
	}

	reasoningJSON, err := json.Marshal(reasoning)
	if err != nil {
		return nil, fmt.Errorf("xraystore: marshal reasoning: %w", err)
	}

	const query = `
		UPDATE steps
		SET status = $2, ended_at = $3, duration_ms = $4, output_summary = $5,
		    output_count = $6, reasoning = $7, error_message = NULLIF($8, '')
		WHERE id = $1
		RETURNING id, run_id, status`

	record := &ingest.StepRecord{}

	err = s.conn.QueryRowContext(ctx, query, id, status, endedAt, durationMS, summaryJSON, outputCount, reasoningJSON, errMsg).
		Scan(&record.ID, &record.RunID, &record.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ingest.ErrStepNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("xraystore: end step: %w", err)
	}

	return record, nil
}

// CreatePayloads inserts one row per payload, keyed by its client-assigned
// ref_id. Errors here are returned to the caller, which, per the ingest
// handler's contract, logs and discards them rather than failing the
// owning run/step event.
func (s *PostgresStore) CreatePayloads(
	ctx context.Context,
	runID string,
	stepID *string,
	phase string,
	payloads ingest.Payloads,
) error {
	if len(payloads) == 0 {
		return nil
	}

	const query = `
		INSERT INTO payloads (run_id, step_id, phase, ref_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	now := time.Now()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("xraystore: begin payloads transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for refID, content := range payloads {
		contentJSON, err := json.Marshal(content)
		if err != nil {
			return fmt.Errorf("xraystore: marshal payload content: %w", err)
		}

		if _, err := tx.ExecContext(ctx, query, runID, stepID, phase, refID, contentJSON, now); err != nil {
			return fmt.Errorf("xraystore: create payload: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("xraystore: commit payloads: %w", err)
	}

	return nil
}

// HealthCheck verifies the database is reachable.
func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	return s.conn.HealthCheck(ctx)
}
