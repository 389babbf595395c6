//go:build integration

package xraystore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/xray-observability/xray/internal/ingest"
	"github.com/xray-observability/xray/internal/xraystore"
)

// newTestStore spins up a real Postgres via testcontainers, applies the
// schema migration inline (bypassing the golang-migrate CLI), and returns
// a connected PostgresStore.
func newTestStore(t *testing.T) *xraystore.PostgresStore {
	t.Helper()

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("xray"),
		postgres.WithUsername("xray"),
		postgres.WithPassword("xray"),
	)
	require.NoError(t, err)

	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, err := xraystore.NewConnection(&xraystore.Config{
		DatabaseURL:     connStr,
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
		ConnMaxIdleTime: time.Minute,
	})
	require.NoError(t, err)

	t.Cleanup(func() { _ = conn.Close() })

	_, err = conn.ExecContext(ctx, schemaSQL)
	require.NoError(t, err)

	return xraystore.NewPostgresStore(conn, nil)
}

const schemaSQL = `
CREATE TABLE runs (
	id TEXT PRIMARY KEY,
	pipeline_name TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	ended_at TIMESTAMPTZ,
	input_summary JSONB,
	output_summary JSONB,
	metadata JSONB,
	request_id TEXT,
	user_id TEXT,
	environment TEXT,
	error_message TEXT
);

CREATE TABLE steps (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL REFERENCES runs(id),
	step_name TEXT NOT NULL,
	step_type TEXT NOT NULL,
	index INT NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	ended_at TIMESTAMPTZ,
	duration_ms BIGINT,
	input_summary JSONB,
	input_count INT,
	output_summary JSONB,
	output_count INT,
	metadata JSONB,
	reasoning JSONB,
	error_message TEXT
);

CREATE TABLE payloads (
	id BIGSERIAL PRIMARY KEY,
	run_id TEXT NOT NULL REFERENCES runs(id),
	step_id TEXT REFERENCES steps(id),
	phase TEXT NOT NULL,
	ref_id TEXT NOT NULL,
	content JSONB,
	created_at TIMESTAMPTZ NOT NULL
);
`

func TestPostgresStoreRunLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	runID := "11111111-1111-1111-1111-111111111111"
	fields := ingest.CreateRunFields{
		ID: runID, PipelineName: "pipeline", StartedAt: time.Now(), InputSummary: map[string]any{"q": "x"},
	}
	require.NoError(t, store.CreateRun(ctx, fields))

	require.ErrorIs(t,
		store.CreateRun(ctx, ingest.CreateRunFields{ID: runID, PipelineName: "pipeline", StartedAt: time.Now()}),
		ingest.ErrRunAlreadyExists)

	record, err := store.EndRun(ctx, runID, "success", time.Now(), map[string]any{"ok": true}, "")
	require.NoError(t, err)
	require.Equal(t, "success", record.Status)

	_, err = store.EndRun(ctx, "22222222-2222-2222-2222-222222222222", "success", time.Now(), nil, "")
	require.ErrorIs(t, err, ingest.ErrRunNotFound)
}

func TestPostgresStoreStepLifecycleReturnsVerifiedRunID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	runID := "33333333-3333-3333-3333-333333333333"
	stepID := "44444444-4444-4444-4444-444444444444"

	require.NoError(t, store.CreateRun(ctx, ingest.CreateRunFields{ID: runID, PipelineName: "pipeline", StartedAt: time.Now()}))
	require.NoError(t, store.CreateStep(ctx, stepID, runID, "rank", "rank", 0, time.Now(), nil, nil, nil))

	duration := int64(10)
	record, err := store.EndStep(ctx, stepID, "success", time.Now(), &duration, nil, nil, map[string]any{"why": "x"}, "")
	require.NoError(t, err)
	require.Equal(t, runID, record.RunID)

	require.NoError(t, store.CreatePayloads(ctx, record.RunID, &record.ID, "output", ingest.Payloads{
		"result-ref": map[string]any{"result": 1},
	}))
}

func TestPostgresStoreHealthCheck(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.HealthCheck(context.Background()))
}
