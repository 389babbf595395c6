package xrayapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xray-observability/xray/internal/ingest"
)

func newTestServer(store *mockStore) *Server {
	return &Server{
		logger:    slog.New(slog.NewJSONHandler(bytes.NewBuffer(nil), nil)),
		config:    &ServerConfig{MaxRequestSize: DefaultMaxRequestSize},
		store:     store,
		validator: ingest.NewValidator(),
	}
}

func postIngest(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	s.handleIngest(rr, req)

	return rr
}

func TestHandleIngestRunStartSuccess(t *testing.T) {
	s := newTestServer(&mockStore{})

	body := `[{
		"event_type": "run_start",
		"id": "11111111-1111-1111-1111-111111111111",
		"pipeline_name": "classify-ticket",
		"started_at": "2026-07-30T10:00:00Z",
		"input_summary": {"query": "hello"}
	}]`

	rr := postIngest(t, s, body)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp IngestResponse

	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Processed)
	assert.Equal(t, 1, resp.Succeeded)
	assert.Equal(t, 0, resp.Failed)
	assert.True(t, resp.Results[0].Success)
}

func TestHandleIngestSchemaViolationFailsWholeBatch(t *testing.T) {
	s := newTestServer(&mockStore{})

	body := `[
		{
			"event_type": "run_start",
			"id": "11111111-1111-1111-1111-111111111111",
			"pipeline_name": "classify-ticket",
			"started_at": "2026-07-30T10:00:00Z"
		},
		{
			"event_type": "run_start",
			"id": "not-a-uuid",
			"pipeline_name": "bad-event",
			"started_at": "2026-07-30T10:00:00Z"
		}
	]`

	rr := postIngest(t, s, body)

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code,
		"a schema violation anywhere in the batch must 422 the whole request, not just the offending event")
}

func TestHandleIngestUnknownEventTypeFailsWholeBatch(t *testing.T) {
	s := newTestServer(&mockStore{})

	rr := postIngest(t, s, `[{"event_type": "mystery"}]`)

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestHandleIngestStorageFailureIsolatedAsEventFailure(t *testing.T) {
	store := &mockStore{
		CreateRunFunc: func(_ context.Context, fields ingest.CreateRunFields) error {
			if fields.ID == "22222222-2222-2222-2222-222222222222" {
				return ingest.ErrRunAlreadyExists
			}

			return nil
		},
	}

	s := newTestServer(store)

	body := `[
		{
			"event_type": "run_start",
			"id": "11111111-1111-1111-1111-111111111111",
			"pipeline_name": "classify-ticket",
			"started_at": "2026-07-30T10:00:00Z"
		},
		{
			"event_type": "run_start",
			"id": "22222222-2222-2222-2222-222222222222",
			"pipeline_name": "duplicate-run",
			"started_at": "2026-07-30T10:00:00Z"
		}
	]`

	rr := postIngest(t, s, body)

	assert.Equal(t, http.StatusOK, rr.Code, "a storage-level failure on one event must never fail the whole batch")

	var resp IngestResponse

	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Processed)
	assert.Equal(t, 1, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)
	assert.True(t, resp.Results[0].Success)
	assert.False(t, resp.Results[1].Success)
	assert.NotEmpty(t, resp.Results[1].Error)
}

func TestHandleIngestPayloadInsertFailureDoesNotFailEvent(t *testing.T) {
	store := &mockStore{
		CreatePayloadsFunc: func(_ context.Context, _ string, _ *string, _ string, _ ingest.Payloads) error {
			return errors.New("boom")
		},
	}

	s := newTestServer(store)

	body := `[{
		"event_type": "run_start",
		"id": "11111111-1111-1111-1111-111111111111",
		"pipeline_name": "classify-ticket",
		"started_at": "2026-07-30T10:00:00Z",
		"_payloads": {"input-ref": {"query": "hello"}}
	}]`

	rr := postIngest(t, s, body)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp IngestResponse

	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Succeeded)
	assert.True(t, resp.Results[0].Success,
		"a payload-insert failure must be logged and discarded, not fail the owning run/step event")
}

func TestHandleIngestMalformedBatchIsUnprocessable(t *testing.T) {
	s := newTestServer(&mockStore{})

	rr := postIngest(t, s, `{"not": "an array"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestHandleIngestWrongContentType(t *testing.T) {
	s := newTestServer(&mockStore{})

	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewBufferString(`[]`))
	req.Header.Set("Content-Type", "text/plain")
	rr := httptest.NewRecorder()

	s.handleIngest(rr, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
}

func TestHandleIngestStepEndUsesRunIDFromStore(t *testing.T) {
	var capturedRunID string

	store := &mockStore{
		EndStepFunc: func(
			_ context.Context, id, status string, _ time.Time, _ *int64,
			_ map[string]any, _ *int, _ map[string]any, _ string,
		) (*ingest.StepRecord, error) {
			return &ingest.StepRecord{ID: id, RunID: "22222222-2222-2222-2222-222222222222", Status: status}, nil
		},
		CreatePayloadsFunc: func(
			_ context.Context, runID string, _ *string, _ string, _ ingest.Payloads,
		) error {
			capturedRunID = runID

			return nil
		},
	}

	s := newTestServer(store)

	body := `[{
		"event_type": "step_end",
		"id": "33333333-3333-3333-3333-333333333333",
		"run_id": "99999999-9999-9999-9999-999999999999",
		"status": "success",
		"ended_at": "2026-07-30T10:00:05Z",
		"duration_ms": 120,
		"_payloads": {"output-ref": {"answer": 42}}
	}]`

	rr := postIngest(t, s, body)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "22222222-2222-2222-2222-222222222222", capturedRunID,
		"must use the store-returned run id, not the client-supplied one")
}
