package xrayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Shipper delivers a batch of events to wherever the ingest pipeline lives.
// Implementations are swappable: the default ships over HTTP, KafkaShipper
// publishes to a broker instead. Both are fire-and-forget from the caller's
// point of view; ship failures are logged by the Transport, never
// propagated back to the application that called Send.
type Shipper interface {
	Ship(ctx context.Context, events []map[string]any) error
}

// HTTPShipper POSTs a batch of events as a JSON array to baseURL + "/ingest".
// This is the default shipper, grounded on the reference SDK's
// httpx.AsyncClient-based _flush_batch.
type HTTPShipper struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPShipper builds a shipper that posts batches to cfg.BaseURL. It
// returns nil if cfg.BaseURL is empty, since a client with no configured
// endpoint has nothing to ship to.
func NewHTTPShipper(cfg *Config) *HTTPShipper {
	if cfg.BaseURL == "" {
		return nil
	}

	return &HTTPShipper{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

// Ship sends events as a single POST /ingest request.
func (s *HTTPShipper) Ship(ctx context.Context, events []map[string]any) error {
	body, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("xrayclient: marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/ingest", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("xrayclient: build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("xrayclient: ship batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("xrayclient: ingest server returned %d", resp.StatusCode)
	}

	return nil
}
