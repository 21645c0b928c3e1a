// Package telemetry implements the acknowledge-only "station added" call.
// The endpoint is non-authoritative: the local add is committed before the
// call runs, and callers log (never surface) its failure.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"bahnhofjaeger/internal/station"
)

// Client posts add acknowledgments to a remote endpoint.
type Client struct {
	client   *http.Client
	endpoint string
	deviceID string
}

var _ station.Acknowledger = (*Client)(nil)

// NewClient creates a telemetry client for the given endpoint.
func NewClient(endpoint, deviceID string) *Client {
	return &Client{
		client:   &http.Client{Timeout: 10 * time.Second},
		endpoint: endpoint,
		deviceID: deviceID,
	}
}

type addPayload struct {
	StationID string `json:"stationId"`
	DeviceID  string `json:"deviceId,omitempty"`
}

// AcknowledgeAdd posts the station id. A non-2xx response is an error so the
// caller can log it; nothing else ever happens with the result.
func (c *Client) AcknowledgeAdd(ctx context.Context, stationID string) error {
	body, err := json.Marshal(addPayload{StationID: stationID, DeviceID: c.deviceID})
	if err != nil {
		return fmt.Errorf("marshal acknowledgment payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create acknowledgment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "bahnhofjaeger/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send acknowledgment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("acknowledgment status %d", resp.StatusCode)
	}

	return nil
}
