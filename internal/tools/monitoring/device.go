// Package monitoring provides the network device status tool. Device
// queries go through a circuit breaker so a flapping monitoring backend
// degrades to fast error results instead of hanging every loop step.
package monitoring

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/dispatch/internal/agent"
	"github.com/haasonsaas/dispatch/internal/health"
)

// DeviceStatus is a point-in-time snapshot of one monitored device.
type DeviceStatus struct {
	Name        string   `json:"name"`
	Reachable   bool     `json:"reachable"`
	CPUPercent  float64  `json:"cpu_percent"`
	MemoryUsed  float64  `json:"memory_used_percent"`
	Uptime      string   `json:"uptime,omitempty"`
	Alerts      []string `json:"alerts,omitempty"`
	LastChecked string   `json:"last_checked,omitempty"`
}

// DeviceClient is the monitoring backend surface the tool needs.
type DeviceClient interface {
	QueryDevice(ctx context.Context, name string) (*DeviceStatus, error)
}

// QueryDeviceStatusTool looks up a device in the monitoring backend.
type QueryDeviceStatusTool struct {
	client  DeviceClient
	breaker *health.Breaker
}

// NewQueryDeviceStatusTool creates a query_device_status tool. The breaker
// is consulted before every backend call; when open, the tool returns a
// degraded result without touching the client.
func NewQueryDeviceStatusTool(client DeviceClient, breaker *health.Breaker) *QueryDeviceStatusTool {
	return &QueryDeviceStatusTool{client: client, breaker: breaker}
}

func (t *QueryDeviceStatusTool) Name() string {
	return "query_device_status"
}

func (t *QueryDeviceStatusTool) Description() string {
	return "Query the current status of a network device (reachability, CPU, memory, active alerts) from the monitoring backend."
}

func (t *QueryDeviceStatusTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"device": {
				"type": "string",
				"description": "Device name or hostname (e.g., core-sw-1)"
			}
		},
		"required": ["device"]
	}`)
}

func (t *QueryDeviceStatusTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolOutput, error) {
	var input struct {
		Device string `json:"device"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("parse params: %w", err)
	}
	if input.Device == "" {
		return &agent.ToolOutput{
			Content: "device is required",
			IsError: true,
		}, nil
	}

	if t.breaker != nil && !t.breaker.Allow() {
		return &agent.ToolOutput{
			Content: fmt.Sprintf("Monitoring backend is temporarily unavailable (circuit open); cannot query %s right now.", input.Device),
			IsError: true,
		}, nil
	}

	status, err := t.client.QueryDevice(ctx, input.Device)
	if err != nil {
		if t.breaker != nil {
			t.breaker.RecordFailure()
		}
		return &agent.ToolOutput{
			Content: fmt.Sprintf("Error querying device %s: %v", input.Device, err),
			IsError: true,
		}, nil
	}
	if t.breaker != nil {
		t.breaker.RecordSuccess()
	}

	payload, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &agent.ToolOutput{Content: string(payload)}, nil
}
