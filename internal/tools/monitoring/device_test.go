package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/haasonsaas/dispatch/internal/health"
)

type fakeDeviceClient struct {
	status *DeviceStatus
	err    error
	calls  int
}

func (f *fakeDeviceClient) QueryDevice(ctx context.Context, name string) (*DeviceStatus, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.status, nil
}

func TestQueryDeviceStatusSuccess(t *testing.T) {
	client := &fakeDeviceClient{status: &DeviceStatus{Name: "core-sw-1", Reachable: true, CPUPercent: 97.5}}
	breaker := health.NewBreaker("monitoring", health.DefaultBreakerConfig())
	tool := NewQueryDeviceStatusTool(client, breaker)

	out, err := tool.Execute(context.Background(), json.RawMessage(`{"device": "core-sw-1"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.IsError {
		t.Fatalf("unexpected error result: %s", out.Content)
	}

	var status DeviceStatus
	if err := json.Unmarshal([]byte(out.Content), &status); err != nil {
		t.Fatalf("output not JSON: %v", err)
	}
	if status.Name != "core-sw-1" || status.CPUPercent != 97.5 {
		t.Errorf("status = %+v", status)
	}
}

func TestQueryDeviceStatusOpenBreakerShortCircuits(t *testing.T) {
	client := &fakeDeviceClient{err: errors.New("snmp timeout")}
	breaker := health.NewBreaker("monitoring", health.DefaultBreakerConfig())
	tool := NewQueryDeviceStatusTool(client, breaker)

	// Trip the breaker with repeated failures.
	for i := 0; i < 3; i++ {
		out, err := tool.Execute(context.Background(), json.RawMessage(`{"device": "core-sw-1"}`))
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if !out.IsError {
			t.Fatal("expected error result while backend failing")
		}
	}
	if breaker.State() != health.BreakerOpen {
		t.Fatalf("breaker state = %s, want open", breaker.State())
	}

	callsBefore := client.calls
	out, err := tool.Execute(context.Background(), json.RawMessage(`{"device": "core-sw-1"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !out.IsError || !strings.Contains(out.Content, "circuit open") {
		t.Errorf("result = %+v, want circuit-open message", out)
	}
	if client.calls != callsBefore {
		t.Error("backend was called while breaker open")
	}
}

func TestQueryDeviceStatusSuccessClosesBreaker(t *testing.T) {
	client := &fakeDeviceClient{status: &DeviceStatus{Name: "fw-2", Reachable: true}}
	breaker := health.NewBreaker("monitoring", health.DefaultBreakerConfig())
	breaker.RecordFailure()
	breaker.RecordFailure()
	tool := NewQueryDeviceStatusTool(client, breaker)

	if _, err := tool.Execute(context.Background(), json.RawMessage(`{"device": "fw-2"}`)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if breaker.State() != health.BreakerClosed {
		t.Errorf("breaker state = %s, want closed after success", breaker.State())
	}
	snapshot := breaker.Snapshot()
	if snapshot.Failures != 0 {
		t.Errorf("failures = %d, want reset to 0", snapshot.Failures)
	}
}

func TestQueryDeviceStatusMissingDevice(t *testing.T) {
	tool := NewQueryDeviceStatusTool(&fakeDeviceClient{}, nil)
	out, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !out.IsError {
		t.Error("expected error result for missing device")
	}
}
