package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMonitorStatusTTL(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := NewMonitor(MonitorConfig{TTL: time.Minute})
	m.now = clock.now

	m.Set("triage", StatusDegraded)

	if status, ok := m.Status("triage"); !ok || status != StatusDegraded {
		t.Fatalf("expected fresh degraded record, got %v ok=%v", status, ok)
	}

	clock.advance(61 * time.Second)
	if _, ok := m.Status("triage"); ok {
		t.Fatal("expected expired record to read as absent")
	}
}

func TestMonitorEffectiveStatusPolicy(t *testing.T) {
	// The zero-value policy is fail-open: an unprobed handler reads healthy.
	open := NewMonitor(MonitorConfig{})
	if got := open.EffectiveStatus("missing"); got != StatusHealthy {
		t.Fatalf("default policy miss should read healthy, got %v", got)
	}

	closed := NewMonitor(MonitorConfig{Policy: Policy{FailClosed: true}})
	if got := closed.EffectiveStatus("missing"); got != StatusDegraded {
		t.Fatalf("fail-closed miss should read degraded, got %v", got)
	}

	open.Set("triage", StatusDown)
	if got := open.EffectiveStatus("triage"); got != StatusDown {
		t.Fatalf("recorded status should win, got %v", got)
	}
}

func TestMonitorSweepRecordsProbeResults(t *testing.T) {
	m := NewMonitor(MonitorConfig{})
	m.RegisterProbe("up", func(ctx context.Context) (bool, error) {
		return true, nil
	})
	m.RegisterProbe("down", func(ctx context.Context) (bool, error) {
		return false, nil
	})
	m.RegisterProbe("flaky", func(ctx context.Context) (bool, error) {
		return false, errors.New("probe transport error")
	})

	m.Sweep(context.Background())

	cases := map[string]Status{
		"up":    StatusHealthy,
		"down":  StatusDown,
		"flaky": StatusDegraded,
	}
	for id, want := range cases {
		got, ok := m.Status(id)
		if !ok {
			t.Fatalf("expected record for %q", id)
		}
		if got != want {
			t.Fatalf("handler %q: expected %v, got %v", id, want, got)
		}
	}
}

func TestMonitorStartStop(t *testing.T) {
	m := NewMonitor(MonitorConfig{SweepInterval: 5 * time.Millisecond})

	swept := make(chan struct{}, 1)
	m.RegisterProbe("triage", func(ctx context.Context) (bool, error) {
		select {
		case swept <- struct{}{}:
		default:
		}
		return true, nil
	})

	stop := m.Start(context.Background())

	select {
	case <-swept:
	case <-time.After(time.Second):
		t.Fatal("expected an initial sweep")
	}

	stop()
	// Stop is idempotent and must not block on a second call.
	stop()
}

func TestMonitorStatusObserver(t *testing.T) {
	m := NewMonitor(MonitorConfig{})
	seen := make(map[string]Status)
	m.OnStatus(func(id string, status Status) {
		seen[id] = status
	})

	m.Set("triage", StatusDown)
	if seen["triage"] != StatusDown {
		t.Fatalf("expected observer to see down, got %v", seen["triage"])
	}
}
