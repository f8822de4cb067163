package health

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Status is the health status of a capability handler.
type Status string

const (
	// StatusHealthy means the handler's probe succeeded recently.
	StatusHealthy Status = "healthy"

	// StatusDegraded means the probe itself failed; the handler is offered
	// with a damped score rather than excluded.
	StatusDegraded Status = "degraded"

	// StatusDown means the probe reported the handler unavailable; the
	// match scorer excludes it outright.
	StatusDown Status = "down"
)

// Record is a time-boxed health observation for one handler.
type Record struct {
	HandlerID string    `json:"handler_id"`
	Status    Status    `json:"status"`
	CheckedAt time.Time `json:"checked_at"`
}

// Probe reports whether a handler's backing dependency is reachable.
// Returning an error marks the handler degraded rather than down.
type Probe func(ctx context.Context) (bool, error)

// Policy controls how the absence of health data is interpreted.
//
// The zero value is fail-open: a cache miss or expired record reads as "no
// opinion" and the scorer applies no damping. Fail-open prefers
// availability over caution and intentionally differs from the fail-closed
// resolution lookups elsewhere in the pipeline; FailClosed flips it for
// deployments that want unprobed handlers damped.
type Policy struct {
	FailClosed bool
}

// MonitorConfig configures the health cache and its background sweep.
type MonitorConfig struct {
	// TTL bounds the lifetime of a health record. Records older than the
	// TTL are treated as absent. Default: 5 minutes.
	TTL time.Duration

	// SweepInterval is the period between background probe sweeps.
	// Default: 1 minute.
	SweepInterval time.Duration

	// ProbeTimeout bounds each individual probe call. Default: 10s.
	ProbeTimeout time.Duration

	// Policy decides how missing or expired records read. Defaults to
	// fail-open.
	Policy Policy

	// Logger receives sweep diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Monitor maintains time-boxed health records per handler and owns the
// background sweep that refreshes them. Construct one per process and pass
// it by reference; tests construct isolated instances.
type Monitor struct {
	mu      sync.RWMutex
	records map[string]Record
	probes  map[string]Probe

	ttl           time.Duration
	sweepInterval time.Duration
	probeTimeout  time.Duration
	policy        Policy
	logger        *slog.Logger
	now           func() time.Time

	// onStatus observes sweep results, for metrics.
	onStatus func(handlerID string, status Status)
}

// NewMonitor creates a health monitor with the given configuration.
func NewMonitor(cfg MonitorConfig) *Monitor {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Monitor{
		records:       make(map[string]Record),
		probes:        make(map[string]Probe),
		ttl:           cfg.TTL,
		sweepInterval: cfg.SweepInterval,
		probeTimeout:  cfg.ProbeTimeout,
		policy:        cfg.Policy,
		logger:        cfg.Logger,
		now:           time.Now,
	}
}

// OnStatus registers an observer for sweep results. Used for metrics; it
// must not block.
func (m *Monitor) OnStatus(fn func(handlerID string, status Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStatus = fn
}

// RegisterProbe adds a handler's async health probe to the sweep set.
// Handlers without probes are never recorded and always read as absent.
func (m *Monitor) RegisterProbe(handlerID string, probe Probe) {
	if probe == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes[handlerID] = probe
}

// Set records a health status for a handler, stamped now.
func (m *Monitor) Set(handlerID string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(handlerID, status)
}

func (m *Monitor) setLocked(handlerID string, status Status) {
	m.records[handlerID] = Record{
		HandlerID: handlerID,
		Status:    status,
		CheckedAt: m.now(),
	}
	if m.onStatus != nil {
		m.onStatus(handlerID, status)
	}
}

// Status returns the current health record for a handler. Records older
// than the TTL are treated as absent and return ok=false.
func (m *Monitor) Status(handlerID string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[handlerID]
	if !ok {
		return "", false
	}
	if m.now().Sub(rec.CheckedAt) > m.ttl {
		return "", false
	}
	return rec.Status, true
}

// EffectiveStatus applies the monitor's policy to a status read: a missing
// or expired record reads as healthy under fail-open (the default),
// degraded under fail-closed.
func (m *Monitor) EffectiveStatus(handlerID string) Status {
	status, ok := m.Status(handlerID)
	if ok {
		return status
	}
	if m.policy.FailClosed {
		return StatusDegraded
	}
	return StatusHealthy
}

// Sweep runs every registered probe once and records the results. A probe
// error records degraded; a false result records down; true records
// healthy. Probes run concurrently, each bounded by the probe timeout.
func (m *Monitor) Sweep(ctx context.Context) {
	m.mu.RLock()
	probes := make(map[string]Probe, len(m.probes))
	for id, p := range m.probes {
		probes[id] = p
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for id, probe := range probes {
		wg.Add(1)
		go func(id string, probe Probe) {
			defer wg.Done()
			status := m.runProbe(ctx, id, probe)
			m.Set(id, status)
		}(id, probe)
	}
	wg.Wait()
}

func (m *Monitor) runProbe(ctx context.Context, handlerID string, probe Probe) Status {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	ok, err := func() (ok bool, err error) {
		defer func() {
			if r := recover(); r != nil {
				ok = false
				err = context.Canceled
				m.logger.Warn("health probe panicked", "handler", handlerID, "panic", r)
			}
		}()
		return probe(probeCtx)
	}()

	switch {
	case err != nil:
		m.logger.Warn("health probe failed", "handler", handlerID, "error", err)
		return StatusDegraded
	case !ok:
		m.logger.Warn("health probe reported down", "handler", handlerID)
		return StatusDown
	default:
		return StatusHealthy
	}
}

// Start launches the periodic background sweep and returns a stop function.
// The sweep stops when the context is canceled or the stop function is
// called, whichever comes first. The initial sweep runs immediately.
func (m *Monitor) Start(ctx context.Context) (stop func()) {
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})

	go func() {
		defer close(doneCh)

		m.Sweep(ctx)

		ticker := time.NewTicker(m.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
				m.Sweep(ctx)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(stopCh) })
		<-doneCh
	}
}
