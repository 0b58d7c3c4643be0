// Package scan drives topology discovery cycles.
//
// A cycle has three phases: a liveness and traceroute sweep over the target
// ranges, default gateway classification, and per-host enrichment on a
// bounded worker pool. The Orchestrator runs cycles once or continuously and
// can be stopped cooperatively; probes already handed to nmap finish on their
// own timeout, but no new work is dispatched after Stop.
package scan

import (
	"context"
	"sync"
	"time"

	"topomap/internal/adapter"
	"topomap/internal/domain"
	"topomap/internal/logging"
	"topomap/internal/metrics"
	"topomap/internal/netinfo"
	"topomap/internal/topology"
)

// Config controls cycle behavior
type Config struct {
	// Targets are the CIDR ranges or addresses swept each cycle
	Targets []string
	// ChunkPrefix splits large ranges into blocks of this prefix length
	ChunkPrefix int
	// Workers bounds concurrent enrichment probes
	Workers int
	// CycleDelay is the pause between continuous cycles
	CycleDelay time.Duration
	// FaultBackoff is the pause after a failed cycle
	FaultBackoff time.Duration
	// StopTimeout bounds how long Stop waits for the cycle to drain
	StopTimeout time.Duration
	// ReverseDNS enables PTR lookups during enrichment
	ReverseDNS bool
	// DNSTimeout bounds each reverse lookup
	DNSTimeout time.Duration
}

// DefaultConfig matches a home /24 with 50 enrichment workers
func DefaultConfig() Config {
	return Config{
		Targets:      []string{"192.168.1.0/24"},
		ChunkPrefix:  24,
		Workers:      50,
		CycleDelay:   30 * time.Second,
		FaultBackoff: 5 * time.Second,
		StopTimeout:  10 * time.Second,
		ReverseDNS:   true,
		DNSTimeout:   3 * time.Second,
	}
}

// SnapshotSink consumes registry snapshots. Sinks are called on their own
// goroutine and must not block the orchestrator.
type SnapshotSink interface {
	HandleSnapshot(ctx context.Context, nodes []domain.Node)
}

// SnapshotSinkFunc adapts a function to SnapshotSink
type SnapshotSinkFunc func(ctx context.Context, nodes []domain.Node)

// HandleSnapshot calls f
func (f SnapshotSinkFunc) HandleSnapshot(ctx context.Context, nodes []domain.Node) {
	f(ctx, nodes)
}

// EventPublisher receives scan progress events
type EventPublisher interface {
	PublishScanEvent(eventType string, payload any)
}

// Orchestrator owns the scan lifecycle
type Orchestrator struct {
	cfg      Config
	prober   adapter.Prober
	resolver adapter.Resolver
	gateway  netinfo.GatewayResolver
	registry *topology.Registry
	sinks    []SnapshotSink
	events   EventPublisher
	metrics  *metrics.Metrics
	logger   *logging.Logger
	now      func() time.Time

	mu     sync.Mutex
	state  State
	mode   Mode
	cancel context.CancelFunc
	done   chan struct{}
	last   *CycleReport

	tracesMu sync.Mutex
	traces   map[string]struct{}
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithResolver enables reverse DNS during enrichment
func WithResolver(r adapter.Resolver) Option {
	return func(o *Orchestrator) {
		o.resolver = r
	}
}

// WithSinks adds snapshot consumers
func WithSinks(sinks ...SnapshotSink) Option {
	return func(o *Orchestrator) {
		o.sinks = append(o.sinks, sinks...)
	}
}

// WithEvents sets the progress event publisher
func WithEvents(p EventPublisher) Option {
	return func(o *Orchestrator) {
		o.events = p
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithLogger sets the orchestrator logger
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an idle orchestrator
func New(cfg Config, prober adapter.Prober, gateway netinfo.GatewayResolver, registry *topology.Registry, opts ...Option) *Orchestrator {
	def := DefaultConfig()
	if cfg.ChunkPrefix <= 0 {
		cfg.ChunkPrefix = def.ChunkPrefix
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = def.StopTimeout
	}
	if cfg.DNSTimeout <= 0 {
		cfg.DNSTimeout = def.DNSTimeout
	}

	o := &Orchestrator{
		cfg:      cfg,
		prober:   prober,
		gateway:  gateway,
		registry: registry,
		logger:   logging.Default().WithComponent("orchestrator"),
		now:      time.Now,
		traces:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current lifecycle state
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Mode returns the mode of the running (or last) scan
func (o *Orchestrator) Mode() Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

// LastReport returns the report of the most recently finished cycle
func (o *Orchestrator) LastReport() (CycleReport, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return CycleReport{}, false
	}
	r := *o.last
	r.Failures = append([]HostFailure(nil), o.last.Failures...)
	return r, true
}

// Start begins scanning in the background. It returns false, doing nothing,
// unless the orchestrator is idle. The scan outlives ctx cancellation; use
// Stop to end it.
func (o *Orchestrator) Start(ctx context.Context, mode Mode) bool {
	runCtx, done, ok := o.begin(context.WithoutCancel(ctx), mode)
	if !ok {
		return false
	}
	go o.run(runCtx, mode, done)
	return true
}

// begin moves the orchestrator from idle to running and returns the context
// the scan runs under. ok is false when a scan is already active.
func (o *Orchestrator) begin(parent context.Context, mode Mode) (ctx context.Context, done chan struct{}, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateIdle {
		return nil, nil, false
	}

	ctx, cancel := context.WithCancel(parent)
	o.state = StateRunning
	o.mode = mode
	o.cancel = cancel
	o.done = make(chan struct{})
	o.metrics.SetState(int(StateRunning))
	return ctx, o.done, true
}

// finish returns the orchestrator to idle and releases Wait and Stop callers
func (o *Orchestrator) finish(done chan struct{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = StateIdle
	o.cancel()
	o.metrics.SetState(int(StateIdle))
	close(done)
}

// Stop signals the running scan to stop and waits up to the stop timeout for
// it to drain. It returns true when the orchestrator is idle on return.
func (o *Orchestrator) Stop() bool {
	o.mu.Lock()
	switch o.state {
	case StateIdle:
		o.mu.Unlock()
		return true
	case StateRunning:
		o.state = StateStopping
		o.metrics.SetState(int(StateStopping))
		o.cancel()
	}
	done := o.done
	o.mu.Unlock()

	o.logger.Info("stop requested, waiting for scan to drain", "timeout", o.cfg.StopTimeout)

	select {
	case <-done:
		return true
	case <-time.After(o.cfg.StopTimeout):
		o.logger.Warn("scan still draining after stop timeout")
		return false
	}
}

// Wait blocks until the orchestrator is idle
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done != nil {
		<-done
	}
}

// run is the coordinator goroutine. State returns to idle when it exits.
func (o *Orchestrator) run(ctx context.Context, mode Mode, done chan struct{}) {
	defer o.finish(done)

	o.logger.Info("scan started", "mode", mode, "targets", o.cfg.Targets)

	for {
		report := o.runCycleSafe(ctx, mode)

		o.mu.Lock()
		o.last = &report
		o.mu.Unlock()

		if mode == ModeSingle || ctx.Err() != nil {
			break
		}

		delay := o.cfg.CycleDelay
		if report.Error != "" {
			delay = o.cfg.FaultBackoff
			o.logger.Warn("cycle failed, backing off", "cycle_id", report.ID, "backoff", delay)
		}
		if !sleepCtx(ctx, delay) {
			break
		}
	}

	o.logger.Info("scan stopped", "mode", mode)
}

// sleepCtx waits for d or until ctx is done. Returns false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (o *Orchestrator) publish(eventType string, payload any) {
	if o.events != nil {
		o.events.PublishScanEvent(eventType, payload)
	}
}

// emitSnapshot hands a fresh snapshot to every sink asynchronously
func (o *Orchestrator) emitSnapshot(ctx context.Context) {
	o.metrics.SetNodes(o.registry.Len())
	if len(o.sinks) == 0 {
		return
	}
	sinkCtx := context.WithoutCancel(ctx)
	for _, sink := range o.sinks {
		nodes := o.registry.Snapshot()
		go func(s SnapshotSink) {
			defer func() {
				if r := recover(); r != nil {
					o.logger.Error("snapshot sink panicked", "panic", r)
				}
			}()
			s.HandleSnapshot(sinkCtx, nodes)
		}(sink)
	}
}
