package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"topomap/internal/domain"
	"topomap/internal/logging"
	"topomap/internal/metrics"
	"topomap/internal/repository"
	"topomap/internal/summary"
)

// refreshingPrefix marks a summary that is being regenerated
const refreshingPrefix = "(Summary refresh in progress...)\n"

// DefaultSummaryTimeout bounds one summary refresh including retries
const DefaultSummaryTimeout = 2 * time.Minute

// TopologyService consumes registry snapshots: it keeps the network summary
// current and persists each snapshot. It never blocks the caller for longer
// than it takes to hand the snapshot off.
type TopologyService struct {
	generator summary.Generator
	store     repository.SnapshotStore
	eventBus  *EventBus
	metrics   *metrics.Metrics
	logger    *logging.Logger
	timeout   time.Duration

	summaryMu  sync.RWMutex
	summary    string
	summaryAt  time.Time
	refreshing bool
	pending    []domain.Node

	saveMu    sync.Mutex
	seq       atomic.Uint64
	lastSaved uint64

	wg sync.WaitGroup
}

// Option configures a TopologyService
type Option func(*TopologyService)

// WithSummaryTimeout bounds each summary refresh
func WithSummaryTimeout(d time.Duration) Option {
	return func(s *TopologyService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *TopologyService) {
		s.metrics = m
	}
}

// WithLogger sets the service logger
func WithLogger(l *logging.Logger) Option {
	return func(s *TopologyService) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewTopologyService creates a service. generator and store may be nil to
// disable summaries or persistence.
func NewTopologyService(generator summary.Generator, store repository.SnapshotStore, eventBus *EventBus, opts ...Option) *TopologyService {
	s := &TopologyService{
		generator: generator,
		store:     store,
		eventBus:  eventBus,
		logger:    logging.Default().WithComponent("topology-service"),
		timeout:   DefaultSummaryTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleSnapshot refreshes the summary in the background and persists the
// snapshot. Snapshots that arrive while a refresh is running are coalesced
// into one follow-up refresh on the newest snapshot.
func (s *TopologyService) HandleSnapshot(ctx context.Context, nodes []domain.Node) {
	seq := s.seq.Add(1)
	s.requestRefresh(ctx, nodes)
	s.persist(ctx, seq, nodes)
}

// Summary returns the last computed description. While a refresh is running
// the previous text is returned with a progress marker.
func (s *TopologyService) Summary() string {
	s.summaryMu.RLock()
	defer s.summaryMu.RUnlock()
	if s.refreshing {
		return refreshingPrefix + s.summary
	}
	return s.summary
}

// SummaryUpdatedAt returns when the summary was last replaced
func (s *TopologyService) SummaryUpdatedAt() time.Time {
	s.summaryMu.RLock()
	defer s.summaryMu.RUnlock()
	return s.summaryAt
}

// Refresh regenerates the summary synchronously
func (s *TopologyService) Refresh(ctx context.Context, nodes []domain.Node) string {
	if s.generator == nil {
		return s.Summary()
	}
	text := s.generate(ctx, nodes)
	s.setSummary(text)
	return text
}

// Wait blocks until background refreshes finish
func (s *TopologyService) Wait() {
	s.wg.Wait()
}

func (s *TopologyService) requestRefresh(ctx context.Context, nodes []domain.Node) {
	if s.generator == nil {
		return
	}

	s.summaryMu.Lock()
	if s.refreshing {
		s.pending = nodes
		s.summaryMu.Unlock()
		return
	}
	s.refreshing = true
	s.summaryMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		bg := context.WithoutCancel(ctx)
		for {
			text := s.generate(bg, nodes)

			s.summaryMu.Lock()
			s.summary = text
			s.summaryAt = time.Now()
			next := s.pending
			s.pending = nil
			if next == nil {
				s.refreshing = false
			}
			s.summaryMu.Unlock()

			s.publish(EventSummaryUpdated, map[string]any{"nodes": len(nodes)})
			if next == nil {
				return
			}
			nodes = next
		}
	}()
}

func (s *TopologyService) generate(ctx context.Context, nodes []domain.Node) string {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	text, err := s.generator.Summarize(ctx, nodes)
	if err != nil {
		s.metrics.RecordSummary(metrics.OutcomeFailure)
		s.logger.Warn("summary generation failed", "error", err, "duration", time.Since(start))
		if text == "" {
			text = summary.Unavailable
		}
		return text
	}
	s.metrics.RecordSummary(metrics.OutcomeSuccess)
	s.logger.Debug("summary refreshed", "nodes", len(nodes), "duration", time.Since(start))
	return text
}

func (s *TopologyService) setSummary(text string) {
	s.summaryMu.Lock()
	s.summary = text
	s.summaryAt = time.Now()
	s.summaryMu.Unlock()
	s.publish(EventSummaryUpdated, nil)
}

// persist saves the snapshot unless a newer one was already saved
func (s *TopologyService) persist(ctx context.Context, seq uint64, nodes []domain.Node) {
	if s.store == nil {
		return
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if seq < s.lastSaved {
		s.logger.Debug("skipping stale snapshot", "seq", seq, "saved", s.lastSaved)
		return
	}

	if err := s.store.SaveSnapshot(context.WithoutCancel(ctx), nodes); err != nil {
		s.metrics.RecordSnapshot(metrics.OutcomeFailure)
		s.logger.Error("failed to persist snapshot", "nodes", len(nodes), "error", err)
		return
	}
	s.lastSaved = seq
	s.metrics.RecordSnapshot(metrics.OutcomeSuccess)
	s.publish(EventSnapshotSaved, map[string]any{"nodes": len(nodes)})
}

func (s *TopologyService) publish(eventType EventType, payload interface{}) {
	if s.eventBus != nil {
		s.eventBus.Publish(Event{Type: eventType, Payload: payload})
	}
}
