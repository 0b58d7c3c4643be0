package scan

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"topomap/internal/adapter"
	"topomap/internal/domain"
	"topomap/internal/errors"
	"topomap/internal/logging"
	"topomap/internal/metrics"
)

// RunCycle runs one cycle synchronously. It holds the orchestrator in the
// running state like Start, so Stop and cancelling ctx both end it. When a
// scan is already active nothing runs and the report is marked Rejected.
func (o *Orchestrator) RunCycle(ctx context.Context) CycleReport {
	runCtx, done, ok := o.begin(ctx, ModeSingle)
	if !ok {
		now := o.now()
		return CycleReport{
			ID:         uuid.NewString(),
			Mode:       ModeSingle,
			StartedAt:  now,
			FinishedAt: now,
			Rejected:   true,
			Error:      errors.New(errors.CodeOrchestratorFault, "a scan is already in progress").Error(),
		}
	}
	defer o.finish(done)

	report := o.runCycleSafe(runCtx, ModeSingle)
	o.mu.Lock()
	o.last = &report
	o.mu.Unlock()
	return report
}

// runCycleSafe runs a cycle, converting panics and errors into an
// ORCHESTRATOR_FAULT on the report
func (o *Orchestrator) runCycleSafe(ctx context.Context, mode Mode) (report CycleReport) {
	report = CycleReport{
		ID:        uuid.NewString(),
		Mode:      mode,
		StartedAt: o.now(),
	}
	log := o.logger.WithCycle(report.ID)

	defer func() {
		if r := recover(); r != nil {
			err := errors.Newf(errors.CodeOrchestratorFault, "cycle panicked: %v", r)
			log.Error("scan cycle panicked", "panic", r, "stack", string(debug.Stack()))
			report.Error = err.Error()
		}
		report.FinishedAt = o.now()

		outcome := metrics.OutcomeSuccess
		switch {
		case report.Error != "":
			outcome = metrics.OutcomeFailure
			o.publish(EventScanFault, report)
		case report.Cancelled:
			outcome = metrics.OutcomeCancelled
			o.publish(EventScanStopped, report)
		default:
			o.publish(EventScanComplete, report)
		}
		o.metrics.RecordCycle(string(mode), outcome, report.Duration())
	}()

	if err := o.runCycle(ctx, log, &report); err != nil {
		fault := errors.Wrap(errors.CodeOrchestratorFault, "scan cycle failed", err)
		log.Error("scan cycle failed", "error", fault)
		report.Error = fault.Error()
	}
	return report
}

func (o *Orchestrator) runCycle(ctx context.Context, log *logging.Logger, report *CycleReport) error {
	o.publish(EventScanStarted, map[string]any{
		"cycle_id": report.ID,
		"mode":     report.Mode,
		"targets":  o.cfg.Targets,
	})
	log.Info("cycle started", "targets", o.cfg.Targets)

	// Phase 1
	candidates, err := o.sweep(ctx, log)
	report.Candidates = len(candidates)
	o.emitSnapshot(ctx)
	o.publish(EventPhaseComplete, map[string]any{"cycle_id": report.ID, "phase": PhaseSweep, "candidates": len(candidates)})
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		report.Cancelled = true
		log.Info("cycle cancelled after sweep")
		return nil
	}

	// Phase 2
	o.classify(ctx, log, report, candidates)
	o.emitSnapshot(ctx)
	o.publish(EventPhaseComplete, map[string]any{"cycle_id": report.ID, "phase": PhaseGateway, "gateway": report.Gateway})
	if ctx.Err() != nil {
		report.Cancelled = true
		log.Info("cycle cancelled after gateway classification")
		return nil
	}

	// Phase 3
	results, dispatched := o.enrich(ctx, log, report.ID, candidates)
	o.aggregate(log, report, results)
	if dispatched < len(candidates) {
		report.Cancelled = true
	}

	o.emitSnapshot(ctx)
	o.publish(EventPhaseComplete, map[string]any{"cycle_id": report.ID, "phase": PhaseEnrich, "enriched": report.Enriched})

	log.Info("cycle finished",
		"candidates", report.Candidates,
		"enriched", report.Enriched,
		"failed", len(report.Failures),
		"cancelled", report.Cancelled,
		"nodes", o.registry.Len())
	return nil
}

// sweep probes every target chunk for live hosts and their paths, merging
// each chunk into the registry as soon as it returns. It fails only when
// every dispatched chunk failed.
func (o *Orchestrator) sweep(ctx context.Context, log *logging.Logger) ([]string, error) {
	var chunks []string
	for _, target := range o.cfg.Targets {
		c, err := adapter.ChunkTargets(target, o.cfg.ChunkPrefix)
		if err != nil {
			return nil, errors.Wrap(errors.CodeValidation, "invalid scan target", err).WithTarget(target)
		}
		chunks = append(chunks, c...)
	}
	if len(chunks) == 0 {
		return nil, errors.New(errors.CodeValidation, "no scan targets configured")
	}

	var (
		candidates []string
		seen       = make(map[string]struct{})
		failed     int
		dispatched int
		lastErr    error
	)

	for _, chunk := range chunks {
		if ctx.Err() != nil {
			log.Info("sweep cancelled", "remaining_chunks", len(chunks)-dispatched)
			break
		}
		dispatched++

		records, err := o.probe(ctx, chunk, adapter.SweepCapabilities, PhaseSweep)
		if err != nil {
			failed++
			lastErr = err
			log.ErrorScan("sweep chunk failed", chunk, err)
			continue
		}

		now := o.now()
		for _, rec := range adapter.UpHosts(records) {
			node := rec.ToNode()
			node.Touch(now)
			o.registry.Upsert(node)
			o.registry.MergeTrace(rec.IP, rec.Hops)
			if _, dup := seen[rec.IP]; !dup {
				seen[rec.IP] = struct{}{}
				candidates = append(candidates, rec.IP)
			}
		}
		log.Debug("sweep chunk merged", "chunk", chunk, "hosts", len(records))
	}

	if dispatched > 0 && failed == dispatched {
		return candidates, errors.Wrap(errors.CodeProbeFailure,
			fmt.Sprintf("all %d sweep chunks failed", failed), lastErr)
	}

	sort.Slice(candidates, func(i, j int) bool { return domain.LessIP(candidates[i], candidates[j]) })
	log.Info("sweep finished", "chunks", dispatched, "failed_chunks", failed, "candidates", len(candidates))
	return candidates, nil
}

// classify resolves the default gateway once and collapses the local hosts
// around it. Without a gateway the deferred vantage edges are kept as seen.
func (o *Orchestrator) classify(ctx context.Context, log *logging.Logger, report *CycleReport, candidates []string) {
	classified := false
	defer func() {
		if !classified {
			if n := o.registry.FlushDeferred(); n > 0 {
				log.Debug("added deferred vantage edges", "edges", n)
			}
		}
	}()

	if o.gateway == nil {
		report.GatewayNote = "no gateway resolver"
		return
	}

	gw, err := o.gateway.DefaultGateway(ctx)
	if err != nil {
		report.GatewayNote = err.Error()
		log.Warn("gateway unresolved, skipping star collapse", "error", err)
		return
	}

	if err := o.registry.ClassifyGateway(gw, candidates); err != nil {
		report.GatewayNote = err.Error()
		log.Warn("gateway classification skipped", "gateway", gw, "error", err)
		return
	}

	classified = true
	report.Gateway = gw
	log.Info("gateway classified", "gateway", gw, "candidates", len(candidates))
}

// enrich deep-probes each candidate on a bounded pool. Cancellation is checked
// when a worker picks up a host, before its probe is dispatched. It returns
// the results of every dispatched probe and how many were dispatched.
func (o *Orchestrator) enrich(ctx context.Context, log *logging.Logger, cycleID string, candidates []string) ([]HostResult, int) {
	var (
		mu         sync.Mutex
		results    = make([]HostResult, 0, len(candidates))
		dispatched atomic.Int64
		g          errgroup.Group
	)
	g.SetLimit(o.cfg.Workers)

	for _, ip := range candidates {
		if ctx.Err() != nil {
			break
		}

		ip := ip
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			dispatched.Add(1)

			res := o.enrichHost(ctx, ip)
			if res.Err == nil {
				o.publish(EventHostEnriched, map[string]any{"cycle_id": cycleID, "ip": ip})
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	n := int(dispatched.Load())
	if n < len(candidates) {
		log.Info("enrichment cancelled", "dispatched", n, "skipped", len(candidates)-n)
	}
	return results, n
}

// enrichHost runs the deep probe for one host. Every failure is returned in
// the result, never raised.
func (o *Orchestrator) enrichHost(ctx context.Context, ip string) (res HostResult) {
	start := o.now()
	res.IP = ip
	defer func() {
		if r := recover(); r != nil {
			res.Err = errors.Newf(errors.CodeOrchestratorFault, "enrichment panicked: %v", r).WithTarget(ip)
		}
		res.Duration = o.now().Sub(start)
	}()

	records, err := o.probe(ctx, ip, adapter.EnrichCapabilities, PhaseEnrich)
	if err != nil {
		res.Err = err
		return res
	}

	var rec *domain.HostScanRecord
	for i := range records {
		if records[i].IP == ip {
			rec = &records[i]
			break
		}
	}
	if rec == nil || !rec.Up() {
		res.Err = errors.New(errors.CodeProbeFailure, "host did not answer the detailed probe").WithTarget(ip).WithOp("enrich")
		return res
	}

	hostname := rec.Hostname()
	if name := o.reverseLookup(ctx, ip); name != "" {
		hostname = name
	}

	now := o.now()
	res.Err = o.registry.Enrich(ip, func(n *domain.Node) {
		n.Status = domain.NodeStatusUp
		n.OpenPorts = append([]domain.Port{}, rec.Ports...)
		if rec.OS != "" {
			n.OS = rec.OS
			n.SetOther("os_accuracy", strconv.Itoa(rec.OSAccuracy))
		}
		if rec.MACAddress != "" {
			n.MACAddress = rec.MACAddress
		}
		if rec.Vendor != "" {
			n.Vendor = rec.Vendor
		}
		if hostname != "" {
			n.Hostname = hostname
		}
		n.Touch(now)
	})
	return res
}

func (o *Orchestrator) reverseLookup(ctx context.Context, ip string) string {
	if o.resolver == nil || !o.cfg.ReverseDNS {
		return ""
	}
	lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.DNSTimeout)
	defer cancel()

	name, err := o.resolver.LookupAddr(lookupCtx, ip)
	if err != nil {
		o.logger.Debug("reverse lookup failed", "ip", ip, "error", err)
		return ""
	}
	return name
}

// probe runs one raw probe and normalizes it, recording metrics
func (o *Orchestrator) probe(ctx context.Context, target string, caps adapter.Capabilities, phase string) ([]domain.HostScanRecord, error) {
	start := o.now()
	raw, err := o.prober.Probe(ctx, target, caps)
	if err == nil {
		var records []domain.HostScanRecord
		records, err = adapter.Normalize(raw)
		if err == nil {
			o.metrics.RecordProbe(phase, metrics.OutcomeSuccess, o.now().Sub(start))
			return records, nil
		}
	}
	o.metrics.RecordProbe(phase, metrics.OutcomeFailure, o.now().Sub(start))

	if errors.CodeOf(err) == errors.CodeUnknown {
		err = errors.Wrap(errors.CodeProbeFailure, "probe failed", err).WithTarget(target).WithOp(phase)
	}
	return nil, err
}

// aggregate folds enrichment results into the report and logs failures once
func (o *Orchestrator) aggregate(log *logging.Logger, report *CycleReport, results []HostResult) {
	sort.Slice(results, func(i, j int) bool { return domain.LessIP(results[i].IP, results[j].IP) })

	var lines []string
	for _, r := range results {
		if !r.Failed() {
			report.Enriched++
			continue
		}
		code := errors.CodeOf(r.Err)
		o.metrics.RecordEnrichFailure(string(code))
		report.Failures = append(report.Failures, HostFailure{IP: r.IP, Code: string(code), Error: r.Err.Error()})
		lines = append(lines, r.IP+": "+r.Err.Error())
	}

	if len(lines) > 0 {
		log.Warn("enrichment failures",
			"failed", len(lines),
			"total", len(results),
			"hosts", strings.Join(lines, "; "))
	}
}
