package scan

import (
	"context"
	"net/netip"

	"topomap/internal/adapter"
	"topomap/internal/domain"
	"topomap/internal/errors"
)

// ScanHost traces a single, usually external, host and merges its path into
// the registry. It runs independently of the cycle lifecycle; only one trace
// per address may be in flight.
func (o *Orchestrator) ScanHost(ctx context.Context, ip string) (domain.Node, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return domain.Node{}, errors.Wrap(errors.CodeValidation, "invalid address", err).WithTarget(ip).WithOp("scan host")
	}
	ip = addr.String()

	o.tracesMu.Lock()
	if _, busy := o.traces[ip]; busy {
		o.tracesMu.Unlock()
		return domain.Node{}, errors.New(errors.CodeValidation, "trace already in progress").WithTarget(ip).WithOp("scan host")
	}
	o.traces[ip] = struct{}{}
	o.tracesMu.Unlock()

	defer func() {
		o.tracesMu.Lock()
		delete(o.traces, ip)
		o.tracesMu.Unlock()
	}()

	log := o.logger.WithTarget(ip)
	log.Info("tracing host")

	records, err := o.probe(ctx, ip, adapter.TraceCapabilities, PhaseTrace)
	if err != nil {
		log.ErrorScan("host trace failed", ip, err)
		return domain.Node{}, err
	}

	now := o.now()
	found := false
	for _, rec := range adapter.UpHosts(records) {
		node := rec.ToNode()
		node.Touch(now)
		o.registry.Upsert(node)
		o.registry.MergeTrace(rec.IP, rec.Hops)
		if rec.IP == ip {
			found = true
		}
	}
	if !found {
		// Keep the target visible even when it did not answer
		o.registry.MergeTrace(ip, nil)
	}

	o.emitSnapshot(ctx)
	o.publish(EventHostTraced, map[string]any{"ip": ip, "up": found})

	return o.registry.Get(ip)
}

// Tracing reports whether a ScanHost call for ip is in flight
func (o *Orchestrator) Tracing(ip string) bool {
	if addr, err := netip.ParseAddr(ip); err == nil {
		ip = addr.String()
	}
	o.tracesMu.Lock()
	defer o.tracesMu.Unlock()
	_, busy := o.traces[ip]
	return busy
}
