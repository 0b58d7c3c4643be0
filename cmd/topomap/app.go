package main

import (
	"context"
	"fmt"
	"net"

	"topomap/internal/adapter"
	"topomap/internal/config"
	"topomap/internal/domain"
	"topomap/internal/logging"
	"topomap/internal/metrics"
	"topomap/internal/netinfo"
	"topomap/internal/repository/sqlite"
	"topomap/internal/scan"
	"topomap/internal/service"
	"topomap/internal/summary"
	"topomap/internal/topology"
)

// app holds the wired discovery engine
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	metrics *metrics.Metrics

	vantage      netinfo.Vantage
	prober       *adapter.NmapProber
	registry     *topology.Registry
	orchestrator *scan.Orchestrator
	store        *sqlite.Store
	topology     *service.TopologyService
	bus          *service.EventBus
}

// appOptions select the optional parts of the engine
type appOptions struct {
	// summaries enables the network summary generator
	summaries bool
	// sinks registers the topology service as a snapshot sink
	sinks bool
}

// newApp wires config into the registry, orchestrator, store and services
func newApp(cfg *config.Config, logger *logging.Logger, opts appOptions) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
		bus:     service.NewEventBus(),
	}

	vantage, err := resolveVantage(cfg)
	if err != nil {
		return nil, err
	}
	a.vantage = vantage
	logger.Info("vantage point", "ip", vantage.IP, "subnet", vantage.Subnet, "interface", vantage.Interface)

	a.registry = topology.NewRegistry(vantage.IP, vantage.Subnet,
		topology.WithStrict(cfg.Dev),
		topology.WithLogger(logger.WithComponent("registry")),
	)
	if vantage.MAC != "" {
		_ = a.registry.Enrich(vantage.IP, func(n *domain.Node) {
			n.MACAddress = vantage.MAC
		})
	}

	profile := cfg.EffectiveProfile()
	timing, err := adapter.ParseTiming(profile.Timing)
	if err != nil {
		return nil, err
	}
	// nmap quits outright on -O without raw sockets
	osDetection := cfg.Scan.OSDetection && (cfg.Scan.Privileged || netinfo.RawSocketAvailable())
	a.prober = adapter.NewNmapProber(
		adapter.WithProbeTimeout(profile.ProbeTimeout),
		adapter.WithTimingTemplate(timing),
		adapter.WithPrivileged(cfg.Scan.Privileged),
		adapter.WithOSDetection(osDetection),
		adapter.WithBinaryPath(cfg.Scan.NmapPath),
		adapter.WithProberLogger(logger.WithComponent("nmap")),
	)

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	a.store = store

	var generator summary.Generator
	if opts.summaries && cfg.Summary.Enabled {
		generator = newGenerator(cfg, logger)
	}
	a.topology = service.NewTopologyService(generator, store, a.bus,
		service.WithSummaryTimeout(cfg.Summary.Timeout.Duration()),
		service.WithMetrics(a.metrics),
		service.WithLogger(logger.WithComponent("topology-service")),
	)

	scanOpts := []scan.Option{
		scan.WithEvents(a.bus),
		scan.WithMetrics(a.metrics),
		scan.WithLogger(logger.WithComponent("orchestrator")),
	}
	if cfg.Scan.ReverseDNS {
		scanOpts = append(scanOpts, scan.WithResolver(newResolver(cfg)))
	}
	if opts.sinks {
		scanOpts = append(scanOpts, scan.WithSinks(a.topology))
	}

	a.orchestrator = scan.New(scan.Config{
		Targets:      cfg.Scan.Targets,
		ChunkPrefix:  cfg.Scan.ChunkPrefix,
		Workers:      profile.Workers,
		CycleDelay:   profile.CycleDelay,
		FaultBackoff: cfg.Scan.FaultBackoff.Duration(),
		StopTimeout:  cfg.Scan.StopTimeout.Duration(),
		ReverseDNS:   cfg.Scan.ReverseDNS,
		DNSTimeout:   cfg.Scan.DNSTimeout.Duration(),
	}, a.prober, newGatewayResolver(cfg), a.registry, scanOpts...)

	return a, nil
}

// checkProber warns when nmap cannot run; scans would fail every cycle
func (a *app) checkProber(ctx context.Context) {
	if err := a.prober.Available(ctx); err != nil {
		a.logger.Warn("nmap is not usable, scans will fail until it is installed", "error", err)
	}
	if netinfo.RawSocketAvailable() {
		return
	}
	switch {
	case a.cfg.Scan.Privileged:
		a.logger.Warn("privileged scanning requested but raw sockets are unavailable; run as root or grant CAP_NET_RAW")
	case a.cfg.Scan.OSDetection:
		a.logger.Info("raw sockets unavailable, OS fingerprinting disabled and routes may not be traced")
	}
}

// Close releases the store
func (a *app) Close() error {
	return a.store.Close()
}

func resolveVantage(cfg *config.Config) (netinfo.Vantage, error) {
	if cfg.Scan.VantageIP != "" {
		return netinfo.VantageFromConfig(cfg.Scan.VantageIP, cfg.Scan.LocalSubnet)
	}
	v, err := netinfo.DetectVantage(netinfo.DefaultProbeAddr)
	if err != nil {
		return netinfo.Vantage{}, fmt.Errorf("detect vantage (set scan.vantage_ip to skip detection): %w", err)
	}
	if cfg.Scan.LocalSubnet != "" {
		override, err := netinfo.VantageFromConfig(v.IP, cfg.Scan.LocalSubnet)
		if err != nil {
			return netinfo.Vantage{}, err
		}
		v.Subnet = override.Subnet
	}
	return v, nil
}

func newGatewayResolver(cfg *config.Config) netinfo.GatewayResolver {
	if cfg.Scan.Gateway != "" {
		return netinfo.StaticGateway(cfg.Scan.Gateway)
	}
	return netinfo.NewRouteTableResolver(cfg.Scan.RouteTable)
}

func newResolver(cfg *config.Config) *adapter.DNSResolver {
	opts := []adapter.ResolverOption{
		adapter.WithLookupTimeout(cfg.Scan.DNSTimeout.Duration()),
	}
	if len(cfg.Scan.DNSServers) > 0 {
		servers := make([]string, 0, len(cfg.Scan.DNSServers))
		for _, s := range cfg.Scan.DNSServers {
			if _, _, err := net.SplitHostPort(s); err != nil {
				s = net.JoinHostPort(s, "53")
			}
			servers = append(servers, s)
		}
		opts = append(opts, adapter.WithNameservers(servers...))
	}
	return adapter.NewDNSResolver(opts...)
}

// newGenerator picks the LLM when an API key is configured and the offline
// template otherwise
func newGenerator(cfg *config.Config, logger *logging.Logger) summary.Generator {
	if !cfg.UseLLM() {
		return summary.TemplateGenerator{}
	}
	llm := summary.NewLLMGenerator(cfg.Summary.APIKey, cfg.Summary.BaseURL, cfg.Summary.Model)
	logger.Info("network summaries from chat completion endpoint", "model", llm.Model(), "base_url", cfg.Summary.BaseURL)
	return summary.NewRetrying(llm,
		summary.WithRetries(cfg.Summary.Retries),
		summary.WithBackoff(cfg.Summary.Backoff.Duration()),
		summary.WithRetryLogger(logger.WithComponent("summary")),
	)
}
