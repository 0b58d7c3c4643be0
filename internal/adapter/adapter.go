package adapter

import (
	"context"
)

// Capabilities selects which probes a scan performs against a target
type Capabilities struct {
	// Liveness - host discovery only, no port scan (-sn)
	Liveness bool `json:"liveness"`
	// Traceroute - record the path to each host (--traceroute)
	Traceroute bool `json:"traceroute"`
	// ServiceVersion - probe open ports for service/version (-sV)
	ServiceVersion bool `json:"service_version"`
	// OSFingerprint - TCP/IP stack fingerprinting (-O), requires root
	OSFingerprint bool `json:"os_fingerprint"`
}

var (
	// SweepCapabilities is the cheap liveness + path probe run over a whole range
	SweepCapabilities = Capabilities{Liveness: true, Traceroute: true}
	// TraceCapabilities is used for one-off external host traces
	TraceCapabilities = Capabilities{Liveness: true, Traceroute: true}
	// EnrichCapabilities is the deep per-host probe
	EnrichCapabilities = Capabilities{ServiceVersion: true, OSFingerprint: true}
)

// RawScan is the unprocessed output of one probe invocation
type RawScan struct {
	Target string `json:"target"`
	// XML is the complete nmap XML report
	XML []byte `json:"-"`
	// Warnings are non-fatal messages printed by the tool
	Warnings []string `json:"warnings,omitempty"`
	// ToolErrors are fatal messages the tool reported about its own run
	ToolErrors []string `json:"tool_errors,omitempty"`
}

// Prober runs a raw scan against a target (CIDR range or single address)
type Prober interface {
	Probe(ctx context.Context, target string, caps Capabilities) (*RawScan, error)
}

// Resolver performs reverse DNS lookups
type Resolver interface {
	LookupAddr(ctx context.Context, ip string) (string, error)
}
