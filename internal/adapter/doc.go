// Package adapter is the boundary between topomap and the scanning tools it
// drives.
//
// # Probing
//
// NmapProber runs nmap through github.com/Ullaakut/nmap/v3 and returns the
// untouched XML report as a RawScan. Which probes run is selected with
// Capabilities (liveness, traceroute, service/version, OS fingerprint). A probe
// that has been dispatched always runs to completion or to its own timeout;
// cancelling the caller's context only prevents new probes from starting.
//
// # Normalization
//
// Normalize turns a RawScan into strictly typed domain.HostScanRecord values.
// The structured host data comes from the nmap library parser. Traceroute hops
// are read by a second, independent pass over the same XML and merged into the
// records by host address, so the hop lists do not depend on how the library
// models traces.
//
// # Reverse DNS
//
// DNSResolver resolves PTR records with github.com/miekg/dns against the
// system nameservers and falls back to the Go resolver.
package adapter
