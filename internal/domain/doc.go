// Package domain defines the core types of the topomap discovery engine.
//
// # Core Types
//
// Node is a host in the discovered topology, keyed by IP. It carries liveness,
// MAC/vendor, open ports, an OS guess, its outgoing adjacency (ConnectedTo)
// and the minimum hop distance at which it was observed from the vantage point.
//
// Hop is one point on a traced path (ttl, ip, rtt, reverse name).
//
// HostScanRecord is the strict, typed result of probing one host. It is the
// only shape scan output takes once it leaves the adapter package.
//
// Edge and Graph are derived read-only views used for export and dashboards.
//
// # Design Principles
//
// - No database or external dependencies
// - Nodes handed out of the registry are deep copies (Node.Clone)
package domain
