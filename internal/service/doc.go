// Package service implements the snapshot consumers that sit behind the scan
// orchestrator.
//
// # Services
//
// TopologyService receives registry snapshots after each scan phase. It keeps
// a natural-language summary of the network current, coalescing bursts of
// snapshots into a single follow-up refresh, and overwrites the persisted
// snapshot with the newest one it has seen.
//
// # Event System
//
// EventBus carries scan progress and service events to subscribers; the SSE
// hub is one of them. Publishing never blocks: slow subscribers miss events.
package service
