// Package repository defines the persistence interface for topology snapshots.
//
// A snapshot is the full node list of the registry at one moment. Saving a
// snapshot overwrites whatever was stored before; there is no history and no
// incremental update. The sqlite subpackage provides the implementation.
//
// # Concurrency
//
// Overlapping SaveSnapshot calls on the same store are not ordered; callers
// that save from several goroutines must serialize their own calls.
package repository
