package repository

import (
	"context"

	"topomap/internal/domain"
)

// SnapshotStore persists whole registry snapshots
type SnapshotStore interface {
	// SaveSnapshot replaces the stored topology with nodes
	SaveSnapshot(ctx context.Context, nodes []domain.Node) error

	// LoadSnapshot returns the last saved topology ordered by IP
	LoadSnapshot(ctx context.Context) ([]domain.Node, error)

	// Close releases resources
	Close() error
}
