package sqlite

import (
	"context"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
	"topomap/internal/domain"
	"topomap/internal/errors"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite
const DriverName = "sqlite"

// Store implements repository.SnapshotStore using SQLite
type Store struct {
	db *sqlx.DB
}

// New opens (creating if needed) the database at dbPath
func New(dbPath string) (*Store, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sqlx.Open(DriverName, dsn)
	if err != nil {
		return nil, errors.Wrap(errors.CodePersistence, "failed to open database", err).WithTarget(dbPath)
	}
	// One connection keeps an in-memory database alive and serializes writers
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.CodePersistence, "failed to migrate database", err).WithTarget(dbPath)
	}

	return store, nil
}

// NewWithDB wraps an existing connection without migrating it
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		ip TEXT PRIMARY KEY,
		mac_address TEXT,
		hostname TEXT,
		vendor TEXT,
		os TEXT,
		status TEXT NOT NULL DEFAULT 'unknown',
		node_type TEXT,
		hop_distance INTEGER,
		last_seen TEXT,
		open_ports TEXT,
		connected_to TEXT,
		other_info TEXT
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const insertNode = `
	INSERT INTO nodes (ip, mac_address, hostname, vendor, os, status, node_type,
		hop_distance, last_seen, open_ports, connected_to, other_info)
	VALUES (:ip, :mac_address, :hostname, :vendor, :os, :status, :node_type,
		:hop_distance, :last_seen, :open_ports, :connected_to, :other_info)
`

// SaveSnapshot replaces the nodes table with nodes in one transaction. A
// failure leaves the previous snapshot in place.
func (s *Store) SaveSnapshot(ctx context.Context, nodes []domain.Node) error {
	rows := make([]*nodeRow, 0, len(nodes))
	for i := range nodes {
		row, err := nodeToRow(&nodes[i])
		if err != nil {
			return errors.Wrap(errors.CodePersistence, "failed to encode node", err).WithTarget(nodes[i].IP)
		}
		rows = append(rows, row)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.CodePersistence, "failed to begin transaction", err).WithOp("save snapshot")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes`); err != nil {
		return errors.Wrap(errors.CodePersistence, "failed to clear nodes", err).WithOp("save snapshot")
	}

	for _, row := range rows {
		if _, err := tx.NamedExecContext(ctx, insertNode, row); err != nil {
			return errors.Wrap(errors.CodePersistence, "failed to insert node", err).WithTarget(row.IP).WithOp("save snapshot")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.CodePersistence, "failed to commit snapshot", err).WithOp("save snapshot")
	}
	return nil
}

// LoadSnapshot returns the stored nodes ordered by IP
func (s *Store) LoadSnapshot(ctx context.Context) ([]domain.Node, error) {
	var rows []nodeRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+nodeColumns+` FROM nodes`); err != nil {
		return nil, errors.Wrap(errors.CodePersistence, "failed to query nodes", err).WithOp("load snapshot")
	}

	nodes := make([]domain.Node, 0, len(rows))
	for i := range rows {
		node, err := rows[i].toDomain()
		if err != nil {
			return nil, errors.Wrap(errors.CodePersistence, fmt.Sprintf("corrupt row for %s", rows[i].IP), err).WithOp("load snapshot")
		}
		nodes = append(nodes, node)
	}

	sort.Slice(nodes, func(i, j int) bool { return domain.LessIP(nodes[i].IP, nodes[j].IP) })
	return nodes, nil
}

// Count returns the number of stored nodes
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM nodes`); err != nil {
		return 0, errors.Wrap(errors.CodePersistence, "failed to count nodes", err)
	}
	return n, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
