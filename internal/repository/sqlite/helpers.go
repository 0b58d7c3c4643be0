package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"topomap/internal/domain"
)

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// stringToNull safely converts string to sql.NullString
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// intPtrToNull converts *int to sql.NullInt64
func intPtrToNull(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

// nullToIntPtr converts sql.NullInt64 to *int
func nullToIntPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

// ============================================================================
// JSON Marshaling Helpers
// ============================================================================

// unmarshalJSONField safely unmarshals JSON from nullable string into target
func unmarshalJSONField(ns sql.NullString, target interface{}) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), target)
}

// marshalToNull marshals v to a nullable JSON string.
// Empty collections are stored as NULL.
func marshalToNull(v interface{}) (sql.NullString, error) {
	switch t := v.(type) {
	case nil:
		return sql.NullString{}, nil
	case map[string]string:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	case []domain.Port:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	case domain.AdjacencySet:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// ============================================================================
// Node Row
// ============================================================================
//
// To add a column: add the field with its db tag to nodeRow, append it to
// nodeColumns and to the INSERT in sqlite.go, map it in toDomain and
// nodeToRow, and add an ALTER TABLE step to migrate().

// nodeRow holds all columns of the nodes table
type nodeRow struct {
	IP          string         `db:"ip"`
	MACAddress  sql.NullString `db:"mac_address"`
	Hostname    sql.NullString `db:"hostname"`
	Vendor      sql.NullString `db:"vendor"`
	OS          sql.NullString `db:"os"`
	Status      string         `db:"status"`
	NodeType    sql.NullString `db:"node_type"`
	HopDistance sql.NullInt64  `db:"hop_distance"`
	LastSeen    sql.NullString `db:"last_seen"`
	OpenPorts   sql.NullString `db:"open_ports"`
	ConnectedTo sql.NullString `db:"connected_to"`
	OtherInfo   sql.NullString `db:"other_info"`
}

// nodeColumns is the SELECT column list for node queries
const nodeColumns = `ip, mac_address, hostname, vendor, os, status, node_type,
	hop_distance, last_seen, open_ports, connected_to, other_info`

// toDomain converts the scanned row to a domain.Node
func (r *nodeRow) toDomain() (domain.Node, error) {
	node := domain.Node{
		IP:          r.IP,
		MACAddress:  nullToString(r.MACAddress),
		Hostname:    nullToString(r.Hostname),
		Vendor:      nullToString(r.Vendor),
		OS:          nullToString(r.OS),
		Status:      domain.NodeStatus(r.Status),
		NodeType:    domain.NodeType(nullToString(r.NodeType)),
		HopDistance: nullToIntPtr(r.HopDistance),
		ConnectedTo: domain.AdjacencySet{},
	}

	if node.Status == "" {
		node.Status = domain.NodeStatusUnknown
	}

	if r.LastSeen.Valid && r.LastSeen.String != "" {
		ts, err := time.Parse(time.RFC3339Nano, r.LastSeen.String)
		if err != nil {
			return domain.Node{}, fmt.Errorf("parse last_seen: %w", err)
		}
		node.LastSeen = ts
	}

	if err := unmarshalJSONField(r.OpenPorts, &node.OpenPorts); err != nil {
		return domain.Node{}, fmt.Errorf("unmarshal open_ports: %w", err)
	}
	if err := unmarshalJSONField(r.ConnectedTo, &node.ConnectedTo); err != nil {
		return domain.Node{}, fmt.Errorf("unmarshal connected_to: %w", err)
	}
	if err := unmarshalJSONField(r.OtherInfo, &node.OtherInfo); err != nil {
		return domain.Node{}, fmt.Errorf("unmarshal other_info: %w", err)
	}

	return node, nil
}

// nodeToRow converts a domain.Node to its row form
func nodeToRow(node *domain.Node) (*nodeRow, error) {
	row := &nodeRow{
		IP:          node.IP,
		MACAddress:  stringToNull(node.MACAddress),
		Hostname:    stringToNull(node.Hostname),
		Vendor:      stringToNull(node.Vendor),
		OS:          stringToNull(node.OS),
		Status:      string(node.Status),
		NodeType:    stringToNull(string(node.NodeType)),
		HopDistance: intPtrToNull(node.HopDistance),
	}
	if row.Status == "" {
		row.Status = string(domain.NodeStatusUnknown)
	}
	if !node.LastSeen.IsZero() {
		row.LastSeen = stringToNull(node.LastSeen.UTC().Format(time.RFC3339Nano))
	}

	var err error
	if row.OpenPorts, err = marshalToNull(node.OpenPorts); err != nil {
		return nil, fmt.Errorf("marshal open_ports: %w", err)
	}
	if row.ConnectedTo, err = marshalToNull(node.ConnectedTo); err != nil {
		return nil, fmt.Errorf("marshal connected_to: %w", err)
	}
	if row.OtherInfo, err = marshalToNull(node.OtherInfo); err != nil {
		return nil, fmt.Errorf("marshal other_info: %w", err)
	}
	return row, nil
}
