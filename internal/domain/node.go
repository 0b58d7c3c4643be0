package domain

import (
	"encoding/json"
	"net/netip"
	"sort"
	"time"
)

// NodeStatus represents the liveness of a node as last observed
type NodeStatus string

const (
	NodeStatusUp      NodeStatus = "up"
	NodeStatusDown    NodeStatus = "down"
	NodeStatusUnknown NodeStatus = "unknown" // Placeholder created from a trace hop
)

// NodeType marks nodes with a topological role
type NodeType string

const (
	NodeTypeNone    NodeType = ""
	NodeTypeGateway NodeType = "gateway"
	NodeTypeVantage NodeType = "vantage"
)

// Port is an open port with the service detected behind it
type Port struct {
	Port     int    `json:"port"`
	Protocol string `json:"protocol,omitempty"`
	Service  string `json:"service"`
	Version  string `json:"version"`
	Product  string `json:"product"`
}

// Node is one host in the discovered topology, keyed by IP
type Node struct {
	IP          string            `json:"ip"`
	MACAddress  string            `json:"mac_address,omitempty"`
	Hostname    string            `json:"hostname,omitempty"`
	Vendor      string            `json:"vendor,omitempty"`
	OS          string            `json:"os,omitempty"`
	OpenPorts   []Port            `json:"open_ports"`
	LastSeen    time.Time         `json:"last_seen"`
	Status      NodeStatus        `json:"status"`
	ConnectedTo AdjacencySet      `json:"connected_to"`
	HopDistance *int              `json:"hop_distance,omitempty"`
	NodeType    NodeType          `json:"node_type,omitempty"`
	OtherInfo   map[string]string `json:"other_info,omitempty"`
}

// NewNode creates a node with initialized collections
func NewNode(ip string, status NodeStatus) *Node {
	return &Node{
		IP:          ip,
		Status:      status,
		OpenPorts:   []Port{},
		ConnectedTo: AdjacencySet{},
		OtherInfo:   make(map[string]string),
	}
}

// NewPlaceholder creates a minimal node for an address seen only as a trace hop
func NewPlaceholder(ip, hostname string) *Node {
	node := NewNode(ip, NodeStatusUnknown)
	node.Hostname = hostname
	return node
}

// SetHopDistance relaxes the hop distance to d if it is smaller than the
// current value. Returns true when the value changed.
func (n *Node) SetHopDistance(d int) bool {
	if n.HopDistance != nil && *n.HopDistance <= d {
		return false
	}
	n.HopDistance = &d
	return true
}

// AddEdge records a directed edge to ip
func (n *Node) AddEdge(ip string) bool {
	if n.ConnectedTo == nil {
		n.ConnectedTo = AdjacencySet{}
	}
	return n.ConnectedTo.Add(ip)
}

// Touch updates the last seen timestamp
func (n *Node) Touch(now time.Time) {
	n.LastSeen = now
}

// SetOther sets a free-form attribute
func (n *Node) SetOther(key, value string) {
	if n.OtherInfo == nil {
		n.OtherInfo = make(map[string]string)
	}
	n.OtherInfo[key] = value
}

// Clone returns a deep copy that shares no memory with n
func (n *Node) Clone() Node {
	c := *n
	c.OpenPorts = append([]Port{}, n.OpenPorts...)
	c.ConnectedTo = n.ConnectedTo.Clone()
	if n.HopDistance != nil {
		d := *n.HopDistance
		c.HopDistance = &d
	}
	c.OtherInfo = make(map[string]string, len(n.OtherInfo))
	for k, v := range n.OtherInfo {
		c.OtherInfo[k] = v
	}
	return c
}

// AdjacencySet is the set of IPs a node has a directed edge to
type AdjacencySet map[string]struct{}

// NewAdjacencySet builds a set from ips
func NewAdjacencySet(ips ...string) AdjacencySet {
	s := make(AdjacencySet, len(ips))
	for _, ip := range ips {
		s[ip] = struct{}{}
	}
	return s
}

// Add inserts ip, returning false if it was already present
func (s AdjacencySet) Add(ip string) bool {
	if _, ok := s[ip]; ok {
		return false
	}
	s[ip] = struct{}{}
	return true
}

// Has reports membership
func (s AdjacencySet) Has(ip string) bool {
	_, ok := s[ip]
	return ok
}

// Sorted returns the members in lexical order
func (s AdjacencySet) Sorted() []string {
	out := make([]string, 0, len(s))
	for ip := range s {
		out = append(out, ip)
	}
	sort.Strings(out)
	return out
}

// Clone copies the set
func (s AdjacencySet) Clone() AdjacencySet {
	c := make(AdjacencySet, len(s))
	for ip := range s {
		c[ip] = struct{}{}
	}
	return c
}

// MarshalJSON encodes the set as a sorted array
func (s AdjacencySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes an array of IPs
func (s *AdjacencySet) UnmarshalJSON(data []byte) error {
	var ips []string
	if err := json.Unmarshal(data, &ips); err != nil {
		return err
	}
	*s = NewAdjacencySet(ips...)
	return nil
}

// LessIP orders addresses numerically, falling back to string order for
// values that do not parse.
func LessIP(a, b string) bool {
	pa, errA := netip.ParseAddr(a)
	pb, errB := netip.ParseAddr(b)
	if errA != nil || errB != nil {
		return a < b
	}
	return pa.Less(pb)
}
