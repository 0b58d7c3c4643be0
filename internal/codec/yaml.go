package codec

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
	"topomap/internal/domain"
)

// YAMLCodec handles generic YAML import/export
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// yamlSnapshot represents the YAML structure for a snapshot
type yamlSnapshot struct {
	Nodes []yamlNode    `yaml:"nodes"`
	Edges []domain.Edge `yaml:"edges"`
}

type yamlNode struct {
	IP          string            `yaml:"ip"`
	Status      string            `yaml:"status"`
	Type        string            `yaml:"type,omitempty"`
	Hostname    string            `yaml:"hostname,omitempty"`
	MACAddress  string            `yaml:"mac_address,omitempty"`
	Vendor      string            `yaml:"vendor,omitempty"`
	OS          string            `yaml:"os,omitempty"`
	HopDistance *int              `yaml:"hop_distance,omitempty"`
	LastSeen    *time.Time        `yaml:"last_seen,omitempty"`
	OpenPorts   []yamlPort        `yaml:"open_ports,omitempty"`
	ConnectedTo []string          `yaml:"connected_to,omitempty"`
	OtherInfo   map[string]string `yaml:"other_info,omitempty"`
}

type yamlPort struct {
	Port     int    `yaml:"port"`
	Protocol string `yaml:"protocol,omitempty"`
	Service  string `yaml:"service"`
	Product  string `yaml:"product,omitempty"`
	Version  string `yaml:"version,omitempty"`
}

// Parse reads a snapshot written by Export. Edges are derived from each
// node's connected_to list; the edges section is informational.
func (c *YAMLCodec) Parse(r io.Reader) ([]domain.Node, error) {
	var ys yamlSnapshot
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&ys); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	nodes := make([]domain.Node, 0, len(ys.Nodes))
	for _, yn := range ys.Nodes {
		if yn.IP == "" {
			return nil, fmt.Errorf("node without ip")
		}
		status := domain.NodeStatus(yn.Status)
		if status == "" {
			status = domain.NodeStatusUnknown
		}
		node := domain.NewNode(yn.IP, status)
		node.NodeType = domain.NodeType(yn.Type)
		node.Hostname = yn.Hostname
		node.MACAddress = yn.MACAddress
		node.Vendor = yn.Vendor
		node.OS = yn.OS
		node.HopDistance = yn.HopDistance
		if yn.LastSeen != nil {
			node.LastSeen = *yn.LastSeen
		}
		for _, p := range yn.OpenPorts {
			node.OpenPorts = append(node.OpenPorts, domain.Port{
				Port:     p.Port,
				Protocol: p.Protocol,
				Service:  p.Service,
				Product:  p.Product,
				Version:  p.Version,
			})
		}
		for _, ip := range yn.ConnectedTo {
			node.AddEdge(ip)
		}
		for k, v := range yn.OtherInfo {
			node.SetOther(k, v)
		}
		nodes = append(nodes, *node)
	}

	return nodes, nil
}

// Export writes the nodes and their derived edges
func (c *YAMLCodec) Export(nodes []domain.Node, w io.Writer) error {
	ys := yamlSnapshot{
		Nodes: make([]yamlNode, 0, len(nodes)),
		Edges: domain.EdgesOf(nodes),
	}

	for i := range nodes {
		n := &nodes[i]
		yn := yamlNode{
			IP:          n.IP,
			Status:      string(n.Status),
			Type:        string(n.NodeType),
			Hostname:    n.Hostname,
			MACAddress:  n.MACAddress,
			Vendor:      n.Vendor,
			OS:          n.OS,
			HopDistance: n.HopDistance,
			ConnectedTo: n.ConnectedTo.Sorted(),
			OtherInfo:   n.OtherInfo,
		}
		if !n.LastSeen.IsZero() {
			ts := n.LastSeen.UTC()
			yn.LastSeen = &ts
		}
		for _, p := range n.OpenPorts {
			yn.OpenPorts = append(yn.OpenPorts, yamlPort{
				Port:     p.Port,
				Protocol: p.Protocol,
				Service:  p.Service,
				Product:  p.Product,
				Version:  p.Version,
			})
		}
		ys.Nodes = append(ys.Nodes, yn)
	}
	if ys.Edges == nil {
		ys.Edges = []domain.Edge{}
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(&ys); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return nil
}
