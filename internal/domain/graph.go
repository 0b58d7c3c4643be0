package domain

import (
	"fmt"
	"strings"
)

// Graph is the derived view consumed by vis-network style dashboards
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// GraphNode represents a node in the visualization
type GraphNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Group string `json:"group"` // "vantage", "gateway", "host" or "hop"
	Title string `json:"title"` // Tooltip content
	Level *int   `json:"level,omitempty"`
}

// GraphEdge represents an edge in the visualization
type GraphEdge struct {
	ID   string `json:"id"`
	From string `json:"from"`
	To   string `json:"to"`
}

// DeriveGraph converts a registry snapshot to a visualization graph
func DeriveGraph(nodes []Node) *Graph {
	graph := &Graph{
		Nodes: make([]GraphNode, 0, len(nodes)),
		Edges: make([]GraphEdge, 0),
	}

	for i := range nodes {
		n := &nodes[i]
		label := n.IP
		if n.Hostname != "" {
			label = shortName(n.Hostname)
		}
		graph.Nodes = append(graph.Nodes, GraphNode{
			ID:    n.IP,
			Label: label,
			Group: groupOf(n),
			Title: buildTooltip(n),
			Level: n.HopDistance,
		})
	}

	for _, e := range EdgesOf(nodes) {
		graph.Edges = append(graph.Edges, GraphEdge{ID: e.ID, From: e.From, To: e.To})
	}

	return graph
}

func groupOf(n *Node) string {
	switch {
	case n.NodeType == NodeTypeVantage:
		return "vantage"
	case n.NodeType == NodeTypeGateway:
		return "gateway"
	case n.Status == NodeStatusUnknown:
		return "hop"
	default:
		return "host"
	}
}

func buildTooltip(n *Node) string {
	lines := []string{n.IP}
	if n.Hostname != "" {
		lines = append(lines, n.Hostname)
	}
	if n.OS != "" {
		lines = append(lines, n.OS)
	}
	if n.HopDistance != nil {
		lines = append(lines, fmt.Sprintf("%d hops", *n.HopDistance))
	}
	if len(n.OpenPorts) > 0 {
		lines = append(lines, fmt.Sprintf("%d open ports", len(n.OpenPorts)))
	}
	return strings.Join(lines, "\n")
}

// shortName trims the domain suffix from a hostname for display
func shortName(hostname string) string {
	if idx := strings.Index(hostname, "."); idx > 2 {
		return hostname[:idx]
	}
	return hostname
}
