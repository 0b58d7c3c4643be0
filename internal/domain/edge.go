package domain

import (
	"crypto/sha256"
	"fmt"
	"sort"
)

// Edge is a directed adjacency between two nodes, derived from ConnectedTo
type Edge struct {
	ID   string `json:"id" yaml:"id"`
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// NewEdge creates a new edge with a deterministic ID
func NewEdge(from, to string) Edge {
	edge := Edge{From: from, To: to}
	edge.ID = edge.GenerateID()
	return edge
}

// GenerateID creates a deterministic ID for the edge based on its endpoints.
// Direction matters: a->b and b->a are different edges.
func (e *Edge) GenerateID() string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s->%s", e.From, e.To)))
	return fmt.Sprintf("%x", hash[:8])
}

// EdgesOf flattens the adjacency of nodes into a sorted edge list
func EdgesOf(nodes []Node) []Edge {
	var edges []Edge
	for i := range nodes {
		for _, to := range nodes[i].ConnectedTo.Sorted() {
			edges = append(edges, NewEdge(nodes[i].IP, to))
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	return edges
}
