package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"topomap/internal/domain"
)

// JSONCodec handles JSON import/export
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// Parse reads a node array
func (c *JSONCodec) Parse(r io.Reader) ([]domain.Node, error) {
	var nodes []domain.Node
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&nodes); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	for i := range nodes {
		if nodes[i].ConnectedTo == nil {
			nodes[i].ConnectedTo = domain.AdjacencySet{}
		}
	}
	return nodes, nil
}

// Export writes the nodes as an indented array
func (c *JSONCodec) Export(nodes []domain.Node, w io.Writer) error {
	if nodes == nil {
		nodes = []domain.Node{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(nodes); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
