package summary

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"topomap/internal/domain"
)

// TemplateGenerator describes the topology without a model. It is used when
// no API key is configured.
type TemplateGenerator struct{}

// Summarize counts hosts by status and role and lists the busiest services
func (TemplateGenerator) Summarize(_ context.Context, nodes []domain.Node) (string, error) {
	if len(nodes) == 0 {
		return "No nodes are available.", nil
	}

	var (
		up, down, unknown int
		gateway, vantage  string
		maxHop            int
		services          = make(map[string]int)
	)
	for i := range nodes {
		n := &nodes[i]
		switch n.Status {
		case domain.NodeStatusUp:
			up++
		case domain.NodeStatusDown:
			down++
		default:
			unknown++
		}
		switch n.NodeType {
		case domain.NodeTypeGateway:
			gateway = n.IP
		case domain.NodeTypeVantage:
			vantage = n.IP
		}
		if n.HopDistance != nil && *n.HopDistance > maxHop {
			maxHop = *n.HopDistance
		}
		for _, p := range n.OpenPorts {
			if known(p.Service) {
				services[p.Service]++
			}
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d nodes discovered: %d up, %d down, %d seen only on traced paths.", len(nodes), up, down, unknown)
	if vantage != "" {
		fmt.Fprintf(&b, " Scanning from %s.", vantage)
	}
	if gateway != "" {
		fmt.Fprintf(&b, " Default gateway is %s.", gateway)
	}
	if maxHop > 0 {
		fmt.Fprintf(&b, " Farthest node is %d hops away.", maxHop)
	}
	if top := topServices(services, 5); len(top) > 0 {
		fmt.Fprintf(&b, " Most common services: %s.", strings.Join(top, ", "))
	}
	return b.String(), nil
}

func topServices(counts map[string]int, limit int) []string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > limit {
		names = names[:limit]
	}
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = fmt.Sprintf("%s (%d)", name, counts[name])
	}
	return out
}
