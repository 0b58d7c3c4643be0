// Package summary produces human-readable descriptions of the discovered
// topology, either through an OpenAI-compatible chat model or from a local
// template when no model is configured.
package summary

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"topomap/internal/domain"
)

// Unavailable is returned in place of a summary when every attempt failed
const Unavailable = "Summary not available. Try again later."

// Generator describes a set of nodes
type Generator interface {
	Summarize(ctx context.Context, nodes []domain.Node) (string, error)
}

// GeneratorFunc adapts a function to Generator
type GeneratorFunc func(ctx context.Context, nodes []domain.Node) (string, error)

// Summarize calls f
func (f GeneratorFunc) Summarize(ctx context.Context, nodes []domain.Node) (string, error) {
	return f(ctx, nodes)
}

const instructions = "Given the following network nodes information, please describe them and provide a useful analysis. " +
	"Be short and incisive, don't be unsure by writing 'it appears' or 'it might be'.\n\n"

// BuildPrompt renders the nodes as the model prompt
func BuildPrompt(nodes []domain.Node) string {
	if len(nodes) == 0 {
		return "No nodes are available."
	}

	blocks := make([]string, 0, len(nodes))
	for i := range nodes {
		blocks = append(blocks, describeNode(&nodes[i]))
	}

	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("The required nodes have been found. Below are their details:\n\n")
	b.WriteString(strings.Join(blocks, "\n\n"))
	b.WriteString("\n")
	return b.String()
}

// describeNode lists the known fields of n, one per line
func describeNode(n *domain.Node) string {
	lines := []string{"IP: " + n.IP}
	add := func(label, value string) {
		if known(value) {
			lines = append(lines, label+": "+value)
		}
	}

	add("MAC", n.MACAddress)
	add("Hostname", n.Hostname)
	add("OS", n.OS)
	if len(n.OpenPorts) > 0 {
		ports := make([]string, 0, len(n.OpenPorts))
		for _, p := range n.OpenPorts {
			ports = append(ports, fmt.Sprintf("%d/%s", p.Port, p.Service))
		}
		lines = append(lines, "Open Ports: "+strings.Join(ports, ", "))
	}
	add("Status", string(n.Status))
	if n.NodeType != domain.NodeTypeNone {
		lines = append(lines, "Role: "+string(n.NodeType))
	}
	if len(n.OtherInfo) > 0 {
		keys := make([]string, 0, len(n.OtherInfo))
		for k := range n.OtherInfo {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+n.OtherInfo[k])
		}
		lines = append(lines, "Other Info: "+strings.Join(pairs, ", "))
	}
	if len(n.ConnectedTo) > 0 {
		lines = append(lines, "Connected To: "+strings.Join(n.ConnectedTo.Sorted(), ", "))
	}
	if n.HopDistance != nil {
		lines = append(lines, "Hop Distance: "+strconv.Itoa(*n.HopDistance))
	}
	return strings.Join(lines, "\n")
}

func known(v string) bool {
	return v != "" && v != "unknown"
}
