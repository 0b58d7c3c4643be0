package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"topomap/internal/codec"
	"topomap/internal/domain"
	"topomap/internal/scan"
)

const outputTable = "table"

// validateOutput rejects an unknown format before any work starts
func validateOutput(format string) error {
	if format == "" || format == outputTable {
		return nil
	}
	_, err := codec.ExporterFor(format)
	return err
}

// writeNodes renders nodes as a table or through one of the codec exporters
func writeNodes(w io.Writer, nodes []domain.Node, format string) error {
	if format == "" || format == outputTable {
		nodesTable(w, nodes)
		return nil
	}
	exporter, err := codec.ExporterFor(format)
	if err != nil {
		return err
	}
	return exporter.Export(nodes, w)
}

func nodesTable(w io.Writer, nodes []domain.Node) {
	table := tablewriter.NewWriter(w)
	table.Header("IP", "Hostname", "Type", "Status", "Hops", "OS", "Ports", "Links")

	for i := range nodes {
		n := &nodes[i]

		hops := "-"
		if n.HopDistance != nil {
			hops = strconv.Itoa(*n.HopDistance)
		}
		nodeType := string(n.NodeType)
		if nodeType == "" {
			nodeType = "host"
		}

		_ = table.Append([]string{
			n.IP,
			n.Hostname,
			nodeType,
			string(n.Status),
			hops,
			n.OS,
			portList(n.OpenPorts),
			strconv.Itoa(len(n.ConnectedTo)),
		})
	}

	_ = table.Render()
}

func portList(ports []domain.Port) string {
	parts := make([]string, 0, len(ports))
	for _, p := range ports {
		if p.Service != "" {
			parts = append(parts, fmt.Sprintf("%d/%s", p.Port, p.Service))
		} else {
			parts = append(parts, strconv.Itoa(p.Port))
		}
	}
	return strings.Join(parts, ", ")
}

// writeReport prints a one-paragraph cycle summary and any host failures
func writeReport(w io.Writer, report scan.CycleReport) {
	status := "completed"
	switch {
	case report.Cancelled:
		status = "cancelled"
	case report.Error != "":
		status = "failed: " + report.Error
	}
	fmt.Fprintf(w, "Cycle %s %s in %s: %d candidates, %d enriched",
		report.ID, status, report.Duration().Round(1e6), report.Candidates, report.Enriched)
	if report.Gateway != "" {
		fmt.Fprintf(w, ", gateway %s", report.Gateway)
	}
	fmt.Fprintln(w)
	if report.GatewayNote != "" {
		fmt.Fprintf(w, "Gateway: %s\n", report.GatewayNote)
	}

	if len(report.Failures) == 0 {
		return
	}
	table := tablewriter.NewWriter(w)
	table.Header("Host", "Code", "Error")
	for _, f := range report.Failures {
		_ = table.Append([]string{f.IP, f.Code, f.Error})
	}
	_ = table.Render()
}
