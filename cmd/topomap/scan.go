package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newScanCmd(c *cli) *cobra.Command {
	var (
		output      string
		withSummary bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one discovery cycle and print the topology",
		Long: `Run a single sweep, trace and enrichment cycle against the configured
targets, save the resulting snapshot and print it. Interrupting the command
cancels the cycle; hosts already merged are still saved.`,
		Example: `  topomap scan --target 192.168.1.0/24
  topomap scan --posture stealth --output yaml
  topomap scan --output ansible-inventory > hosts.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.scanOnce(cmd, output, withSummary)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&output, "output", "o", outputTable, "output format: table, json, yaml or ansible-inventory")
	flags.BoolVar(&withSummary, "summary", false, "generate and print a network summary")
	flags.Int("workers", 0, "concurrent host probes (0 uses the posture default)")
	flags.String("timing", "", "nmap timing template 0-5 or name (paranoid..insane)")
	flags.Bool("os-detection", true, "fingerprint operating systems during enrichment")
	c.bind(flags, map[string]string{
		"scan.workers":      "workers",
		"scan.timing":       "timing",
		"scan.os_detection": "os-detection",
	})

	return cmd
}

func (c *cli) scanOnce(cmd *cobra.Command, output string, withSummary bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := validateOutput(output); err != nil {
		return err
	}

	a, err := newApp(c.cfg, c.logger, appOptions{summaries: withSummary})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			c.logger.Error("close store", "error", err)
		}
	}()
	a.checkProber(ctx)

	report := a.orchestrator.RunCycle(ctx)
	nodes := a.registry.Snapshot()

	// Persist and summarize even when interrupted
	a.topology.HandleSnapshot(context.WithoutCancel(ctx), nodes)
	a.topology.Wait()

	out := cmd.OutOrStdout()
	if err := writeNodes(out, nodes, output); err != nil {
		return err
	}
	if output != outputTable {
		return nil
	}

	fmt.Fprintln(out)
	writeReport(out, report)
	if withSummary {
		if text := a.topology.Summary(); text != "" {
			fmt.Fprintf(out, "\n%s\n", text)
		}
	}
	return nil
}
