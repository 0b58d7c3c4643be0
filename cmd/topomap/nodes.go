package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"topomap/internal/domain"
	"topomap/internal/repository/sqlite"
)

func newNodesCmd(c *cli) *cobra.Command {
	var (
		output string
		ip     string
	)

	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "Print the last saved topology",
		Long: `Read the topology snapshot saved by the last scan cycle from the database
and print it. No scanning is done.`,
		Example: `  topomap nodes
  topomap nodes --ip 192.168.1.1 --output json
  topomap nodes --db /var/lib/topomap/topomap.db --output yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}

			store, err := sqlite.New(c.cfg.Database.Path)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			nodes, err := store.LoadSnapshot(cmd.Context())
			if err != nil {
				return err
			}
			if ip != "" {
				nodes = filterIP(nodes, ip)
				if len(nodes) == 0 {
					return fmt.Errorf("node %s not found in %s", ip, c.cfg.Database.Path)
				}
			}

			out := cmd.OutOrStdout()
			if len(nodes) == 0 && output == outputTable {
				fmt.Fprintf(out, "No nodes saved in %s. Run `topomap scan` first.\n", c.cfg.Database.Path)
				return nil
			}
			return writeNodes(out, nodes, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "output format: table, json, yaml or ansible-inventory")
	cmd.Flags().StringVar(&ip, "ip", "", "show only this node")

	return cmd
}

func filterIP(nodes []domain.Node, ip string) []domain.Node {
	for i := range nodes {
		if nodes[i].IP == ip {
			return nodes[i : i+1]
		}
	}
	return nil
}
