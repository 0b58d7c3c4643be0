package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"topomap/internal/config"
)

const redacted = "<redacted>"

func newConfigCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}
	cmd.AddCommand(newConfigInitCmd(c), newConfigShowCmd(c))
	return cmd
}

func newConfigInitCmd(c *cli) *cobra.Command {
	var (
		path  string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to a file",
		Long: `Write the current configuration, defaults merged with any flags and
TOPOMAP_* variables, to a YAML file. Existing files are kept unless --force
is given.`,
		Example: `  topomap config init
  topomap config init --posture cautious --target 10.0.0.0/24 --path ./topomap.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				path = config.DefaultConfigPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := c.cfg.Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "destination file (default: user config dir)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	return cmd
}

func newConfigShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			source := c.cfgPath
			if source == "" {
				source = "built-in defaults"
			}
			fmt.Fprintf(out, "# Source: %s\n", source)
			for _, line := range strings.Split(c.cfg.Describe(), "\n") {
				fmt.Fprintf(out, "# %s\n", line)
			}
			fmt.Fprintln(out)

			shown := *c.cfg
			if shown.Summary.APIKey != "" {
				shown.Summary.APIKey = redacted
			}
			data, err := yaml.Marshal(&shown)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, err = out.Write(data)
			return err
		},
	}
}
