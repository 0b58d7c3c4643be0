package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"topomap/internal/config"
	"topomap/internal/logging"
)

// envPrefix scopes environment overrides, e.g. TOPOMAP_SCAN_WORKERS
const envPrefix = "TOPOMAP"

// cli carries state shared by every subcommand
type cli struct {
	v       *viper.Viper
	cfgFile string

	cfg     *config.Config
	cfgPath string
	logger  *logging.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "topomap",
		Short: "Network topology mapper",
		Long: `topomap sweeps the local network with nmap, traces the path to every
live host, enriches hosts with services and OS fingerprints, and keeps the
resulting topology in memory. The topology is persisted to SQLite and served
over a small HTTP API with a live event stream.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default: search $TOPOMAP_CONFIG, ./topomap.yaml, ~/.config/topomap)")
	flags.String("posture", "", "scan posture: stealth, cautious, balanced or aggressive")
	flags.StringSlice("target", nil, "CIDR range or address to scan (repeatable)")
	flags.String("db", "", "SQLite database path")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("log-format", "", "log format: text or json")
	flags.Bool("dev", false, "strict registry checks and debug logging")
	c.bind(flags, map[string]string{
		"posture":        "posture",
		"scan.targets":   "target",
		"database.path":  "db",
		"logging.level":  "log-level",
		"logging.format": "log-format",
		"dev":            "dev",
	})

	c.v.SetEnvPrefix(envPrefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	c.v.AutomaticEnv()

	root.AddCommand(
		newServeCmd(c),
		newScanCmd(c),
		newNodesCmd(c),
		newConfigCmd(c),
	)

	return root
}

// bind maps config keys to flag names on the shared viper instance
func (c *cli) bind(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := c.v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

// init loads, overrides and validates the config, then installs the logger
func (c *cli) init() error {
	var err error
	if c.cfgFile != "" {
		c.cfg, c.cfgPath, err = config.LoadFromPath(c.cfgFile)
	} else {
		c.cfg, c.cfgPath, err = config.Load()
	}
	if err != nil {
		return err
	}

	c.cfg.ApplyOverrides(c.v)
	if c.cfg.Dev {
		c.cfg.Logging.Level = logging.LevelDebug
		c.cfg.Logging.AddSource = true
	}
	if err := c.cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(c.cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	logging.SetDefault(logger)
	c.logger = logger

	if c.cfgPath != "" {
		logger.Debug("config loaded", "path", c.cfgPath)
	}
	return nil
}
