// Package cmd provides the CLI commands for docmemory.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docmemory/internal/config"
	docerrors "github.com/Aman-CERP/docmemory/internal/errors"
	"github.com/Aman-CERP/docmemory/internal/logging"
	"github.com/Aman-CERP/docmemory/pkg/version"
)

// globalOptions holds the persistent flags and the state they produce.
type globalOptions struct {
	storage    string
	configPath string
	debug      bool
	noColor    bool

	cfg            *config.Config
	loggingCleanup func()
}

// NewRootCmd creates the root command for the docmemory CLI.
func NewRootCmd() *cobra.Command {
	g := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "docmemory",
		Short: "Local document memory with hybrid search",
		Long: `docmemory stores documents as embedded chunks and retrieves them with
semantic, keyword and hybrid search.

Everything runs locally. Records, indexes and backups live in one
storage directory (default ./docmemory_storage).`,
		Version:           version.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: g.setup,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			g.teardown()
			return nil
		},
	}

	cmd.SetVersionTemplate("docmemory version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&g.storage, "storage", "", "Storage directory (overrides config)")
	cmd.PersistentFlags().StringVar(&g.configPath, "config", "", "Config file (default: layered user and project config)")
	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging to stderr and the log file")
	cmd.PersistentFlags().BoolVar(&g.noColor, "no-color", false, "Disable colored output")

	cmd.AddCommand(newAddCmd(g))
	cmd.AddCommand(newSearchCmd(g))
	cmd.AddCommand(newGetCmd(g))
	cmd.AddCommand(newListCmd(g))
	cmd.AddCommand(newDeleteCmd(g))
	cmd.AddCommand(newRelatedCmd(g))
	cmd.AddCommand(newTagsCmd(g))
	cmd.AddCommand(newCountCmd(g))
	cmd.AddCommand(newStatusCmd(g))
	cmd.AddCommand(newCheckCmd(g))
	cmd.AddCommand(newCompactCmd(g))
	cmd.AddCommand(newBackupCmd(g))
	cmd.AddCommand(newWatchCmd(g))
	cmd.AddCommand(newConfigCmd(g))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setup loads configuration and starts logging.
func (g *globalOptions) setup(*cobra.Command, []string) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	g.cfg = cfg

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	if cfg.Logging.File != "" {
		logCfg.FilePath = cfg.Logging.File
	}
	if g.debug {
		logCfg.Level = "debug"
		logCfg.WriteToStderr = true
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		// File logging is best effort; the command still runs.
		slog.SetDefault(logging.Discard())
		return nil
	}
	g.loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Debug("cli_started",
		slog.String("version", version.Short()),
		slog.String("storage", cfg.Storage.Path))
	return nil
}

func (g *globalOptions) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if g.configPath != "" {
		cfg, err = config.LoadFile(g.configPath)
	} else {
		var cwd string
		cwd, err = os.Getwd()
		if err == nil {
			cfg, err = config.Load(cwd)
		}
	}
	if err != nil {
		return nil, docerrors.ConfigError("failed to load configuration", err).
			WithSuggestion("Check the YAML and values in .docmemory.yaml and the user config, or pass --config")
	}
	if g.storage != "" {
		cfg.Storage.Path = g.storage
	}
	return cfg, nil
}

func (g *globalOptions) teardown() {
	if g.loggingCleanup != nil {
		g.loggingCleanup()
		g.loggingCleanup = nil
	}
}

// Execute runs the root command and prints any error for the terminal.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, docerrors.FormatForCLI(err))
	}
	return err
}
