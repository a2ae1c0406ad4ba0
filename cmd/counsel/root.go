package main

import (
	"fmt"

	"counsel/internal/shared/config"
	"counsel/internal/shared/logging"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
	noColor    bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "counsel",
		Short:         "Autonomous agent task orchestrator for practice management",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if opts.noColor || !isTTY() {
				color.NoColor = true
			}
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to counsel.yaml (default: ./counsel.yaml or $COUNSEL_CONFIG)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level")
	root.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable coloured output")

	root.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newConfigCommand(opts),
		newTasksCommand(opts),
		newLogsCommand(opts),
		newVersionCommand(),
	)
	return root
}

// load resolves configuration and configures the process log sink.
func (o *rootOptions) load() (config.Config, error) {
	var loadOpts []config.LoadOption
	if o.configPath != "" {
		loadOpts = append(loadOpts, config.WithConfigPath(o.configPath))
	}
	if o.logLevel != "" {
		loadOpts = append(loadOpts, config.WithOverrides(map[string]any{"logging.level": o.logLevel}))
	}
	cfg, err := config.Load(loadOpts...)
	if err != nil {
		return config.Config{}, err
	}
	if err := logging.Configure(logging.Options{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Dir:    cfg.Logging.Dir,
		Stdout: cfg.Logging.Stdout,
	}); err != nil {
		return config.Config{}, fmt.Errorf("configure logging: %w", err)
	}
	return cfg, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "counsel %s\n", version)
		},
	}
}
