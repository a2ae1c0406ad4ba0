package main

import (
	"fmt"

	"counsel/internal/shared/logging"

	"github.com/spf13/cobra"
)

func newLogsCommand(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "logs <log-id>",
		Short: "Print service log lines tagged with a request's X-Log-Id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			matches, err := logging.FetchByLogID(cfg.Logging.Dir, args[0], logging.FetchOptions{MaxEntries: limit})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(matches.Entries) == 0 {
				fmt.Fprintln(out, gray("No lines for "+matches.LogID+" in "+matches.Path))
				return nil
			}
			for _, line := range matches.Entries {
				fmt.Fprintln(out, line)
			}
			if matches.Truncated {
				fmt.Fprintln(out, yellow("(truncated)"))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 200, "maximum number of lines")
	return cmd
}
