package main

import (
	"github.com/spf13/cobra"

	"kotoba/internal/cli"
)

func newRootCommand() *cobra.Command {
	var (
		configFlag  string
		verboseFlag bool
	)

	runtime := func() (*cli.Runtime, error) {
		return cli.NewRuntime(cli.Options{
			Component:  "pipeline-admin",
			ConfigPath: configFlag,
			Verbose:    verboseFlag,
		})
	}

	rootCmd := &cobra.Command{
		Use:           "pipeline-admin",
		Short:         "Inspect and repair the pipeline queue",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(newStatusCommand(runtime))
	rootCmd.AddCommand(newFailedCommand(runtime))
	rootCmd.AddCommand(newRetryFailedCommand(runtime))
	rootCmd.AddCommand(newResetStuckCommand(runtime))
	rootCmd.AddCommand(newDiskCommand(runtime))

	return rootCmd
}
