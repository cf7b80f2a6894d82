// anime-downloader drains the queued stage, fetching episodes through ani-cli
// while the disk monitor admits new downloads.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"kotoba/internal/cli"
	"kotoba/internal/diskspace"
	"kotoba/internal/downloader"
	"kotoba/internal/logging"
	"kotoba/internal/services/anicli"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configFlag  string
		verboseFlag bool
		workersFlag int
		dryRunFlag  bool
		filterFlag  int64
	)

	cmd := &cobra.Command{
		Use:           "anime-downloader",
		Short:         "Download queued episodes",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := cli.NewRuntime(cli.Options{
				Component:  "anime-downloader",
				ConfigPath: configFlag,
				Verbose:    verboseFlag,
			})
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, cancel := cli.SignalContext()
			defer cancel()

			dm := rt.Config.DiskManagement
			monitor := diskspace.NewMonitor(rt.Data,
				dm.HardLimitGB, dm.PauseThresholdGB, dm.ResumeThresholdGB,
				time.Duration(dm.CacheDurationSeconds)*time.Second)

			workers := workersFlag
			if workers <= 0 {
				workers = dm.MaxConcurrentDownloads
			}

			w := downloader.New(rt.Store, anicli.NewClient(""), monitor, rt.Data, downloader.Options{
				Workers:           workers,
				DryRun:            dryRunFlag,
				FilterMALID:       filterFlag,
				AdmissionInterval: time.Duration(dm.CheckIntervalSeconds) * time.Second,
			}, rt.Logger)

			stats, err := w.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			rt.Logger.Info("download run finished",
				logging.Int("downloaded", stats.Downloaded),
				logging.Int("skipped", stats.Skipped),
				logging.Int("retried", stats.Retried),
				logging.Int("failed", stats.Failed))
			fmt.Printf("Downloaded %d episodes (%d skipped, %d retried, %d failed)\n",
				stats.Downloaded, stats.Skipped, stats.Retried, stats.Failed)
			return err
		},
	}

	cmd.Flags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	cmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")
	cmd.Flags().IntVar(&workersFlag, "workers", 0, "Download worker pool size (0 = config value)")
	cmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Write placeholder files instead of downloading")
	cmd.Flags().Int64Var(&filterFlag, "filter-anime-id", 0, "Only download episodes of this MAL ID")
	return cmd
}
