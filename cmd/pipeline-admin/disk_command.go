package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"kotoba/internal/cli"
	"kotoba/internal/diskspace"
)

func newDiskCommand(runtime func() (*cli.Runtime, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "disk",
		Short: "Show data directory usage against the configured limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtime()
			if err != nil {
				return err
			}
			defer rt.Close()

			dm := rt.Config.DiskManagement
			monitor := diskspace.NewMonitor(rt.Data,
				dm.HardLimitGB, dm.PauseThresholdGB, dm.ResumeThresholdGB,
				time.Duration(dm.CacheDurationSeconds)*time.Second)

			breakdown, err := monitor.Breakdown()
			if err != nil {
				return err
			}

			usage := breakdown.Usage
			rows := [][]string{
				{"videos", humanize.IBytes(uint64(usage.Videos))},
				{"audio", humanize.IBytes(uint64(usage.Audio))},
				{"transcripts", humanize.IBytes(uint64(usage.Transcripts))},
				{"tokens", humanize.IBytes(uint64(usage.Tokens))},
				{"analysis", humanize.IBytes(uint64(usage.Analysis))},
				{"total", humanize.IBytes(uint64(usage.Total))},
			}
			fmt.Println(renderTable(
				[]string{"Class", "Used"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))

			verdict := "downloads admitted"
			if !breakdown.CanDownload {
				verdict = "downloads paused"
			}
			fmt.Printf("%.1f%% of %s limit used, %s free on volume: %s\n",
				breakdown.Percentage,
				humanize.IBytes(uint64(breakdown.HardLimitGB*1024*1024*1024)),
				humanize.IBytes(breakdown.FreeBytes),
				verdict)
			return nil
		},
	}
}
