package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"kotoba/internal/cli"
	"kotoba/internal/queue"
)

// stageOrder fixes the display order to match the pipeline's flow.
var stageOrder = []queue.Stage{
	queue.StageQueued,
	queue.StageDownloading,
	queue.StageDownloaded,
	queue.StageTranscribing,
	queue.StageTranscribed,
	queue.StageTokenizing,
	queue.StageTokenized,
	queue.StageAnalyzing,
	queue.StageComplete,
	queue.StageFailed,
}

func newStatusCommand(runtime func() (*cli.Runtime, error)) *cobra.Command {
	var seriesFlag bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show job counts per stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtime()
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := cmd.Context()
			stats, err := rt.Store.Stats(ctx)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(stageOrder))
			for _, stage := range stageOrder {
				count := stats.ByStage[stage]
				if count == 0 {
					continue
				}
				rows = append(rows, []string{string(stage), strconv.Itoa(count)})
			}
			rows = append(rows, []string{"total", strconv.Itoa(stats.Total)})

			fmt.Println(renderTable(
				[]string{"Stage", "Jobs"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))

			if seriesFlag {
				return printSeries(cmd, rt)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&seriesFlag, "series", false, "Also list per-series progress")
	return cmd
}

func printSeries(cmd *cobra.Command, rt *cli.Runtime) error {
	anime, err := rt.Store.ListAnime(cmd.Context())
	if err != nil {
		return err
	}
	if len(anime) == 0 {
		fmt.Println("No series in the catalog.")
		return nil
	}

	rows := make([][]string, 0, len(anime))
	for _, a := range anime {
		rows = append(rows, []string{
			strconv.FormatInt(a.MALID, 10),
			a.Title,
			fmt.Sprintf("%d/%d", a.EpisodesProcessed, a.Episodes),
			a.Status,
		})
	}
	fmt.Println(renderTable(
		[]string{"MAL ID", "Title", "Episodes", "Status"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft},
	))
	return nil
}
