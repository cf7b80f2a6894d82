package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"kotoba/internal/cli"
	"kotoba/internal/queue"
)

func newFailedCommand(runtime func() (*cli.Runtime, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "failed",
		Short: "List failed jobs with their errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtime()
			if err != nil {
				return err
			}
			defer rt.Close()

			jobs, err := rt.Store.JobsByStage(cmd.Context(), queue.StageFailed)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Println("No failed jobs.")
				return nil
			}

			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				rows = append(rows, []string{
					strconv.FormatInt(job.ID, 10),
					job.AnimeTitle,
					strconv.Itoa(job.Episode),
					fmt.Sprintf("%d/%d", job.RetryCount, job.MaxRetries),
					job.ErrorMessage,
				})
			}
			fmt.Println(renderTable(
				[]string{"Job", "Series", "Ep", "Retries", "Error"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
}

func newRetryFailedCommand(runtime func() (*cli.Runtime, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "retry-failed [job-id...]",
		Short: "Requeue failed jobs that still have retry budget left",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid job id %q", arg)
				}
				ids = append(ids, id)
			}

			rt, err := runtime()
			if err != nil {
				return err
			}
			defer rt.Close()

			count, err := rt.Store.RetryFailed(cmd.Context(), ids...)
			if err != nil {
				return err
			}
			fmt.Printf("Requeued %d failed jobs\n", count)
			return nil
		},
	}
}

func newResetStuckCommand(runtime func() (*cli.Runtime, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-stuck",
		Short: "Return jobs stranded in a processing stage to their stable stage",
		Long: "Jobs left in downloading, transcribing, tokenizing, or analyzing by a " +
			"crashed worker are moved back so the next run picks them up.",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtime()
			if err != nil {
				return err
			}
			defer rt.Close()

			count, err := rt.Store.ResetStuck(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Reset %d stuck jobs\n", count)
			return nil
		},
	}
}
