// transcriber drains the downloaded stage: ffmpeg extracts audio, Whisper
// transcribes it, and consumed artifacts are cleaned up per the configured
// policy.
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
	"kotoba/internal/logging"
	"kotoba/internal/services/ffmpeg"
	"kotoba/internal/services/whisper"
	"kotoba/internal/transcribe"
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
	)

	cmd := &cobra.Command{
		Use:           "transcriber",
		Short:         "Transcribe downloaded episodes",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := cli.NewRuntime(cli.Options{
				Component:  "transcriber",
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
				workers = dm.MaxConcurrentTranscriptions
			}

			extractor := ffmpeg.NewService("", "")
			transcriber := whisper.NewService(whisper.Config{
				Model:    rt.Config.Transcription.Model,
				Language: rt.Config.Transcription.Language,
			}, "")

			w := transcribe.New(rt.Store, extractor, transcriber, monitor, rt.Data, transcribe.Options{
				Workers: workers,
				DryRun:  dryRunFlag,
				Cleanup: transcribe.CleanupPolicy{
					DeleteVideo: dm.Cleanup.DeleteVideoAfterTranscription,
					DeleteAudio: dm.Cleanup.DeleteAudioAfterTranscription,
				},
				Pacing: 100 * time.Millisecond,
			}, rt.Logger)

			stats, err := w.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			rt.Logger.Info("transcription run finished",
				logging.Int("transcribed", stats.Transcribed),
				logging.Int("retried", stats.Retried),
				logging.Int("failed", stats.Failed))
			fmt.Printf("Transcribed %d episodes (%d retried, %d failed)\n",
				stats.Transcribed, stats.Retried, stats.Failed)
			return err
		},
	}

	cmd.Flags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	cmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")
	cmd.Flags().IntVar(&workersFlag, "workers", 0, "Transcription worker pool size (0 = config value)")
	cmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Write placeholder transcripts instead of running tools")
	return cmd
}
