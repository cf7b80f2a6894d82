// anime-selector resolves each catalog series to a download-source title,
// asking Claude to arbitrate when the search is ambiguous, and caches every
// decision.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"kotoba/internal/cli"
	"kotoba/internal/logging"
	"kotoba/internal/selector"
	"kotoba/internal/services/allanime"
	"kotoba/internal/services/claude"
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
		malIDFlag   int64
		reviewFlag  bool
		forceFlag   bool
	)

	cmd := &cobra.Command{
		Use:           "anime-selector",
		Short:         "Map catalog series to download-source titles",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := cli.NewRuntime(cli.Options{
				Component:  "anime-selector",
				ConfigPath: configFlag,
				Verbose:    verboseFlag,
			})
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, cancel := cli.SignalContext()
			defer cancel()

			searcher := allanime.NewClient("")
			chooser := claude.NewClient(rt.Config.Anthropic.APIKey, rt.Config.Anthropic.Model)
			s := selector.New(rt.Store, searcher, chooser, workersFlag, rt.Logger)

			switch {
			case reviewFlag:
				return runReview(ctx, rt, s)
			case malIDFlag != 0:
				return runSingle(ctx, rt, s, malIDFlag, forceFlag)
			default:
				return runAll(ctx, rt, s)
			}
		},
	}

	cmd.Flags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	cmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")
	cmd.Flags().IntVar(&workersFlag, "workers", 4, "Selection worker pool size")
	cmd.Flags().Int64Var(&malIDFlag, "mal-id", 0, "Select for a single series by MAL ID")
	cmd.Flags().BoolVar(&reviewFlag, "review", false, "Print low-confidence selections and exit")
	cmd.Flags().BoolVar(&forceFlag, "force", false, "Discard any cached selection first (with --mal-id)")
	return cmd
}

func runAll(ctx context.Context, rt *cli.Runtime, s *selector.Selector) error {
	stats, err := s.Run(ctx)
	if err != nil {
		return err
	}
	rt.Logger.Info("selection run finished",
		logging.Int("considered", stats.Considered),
		logging.Int("selected", stats.Selected),
		logging.Int("no_candidates", stats.NoCandidates),
		logging.Int("failed", stats.Failed))
	fmt.Printf("Considered %d series: %d selected, %d without candidates, %d failed\n",
		stats.Considered, stats.Selected, stats.NoCandidates, stats.Failed)
	return nil
}

func runSingle(ctx context.Context, rt *cli.Runtime, s *selector.Selector, malID int64, force bool) error {
	anime, err := rt.Store.AnimeByMALID(ctx, malID)
	if err != nil {
		return err
	}
	if anime == nil {
		return fmt.Errorf("no series with MAL ID %d; run mal-scraper first", malID)
	}
	if force {
		if _, err := rt.Store.DeleteSelection(ctx, anime.ID); err != nil {
			return err
		}
	}

	sel, err := s.SelectFor(ctx, anime)
	if err != nil {
		return err
	}
	if sel.SelectedIndex < 0 {
		fmt.Printf("%s: no usable candidate (%s)\n", anime.Title, sel.Confidence)
		return nil
	}
	fmt.Printf("%s -> %s (confidence %s, episodes %s)\n",
		anime.Title, sel.SelectedTitle, sel.Confidence, sel.EpisodeMatch)
	return nil
}

func runReview(ctx context.Context, rt *cli.Runtime, s *selector.Selector) error {
	selections, err := s.Review(ctx)
	if err != nil {
		return err
	}
	if len(selections) == 0 {
		fmt.Println("No low-confidence selections.")
		return nil
	}

	for _, sel := range selections {
		target := sel.SelectedTitle
		if sel.SelectedIndex < 0 {
			target = "(none)"
		}
		line := fmt.Sprintf("%s -> %s [%s]", sel.MALTitle, target, sel.Confidence)
		if reason := strings.TrimSpace(sel.Reasoning); reason != "" {
			line += " " + reason
		}
		fmt.Println(line)
	}
	fmt.Printf("%d selections need review\n", len(selections))
	return nil
}
