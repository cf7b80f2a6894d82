// mal-scraper walks the MyAnimeList catalog and enqueues one pipeline job per
// episode of every series it keeps.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"kotoba/internal/cli"
	"kotoba/internal/logging"
	"kotoba/internal/scraper"
	"kotoba/internal/services/jikan"
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
		configFlag   string
		verboseFlag  bool
		maxPagesFlag int
		maxAnimeFlag int
	)

	cmd := &cobra.Command{
		Use:           "mal-scraper",
		Short:         "Discover anime categories and enqueue episode jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := cli.NewRuntime(cli.Options{
				Component:  "mal-scraper",
				ConfigPath: configFlag,
				Verbose:    verboseFlag,
			})
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, cancel := cli.SignalContext()
			defer cancel()

			scfg := rt.Config.Scraper
			catalog := jikan.NewClient(jikan.Options{
				BaseURL:           scfg.BaseURL,
				RequestsPerSecond: scfg.RateLimit.RequestsPerSecond,
				RequestsPerMinute: scfg.RateLimit.RequestsPerMinute,
				MaxRetries:        scfg.MaxRetries,
				RetryDelay:        time.Duration(scfg.RetryDelayMS) * time.Millisecond,
			})

			var cache scraper.Cache
			if scfg.Cache.Enabled {
				cache = scraper.NewFileCache(rt.Data)
			}

			s := scraper.New(catalog, cache, rt.Store, scraper.Options{
				MinCategoryItems:    scfg.MinCategoryItems,
				MaxPagesPerCategory: maxPagesFlag,
				MaxAnimePerCategory: maxAnimeFlag,
			}, rt.Logger)

			stats, err := s.Run(ctx)
			if err != nil {
				return err
			}

			rt.Logger.Info("scrape finished",
				logging.Int("categories", stats.Categories),
				logging.Int("anime_stored", stats.AnimeStored),
				logging.Int("jobs_enqueued", stats.JobsEnqueued))
			fmt.Printf("Scraped %d categories: %d series stored, %d episode jobs enqueued\n",
				stats.Categories, stats.AnimeStored, stats.JobsEnqueued)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	cmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")
	cmd.Flags().IntVar(&maxPagesFlag, "max-pages", 1, "Pages to fetch per category")
	cmd.Flags().IntVar(&maxAnimeFlag, "max-anime", 0, "Series cap per category (0 = no cap)")
	return cmd
}
