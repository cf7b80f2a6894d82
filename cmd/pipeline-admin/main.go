// pipeline-admin inspects and repairs the job queue: stage counts, per-series
// progress, failed-job retry, stuck-job reset, and the disk usage breakdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
