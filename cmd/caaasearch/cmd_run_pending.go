package main

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/semaphore"
)

var runPendingWorkers int

// runPendingCmd drains the pending queue. Searches land in pending when
// submitted with --no-spawn or when their worker died before marking the
// row running.
var runPendingCmd = &cobra.Command{
	Use:   "run-pending",
	Short: "Run a worker for every pending search",
	Long: `Spawns one worker process per pending search, at most --workers at a
time, and waits for all of them to finish. Workers share the store but each
drives its own browser session.`,
	RunE: runPending,
}

func init() {
	runPendingCmd.Flags().IntVar(&runPendingWorkers, "workers", 0, "Max concurrent workers (default from config)")
}

func runPending(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	pending, err := st.PendingSearches(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pending searches: %w", err)
	}
	if len(pending) == 0 {
		fmt.Println("No pending searches.")
		return nil
	}

	limit := runPendingWorkers
	if limit <= 0 {
		limit = cfg.Worker.MaxConcurrent
	}
	if limit <= 0 {
		limit = 1
	}

	fmt.Printf("Running %d pending search(es), %d at a time\n", len(pending), limit)

	sem := semaphore.NewWeighted(int64(limit))
	var failed atomic.Int32

	for _, search := range pending {
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		go func() {
			defer sem.Release(1)
			logPath, err := startWorker(&search, true)
			if err != nil {
				failed.Add(1)
				if logPath != "" {
					fmt.Printf("  #%d failed: %v (logs: %s)\n", search.SearchNumber, err, logPath)
				} else {
					fmt.Printf("  #%d failed: %v\n", search.SearchNumber, err)
				}
				return
			}
			fmt.Printf("  #%d completed\n", search.SearchNumber)
		}()
	}

	// Wait for every in-flight worker.
	if err := sem.Acquire(ctx, int64(limit)); err != nil {
		return err
	}

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d searches failed", n, len(pending))
	}
	fmt.Println("All pending searches completed.")
	return nil
}
