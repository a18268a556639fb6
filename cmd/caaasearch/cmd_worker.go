package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"caaasearch/internal/browser"
	"caaasearch/internal/llm"
	"caaasearch/internal/orchestrate"
	"caaasearch/internal/retrieve"
	"caaasearch/internal/score"
	"caaasearch/internal/searchspec"
	"caaasearch/internal/synthesize"
	"caaasearch/internal/usage"
)

var (
	workerSearchID string
	workerQuestion string
	workerType     string
)

// workerCmd runs the pipeline for a single search in this process. submit
// and run-pending spawn it as a subprocess; it also works standalone for
// re-running a search by hand.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the pipeline for one search (spawned by submit)",
	Long: `Runs the retrieval, scoring and synthesis stages for one stored search.

The stored row is authoritative: the question and type flags are overrides
for re-runs and default to the row's values. Each search gets its own worker
process, so a browser crash or hang never takes down more than one search.`,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().StringVar(&workerSearchID, "search-id", "", "Search UUID to run (required)")
	workerCmd.Flags().StringVar(&workerQuestion, "question", "", "REAL question override")
	workerCmd.Flags().StringVar(&workerType, "type", "", "Query type override")
	_ = workerCmd.MarkFlagRequired("search-id")
}

func runWorker(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if workerType != "" && !searchspec.QueryType(workerType).Valid() {
		return fmt.Errorf("unknown query type: %s", workerType)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Worker.GetWorkerTimeout())
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	client, err := llm.New(cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to build reasoning client: %w", err)
	}

	mgr := browser.NewManager(cfg.Browser)
	defer mgr.Close()

	retriever := retrieve.New(mgr, cfg.Retrieval)
	retriever.SetBodyLookup(st.MessageBodyLength)

	worker := orchestrate.NewWorker(st, retriever, score.New(client), synthesize.New(client))

	logger.Info("Worker starting",
		zap.String("search_id", workerSearchID),
		zap.String("query_type", workerType))

	runErr := worker.Run(ctx, workerSearchID, workerQuestion, searchspec.QueryType(workerType))

	// Record this run's token spend whether or not the search succeeded.
	if tracker, terr := usage.NewTracker(cfg.Logging.Dir); terr == nil {
		tracker.TrackClient(usage.WithSearch(context.Background(), workerSearchID), client, cfg.LLM.Provider, "analyze")
		_ = tracker.Save()
	}

	if runErr != nil {
		logger.Error("Search failed",
			zap.String("search_id", workerSearchID),
			zap.Error(runErr))
		return fmt.Errorf("search %s failed: %w", workerSearchID, runErr)
	}

	logger.Info("Search completed", zap.String("search_id", workerSearchID))
	fmt.Printf("Search %s completed\n", workerSearchID)
	return nil
}
