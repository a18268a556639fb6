package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"caaasearch/internal/clarify"
	"caaasearch/internal/llm"
	"caaasearch/internal/planner"
	"caaasearch/internal/searchspec"
	"caaasearch/internal/store"
	"caaasearch/internal/usage"
)

var (
	submitType     string
	submitExaminer string
	submitYes      bool
	submitNoSpawn  bool
)

// submitCmd creates a search and launches its worker.
var submitCmd = &cobra.Command{
	Use:   "submit [intent]",
	Short: "Submit a new search",
	Long: `Creates a search from a plain-English intent and starts a worker for it.

For evaluation types the intent is the subject being evaluated:

  caaasearch submit --type judge_eval "Garcia"
  caaasearch submit --type doctor_eval "Dr. John Smith"
  caaasearch submit --type ame_qme_search --examiner QME "orthopedic"

General searches may get one clarifying question back when the intent is
too ambiguous to plan; answer it, or re-run with --yes to skip the check.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVarP(&submitType, "type", "t", "general",
		"Query type: general, doctor_eval, judge_eval, adjuster_eval, defense_attorney_eval, insurance_company_eval, ame_qme_search")
	submitCmd.Flags().StringVar(&submitExaminer, "examiner", "Both", "Examiner kind for ame_qme_search: AME, QME or Both")
	submitCmd.Flags().BoolVarP(&submitYes, "yes", "y", false, "Skip the clarification round")
	submitCmd.Flags().BoolVar(&submitNoSpawn, "no-spawn", false, "Create the search without starting a worker")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	queryType := searchspec.QueryType(submitType)
	if !queryType.Valid() {
		return fmt.Errorf("unknown query type: %s", submitType)
	}

	intent := joinArgs(args)
	if intent == "" {
		return fmt.Errorf("empty search intent")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client, err := llm.New(cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to build reasoning client: %w", err)
	}

	// One clarification round, general intents only: evaluation intents
	// already name their subject.
	if !submitYes && queryType == searchspec.QueryGeneral {
		if res := clarify.New(client).Check(ctx, intent); res.Vague && res.FollowUpQuestion != "" {
			fmt.Println(res.FollowUpQuestion)
			fmt.Print("> ")
			answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
			if answer = strings.TrimSpace(answer); answer != "" {
				intent = clarify.Refine(intent, answer)
			}
		}
	}

	realQuestion := searchspec.RealQuestion(queryType, intent, submitExaminer)
	spec, reasoning := planner.New(client).Plan(ctx, queryType, realQuestion)

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	search, err := st.CreateSearch(ctx, intent, realQuestion, queryType, store.ParamsFromSpec(spec, reasoning))
	if err != nil {
		return fmt.Errorf("failed to create search: %w", err)
	}

	if tracker, terr := usage.NewTracker(cfg.Logging.Dir); terr == nil {
		tracker.TrackClient(usage.WithSearch(ctx, search.ID), client, cfg.LLM.Provider, "plan")
		_ = tracker.Save()
	}

	fmt.Printf("Search #%d submitted (%s)\n", search.SearchNumber, search.ID)
	fmt.Printf("  Type:     %s\n", queryType)
	fmt.Printf("  Question: %s\n", realQuestion)
	if reasoning != "" {
		fmt.Printf("  Plan:     %s\n", reasoning)
	}

	if submitNoSpawn {
		fmt.Println("Worker not started (--no-spawn); run it later with:")
		fmt.Printf("  caaasearch worker --search-id %s\n", search.ID)
		return nil
	}

	logPath, err := startWorker(search, false)
	if err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	fmt.Printf("Worker started, logs: %s\n", logPath)
	fmt.Printf("Track it with: caaasearch show %d\n", search.SearchNumber)
	return nil
}

// startWorker launches this binary's worker subcommand for a search, with
// stdout and stderr going to a per-search log file. With wait set it blocks
// until the worker exits and returns its error; otherwise the worker is
// released to run on its own.
func startWorker(search *store.Search, wait bool) (string, error) {
	self, err := os.Executable()
	if err != nil {
		return "", err
	}

	logDir := cfg.Logging.Dir
	if logDir == "" {
		logDir = os.TempDir()
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", err
	}
	logPath := filepath.Join(logDir, fmt.Sprintf("worker_%d.log", search.SearchNumber))
	logFile, err := os.Create(logPath)
	if err != nil {
		return "", err
	}

	worker := exec.Command(self, "worker",
		"--config", cfgPath,
		"--search-id", search.ID,
		"--question", search.RealQuestion,
		"--type", search.QueryType)
	worker.Stdout = logFile
	worker.Stderr = logFile

	if err := worker.Start(); err != nil {
		_ = logFile.Close()
		return "", err
	}
	// The child holds its own copy of the log fd.
	_ = logFile.Close()

	logger.Info("Worker process started",
		zap.String("search_id", search.ID),
		zap.Int("pid", worker.Process.Pid),
		zap.String("log", logPath))

	if wait {
		return logPath, worker.Wait()
	}
	return logPath, worker.Process.Release()
}
