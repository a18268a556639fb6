// Package main implements the caaasearch command line interface.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"caaasearch/internal/config"
	"caaasearch/internal/logging"
	"caaasearch/internal/store"
)

var (
	// Global flags
	cfgPath string
	verbose bool

	// Loaded by PersistentPreRunE, shared by every subcommand.
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "caaasearch",
	Short: "caaasearch - AI-assisted search over the CAAA listserv archive",
	Long: `caaasearch runs deep searches over the CAAA (California Applicants'
Attorneys Association) listserv archive.

A submitted search moves through five stages: a clarifier decides whether
the typed intent needs one follow-up question, a planner turns the intent
into upstream search parameters, a retriever drives a headless browser
through the gated archive, a scorer judges every retrieved message against
the real question, and for evaluation searches a synthesizer aggregates the
relevant messages into a final verdict.

Each search runs in its own worker process. Submit with 'caaasearch submit',
then inspect progress and verdicts with 'list' and 'show'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional.
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}

		if err := logging.Initialize(cfg.Logging.Dir, cfg.Logging.Level); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}

		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "caaasearch.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	// Add commands to root
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(runPendingCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStore connects to the configured search store.
func openStore() (*store.Store, error) {
	st, err := store.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return st, nil
}

// findSearch resolves a search by its full UUID or by its short number.
func findSearch(ctx context.Context, st *store.Store, ref string) (*store.Search, error) {
	if number, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return st.GetSearchByNumber(ctx, number)
	}
	return st.GetSearch(ctx, ref)
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
