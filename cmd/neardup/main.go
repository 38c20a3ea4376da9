package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cognicore/neardup/internal/logger"
)

func newRootCmd() *cobra.Command {
	var (
		logLevel string
		logJSON  bool
	)

	root := &cobra.Command{
		Use:   "neardup",
		Short: "Remove near-duplicate records from JSONL corpora",
		Long: `neardup drops records whose text is a near-duplicate of an earlier record.

Texts are canonicalized, split into word shingles and summarized as MinHash
signatures. LSH banding finds candidate matches; the first occurrence of every
cluster is kept and the rest are dropped. Kept lines are written unchanged.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			cfg := logger.DefaultConfig()
			cfg.Level = logger.ParseLevel(logLevel)
			cfg.JSON = logJSON
			cfg.Output = cmd.ErrOrStderr()
			logger.Init(cfg)
			cmd.SetContext(logger.ContextWithLogger(cmd.Context(), logger.GetDefault()))
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error, disabled)")
	root.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit logs as JSON")

	root.AddCommand(newDedupCmd(), newParamsCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
