package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/docingest/internal/config"
	"github.com/markdave123-py/docingest/internal/core/ingestion_engine"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(config.LoadConfig()).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ingest",
		Short:         "Turn documents into deduplicated, language-tagged chunks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		runCmd(cfg),
		syncCmd(cfg),
		searchCmd(cfg),
		extensionsCmd(),
	)
	return cmd
}

func extensionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extensions",
		Short: "Print the supported file extensions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, ext := range ingestion_engine.SupportedExtensions() {
				fmt.Fprintln(cmd.OutOrStdout(), ext)
			}
			return nil
		},
	}
}
