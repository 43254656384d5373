package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/docingest/internal/app"
	"github.com/markdave123-py/docingest/internal/config"
	"github.com/markdave123-py/docingest/internal/core/metrics"
	"github.com/markdave123-py/docingest/internal/logger"
	"github.com/markdave123-py/docingest/internal/services"
)

func searchCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [query...]",
		Short: "Find stored chunks similar to a query",
		Long:  "Embed the query with the configured Gemini model and print the nearest stored chunks as JSON lines. Needs DATABASE_URL and GEMINI_API_KEY.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.DatabaseURL == "" || cfg.AIAPIKey == "" {
				return services.ErrSearchUnavailable
			}
			topk, _ := cmd.Flags().GetInt("topk")

			lc := cfg.LoggerConfig()
			lc.Output = cmd.ErrOrStderr()
			a := &app.App{Log: logger.NewLogger(lc), Stats: metrics.NewRegistry()}
			defer a.Close()

			svc, err := a.NewIngestService(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			hits, err := svc.Search(cmd.Context(), strings.Join(args, " "), topk)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, h := range hits {
				if err := enc.Encode(h); err != nil {
					return fmt.Errorf("write hit: %w", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().Int("topk", 5, "Number of hits to return")
	return cmd
}
