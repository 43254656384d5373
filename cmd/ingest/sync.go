package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/docingest/internal/config"
	"github.com/markdave123-py/docingest/internal/core"
	objectclient "github.com/markdave123-py/docingest/internal/core/object-client"
	"github.com/markdave123-py/docingest/internal/logger"
)

func syncCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror a bucket prefix with the local data root",
		Long:  "Download a bucket prefix into DATA_SOURCE_ROOT, or upload the root to the prefix. Objects whose size already matches are skipped.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			direction, _ := cmd.Flags().GetString("direction")
			prefix, _ := cmd.Flags().GetString("prefix")
			root, _ := cmd.Flags().GetString("root")

			lc := cfg.LoggerConfig()
			lc.Output = cmd.ErrOrStderr()
			client, err := objectclient.NewS3Client(cmd.Context(), cfg, logger.NewLogger(lc))
			if err != nil {
				return err
			}

			var rep core.SyncReport
			switch direction {
			case "download":
				rep, err = client.DownloadPrefix(cmd.Context(), prefix, root)
			case "upload":
				rep, err = client.UploadDir(cmd.Context(), root, prefix)
			default:
				return fmt.Errorf("unknown direction %q: want download or upload", direction)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d transferred, %d skipped, %d bytes\n", direction, rep.Transferred, rep.Skipped, rep.Bytes)
			return nil
		},
	}
	cmd.Flags().String("direction", "download", "download or upload")
	cmd.Flags().String("prefix", "", "Bucket key prefix")
	cmd.Flags().String("root", cfg.DataSourceRoot, "Local directory")
	return cmd
}
