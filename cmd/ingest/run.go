package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/docingest/internal/app"
	"github.com/markdave123-py/docingest/internal/config"
	"github.com/markdave123-py/docingest/internal/core/metrics"
	"github.com/markdave123-py/docingest/internal/logger"
	"github.com/markdave123-py/docingest/internal/models"
)

func runCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [paths...]",
		Short: "Ingest files or directories and write chunks as JSON lines",
		Long: "Walk the given paths (or DATA_SOURCE_ROOT when none are given), run the pipeline " +
			"and write one JSON chunk per line. Chunks are embedded and stored when the " +
			"embedder and database are configured.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, cfg, args)
		},
	}

	def := cfg.IngestOptions()
	f := cmd.Flags()
	f.String("mode", "eager", "Pipeline mode: eager, stream or parallel")
	f.Int("workers", cfg.Workers, "Workers for parallel mode")
	f.Int("chunk-size", def.ChunkSize, "Target characters per chunk")
	f.Int("overlap", def.Overlap, "Characters shared between consecutive chunks")
	f.Int("min-chars", def.MinChars, "Drop chunks shorter than this")
	f.Bool("ocr", def.OCR, "Process images through the converter")
	f.Bool("lang", def.LanguageDetect, "Tag chunks with the detected language")
	f.Bool("dedupe", def.Dedupe, "Drop chunks whose content was already seen")
	f.StringP("out", "o", "-", "Output file for JSON lines, - for stdout")
	return cmd
}

func runIngest(cmd *cobra.Command, cfg *config.Config, args []string) error {
	f := cmd.Flags()
	mode, _ := f.GetString("mode")
	workers, _ := f.GetInt("workers")
	opt := models.IngestOptions{}
	opt.ChunkSize, _ = f.GetInt("chunk-size")
	opt.Overlap, _ = f.GetInt("overlap")
	opt.MinChars, _ = f.GetInt("min-chars")
	opt.OCR, _ = f.GetBool("ocr")
	opt.LanguageDetect, _ = f.GetBool("lang")
	opt.Dedupe, _ = f.GetBool("dedupe")
	outPath, _ := f.GetString("out")

	if len(args) == 0 {
		args = []string{cfg.DataSourceRoot}
	}

	lc := cfg.LoggerConfig()
	lc.Output = cmd.ErrOrStderr()
	a := &app.App{Log: logger.NewLogger(lc), Stats: metrics.NewRegistry()}
	defer a.Close()

	svc, err := a.NewIngestService(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	req := svc.NewRequest(args...)
	req.Mode = mode
	req.Workers = workers
	req.Options = opt
	rep, err := svc.Run(cmd.Context(), req)
	if err != nil {
		return err
	}

	if outPath == "-" {
		err = writeJSONL(cmd.OutOrStdout(), rep.Chunks)
	} else {
		err = writeJSONLFile(outPath, rep.Chunks)
	}
	if err != nil {
		return err
	}
	return writeSummary(cmd.ErrOrStderr(), rep.Stats, rep.Stored)
}

func writeJSONLFile(path string, chunks []models.Chunk) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	return writeAndClose(file, chunks)
}

// writeAndClose writes chunks to wc and closes it. A close failure is
// returned when the write itself succeeded.
func writeAndClose(wc io.WriteCloser, chunks []models.Chunk) (err error) {
	defer func() {
		if cerr := wc.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output: %w", cerr)
		}
	}()
	return writeJSONL(wc, chunks)
}

func writeJSONL(w io.Writer, chunks []models.Chunk) error {
	enc := json.NewEncoder(w)
	for _, c := range chunks {
		if err := enc.Encode(c); err != nil {
			return fmt.Errorf("write chunk: %w", err)
		}
	}
	return nil
}

func writeSummary(w io.Writer, s metrics.Snapshot, stored int) error {
	summary := struct {
		metrics.Snapshot
		Stored int `json:"stored"`
	}{s, stored}
	b, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
