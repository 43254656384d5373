package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"

	"github.com/markdave123-py/docingest/internal/app"
	"github.com/markdave123-py/docingest/internal/config"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle SIGINT/SIGTERM for graceful shutdown
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		<-c
		cancel()
	}()

	cfg := config.LoadConfig()
	application, err := app.NewApp(ctx, cfg)
	if err != nil {
		charmlog.Fatal("startup failed", "err", err)
	}
	defer application.Close()

	application.Service.Start(ctx, cfg.JobWorkers)

	go func() {
		if err := application.Server.Start(); err != nil {
			application.Log.Error("server error", "err", err)
			cancel()
		}
	}()

	application.Log.Info("docingest is running", "port", cfg.Port, "job_workers", cfg.JobWorkers)
	<-ctx.Done()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if err := application.Server.Shutdown(shutdownCtx); err != nil {
		application.Log.Error("shutdown failed", "err", err)
	}
}
