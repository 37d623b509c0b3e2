package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vidmorph/vidmorph/internal/config"
	"github.com/vidmorph/vidmorph/internal/engine"
	internalhttp "github.com/vidmorph/vidmorph/internal/http"
	"github.com/vidmorph/vidmorph/internal/retention"
	"github.com/vidmorph/vidmorph/internal/service/convert"
	"github.com/vidmorph/vidmorph/internal/service/progress"
	"github.com/vidmorph/vidmorph/internal/stats"
	"github.com/vidmorph/vidmorph/internal/storage"
	"github.com/vidmorph/vidmorph/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the vidmorph server",
	Long: `Start the vidmorph HTTP server and API.

The server provides:
- REST API for submitting conversions and querying jobs
- Server-sent event stream for job progress
- Artifact downloads with automatic retention cleanup
- Health check endpoint and Prometheus metrics
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server flags. Like the root flags these are not bound to viper;
	// Changed() decides whether they override config/env values.
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("data-dir", "./data", "Base directory for uploads and converted files")
	serveCmd.Flags().String("ffmpeg", "", "Path to the ffmpeg binary (empty = $PATH lookup)")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.Storage.BaseDir, _ = cmd.Flags().GetString("data-dir")
	}
	if cmd.Flags().Changed("ffmpeg") {
		cfg.FFmpeg.BinaryPath, _ = cmd.Flags().GetString("ffmpeg")
	}

	// Initialize the storage workspace
	workspace, err := storage.New(cfg.Storage.BaseDir, cfg.Storage.InputsDir, cfg.Storage.OutputsDir, logger)
	if err != nil {
		return fmt.Errorf("initializing workspace: %w", err)
	}

	// Initialize the retention scheduler; Start runs an initial sweep so
	// artifacts left over from a previous run are cleaned up immediately.
	reaper := retention.New(
		workspace,
		cfg.Retention.Window.Duration(),
		cfg.Retention.SweepInterval.Duration(),
		cfg.Retention.MaxAge.Duration(),
		logger,
	)
	if err := reaper.Start(); err != nil {
		return fmt.Errorf("starting retention scheduler: %w", err)
	}
	defer reaper.Stop()

	// Initialize the progress hub and statistics
	hub := progress.NewService(logger)
	aggregate := stats.NewAggregate()

	// Initialize the transcode engine and orchestrator
	eng := engine.NewFFmpeg(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath, logger)
	svc := convert.NewService(
		eng,
		hub,
		aggregate,
		reaper,
		workspace,
		cfg.Convert.JobTimeout.Duration(),
		logger,
	)

	// Initialize HTTP server
	server := internalhttp.NewServer(cfg.Server, logger, version.Version)
	server.RegisterHandlers(svc, workspace, cfg.Storage.MaxUploadSize.Bytes(), version.Version)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting vidmorph server",
		slog.String("host", cfg.Server.Host),
		slog.Int("port", cfg.Server.Port),
		slog.String("data_dir", cfg.Storage.BaseDir),
		slog.String("version", version.Version),
	)

	serveErr := server.ListenAndServe(ctx)

	// Drain in-flight jobs after the listener stops accepting requests.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancelShutdown()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.Warn("jobs still running at shutdown deadline", slog.String("error", err.Error()))
	}

	return serveErr
}
