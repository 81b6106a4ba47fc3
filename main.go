package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/felo/eml-metadata/internal/batch"
	"github.com/felo/eml-metadata/internal/config"
	"github.com/felo/eml-metadata/internal/csvlog"
	"github.com/felo/eml-metadata/internal/handlers"
	"github.com/felo/eml-metadata/internal/logger"
	"github.com/felo/eml-metadata/internal/parser"
	"github.com/felo/eml-metadata/internal/scanner"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "emlmeta",
		Short: "Extract metadata from .eml files into a CSV log",
		Long: "Parses every .eml file in the input directory, appends one metadata row per\n" +
			"message to the CSV log and moves the file to the processed directory.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(cmd)
			if err != nil {
				return err
			}
			defer app.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return app.runBatch(ctx)
		},
	}

	serveCmd := &cobra.Command{
		Use:          "serve",
		Short:        "Serve the parse, records and process endpoints over HTTP",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(cmd)
			if err != nil {
				return err
			}
			defer app.close()

			return app.serve()
		},
	}

	config.RegisterFlags(rootCmd)
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	cfg       *config.Config
	logger    logger.Logger
	parser    *parser.Parser
	log       *csvlog.Log
	processor *batch.Processor
}

func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cmd)
	if err != nil {
		return nil, err
	}

	l, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	// Ensure output directories exist
	for _, dir := range []string{cfg.ProcessedDir, filepath.Dir(cfg.CSVPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	classifier := parser.NewClassifier(cfg.StorageHosts)
	p := parser.NewParser(classifier)
	log := csvlog.New(cfg.CSVPath)
	processor := batch.NewProcessor(p, scanner.NewScanner(cfg.InputDir), log, cfg.ProcessedDir, l).
		WithWorkers(cfg.Workers)
	if cfg.Report {
		processor.WithReport(os.Stdout)
	}

	l.Debugw("configuration loaded",
		"input_dir", cfg.InputDir,
		"processed_dir", cfg.ProcessedDir,
		"csv", cfg.CSVPath,
		"storage_hosts", classifier.Hosts())

	return &app{cfg: cfg, logger: l, parser: p, log: log, processor: processor}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}

func (a *app) runBatch(ctx context.Context) error {
	if _, err := os.Stat(a.cfg.InputDir); os.IsNotExist(err) {
		a.logger.Warnw("input directory not found, creating it", "input_dir", a.cfg.InputDir)
		if err := os.MkdirAll(a.cfg.InputDir, 0o755); err != nil {
			return fmt.Errorf("failed to create input directory: %w", err)
		}
		a.logger.Infow("place .eml files in the input directory and run again", "input_dir", a.cfg.InputDir)
		return nil
	}

	var progress func(current, total int, filePath string)
	if a.cfg.Progress {
		var bar *progressbar.ProgressBar
		progress = func(current, total int, filePath string) {
			if bar == nil {
				bar = progressbar.Default(int64(total), "processing")
			}
			_ = bar.Set(current)
		}
	}

	result, err := a.processor.ProcessWithProgress(ctx, progress)
	if result != nil {
		a.logger.Infow("processing complete",
			"found", result.TotalFound,
			"processed", result.Processed,
			"move_failed", result.MoveFailed,
			"failed", result.Failed)
		for _, f := range result.FailedFiles {
			a.logger.Warnw("file left in input directory", "file", f)
		}
	}
	return err
}

func (a *app) serve() error {
	// Create shutdown signal channel
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	h := handlers.New(a.cfg, a.parser, a.log, a.processor, a.logger)

	// Create server
	srv := &http.Server{
		Addr:         a.cfg.Address(),
		Handler:      h.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // batches run inside the request
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		a.logger.Infow("starting server", "url", a.cfg.URL())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed: %w", err)
	case <-sigChan:
	}
	a.logger.Infow("shutting down gracefully")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	a.logger.Infow("server stopped")
	return nil
}
