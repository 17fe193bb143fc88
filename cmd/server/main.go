package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"
	"gopkg.in/yaml.v3"

	"github.com/toricodesthings/patent-analysis-service/internal/analysis"
	"github.com/toricodesthings/patent-analysis-service/internal/config"
	"github.com/toricodesthings/patent-analysis-service/internal/extract"
	pdfextractor "github.com/toricodesthings/patent-analysis-service/internal/extractors/pdf"
	"github.com/toricodesthings/patent-analysis-service/internal/report"
	"github.com/toricodesthings/patent-analysis-service/internal/server"
	"github.com/toricodesthings/patent-analysis-service/internal/structure"
	"github.com/toricodesthings/patent-analysis-service/internal/task"
	"github.com/toricodesthings/patent-analysis-service/internal/worker"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "patentd",
		Short:        "Patent PDF analysis service",
		Long:         "Extracts patent elements, chemical formulas and structure placeholders from patent PDFs.",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newAnalyzeCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "patentd %s\n", server.Version)
		},
	}
}

func newServeCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if port != "" {
				cfg.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := setupLogging(cfg.LogLevel, cfg.LogFormat, os.Stderr); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides PORT)")
	return cmd
}

func newAnalyzeCmd() *cobra.Command {
	var (
		format   string
		asReport bool
		output   string
	)
	cmd := &cobra.Command{
		Use:   "analyze <file.pdf>",
		Short: "Analyze one PDF and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := setupLogging(cfg.LogLevel, "console", cmd.ErrOrStderr()); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				out = f
			}
			return analyzeFile(cmd.Context(), cfg, args[0], format, asReport, out)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or yaml (reports also accept xlsx and html)")
	cmd.Flags().BoolVar(&asReport, "report", false, "print the presentation report instead of the raw result")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	return cmd
}

func setupLogging(level, format string, w io.Writer) error {
	lvl := zerolog.InfoLevel
	if strings.TrimSpace(level) != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return fmt.Errorf("LOG_LEVEL: %w", err)
		}
		lvl = parsed
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return nil
}

func newPipeline(cfg config.Config) (*extract.Registry, *analysis.Analyzer) {
	extractors := extract.NewRegistry()
	extractors.Register(pdfextractor.New(cfg.MaxUploadBytes, pdfextractor.PopplerConfig{
		Enabled:          cfg.PopplerFallback,
		PDFInfoTimeout:   cfg.PDFInfoTimeout,
		PDFToTextTimeout: cfg.PDFToTextTimeout,
	}))

	analyzer := analysis.NewAnalyzer(
		extractors,
		structure.NewRecognizer(cfg.MinStructureImagePx),
		analysis.Options{FieldMaxChars: cfg.FieldMaxChars, ScratchDir: cfg.ScratchDir},
	)
	return extractors, analyzer
}

func serve(ctx context.Context, cfg config.Config) error {
	extractors, analyzer := newPipeline(cfg)
	tasks := task.NewRegistry()
	pool := worker.New(tasks, analyzer, cfg.MaxConcurrentAnalyses)
	api := server.New(cfg, tasks, extractors, pool)

	maxHeaderBytes := 1 << 20
	if cfg.MaxHeaderBytes > 0 {
		maxHeaderBytes = cfg.MaxHeaderBytes
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.MaxConnections)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go api.RunMaintenance(ctx, cfg.CleanupInterval)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	log.Info().
		Str("addr", srv.Addr).
		Int64("maxConcurrent", cfg.MaxConcurrentRequests).
		Int64("maxAnalyses", cfg.MaxConcurrentAnalyses).
		Bool("popplerFallback", cfg.PopplerFallback).
		Msg("patentd listening")

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := pool.Wait(shutdownCtx); err != nil {
		log.Warn().Err(err).Int64("running", pool.Running()).Msg("analyses still running at exit")
	}
	return nil
}

func analyzeFile(ctx context.Context, cfg config.Config, path, format string, asReport bool, out io.Writer) error {
	_, analyzer := newPipeline(cfg)

	res, err := analyzer.Analyze(ctx, path, "")
	if err != nil {
		return err
	}

	if asReport {
		f, err := report.ParseFormat(format)
		if err != nil {
			return err
		}
		rep, err := report.Build(task.Task{
			ID:       uuid.NewString(),
			Status:   task.StatusCompleted,
			Filename: filepath.Base(path),
			Result:   &res,
		}, time.Now())
		if err != nil {
			return err
		}
		return report.Render(out, rep, f)
	}

	switch strings.ToLower(format) {
	case "", "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case "yaml", "yml":
		enc := yaml.NewEncoder(out)
		if err := enc.Encode(res); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}
