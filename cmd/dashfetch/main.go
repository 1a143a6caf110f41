// The dashfetch command downloads segmented audio/video streams and muxes them into MP4 files.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/agleyzer/dashfetch/internal/artifact"
	"github.com/agleyzer/dashfetch/internal/assembler"
	"github.com/agleyzer/dashfetch/internal/config"
	"github.com/agleyzer/dashfetch/internal/fetcher"
	"github.com/agleyzer/dashfetch/internal/governor"
	"github.com/agleyzer/dashfetch/internal/logging"
	"github.com/agleyzer/dashfetch/internal/metrics"
	"github.com/agleyzer/dashfetch/internal/mux"
	"github.com/agleyzer/dashfetch/internal/orchestrator"
	"github.com/agleyzer/dashfetch/internal/parser"
	"github.com/agleyzer/dashfetch/internal/server"
)

const (
	version = "1.0.0"
)

var errVersion = errors.New("version requested")

func main() {
	// A missing .env is fine; the environment and flags still apply.
	_ = config.Load()

	cfg, err := parseArgs(os.Args[1:], os.Stderr)
	if errors.Is(err, errVersion) {
		fmt.Printf("dashfetch v%s\n", version)
		os.Exit(0)
	}
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Every log line, including ffmpeg output, goes through one writer.
	out := logging.NewSyncWriter(os.Stdout)
	logger := logging.New(out, cfg.LogLevel, cfg.LogFormat).With("run_id", uuid.NewString())

	logger.Info("dashfetch starting",
		"version", version,
		"videos", len(cfg.Videos),
		"max_downloads", cfg.MaxDownloads,
		"max_heavy_io", cfg.MaxHeavyIO,
		"video_workers", cfg.VideoWorkers,
		"output_dir", cfg.OutputDir,
	)

	if err := run(cfg, out, logger); err != nil {
		logger.Error("application error", "error", err)
		os.Exit(1)
	}

	logger.Info("dashfetch finished")
}

// parseArgs builds the run configuration from command-line arguments.
// Flag defaults come from the environment.
func parseArgs(args []string, stderr io.Writer) (*config.Config, error) {
	env := config.FromEnv()

	fs := flag.NewFlagSet("dashfetch", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		maxDownloads = fs.Int("max-downloads", env.MaxDownloads, "Maximum concurrent segment downloads")
		maxHeavyIO   = fs.Int("max-heavy-io", env.MaxHeavyIO, "Maximum concurrent combine/mux operations")
		videoWorkers = fs.Int("workers", env.VideoWorkers, "Number of videos processed concurrently")
		outputDir    = fs.String("output", env.OutputDir, "Output root directory")
		ffmpegPath   = fs.String("ffmpeg", env.FFmpegPath, "Path to the ffmpeg binary")
		fetchTimeout = fs.Duration("fetch-timeout", env.FetchTimeout, "Timeout for a single segment request")
		metricsAddr  = fs.String("metrics-addr", env.MetricsAddr, "Address for /metrics and /health (disabled if empty)")
		logLevel     = fs.String("log-level", env.LogLevel, "Log level: debug, info, warn, error")
		logFormat    = fs.String("log-format", env.LogFormat, "Log format: text or json")
		videosFile   = fs.String("videos", "", "JSON file with an array of {\"name\", \"url\"} objects")
		dryRun       = fs.Bool("dry-run", false, "Resolve manifests and write HLS plans without downloading")
		showVersion  = fs.Bool("version", false, "Show version and exit")
	)

	fs.Usage = func() {
		fmt.Fprintf(stderr, "dashfetch - segmented stream downloader v%s\n\n", version)
		fmt.Fprintf(stderr, "Usage: dashfetch [options] [name=url ...]\n\n")
		fmt.Fprintf(stderr, "Arguments:\n")
		fmt.Fprintf(stderr, "  name=url    Output name and a public video page or master.json URL\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  dashfetch intro=https://vimeo.com/123456789\n")
		fmt.Fprintf(stderr, "  dashfetch --videos videos.json --max-downloads 8\n")
		fmt.Fprintf(stderr, "  dashfetch --dry-run --output /tmp/plans talk=https://cdn.example.com/x/master.json\n")
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *showVersion {
		return nil, errVersion
	}

	cfg := &config.Config{
		MaxDownloads: *maxDownloads,
		MaxHeavyIO:   *maxHeavyIO,
		VideoWorkers: *videoWorkers,
		OutputDir:    *outputDir,
		FFmpegPath:   *ffmpegPath,
		FetchTimeout: *fetchTimeout,
		MetricsAddr:  *metricsAddr,
		LogLevel:     *logLevel,
		LogFormat:    *logFormat,
		DryRun:       *dryRun,
	}

	if *videosFile != "" {
		videos, err := config.LoadVideos(*videosFile)
		if err != nil {
			return nil, err
		}
		cfg.Videos = append(cfg.Videos, videos...)
	}

	for _, arg := range fs.Args() {
		v, err := config.ParseVideoArg(arg)
		if err != nil {
			return nil, err
		}
		cfg.Videos = append(cfg.Videos, v)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cfg *config.Config, logOut io.Writer, logger *slog.Logger) error {
	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received signal", "signal", sig)
		cancel()
	}()

	gov := governor.New(cfg.MaxDownloads, cfg.MaxHeavyIO)
	layout := artifact.NewLayout(cfg.OutputDir)

	m := metrics.New()
	for _, c := range []governor.Class{governor.Network, governor.HeavyIO} {
		m.TrackPermits(c.String(), func() float64 { return float64(gov.InUse(c)) })
	}

	f := fetcher.New(nil, gov, layout, m, cfg.FetchTimeout, logger)
	asm := assembler.New(f, gov, layout, m, logger)
	resolver := parser.NewResolver(nil, "")
	muxer := mux.NewFFmpeg(cfg.FFmpegPath, mux.NewHCLogger(logOut, hclog.LevelFromString(cfg.LogLevel)))

	orch := orchestrator.New(resolver, asm, muxer, gov, layout, m, logger)

	if cfg.MetricsAddr != "" {
		srv := server.New(cfg.MetricsAddr, m.Handler(), orch.Stats, logger)
		srvCtx, stopServer := context.WithCancel(ctx)
		defer stopServer()
		go func() {
			if err := srv.Start(srvCtx); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	if cfg.DryRun {
		logger.Info("dry run: writing plans", "videos", len(cfg.Videos))
		return orch.Plan(ctx, cfg.Videos)
	}

	err := orch.Run(ctx, cfg.Videos, cfg.VideoWorkers)
	logger.Info("run summary", "stats", orch.Stats())
	return err
}
