package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/queryviz/queryviz/internal/api"
	"github.com/queryviz/queryviz/internal/chart"
	"github.com/queryviz/queryviz/internal/config"
	"github.com/queryviz/queryviz/internal/database"
	"github.com/queryviz/queryviz/internal/datafile"
	"github.com/queryviz/queryviz/internal/logger"
	"github.com/queryviz/queryviz/internal/runner"
	"github.com/queryviz/queryviz/internal/shutdown"
	"github.com/queryviz/queryviz/internal/temporal"
)

// Version is set at build time.
var Version = "dev"

// closerFunc adapts a plain function to shutdown.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("queryviz %s\n", Version)
		return
	}
	datafile.ToolVersion = Version

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	log := logger.Get("main")
	log.Info().Str("version", Version).Msg("Starting queryviz")
	for _, w := range cfg.Warnings {
		log.Warn().Msg(w)
	}

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.OutputDir).Msg("Failed to create output directory")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database connections.
	manager := database.NewManager(logger.Get("database"))
	for _, connCfg := range cfg.Connections {
		conn, err := database.Open(connCfg, cfg.DBConnectionTimeout, logger.Get("database"))
		if err != nil {
			log.Fatal().Err(err).Str("connection", connCfg.Name).Msg("Failed to configure connection")
		}
		manager.Add(conn)
	}
	manager.WaitReady(ctx, cfg.InitialGracePeriod, cfg.GracePeriodRetryInterval)

	// One data file per query stream.
	files := datafile.NewFileSet(logger.Get("datafile"))
	for _, q := range cfg.Queries {
		retention := time.Duration(0)
		if q.TimeType == temporal.TypeTimestamp {
			retention = cfg.KeepHistory
		}
		_, err := files.Register(datafile.StreamConfig{
			Name:            q.Name,
			Description:     q.Description,
			Once:            q.Schedule.Once,
			Interval:        q.Schedule.Every,
			Columns:         q.MetricColumns(),
			HasTimeColumn:   q.HasTimeColumn(),
			TemporalType:    q.TimeType,
			MaxPoints:       cfg.KeepDatapoints,
			RetentionWindow: retention,
		}, cfg.OutputDir)
		if err != nil {
			log.Fatal().Err(err).Str("query", q.Name).Msg("Failed to register data file")
		}
	}
	if err := files.OpenRecurring(); err != nil {
		log.Fatal().Err(err).Msg("Failed to open data files")
	}

	// Chart generators.
	var generators []*chart.Generator
	for _, chartCfg := range cfg.Charts {
		g, err := chart.NewGenerator(chartCfg, cfg.OutputDir, logger.Get("chart"))
		if err != nil {
			log.Fatal().Err(err).Str("chart", chartCfg.Title).Msg("Invalid chart configuration")
		}
		generators = append(generators, g)
	}

	// Query workers and chart schedule.
	run := runner.New(cfg, manager, files, generators, logger.Get("runner"))
	if err := run.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start query workers")
	}

	// Status server.
	var server *api.Server
	if cfg.Server.Enabled {
		server = api.NewServer(cfg.Server, cfg.OutputDir, Version, files, manager, generators, logger.Get("api"))
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start status server")
		}
	}

	coordinator := shutdown.New(30*time.Second, logger.Get("shutdown"))
	if server != nil {
		coordinator.RegisterHook("status-server", func(ctx context.Context) error {
			return server.Shutdown(10 * time.Second)
		}, shutdown.PriorityServer)
	}
	coordinator.Register("query-workers", closerFunc(run.Stop), shutdown.PriorityWorkers)
	// Runs after the workers (and their cron) have stopped.
	coordinator.Register("final-render", closerFunc(func() error {
		renderCtx, renderCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer renderCancel()
		run.RenderCharts(renderCtx)
		return nil
	}), shutdown.PriorityCharts)
	coordinator.Register("data-files", closerFunc(files.CloseAll), shutdown.PriorityDataFiles)
	coordinator.Register("connections", closerFunc(manager.CloseAll), shutdown.PriorityConnections)

	coordinator.WaitForSignal()
	cancel()
	if err := coordinator.Shutdown(); err != nil {
		log.Error().Err(err).Msg("Shutdown finished with errors")
		os.Exit(1)
	}
}
