package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"node.town/shabad/config"
	"node.town/shabad/db"
	"node.town/shabad/metrics"
	"node.town/shabad/session"
	"node.town/shabad/socket"
	"node.town/shabad/verse"
	"node.town/shabad/www"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and audio stream server",
	Run:   runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}

	mainLogger, sockLogger, hearLogger, dataLogger := createLoggers(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	recognizer, closeRecognizer, err := newRecognizer(ctx, cfg.STT, hearLogger)
	if err != nil {
		mainLogger.Fatal("create recognizer", "error", err)
	}
	defer closeRecognizer()

	opts := session.Options{
		Config:       cfg.Recognition(),
		DrainTimeout: cfg.Session.DrainTimeout,
		OpenTimeout:  cfg.Session.OpenTimeout,
		QueueLimit:   cfg.Session.QueueLimit,
		Shards:       cfg.Session.Shards,
		Finder:       verse.Placeholder{Source: "Stream"},
		Metrics:      m,
	}

	routerOpts := www.Options{
		StaticDir:      cfg.HTTP.StaticDir,
		UploadDir:      cfg.HTTP.UploadDir,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Metrics:        m,
		Gatherer:       reg,
	}

	if cfg.Database.URL != "" {
		pool, err := db.OpenDatabase(ctx, cfg.Database.URL, dataLogger)
		if err != nil {
			mainLogger.Fatal("open database", "error", err)
		}
		defer pool.Close()

		journal := db.NewJournal(pool, dataLogger)
		opts.Journal = journal
		routerOpts.Transcripts = journal
	} else {
		mainLogger.Info("transcript journal disabled")
	}

	coord := session.NewCoordinator(recognizer, opts, hearLogger)

	routerOpts.Sessions = coord
	routerOpts.Stream = socket.NewHandler(coord, cfg.HTTP.AllowedOrigins, sockLogger)
	router := www.NewRouter(routerOpts, mainLogger)

	mainLogger.Info(
		"serving",
		"backend", cfg.STT.Backend,
		"language", cfg.STT.Language,
		"encoding", cfg.STT.Encoding,
	)

	if err := www.Serve(ctx, cfg.HTTP.Port, router, mainLogger); err != nil {
		mainLogger.Error("http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Session.DrainTimeout+5*time.Second,
	)
	defer cancel()

	if err := coord.Shutdown(shutdownCtx); err != nil {
		mainLogger.Warn("sessions did not drain in time", "error", err)
	}
	mainLogger.Info("stopped")
}
