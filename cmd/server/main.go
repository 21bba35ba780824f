// Command server serves the session API.
//
// Sessions are submitted as YAML or JSON to POST /sessions, run in virtual
// time and their round reports are kept for later queries. Reports live in
// memory unless a Postgres host is configured.
//
// # Usage
//
//	go run ./cmd/server --addr=:8080
//	go run ./cmd/server --config=server.yaml
//	go run ./cmd/server --postgres-dsn="host=localhost user=maskagg dbname=maskagg sslmode=disable"
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flashbots/maskagg/api/httpserver"
	"github.com/flashbots/maskagg/cmd/common"
	"github.com/flashbots/maskagg/report"
	"github.com/flashbots/maskagg/services"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		addr        = flag.String("addr", "", "HTTP listen address (overrides config)")
		logFormat   = flag.String("log-format", "", "Log format: text or json (overrides config)")
		logLevel    = flag.String("log-level", "", "Log level (overrides config)")
		postgresDSN = flag.String("postgres-dsn", "", "Postgres connection string for reports (overrides config)")
		enablePprof = flag.Bool("pprof", false, "Serve pprof under /debug")
	)
	flag.Parse()

	cfg := common.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = common.LoadConfig(*configPath)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *enablePprof {
		cfg.EnablePprof = true
	}

	log, err := common.NewLogger(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		fmt.Printf("Configuration error: %v\n", err)
		os.Exit(1)
	}

	var (
		store     report.Store
		closeFunc func() error
	)
	if *postgresDSN != "" {
		pg, err := report.OpenPostgresStore(*postgresDSN)
		if err != nil {
			log.Error("opening postgres store", "err", err)
			os.Exit(1)
		}
		store, closeFunc = pg, pg.Close
	} else {
		store, closeFunc, err = common.NewReportStore(cfg)
		if err != nil {
			log.Error("opening report store", "err", err)
			os.Exit(1)
		}
	}
	defer closeFunc()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	api := services.NewSessionAPI(cfg.API, store, log)
	srv := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               cfg.HTTPAddr,
		EnablePprof:              cfg.EnablePprof,
		AllowedOrigins:           cfg.AllowedOrigins,
		Log:                      log,
		DrainDuration:            cfg.DrainDuration,
		GracefulShutdownDuration: cfg.GracefulShutdownDuration,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             cfg.API.RunTimeout + 15*time.Second,
	}, api)
	api.SetReadiness(srv.IsReady)

	srv.RunInBackground()
	<-ctx.Done()

	log.Info("Shutting down")
	srv.Shutdown()
}
