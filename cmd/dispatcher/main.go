package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nimasrn/report-dispatcher/internal/app"
	"github.com/nimasrn/report-dispatcher/internal/services"
	"github.com/nimasrn/report-dispatcher/pkg/logger"
	"github.com/nimasrn/report-dispatcher/pkg/prom"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cfg, err := app.Init(app.EnvPath(os.Args))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	logger.Info("starting dispatcher", "version", version, "commit", commit, "date", date)

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("invalid timezone", "error", err)
		return
	}
	clock := services.NewClock(loc)

	db, err := app.OpenDB(cfg)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := app.OpenRedis(cfg)
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	slack, err := app.NewSlackClient(cfg)
	if err != nil {
		logger.Error("failed to create slack client", "error", err)
		return
	}

	status, err := app.NewStatusSource(cfg)
	if err != nil {
		logger.Error("failed to create status source", "error", err)
		return
	}

	svc := app.NewServices(db, clock)
	deliverer := app.NewDeliverer(cfg, slack, clock)
	runner := app.NewRunner(cfg, svc, deliverer, status, app.NewClaimer(cfg, redisAdap))
	runner.AddHealthCheck("postgres", db)
	if redisAdap != nil {
		runner.AddHealthCheck("redis", redisAdap)
	}

	if hasFlag("--once") {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		summary := runner.RunCycle(ctx)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			logger.Error("failed to write cycle summary", "error", err)
		}
		return
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	err = prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace)
	if err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}

	go func() {
		prom.ListenAndServer(cfg.PromListenAddr, "/metrics")
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	if err := runner.Start(); err != nil {
		logger.Error("failed to start dispatcher", "error", err)
		return
	}

	<-c
	logger.Info("shutting down dispatcher")
	runner.Stop()
	_ = logger.GetLogger().Sync()
}

func hasFlag(name string) bool {
	for _, v := range os.Args[1:] {
		if v == name {
			return true
		}
	}
	return false
}
