package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nimasrn/report-dispatcher/internal/app"
	"github.com/nimasrn/report-dispatcher/internal/handlers"
	"github.com/nimasrn/report-dispatcher/internal/services"
	xhttp "github.com/nimasrn/report-dispatcher/pkg/http"
	"github.com/nimasrn/report-dispatcher/pkg/logger"
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
	logger.Info("starting admin api", "version", version, "commit", commit, "date", date)

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("invalid timezone", "error", err)
		return
	}
	clock := services.NewClock(loc)

	// transport (tcp for now)
	// a deliver call waits on the messaging platform
	opts := xhttp.DefaultServerOption
	opts.WriteTimeout = cfg.SlackTimeout + 10*time.Second
	s := xhttp.NewServer(opts)
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(cfg.SlackTimeout + 5*time.Second))
	s.Use(xhttp.RequestLoggerMiddleware(cfg.SlackTimeout / 2))
	s.Use(xhttp.RecoverMiddleware)
	s.Router = xhttp.CreateDefaultRouter()

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

	// services
	svc := app.NewServices(db, clock)
	deliverer := app.NewDeliverer(cfg, slack, clock)

	deps := map[string]handlers.HealthService{"postgres": db}
	if redisAdap != nil {
		deps["redis"] = redisAdap
	}

	// v1 handlers
	reportHandler := handlers.NewReportHandler(svc.Reports, deliverer, svc.Logs)
	logHandler := handlers.NewLogHandler(svc.Logs, clock.Today)
	settingsHandler := handlers.NewSettingsHandler(svc.Settings)
	healthHandler := handlers.NewHealthHandler(deps)

	g := s.Router.Group("/api/v1")
	handlers.RegisterReportRoutes(g, reportHandler)
	handlers.RegisterLogRoutes(g, logHandler)
	handlers.RegisterSettingsRoutes(g, settingsHandler)
	handlers.RegisterHealthRoutes(g, healthHandler)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		var err = s.ListenAndServe(cfg.HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	select {
	case <-c:
		s.Shutdown()
	}
}
