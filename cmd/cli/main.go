package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nimasrn/report-dispatcher/internal/app"
	"github.com/nimasrn/report-dispatcher/internal/config"
	"github.com/nimasrn/report-dispatcher/internal/services"
	"github.com/nimasrn/report-dispatcher/migrations"
	"github.com/nimasrn/report-dispatcher/pkg/logger"
	"github.com/nimasrn/report-dispatcher/pkg/pg"
)

const usage = `usage: cli <command> [--env=path] [--dir=path] [--out=dir] [--days=n]

commands:
  migrate         apply pending migrations
  migrate-down    roll back the latest migration
  migrate-status  print migration status
  export-logs     write delivery_logs.json and automatic_delivery_log.json`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := app.Init(app.EnvPath(os.Args))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "migrate":
		err = runMigration(pg.Migrate, cfg)
	case "migrate-down":
		err = runMigration(pg.MigrateDown, cfg)
	case "migrate-status":
		err = runMigration(pg.MigrationStatus, cfg)
	case "export-logs":
		err = exportLogs(cfg)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

// main.go migrate --dir=./migrations reads from disk; without --dir the
// embedded migrations are used.
func runMigration(run func(pg.Config, fs.FS, string) error, cfg *config.Config) error {
	if dir := argValue("--dir"); dir != "" {
		return run(cfg.PostgresWrite(), nil, dir)
	}
	return run(cfg.PostgresWrite(), migrations.FS, ".")
}

func exportLogs(cfg *config.Config) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	db, err := app.OpenDB(cfg)
	if err != nil {
		return err
	}
	svc := app.NewServices(db, services.NewClock(loc))

	days := 30
	if v := argValue("--days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid --days %q", v)
		}
		days = n
	}
	out := argValue("--out")
	if out == "" {
		out = "."
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	logs, err := svc.Logs.ExportBuckets(ctx, days)
	if err != nil {
		return err
	}
	if err := writeJSONFile(filepath.Join(out, "delivery_logs.json"), logs); err != nil {
		return err
	}

	automatic, err := svc.Automatic.ExportBuckets(ctx, days)
	if err != nil {
		return err
	}
	if err := writeJSONFile(filepath.Join(out, "automatic_delivery_log.json"), automatic); err != nil {
		return err
	}
	logger.Info("exported logs", "dir", out, "days", days, "log_days", len(logs), "automatic_days", len(automatic))
	return nil
}

func writeJSONFile(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func argValue(name string) string {
	for _, v := range os.Args {
		if strings.HasPrefix(v, name+"=") {
			return strings.TrimPrefix(v, name+"=")
		}
	}
	return ""
}
