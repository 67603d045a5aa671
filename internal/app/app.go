// Package app builds the shared component graph the binaries start from.
package app

import (
	"os"
	"strings"

	"github.com/nimasrn/report-dispatcher/internal/config"
	"github.com/nimasrn/report-dispatcher/internal/delivery"
	"github.com/nimasrn/report-dispatcher/internal/dispatch"
	gateway "github.com/nimasrn/report-dispatcher/internal/gateways"
	"github.com/nimasrn/report-dispatcher/internal/repository"
	"github.com/nimasrn/report-dispatcher/internal/resolver"
	"github.com/nimasrn/report-dispatcher/internal/services"
	"github.com/nimasrn/report-dispatcher/pkg/logger"
	"github.com/nimasrn/report-dispatcher/pkg/pg"
	"github.com/nimasrn/report-dispatcher/pkg/redis"
	"github.com/pkg/errors"
)

// Services groups the persistence-backed services every binary shares.
type Services struct {
	Clock     services.Clock
	Reports   *services.ReportService
	Logs      *services.DeliveryLogService
	Automatic *services.AutomaticDeliveryService
	Settings  *services.SettingsService
}

func NewServices(db *pg.DB, clock services.Clock) *Services {
	return &Services{
		Clock:     clock,
		Reports:   services.NewReportService(repository.NewReportRepository(db), clock),
		Logs:      services.NewDeliveryLogService(repository.NewDeliveryLogRepository(db), clock),
		Automatic: services.NewAutomaticDeliveryService(repository.NewAutomaticDeliveryRepository(db), clock),
		Settings:  services.NewSettingsService(repository.NewSettingRepository(db), clock),
	}
}

// EnvPath returns the value of a --env=<path> argument if the file exists.
func EnvPath(args []string) string {
	for _, v := range args {
		if strings.HasPrefix(v, "--env=") {
			p := strings.TrimPrefix(v, "--env=")
			if _, err := os.Stat(p); err != nil {
				logger.Error("failed to open the passed env file", "path", p, "error", err)
				return ""
			}
			return p
		}
	}
	return ""
}

// Init loads configuration and installs the process logger.
func Init(envPath string) (*config.Config, error) {
	if err := config.Load(envPath); err != nil {
		return nil, err
	}
	cfg := config.Get()
	if _, err := logger.Setup(cfg.LoggerOptions()); err != nil {
		return nil, errors.Wrap(err, "failed to set up logger")
	}
	return cfg, nil
}

func OpenDB(cfg *config.Config) (*pg.DB, error) {
	db, err := pg.CreateReadWrite(cfg.PostgresRead(), cfg.PostgresWrite(), cfg.AppEnv == "dev")
	if err != nil {
		return nil, errors.Wrap(err, "failed connecting to pg")
	}
	return db, nil
}

// OpenRedis returns nil when REDIS_ADDR is unset. Callers treat a nil adapter
// as single-instance mode.
func OpenRedis(cfg *config.Config) (redis.RedisAdapter, error) {
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not set, running without cross-process claims")
		return nil, nil
	}
	adapter, err := redis.NewRedisAdapter("default", cfg.RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{cfg.RedisAddr},
		ClientName: cfg.AppName,
		DB:         cfg.RedisDatabase,
		Username:   cfg.RedisUsername,
		Password:   cfg.RedisPassword,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed connecting to redis")
	}
	return adapter, nil
}

func NewSlackClient(cfg *config.Config) (*gateway.SlackClient, error) {
	sc := gateway.DefaultSlackConfig()
	sc.BaseURL = cfg.SlackAPIURL
	sc.Token = cfg.SlackAuthToken()
	sc.Timeout = cfg.SlackTimeout
	sc.RatePerSec = cfg.SlackRatePerSec
	sc.ChannelPageSize = cfg.SlackChannelListPageSize
	return gateway.NewSlackClient(sc)
}

func NewDeliverer(cfg *config.Config, slack *gateway.SlackClient, clock services.Clock) *delivery.Deliverer {
	return delivery.NewDeliverer(
		slack,
		resolver.NewRecipientResolver(slack),
		resolver.NewThreadResolver(slack, cfg.SlackHistoryLimit),
		delivery.Config{
			DefaultChannel: cfg.DefaultChannel(),
			Team:           cfg.TeamName,
			Location:       clock.Location,
			Now:            clock.Now,
		},
	)
}

func NewStatusSource(cfg *config.Config) (dispatch.StatusSource, error) {
	switch cfg.StatusSource {
	case "xlsx":
		if cfg.StatusXLSXPath == "" {
			return nil, errors.New("STATUS_XLSX_PATH is required when STATUS_SOURCE=xlsx")
		}
		return gateway.NewXLSXSource(cfg.StatusXLSXPath, cfg.StatusSheetName), nil
	case "sheets", "":
		return gateway.NewSheetsSource(gateway.SheetsConfig{
			BaseURL:        cfg.GoogleSheetsAPIURL,
			SpreadsheetURL: cfg.GoogleSheetsStatusURL,
			SheetName:      cfg.StatusSheetName,
			AccessToken:    cfg.GoogleSheetsAccessToken,
			APIKey:         cfg.GoogleSheetsAPIKey,
			Timeout:        cfg.GoogleSheetsTimeout,
		})
	default:
		return nil, errors.Errorf("unknown STATUS_SOURCE %q", cfg.StatusSource)
	}
}

// NewRunner wires both dispatchers around the shared services.
func NewRunner(cfg *config.Config, svc *Services, sender dispatch.Sender, status dispatch.StatusSource, claims *dispatch.Claimer) *dispatch.Runner {
	scheduled := dispatch.NewScheduledDispatcher(svc.Reports, svc.Logs, sender, claims, svc.Clock, dispatch.ScheduledConfig{
		ToleranceMinutes: int(cfg.ScheduleTolerance.Minutes()),
	})
	automatic := dispatch.NewAutomaticDispatcher(svc.Reports, svc.Logs, sender, status, svc.Automatic, svc.Settings, claims, svc.Clock, dispatch.AutomaticConfig{
		LeadTime:       cfg.AutomaticWindow,
		CompleteStatus: cfg.AutomaticCompleteStatus,
	})
	return dispatch.NewRunner(scheduled, automatic, dispatch.RunnerConfig{
		Schedule: cfg.DispatchCron,
		Location: svc.Clock.Location,
	})
}

func NewClaimer(cfg *config.Config, adapter redis.RedisAdapter) *dispatch.Claimer {
	cc := dispatch.DefaultClaimConfig()
	if cfg.ClaimLockTTL > 0 {
		cc.LockTTL = cfg.ClaimLockTTL
	}
	if cfg.ClaimDeliveredTTL > 0 {
		cc.DeliveredTTL = cfg.ClaimDeliveredTTL
	}
	return dispatch.NewClaimer(adapter, cc)
}
