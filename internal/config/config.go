package config

import (
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/nimasrn/report-dispatcher/pkg/logger"
	"github.com/nimasrn/report-dispatcher/pkg/pg"
	"github.com/pkg/errors"
)

var config *Config

// Config holds every value the binaries read from the environment. Nothing
// else in the module reads env vars directly.
type Config struct {
	AppEnv  string `env:"APP_ENV,default=dev"`
	AppName string `env:"APP_NAME,default=report_dispatcher"`

	HttpListenAddr string `env:"HTTP_LISTEN_ADDR,default=:8080"`

	LogLevel          string `env:"LOG_LEVEL,default=info"`
	LogFile           string `env:"LOG_FILE"`
	LogFileMaxSizeMB  int    `env:"LOG_FILE_MAX_SIZE_MB,default=100"`
	LogFileMaxBackups int    `env:"LOG_FILE_MAX_BACKUPS,default=5"`
	LogFileMaxAgeDays int    `env:"LOG_FILE_MAX_AGE_DAYS,default=14"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	RedisAddr               string `env:"REDIS_ADDR"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX,default=dispatcher:"`

	PromNamespace  string `env:"PROM_NAMESPACE,default=report_dispatcher"`
	PromListenAddr string `env:"PROM_LISTEN_ADDR,default=:9100"`

	SlackBotToken            string        `env:"SLACK_BOT_TOKEN"`
	SlackToken               string        `env:"SLACK_TOKEN"`
	SlackAPIURL              string        `env:"SLACK_API_URL,default=https://slack.com/api"`
	SlackDefaultChannelID    string        `env:"SLACK_DEFAULT_CHANNEL_ID"`
	LegacyDefaultChannelID   string        `env:"DELIVERY_TEST_SLACK_DEFAULT_CHANNEL_ID"`
	SlackTimeout             time.Duration `env:"SLACK_TIMEOUT,default=10s"`
	SlackRatePerSec          int           `env:"SLACK_RATE_PER_SEC,default=1"`
	SlackHistoryLimit        int           `env:"SLACK_HISTORY_LIMIT,default=50"`
	SlackChannelListPageSize int           `env:"SLACK_CHANNEL_LIST_PAGE_SIZE,default=1000"`

	StatusSource            string        `env:"STATUS_SOURCE,default=sheets"`
	GoogleSheetsStatusURL   string        `env:"GOOGLE_SHEETS_STATUS_URL"`
	GoogleSheetsAPIURL      string        `env:"GOOGLE_SHEETS_API_URL,default=https://sheets.googleapis.com/v4"`
	GoogleSheetsAccessToken string        `env:"GOOGLE_SHEETS_ACCESS_TOKEN"`
	GoogleSheetsAPIKey      string        `env:"GOOGLE_SHEETS_API_KEY"`
	GoogleSheetsTimeout     time.Duration `env:"GOOGLE_SHEETS_TIMEOUT,default=15s"`
	StatusSheetName         string        `env:"STATUS_SHEET_NAME,default=Report main"`
	StatusXLSXPath          string        `env:"STATUS_XLSX_PATH"`

	DeliveryTimezone        string        `env:"DELIVERY_TIMEZONE,default=Asia/Tokyo"`
	DispatchCron            string        `env:"DISPATCH_CRON,default=* * * * *"`
	ScheduleTolerance       time.Duration `env:"SCHEDULE_TOLERANCE,default=15m"`
	AutomaticWindow         time.Duration `env:"AUTOMATIC_WINDOW,default=5m"`
	AutomaticCompleteStatus string        `env:"AUTOMATIC_COMPLETE_STATUS,default=完了"`
	TeamName                string        `env:"TEAM_NAME,default=DDAM"`
	ClaimLockTTL            time.Duration `env:"CLAIM_LOCK_TTL,default=2m"`
	ClaimDeliveredTTL       time.Duration `env:"CLAIM_DELIVERED_TTL,default=48h"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	var err error
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		err = godotenv.Load(path)
		if err != nil {
			return errors.Wrapf(err, "failed to load configuration file %s", path)
		}
	}

	_, err = env.UnmarshalFromEnviron(c)
	if err != nil {
		return errors.Wrap(err, "failed to map env variables to Configuration object")
	}

	config = c
	return nil
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

// Set installs c as the process config. Tests use it instead of Load.
func Set(c *Config) {
	config = c
}

// SlackAuthToken prefers SLACK_BOT_TOKEN and falls back to SLACK_TOKEN.
func (c *Config) SlackAuthToken() string {
	if c.SlackBotToken != "" {
		return c.SlackBotToken
	}
	return c.SlackToken
}

func (c *Config) DefaultChannel() string {
	if c.SlackDefaultChannelID != "" {
		return c.SlackDefaultChannelID
	}
	return c.LegacyDefaultChannelID
}

func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.DeliveryTimezone)
	if err != nil {
		return nil, errors.Wrapf(err, "unknown DELIVERY_TIMEZONE %q", c.DeliveryTimezone)
	}
	return loc, nil
}

func (c *Config) PostgresRead() pg.Config {
	return pg.Config{
		User:     c.PostgresReadUser,
		Host:     c.PostgresReadHost,
		Port:     c.PostgresReadPort,
		Password: c.PostgresReadPassword,
		Database: c.PostgresReadDatabase,
	}
}

func (c *Config) PostgresWrite() pg.Config {
	return pg.Config{
		User:     c.PostgresWriteUser,
		Host:     c.PostgresWriteHost,
		Port:     c.PostgresWritePort,
		Password: c.PostgresWritePassword,
		Database: c.PostgresWriteDatabase,
	}
}

func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{
		Level:          c.LogLevel,
		Production:     c.AppEnv == "production",
		File:           c.LogFile,
		FileMaxSizeMB:  c.LogFileMaxSizeMB,
		FileMaxBackups: c.LogFileMaxBackups,
		FileMaxAgeDays: c.LogFileMaxAgeDays,
	}
}
