package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/nimasrn/report-dispatcher/internal/model"
	"github.com/nimasrn/report-dispatcher/internal/repository"
	"github.com/nimasrn/report-dispatcher/pkg/logger"
)

type SettingRepository interface {
	Get(ctx context.Context, key string) (*model.Setting, error)
	Set(ctx context.Context, key, value string, now time.Time) (*model.Setting, error)
}

type SettingsService struct {
	repo  SettingRepository
	clock Clock
}

func NewSettingsService(repo SettingRepository, clock Clock) *SettingsService {
	return &SettingsService{repo: repo, clock: clock}
}

// Get returns def when the key has never been set.
func (s *SettingsService) Get(ctx context.Context, key, def string) (string, error) {
	setting, err := s.repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return def, nil
		}
		return "", err
	}
	return setting.Value, nil
}

func (s *SettingsService) Set(ctx context.Context, key, value string) (*model.Setting, error) {
	return s.repo.Set(ctx, key, value, s.clock.Now())
}

// AutomaticDeliveryEnabled is the kill switch for automatic mode. A missing
// or unreadable value counts as disabled.
func (s *SettingsService) AutomaticDeliveryEnabled(ctx context.Context) bool {
	v, err := s.Get(ctx, model.SettingAutomaticDeliveryEnabled, "false")
	if err != nil {
		logger.Error("failed to read automatic delivery setting", "error", err)
		return false
	}
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warn("malformed automatic delivery setting", "value", v)
		return false
	}
	return enabled
}

func (s *SettingsService) SetAutomaticDeliveryEnabled(ctx context.Context, enabled bool) (*model.Setting, error) {
	setting, err := s.Set(ctx, model.SettingAutomaticDeliveryEnabled, strconv.FormatBool(enabled))
	if err != nil {
		return nil, err
	}
	logger.Info("automatic delivery toggled", "enabled", enabled)
	return setting, nil
}
