package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nimasrn/report-dispatcher/internal/model"
	"github.com/nimasrn/report-dispatcher/internal/repository"
	"github.com/nimasrn/report-dispatcher/pkg/logger"
)

var (
	ErrReportNotFound = errors.New("report not found")
	ErrInvalidReport  = errors.New("invalid report")
)

type ReportRepository interface {
	Load(ctx context.Context) (map[string]*model.Report, error)
	Save(ctx context.Context, reports map[string]*model.Report) error
	List(ctx context.Context, f model.ReportFilter) ([]*model.Report, error)
	GetByID(ctx context.Context, id string) (*model.Report, error)
	Create(ctx context.Context, rep *model.Report, now time.Time) (*model.Report, error)
	Update(ctx context.Context, rep *model.Report, now time.Time) (*model.Report, error)
	Delete(ctx context.Context, id string) error
	IncrementDeliveryCount(ctx context.Context, id string, at time.Time) error
	MarkSent(ctx context.Context, id string, at time.Time, date string) error
}

type ReportService struct {
	repo  ReportRepository
	clock Clock
}

func NewReportService(repo ReportRepository, clock Clock) *ReportService {
	return &ReportService{repo: repo, clock: clock}
}

// ValidateReport checks that the field the delivery mode depends on is usable.
func ValidateReport(rep *model.Report) error {
	if rep.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidReport)
	}
	switch rep.DeliveryMode {
	case model.DeliveryModeScheduled:
		if _, err := model.ParseClock(rep.ScheduleTime); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidReport, err)
		}
	case model.DeliveryModeAutomatic:
		if rep.AutomaticTaskID == "" {
			return fmt.Errorf("%w: automatic_task_id is required for automatic delivery", ErrInvalidReport)
		}
	}
	return nil
}

func (s *ReportService) Load(ctx context.Context) (map[string]*model.Report, error) {
	return s.repo.Load(ctx)
}

func (s *ReportService) Save(ctx context.Context, reports map[string]*model.Report) error {
	for _, rep := range reports {
		model.NormalizeReport(rep)
	}
	return s.repo.Save(ctx, reports)
}

func (s *ReportService) List(ctx context.Context, f model.ReportFilter) ([]*model.Report, error) {
	return s.repo.List(ctx, f)
}

// ListActiveByMode returns the reports a dispatcher owns, in creation order.
func (s *ReportService) ListActiveByMode(ctx context.Context, mode model.DeliveryMode) ([]*model.Report, error) {
	status := model.ReportStatusActive
	return s.repo.List(ctx, model.ReportFilter{Mode: &mode, Status: &status})
}

func (s *ReportService) Get(ctx context.Context, id string) (*model.Report, error) {
	rep, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrReportNotFound
		}
		return nil, err
	}
	return rep, nil
}

func (s *ReportService) Add(ctx context.Context, rep *model.Report) (*model.Report, error) {
	model.NormalizeReport(rep)
	if err := ValidateReport(rep); err != nil {
		return nil, err
	}
	rep.DeliveryCount = 0
	rep.LastDelivered = nil
	rep.LastSentDate = ""

	created, err := s.repo.Create(ctx, rep, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}
	logger.Info("report created", "report_id", created.ID, "name", created.Name, "mode", created.DeliveryMode)
	return created, nil
}

func (s *ReportService) Update(ctx context.Context, rep *model.Report) (*model.Report, error) {
	model.NormalizeReport(rep)
	if err := ValidateReport(rep); err != nil {
		return nil, err
	}
	updated, err := s.repo.Update(ctx, rep, s.clock.Now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("failed to update report: %w", err)
	}
	logger.Info("report updated", "report_id", updated.ID)
	return updated, nil
}

func (s *ReportService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrReportNotFound
		}
		return err
	}
	logger.Info("report deleted", "report_id", id)
	return nil
}

func (s *ReportService) IncrementDeliveryCount(ctx context.Context, id string) error {
	return s.repo.IncrementDeliveryCount(ctx, id, s.clock.Now())
}

// MarkSent stamps a successful scheduled delivery for today.
func (s *ReportService) MarkSent(ctx context.Context, id string) error {
	now := s.clock.Now()
	return s.repo.MarkSent(ctx, id, now, now.Format(model.DateLayout))
}
