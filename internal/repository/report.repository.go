package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nimasrn/report-dispatcher/internal/model"
	"github.com/nimasrn/report-dispatcher/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
)

type ReportRepository struct {
	*pg.DB
}

func NewReportRepository(db *pg.DB) *ReportRepository {
	return &ReportRepository{
		db,
	}
}

// Load returns every report keyed by id.
func (r *ReportRepository) Load(ctx context.Context) (map[string]*model.Report, error) {
	reports, err := r.List(ctx, model.ReportFilter{})
	if err != nil {
		return nil, err
	}
	out := make(map[string]*model.Report, len(reports))
	for _, rep := range reports {
		out[rep.ID] = rep
	}
	return out, nil
}

// Save upserts the whole map in one transaction. Reports missing from the map
// are left untouched; use Delete to remove them.
func (r *ReportRepository) Save(ctx context.Context, reports map[string]*model.Report) error {
	if len(reports) == 0 {
		return nil
	}
	entities := make([]*ReportEntity, 0, len(reports))
	for id, rep := range reports {
		if _, err := model.ParseReportID(id); err != nil {
			return err
		}
		rep.ID = id
		entities = append(entities, toReportEntity(rep))
	}
	return r.WithinTransaction(ctx, func(ctx context.Context) error {
		return r.Write(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
			Create(&entities).Error
	})
}

func (r *ReportRepository) List(ctx context.Context, f model.ReportFilter) ([]*model.Report, error) {
	q := r.Read(ctx).Model(&ReportEntity{})
	// rows written before normalization may carry other casing
	if f.Mode != nil {
		q = q.Where("LOWER(TRIM(delivery_mode)) = ?", strings.ToLower(strings.TrimSpace(string(*f.Mode))))
	}
	if f.Status != nil {
		q = q.Where("LOWER(TRIM(status)) = ?", strings.ToLower(strings.TrimSpace(string(*f.Status))))
	}

	var entities []*ReportEntity
	if err := q.Order("seq ASC").Find(&entities).Error; err != nil {
		return nil, err
	}
	return toReportModels(entities), nil
}

func (r *ReportRepository) GetByID(ctx context.Context, id string) (*model.Report, error) {
	var entity ReportEntity
	err := r.Read(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toReportModel(&entity), nil
}

// Create assigns the next Report-N id and stamps both timestamps.
func (r *ReportRepository) Create(ctx context.Context, rep *model.Report, now time.Time) (*model.Report, error) {
	var created *ReportEntity
	err := r.WithinTransaction(ctx, func(ctx context.Context) error {
		var maxSeq int
		if err := r.Write(ctx).Model(&ReportEntity{}).Select("COALESCE(MAX(seq), 0)").Scan(&maxSeq).Error; err != nil {
			return err
		}
		rep.ID = model.FormatReportID(maxSeq + 1)
		rep.CreatedAt = now
		rep.UpdatedAt = now
		created = toReportEntity(rep)
		return r.Write(ctx).Create(created).Error
	})
	if err != nil {
		return nil, err
	}
	return toReportModel(created), nil
}

// Update replaces every mutable field. CreatedAt and delivery bookkeeping set
// by the dispatchers are only changed when the caller passes them explicitly.
func (r *ReportRepository) Update(ctx context.Context, rep *model.Report, now time.Time) (*model.Report, error) {
	var updated *model.Report
	err := r.WithinTransaction(ctx, func(ctx context.Context) error {
		existing, err := r.GetByID(ctx, rep.ID)
		if err != nil {
			return err
		}
		rep.CreatedAt = existing.CreatedAt
		rep.UpdatedAt = now
		entity := toReportEntity(rep)
		res := r.Write(ctx).Model(&ReportEntity{}).
			Where("id = ?", rep.ID).
			Select("*").
			Omit("id", "seq", "created_at").
			Updates(entity)
		if res.Error != nil {
			return res.Error
		}
		updated, err = r.GetByID(ctx, rep.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *ReportRepository) Delete(ctx context.Context, id string) error {
	res := r.Write(ctx).Where("id = ?", id).Delete(&ReportEntity{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementDeliveryCount bumps the counter and stamps last_delivered.
func (r *ReportRepository) IncrementDeliveryCount(ctx context.Context, id string, at time.Time) error {
	return r.bump(ctx, id, map[string]any{
		"delivery_count": gorm.Expr("delivery_count + ?", 1),
		"last_delivered": at,
		"updated_at":     at,
	})
}

// MarkSent records a successful scheduled delivery for the given day.
func (r *ReportRepository) MarkSent(ctx context.Context, id string, at time.Time, date string) error {
	return r.bump(ctx, id, map[string]any{
		"delivery_count": gorm.Expr("delivery_count + ?", 1),
		"last_delivered": at,
		"last_sent_date": date,
		"updated_at":     at,
	})
}

func (r *ReportRepository) bump(ctx context.Context, id string, fields map[string]any) error {
	res := r.Write(ctx).Model(&ReportEntity{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update report %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
