package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"clock-in-system/backend/internal/model"
)

// ShiftExceptionRepository 排班-出勤异常数据访问接口
type ShiftExceptionRepository interface {
	Create(ctx context.Context, e *model.ShiftException) error
	GetByID(ctx context.Context, id string) (*model.ShiftException, error)
	GetByIDForUpdate(ctx context.Context, id string) (*model.ShiftException, error)
	GetByShift(ctx context.Context, shiftID string) (*model.ShiftException, error)
	GetByActivity(ctx context.Context, activityID string) (*model.ShiftException, error)
	ListPendingByStore(ctx context.Context, storeID string) ([]model.ShiftException, error)
	Update(ctx context.Context, e *model.ShiftException) error
	Delete(ctx context.Context, id string) error
}

type shiftExceptionRepo struct {
	db *gorm.DB
}

// NewShiftExceptionRepo 创建 ShiftExceptionRepository 实例
func NewShiftExceptionRepo(db *gorm.DB) ShiftExceptionRepository {
	return &shiftExceptionRepo{db: db}
}

func (r *shiftExceptionRepo) Create(ctx context.Context, e *model.ShiftException) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(e).Error
}

func (r *shiftExceptionRepo) GetByID(ctx context.Context, id string) (*model.ShiftException, error) {
	var e model.ShiftException
	err := r.db.WithContext(ctx).
		Preload("Shift").
		Preload("Activity").
		Where("exception_id = ?", id).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *shiftExceptionRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.ShiftException, error) {
	var e model.ShiftException
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("exception_id = ?", id).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *shiftExceptionRepo) GetByShift(ctx context.Context, shiftID string) (*model.ShiftException, error) {
	var e model.ShiftException
	err := r.db.WithContext(ctx).Where("shift_id = ?", shiftID).First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *shiftExceptionRepo) GetByActivity(ctx context.Context, activityID string) (*model.ShiftException, error) {
	var e model.ShiftException
	err := r.db.WithContext(ctx).Where("activity_id = ?", activityID).First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *shiftExceptionRepo) ListPendingByStore(ctx context.Context, storeID string) ([]model.ShiftException, error) {
	var list []model.ShiftException
	err := r.db.WithContext(ctx).
		Preload("Shift").
		Preload("Activity").
		Where("store_id = ? AND is_approved = ?", storeID, false).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}

func (r *shiftExceptionRepo) Update(ctx context.Context, e *model.ShiftException) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(e).Error
}

func (r *shiftExceptionRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("exception_id = ?", id).
		Delete(&model.ShiftException{}).Error
}
