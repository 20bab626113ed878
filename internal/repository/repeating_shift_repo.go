package repository

import (
	"context"

	"gorm.io/gorm"

	"clock-in-system/backend/internal/model"
)

// RepeatingShiftRepository 循环排班模板数据访问接口
type RepeatingShiftRepository interface {
	Create(ctx context.Context, rs *model.RepeatingShift) error
	GetByID(ctx context.Context, id string) (*model.RepeatingShift, error)
	ListByStore(ctx context.Context, storeID string) ([]model.RepeatingShift, error)
	Delete(ctx context.Context, id string) error
}

type repeatingShiftRepo struct {
	db *gorm.DB
}

// NewRepeatingShiftRepo 创建 RepeatingShiftRepository 实例
func NewRepeatingShiftRepo(db *gorm.DB) RepeatingShiftRepository {
	return &repeatingShiftRepo{db: db}
}

func (r *repeatingShiftRepo) Create(ctx context.Context, rs *model.RepeatingShift) error {
	return r.db.WithContext(ctx).Create(rs).Error
}

func (r *repeatingShiftRepo) GetByID(ctx context.Context, id string) (*model.RepeatingShift, error) {
	var rs model.RepeatingShift
	err := r.db.WithContext(ctx).Where("repeating_shift_id = ?", id).First(&rs).Error
	if err != nil {
		return nil, err
	}
	return &rs, nil
}

func (r *repeatingShiftRepo) ListByStore(ctx context.Context, storeID string) ([]model.RepeatingShift, error) {
	var list []model.RepeatingShift
	err := r.db.WithContext(ctx).
		Where("store_id = ?", storeID).
		Order("start_weekday ASC, start_time ASC, repeating_shift_id ASC").
		Find(&list).Error
	return list, err
}

func (r *repeatingShiftRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("repeating_shift_id = ?", id).
		Delete(&model.RepeatingShift{}).Error
}
